// Package protocol implements the length-prefixed binary command protocol:
// request/response framing, per-command (de)serialization, and the stable
// numeric error codes shared by every transport (TCP, QUIC, HTTP).
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFramePayload bounds a single frame's payload: 1MiB of message data plus
// slack for headers and command envelopes.
const MaxFramePayload = 1*1024*1024 + 4096

// RequestFrame is a decoded request: `u32 LE total_length | u32 LE command_code | payload`.
type RequestFrame struct {
	CommandCode uint32
	Payload     []byte
}

// ReadRequestFrame reads one request frame from r. maxPayload caps the
// accepted body size (the transport's configured maximum); frames whose
// declared length exceeds it are rejected before the body is read.
func ReadRequestFrame(r io.Reader, maxPayload uint32) (*RequestFrame, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	totalLength := binary.LittleEndian.Uint32(header[0:4])
	commandCode := binary.LittleEndian.Uint32(header[4:8])

	if totalLength < 4 {
		return nil, New(CodeMalformedPayload, "total_length smaller than command_code field")
	}
	payloadLen := totalLength - 4
	if payloadLen > maxPayload {
		return nil, New(CodeTooLargePayload, fmt.Sprintf("frame payload %d exceeds max %d", payloadLen, maxPayload))
	}

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return &RequestFrame{CommandCode: commandCode, Payload: payload}, nil
}

// ResponseFrame is the wire shape of a reply: `u32 LE status | u32 LE payload_length | payload`.
type ResponseFrame struct {
	Status  Code
	Payload []byte
}

// WriteResponseFrame serializes and writes a response frame to w.
func WriteResponseFrame(w io.Writer, resp *ResponseFrame) error {
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], uint32(resp.Status))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(resp.Payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(resp.Payload) > 0 {
		if _, err := w.Write(resp.Payload); err != nil {
			return err
		}
	}
	return nil
}

// OKResponse builds a success response, optionally carrying a payload.
func OKResponse(payload []byte) *ResponseFrame {
	return &ResponseFrame{Status: CodeOK, Payload: payload}
}

// ErrorResponse maps an engine error to its wire response: a non-zero status
// and no body (a response with payload_length <= 1 carries no body).
func ErrorResponse(err error) *ResponseFrame {
	return &ResponseFrame{Status: CodeOf(err), Payload: nil}
}

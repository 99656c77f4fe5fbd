package ids

import (
	"encoding/binary"
	"fmt"
)

// MaxHeaderKeyLen and MaxHeadersBlockLen bound header storage per the data
// model: keys are 1-255 ASCII bytes, the whole block is capped at 64KiB.
const (
	MaxHeaderKeyLen    = 255
	MaxHeadersBlockLen = 64 * 1024
)

// HeaderKey is a lowercase ASCII header name.
type HeaderKey string

// ValidateHeaderKey checks the length and character-class constraints.
func ValidateHeaderKey(k HeaderKey) error {
	if len(k) < 1 || len(k) > MaxHeaderKeyLen {
		return fmt.Errorf("ids: header key length %d out of range [1,%d]", len(k), MaxHeaderKeyLen)
	}
	for _, r := range k {
		if r > 127 {
			return fmt.Errorf("ids: header key %q is not ASCII", k)
		}
		if r >= 'A' && r <= 'Z' {
			return fmt.Errorf("ids: header key %q must be lowercase", k)
		}
	}
	return nil
}

// HeaderValueKind enumerates the tagged variants a HeaderValue can hold.
type HeaderValueKind uint8

const (
	HeaderBool HeaderValueKind = iota + 1
	HeaderInt8
	HeaderInt16
	HeaderInt32
	HeaderInt64
	HeaderUint8
	HeaderUint16
	HeaderUint32
	HeaderUint64
	HeaderFloat32
	HeaderFloat64
	HeaderString
	HeaderBytes
)

// HeaderValue is a tagged union over the primitive types a header may carry.
type HeaderValue struct {
	Kind  HeaderValueKind
	Raw   []byte // canonical little-endian / UTF-8 / raw-bytes encoding
}

// NewStringHeader builds a string-valued header.
func NewStringHeader(s string) HeaderValue {
	return HeaderValue{Kind: HeaderString, Raw: []byte(s)}
}

// NewBytesHeader builds a bytes-valued header.
func NewBytesHeader(b []byte) HeaderValue {
	return HeaderValue{Kind: HeaderBytes, Raw: append([]byte(nil), b...)}
}

// NewBoolHeader builds a bool-valued header.
func NewBoolHeader(v bool) HeaderValue {
	b := byte(0)
	if v {
		b = 1
	}
	return HeaderValue{Kind: HeaderBool, Raw: []byte{b}}
}

// NewUint64Header builds a uint64-valued header.
func NewUint64Header(v uint64) HeaderValue {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, v)
	return HeaderValue{Kind: HeaderUint64, Raw: raw}
}

// NewInt64Header builds an int64-valued header.
func NewInt64Header(v int64) HeaderValue {
	return NewUint64Header(uint64(v))
}

// AsString decodes a string header.
func (h HeaderValue) AsString() (string, error) {
	if h.Kind != HeaderString {
		return "", fmt.Errorf("ids: header is not a string (kind %d)", h.Kind)
	}
	return string(h.Raw), nil
}

// AsUint64 decodes a uint64 header.
func (h HeaderValue) AsUint64() (uint64, error) {
	if h.Kind != HeaderUint64 || len(h.Raw) != 8 {
		return 0, fmt.Errorf("ids: header is not a uint64 (kind %d)", h.Kind)
	}
	return binary.LittleEndian.Uint64(h.Raw), nil
}

// HeadersBlockSize returns the encoded size of a header map, used to enforce
// MaxHeadersBlockLen before appending a message.
func HeadersBlockSize(headers map[HeaderKey]HeaderValue) int {
	total := 4 // count prefix
	for k, v := range headers {
		total += 1 + len(k) // key length byte + key bytes
		total += 1 + 4 + len(v.Raw) // kind byte + value length + value bytes
	}
	return total
}

// EncodeHeaders serializes a header map as `u32 count | (u8 key_len | key |
// u8 kind | u32 value_len | value)*`. Shared by the wire codec and the log
// frame format so both speak the same on-disk/on-wire representation.
func EncodeHeaders(headers map[HeaderKey]HeaderValue) ([]byte, error) {
	var buf []byte
	buf = appendU32(buf, uint32(len(headers)))
	for k, v := range headers {
		if err := ValidateHeaderKey(k); err != nil {
			return nil, err
		}
		buf = append(buf, byte(len(k)))
		buf = append(buf, []byte(k)...)
		buf = append(buf, byte(v.Kind))
		buf = appendU32(buf, uint32(len(v.Raw)))
		buf = append(buf, v.Raw...)
	}
	return buf, nil
}

// DecodeHeaders parses the format EncodeHeaders produces.
func DecodeHeaders(data []byte) (map[HeaderKey]HeaderValue, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("ids: truncated headers block")
	}
	count := binary.LittleEndian.Uint32(data)
	pos := 4
	headers := make(map[HeaderKey]HeaderValue, count)
	for i := uint32(0); i < count; i++ {
		if pos+1 > len(data) {
			return nil, fmt.Errorf("ids: truncated headers block")
		}
		keyLen := int(data[pos])
		pos++
		if pos+keyLen+1+4 > len(data) {
			return nil, fmt.Errorf("ids: truncated headers block")
		}
		key := HeaderKey(data[pos : pos+keyLen])
		pos += keyLen
		kind := HeaderValueKind(data[pos])
		pos++
		valueLen := int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
		if pos+valueLen > len(data) {
			return nil, fmt.Errorf("ids: truncated headers block")
		}
		value := data[pos : pos+valueLen]
		pos += valueLen
		headers[key] = HeaderValue{Kind: kind, Raw: value}
	}
	return headers, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

package protocol

import "fmt"

// Code is the stable numeric wire error code. 0 means OK.
type Code uint32

// Error codes grouped by taxonomy (§7 of the design). Values are stable
// across versions once published — never renumber an existing entry.
const (
	CodeOK Code = 0

	// Protocol
	CodeInvalidCommand   Code = 1
	CodeMalformedPayload Code = 2
	CodeTooLargePayload  Code = 3
	CodeEmptyResponse    Code = 4

	// Auth
	CodeUnauthenticated    Code = 10
	CodeUnauthorized       Code = 11
	CodeInvalidCredentials Code = 12
	CodeTokenExpired       Code = 13
	CodeTokenNotFound      Code = 14

	// Resource
	CodeResourceNotFound      Code = 20
	CodeResourceAlreadyExists Code = 21
	CodeInvalidIdentifier     Code = 22
	CodeNameTooLong           Code = 23
	CodeNameTooShort          Code = 24

	// Semantic
	CodePartitionNotFound   Code = 30
	CodeConsumerNotAssigned Code = 31
	CodeOffsetOutOfRange    Code = 32
	CodePartitionFull       Code = 33
	CodeTopicFull           Code = 34

	// Storage
	CodeIoError               Code = 40
	CodeCorrupted             Code = 41
	CodeCannotCreateDirectory Code = 42
	CodeCannotOpenFile        Code = 43

	// Transport
	CodeNotConnected     Code = 50
	CodeConnectionClosed Code = 51
	CodeTLSError         Code = 52
)

// Error is the engine-wide error type: every error that can cross the
// dispatcher boundary carries a stable wire Code.
type Error struct {
	Code    Code
	Kind    string // resource kind, for Resource* errors
	ID      string // resource id/name, for Resource* errors
	Detail  string
	Wrapped error
}

func (e *Error) Error() string {
	switch {
	case e.Kind != "" && e.ID != "":
		return fmt.Sprintf("%s: %s %q: %s", e.codeName(), e.Kind, e.ID, e.Detail)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.codeName(), e.Detail)
	default:
		return e.codeName()
	}
}

func (e *Error) Unwrap() error { return e.Wrapped }

func (e *Error) codeName() string {
	if name, ok := codeNames[e.Code]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", e.Code)
}

var codeNames = map[Code]string{
	CodeOK:                    "ok",
	CodeInvalidCommand:        "InvalidCommand",
	CodeMalformedPayload:      "MalformedPayload",
	CodeTooLargePayload:       "TooLargePayload",
	CodeEmptyResponse:         "EmptyResponse",
	CodeUnauthenticated:       "Unauthenticated",
	CodeUnauthorized:          "Unauthorized",
	CodeInvalidCredentials:    "InvalidCredentials",
	CodeTokenExpired:          "TokenExpired",
	CodeTokenNotFound:         "TokenNotFound",
	CodeResourceNotFound:      "ResourceNotFound",
	CodeResourceAlreadyExists: "ResourceAlreadyExists",
	CodeInvalidIdentifier:     "InvalidIdentifier",
	CodeNameTooLong:           "NameTooLong",
	CodeNameTooShort:          "NameTooShort",
	CodePartitionNotFound:     "PartitionNotFound",
	CodeConsumerNotAssigned:   "ConsumerNotAssigned",
	CodeOffsetOutOfRange:      "OffsetOutOfRange",
	CodePartitionFull:         "PartitionFull",
	CodeTopicFull:             "TopicFull",
	CodeIoError:               "IoError",
	CodeCorrupted:             "Corrupted",
	CodeCannotCreateDirectory: "CannotCreateDirectory",
	CodeCannotOpenFile:        "CannotOpenFile",
	CodeNotConnected:          "NotConnected",
	CodeConnectionClosed:      "ConnectionClosed",
	CodeTLSError:              "TlsError",
}

// New builds an *Error with a detail message.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Wrap builds an *Error that chains an underlying cause.
func Wrap(code Code, detail string, cause error) *Error {
	return &Error{Code: code, Detail: detail, Wrapped: cause}
}

// NotFound builds a ResourceNotFound error naming the kind and id.
func NotFound(kind, id string) *Error {
	return &Error{Code: CodeResourceNotFound, Kind: kind, ID: id}
}

// AlreadyExists builds a ResourceAlreadyExists error naming the kind and id.
func AlreadyExists(kind, id string) *Error {
	return &Error{Code: CodeResourceAlreadyExists, Kind: kind, ID: id}
}

// CodeOf extracts the wire code from any error, defaulting to IoError for
// errors that did not originate as a protocol.Error (the dispatcher must
// never let a bare Go error escape to the wire as a panic or a 0 code).
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var pe *Error
	if asError(err, &pe) {
		return pe.Code
	}
	return CodeIoError
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Package ethwireerr defines the typed error carried across request/session
// boundaries (spec §7): callers need to distinguish a decode failure from a
// timeout from a session closure, so a sentinel alone isn't enough — they
// also need the reqId and sessionId the failure belongs to.
package ethwireerr

import "fmt"

// Kind classifies a failure along the taxonomy in spec §7.
type Kind int

const (
	KindTransportFatal Kind = iota
	KindProtocolFatal
	KindRequestTimeout
	KindRequestDecode
	KindValidation
	KindCapacity
	KindSessionClosed
)

func (k Kind) String() string {
	switch k {
	case KindTransportFatal:
		return "transport-fatal"
	case KindProtocolFatal:
		return "protocol-fatal"
	case KindRequestTimeout:
		return "request-timeout"
	case KindRequestDecode:
		return "request-decode"
	case KindValidation:
		return "validation"
	case KindCapacity:
		return "capacity"
	case KindSessionClosed:
		return "session-closed"
	default:
		return "unknown"
	}
}

// Error is the typed error a pending request settles with on failure:
// "caller receives a typed error carrying {kind, reqId, sessionId}" per
// spec §7.
type Error struct {
	Kind      Kind
	ReqID     uint64
	SessionID string
	Err       error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ethwire: %s (reqId=%d, session=%s)", e.Kind, e.ReqID, e.SessionID)
	}
	return fmt.Sprintf("ethwire: %s (reqId=%d, session=%s): %v", e.Kind, e.ReqID, e.SessionID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error, the standard way request handling and the
// session's close path surface failures to a pending caller.
func New(kind Kind, reqID uint64, sessionID string, err error) *Error {
	return &Error{Kind: kind, ReqID: reqID, SessionID: sessionID, Err: err}
}

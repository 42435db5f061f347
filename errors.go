package xmpp

import (
	"errors"
	"fmt"

	"github.com/anchorwire/xmpp/stanza"
)

// Kind classifies the failures this package's operations can return. It is
// a closed set: callers switch on it (or compare with errors.Is against the
// matching sentinel below) instead of matching error strings.
type Kind int

const (
	// KindIO covers transport-level read/write failures.
	KindIO Kind = iota
	// KindTLS covers TLS handshake and certificate failures.
	KindTLS
	// KindParse covers malformed XML on the wire.
	KindParse
	// KindProtocolViolation covers a peer violating RFC 6120/6121 framing
	// or ordering rules.
	KindProtocolViolation
	// KindAuthenticationFailed covers a rejected SASL negotiation.
	KindAuthenticationFailed
	// KindTLSRequiredByServer covers a server-mandated STARTTLS that the
	// client declined or could not negotiate.
	KindTLSRequiredByServer
	// KindNotConnected covers an operation attempted before the stream is
	// established.
	KindNotConnected
	// KindNotAuthenticated covers an operation attempted before SASL/bind
	// completes.
	KindNotAuthenticated
	// KindAlreadyDisposed covers an operation on a session that has
	// already been closed.
	KindAlreadyDisposed
	// KindTimeout covers a blocking operation whose deadline expired.
	KindTimeout
	// KindCancelled covers a blocking operation whose context was
	// cancelled.
	KindCancelled
	// KindConnectionLost covers an established stream that died
	// unexpectedly (as distinct from KindIO's request-scoped failures).
	KindConnectionLost
	// KindXMPPStanzaError wraps a peer-returned stanza-level <error/>; see
	// the Stanza field.
	KindXMPPStanzaError
	// KindFeatureNotSupportedByPeer covers calling an extension the peer
	// never advertised via disco/stream-features.
	KindFeatureNotSupportedByPeer
	// KindInvalidArgument covers a caller-supplied argument rejected
	// before anything was sent on the wire.
	KindInvalidArgument
	// KindConflict covers a local precondition conflict (e.g. a resource
	// or subscription already in the requested state).
	KindConflict
	// KindNotAcceptable covers a locally-rejected request that never
	// reached the peer.
	KindNotAcceptable
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindTLS:
		return "tls"
	case KindParse:
		return "parse"
	case KindProtocolViolation:
		return "protocol violation"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindTLSRequiredByServer:
		return "tls required by server"
	case KindNotConnected:
		return "not connected"
	case KindNotAuthenticated:
		return "not authenticated"
	case KindAlreadyDisposed:
		return "already disposed"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindConnectionLost:
		return "connection lost"
	case KindXMPPStanzaError:
		return "xmpp stanza error"
	case KindFeatureNotSupportedByPeer:
		return "feature not supported by peer"
	case KindInvalidArgument:
		return "invalid argument"
	case KindConflict:
		return "conflict"
	case KindNotAcceptable:
		return "not acceptable"
	default:
		return "unknown"
	}
}

// Error is the package's general-purpose error type: every non-stanza
// failure an exported operation returns either is, or wraps, an *Error.
type Error struct {
	Kind Kind

	// Msg adds operation-specific detail; it may be empty.
	Msg string

	// Stanza holds the peer's stanza-level error when Kind is
	// KindXMPPStanzaError, nil otherwise.
	Stanza *stanza.StanzaError

	// Cause is the underlying error, if any (e.g. the *net.OpError behind
	// a KindIO failure).
	Cause error
}

// NewError builds an *Error of the given kind, wrapping cause (which may
// be nil).
func NewError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// NewStanzaKindError builds a KindXMPPStanzaError wrapping se.
func NewStanzaKindError(se *stanza.StanzaError) *Error {
	return &Error{Kind: KindXMPPStanzaError, Msg: se.Error(), Stanza: se, Cause: se}
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("xmpp: %s: %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("xmpp: %s", e.Kind)
}

// Unwrap exposes Cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error of the same Kind, so that
// errors.Is(err, xmpp.ErrNotConnected) and friends work regardless of Msg
// or Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel *Error values, one per Kind, for use with errors.Is.
var (
	ErrKindIO                        = &Error{Kind: KindIO}
	ErrKindTLS                       = &Error{Kind: KindTLS}
	ErrKindParse                     = &Error{Kind: KindParse}
	ErrKindProtocolViolation         = &Error{Kind: KindProtocolViolation}
	ErrKindAuthenticationFailed      = &Error{Kind: KindAuthenticationFailed}
	ErrKindTLSRequiredByServer       = &Error{Kind: KindTLSRequiredByServer}
	ErrKindNotConnected              = &Error{Kind: KindNotConnected}
	ErrKindNotAuthenticated          = &Error{Kind: KindNotAuthenticated}
	ErrKindAlreadyDisposed           = &Error{Kind: KindAlreadyDisposed}
	ErrKindTimeout                   = &Error{Kind: KindTimeout}
	ErrKindCancelled                 = &Error{Kind: KindCancelled}
	ErrKindConnectionLost            = &Error{Kind: KindConnectionLost}
	ErrKindXMPPStanzaError           = &Error{Kind: KindXMPPStanzaError}
	ErrKindFeatureNotSupportedByPeer = &Error{Kind: KindFeatureNotSupportedByPeer}
	ErrKindInvalidArgument           = &Error{Kind: KindInvalidArgument}
	ErrKindConflict                  = &Error{Kind: KindConflict}
	ErrKindNotAcceptable             = &Error{Kind: KindNotAcceptable}
)

// AsStanzaError reports whether err wraps a peer stanza-level error,
// unwrapping both *xmpp.Error and bare *stanza.StanzaError.
func AsStanzaError(err error) (*stanza.StanzaError, bool) {
	var se *stanza.StanzaError
	if errors.As(err, &se) {
		return se, true
	}
	var xe *Error
	if errors.As(err, &xe) && xe.Stanza != nil {
		return xe.Stanza, true
	}
	return nil, false
}

// Common stanza errors as convenience constructors.

func ErrBadRequest(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeModify, stanza.ErrorBadRequest, text)
}

func ErrConflict(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorConflict, text)
}

func ErrFeatureNotImplemented(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorFeatureNotImplemented, text)
}

func ErrForbidden(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeAuth, stanza.ErrorForbidden, text)
}

func ErrItemNotFound(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorItemNotFound, text)
}

func ErrNotAllowed(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorNotAllowed, text)
}

func ErrNotAuthorized(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeAuth, stanza.ErrorNotAuthorized, text)
}

func ErrServiceUnavailable(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorServiceUnavailable, text)
}

func ErrInternalServerError(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeCancel, stanza.ErrorInternalServerError, text)
}

func ErrRecipientUnavailable(text string) *stanza.StanzaError {
	return stanza.NewStanzaError(stanza.ErrorTypeWait, stanza.ErrorRecipientUnavailable, text)
}

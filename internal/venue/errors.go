package venue

import (
	"errors"
	"fmt"
)

// ErrKind classifies venue failures so callers can decide between
// retrying, degrading and aborting without parsing error strings.
type ErrKind int

const (
	// KindTransient covers connect/read/pool timeouts and resets; the
	// transport retries these before surfacing them.
	KindTransient ErrKind = iota
	// KindRateLimited is HTTP 429 or a venue-specific equivalent.
	KindRateLimited
	// KindWAFBlocked is HTTP 403, usually a Cloudflare challenge.
	KindWAFBlocked
	// KindNotFound means the venue does not list the symbol. Adapters map
	// the enumerated per-venue code sets here and return (nil, nil).
	KindNotFound
	// KindProtocol is any unexpected status, JSON shape or venue error code.
	KindProtocol
	// KindAuth is a private-API signing/permission failure; never retried.
	KindAuth
)

func (k ErrKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindWAFBlocked:
		return "waf_blocked"
	case KindNotFound:
		return "not_found"
	case KindProtocol:
		return "protocol"
	case KindAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// Error is the tagged error type produced by transports and adapters.
type Error struct {
	Venue ID
	Kind  ErrKind
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %s", e.Venue, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Venue, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a tagged venue error.
func NewError(v ID, kind ErrKind, op string, err error) *Error {
	return &Error{Venue: v, Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrKind from err, defaulting to KindProtocol.
func KindOf(err error) ErrKind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindProtocol
}

// IsRetryable reports whether the transport may retry the request.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

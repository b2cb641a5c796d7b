package upstream

import (
	"errors"
	"fmt"
)

// Kind classifies upstream failures so the relay can report them without
// inspecting provider-specific payloads.
type Kind string

const (
	KindCredentialMissing   Kind = "credential_missing"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindRateLimited         Kind = "rate_limited"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
)

// Error is a classified upstream failure. Malformed individual wire lines are
// not represented here: clients skip them and keep reading.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds a classified error with an optional wrapped cause.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the classification from err, defaulting to
// KindUpstreamUnavailable for unclassified failures.
func KindOf(err error) Kind {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindUpstreamUnavailable
}

// ErrCredentialMissing is returned before any network activity when neither a
// request credential nor a provider default is configured.
var ErrCredentialMissing = &Error{Kind: KindCredentialMissing, Message: "api key required"}

// ClassifyStatus maps an upstream HTTP status to an error kind.
func ClassifyStatus(status int) Kind {
	switch status {
	case 401:
		return KindUnauthorized
	case 403:
		return KindForbidden
	case 429:
		return KindRateLimited
	default:
		return KindUpstreamUnavailable
	}
}

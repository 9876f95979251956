package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// Kind classifies a transcription failure.
type Kind string

const (
	KindRateLimited  Kind = "rate_limited"
	KindUnavailable  Kind = "unavailable"
	KindUnauthorized Kind = "unauthorized"
	KindUpstream     Kind = "upstream_error"
	KindUnexpected   Kind = "unexpected"
)

// Error is a classified transcription failure.
type Error struct {
	Kind    Kind
	Status  int    // upstream HTTP status, 0 if none
	Message string // upstream or local detail, reported verbatim
	Err     error
}

func (e *Error) Error() string {
	var s string
	switch e.Kind {
	case KindRateLimited:
		s = "rate limit exceeded: too many requests to the transcription API"
	case KindUnavailable:
		s = "service unavailable: unable to connect to the transcription API"
	case KindUnauthorized:
		s = "invalid or expired transcription API key"
	case KindUpstream:
		return fmt.Sprintf("transcription API error (status %d): %s", e.Status, e.Message)
	default:
		s = "unexpected error during transcription"
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt could succeed without operator action.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindUnavailable
}

// KindOf returns the classification of err, or KindUnexpected for
// unclassified errors.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnexpected
}

// fromStatus classifies a non-2xx API response.
func fromStatus(status int, msg string, err error) *Error {
	kind := KindUpstream
	switch status {
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	case http.StatusUnauthorized:
		kind = KindUnauthorized
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Kind: kind, Status: status, Message: msg, Err: err}
}

// asError returns err as an *Error, classifying transport failures as
// unavailable and anything else as unexpected.
func asError(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if isTransport(err) {
		return &Error{Kind: KindUnavailable, Message: err.Error(), Err: err}
	}
	return &Error{Kind: KindUnexpected, Message: err.Error(), Err: err}
}

func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

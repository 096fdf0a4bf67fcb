package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind classifies a failed call once, at the data-access boundary.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindNetwork   Kind = "network"
	KindServer    Kind = "server"
	KindCancelled Kind = "cancelled"
	KindUnknown   Kind = "unknown"
)

// Error is returned by every call of the fetch layer.
type Error struct {
	Kind    Kind
	Message string
	// Status is the HTTP status for KindServer errors.
	Status int
	// Disconnected marks connection-level failures (dial errors).
	Disconnected bool
	Err          error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, KindUnknown for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsCancelled reports whether err only means the caller went away.
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }

// Retryable reports whether err is a transient network failure.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindNetwork:
		return true
	}
	return false
}

// IsDisconnected reports a connection-level failure.
func IsDisconnected(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Disconnected
}

// UserMessage returns a human-readable message for err. Cancellation yields "".
func UserMessage(err error) string {
	switch KindOf(err) {
	case "", KindCancelled:
		return ""
	case KindTimeout:
		return "The request took too long. Check your connection and try again."
	case KindNetwork:
		return "Could not reach the server. Check your internet connection and try again."
	case KindServer:
		var fe *Error
		if errors.As(err, &fe) && fe.Message != "" {
			return fe.Message
		}
		return "The server rejected the request."
	default:
		return "Something went wrong. Please try again."
	}
}

// classify turns a transport error into an *Error. parent is the caller's
// context: a deadline hit by the per-call timeout is a timeout, while a
// cancelled parent is a cancellation.
func classify(parent context.Context, err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if parent.Err() != nil && errors.Is(parent.Err(), context.Canceled) {
		return &Error{Kind: KindCancelled, Message: "request cancelled", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCancelled, Message: "request cancelled", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out", Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindNetwork, Message: opErr.Error(), Disconnected: opErr.Op == "dial", Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindNetwork, Message: dnsErr.Error(), Disconnected: true, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &Error{Kind: KindNetwork, Message: urlErr.Error(), Err: err}
	}
	return &Error{Kind: KindUnknown, Message: err.Error(), Err: err}
}

// Classify is classify for callers outside the HTTP client, e.g. the refiner.
func Classify(parent context.Context, err error) *Error {
	if err == nil {
		return nil
	}
	return classify(parent, err)
}

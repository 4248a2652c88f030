package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind: how the orchestrator should react to a provider failure.
type ErrorKind int

const (
	// KindTransport is any non-recoverable failure: propagate, no fallback.
	KindTransport ErrorKind = iota
	// KindQuota means the model is rate-limited or out of quota: one fallback attempt.
	KindQuota
)

func (k ErrorKind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	default:
		return "transport"
	}
}

// Error is produced at the provider boundary. Nothing past this type looks at
// raw error text.
type Error struct {
	Op     string
	Kind   ErrorKind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with its classification. status is the HTTP status if known, else 0.
func NewError(op string, status int, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return &Error{Op: op, Kind: Classify(status, err), Status: status, Err: err}
}

// Classify: quota iff status 429, or the serialized error contains "429" or
// "quota" (case-sensitive).
func Classify(status int, err error) ErrorKind {
	if status == http.StatusTooManyRequests {
		return KindQuota
	}
	if err == nil {
		return KindTransport
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "quota") {
		return KindQuota
	}
	return KindTransport
}

// KindOf reports the kind of err. Errors that did not pass through NewError are
// classified on the spot.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Classify(0, err)
}

func IsQuota(err error) bool { return err != nil && KindOf(err) == KindQuota }

// Package apperr defines the error taxonomy shared by the ingestion pipeline
// and the agent API.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller is expected to react to it.
type Kind string

const (
	// KindValidation marks payloads or input that will never become
	// processable. Webhook deliveries of this kind are acknowledged, not retried.
	KindValidation Kind = "validation"
	// KindStorage marks failures of the durable store or attachment store.
	KindStorage Kind = "storage"
	// KindMediaFetch marks failures resolving or downloading provider media.
	KindMediaFetch Kind = "media_fetch"
	// KindSend marks failures of an outbound provider call.
	KindSend Kind = "send"
	// KindConfig marks missing or invalid configuration.
	KindConfig Kind = "config"
	// KindNotFound marks lookups of records that do not exist.
	KindNotFound Kind = "not_found"
	// KindConflict marks writes rejected by a uniqueness rule.
	KindConflict Kind = "conflict"
)

// Error is a classified error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func Validation(op string, err error) error { return New(KindValidation, op, err) }
func Storage(op string, err error) error    { return New(KindStorage, op, err) }
func MediaFetch(op string, err error) error { return New(KindMediaFetch, op, err) }
func Send(op string, err error) error       { return New(KindSend, op, err) }
func Config(op string, err error) error     { return New(KindConfig, op, err) }
func NotFound(op string, err error) error   { return New(KindNotFound, op, err) }
func Conflict(op string, err error) error   { return New(KindConflict, op, err) }

// KindOf returns the kind of the outermost classified error in the chain,
// or "" when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

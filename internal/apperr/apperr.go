// Package apperr classifies transcription failures into a closed set of kinds
// so callers can branch on cause instead of parsing messages.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindModelLoad
	KindAudioDecode
	KindInference
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindModelLoad:
		return "model_load"
	case KindAudioDecode:
		return "audio_decode"
	case KindInference:
		return "inference"
	default:
		return "unknown"
	}
}

// Error carries a Kind, the operation that failed and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind. A nil err yields nil; an err that already carries
// a kind keeps it.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) && existing.Kind != KindUnknown {
		if op == "" {
			return err
		}
		return &Error{Kind: existing.Kind, Op: op, Err: err}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the outermost kind found in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a failure to the coarse status the web service returns.
func HTTPStatus(err error) int {
	if Is(err, KindInvalidInput) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

package engine

import (
	"context"
	"errors"
	"fmt"

	"stageflow/internal/engine/auth"
	"stageflow/internal/repo"
)

// Kind classifies engine failures. Kinds are themselves errors so callers
// can write errors.Is(err, engine.ErrNotFound).
type Kind string

const (
	ErrValidation  Kind = "INVALID_INPUT"
	ErrNotFound    Kind = "NOT_FOUND"
	ErrForbidden   Kind = "FORBIDDEN"
	ErrConflict    Kind = "CONFLICT"
	ErrPersistence Kind = "DATABASE_ERROR"
)

func (k Kind) Error() string { return string(k) }

// Error is the structured failure returned by engine operations.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil && e.Kind == ErrPersistence {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of err. Errors the engine did not classify are
// persistence failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var forbidden auth.ForbiddenError
	if errors.As(err, &forbidden) {
		return ErrForbidden
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repo.ErrConflict):
		return ErrConflict
	}
	return ErrPersistence
}

// storeErr classifies a repository failure for op.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return &Error{Kind: ErrNotFound, Op: op, Msg: "not found", Err: err}
	case errors.Is(err, repo.ErrConflict):
		return &Error{Kind: ErrConflict, Op: op, Msg: "project was modified concurrently", Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: ErrPersistence, Op: op, Msg: "aborted", Err: err}
	}
	return &Error{Kind: ErrPersistence, Op: op, Msg: "store failure", Err: err}
}

package services

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindAuth
	KindNotFound
	KindConflict
	KindUpstream
	KindIgnorable
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	case KindIgnorable:
		return "ignorable"
	}
	return "unknown"
}

// Error — доменная ошибка. Message безопасно отдавать клиенту.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func ValidationError(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}
func NotFoundError(format string, args ...any) *Error { return newError(KindNotFound, format, args...) }
func ConflictError(format string, args ...any) *Error { return newError(KindConflict, format, args...) }

func UpstreamError(err error, format string, args ...any) *Error {
	e := newError(KindUpstream, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of a domain error, or 0 for infrastructure errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

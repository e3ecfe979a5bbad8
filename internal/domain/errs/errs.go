// Package errs holds the error taxonomy returned by the application layer.
// Store, hasher and token errors are translated into these kinds before they
// reach the transport layer.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindConflict
	KindInvalidCredentials
	KindAccountDeactivated
	KindUnauthenticated
	KindUnauthorized
	KindNotFound
	KindMalformed
	KindAlreadyVerified
	KindValidation
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindConflict:           "conflict",
	KindInvalidCredentials: "invalid_credentials",
	KindAccountDeactivated: "account_deactivated",
	KindUnauthenticated:    "unauthenticated",
	KindUnauthorized:       "unauthorized",
	KindNotFound:           "not_found",
	KindMalformed:          "malformed",
	KindAlreadyVerified:    "already_verified",
	KindValidation:         "validation",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is an application error with a public message and an optional cause.
// The cause is for logs only.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels, one per kind.
var (
	ErrInternal           = &Error{Kind: KindInternal, Message: "internal error"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "email already registered"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "incorrect email or password"}
	ErrAccountDeactivated = &Error{Kind: KindAccountDeactivated, Message: "account is deactivated"}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated, Message: "could not validate credentials"}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Message: "not enough permissions"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrMalformed          = &Error{Kind: KindMalformed, Message: "malformed request"}
	ErrAlreadyVerified    = &Error{Kind: KindAlreadyVerified, Message: "email already verified"}
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
)

// New builds an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap builds an error of the given kind carrying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the public message of err. Foreign errors never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return ErrInternal.Message
}

// Package errors holds the stable error taxonomy surfaced by the settlement engine.
// Every error carries a machine readable Code; the Message is safe to show to end
// users, the wrapped cause is for logs only.
package errors

import "fmt"

type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError with the same code, so wrapped copies still
// satisfy errors.Is against the package sentinels.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause returns a copy of e wrapping err.
func (e *DomainError) WithCause(err error) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Err: err}
}

// WithMessage returns a copy of e with a more specific user-facing message.
func (e *DomainError) WithMessage(msg string) *DomainError {
	return &DomainError{Code: e.Code, Message: msg, Err: e.Err}
}

// Validation builds a VALIDATION_ERROR with the given message.
func Validation(format string, args ...interface{}) *DomainError {
	return ErrValidation.WithMessage(fmt.Sprintf(format, args...))
}

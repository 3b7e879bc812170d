package errors

import (
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryToast     Category = "toast"
	CategoryStore     Category = "store"
	CategoryPersist   Category = "persist"
	CategoryConfig    Category = "config"
	CategoryTransport Category = "transport"
	CategoryCLI       Category = "cli"
)

// CampusError is a structured error with a code, explanation and fix hint.
type CampusError struct {
	// Code is a unique error identifier (e.g., "E001").
	Code string

	// Category is the error type (store, toast, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *CampusError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *CampusError) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is a CampusError with the same code.
func (e *CampusError) Is(target error) bool {
	t, ok := target.(*CampusError)
	if !ok || t == nil {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// WithSuggestion adds a fix suggestion to the error.
func (e *CampusError) WithSuggestion(s string) *CampusError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *CampusError) WithDetail(d string) *CampusError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *CampusError) Wrap(err error) *CampusError {
	e.Wrapped = err
	return e
}

// New creates a CampusError from a registered error code.
func New(code string) *CampusError {
	template, ok := registry[code]
	if !ok {
		return &CampusError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &CampusError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new CampusError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *CampusError {
	return &CampusError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a CampusError.
func FromError(err error, code string) *CampusError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CampusError); ok {
		return ce
	}
	return New(code).Wrap(err)
}

// HasCode reports whether err, or any error it wraps, carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		if ce, ok := err.(*CampusError); ok && ce.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

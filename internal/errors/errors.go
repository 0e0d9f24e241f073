// Package errors provides error classification for the gateway. Errors carry
// a component (which subsystem failed) and a category (what kind of failure),
// so log lines and telemetry can be grouped without string matching. The
// stdlib helpers Is/As/Join are re-exported so callers only import one
// errors package.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Category classifies the kind of failure.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryCacheStore Category = "cache-store"
	CategoryState      Category = "state"
	CategoryValidation Category = "validation"
	CategoryConfig     Category = "configuration"
	CategoryLifecycle  Category = "lifecycle"
	CategoryNotFound   Category = "not-found"
	CategoryGeneric    Category = "generic"
)

// EnhancedError wraps an error with component and category metadata.
type EnhancedError struct {
	Err       error
	component string
	category  Category
	context   map[string]any
}

// Error implements the error interface.
func (e *EnhancedError) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

// Unwrap supports errors.Is/As chains.
func (e *EnhancedError) Unwrap() error { return e.Err }

// Component returns the subsystem that produced the error.
func (e *EnhancedError) Component() string { return e.component }

// Category returns the failure classification.
func (e *EnhancedError) Category() Category { return e.category }

// Context returns the structured context attached to the error.
func (e *EnhancedError) Context() map[string]any { return e.context }

// Builder assembles an EnhancedError fluently.
type Builder struct {
	err *EnhancedError
}

// New starts building an enhanced error around err.
func New(err error) *Builder {
	return &Builder{err: &EnhancedError{Err: err, category: CategoryGeneric}}
}

// Newf starts building an enhanced error from a format string.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

// Component records the subsystem that produced the error.
func (b *Builder) Component(name string) *Builder {
	b.err.component = name
	return b
}

// Category records the failure classification.
func (b *Builder) Category(c Category) *Builder {
	b.err.category = c
	return b
}

// Context attaches a key/value pair for telemetry.
func (b *Builder) Context(key string, value any) *Builder {
	if b.err.context == nil {
		b.err.context = make(map[string]any)
	}
	b.err.context[key] = value
	return b
}

// Build finalizes the error and reports it to telemetry if enabled.
func (b *Builder) Build() error {
	capture(b.err)
	return b.err
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain matching target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join wraps stdlib errors.Join.
func Join(errs ...error) error { return stderrors.Join(errs...) }

// NewStd creates a plain sentinel error without classification.
func NewStd(text string) error { return stderrors.New(text) }

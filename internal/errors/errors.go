package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// Error types for the failure categories of the tracker
type ErrorType string

const (
	// ErrorTypeExhaustion: the underlying allocator could not satisfy a request.
	ErrorTypeExhaustion ErrorType = "exhaustion"

	// ErrorTypeConsistency: a release that does not match any live record.
	// Never recoverable locally.
	ErrorTypeConsistency ErrorType = "consistency"

	// ErrorTypeEnrichment: deferred enrichment found no record for the address.
	ErrorTypeEnrichment ErrorType = "enrichment"

	// ErrorTypeTypeResolution: the runtime type name could not be resolved.
	ErrorTypeTypeResolution ErrorType = "type_resolution"

	// ErrorTypeLifecycle: an operation issued in a state that forbids it.
	ErrorTypeLifecycle ErrorType = "lifecycle"

	ErrorTypeConfiguration ErrorType = "configuration"
)

// StructuredError provides rich error context
type StructuredError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]interface{}
	Stack     []uintptr
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Operation, e.Message)
}

// Unwrap returns the underlying cause
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Fatal reports whether the error must terminate the host operation.
func (e *StructuredError) Fatal() bool {
	return e.Type == ErrorTypeConsistency
}

// New creates a new structured error
func New(errType ErrorType, operation, message string) *StructuredError {
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, operation, message string) *StructuredError {
	if err == nil {
		return nil
	}

	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
	}
}

// WithContext adds context information to an error
func (e *StructuredError) WithContext(key string, value interface{}) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsType reports whether any error in err's chain is a StructuredError of the given type.
func IsType(err error, errType ErrorType) bool {
	var se *StructuredError
	if !stderrors.As(err, &se) {
		return false
	}
	return se.Type == errType
}

// captureStack captures the current stack trace
func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // Skip runtime.Callers, captureStack and the constructor
	return pcs[:n]
}

// NewExhaustionError creates an allocation-exhaustion error
func NewExhaustionError(operation, message string) *StructuredError {
	return New(ErrorTypeExhaustion, operation, message)
}

// WrapExhaustionError wraps an error raised by the underlying allocator
func WrapExhaustionError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeExhaustion, operation, message)
}

// NewConsistencyError creates an internal-consistency violation
func NewConsistencyError(operation, message string) *StructuredError {
	return New(ErrorTypeConsistency, operation, message)
}

// NewEnrichmentError creates an enrichment-miss error
func NewEnrichmentError(operation, message string) *StructuredError {
	return New(ErrorTypeEnrichment, operation, message)
}

// NewTypeResolutionError creates a type-resolution error
func NewTypeResolutionError(operation, message string) *StructuredError {
	return New(ErrorTypeTypeResolution, operation, message)
}

// NewLifecycleError creates a lifecycle error
func NewLifecycleError(operation, message string) *StructuredError {
	return New(ErrorTypeLifecycle, operation, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(operation, message string) *StructuredError {
	return New(ErrorTypeConfiguration, operation, message)
}

// WrapConfigurationError wraps an error as a configuration error
func WrapConfigurationError(err error, operation, message string) *StructuredError {
	return Wrap(err, ErrorTypeConfiguration, operation, message)
}

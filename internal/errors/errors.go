package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// ErrorTypeMalformedFilter - structural violation in a filter, projection or option spec
	ErrorTypeMalformedFilter ErrorType = iota
	// ErrorTypeUnsupportedOperator - operator token outside the supported set
	ErrorTypeUnsupportedOperator
	// ErrorTypeNestedPattern - pattern or multi-hop key below the top level
	ErrorTypeNestedPattern
	// ErrorTypeInvalidHopRange - multi-hop bounds out of range
	ErrorTypeInvalidHopRange
	// ErrorTypeUnregisteredEntity - record does not match any registered model
	ErrorTypeUnregisteredEntity
	// Configuration errors - missing or invalid configuration
	ErrorTypeConfig
	// Validation errors - invalid declarations or input data
	ErrorTypeValidation
	// Database errors - failures reported by the execution boundary
	ErrorTypeDatabase
	// Internal errors - unexpected internal state
	ErrorTypeInternal
)

// Severity represents how critical an error is
type Severity int

const (
	// SeverityLow - can continue with degraded functionality
	SeverityLow Severity = iota
	// SeverityMedium - should be addressed but not fatal
	SeverityMedium
	// SeverityHigh - significant issue, aborts the current operation
	SeverityHigh
	// SeverityCritical - must be addressed, stops execution
	SeverityCritical
)

// Sentinels for errors.Is comparisons. Matching is by Type only.
var (
	ErrMalformedFilter     = &Error{Type: ErrorTypeMalformedFilter}
	ErrUnsupportedOperator = &Error{Type: ErrorTypeUnsupportedOperator}
	ErrNestedPattern       = &Error{Type: ErrorTypeNestedPattern}
	ErrInvalidHopRange     = &Error{Type: ErrorTypeInvalidHopRange}
	ErrUnregisteredEntity  = &Error{Type: ErrorTypeUnregisteredEntity}
	ErrConfig              = &Error{Type: ErrorTypeConfig}
	ErrValidation          = &Error{Type: ErrorTypeValidation}
	ErrDatabase            = &Error{Type: ErrorTypeDatabase}
)

// Error represents a structured error with context
type Error struct {
	Type     ErrorType
	Severity Severity
	Message  string
	// Path is the offending key path inside a filter spec, e.g. "$patterns[0].$node.age"
	Path       string
	Cause      error
	Context    map[string]interface{}
	StackTrace string
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithPath sets the key path of the error
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// Is checks if this error matches the target error type
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// IsFatal returns true if this error should stop execution
func (e *Error) IsFatal() bool {
	return e.Severity == SeverityCritical
}

// DetailedString returns a detailed error message with context
func (e *Error) DetailedString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] [%s] %s\n",
		severityString(e.Severity),
		typeString(e.Type),
		e.Message))

	if e.Path != "" {
		sb.WriteString(fmt.Sprintf("Path: %s\n", e.Path))
	}

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("Caused by: %v\n", e.Cause))
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Context:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", k, e.Context[k]))
		}
	}

	if e.StackTrace != "" {
		sb.WriteString(fmt.Sprintf("Stack trace:\n%s\n", e.StackTrace))
	}

	return sb.String()
}

// TypeName returns the stable name of an error type, used as a metric label
func TypeName(t ErrorType) string {
	return typeString(t)
}

func typeString(t ErrorType) string {
	switch t {
	case ErrorTypeMalformedFilter:
		return "MALFORMED_FILTER"
	case ErrorTypeUnsupportedOperator:
		return "UNSUPPORTED_OPERATOR"
	case ErrorTypeNestedPattern:
		return "NESTED_PATTERN_NOT_ALLOWED"
	case ErrorTypeInvalidHopRange:
		return "INVALID_HOP_RANGE"
	case ErrorTypeUnregisteredEntity:
		return "UNREGISTERED_ENTITY"
	case ErrorTypeConfig:
		return "CONFIG"
	case ErrorTypeValidation:
		return "VALIDATION"
	case ErrorTypeDatabase:
		return "DATABASE"
	case ErrorTypeInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

func severityString(s Severity) string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) string {
	var sb strings.Builder
	for i := skip; i < skip+10; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			break
		}
		sb.WriteString(fmt.Sprintf("  %s:%d %s\n", file, line, fn.Name()))
	}
	return sb.String()
}

// New creates a new error with the given type, severity, and message
func New(errType ErrorType, severity Severity, message string) *Error {
	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, severity Severity, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Type:       errType,
		Severity:   severity,
		Message:    message,
		Cause:      err,
		Context:    make(map[string]interface{}),
		StackTrace: captureStackTrace(2),
	}
}

// Compile-time errors. None of them are retryable.

// MalformedFilterf reports a structural violation at path
func MalformedFilterf(path, format string, args ...interface{}) *Error {
	return newAt(ErrorTypeMalformedFilter, path, fmt.Sprintf(format, args...))
}

// UnsupportedOperator reports an unknown operator token at path
func UnsupportedOperator(path, token string) *Error {
	return newAt(ErrorTypeUnsupportedOperator, path, fmt.Sprintf("unsupported operator %q", token)).
		WithContext("operator", token)
}

// NestedPatternNotAllowed reports a structural key below the top level
func NestedPatternNotAllowed(path, key string) *Error {
	return newAt(ErrorTypeNestedPattern, path, fmt.Sprintf("%s is only allowed at the top level of a filter", key))
}

// InvalidHopRangef reports multi-hop bounds out of range
func InvalidHopRangef(path, format string, args ...interface{}) *Error {
	return newAt(ErrorTypeInvalidHopRange, path, fmt.Sprintf(format, args...))
}

// UnregisteredEntityf reports a record with no matching registration
func UnregisteredEntityf(format string, args ...interface{}) *Error {
	return New(ErrorTypeUnregisteredEntity, SeverityHigh, fmt.Sprintf(format, args...))
}

func newAt(errType ErrorType, path, message string) *Error {
	e := &Error{
		Type:     errType,
		Severity: SeverityHigh,
		Message:  message,
		Path:     path,
		Context:  make(map[string]interface{}),
	}
	return e
}

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, SeverityCritical, message)
}

// ConfigErrorf creates a configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeConfig, SeverityCritical, fmt.Sprintf(format, args...))
}

// ValidationError creates a validation error
func ValidationError(message string) *Error {
	return New(ErrorTypeValidation, SeverityHigh, message)
}

// ValidationErrorf creates a validation error with formatting
func ValidationErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeValidation, SeverityHigh, fmt.Sprintf(format, args...))
}

// DatabaseError wraps a database error
func DatabaseError(err error, message string) *Error {
	return Wrap(err, ErrorTypeDatabase, SeverityCritical, message)
}

// DatabaseErrorf wraps a database error with formatting
func DatabaseErrorf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, ErrorTypeDatabase, SeverityCritical, fmt.Sprintf(format, args...))
}

// InternalErrorf creates an internal error with formatting
func InternalErrorf(format string, args ...interface{}) *Error {
	return New(ErrorTypeInternal, SeverityCritical, fmt.Sprintf(format, args...))
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// IsFatal checks if an error is fatal (should stop execution)
func IsFatal(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.IsFatal()
	}
	return false
}

// GetType returns the type of an error
func GetType(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

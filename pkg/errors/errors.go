// Package errors provides structured error handling for gpkgsql.
//
// Errors carry a numeric code, a severity, optional context fields and an
// optional cause. Codes are grouped by the layer that raised them:
//   - 1xxx: Configuration errors
//   - 4xxx: Statement execution errors
//   - 5xxx: Schema introspection errors
//   - 7xxx: Schema change (DDL) errors
//   - 9xxx: Internal errors
//
// Execution errors record the statement text under the "statement" field.
// Bound argument values are never recorded.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Code is a numeric error code for programmatic handling.
type Code int

const (
	// Configuration errors (1xxx)
	ErrCodeConfigInvalid Code = 1001
	ErrCodeConfigParse   Code = 1003

	// Execution errors (4xxx)
	ErrCodeExecFailed  Code = 4001
	ErrCodeExecNoRows  Code = 4002
	ErrCodeExecConvert Code = 4003

	// Schema errors (5xxx)
	ErrCodeSchemaNotFound Code = 5001

	// DDL errors (7xxx)
	ErrCodeValidation    Code = 7001
	ErrCodeUnsupported   Code = 7002
	ErrCodeTransaction   Code = 7003
	ErrCodeDDLInProgress Code = 7004

	// Internal errors (9xxx)
	ErrCodeInternal       Code = 9001
	ErrCodeNotImplemented Code = 9002
)

// String returns the error code as a string.
func (c Code) String() string {
	return fmt.Sprintf("E%04d", c)
}

// Category returns the category for this code.
func (c Code) Category() string {
	switch {
	case c >= 1000 && c < 2000:
		return "configuration"
	case c >= 4000 && c < 5000:
		return "execution"
	case c >= 5000 && c < 6000:
		return "schema"
	case c >= 7000 && c < 8000:
		return "ddl"
	case c >= 9000:
		return "internal"
	default:
		return "unknown"
	}
}

// Severity indicates error severity.
type Severity int

const (
	SeverityWarning  Severity = iota // Recoverable, operation may continue
	SeverityError                    // Operation failed, connection is healthy
	SeverityCritical                 // Connection state may be degraded
	SeverityFatal                    // Connection state is unknown
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a structured error with code, context, and optional cause.
type Error struct {
	Code     Code
	Message  string
	Severity Severity

	Fields map[string]interface{}

	Cause error

	Stack  []Frame
	Time   time.Time
	OpName string // Operation that failed (e.g. "ddl.DropColumn")
}

// Frame represents a stack frame.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface.
func (e *Error) Error() string {
	var buf strings.Builder

	buf.WriteString(e.Code.String())
	buf.WriteString(": ")
	buf.WriteString(e.Message)

	if e.Cause != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Cause.Error())
	}

	return buf.String()
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Statement returns the statement text attached to the error, if any.
func (e *Error) Statement() string {
	if s, ok := e.Fields["statement"].(string); ok {
		return s
	}
	return ""
}

// Format implements fmt.Formatter. %+v prints operation, context, cause
// and stack.
func (e *Error) Format(f fmt.State, verb rune) {
	switch verb {
	case 'v':
		if f.Flag('+') {
			fmt.Fprintf(f, "%s [%s] %s: %s\n",
				e.Time.Format(time.RFC3339),
				e.Severity,
				e.Code.String(),
				e.Message)

			if e.OpName != "" {
				fmt.Fprintf(f, "  Operation: %s\n", e.OpName)
			}

			if len(e.Fields) > 0 {
				fmt.Fprintf(f, "  Context:\n")
				for k, v := range e.Fields {
					fmt.Fprintf(f, "    %s: %v\n", k, v)
				}
			}

			if e.Cause != nil {
				fmt.Fprintf(f, "  Caused by: %v\n", e.Cause)
			}

			if len(e.Stack) > 0 {
				fmt.Fprintf(f, "  Stack:\n")
				for _, frame := range e.Stack {
					fmt.Fprintf(f, "    %s\n      %s:%d\n",
						frame.Function, frame.File, frame.Line)
				}
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(f, e.Error())
	case 'q':
		fmt.Fprintf(f, "%q", e.Error())
	}
}

// Builder helps construct errors fluently.
type Builder struct {
	code     Code
	message  string
	severity Severity
	cause    error
	fields   map[string]interface{}
	op       string
	stack    bool
}

// New starts building a new error with the given code.
func New(code Code, message string) *Builder {
	return &Builder{
		code:     code,
		message:  message,
		severity: SeverityError,
	}
}

// Newf starts building a new error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Builder {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code Code, message string) *Builder {
	b := New(code, message)
	b.cause = cause
	return b
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(cause error, code Code, format string, args ...interface{}) *Builder {
	return Wrap(cause, code, fmt.Sprintf(format, args...))
}

// Severity sets the error severity.
func (b *Builder) Severity(s Severity) *Builder {
	b.severity = s
	return b
}

// Fatal sets severity to fatal.
func (b *Builder) Fatal() *Builder {
	b.severity = SeverityFatal
	return b
}

// WithField adds a context field.
func (b *Builder) WithField(key string, value interface{}) *Builder {
	if b.fields == nil {
		b.fields = make(map[string]interface{})
	}
	b.fields[key] = value
	return b
}

// WithOp sets the operation name.
func (b *Builder) WithOp(op string) *Builder {
	b.op = op
	return b
}

// WithStack captures a stack trace.
func (b *Builder) WithStack() *Builder {
	b.stack = true
	return b
}

// Build creates the Error.
func (b *Builder) Build() *Error {
	e := &Error{
		Code:     b.code,
		Message:  b.message,
		Severity: b.severity,
		Cause:    b.cause,
		Fields:   b.fields,
		OpName:   b.op,
		Time:     time.Now(),
	}

	if b.stack {
		e.Stack = captureStack(2)
	}

	return e
}

// Err is a shorthand for Build() that returns the error interface.
func (b *Builder) Err() error {
	return b.Build()
}

func captureStack(skip int) []Frame {
	var frames []Frame
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)

	callersFrames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := callersFrames.Next()
		if !more {
			break
		}
		if strings.Contains(frame.Function, "runtime.") {
			continue
		}
		frames = append(frames, Frame{
			Function: frame.Function,
			File:     frame.File,
			Line:     frame.Line,
		})
		if len(frames) >= 10 {
			break
		}
	}

	return frames
}

// Constructors for the error taxonomy

// Execution wraps an engine failure. The statement text is kept, the
// bound arguments are not.
func Execution(statement string, cause error) *Builder {
	return Wrap(cause, ErrCodeExecFailed, "failed to execute statement").
		WithField("statement", statement)
}

// Validation reports bad input: a malformed statement or an unknown
// table or column.
func Validation(format string, args ...interface{}) *Builder {
	return Newf(ErrCodeValidation, format, args...)
}

// Unsupported reports a request that is well formed but cannot be
// emulated, such as dropping a primary key column.
func Unsupported(format string, args ...interface{}) *Builder {
	return Newf(ErrCodeUnsupported, format, args...)
}

// Transaction reports a commit, rollback or autocommit restore failure.
// These are fatal: the connection state afterwards is unknown.
func Transaction(cause error, format string, args ...interface{}) *Builder {
	return Wrapf(cause, ErrCodeTransaction, format, args...).Fatal()
}

// SchemaNotFound reports a table missing from the live schema.
func SchemaNotFound(table string) *Builder {
	return Newf(ErrCodeSchemaNotFound, "table not found: %s", table).
		WithField("table", table)
}

// NotImplemented creates a "not implemented" error.
func NotImplemented(feature string) *Builder {
	return Newf(ErrCodeNotImplemented, "%s not yet implemented", feature).
		WithField("feature", feature)
}

// Internal creates an internal error (for unexpected conditions).
func Internal(msg string) *Builder {
	return New(ErrCodeInternal, msg).Severity(SeverityCritical).WithStack()
}

// Extraction helpers

// GetCode extracts the error code from an error, or returns ErrCodeInternal.
// The outermost coded error in the chain wins.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// GetSeverity extracts the severity from an error.
func GetSeverity(err error) Severity {
	var e *Error
	if errors.As(err, &e) {
		return e.Severity
	}
	return SeverityError
}

// HasCode reports whether any coded error in err's chain, including
// joined errors, carries code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) && e.Code == code {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if HasCode(inner, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return HasCode(x.Unwrap(), code)
	}
	return false
}

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, category string) bool {
	return GetCode(err).Category() == category
}

// IsSevere checks if an error is critical or fatal.
func IsSevere(err error) bool {
	return GetSeverity(err) >= SeverityCritical
}

func IsExecution(err error) bool   { return HasCode(err, ErrCodeExecFailed) }
func IsValidation(err error) bool  { return HasCode(err, ErrCodeValidation) }
func IsUnsupported(err error) bool { return HasCode(err, ErrCodeUnsupported) }
func IsTransaction(err error) bool { return HasCode(err, ErrCodeTransaction) }
func IsSchema(err error) bool      { return HasCode(err, ErrCodeSchemaNotFound) }

// Standard library compatibility

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join combines multiple errors.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

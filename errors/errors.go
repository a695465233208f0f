package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in a bridge call the error occurred
type Phase string

const (
	PhaseMarshal   Phase = "marshal"   // native args to managed call frame
	PhaseInvoke    Phase = "invoke"    // inside the managed runtime
	PhaseUnmarshal Phase = "unmarshal" // managed returns to native tensors
	PhaseRegistry  Phase = "registry"  // function pool operations
	PhaseRuntime   Phase = "runtime"   // managed runtime implementation
	PhaseConvert   Phase = "convert"   // tensor dtype conversion
)

// Kind categorizes the error
type Kind string

const (
	KindArgumentLayout   Kind = "argument_layout"
	KindInvocation       Kind = "invocation"
	KindResultConversion Kind = "result_conversion"
	KindStaleContext     Kind = "stale_context"
	KindNotFound         Kind = "not_found"
	KindDuplicate        Kind = "duplicate"
	KindInvalidHandle    Kind = "invalid_handle"
	KindInvalidInput     Kind = "invalid_input"
	KindTypeMismatch     Kind = "type_mismatch"
	KindUnsupported      Kind = "unsupported"
	KindClosed           Kind = "closed"
	KindShapeMismatch    Kind = "shape_mismatch"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Func     string
	InvokeID string
	Detail   string
	Index    int // positional slot index, -1 when not applicable
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Func != "" {
		b.WriteString(": func ")
		b.WriteString(e.Func)
	}
	if e.Index >= 0 {
		b.WriteString(fmt.Sprintf(" at position %d", e.Index))
	}
	if e.InvokeID != "" {
		b.WriteString(" (invoke ")
		b.WriteString(e.InvokeID)
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
			Index: -1,
		},
	}
}

// Func sets the target function name
func (b *Builder) Func(name string) *Builder {
	b.err.Func = name
	return b
}

// InvokeID sets the call correlation id
func (b *Builder) InvokeID(id string) *Builder {
	b.err.InvokeID = id
	return b
}

// Index sets the positional slot index
func (b *Builder) Index(i int) *Builder {
	b.err.Index = i
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// ArgumentLayout creates a malformed index partition error. It is always
// detected locally, before any cross-boundary call.
func ArgumentLayout(funcName, invokeID, detail string) *Error {
	return &Error{
		Phase:    PhaseMarshal,
		Kind:     KindArgumentLayout,
		Func:     funcName,
		InvokeID: invokeID,
		Detail:   detail,
		Index:    -1,
	}
}

// Invocation creates an error for a managed target that reported failure.
func Invocation(funcName, invokeID string, cause error) *Error {
	return &Error{
		Phase:    PhaseInvoke,
		Kind:     KindInvocation,
		Func:     funcName,
		InvokeID: invokeID,
		Cause:    cause,
		Index:    -1,
	}
}

// ResultConversion creates an error for a return value that could not be
// converted to a native tensor, naming the positional index.
func ResultConversion(funcName, invokeID string, index int, cause error) *Error {
	return &Error{
		Phase:    PhaseUnmarshal,
		Kind:     KindResultConversion,
		Func:     funcName,
		InvokeID: invokeID,
		Index:    index,
		Cause:    cause,
	}
}

// StaleContext creates an error for a differentiation context that was never
// produced by a forward call or was already consumed by a prior backward.
func StaleContext(detail string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindStaleContext,
		Detail: detail,
		Index:  -1,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
		Index:  -1,
	}
}

// Duplicate creates a duplicate registration error
func Duplicate(what, name string) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindDuplicate,
		Detail: fmt.Sprintf("%s %q already registered", what, name),
		Index:  -1,
	}
}

// InvalidHandle creates an error for a handle that does not reference a live
// managed object.
func InvalidHandle(phase Phase, handle uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("handle %d does not reference a live object", handle),
		Value:  handle,
		Index:  -1,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
		Index:  -1,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Detail: detail,
		Index:  -1,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
		Index:  -1,
	}
}

// Closed creates an error for operations on a closed component
func Closed(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", component),
		Index:  -1,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
		Index:  -1,
	}
}

// Package errors provides structured error types for the torch-bridge library.
//
// Errors are categorized by Phase (where in a call the error occurred) and
// Kind (error category). The Error type carries call context: target function
// name, invoke id, and the positional slot index involved.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindArgumentLayout).
//		Func("MyCustomFn").
//		InvokeID(id).
//		Detail("position 3 claimed by both tensor and object indices").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Invocation("MyCustomFn", id, cause)
//	err := errors.ResultConversion("MyCustomFn", id, 2, cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors

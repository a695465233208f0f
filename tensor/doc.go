// Package tensor provides the native tensor value container crossing the
// bridge boundary.
//
// A Value is an opaque container: a dtype, a shape and flat little-endian
// storage. The package performs no tensor arithmetic; it only supports the
// conversions a managed runtime needs to build its array objects from native
// values and back.
//
// # Absence
//
// Positional argument slots are optional. An absent slot is a nil *Value;
// the bridge marshals it as the managed runtime's "no value" sentinel, never
// as a zero tensor.
//
// # Conversion
//
// Elementwise widening to float64 and back is provided for runtimes whose
// kernels compute in floating point:
//
//	vals, err := v.Float64s()
//	out, err := tensor.FromFloat64s(v.DType(), v.Shape(), result)
//
// Float16 and BFloat16 storage round-trips through their 16-bit encodings;
// re-encoding from float64 rounds to nearest representable value.
package tensor

package tensor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/wippyai/torch-bridge/errors"
)

// Value is a native tensor value: dtype, shape and flat storage in
// little-endian element order. The zero Value is not usable; construct
// through NewValue or the From* helpers. A nil *Value marks an absent
// argument or return slot.
type Value struct {
	data  []byte
	shape []int64
	dtype DType
}

// NewValue constructs a Value over raw little-endian storage. The data
// length must match the shape's element count times the dtype size.
func NewValue(dtype DType, shape []int64, data []byte) (*Value, error) {
	n, err := elemCount(shape)
	if err != nil {
		return nil, err
	}
	if dtype.Size() == 0 {
		return nil, errors.InvalidInput(errors.PhaseConvert, "invalid dtype")
	}
	if want := n * dtype.Size(); len(data) != want {
		return nil, errors.New(errors.PhaseConvert, errors.KindShapeMismatch).
			Detail("storage is %d bytes, shape %v of %s needs %d", len(data), shape, dtype, want).
			Build()
	}
	return &Value{
		dtype: dtype,
		shape: append([]int64(nil), shape...),
		data:  append([]byte(nil), data...),
	}, nil
}

// Zeros constructs a zero-filled Value.
func Zeros(dtype DType, shape []int64) (*Value, error) {
	n, err := elemCount(shape)
	if err != nil {
		return nil, err
	}
	if dtype.Size() == 0 {
		return nil, errors.InvalidInput(errors.PhaseConvert, "invalid dtype")
	}
	return &Value{
		dtype: dtype,
		shape: append([]int64(nil), shape...),
		data:  make([]byte, n*dtype.Size()),
	}, nil
}

// FromFloat32s constructs a float32 Value from a typed slice.
func FromFloat32s(shape []int64, vals []float32) (*Value, error) {
	data := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return NewValue(DTypeFloat32, shape, data)
}

// FromFloat64s constructs a Value of the requested dtype from float64
// elements. Float16 and BFloat16 round to nearest representable value;
// integer dtypes truncate toward zero. Bool is not constructible this way.
func FromFloat64s(dtype DType, shape []int64, vals []float64) (*Value, error) {
	if !dtype.Numeric() {
		return nil, errors.TypeMismatch(errors.PhaseConvert, fmt.Sprintf("cannot encode float64 elements as %s", dtype))
	}
	data := make([]byte, len(vals)*dtype.Size())
	for i, v := range vals {
		switch dtype {
		case DTypeFloat32:
			binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(float32(v)))
		case DTypeFloat64:
			binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(v))
		case DTypeFloat16:
			binary.LittleEndian.PutUint16(data[i*2:], float16.Fromfloat32(float32(v)).Bits())
		case DTypeBFloat16:
			binary.LittleEndian.PutUint16(data[i*2:], uint16(bfloat16.FromFloat32(float32(v))))
		case DTypeInt32:
			binary.LittleEndian.PutUint32(data[i*4:], uint32(int32(v)))
		case DTypeInt64:
			binary.LittleEndian.PutUint64(data[i*8:], uint64(int64(v)))
		}
	}
	return NewValue(dtype, shape, data)
}

// FromInt64s constructs an int64 Value from a typed slice.
func FromInt64s(shape []int64, vals []int64) (*Value, error) {
	data := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(data[i*8:], uint64(v))
	}
	return NewValue(DTypeInt64, shape, data)
}

// FromBools constructs a bool Value from a typed slice.
func FromBools(shape []int64, vals []bool) (*Value, error) {
	data := make([]byte, len(vals))
	for i, v := range vals {
		if v {
			data[i] = 1
		}
	}
	return NewValue(DTypeBool, shape, data)
}

// DType returns the element type.
func (v *Value) DType() DType {
	return v.dtype
}

// Shape returns a copy of the shape. An empty shape is a scalar.
func (v *Value) Shape() []int64 {
	return append([]int64(nil), v.shape...)
}

// ElemCount returns the number of elements.
func (v *Value) ElemCount() int {
	n, _ := elemCount(v.shape)
	return n
}

// Bytes returns a copy of the raw storage.
func (v *Value) Bytes() []byte {
	return append([]byte(nil), v.data...)
}

// Clone returns an independent deep copy.
func (v *Value) Clone() *Value {
	if v == nil {
		return nil
	}
	return &Value{
		dtype: v.dtype,
		shape: append([]int64(nil), v.shape...),
		data:  append([]byte(nil), v.data...),
	}
}

// Float64s widens the elements to float64. Fails for non-numeric dtypes.
// Int64 elements beyond 2^53 lose precision.
func (v *Value) Float64s() ([]float64, error) {
	if !v.dtype.Numeric() {
		return nil, errors.TypeMismatch(errors.PhaseConvert, fmt.Sprintf("cannot widen %s elements to float64", v.dtype))
	}
	n := v.ElemCount()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		switch v.dtype {
		case DTypeFloat32:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(v.data[i*4:])))
		case DTypeFloat64:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(v.data[i*8:]))
		case DTypeFloat16:
			out[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(v.data[i*2:])).Float32())
		case DTypeBFloat16:
			out[i] = float64(bfloat16.ToFloat32(bfloat16.BF16(binary.LittleEndian.Uint16(v.data[i*2:]))))
		case DTypeInt32:
			out[i] = float64(int32(binary.LittleEndian.Uint32(v.data[i*4:])))
		case DTypeInt64:
			out[i] = float64(int64(binary.LittleEndian.Uint64(v.data[i*8:])))
		}
	}
	return out, nil
}

// Float32s widens the elements to float32. Fails for non-numeric dtypes.
func (v *Value) Float32s() ([]float32, error) {
	f64s, err := v.Float64s()
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(f64s))
	for i, f := range f64s {
		out[i] = float32(f)
	}
	return out, nil
}

// Equal reports whether two values have identical dtype, shape and storage.
// Two nil values are equal.
func Equal(a, b *Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.dtype != b.dtype || len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return bytes.Equal(a.data, b.data)
}

func (v *Value) String() string {
	if v == nil {
		return "<absent>"
	}
	dims := make([]string, len(v.shape))
	for i, d := range v.shape {
		dims[i] = fmt.Sprintf("%d", d)
	}
	return fmt.Sprintf("%s[%s]", v.dtype, strings.Join(dims, "x"))
}

// elemCount returns the element count for a shape. An empty shape is a
// scalar with one element.
func elemCount(shape []int64) (int, error) {
	n := int64(1)
	for _, d := range shape {
		if d < 0 {
			return 0, errors.New(errors.PhaseConvert, errors.KindShapeMismatch).
				Detail("negative dimension %d in shape %v", d, shape).
				Build()
		}
		n *= d
	}
	return int(n), nil
}

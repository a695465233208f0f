package tensor

// DType identifies the element type of a Value.
type DType uint8

const (
	DTypeInvalid DType = iota
	DTypeFloat32
	DTypeFloat64
	DTypeFloat16
	DTypeBFloat16
	DTypeInt32
	DTypeInt64
	DTypeBool
)

// Size returns the storage size of one element in bytes.
func (d DType) Size() int {
	switch d {
	case DTypeFloat32, DTypeInt32:
		return 4
	case DTypeFloat64, DTypeInt64:
		return 8
	case DTypeFloat16, DTypeBFloat16:
		return 2
	case DTypeBool:
		return 1
	default:
		return 0
	}
}

// Numeric reports whether elements of this dtype convert to float64.
func (d DType) Numeric() bool {
	switch d {
	case DTypeFloat32, DTypeFloat64, DTypeFloat16, DTypeBFloat16, DTypeInt32, DTypeInt64:
		return true
	default:
		return false
	}
}

func (d DType) String() string {
	switch d {
	case DTypeFloat32:
		return "float32"
	case DTypeFloat64:
		return "float64"
	case DTypeFloat16:
		return "float16"
	case DTypeBFloat16:
		return "bfloat16"
	case DTypeInt32:
		return "int32"
	case DTypeInt64:
		return "int64"
	case DTypeBool:
		return "bool"
	default:
		return "invalid"
	}
}

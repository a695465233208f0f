package tensor

import (
	"errors"
	"testing"

	bridgeerrors "github.com/wippyai/torch-bridge/errors"
)

func TestNewValue_SizeCheck(t *testing.T) {
	_, err := NewValue(DTypeFloat32, []int64{2, 2}, make([]byte, 16))
	if err != nil {
		t.Fatalf("valid construction failed: %v", err)
	}

	_, err = NewValue(DTypeFloat32, []int64{2, 2}, make([]byte, 12))
	if err == nil {
		t.Fatal("expected size mismatch error")
	}
	if !errors.Is(err, &bridgeerrors.Error{Phase: bridgeerrors.PhaseConvert, Kind: bridgeerrors.KindShapeMismatch}) {
		t.Fatalf("wrong error: %v", err)
	}
}

func TestNewValue_NegativeDim(t *testing.T) {
	_, err := NewValue(DTypeFloat32, []int64{2, -1}, nil)
	if err == nil {
		t.Fatal("expected error for negative dimension")
	}
}

func TestValue_Scalar(t *testing.T) {
	v, err := FromFloat32s(nil, []float32{3.5})
	if err != nil {
		t.Fatalf("scalar construction failed: %v", err)
	}
	if v.ElemCount() != 1 {
		t.Fatalf("scalar should have 1 element, got %d", v.ElemCount())
	}
	if len(v.Shape()) != 0 {
		t.Fatalf("scalar shape should be empty, got %v", v.Shape())
	}
}

func TestValue_Float64sRoundTrip(t *testing.T) {
	// Values exactly representable in float16 and bfloat16.
	vals := []float64{0, 0.5, 1.5, -2, 3}

	for _, dtype := range []DType{DTypeFloat32, DTypeFloat64, DTypeFloat16, DTypeBFloat16, DTypeInt32, DTypeInt64} {
		v, err := FromFloat64s(dtype, []int64{5}, vals)
		if err != nil {
			t.Fatalf("%s: encode failed: %v", dtype, err)
		}
		got, err := v.Float64s()
		if err != nil {
			t.Fatalf("%s: decode failed: %v", dtype, err)
		}
		for i := range vals {
			want := vals[i]
			if dtype == DTypeInt32 || dtype == DTypeInt64 {
				want = float64(int64(vals[i]))
			}
			if got[i] != want {
				t.Fatalf("%s: element %d: got %v, want %v", dtype, i, got[i], want)
			}
		}
	}
}

func TestValue_Float64sRejectsBool(t *testing.T) {
	v, err := FromBools([]int64{2}, []bool{true, false})
	if err != nil {
		t.Fatalf("bool construction failed: %v", err)
	}
	if _, err := v.Float64s(); err == nil {
		t.Fatal("expected type mismatch for bool widening")
	}
	if _, err := FromFloat64s(DTypeBool, []int64{1}, []float64{1}); err == nil {
		t.Fatal("expected type mismatch encoding float64 as bool")
	}
}

func TestValue_CloneIndependent(t *testing.T) {
	v, err := FromFloat32s([]int64{2}, []float32{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	c := v.Clone()
	if !Equal(v, c) {
		t.Fatal("clone should equal original")
	}

	// Mutating the clone's storage copy must not affect the original.
	b := c.Bytes()
	b[0] ^= 0xFF
	if !Equal(v, c) {
		t.Fatal("Bytes must return a copy")
	}

	if (*Value)(nil).Clone() != nil {
		t.Fatal("nil clone should stay nil")
	}
}

func TestEqual(t *testing.T) {
	a, _ := FromFloat32s([]int64{2}, []float32{1, 2})
	b, _ := FromFloat32s([]int64{2}, []float32{1, 2})
	c, _ := FromFloat32s([]int64{1, 2}, []float32{1, 2})
	d, _ := FromFloat64s(DTypeFloat64, []int64{2}, []float64{1, 2})

	if !Equal(a, b) {
		t.Error("identical values should be equal")
	}
	if Equal(a, c) {
		t.Error("different shapes should not be equal")
	}
	if Equal(a, d) {
		t.Error("different dtypes should not be equal")
	}
	if !Equal(nil, nil) {
		t.Error("two absent values should be equal")
	}
	if Equal(a, nil) {
		t.Error("present and absent should not be equal")
	}
}

func TestFromInt64s(t *testing.T) {
	v, err := FromInt64s([]int64{3}, []int64{-1, 0, 1 << 40})
	if err != nil {
		t.Fatal(err)
	}
	got, err := v.Float64s()
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != -1 || got[1] != 0 || got[2] != float64(int64(1)<<40) {
		t.Fatalf("unexpected elements: %v", got)
	}
}

func TestValue_String(t *testing.T) {
	v, _ := FromFloat32s([]int64{2, 3}, make([]float32, 6))
	if v.String() != "float32[2x3]" {
		t.Fatalf("unexpected string: %q", v.String())
	}
	if (*Value)(nil).String() != "<absent>" {
		t.Fatalf("nil string: %q", (*Value)(nil).String())
	}
}

func TestDType_Size(t *testing.T) {
	cases := map[DType]int{
		DTypeFloat32:  4,
		DTypeFloat64:  8,
		DTypeFloat16:  2,
		DTypeBFloat16: 2,
		DTypeInt32:    4,
		DTypeInt64:    8,
		DTypeBool:     1,
		DTypeInvalid:  0,
	}
	for d, want := range cases {
		if d.Size() != want {
			t.Errorf("%s: size %d, want %d", d, d.Size(), want)
		}
	}
}

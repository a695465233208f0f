package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseUnmarshal,
				Kind:     KindResultConversion,
				Func:     "MyCustomFn",
				InvokeID: "inv-42",
				Index:    2,
				Detail:   "cannot convert",
			},
			contains: []string{"[unmarshal]", "result_conversion", "MyCustomFn", "position 2", "inv-42", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseMarshal,
				Kind:  KindArgumentLayout,
				Index: -1,
			},
			contains: []string{"[marshal]", "argument_layout"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseInvoke,
				Kind:   KindInvocation,
				Func:   "FailFn",
				Detail: "target raised",
				Cause:  errors.New("underlying error"),
				Index:  -1,
			},
			contains: []string{"[invoke]", "invocation", "FailFn", "target raised", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Invocation("Fn", "inv-1", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(error(err)), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseMarshal,
		Kind:  KindArgumentLayout,
		Func:  "Fn",
		Index: -1,
	}

	if !err.Is(&Error{Phase: PhaseMarshal, Kind: KindArgumentLayout}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseInvoke, Kind: KindArgumentLayout}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseMarshal, Kind: KindInvalidInput}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseMarshal, Kind: KindArgumentLayout}
	if !errors.Is(error(err), error(target)) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("boom")
	err := New(PhaseInvoke, KindInvocation).
		Func("SquareFn").
		InvokeID("inv-7").
		Index(1).
		Value(uint64(99)).
		Cause(cause).
		Detail("target %s failed", "SquareFn").
		Build()

	if err.Phase != PhaseInvoke || err.Kind != KindInvocation {
		t.Fatalf("wrong phase/kind: %v/%v", err.Phase, err.Kind)
	}
	if err.Func != "SquareFn" || err.InvokeID != "inv-7" || err.Index != 1 {
		t.Fatalf("wrong call context: %+v", err)
	}
	if err.Value != uint64(99) {
		t.Fatalf("wrong value: %v", err.Value)
	}
	if !errors.Is(err, cause) {
		t.Error("builder error should wrap cause")
	}
	if err.Detail != "target SquareFn failed" {
		t.Fatalf("Detail formatting failed: %q", err.Detail)
	}
}

func TestBuilder_DefaultIndex(t *testing.T) {
	err := New(PhaseMarshal, KindArgumentLayout).Build()
	if err.Index != -1 {
		t.Fatalf("expected default index -1, got %d", err.Index)
	}
	if strings.Contains(err.Error(), "position") {
		t.Errorf("unset index should not render: %q", err.Error())
	}
}

func TestConvenienceConstructors(t *testing.T) {
	if err := ArgumentLayout("Fn", "inv-1", "gap at 2"); err.Kind != KindArgumentLayout || err.Phase != PhaseMarshal {
		t.Error("ArgumentLayout wrong phase/kind")
	}
	if err := StaleContext("ctx consumed"); err.Kind != KindStaleContext {
		t.Error("StaleContext wrong kind")
	}
	if err := NotFound(PhaseRegistry, "function", "Sqare"); !strings.Contains(err.Error(), `"Sqare"`) {
		t.Errorf("NotFound should quote name: %q", err.Error())
	}
	if err := Duplicate("function", "Square"); err.Kind != KindDuplicate {
		t.Error("Duplicate wrong kind")
	}
	if err := InvalidHandle(PhaseRuntime, 7); err.Value != uint64(7) {
		t.Error("InvalidHandle should carry handle value")
	}
	if err := Closed(PhaseRuntime, "runtime"); !strings.Contains(err.Error(), "closed") {
		t.Error("Closed should mention closed")
	}

	rc := ResultConversion("Fn", "inv-9", 3, errors.New("bad dtype"))
	if rc.Index != 3 || rc.InvokeID != "inv-9" {
		t.Fatalf("ResultConversion context wrong: %+v", rc)
	}
}

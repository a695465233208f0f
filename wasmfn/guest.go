package wasmfn

import (
	"bytes"
	"encoding/binary"
	"math"
)

// The guest module is assembled by hand: type, function, export and code
// sections around a handful of scalar f64 kernels. Each kernel exports a
// forward entry "name" and a gradient entry "name_grad".

const (
	opLocalGet = 0x20
	opF64Const = 0x44
	opF64Gt    = 0x64
	opSelect   = 0x1b
	opF64Add   = 0xa0
	opF64Mul   = 0xa2
	opF64Max   = 0xa5
	opEnd      = 0x0b

	valF64 = 0x7c
)

type kernelDef struct {
	name   string
	params int
	body   []byte
}

// guestKernels lists the kernels the guest module exports. Forward
// entries take (x); gradient entries take (x, g) where g is the output
// gradient.
func guestKernels() []kernelDef {
	return []kernelDef{
		{"square", 1, []byte{
			opLocalGet, 0,
			opLocalGet, 0,
			opF64Mul,
			opEnd,
		}},
		// d/dx x*x = 2*x*g
		{"square_grad", 2, append(append([]byte{
			opF64Const}, f64const(2)...), []byte{
			opLocalGet, 0,
			opF64Mul,
			opLocalGet, 1,
			opF64Mul,
			opEnd,
		}...)},
		{"relu", 1, append(append([]byte{
			opLocalGet, 0,
			opF64Const}, f64const(0)...), []byte{
			opF64Max,
			opEnd,
		}...)},
		// g where x > 0, else 0
		{"relu_grad", 2, append(append(append(append([]byte{
			opLocalGet, 1,
			opF64Const}, f64const(0)...), []byte{
			opLocalGet, 0,
			opF64Const}...), f64const(0)...), []byte{
			opF64Gt,
			opSelect,
			opEnd,
		}...)},
	}
}

// GuestModule assembles the wasm binary hosting the scalar kernels.
func GuestModule() []byte {
	kernels := guestKernels()

	// Two function types: (f64) -> f64 and (f64, f64) -> f64.
	var types bytes.Buffer
	uleb(&types, 2)
	for _, arity := range []int{1, 2} {
		types.WriteByte(0x60)
		uleb(&types, uint64(arity))
		for i := 0; i < arity; i++ {
			types.WriteByte(valF64)
		}
		uleb(&types, 1)
		types.WriteByte(valF64)
	}

	var funcs bytes.Buffer
	uleb(&funcs, uint64(len(kernels)))
	for _, k := range kernels {
		uleb(&funcs, uint64(k.params-1)) // type index 0 or 1
	}

	var exports bytes.Buffer
	uleb(&exports, uint64(len(kernels)))
	for i, k := range kernels {
		uleb(&exports, uint64(len(k.name)))
		exports.WriteString(k.name)
		exports.WriteByte(0x00) // func export
		uleb(&exports, uint64(i))
	}

	var code bytes.Buffer
	uleb(&code, uint64(len(kernels)))
	for _, k := range kernels {
		uleb(&code, uint64(len(k.body)+1))
		code.WriteByte(0x00) // no locals
		code.Write(k.body)
	}

	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})
	section(&out, 1, types.Bytes())
	section(&out, 3, funcs.Bytes())
	section(&out, 7, exports.Bytes())
	section(&out, 10, code.Bytes())
	return out.Bytes()
}

func section(out *bytes.Buffer, id byte, content []byte) {
	out.WriteByte(id)
	uleb(out, uint64(len(content)))
	out.Write(content)
}

func uleb(out *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func f64const(v float64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	return b[:]
}

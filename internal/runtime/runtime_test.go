// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runtime

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/stackvm/internal/hostio"
	"github.com/dotandev/stackvm/internal/leb"
	"github.com/dotandev/stackvm/internal/wasm"
)

func defaultOpts() Options {
	return Options{StrictIndirectCallTypes: true}
}

// TestStoreConstant covers a "store 42" scenario: a
// function that writes the constant 42 to memory offset 0 as an i32.
func TestStoreConstant(t *testing.T) {
	mb := &moduleBuilder{hasMemory: true, memoryMin: 1}
	mb.addFunc("run", funcSpec{
		body: append(
			append([]byte{byte(wasm.OpI32Const), 0}, // addr 0
				byte(wasm.OpI32Const), 42),
			byte(wasm.OpI32Store), 2, 0, // align, offset
		),
	})
	rt := mustInstantiate(t, mb.build(), defaultOpts())
	require.NoError(t, rt.Run(context.Background(), "run"))
	assert.EqualValues(t, 42, int32(rt.Memory[0])|int32(rt.Memory[1])<<8|int32(rt.Memory[2])<<16|int32(rt.Memory[3])<<24)
}

// TestAdd covers a "10+5=15" scenario.
func TestAdd(t *testing.T) {
	mb := &moduleBuilder{}
	mb.addFunc("run", funcSpec{
		results: []wasm.ValueType{wasm.ValTypeI32},
		body: []byte{
			byte(wasm.OpI32Const), 10,
			byte(wasm.OpI32Const), 5,
			byte(wasm.OpI32Add),
		},
	})
	rt := mustInstantiate(t, mb.build(), defaultOpts())
	require.NoError(t, rt.Run(context.Background(), "run"))
	require.Len(t, rt.Stack, 1)
	assert.Equal(t, int32(15), rt.Stack[0].I32())
}

// TestCtz covers ctz(0x38)=3.
func TestCtz(t *testing.T) {
	mb := &moduleBuilder{}
	mb.addFunc("run", funcSpec{
		results: []wasm.ValueType{wasm.ValTypeI32},
		body: []byte{
			byte(wasm.OpI32Const), 0x38,
			byte(wasm.OpI32Ctz),
		},
	})
	rt := mustInstantiate(t, mb.build(), defaultOpts())
	require.NoError(t, rt.Run(context.Background(), "run"))
	assert.Equal(t, int32(3), rt.Stack[0].I32())
}

// TestPopcnt covers popcnt(0xFFFFFFFF)=32.
func TestPopcnt(t *testing.T) {
	mb := &moduleBuilder{}
	mb.addFunc("run", funcSpec{
		results: []wasm.ValueType{wasm.ValTypeI32},
		body: append([]byte{byte(wasm.OpI32Const)},
			append(encodeS32(-1), byte(wasm.OpI32Popcnt))...),
	})
	rt := mustInstantiate(t, mb.build(), defaultOpts())
	require.NoError(t, rt.Run(context.Background(), "run"))
	assert.Equal(t, int32(32), rt.Stack[0].I32())
}

// TestSignedShiftRight covers -16>>2=0xFFFFFFFC.
func TestSignedShiftRight(t *testing.T) {
	mb := &moduleBuilder{}
	mb.addFunc("run", funcSpec{
		results: []wasm.ValueType{wasm.ValTypeI32},
		body: append(
			append([]byte{byte(wasm.OpI32Const)}, encodeS32(-16)...),
			append([]byte{byte(wasm.OpI32Const), 2}, byte(wasm.OpI32ShrS))...,
		),
	})
	rt := mustInstantiate(t, mb.build(), defaultOpts())
	require.NoError(t, rt.Run(context.Background(), "run"))
	assert.Equal(t, uint32(0xFFFFFFFC), rt.Stack[0].U32())
}

// TestBrTable covers a br_table scenario: selector 0 -> 100,
// selector 2 -> 102. Three nested blocks; br_table's target list [0,1,2]
// sends selector N to branch depth N, so breaking out of the innermost
// block (depth 0) lands on the code for case 0, and so on outward.
func TestBrTable(t *testing.T) {
	// The i32.const immediates 100, 101 and 102 are signed LEB128 (two bytes each).
	body := []byte{
		byte(wasm.OpBlock), 0x40,
		byte(wasm.OpBlock), 0x40,
		byte(wasm.OpBlock), 0x40,
		byte(wasm.OpLocalGet), 0,
		byte(wasm.OpBrTable), 3, 0, 1, 2, 0, // 3 targets, default doesn't matter
		byte(wasm.OpEnd), // end innermost block: depth 0 lands here
		byte(wasm.OpI32Const), 0xe4, 0x00,
		byte(wasm.OpReturn),
		byte(wasm.OpEnd), // end middle block: depth 1 lands here
		byte(wasm.OpI32Const), 0xe5, 0x00,
		byte(wasm.OpReturn),
		byte(wasm.OpEnd), // end outer block: depth 2 lands here
		byte(wasm.OpI32Const), 0xe6, 0x00,
		byte(wasm.OpReturn),
	}
	mb := &moduleBuilder{}
	mb.addFunc("run", funcSpec{
		params:  []wasm.ValueType{wasm.ValTypeI32},
		results: []wasm.ValueType{wasm.ValTypeI32},
		body:    body,
	})
	mod, err := wasm.Decode(mb.build())
	require.NoError(t, err)

	for _, tc := range []struct {
		selector int32
		want     int32
	}{
		{0, 100},
		{2, 102},
	} {
		rt, err := New(mod, defaultOpts())
		require.NoError(t, err)
		rt.Stack = append(rt.Stack, wasm.I32(tc.selector))
		require.NoError(t, rt.CallByIndex(0))
		require.Len(t, rt.Stack, 1)
		assert.Equal(t, tc.want, rt.Stack[0].I32())
	}
}

// TestIndirectCallTable covers an indirect-call scenario: a
// table of [add, sub, mul, div], index 0 applied to (10,5) = 15, index
// 2 applied to (10,5) = 50.
func TestIndirectCallTable(t *testing.T) {
	bin := wasmBinaryOpsModule(t)
	mod, err := wasm.Decode(bin)
	require.NoError(t, err)

	for _, tc := range []struct {
		index int32
		want  int32
	}{
		{0, 15},
		{2, 50},
	} {
		rt, err := New(mod, defaultOpts())
		require.NoError(t, err)
		idx, err := mod.ExportedFunc("apply")
		require.NoError(t, err)
		rt.Stack = append(rt.Stack, wasm.I32(10), wasm.I32(5), wasm.I32(tc.index))
		require.NoError(t, rt.CallByIndex(idx))
		require.Len(t, rt.Stack, 1)
		assert.Equal(t, tc.want, rt.Stack[0].I32())
	}
}

// wasmBinaryOpsModule builds a table of 4 (i32,i32)->i32 functions
// (add/sub/mul/div_s) plus an "apply(a, b, idx)" function that calls
// through the table via call_indirect.
func wasmBinaryOpsModule(t *testing.T) []byte {
	t.Helper()
	mb := &moduleBuilder{hasTable: true, tableMin: 4, hasElem: true, elemOffset: 0, elemFuncs: []uint32{0, 1, 2, 3}}

	binop := func(op wasm.Op) funcSpec {
		return funcSpec{
			params:  []wasm.ValueType{wasm.ValTypeI32, wasm.ValTypeI32},
			results: []wasm.ValueType{wasm.ValTypeI32},
			body: []byte{
				byte(wasm.OpLocalGet), 0,
				byte(wasm.OpLocalGet), 1,
				byte(op),
			},
		}
	}
	mb.addFunc("", binop(wasm.OpI32Add))
	mb.addFunc("", binop(wasm.OpI32Sub))
	mb.addFunc("", binop(wasm.OpI32Mul))
	mb.addFunc("", binop(wasm.OpI32DivS))

	mb.addFunc("apply", funcSpec{
		params:  []wasm.ValueType{wasm.ValTypeI32, wasm.ValTypeI32, wasm.ValTypeI32},
		results: []wasm.ValueType{wasm.ValTypeI32},
		body: []byte{
			byte(wasm.OpLocalGet), 0,
			byte(wasm.OpLocalGet), 1,
			byte(wasm.OpLocalGet), 2,
			byte(wasm.OpCallIndirect), 0, 0, // type idx 0 (all 4 share signature), table idx 0
		},
	})
	return mb.build()
}

// TestMemoryCopyHello covers a memory.copy "Hello"->offset
// 10 scenario: reading back an i32 at offset 10 after copying yields
// 1819043144 (the little-endian bytes of "Hell").
func TestMemoryCopyHello(t *testing.T) {
	mb := &moduleBuilder{hasMemory: true, memoryMin: 1, hasData: true, dataOffset: 0, dataBytes: []byte("Hello")}
	mb.addFunc("run", funcSpec{
		body: []byte{
			byte(wasm.OpI32Const), 10, // dst
			byte(wasm.OpI32Const), 0, // src
			byte(wasm.OpI32Const), 5, // n
			0xfc, 10, 0, 0, // memory.copy
		},
	})
	rt := mustInstantiate(t, mb.build(), defaultOpts())
	require.NoError(t, rt.Run(context.Background(), "run"))

	v := uint32(rt.Memory[10]) | uint32(rt.Memory[11])<<8 | uint32(rt.Memory[12])<<16 | uint32(rt.Memory[13])<<24
	assert.Equal(t, uint32(1819043144), v)
}

// TestHostCallFdWrite covers a scatter-gather fd_write
// scenario: "Hello World!\n" written in two iovecs totals 14 bytes.
func TestHostCallFdWrite(t *testing.T) {
	msg := []byte("Hello World!\n")
	mb := &moduleBuilder{hasMemory: true, memoryMin: 1, hasData: true, dataOffset: 0, dataBytes: msg}
	mb.addImport("wasi_snapshot_preview1", "fd_write",
		[]wasm.ValueType{wasm.ValTypeI32, wasm.ValTypeI32, wasm.ValTypeI32, wasm.ValTypeI32},
		[]wasm.ValueType{wasm.ValTypeI32})

	// iovec[0] = {base: 0, len: len(msg)} stored at offset 100, iovec[1] =
	// {base: 12, len: 1} (the message's '\n' again) at offset 108; nwritten at 200.
	data := mb.build()
	mod, err := wasm.Decode(data)
	require.NoError(t, err)

	var out bytes.Buffer
	bridge := hostio.NewBridge(mod, hostio.Sink{Stdout: &out})
	rt, err := New(mod, Options{StrictIndirectCallTypes: true, Bridge: bridge})
	require.NoError(t, err)

	putU32(rt.Memory, 100, 0)                  // iovec[0] base
	putU32(rt.Memory, 104, uint32(len(msg)))   // iovec[0] len
	putU32(rt.Memory, 108, uint32(len(msg)-1)) // iovec[1] base
	putU32(rt.Memory, 112, 1)                  // iovec[1] len

	rt.Stack = append(rt.Stack, wasm.I32(1), wasm.I32(100), wasm.I32(2), wasm.I32(200))
	require.NoError(t, rt.CallByIndex(findImportIndex(mod, "wasi_snapshot_preview1", "fd_write")))

	written := u32At(rt.Memory, 200)
	assert.Equal(t, uint32(14), written)
	assert.Equal(t, string(msg)+"\n", out.String())
}

func putU32(mem []byte, offset int, v uint32) {
	mem[offset] = byte(v)
	mem[offset+1] = byte(v >> 8)
	mem[offset+2] = byte(v >> 16)
	mem[offset+3] = byte(v >> 24)
}

func u32At(mem []byte, offset int) uint32 {
	return uint32(mem[offset]) | uint32(mem[offset+1])<<8 | uint32(mem[offset+2])<<16 | uint32(mem[offset+3])<<24
}

func findImportIndex(mod *wasm.Module, module, field string) uint32 {
	for i := 0; i < mod.ImportedFuncCount; i++ {
		imp := mod.FuncImport(uint32(i))
		if imp != nil && imp.Module == module && imp.Field == field {
			return uint32(i)
		}
	}
	return 0
}

func encodeS32(v int32) []byte {
	var out []byte
	more := true
	n := int64(v)
	for more {
		b := byte(n & 0x7f)
		n >>= 7
		signBitSet := b&0x40 != 0
		if (n == 0 && !signBitSet) || (n == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

func TestBitCountLaw(t *testing.T) {
	mb := &moduleBuilder{}
	mb.addFunc("run", funcSpec{
		params:  []wasm.ValueType{wasm.ValTypeI32},
		results: []wasm.ValueType{wasm.ValTypeI32},
		body: []byte{
			byte(wasm.OpLocalGet), 0, byte(wasm.OpI32Clz),
			byte(wasm.OpLocalGet), 0, byte(wasm.OpI32Ctz),
			byte(wasm.OpI32Add),
			byte(wasm.OpLocalGet), 0, byte(wasm.OpI32Popcnt),
			byte(wasm.OpI32Add),
		},
	})
	mod, err := wasm.Decode(mb.build())
	require.NoError(t, err)

	for _, x := range []uint32{1, 7, 0x80000000, 0x12345678, 0xFFFFFFFF} {
		rt, err := New(mod, defaultOpts())
		require.NoError(t, err)
		rt.Stack = append(rt.Stack, wasm.U32Value(x))
		require.NoError(t, rt.CallByIndex(0))
		require.Len(t, rt.Stack, 1)
		assert.Equal(t, int32(32), rt.Stack[0].I32())
	}
}

func TestRotationIdentity(t *testing.T) {
	mb := &moduleBuilder{}
	mb.addFunc("rotl", funcSpec{
		params:  []wasm.ValueType{wasm.ValTypeI32, wasm.ValTypeI32},
		results: []wasm.ValueType{wasm.ValTypeI32},
		body:    []byte{byte(wasm.OpLocalGet), 0, byte(wasm.OpLocalGet), 1, byte(wasm.OpI32Rotl)},
	})
	mb.addFunc("rotr", funcSpec{
		params:  []wasm.ValueType{wasm.ValTypeI32, wasm.ValTypeI32},
		results: []wasm.ValueType{wasm.ValTypeI32},
		body:    []byte{byte(wasm.OpLocalGet), 0, byte(wasm.OpLocalGet), 1, byte(wasm.OpI32Rotr)},
	})
	mod, err := wasm.Decode(mb.build())
	require.NoError(t, err)

	x := uint32(0x12345678)
	k := uint32(5)

	rt1, err := New(mod, defaultOpts())
	require.NoError(t, err)
	rt1.Stack = append(rt1.Stack, wasm.U32Value(x), wasm.U32Value(k))
	require.NoError(t, rt1.CallByIndex(0))

	rt2, err := New(mod, defaultOpts())
	require.NoError(t, err)
	rt2.Stack = append(rt2.Stack, wasm.U32Value(x), wasm.U32Value(32-k))
	require.NoError(t, rt2.CallByIndex(1))

	assert.Equal(t, rt1.Stack[0].U32(), rt2.Stack[0].U32())
}

// TestMemoryEndiannessRoundTrip covers a memory endianness
// round-trip property: storing then loading an i64 at the same
// address returns the original value.
func TestMemoryEndiannessRoundTrip(t *testing.T) {
	const want int64 = -8617478267073593927 // arbitrary, both halves nonzero/nonuniform

	var body []byte
	body = append(body, byte(wasm.OpI32Const), 0) // addr
	body = append(body, byte(wasm.OpI64Const))
	body = append(body, leb.EncodeS64(want)...)
	body = append(body, byte(wasm.OpI64Store), 3, 0)
	body = append(body, byte(wasm.OpI32Const), 0) // addr
	body = append(body, byte(wasm.OpI64Load), 3, 0)

	mb := &moduleBuilder{hasMemory: true, memoryMin: 1}
	mb.addFunc("run", funcSpec{results: []wasm.ValueType{wasm.ValTypeI64}, body: body})

	rt := mustInstantiate(t, mb.build(), defaultOpts())
	require.NoError(t, rt.Run(context.Background(), "run"))
	require.Len(t, rt.Stack, 1)
	assert.Equal(t, want, rt.Stack[0].I64())
}

func TestStackUnderflowReported(t *testing.T) {
	mb := &moduleBuilder{}
	mb.addFunc("run", funcSpec{
		results: []wasm.ValueType{wasm.ValTypeI32},
		body:    []byte{byte(wasm.OpI32Add)},
	})
	rt := mustInstantiate(t, mb.build(), defaultOpts())
	err := rt.Run(context.Background(), "run")
	assert.Error(t, err)
}

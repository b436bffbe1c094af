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
	"encoding/binary"

	"github.com/dotandev/stackvm/internal/errors"
	"github.com/dotandev/stackvm/internal/wasm"
)

// execLoad implements every i32/i64/f32/f64 load and its sign/zero
// extending narrow variants. Linear memory is little-endian, matching
// the wire format.
func (rt *Runtime) execLoad(inst wasm.Instruction) error {
	addrVal, err := rt.pop()
	if err != nil {
		return err
	}
	addr := uint64(addrVal.U32()) + uint64(inst.MemOffset)

	width := loadWidth(inst.Op)
	if addr+width > uint64(len(rt.Memory)) {
		return errors.WrapMemoryOutOfBounds("load", addr, width, len(rt.Memory))
	}
	b := rt.Memory[addr : addr+width]

	switch inst.Op {
	case wasm.OpI32Load:
		rt.push(wasm.I32(int32(binary.LittleEndian.Uint32(b))))
	case wasm.OpI64Load:
		rt.push(wasm.I64(int64(binary.LittleEndian.Uint64(b))))
	case wasm.OpF32Load:
		rt.push(wasm.F32FromBits(binary.LittleEndian.Uint32(b)))
	case wasm.OpF64Load:
		rt.push(wasm.F64FromBits(binary.LittleEndian.Uint64(b)))
	case wasm.OpI32Load8S:
		rt.push(wasm.I32(int32(int8(b[0]))))
	case wasm.OpI32Load8U:
		rt.push(wasm.I32(int32(b[0])))
	case wasm.OpI32Load16S:
		rt.push(wasm.I32(int32(int16(binary.LittleEndian.Uint16(b)))))
	case wasm.OpI32Load16U:
		rt.push(wasm.I32(int32(binary.LittleEndian.Uint16(b))))
	case wasm.OpI64Load8S:
		rt.push(wasm.I64(int64(int8(b[0]))))
	case wasm.OpI64Load8U:
		rt.push(wasm.I64(int64(b[0])))
	case wasm.OpI64Load16S:
		rt.push(wasm.I64(int64(int16(binary.LittleEndian.Uint16(b)))))
	case wasm.OpI64Load16U:
		rt.push(wasm.I64(int64(binary.LittleEndian.Uint16(b))))
	case wasm.OpI64Load32S:
		rt.push(wasm.I64(int64(int32(binary.LittleEndian.Uint32(b)))))
	case wasm.OpI64Load32U:
		rt.push(wasm.I64(int64(binary.LittleEndian.Uint32(b))))
	}
	return nil
}

func loadWidth(op wasm.Op) uint64 {
	switch op {
	case wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI64Load8S, wasm.OpI64Load8U:
		return 1
	case wasm.OpI32Load16S, wasm.OpI32Load16U, wasm.OpI64Load16S, wasm.OpI64Load16U:
		return 2
	case wasm.OpI32Load, wasm.OpF32Load, wasm.OpI64Load32S, wasm.OpI64Load32U:
		return 4
	default: // I64Load, F64Load
		return 8
	}
}

// execStore implements every i32/i64/f32/f64 store and its narrowing
// variants.
func (rt *Runtime) execStore(inst wasm.Instruction) error {
	val, err := rt.pop()
	if err != nil {
		return err
	}
	addrVal, err := rt.pop()
	if err != nil {
		return err
	}
	addr := uint64(addrVal.U32()) + uint64(inst.MemOffset)

	width := storeWidth(inst.Op)
	if addr+width > uint64(len(rt.Memory)) {
		return errors.WrapMemoryOutOfBounds("store", addr, width, len(rt.Memory))
	}
	b := rt.Memory[addr : addr+width]

	switch inst.Op {
	case wasm.OpI32Store:
		binary.LittleEndian.PutUint32(b, val.U32())
	case wasm.OpI64Store:
		binary.LittleEndian.PutUint64(b, val.U64())
	case wasm.OpF32Store:
		binary.LittleEndian.PutUint32(b, val.Bits32())
	case wasm.OpF64Store:
		binary.LittleEndian.PutUint64(b, val.Bits())
	case wasm.OpI32Store8, wasm.OpI64Store8:
		b[0] = byte(val.U64())
	case wasm.OpI32Store16, wasm.OpI64Store16:
		binary.LittleEndian.PutUint16(b, uint16(val.U64()))
	case wasm.OpI64Store32:
		binary.LittleEndian.PutUint32(b, uint32(val.U64()))
	}
	return nil
}

func storeWidth(op wasm.Op) uint64 {
	switch op {
	case wasm.OpI32Store8, wasm.OpI64Store8:
		return 1
	case wasm.OpI32Store16, wasm.OpI64Store16:
		return 2
	case wasm.OpI32Store, wasm.OpF32Store, wasm.OpI64Store32:
		return 4
	default: // I64Store, F64Store
		return 8
	}
}

// execMemoryGrow implements memory.grow, honoring a declared or
// configured maximum page count instead of growing unconditionally:
// it pushes -1 rather than growing past the limit.
func (rt *Runtime) execMemoryGrow() error {
	deltaVal, err := rt.pop()
	if err != nil {
		return err
	}
	delta := deltaVal.U32()
	current := rt.MemoryPages()

	max := rt.memoryMaxPages()
	if max > 0 && uint64(current)+uint64(delta) > uint64(max) {
		rt.push(wasm.I32(-1))
		return nil
	}

	rt.Memory = append(rt.Memory, make([]byte, int(delta)*PageSize)...)
	rt.push(wasm.I32(int32(current)))
	return nil
}

// memoryMaxPages resolves the effective cap: an explicit runtime
// Options override takes precedence, then the module's own declared
// maximum, and 0 means unbounded.
func (rt *Runtime) memoryMaxPages() uint32 {
	if rt.opts.MaxMemoryPages > 0 {
		return rt.opts.MaxMemoryPages
	}
	if len(rt.Module.Memories) > 0 && rt.Module.Memories[0].Limits.HasMax {
		return rt.Module.Memories[0].Limits.Max
	}
	return 0
}

// execBulkMemory implements memory.init, data.drop, memory.copy, and
// memory.fill.
func (rt *Runtime) execBulkMemory(inst wasm.Instruction) error {
	switch inst.Op {
	case wasm.OpMemoryInit:
		return rt.execMemoryInit(inst.SegIdx)
	case wasm.OpDataDrop:
		return rt.execDataDrop(inst.SegIdx)
	case wasm.OpMemoryCopy:
		return rt.execMemoryCopy()
	case wasm.OpMemoryFill:
		return rt.execMemoryFill()
	}
	return errors.WrapUnsupportedFeature("bulk memory opcode")
}

func (rt *Runtime) execMemoryInit(segIdx uint32) error {
	n, err := rt.pop()
	if err != nil {
		return err
	}
	src, err := rt.pop()
	if err != nil {
		return err
	}
	dst, err := rt.pop()
	if err != nil {
		return err
	}

	if int(segIdx) >= len(rt.data) {
		return errors.WrapWasmInvalid("memory.init: invalid data segment index")
	}
	seg := rt.data[segIdx]
	if seg.dropped {
		return errors.WrapDataSegmentDropped(segIdx)
	}

	length := n.U32()
	srcOff, dstOff := src.U32(), dst.U32()
	if uint64(srcOff)+uint64(length) > uint64(len(seg.bytes)) {
		return errors.WrapMemoryOutOfBounds("memory.init src", uint64(srcOff), uint64(length), len(seg.bytes))
	}
	if uint64(dstOff)+uint64(length) > uint64(len(rt.Memory)) {
		return errors.WrapMemoryOutOfBounds("memory.init dst", uint64(dstOff), uint64(length), len(rt.Memory))
	}
	copy(rt.Memory[dstOff:dstOff+length], seg.bytes[srcOff:srcOff+length])
	return nil
}

func (rt *Runtime) execDataDrop(segIdx uint32) error {
	if int(segIdx) >= len(rt.data) {
		return errors.WrapWasmInvalid("data.drop: invalid data segment index")
	}
	rt.data[segIdx].dropped = true
	rt.data[segIdx].bytes = nil
	return nil
}

// execMemoryCopy implements memory.copy using Go's overlap-safe copy,
// correct regardless of whether src and dst ranges overlap.
func (rt *Runtime) execMemoryCopy() error {
	n, err := rt.pop()
	if err != nil {
		return err
	}
	src, err := rt.pop()
	if err != nil {
		return err
	}
	dst, err := rt.pop()
	if err != nil {
		return err
	}

	length := uint64(n.U32())
	srcOff, dstOff := uint64(src.U32()), uint64(dst.U32())
	if srcOff+length > uint64(len(rt.Memory)) {
		return errors.WrapMemoryOutOfBounds("memory.copy src", srcOff, length, len(rt.Memory))
	}
	if dstOff+length > uint64(len(rt.Memory)) {
		return errors.WrapMemoryOutOfBounds("memory.copy dst", dstOff, length, len(rt.Memory))
	}
	copy(rt.Memory[dstOff:dstOff+length], rt.Memory[srcOff:srcOff+length])
	return nil
}

func (rt *Runtime) execMemoryFill() error {
	n, err := rt.pop()
	if err != nil {
		return err
	}
	val, err := rt.pop()
	if err != nil {
		return err
	}
	dst, err := rt.pop()
	if err != nil {
		return err
	}

	length := uint64(n.U32())
	dstOff := uint64(dst.U32())
	if dstOff+length > uint64(len(rt.Memory)) {
		return errors.WrapMemoryOutOfBounds("memory.fill", dstOff, length, len(rt.Memory))
	}
	b := byte(val.U32())
	region := rt.Memory[dstOff : dstOff+length]
	for i := range region {
		region[i] = b
	}
	return nil
}

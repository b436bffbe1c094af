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

package wasm

import (
	"fmt"

	"github.com/dotandev/stackvm/internal/errors"
	"github.com/dotandev/stackvm/internal/leb"
)

// BlockTypeVoid is the sentinel ValueType for a block with no result.
const BlockTypeVoid ValueType = 0

// Instruction is an opcode plus its decoded immediates. For
// structured control instructions (Block/Loop/If), EndIdx and, for
// If, ElseIdx are filled in at decode time with the index (within the
// same flat Instruction slice) of the matching End/Else, so the
// control-flow engine resolves branches in O(1) instead of rescanning
// the instruction stream at run time.
type Instruction struct {
	Op     Op
	Offset int

	Imm32 int32
	Imm64 int64
	F32   float32
	F64   float64

	MemAlign  uint32
	MemOffset uint32

	BlockType    ValueType
	HasBlockType bool
	EndIdx       int
	ElseIdx      int
	HasElse      bool

	BrTargets []uint32
	BrDefault uint32

	TypeIdx  uint32
	TableIdx uint32
	SegIdx   uint32
	DestIdx  uint32

	SelectTypes []ValueType
}

// DecodeExpr decodes a flat, nesting-tracked instruction sequence
// starting at the reader's current position, stopping at the End that
// closes the outermost construct.
func DecodeExpr(r *leb.Reader) ([]Instruction, error) {
	var out []Instruction
	var openStack []int

	for {
		offset := r.Pos()
		opByte, err := r.Byte()
		if err != nil {
			return nil, err
		}

		switch Op(opByte) {
		case OpBlock, OpLoop, OpIf:
			bt, hasBt, err := decodeBlockType(r)
			if err != nil {
				return nil, err
			}
			inst := Instruction{Op: Op(opByte), Offset: offset, BlockType: bt, HasBlockType: hasBt}
			out = append(out, inst)
			openStack = append(openStack, len(out)-1)

		case OpElse:
			out = append(out, Instruction{Op: OpElse, Offset: offset})
			if len(openStack) == 0 {
				return nil, errors.WrapWasmInvalid("else with no matching if")
			}
			top := openStack[len(openStack)-1]
			out[top].ElseIdx = len(out) - 1
			out[top].HasElse = true

		case OpEnd:
			out = append(out, Instruction{Op: OpEnd, Offset: offset})
			if len(openStack) == 0 {
				return out, nil
			}
			top := openStack[len(openStack)-1]
			openStack = openStack[:len(openStack)-1]
			out[top].EndIdx = len(out) - 1

		default:
			inst, err := decodeImmediates(Op(opByte), offset, r)
			if err != nil {
				return nil, err
			}
			out = append(out, inst)
		}
	}
}

func decodeBlockType(r *leb.Reader) (ValueType, bool, error) {
	b, err := r.Byte()
	if err != nil {
		return 0, false, err
	}
	switch b {
	case 0x40:
		return BlockTypeVoid, false, nil
	case byte(ValTypeI32), byte(ValTypeI64), byte(ValTypeF32), byte(ValTypeF64):
		return ValueType(b), true, nil
	default:
		return 0, false, errors.WrapUnsupportedFeature(
			fmt.Sprintf("block type 0x%02x is not void or a single value type", b))
	}
}

func decodeImmediates(op Op, offset int, r *leb.Reader) (Instruction, error) {
	inst := Instruction{Op: op, Offset: offset}

	if isNoImmediateOp(byte(op)) {
		return inst, nil
	}

	switch op {
	case OpBr, OpBrIf:
		idx, err := r.U32()
		if err != nil {
			return inst, err
		}
		inst.DestIdx = idx
		return inst, nil

	case OpBrTable:
		count, err := r.U32()
		if err != nil {
			return inst, err
		}
		targets := make([]uint32, 0, count)
		for i := uint32(0); i < count; i++ {
			t, err := r.U32()
			if err != nil {
				return inst, err
			}
			targets = append(targets, t)
		}
		def, err := r.U32()
		if err != nil {
			return inst, err
		}
		inst.BrTargets = targets
		inst.BrDefault = def
		return inst, nil

	case OpCall:
		idx, err := r.U32()
		if err != nil {
			return inst, err
		}
		inst.DestIdx = idx
		return inst, nil

	case OpCallIndirect:
		typeIdx, err := r.U32()
		if err != nil {
			return inst, err
		}
		tableIdx, err := r.U32()
		if err != nil {
			return inst, err
		}
		inst.TypeIdx = typeIdx
		inst.TableIdx = tableIdx
		return inst, nil

	case OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet:
		idx, err := r.U32()
		if err != nil {
			return inst, err
		}
		inst.DestIdx = idx
		return inst, nil

	case OpSelectT:
		count, err := r.U32()
		if err != nil {
			return inst, err
		}
		types := make([]ValueType, 0, count)
		for i := uint32(0); i < count; i++ {
			b, err := r.Byte()
			if err != nil {
				return inst, err
			}
			types = append(types, ValueType(b))
		}
		inst.SelectTypes = types
		return inst, nil

	case OpI32Load, OpI64Load, OpF32Load, OpF64Load,
		OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U,
		OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U,
		OpI32Store, OpI64Store, OpF32Store, OpF64Store,
		OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		align, err := r.U32()
		if err != nil {
			return inst, err
		}
		off, err := r.U32()
		if err != nil {
			return inst, err
		}
		inst.MemAlign = align
		inst.MemOffset = off
		return inst, nil

	case OpMemorySize, OpMemoryGrow:
		_, err := r.Byte() // reserved memory-index byte, always 0x00 in the MVP
		if err != nil {
			return inst, err
		}
		return inst, nil

	case OpI32Const:
		v, err := r.S32()
		if err != nil {
			return inst, err
		}
		inst.Imm32 = v
		return inst, nil

	case OpI64Const:
		v, err := r.S64()
		if err != nil {
			return inst, err
		}
		inst.Imm64 = v
		return inst, nil

	case OpF32Const:
		v, err := r.F32()
		if err != nil {
			return inst, err
		}
		inst.F32 = v
		return inst, nil

	case OpF64Const:
		v, err := r.F64()
		if err != nil {
			return inst, err
		}
		inst.F64 = v
		return inst, nil

	case OpRefNull:
		b, err := r.Byte()
		if err != nil {
			return inst, err
		}
		inst.Imm32 = int32(b)
		return inst, nil

	case OpRefFunc:
		idx, err := r.U32()
		if err != nil {
			return inst, err
		}
		inst.DestIdx = idx
		return inst, nil
	}

	if op == 0xfc {
		return decodeBulkMemory(offset, r)
	}
	if op == 0xfd {
		return inst, errors.WrapUnsupportedFeature("SIMD opcode prefix 0xfd")
	}
	if op == 0xfe {
		return inst, errors.WrapUnsupportedFeature("atomic opcode prefix 0xfe")
	}

	return inst, errors.WrapWasmInvalid(fmt.Sprintf("unrecognized opcode 0x%02x", byte(op)))
}

func decodeBulkMemory(offset int, r *leb.Reader) (Instruction, error) {
	sub, err := r.U32()
	if err != nil {
		return Instruction{}, err
	}
	inst := Instruction{Offset: offset}

	switch sub {
	case 0, 1, 2, 3, 4, 5, 6, 7:
		// Saturating truncation; decodes clean but traps on execution.
		inst.Op = Op(0x1fc00 + sub)
		return inst, nil

	case 8: // memory.init segIdx, memIdx(reserved)
		segIdx, err := r.U32()
		if err != nil {
			return inst, err
		}
		if _, err := r.Byte(); err != nil {
			return inst, err
		}
		inst.Op = OpMemoryInit
		inst.SegIdx = segIdx
		return inst, nil

	case 9: // data.drop segIdx
		segIdx, err := r.U32()
		if err != nil {
			return inst, err
		}
		inst.Op = OpDataDrop
		inst.SegIdx = segIdx
		return inst, nil

	case 10: // memory.copy dst(reserved), src(reserved)
		if _, err := r.Byte(); err != nil {
			return inst, err
		}
		if _, err := r.Byte(); err != nil {
			return inst, err
		}
		inst.Op = OpMemoryCopy
		return inst, nil

	case 11: // memory.fill mem(reserved)
		if _, err := r.Byte(); err != nil {
			return inst, err
		}
		inst.Op = OpMemoryFill
		return inst, nil

	case 12, 13, 14, 15, 16, 17:
		// table.init/elem.drop/table.copy/table.grow/table.size/table.fill:
		// decoded so well-formed modules parse, but these tables are out of
		// scope (funcref-table-via-element-segment is the only table path
		// this core executes) and trap with ErrNotImplemented if hit.
		switch sub {
		case 12:
			segIdx, err := r.U32()
			if err != nil {
				return inst, err
			}
			tblIdx, err := r.U32()
			if err != nil {
				return inst, err
			}
			inst.SegIdx = segIdx
			inst.TableIdx = tblIdx
		case 13:
			segIdx, err := r.U32()
			if err != nil {
				return inst, err
			}
			inst.SegIdx = segIdx
		case 14, 17:
			t1, err := r.U32()
			if err != nil {
				return inst, err
			}
			t2, err := r.U32()
			if err != nil {
				return inst, err
			}
			inst.TableIdx = t1
			inst.DestIdx = t2
		case 15, 16:
			t, err := r.U32()
			if err != nil {
				return inst, err
			}
			inst.TableIdx = t
		}
		inst.Op = Op(0x1fc00 + sub)
		return inst, nil
	}

	return inst, errors.WrapUnsupportedFeature(fmt.Sprintf("0xfc subopcode %d", sub))
}

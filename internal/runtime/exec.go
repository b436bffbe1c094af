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
	"github.com/dotandev/stackvm/internal/errors"
	"github.com/dotandev/stackvm/internal/wasm"
)

// label is a runtime-maintained entry for one currently open
// Block/Loop/If, built as execution enters the construct. Their
// EndIdx/headerIdx come from the decoder's precomputed indices
// (internal/wasm's DecodeExpr), so branch resolution below is an O(1)
// slice index instead of the source prototype's backward/forward
// instruction scan.
type label struct {
	header int
	endIdx int
	isLoop bool
}

// executeBlock runs a flat instruction sequence against frame,
// maintaining a runtime label stack for structured control flow. It
// returns when the sequence falls off its end or a Return instruction
// is executed; the shared operand stack holds whatever the sequence
// left on it.
func (rt *Runtime) executeBlock(frame *Frame, insts []wasm.Instruction) error {
	var labels []label
	pc := 0

	for pc < len(insts) {
		inst := insts[pc]

		switch inst.Op {
		case wasm.OpUnreachable:
			return errors.ErrUnreachable

		case wasm.OpNop:
			pc++

		case wasm.OpBlock, wasm.OpLoop:
			labels = append(labels, label{header: pc, endIdx: inst.EndIdx, isLoop: inst.Op == wasm.OpLoop})
			pc++

		case wasm.OpIf:
			cond, err := rt.pop()
			if err != nil {
				return err
			}
			labels = append(labels, label{header: pc, endIdx: inst.EndIdx, isLoop: false})
			if cond.I32() != 0 {
				pc++
			} else if inst.HasElse {
				pc = inst.ElseIdx + 1
			} else {
				labels = labels[:len(labels)-1]
				pc = inst.EndIdx + 1
			}

		case wasm.OpElse:
			top := labels[len(labels)-1]
			pc = top.endIdx + 1
			labels = labels[:len(labels)-1]

		case wasm.OpEnd:
			if len(labels) > 0 {
				labels = labels[:len(labels)-1]
			}
			pc++

		case wasm.OpBr:
			var err error
			pc, labels, err = rt.branch(labels, inst.DestIdx)
			if err != nil {
				return err
			}

		case wasm.OpBrIf:
			cond, err := rt.pop()
			if err != nil {
				return err
			}
			if cond.I32() != 0 {
				pc, labels, err = rt.branch(labels, inst.DestIdx)
				if err != nil {
					return err
				}
			} else {
				pc++
			}

		case wasm.OpBrTable:
			sel, err := rt.pop()
			if err != nil {
				return err
			}
			target := inst.BrDefault
			if int(sel.U32()) < len(inst.BrTargets) {
				target = inst.BrTargets[sel.U32()]
			}
			pc, labels, err = rt.branch(labels, target)
			if err != nil {
				return err
			}

		case wasm.OpReturn:
			return nil

		case wasm.OpCall:
			if err := rt.CallByIndex(inst.DestIdx); err != nil {
				return err
			}
			pc++

		case wasm.OpCallIndirect:
			if err := rt.callIndirect(inst); err != nil {
				return err
			}
			pc++

		case wasm.OpDrop:
			if _, err := rt.pop(); err != nil {
				return err
			}
			pc++

		case wasm.OpSelect, wasm.OpSelectT:
			if err := rt.execSelect(); err != nil {
				return err
			}
			pc++

		case wasm.OpLocalGet:
			v, err := frame.Get(inst.DestIdx)
			if err != nil {
				return err
			}
			rt.push(v)
			pc++

		case wasm.OpLocalSet:
			v, err := rt.pop()
			if err != nil {
				return err
			}
			if err := frame.Set(inst.DestIdx, v); err != nil {
				return err
			}
			pc++

		case wasm.OpLocalTee:
			v, err := rt.pop()
			if err != nil {
				return err
			}
			if err := frame.Set(inst.DestIdx, v); err != nil {
				return err
			}
			rt.push(v)
			pc++

		case wasm.OpGlobalGet:
			v, err := rt.getGlobal(inst.DestIdx)
			if err != nil {
				return err
			}
			rt.push(v)
			pc++

		case wasm.OpGlobalSet:
			v, err := rt.pop()
			if err != nil {
				return err
			}
			if err := rt.setGlobal(inst.DestIdx, v); err != nil {
				return err
			}
			pc++

		case wasm.OpI32Const:
			rt.push(wasm.I32(inst.Imm32))
			pc++
		case wasm.OpI64Const:
			rt.push(wasm.I64(inst.Imm64))
			pc++
		case wasm.OpF32Const:
			rt.push(wasm.F32(inst.F32))
			pc++
		case wasm.OpF64Const:
			rt.push(wasm.F64(inst.F64))
			pc++

		case wasm.OpMemorySize:
			rt.push(wasm.I32(int32(rt.MemoryPages())))
			pc++

		case wasm.OpMemoryGrow:
			if err := rt.execMemoryGrow(); err != nil {
				return err
			}
			pc++

		case wasm.OpMemoryInit, wasm.OpDataDrop, wasm.OpMemoryCopy, wasm.OpMemoryFill:
			if err := rt.execBulkMemory(inst); err != nil {
				return err
			}
			pc++

		case wasm.OpI32Extend8S, wasm.OpI32Extend16S,
			wasm.OpI64Extend8S, wasm.OpI64Extend16S, wasm.OpI64Extend32S,
			wasm.OpI32TruncSatF32S, wasm.OpI32TruncSatF32U, wasm.OpI32TruncSatF64S, wasm.OpI32TruncSatF64U,
			wasm.OpI64TruncSatF32S, wasm.OpI64TruncSatF32U, wasm.OpI64TruncSatF64S, wasm.OpI64TruncSatF64U,
			wasm.OpTableInit, wasm.OpElemDrop, wasm.OpTableCopy, wasm.OpTableGrow, wasm.OpTableSize, wasm.OpTableFill,
			wasm.OpRefNull, wasm.OpRefIsNull, wasm.OpRefFunc:
			return errors.WrapNotImplemented(opName(inst.Op))

		default:
			if err := rt.execMemoryOrNumeric(inst); err != nil {
				return err
			}
			pc++
		}
	}

	return nil
}

// branch implements `br L`: locate the
// L-th enclosing label (0 = innermost) and jump to its loop head or
// past its closing End, popping the labels branched out of.
func (rt *Runtime) branch(labels []label, depth uint32) (int, []label, error) {
	idx := len(labels) - 1 - int(depth)
	if idx < 0 {
		return 0, labels, errors.WrapWasmInvalid("branch depth exceeds enclosing block nesting")
	}
	target := labels[idx]
	if target.isLoop {
		return target.header + 1, labels[:idx+1], nil
	}
	return target.endIdx + 1, labels[:idx], nil
}

func (rt *Runtime) execSelect() error {
	c, err := rt.pop()
	if err != nil {
		return err
	}
	v2, err := rt.pop()
	if err != nil {
		return err
	}
	v1, err := rt.pop()
	if err != nil {
		return err
	}
	if c.I32() != 0 {
		rt.push(v1)
	} else {
		rt.push(v2)
	}
	return nil
}

func (rt *Runtime) getGlobal(idx uint32) (wasm.Value, error) {
	if int(idx) >= len(rt.globals) {
		return wasm.Value{}, errors.WrapInvalidGlobalIndex(idx, len(rt.globals))
	}
	return rt.globals[idx].value, nil
}

func (rt *Runtime) setGlobal(idx uint32, v wasm.Value) error {
	if int(idx) >= len(rt.globals) {
		return errors.WrapInvalidGlobalIndex(idx, len(rt.globals))
	}
	rt.globals[idx].value = v
	return nil
}

func opName(op wasm.Op) string {
	switch op {
	case wasm.OpI32Extend8S:
		return "i32.extend8_s"
	case wasm.OpI32Extend16S:
		return "i32.extend16_s"
	case wasm.OpI64Extend8S:
		return "i64.extend8_s"
	case wasm.OpI64Extend16S:
		return "i64.extend16_s"
	case wasm.OpI64Extend32S:
		return "i64.extend32_s"
	case wasm.OpRefNull:
		return "ref.null"
	case wasm.OpRefIsNull:
		return "ref.is_null"
	case wasm.OpRefFunc:
		return "ref.func"
	default:
		return "opcode not implemented"
	}
}

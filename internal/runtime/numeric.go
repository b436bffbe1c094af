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
	"math"
	"math/bits"

	"github.com/dotandev/stackvm/internal/errors"
	"github.com/dotandev/stackvm/internal/wasm"
)

// execMemoryOrNumeric dispatches every opcode not handled directly in
// executeBlock's switch: numeric operators and linear memory
// load/store. Kept as a separate function to keep executeBlock's
// control-flow switch readable.
func (rt *Runtime) execMemoryOrNumeric(inst wasm.Instruction) error {
	switch inst.Op {
	case wasm.OpI32Load, wasm.OpI64Load, wasm.OpF32Load, wasm.OpF64Load,
		wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI32Load16S, wasm.OpI32Load16U,
		wasm.OpI64Load8S, wasm.OpI64Load8U, wasm.OpI64Load16S, wasm.OpI64Load16U,
		wasm.OpI64Load32S, wasm.OpI64Load32U:
		return rt.execLoad(inst)

	case wasm.OpI32Store, wasm.OpI64Store, wasm.OpF32Store, wasm.OpF64Store,
		wasm.OpI32Store8, wasm.OpI32Store16, wasm.OpI64Store8, wasm.OpI64Store16, wasm.OpI64Store32:
		return rt.execStore(inst)
	}

	return rt.execNumeric(inst.Op)
}

// execNumeric implements the comparison/arithmetic/conversion opcodes.
func (rt *Runtime) execNumeric(op wasm.Op) error {
	switch op {
	case wasm.OpI32Eqz:
		v, err := rt.pop()
		if err != nil {
			return err
		}
		rt.push(boolValue(v.I32() == 0))
		return nil

	case wasm.OpI64Eqz:
		v, err := rt.pop()
		if err != nil {
			return err
		}
		rt.push(boolValue(v.I64() == 0))
		return nil
	}

	switch op {
	case wasm.OpI32Clz, wasm.OpI32Ctz, wasm.OpI32Popcnt:
		v, err := rt.pop()
		if err != nil {
			return err
		}
		return rt.i32Unary(op, v)
	case wasm.OpI64Clz, wasm.OpI64Ctz, wasm.OpI64Popcnt:
		v, err := rt.pop()
		if err != nil {
			return err
		}
		return rt.i64Unary(op, v)
	}

	if isI32Binary(op) {
		b, a, err := rt.pop2()
		if err != nil {
			return err
		}
		return rt.i32Binary(op, a, b)
	}
	if isI64Binary(op) {
		b, a, err := rt.pop2()
		if err != nil {
			return err
		}
		return rt.i64Binary(op, a, b)
	}
	if isF32Op(op) {
		return rt.f32Op(op)
	}
	if isF64Op(op) {
		return rt.f64Op(op)
	}
	return rt.conversionOp(op)
}

func boolValue(b bool) wasm.Value {
	if b {
		return wasm.I32(1)
	}
	return wasm.I32(0)
}

func (rt *Runtime) pop2() (b, a wasm.Value, err error) {
	b, err = rt.pop()
	if err != nil {
		return
	}
	a, err = rt.pop()
	return
}

func isI32Binary(op wasm.Op) bool {
	switch op {
	case wasm.OpI32Eq, wasm.OpI32Ne, wasm.OpI32LtS, wasm.OpI32LtU, wasm.OpI32GtS, wasm.OpI32GtU,
		wasm.OpI32LeS, wasm.OpI32LeU, wasm.OpI32GeS, wasm.OpI32GeU,
		wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Mul, wasm.OpI32DivS, wasm.OpI32DivU, wasm.OpI32RemS, wasm.OpI32RemU,
		wasm.OpI32And, wasm.OpI32Or, wasm.OpI32Xor, wasm.OpI32Shl, wasm.OpI32ShrS, wasm.OpI32ShrU,
		wasm.OpI32Rotl, wasm.OpI32Rotr:
		return true
	}
	return false
}

// i32Unary implements clz/ctz/popcnt: clz(x)+ctz(x)+popcnt(x)==32
// holds for every nonzero x.
func (rt *Runtime) i32Unary(op wasm.Op, v wasm.Value) error {
	x := uint32(v.I32())
	switch op {
	case wasm.OpI32Clz:
		rt.push(wasm.I32(int32(bits.LeadingZeros32(x))))
	case wasm.OpI32Ctz:
		rt.push(wasm.I32(int32(bits.TrailingZeros32(x))))
	case wasm.OpI32Popcnt:
		rt.push(wasm.I32(int32(bits.OnesCount32(x))))
	}
	return nil
}

func (rt *Runtime) i32Binary(op wasm.Op, a, b wasm.Value) error {
	x, y := a.I32(), b.I32()
	ux, uy := uint32(x), uint32(y)

	switch op {
	case wasm.OpI32Eq:
		rt.push(boolValue(x == y))
	case wasm.OpI32Ne:
		rt.push(boolValue(x != y))
	case wasm.OpI32LtS:
		rt.push(boolValue(x < y))
	case wasm.OpI32LtU:
		rt.push(boolValue(ux < uy))
	case wasm.OpI32GtS:
		rt.push(boolValue(x > y))
	case wasm.OpI32GtU:
		rt.push(boolValue(ux > uy))
	case wasm.OpI32LeS:
		rt.push(boolValue(x <= y))
	case wasm.OpI32LeU:
		rt.push(boolValue(ux <= uy))
	case wasm.OpI32GeS:
		rt.push(boolValue(x >= y))
	case wasm.OpI32GeU:
		rt.push(boolValue(ux >= uy))
	case wasm.OpI32Add:
		rt.push(wasm.I32(x + y))
	case wasm.OpI32Sub:
		rt.push(wasm.I32(x - y))
	case wasm.OpI32Mul:
		rt.push(wasm.I32(x * y))
	case wasm.OpI32DivS:
		if y == 0 {
			return errors.WrapDivideByZero("i32.div_s")
		}
		if x == math.MinInt32 && y == -1 {
			return errors.WrapIntegerOverflow("i32.div_s")
		}
		rt.push(wasm.I32(x / y))
	case wasm.OpI32DivU:
		if uy == 0 {
			return errors.WrapDivideByZero("i32.div_u")
		}
		rt.push(wasm.I32(int32(ux / uy)))
	case wasm.OpI32RemS:
		if y == 0 {
			return errors.WrapDivideByZero("i32.rem_s")
		}
		if x == math.MinInt32 && y == -1 {
			rt.push(wasm.I32(0))
		} else {
			rt.push(wasm.I32(x % y))
		}
	case wasm.OpI32RemU:
		if uy == 0 {
			return errors.WrapDivideByZero("i32.rem_u")
		}
		rt.push(wasm.I32(int32(ux % uy)))
	case wasm.OpI32And:
		rt.push(wasm.I32(x & y))
	case wasm.OpI32Or:
		rt.push(wasm.I32(x | y))
	case wasm.OpI32Xor:
		rt.push(wasm.I32(x ^ y))
	case wasm.OpI32Shl:
		rt.push(wasm.I32(int32(ux << (uy & 31))))
	case wasm.OpI32ShrS:
		rt.push(wasm.I32(x >> (uy & 31)))
	case wasm.OpI32ShrU:
		rt.push(wasm.I32(int32(ux >> (uy & 31))))
	case wasm.OpI32Rotl:
		rt.push(wasm.I32(int32(bits.RotateLeft32(ux, int(uy&31)))))
	case wasm.OpI32Rotr:
		rt.push(wasm.I32(int32(bits.RotateLeft32(ux, -int(uy&31)))))
	}
	return nil
}

func isI64Binary(op wasm.Op) bool {
	switch op {
	case wasm.OpI64Eq, wasm.OpI64Ne, wasm.OpI64LtS, wasm.OpI64LtU, wasm.OpI64GtS, wasm.OpI64GtU,
		wasm.OpI64LeS, wasm.OpI64LeU, wasm.OpI64GeS, wasm.OpI64GeU,
		wasm.OpI64Add, wasm.OpI64Sub, wasm.OpI64Mul, wasm.OpI64DivS, wasm.OpI64DivU, wasm.OpI64RemS, wasm.OpI64RemU,
		wasm.OpI64And, wasm.OpI64Or, wasm.OpI64Xor, wasm.OpI64Shl, wasm.OpI64ShrS, wasm.OpI64ShrU,
		wasm.OpI64Rotl, wasm.OpI64Rotr:
		return true
	}
	return false
}

// i64Unary implements clz/ctz/popcnt for i64 operands.
func (rt *Runtime) i64Unary(op wasm.Op, v wasm.Value) error {
	x := uint64(v.I64())
	switch op {
	case wasm.OpI64Clz:
		rt.push(wasm.I64(int64(bits.LeadingZeros64(x))))
	case wasm.OpI64Ctz:
		rt.push(wasm.I64(int64(bits.TrailingZeros64(x))))
	case wasm.OpI64Popcnt:
		rt.push(wasm.I64(int64(bits.OnesCount64(x))))
	}
	return nil
}

func (rt *Runtime) i64Binary(op wasm.Op, a, b wasm.Value) error {
	x, y := a.I64(), b.I64()
	ux, uy := uint64(x), uint64(y)

	switch op {
	case wasm.OpI64Eq:
		rt.push(boolValue(x == y))
	case wasm.OpI64Ne:
		rt.push(boolValue(x != y))
	case wasm.OpI64LtS:
		rt.push(boolValue(x < y))
	case wasm.OpI64LtU:
		rt.push(boolValue(ux < uy))
	case wasm.OpI64GtS:
		rt.push(boolValue(x > y))
	case wasm.OpI64GtU:
		rt.push(boolValue(ux > uy))
	case wasm.OpI64LeS:
		rt.push(boolValue(x <= y))
	case wasm.OpI64LeU:
		rt.push(boolValue(ux <= uy))
	case wasm.OpI64GeS:
		rt.push(boolValue(x >= y))
	case wasm.OpI64GeU:
		rt.push(boolValue(ux >= uy))
	case wasm.OpI64Add:
		rt.push(wasm.I64(x + y))
	case wasm.OpI64Sub:
		rt.push(wasm.I64(x - y))
	case wasm.OpI64Mul:
		rt.push(wasm.I64(x * y))
	case wasm.OpI64DivS:
		if y == 0 {
			return errors.WrapDivideByZero("i64.div_s")
		}
		if x == math.MinInt64 && y == -1 {
			return errors.WrapIntegerOverflow("i64.div_s")
		}
		rt.push(wasm.I64(x / y))
	case wasm.OpI64DivU:
		if uy == 0 {
			return errors.WrapDivideByZero("i64.div_u")
		}
		rt.push(wasm.I64(int64(ux / uy)))
	case wasm.OpI64RemS:
		if y == 0 {
			return errors.WrapDivideByZero("i64.rem_s")
		}
		if x == math.MinInt64 && y == -1 {
			rt.push(wasm.I64(0))
		} else {
			rt.push(wasm.I64(x % y))
		}
	case wasm.OpI64RemU:
		if uy == 0 {
			return errors.WrapDivideByZero("i64.rem_u")
		}
		rt.push(wasm.I64(int64(ux % uy)))
	case wasm.OpI64And:
		rt.push(wasm.I64(x & y))
	case wasm.OpI64Or:
		rt.push(wasm.I64(x | y))
	case wasm.OpI64Xor:
		rt.push(wasm.I64(x ^ y))
	case wasm.OpI64Shl:
		rt.push(wasm.I64(int64(ux << (uy & 63))))
	case wasm.OpI64ShrS:
		rt.push(wasm.I64(x >> (uy & 63)))
	case wasm.OpI64ShrU:
		rt.push(wasm.I64(int64(ux >> (uy & 63))))
	case wasm.OpI64Rotl:
		rt.push(wasm.I64(int64(bits.RotateLeft64(ux, int(uy&63)))))
	case wasm.OpI64Rotr:
		rt.push(wasm.I64(int64(bits.RotateLeft64(ux, -int(uy&63)))))
	}
	return nil
}

func isF32Op(op wasm.Op) bool {
	switch op {
	case wasm.OpF32Eq, wasm.OpF32Ne, wasm.OpF32Lt, wasm.OpF32Gt, wasm.OpF32Le, wasm.OpF32Ge,
		wasm.OpF32Abs, wasm.OpF32Neg, wasm.OpF32Ceil, wasm.OpF32Floor, wasm.OpF32Trunc, wasm.OpF32Nearest, wasm.OpF32Sqrt,
		wasm.OpF32Add, wasm.OpF32Sub, wasm.OpF32Mul, wasm.OpF32Div, wasm.OpF32Min, wasm.OpF32Max, wasm.OpF32Copysign:
		return true
	}
	return false
}

func isUnaryF32(op wasm.Op) bool {
	switch op {
	case wasm.OpF32Abs, wasm.OpF32Neg, wasm.OpF32Ceil, wasm.OpF32Floor, wasm.OpF32Trunc, wasm.OpF32Nearest, wasm.OpF32Sqrt:
		return true
	}
	return false
}

// f32Op implements f32 comparisons and unary/binary arithmetic,
// following IEEE-754 ordered semantics (a NaN operand makes every
// comparison but ne false, per the WebAssembly core spec's resolution
// of IEEE-754 unordered-comparison semantics).
func (rt *Runtime) f32Op(op wasm.Op) error {
	if isUnaryF32(op) {
		v, err := rt.pop()
		if err != nil {
			return err
		}
		x := v.F32()
		switch op {
		case wasm.OpF32Abs:
			rt.push(wasm.F32(float32(math.Abs(float64(x)))))
		case wasm.OpF32Neg:
			rt.push(wasm.F32(-x))
		case wasm.OpF32Ceil:
			rt.push(wasm.F32(float32(math.Ceil(float64(x)))))
		case wasm.OpF32Floor:
			rt.push(wasm.F32(float32(math.Floor(float64(x)))))
		case wasm.OpF32Trunc:
			rt.push(wasm.F32(float32(math.Trunc(float64(x)))))
		case wasm.OpF32Nearest:
			rt.push(wasm.F32(float32(math.RoundToEven(float64(x)))))
		case wasm.OpF32Sqrt:
			rt.push(wasm.F32(float32(math.Sqrt(float64(x)))))
		}
		return nil
	}

	b, a, err := rt.pop2()
	if err != nil {
		return err
	}
	x, y := a.F32(), b.F32()
	switch op {
	case wasm.OpF32Eq:
		rt.push(boolValue(x == y))
	case wasm.OpF32Ne:
		rt.push(boolValue(x != y))
	case wasm.OpF32Lt:
		rt.push(boolValue(x < y))
	case wasm.OpF32Gt:
		rt.push(boolValue(x > y))
	case wasm.OpF32Le:
		rt.push(boolValue(x <= y))
	case wasm.OpF32Ge:
		rt.push(boolValue(x >= y))
	case wasm.OpF32Add:
		rt.push(wasm.F32(x + y))
	case wasm.OpF32Sub:
		rt.push(wasm.F32(x - y))
	case wasm.OpF32Mul:
		rt.push(wasm.F32(x * y))
	case wasm.OpF32Div:
		rt.push(wasm.F32(x / y))
	case wasm.OpF32Min:
		rt.push(wasm.F32(float32(math.Min(float64(x), float64(y)))))
	case wasm.OpF32Max:
		rt.push(wasm.F32(float32(math.Max(float64(x), float64(y)))))
	case wasm.OpF32Copysign:
		rt.push(wasm.F32(float32(math.Copysign(float64(x), float64(y)))))
	}
	return nil
}

func isF64Op(op wasm.Op) bool {
	switch op {
	case wasm.OpF64Eq, wasm.OpF64Ne, wasm.OpF64Lt, wasm.OpF64Gt, wasm.OpF64Le, wasm.OpF64Ge,
		wasm.OpF64Abs, wasm.OpF64Neg, wasm.OpF64Ceil, wasm.OpF64Floor, wasm.OpF64Trunc, wasm.OpF64Nearest, wasm.OpF64Sqrt,
		wasm.OpF64Add, wasm.OpF64Sub, wasm.OpF64Mul, wasm.OpF64Div, wasm.OpF64Min, wasm.OpF64Max, wasm.OpF64Copysign:
		return true
	}
	return false
}

func isUnaryF64(op wasm.Op) bool {
	switch op {
	case wasm.OpF64Abs, wasm.OpF64Neg, wasm.OpF64Ceil, wasm.OpF64Floor, wasm.OpF64Trunc, wasm.OpF64Nearest, wasm.OpF64Sqrt:
		return true
	}
	return false
}

func (rt *Runtime) f64Op(op wasm.Op) error {
	if isUnaryF64(op) {
		v, err := rt.pop()
		if err != nil {
			return err
		}
		x := v.F64()
		switch op {
		case wasm.OpF64Abs:
			rt.push(wasm.F64(math.Abs(x)))
		case wasm.OpF64Neg:
			rt.push(wasm.F64(-x))
		case wasm.OpF64Ceil:
			rt.push(wasm.F64(math.Ceil(x)))
		case wasm.OpF64Floor:
			rt.push(wasm.F64(math.Floor(x)))
		case wasm.OpF64Trunc:
			rt.push(wasm.F64(math.Trunc(x)))
		case wasm.OpF64Nearest:
			rt.push(wasm.F64(math.RoundToEven(x)))
		case wasm.OpF64Sqrt:
			rt.push(wasm.F64(math.Sqrt(x)))
		}
		return nil
	}

	b, a, err := rt.pop2()
	if err != nil {
		return err
	}
	x, y := a.F64(), b.F64()
	switch op {
	case wasm.OpF64Eq:
		rt.push(boolValue(x == y))
	case wasm.OpF64Ne:
		rt.push(boolValue(x != y))
	case wasm.OpF64Lt:
		rt.push(boolValue(x < y))
	case wasm.OpF64Gt:
		rt.push(boolValue(x > y))
	case wasm.OpF64Le:
		rt.push(boolValue(x <= y))
	case wasm.OpF64Ge:
		rt.push(boolValue(x >= y))
	case wasm.OpF64Add:
		rt.push(wasm.F64(x + y))
	case wasm.OpF64Sub:
		rt.push(wasm.F64(x - y))
	case wasm.OpF64Mul:
		rt.push(wasm.F64(x * y))
	case wasm.OpF64Div:
		rt.push(wasm.F64(x / y))
	case wasm.OpF64Min:
		rt.push(wasm.F64(math.Min(x, y)))
	case wasm.OpF64Max:
		rt.push(wasm.F64(math.Max(x, y)))
	case wasm.OpF64Copysign:
		rt.push(wasm.F64(math.Copysign(x, y)))
	}
	return nil
}

// conversionOp implements the truncate/extend/convert/demote/promote
// and bit-pattern reinterpret opcodes (reinterpreting a value and
// reinterpreting the result back must be a no-op).
func (rt *Runtime) conversionOp(op wasm.Op) error {
	v, err := rt.pop()
	if err != nil {
		return err
	}

	switch op {
	case wasm.OpI32WrapI64:
		rt.push(wasm.I32(int32(v.I64())))
	case wasm.OpI32TruncF32S:
		rt.push(wasm.I32(int32(v.F32())))
	case wasm.OpI32TruncF32U:
		rt.push(wasm.I32(int32(uint32(v.F32()))))
	case wasm.OpI32TruncF64S:
		rt.push(wasm.I32(int32(v.F64())))
	case wasm.OpI32TruncF64U:
		rt.push(wasm.I32(int32(uint32(v.F64()))))
	case wasm.OpI64ExtendI32S:
		rt.push(wasm.I64(int64(v.I32())))
	case wasm.OpI64ExtendI32U:
		rt.push(wasm.I64(int64(uint32(v.I32()))))
	case wasm.OpI64TruncF32S:
		rt.push(wasm.I64(int64(v.F32())))
	case wasm.OpI64TruncF32U:
		rt.push(wasm.I64(int64(uint64(v.F32()))))
	case wasm.OpI64TruncF64S:
		rt.push(wasm.I64(int64(v.F64())))
	case wasm.OpI64TruncF64U:
		rt.push(wasm.I64(int64(uint64(v.F64()))))
	case wasm.OpF32ConvertI32S:
		rt.push(wasm.F32(float32(v.I32())))
	case wasm.OpF32ConvertI32U:
		rt.push(wasm.F32(float32(uint32(v.I32()))))
	case wasm.OpF32ConvertI64S:
		rt.push(wasm.F32(float32(v.I64())))
	case wasm.OpF32ConvertI64U:
		rt.push(wasm.F32(float32(uint64(v.I64()))))
	case wasm.OpF32DemoteF64:
		rt.push(wasm.F32(float32(v.F64())))
	case wasm.OpF64ConvertI32S:
		rt.push(wasm.F64(float64(v.I32())))
	case wasm.OpF64ConvertI32U:
		rt.push(wasm.F64(float64(uint32(v.I32()))))
	case wasm.OpF64ConvertI64S:
		rt.push(wasm.F64(float64(v.I64())))
	case wasm.OpF64ConvertI64U:
		rt.push(wasm.F64(float64(uint64(v.I64()))))
	case wasm.OpF64PromoteF32:
		rt.push(wasm.F64(float64(v.F32())))
	case wasm.OpI32ReinterpretF32:
		rt.push(wasm.I32(int32(v.Bits32())))
	case wasm.OpI64ReinterpretF64:
		rt.push(wasm.I64(int64(v.Bits())))
	case wasm.OpF32ReinterpretI32:
		rt.push(wasm.F32FromBits(uint32(v.I32())))
	case wasm.OpF64ReinterpretI64:
		rt.push(wasm.F64FromBits(uint64(v.I64())))
	default:
		return errors.WrapWasmInvalid("unrecognized numeric opcode")
	}
	return nil
}

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

// Op is a single opcode byte. 0xFC-prefixed bulk-memory ops are
// folded into this same space at synthetic values above 0xFF so the
// decoder and control-flow engine can switch on one type.
type Op uint32

// Control instructions.
const (
	OpUnreachable Op = 0x00
	OpNop         Op = 0x01
	OpBlock       Op = 0x02
	OpLoop        Op = 0x03
	OpIf          Op = 0x04
	OpElse        Op = 0x05
	OpEnd         Op = 0x0b
	OpBr          Op = 0x0c
	OpBrIf        Op = 0x0d
	OpBrTable     Op = 0x0e
	OpReturn      Op = 0x0f
	OpCall        Op = 0x10
	OpCallIndirect Op = 0x11
)

// Parametric and variable-access instructions.
const (
	OpDrop       Op = 0x1a
	OpSelect     Op = 0x1b
	OpSelectT    Op = 0x1c
	OpLocalGet   Op = 0x20
	OpLocalSet   Op = 0x21
	OpLocalTee   Op = 0x22
	OpGlobalGet  Op = 0x23
	OpGlobalSet  Op = 0x24
)

// Memory instructions.
const (
	OpI32Load    Op = 0x28
	OpI64Load    Op = 0x29
	OpF32Load    Op = 0x2a
	OpF64Load    Op = 0x2b
	OpI32Load8S  Op = 0x2c
	OpI32Load8U  Op = 0x2d
	OpI32Load16S Op = 0x2e
	OpI32Load16U Op = 0x2f
	OpI64Load8S  Op = 0x30
	OpI64Load8U  Op = 0x31
	OpI64Load16S Op = 0x32
	OpI64Load16U Op = 0x33
	OpI64Load32S Op = 0x34
	OpI64Load32U Op = 0x35
	OpI32Store   Op = 0x36
	OpI64Store   Op = 0x37
	OpF32Store   Op = 0x38
	OpF64Store   Op = 0x39
	OpI32Store8  Op = 0x3a
	OpI32Store16 Op = 0x3b
	OpI64Store8  Op = 0x3c
	OpI64Store16 Op = 0x3d
	OpI64Store32 Op = 0x3e
	OpMemorySize Op = 0x3f
	OpMemoryGrow Op = 0x40
)

// Constants.
const (
	OpI32Const Op = 0x41
	OpI64Const Op = 0x42
	OpF32Const Op = 0x43
	OpF64Const Op = 0x44
)

// i32 comparisons.
const (
	OpI32Eqz Op = 0x45
	OpI32Eq  Op = 0x46
	OpI32Ne  Op = 0x47
	OpI32LtS Op = 0x48
	OpI32LtU Op = 0x49
	OpI32GtS Op = 0x4a
	OpI32GtU Op = 0x4b
	OpI32LeS Op = 0x4c
	OpI32LeU Op = 0x4d
	OpI32GeS Op = 0x4e
	OpI32GeU Op = 0x4f
)

// i64 comparisons.
const (
	OpI64Eqz Op = 0x50
	OpI64Eq  Op = 0x51
	OpI64Ne  Op = 0x52
	OpI64LtS Op = 0x53
	OpI64LtU Op = 0x54
	OpI64GtS Op = 0x55
	OpI64GtU Op = 0x56
	OpI64LeS Op = 0x57
	OpI64LeU Op = 0x58
	OpI64GeS Op = 0x59
	OpI64GeU Op = 0x5a
)

// f32/f64 comparisons.
const (
	OpF32Eq Op = 0x5b
	OpF32Ne Op = 0x5c
	OpF32Lt Op = 0x5d
	OpF32Gt Op = 0x5e
	OpF32Le Op = 0x5f
	OpF32Ge Op = 0x60
	OpF64Eq Op = 0x61
	OpF64Ne Op = 0x62
	OpF64Lt Op = 0x63
	OpF64Gt Op = 0x64
	OpF64Le Op = 0x65
	OpF64Ge Op = 0x66
)

// i32 arithmetic.
const (
	OpI32Clz    Op = 0x67
	OpI32Ctz    Op = 0x68
	OpI32Popcnt Op = 0x69
	OpI32Add    Op = 0x6a
	OpI32Sub    Op = 0x6b
	OpI32Mul    Op = 0x6c
	OpI32DivS   Op = 0x6d
	OpI32DivU   Op = 0x6e
	OpI32RemS   Op = 0x6f
	OpI32RemU   Op = 0x70
	OpI32And    Op = 0x71
	OpI32Or     Op = 0x72
	OpI32Xor    Op = 0x73
	OpI32Shl    Op = 0x74
	OpI32ShrS   Op = 0x75
	OpI32ShrU   Op = 0x76
	OpI32Rotl   Op = 0x77
	OpI32Rotr   Op = 0x78
)

// i64 arithmetic.
const (
	OpI64Clz    Op = 0x79
	OpI64Ctz    Op = 0x7a
	OpI64Popcnt Op = 0x7b
	OpI64Add    Op = 0x7c
	OpI64Sub    Op = 0x7d
	OpI64Mul    Op = 0x7e
	OpI64DivS   Op = 0x7f
	OpI64DivU   Op = 0x80
	OpI64RemS   Op = 0x81
	OpI64RemU   Op = 0x82
	OpI64And    Op = 0x83
	OpI64Or     Op = 0x84
	OpI64Xor    Op = 0x85
	OpI64Shl    Op = 0x86
	OpI64ShrS   Op = 0x87
	OpI64ShrU   Op = 0x88
	OpI64Rotl   Op = 0x89
	OpI64Rotr   Op = 0x8a
)

// f32 unary/binary.
const (
	OpF32Abs      Op = 0x8b
	OpF32Neg      Op = 0x8c
	OpF32Ceil     Op = 0x8d
	OpF32Floor    Op = 0x8e
	OpF32Trunc    Op = 0x8f
	OpF32Nearest  Op = 0x90
	OpF32Sqrt     Op = 0x91
	OpF32Add      Op = 0x92
	OpF32Sub      Op = 0x93
	OpF32Mul      Op = 0x94
	OpF32Div      Op = 0x95
	OpF32Min      Op = 0x96
	OpF32Max      Op = 0x97
	OpF32Copysign Op = 0x98
)

// f64 unary/binary.
const (
	OpF64Abs      Op = 0x99
	OpF64Neg      Op = 0x9a
	OpF64Ceil     Op = 0x9b
	OpF64Floor    Op = 0x9c
	OpF64Trunc    Op = 0x9d
	OpF64Nearest  Op = 0x9e
	OpF64Sqrt     Op = 0x9f
	OpF64Add      Op = 0xa0
	OpF64Sub      Op = 0xa1
	OpF64Mul      Op = 0xa2
	OpF64Div      Op = 0xa3
	OpF64Min      Op = 0xa4
	OpF64Max      Op = 0xa5
	OpF64Copysign Op = 0xa6
)

// Conversions and reinterprets.
const (
	OpI32WrapI64      Op = 0xa7
	OpI32TruncF32S    Op = 0xa8
	OpI32TruncF32U    Op = 0xa9
	OpI32TruncF64S    Op = 0xaa
	OpI32TruncF64U    Op = 0xab
	OpI64ExtendI32S   Op = 0xac
	OpI64ExtendI32U   Op = 0xad
	OpI64TruncF32S    Op = 0xae
	OpI64TruncF32U    Op = 0xaf
	OpI64TruncF64S    Op = 0xb0
	OpI64TruncF64U    Op = 0xb1
	OpF32ConvertI32S  Op = 0xb2
	OpF32ConvertI32U  Op = 0xb3
	OpF32ConvertI64S  Op = 0xb4
	OpF32ConvertI64U  Op = 0xb5
	OpF32DemoteF64    Op = 0xb6
	OpF64ConvertI32S  Op = 0xb7
	OpF64ConvertI32U  Op = 0xb8
	OpF64ConvertI64S  Op = 0xb9
	OpF64ConvertI64U  Op = 0xba
	OpF64PromoteF32   Op = 0xbb
	OpI32ReinterpretF32 Op = 0xbc
	OpI64ReinterpretF64 Op = 0xbd
	OpF32ReinterpretI32 Op = 0xbe
	OpF64ReinterpretI64 Op = 0xbf
)

// Sign-extension opcodes recognized by the decoder but explicitly
// unimplemented.
const (
	OpI32Extend8S  Op = 0xc0
	OpI32Extend16S Op = 0xc1
	OpI64Extend8S  Op = 0xc2
	OpI64Extend16S Op = 0xc3
	OpI64Extend32S Op = 0xc4
)

// Reference-type instructions used only on the funcref table path.
const (
	OpRefNull   Op = 0xd0
	OpRefIsNull Op = 0xd1
	OpRefFunc   Op = 0xd2
)

// OpUnimplemented is a reserved synthetic opcode. The decoder does not
// emit it: sign-extension and saturating-truncation opcodes decode to
// their own Op values, and executeBlock traps on those with
// ErrNotImplemented instead of treating them as no-ops.
const OpUnimplemented Op = 0xff00

// Bulk-memory operations, folded from the 0xFC prefix byte plus a
// ULEB128 sub-opcode into a synthetic Op above the single-byte space.
const (
	OpMemoryInit Op = 0x1fc00 + 8
	OpDataDrop   Op = 0x1fc00 + 9
	OpMemoryCopy Op = 0x1fc00 + 10
	OpMemoryFill Op = 0x1fc00 + 11
	OpTableInit  Op = 0x1fc00 + 12
	OpElemDrop   Op = 0x1fc00 + 13
	OpTableCopy  Op = 0x1fc00 + 14
	OpTableGrow  Op = 0x1fc00 + 15
	OpTableSize  Op = 0x1fc00 + 16
	OpTableFill  Op = 0x1fc00 + 17

	// Saturating truncation, recognized but left unimplemented.
	OpI32TruncSatF32S Op = 0x1fc00 + 0
	OpI32TruncSatF32U Op = 0x1fc00 + 1
	OpI32TruncSatF64S Op = 0x1fc00 + 2
	OpI32TruncSatF64U Op = 0x1fc00 + 3
	OpI64TruncSatF32S Op = 0x1fc00 + 4
	OpI64TruncSatF32U Op = 0x1fc00 + 5
	OpI64TruncSatF64S Op = 0x1fc00 + 6
	OpI64TruncSatF64U Op = 0x1fc00 + 7
)

// isNoImmediateOp reports whether op takes no decoded immediate at all.
func isNoImmediateOp(op byte) bool {
	switch Op(op) {
	case OpUnreachable, OpNop, OpElse, OpEnd, OpReturn, OpDrop, OpSelect,
		OpI32Eqz, OpI32Eq, OpI32Ne, OpI32LtS, OpI32LtU, OpI32GtS, OpI32GtU, OpI32LeS, OpI32LeU, OpI32GeS, OpI32GeU,
		OpI64Eqz, OpI64Eq, OpI64Ne, OpI64LtS, OpI64LtU, OpI64GtS, OpI64GtU, OpI64LeS, OpI64LeU, OpI64GeS, OpI64GeU,
		OpF32Eq, OpF32Ne, OpF32Lt, OpF32Gt, OpF32Le, OpF32Ge, OpF64Eq, OpF64Ne, OpF64Lt, OpF64Gt, OpF64Le, OpF64Ge,
		OpI32Clz, OpI32Ctz, OpI32Popcnt, OpI32Add, OpI32Sub, OpI32Mul, OpI32DivS, OpI32DivU, OpI32RemS, OpI32RemU,
		OpI32And, OpI32Or, OpI32Xor, OpI32Shl, OpI32ShrS, OpI32ShrU, OpI32Rotl, OpI32Rotr,
		OpI64Clz, OpI64Ctz, OpI64Popcnt, OpI64Add, OpI64Sub, OpI64Mul, OpI64DivS, OpI64DivU, OpI64RemS, OpI64RemU,
		OpI64And, OpI64Or, OpI64Xor, OpI64Shl, OpI64ShrS, OpI64ShrU, OpI64Rotl, OpI64Rotr,
		OpF32Abs, OpF32Neg, OpF32Ceil, OpF32Floor, OpF32Trunc, OpF32Nearest, OpF32Sqrt,
		OpF32Add, OpF32Sub, OpF32Mul, OpF32Div, OpF32Min, OpF32Max, OpF32Copysign,
		OpF64Abs, OpF64Neg, OpF64Ceil, OpF64Floor, OpF64Trunc, OpF64Nearest, OpF64Sqrt,
		OpF64Add, OpF64Sub, OpF64Mul, OpF64Div, OpF64Min, OpF64Max, OpF64Copysign,
		OpI32WrapI64, OpI32TruncF32S, OpI32TruncF32U, OpI32TruncF64S, OpI32TruncF64U,
		OpI64ExtendI32S, OpI64ExtendI32U, OpI64TruncF32S, OpI64TruncF32U, OpI64TruncF64S, OpI64TruncF64U,
		OpF32ConvertI32S, OpF32ConvertI32U, OpF32ConvertI64S, OpF32ConvertI64U, OpF32DemoteF64,
		OpF64ConvertI32S, OpF64ConvertI32U, OpF64ConvertI64S, OpF64ConvertI64U, OpF64PromoteF32,
		OpI32ReinterpretF32, OpI64ReinterpretF64, OpF32ReinterpretI32, OpF64ReinterpretI64,
		OpI32Extend8S, OpI32Extend16S, OpI64Extend8S, OpI64Extend16S, OpI64Extend32S,
		OpRefIsNull:
		return true
	}
	return false
}

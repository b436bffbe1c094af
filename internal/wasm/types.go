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

// ValueType is a single value-type encoding byte.
type ValueType byte

// Value-type and reference-type encoding bytes.
const (
	ValTypeI32    ValueType = 0x7f
	ValTypeI64    ValueType = 0x7e
	ValTypeF32    ValueType = 0x7d
	ValTypeF64    ValueType = 0x7c
	ValTypeFuncRef ValueType = 0x70
)

// Recognized-but-unused heap-type tags, kept only so the decoder does
// not choke on a module that declares them (funcref tables are the
// only table kind this core actually executes).
const (
	HeapTypeFunc    ValueType = 0x74
	HeapTypeExtern  ValueType = 0x73
	HeapTypeNoFunc  ValueType = 0x72
	HeapTypeNoExtern ValueType = 0x71
	RefTypeExternRef ValueType = 0x6f
)

// String names a ValueType for diagnostics.
func (vt ValueType) String() string {
	switch vt {
	case ValTypeI32:
		return "i32"
	case ValTypeI64:
		return "i64"
	case ValTypeF32:
		return "f32"
	case ValTypeF64:
		return "f64"
	case ValTypeFuncRef:
		return "funcref"
	default:
		return "unknown"
	}
}

// FuncType is a function signature: ordered parameter types and at
// most one result type (the MVP restriction this core targets).
type FuncType struct {
	Params  []ValueType
	Results []ValueType
}

// String renders a signature as "(params) -> (results)" for
// diagnostics, e.g. in an indirect-call type-mismatch error.
func (ft FuncType) String() string {
	s := "("
	for i, p := range ft.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	s += ") -> ("
	for i, r := range ft.Results {
		if i > 0 {
			s += ", "
		}
		s += r.String()
	}
	return s + ")"
}

// Equal reports whether two signatures carry the same parameter and
// result types, used by call_indirect's type check.
func (ft FuncType) Equal(other FuncType) bool {
	if len(ft.Params) != len(other.Params) || len(ft.Results) != len(other.Results) {
		return false
	}
	for i := range ft.Params {
		if ft.Params[i] != other.Params[i] {
			return false
		}
	}
	for i := range ft.Results {
		if ft.Results[i] != other.Results[i] {
			return false
		}
	}
	return true
}

// Limits is the (min, max) pair shared by table and memory
// declarations; HasMax reports whether the max-present flag bit was set.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// TableType restricts this core to funcref tables.
type TableType struct {
	ElemType ValueType
	Limits   Limits
}

// MemType is a linear memory's page limits.
type MemType struct {
	Limits Limits
}

// GlobalType is a value type plus a mutability flag.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// ExportKind identifies what an export entry points at.
type ExportKind byte

const (
	ExportFunc ExportKind = iota
	ExportTable
	ExportMem
	ExportGlobal
	ExportTag
)

// Export is a (name, kind, index) triple.
type Export struct {
	Name string
	Kind ExportKind
	Index uint32
}

// ImportKind mirrors ExportKind for the import section's descriptor byte.
type ImportKind byte

const (
	ImportFunc ImportKind = iota
	ImportTable
	ImportMem
	ImportGlobal
	ImportTag
)

// Import is a (module, field, kind, descriptor) tuple. Only the
// descriptor relevant to its kind is populated.
type Import struct {
	Module string
	Field  string
	Kind   ImportKind

	FuncTypeIdx uint32
	TableType   TableType
	MemType     MemType
	GlobalType  GlobalType
}

// Global is a (mutability, Value) pair; Init holds the decoded
// constant-initializer instruction sequence evaluated at instantiation.
type Global struct {
	Type GlobalType
	Init []Instruction
}

// ElementSegment populates table entries: an initializer expression
// (evaluated to an i32 offset) plus a list of function indices.
type ElementSegment struct {
	TableIdx uint32
	Offset   []Instruction
	Funcs    []uint32
}

// DataSegment is a byte string plus the initializer expression that
// evaluates to its target offset in linear memory.
type DataSegment struct {
	MemIdx uint32
	Offset []Instruction
	Bytes  []byte
}

// Code is a defined function's body: a run-length-decoded local
// declaration vector (one ValueType per local slot) and its decoded
// instruction sequence.
type Code struct {
	Locals []ValueType
	Body   []Instruction
}

// Function is either an import stub (resolved by the host bridge) or
// a defined function with a body and a type index.
type Function struct {
	TypeIdx  uint32
	IsImport bool
	ImportIdx int // index into Module.Imports when IsImport
	CodeIdx   int // index into Module.Codes when !IsImport
}

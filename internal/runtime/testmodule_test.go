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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotandev/stackvm/internal/leb"
	"github.com/dotandev/stackvm/internal/wasm"
)

func u32b(v uint32) []byte { return leb.EncodeU32(v) }

func nameBytes(s string) []byte {
	return append(u32b(uint32(len(s))), []byte(s)...)
}

func section(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, u32b(uint32(len(payload)))...)
	out = append(out, payload...)
	return out
}

// funcSpec is one function's signature and body, used by moduleBuilder
// to assemble a minimal binary module without hand-tracking section byte
// offsets in every test.
type funcSpec struct {
	params  []wasm.ValueType
	results []wasm.ValueType
	locals  []wasm.ValueType
	body    []byte // raw bytes, Op sequence not including a trailing End
}

// importSpec declares one imported function, placed at the front of
// the combined function index space (per the format: all function
// imports precede all defined functions).
type importSpec struct {
	module, field string
	params        []wasm.ValueType
	results       []wasm.ValueType
}

// moduleBuilder assembles a binary module exporting each funcSpec under
// its given name, plus an optional memory/table/data/element section.
type moduleBuilder struct {
	imports     []importSpec
	funcs       []funcSpec
	exportNames []string
	memoryMin   uint32
	memoryMax   uint32
	hasMemory   bool
	hasMemMax   bool
	tableMin    uint32
	hasTable    bool
	elemOffset  int32
	elemFuncs   []uint32
	hasElem     bool
	dataOffset  int32
	dataBytes   []byte
	hasData     bool
}

func (mb *moduleBuilder) addFunc(name string, spec funcSpec) {
	mb.funcs = append(mb.funcs, spec)
	mb.exportNames = append(mb.exportNames, name)
}

func (mb *moduleBuilder) addImport(module, field string, params, results []wasm.ValueType) {
	mb.imports = append(mb.imports, importSpec{module: module, field: field, params: params, results: results})
}

func encodeFuncType(params, results []wasm.ValueType) []byte {
	ft := []byte{0x60}
	ft = append(ft, u32b(uint32(len(params)))...)
	for _, p := range params {
		ft = append(ft, byte(p))
	}
	ft = append(ft, u32b(uint32(len(results)))...)
	for _, r := range results {
		ft = append(ft, byte(r))
	}
	return ft
}

func (mb *moduleBuilder) build() []byte {
	var typeSec, funcSec, codeSec, exportSec, importSec []byte
	typeSec = append(typeSec, u32b(uint32(len(mb.imports)+len(mb.funcs)))...)
	funcSec = append(funcSec, u32b(uint32(len(mb.funcs)))...)
	codeSec = append(codeSec, u32b(uint32(len(mb.funcs)))...)

	// import-derived function types occupy the low end of the Types
	// slice; defined functions' type indices are offset by len(mb.imports).
	importSec = append(importSec, u32b(uint32(len(mb.imports)))...)
	for i, imp := range mb.imports {
		typeSec = append(typeSec, encodeFuncType(imp.params, imp.results)...)
		importSec = append(importSec, nameBytes(imp.module)...)
		importSec = append(importSec, nameBytes(imp.field)...)
		importSec = append(importSec, byte(wasm.ImportFunc))
		importSec = append(importSec, u32b(uint32(i))...)
	}

	var exportCount uint32
	for i, f := range mb.funcs {
		typeSec = append(typeSec, encodeFuncType(f.params, f.results)...)
		funcSec = append(funcSec, u32b(uint32(len(mb.imports)+i))...)

		var code []byte
		if len(f.locals) == 0 {
			code = append(code, u32b(0)...)
		} else {
			code = append(code, u32b(1)...)
			code = append(code, u32b(uint32(len(f.locals)))...)
			code = append(code, byte(f.locals[0]))
		}
		code = append(code, f.body...)
		code = append(code, byte(wasm.OpEnd))
		codeSec = append(codeSec, u32b(uint32(len(code)))...)
		codeSec = append(codeSec, code...)

		if mb.exportNames[i] != "" {
			exportCount++
		}
	}

	exportSec = append(exportSec, u32b(exportCount)...)
	for i, n := range mb.exportNames {
		if n == "" {
			continue
		}
		exportSec = append(exportSec, nameBytes(n)...)
		exportSec = append(exportSec, byte(wasm.ExportFunc))
		exportSec = append(exportSec, u32b(uint32(len(mb.imports)+i))...)
	}

	var out []byte
	out = append(out, 0x00, 0x61, 0x73, 0x6d, 1, 0, 0, 0)
	out = append(out, section(wasm.SecType, typeSec)...)
	if len(mb.imports) > 0 {
		out = append(out, section(wasm.SecImport, importSec)...)
	}
	out = append(out, section(wasm.SecFunction, funcSec)...)

	if mb.hasTable {
		tableSec := append(u32b(1), byte(wasm.ValTypeFuncRef))
		if mb.hasTable {
			tableSec = append(tableSec, u32b(0)...) // no-max flag
			tableSec = append(tableSec, u32b(mb.tableMin)...)
		}
		out = append(out, section(wasm.SecTable, tableSec)...)
	}

	if mb.hasMemory {
		var memSec []byte
		memSec = append(memSec, u32b(1)...)
		if mb.hasMemMax {
			memSec = append(memSec, u32b(1)...)
			memSec = append(memSec, u32b(mb.memoryMin)...)
			memSec = append(memSec, u32b(mb.memoryMax)...)
		} else {
			memSec = append(memSec, u32b(0)...)
			memSec = append(memSec, u32b(mb.memoryMin)...)
		}
		out = append(out, section(wasm.SecMemory, memSec)...)
	}

	out = append(out, section(wasm.SecExport, exportSec)...)

	if mb.hasElem {
		elemSec := u32b(1)
		elemSec = append(elemSec, u32b(0)...) // flags: active, table 0
		elemSec = append(elemSec, byte(wasm.OpI32Const))
		elemSec = append(elemSec, leb.EncodeS64(int64(mb.elemOffset))...)
		elemSec = append(elemSec, byte(wasm.OpEnd))
		elemSec = append(elemSec, u32b(uint32(len(mb.elemFuncs)))...)
		for _, f := range mb.elemFuncs {
			elemSec = append(elemSec, u32b(f)...)
		}
		out = append(out, section(wasm.SecElement, elemSec)...)
	}

	out = append(out, section(wasm.SecCode, codeSec)...)

	if mb.hasData {
		dataSec := u32b(1)
		dataSec = append(dataSec, u32b(0)...) // flags: active, memory 0
		dataSec = append(dataSec, byte(wasm.OpI32Const))
		dataSec = append(dataSec, leb.EncodeS64(int64(mb.dataOffset))...)
		dataSec = append(dataSec, byte(wasm.OpEnd))
		dataSec = append(dataSec, u32b(uint32(len(mb.dataBytes)))...)
		dataSec = append(dataSec, mb.dataBytes...)
		out = append(out, section(wasm.SecData, dataSec)...)
	}

	return out
}

func mustInstantiate(t *testing.T, data []byte, opts Options) *Runtime {
	t.Helper()
	mod, err := wasm.Decode(data)
	require.NoError(t, err)
	rt, err := New(mod, opts)
	require.NoError(t, err)
	return rt
}

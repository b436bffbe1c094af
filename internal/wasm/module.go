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
	"bytes"
	"fmt"

	"github.com/dotandev/stackvm/internal/errors"
	"github.com/dotandev/stackvm/internal/leb"
)

// Section ids recognized by the module decoder.
const (
	SecCustom   = 0
	SecType     = 1
	SecImport   = 2
	SecFunction = 3
	SecTable    = 4
	SecMemory   = 5
	SecGlobal   = 6
	SecExport   = 7
	SecStart    = 8
	SecElement  = 9
	SecCode     = 10
	SecData     = 11
	SecDataCount = 12
	SecTag      = 13
)

var magic = []byte{0x00, 0x61, 0x73, 0x6d}

const version1 = 1

// Module is the decoded, immutable in-memory representation of a
// binary WASM file. The runtime borrows it for the lifetime of a run;
// only data segments are cloned out into the runtime instance (see
// internal/runtime), since data.drop must not mutate the shared image.
type Module struct {
	Types     []FuncType
	Imports   []Import

	ImportedFuncCount   int
	ImportedTableCount  int
	ImportedMemCount    int
	ImportedGlobalCount int

	FuncTypeIdxs []uint32 // one per defined function, parallel to Codes
	Codes        []Code

	Tables    []TableType
	Memories  []MemType
	Globals   []Global
	Exports   []Export
	Start     *uint32
	Elements  []ElementSegment
	Data      []DataSegment

	CustomSections map[string][]byte
}

// TotalFuncCount is imports + defined functions, the index space Call
// and CallIndirect operate over.
func (m *Module) TotalFuncCount() int {
	return m.ImportedFuncCount + len(m.Codes)
}

// FuncType resolves a function index (spanning imports then defined
// functions) to its signature.
func (m *Module) FuncType(idx uint32) (FuncType, error) {
	if int(idx) < m.ImportedFuncCount {
		imp := m.funcImportAt(int(idx))
		if imp == nil || int(imp.FuncTypeIdx) >= len(m.Types) {
			return FuncType{}, errors.WrapInvalidFunctionIndex(idx, m.TotalFuncCount())
		}
		return m.Types[imp.FuncTypeIdx], nil
	}
	defIdx := int(idx) - m.ImportedFuncCount
	if defIdx < 0 || defIdx >= len(m.FuncTypeIdxs) {
		return FuncType{}, errors.WrapInvalidFunctionIndex(idx, m.TotalFuncCount())
	}
	typeIdx := m.FuncTypeIdxs[defIdx]
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, errors.WrapWasmInvalid("function type index out of range")
	}
	return m.Types[typeIdx], nil
}

func (m *Module) funcImportAt(idx int) *Import {
	count := 0
	for i := range m.Imports {
		if m.Imports[i].Kind != ImportFunc {
			continue
		}
		if count == idx {
			return &m.Imports[i]
		}
		count++
	}
	return nil
}

// FuncImport returns the Import describing an imported function index,
// or nil if idx does not name an import.
func (m *Module) FuncImport(idx uint32) *Import {
	if int(idx) >= m.ImportedFuncCount {
		return nil
	}
	return m.funcImportAt(int(idx))
}

// ExportedFunc looks up a func export by name.
func (m *Module) ExportedFunc(name string) (uint32, error) {
	for _, e := range m.Exports {
		if e.Kind == ExportFunc && e.Name == name {
			return e.Index, nil
		}
	}
	return 0, errors.WrapExportNotFound(name)
}

// Decode parses a full binary WASM module.
func Decode(data []byte) (*Module, error) {
	if len(data) < 8 || !bytes.Equal(data[:4], magic) {
		return nil, errors.WrapWasmInvalid("missing or malformed wasm magic header")
	}
	ver := uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16 | uint32(data[7])<<24
	if ver != version1 {
		return nil, errors.WrapWasmInvalid(fmt.Sprintf("unsupported wasm version %d", ver))
	}

	m := &Module{CustomSections: make(map[string][]byte)}
	r := leb.NewReader(data[8:])

	for !r.Done() {
		idByte, err := r.Byte()
		if err != nil {
			return nil, err
		}
		size, err := r.U32()
		if err != nil {
			return nil, err
		}
		payload, err := r.Bytes(int(size))
		if err != nil {
			return nil, errors.WrapWasmInvalid("section payload runs past end of file")
		}

		pr := leb.NewReader(payload)
		if err := m.decodeSection(idByte, pr); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Module) decodeSection(id byte, r *leb.Reader) error {
	switch id {
	case SecCustom:
		name, err := r.Name()
		if err != nil {
			return err
		}
		rest, err := r.Bytes(r.Len())
		if err != nil {
			return err
		}
		m.CustomSections[name] = rest
		return nil
	case SecType:
		return m.decodeTypeSection(r)
	case SecImport:
		return m.decodeImportSection(r)
	case SecFunction:
		return m.decodeFunctionSection(r)
	case SecTable:
		return m.decodeTableSection(r)
	case SecMemory:
		return m.decodeMemorySection(r)
	case SecGlobal:
		return m.decodeGlobalSection(r)
	case SecExport:
		return m.decodeExportSection(r)
	case SecStart:
		idx, err := r.U32()
		if err != nil {
			return err
		}
		m.Start = &idx
		return nil
	case SecElement:
		return m.decodeElementSection(r)
	case SecCode:
		return m.decodeCodeSection(r)
	case SecData:
		return m.decodeDataSection(r)
	case SecDataCount:
		_, err := r.U32()
		return err
	case SecTag:
		return nil
	default:
		return errors.WrapWasmInvalid(fmt.Sprintf("unknown section id %d", id))
	}
}

func decodeLimits(r *leb.Reader) (Limits, error) {
	flags, err := r.U32()
	if err != nil {
		return Limits{}, err
	}
	min, err := r.U32()
	if err != nil {
		return Limits{}, err
	}
	l := Limits{Min: min}
	if flags&0x01 != 0 {
		max, err := r.U32()
		if err != nil {
			return Limits{}, err
		}
		l.Max = max
		l.HasMax = true
	}
	return l, nil
}

func decodeValueType(r *leb.Reader) (ValueType, error) {
	b, err := r.Byte()
	if err != nil {
		return 0, err
	}
	return ValueType(b), nil
}

func (m *Module) decodeTypeSection(r *leb.Reader) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		tag, err := r.Byte()
		if err != nil {
			return err
		}
		if tag != 0x60 {
			return errors.WrapWasmInvalid(fmt.Sprintf("function type tag 0x%02x, want 0x60", tag))
		}
		pc, err := r.U32()
		if err != nil {
			return err
		}
		params := make([]ValueType, 0, pc)
		for p := uint32(0); p < pc; p++ {
			vt, err := decodeValueType(r)
			if err != nil {
				return err
			}
			params = append(params, vt)
		}
		rc, err := r.U32()
		if err != nil {
			return err
		}
		results := make([]ValueType, 0, rc)
		for rr := uint32(0); rr < rc; rr++ {
			vt, err := decodeValueType(r)
			if err != nil {
				return err
			}
			results = append(results, vt)
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func (m *Module) decodeImportSection(r *leb.Reader) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		modName, err := r.Name()
		if err != nil {
			return err
		}
		field, err := r.Name()
		if err != nil {
			return err
		}
		kindByte, err := r.Byte()
		if err != nil {
			return err
		}
		imp := Import{Module: modName, Field: field, Kind: ImportKind(kindByte)}
		switch ImportKind(kindByte) {
		case ImportFunc:
			idx, err := r.U32()
			if err != nil {
				return err
			}
			imp.FuncTypeIdx = idx
			m.ImportedFuncCount++
		case ImportTable:
			elemType, err := decodeValueType(r)
			if err != nil {
				return err
			}
			lim, err := decodeLimits(r)
			if err != nil {
				return err
			}
			imp.TableType = TableType{ElemType: elemType, Limits: lim}
			m.ImportedTableCount++
		case ImportMem:
			lim, err := decodeLimits(r)
			if err != nil {
				return err
			}
			imp.MemType = MemType{Limits: lim}
			m.ImportedMemCount++
		case ImportGlobal:
			vt, err := decodeValueType(r)
			if err != nil {
				return err
			}
			mutByte, err := r.Byte()
			if err != nil {
				return err
			}
			imp.GlobalType = GlobalType{ValType: vt, Mutable: mutByte == 1}
			m.ImportedGlobalCount++
		case ImportTag:
			if _, err := r.Byte(); err != nil {
				return err
			}
			if _, err := r.U32(); err != nil {
				return err
			}
		default:
			return errors.WrapWasmInvalid(fmt.Sprintf("unsupported import kind %d", kindByte))
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func (m *Module) decodeFunctionSection(r *leb.Reader) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	m.FuncTypeIdxs = make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		idx, err := r.U32()
		if err != nil {
			return err
		}
		m.FuncTypeIdxs = append(m.FuncTypeIdxs, idx)
	}
	return nil
}

func (m *Module) decodeTableSection(r *leb.Reader) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		elemType, err := decodeValueType(r)
		if err != nil {
			return err
		}
		if elemType != ValTypeFuncRef {
			return errors.WrapUnsupportedFeature("only funcref tables are supported")
		}
		lim, err := decodeLimits(r)
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, TableType{ElemType: elemType, Limits: lim})
	}
	return nil
}

func (m *Module) decodeMemorySection(r *leb.Reader) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		lim, err := decodeLimits(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, MemType{Limits: lim})
	}
	return nil
}

func (m *Module) decodeGlobalSection(r *leb.Reader) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		vt, err := decodeValueType(r)
		if err != nil {
			return err
		}
		mutByte, err := r.Byte()
		if err != nil {
			return err
		}
		init, err := DecodeExpr(r)
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{
			Type: GlobalType{ValType: vt, Mutable: mutByte == 1},
			Init: init,
		})
	}
	return nil
}

func (m *Module) decodeExportSection(r *leb.Reader) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.Name()
		if err != nil {
			return err
		}
		kindByte, err := r.Byte()
		if err != nil {
			return err
		}
		idx, err := r.U32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: ExportKind(kindByte), Index: idx})
	}
	return nil
}

func (m *Module) decodeElementSection(r *leb.Reader) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.U32()
		if err != nil {
			return err
		}
		seg := ElementSegment{}
		switch flags {
		case 0:
			off, err := DecodeExpr(r)
			if err != nil {
				return err
			}
			seg.Offset = off
			funcs, err := decodeFuncIdxVec(r)
			if err != nil {
				return err
			}
			seg.Funcs = funcs
		case 1:
			if _, err := r.Byte(); err != nil {
				return err
			}
			funcs, err := decodeFuncIdxVec(r)
			if err != nil {
				return err
			}
			seg.Funcs = funcs
		case 2:
			tblIdx, err := r.U32()
			if err != nil {
				return err
			}
			seg.TableIdx = tblIdx
			off, err := DecodeExpr(r)
			if err != nil {
				return err
			}
			seg.Offset = off
			if _, err := r.Byte(); err != nil {
				return err
			}
			funcs, err := decodeFuncIdxVec(r)
			if err != nil {
				return err
			}
			seg.Funcs = funcs
		default:
			return errors.WrapUnsupportedFeature(fmt.Sprintf("element segment flags %d", flags))
		}
		m.Elements = append(m.Elements, seg)
	}
	return nil
}

func decodeFuncIdxVec(r *leb.Reader) ([]uint32, error) {
	count, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		idx, err := r.U32()
		if err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, nil
}

func (m *Module) decodeCodeSection(r *leb.Reader) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		bodySize, err := r.U32()
		if err != nil {
			return err
		}
		bodyBytes, err := r.Bytes(int(bodySize))
		if err != nil {
			return err
		}
		br := leb.NewReader(bodyBytes)

		declCount, err := br.U32()
		if err != nil {
			return err
		}
		var locals []ValueType
		for d := uint32(0); d < declCount; d++ {
			n, err := br.U32()
			if err != nil {
				return err
			}
			vt, err := decodeValueType(br)
			if err != nil {
				return err
			}
			for k := uint32(0); k < n; k++ {
				locals = append(locals, vt)
			}
		}

		body, err := DecodeExpr(br)
		if err != nil {
			return err
		}
		m.Codes = append(m.Codes, Code{Locals: locals, Body: body})
	}
	return nil
}

func (m *Module) decodeDataSection(r *leb.Reader) error {
	count, err := r.U32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.U32()
		if err != nil {
			return err
		}
		seg := DataSegment{}
		switch flags {
		case 0:
			off, err := DecodeExpr(r)
			if err != nil {
				return err
			}
			seg.Offset = off
		case 1:
			// passive segment: no offset, used only via memory.init
		case 2:
			memIdx, err := r.U32()
			if err != nil {
				return err
			}
			seg.MemIdx = memIdx
			off, err := DecodeExpr(r)
			if err != nil {
				return err
			}
			seg.Offset = off
		default:
			return errors.WrapUnsupportedFeature(fmt.Sprintf("data segment flags %d", flags))
		}
		n, err := r.U32()
		if err != nil {
			return err
		}
		raw, err := r.Bytes(int(n))
		if err != nil {
			return err
		}
		seg.Bytes = raw
		m.Data = append(m.Data, seg)
	}
	return nil
}

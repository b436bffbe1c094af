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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotandev/stackvm/internal/leb"
)

func u32(v uint32) []byte { return leb.EncodeU32(v) }

func name(s string) []byte {
	return append(u32(uint32(len(s))), []byte(s)...)
}

func section(id byte, payload []byte) []byte {
	out := []byte{id}
	out = append(out, u32(uint32(len(payload)))...)
	out = append(out, payload...)
	return out
}

// buildAddModule constructs a minimal module exporting a two-param
// "add" function: (i32, i32) -> i32, body local.get 0, local.get 1, i32.add.
func buildAddModule(t *testing.T) []byte {
	t.Helper()

	funcType := []byte{0x60}
	funcType = append(funcType, u32(2)...)
	funcType = append(funcType, byte(ValTypeI32), byte(ValTypeI32))
	funcType = append(funcType, u32(1)...)
	funcType = append(funcType, byte(ValTypeI32))
	typeSec := section(SecType, append(u32(1), funcType...))
	funcSec := section(SecFunction, append(u32(1), u32(0)...))
	exportSec := section(SecExport, append(u32(1), append(append(name("add"), byte(ExportFunc)), u32(0)...)...))

	body := []byte{
		byte(OpLocalGet), 0,
		byte(OpLocalGet), 1,
		byte(OpI32Add),
		byte(OpEnd),
	}
	codeBody := append(u32(0), body...) // 0 local decls
	codeSec := section(SecCode, append(u32(1), append(u32(uint32(len(codeBody))), codeBody...)...))

	var out []byte
	out = append(out, magic...)
	out = append(out, 1, 0, 0, 0)
	out = append(out, typeSec...)
	out = append(out, funcSec...)
	out = append(out, exportSec...)
	out = append(out, codeSec...)
	return out
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte{0, 1, 2, 3, 1, 0, 0, 0})
	assert.Error(t, err)
}

func TestDecodeRejectsTruncatedHeader(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x61})
	assert.Error(t, err)
}

func TestDecodeAddModule(t *testing.T) {
	data := buildAddModule(t)
	mod, err := Decode(data)
	require.NoError(t, err)

	require.Len(t, mod.Types, 1)
	assert.Equal(t, []ValueType{ValTypeI32, ValTypeI32}, mod.Types[0].Params)
	assert.Equal(t, []ValueType{ValTypeI32}, mod.Types[0].Results)

	idx, err := mod.ExportedFunc("add")
	require.NoError(t, err)
	assert.Equal(t, uint32(0), idx)

	require.Len(t, mod.Codes, 1)
	body := mod.Codes[0].Body
	require.Len(t, body, 4)
	assert.Equal(t, OpLocalGet, body[0].Op)
	assert.Equal(t, uint32(0), body[0].DestIdx)
	assert.Equal(t, OpI32Add, body[2].Op)
}

func TestDecodeExportNotFound(t *testing.T) {
	data := buildAddModule(t)
	mod, err := Decode(data)
	require.NoError(t, err)
	_, err = mod.ExportedFunc("missing")
	assert.Error(t, err)
}

func TestDecodeCustomSectionPreserved(t *testing.T) {
	data := buildAddModule(t)
	custom := section(SecCustom, append(name("producers"), []byte("hello")...))
	data = append(data, custom...)

	mod, err := Decode(data)
	require.NoError(t, err)
	raw, ok := mod.CustomSections["producers"]
	require.True(t, ok)
	assert.Equal(t, "hello", string(raw))
}

func TestFuncTypeLookup(t *testing.T) {
	data := buildAddModule(t)
	mod, err := Decode(data)
	require.NoError(t, err)
	ft, err := mod.FuncType(0)
	require.NoError(t, err)
	assert.Len(t, ft.Params, 2)
}

func TestFuncTypeInvalidIndex(t *testing.T) {
	data := buildAddModule(t)
	mod, err := Decode(data)
	require.NoError(t, err)
	_, err = mod.FuncType(99)
	assert.Error(t, err)
}

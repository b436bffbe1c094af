// Copyright 2025 StackVM Users
// SPDX-License-Identifier: Apache-2.0

package abi

import (
	"testing"

	"github.com/dotandev/stackvm/internal/wasm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type customSection struct {
	name    string
	payload []byte
}

// buildWasm constructs a minimal WASM binary with the given custom sections.
func buildWasm(sections ...customSection) []byte {
	buf := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	for _, sec := range sections {
		nameBytes := []byte(sec.name)
		content := appendLEB128(nil, uint32(len(nameBytes)))
		content = append(content, nameBytes...)
		content = append(content, sec.payload...)

		buf = append(buf, 0x00) // section ID = 0 (custom)
		buf = appendLEB128(buf, uint32(len(content)))
		buf = append(buf, content...)
	}

	return buf
}

// buildWasmWithNonCustomSection constructs a WASM binary with a non-custom
// section (type section, id=1) followed by a custom section.
func buildWasmWithNonCustomSection(customName string, customPayload []byte) []byte {
	buf := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	// Type section (id=1) with zero types
	typeSectionContent := []byte{0x00}
	buf = append(buf, 0x01)
	buf = appendLEB128(buf, uint32(len(typeSectionContent)))
	buf = append(buf, typeSectionContent...)

	nameBytes := []byte(customName)
	content := appendLEB128(nil, uint32(len(nameBytes)))
	content = append(content, nameBytes...)
	content = append(content, customPayload...)
	buf = append(buf, 0x00)
	buf = appendLEB128(buf, uint32(len(content)))
	buf = append(buf, content...)

	return buf
}

func appendLEB128(buf []byte, val uint32) []byte {
	for {
		b := byte(val & 0x7f)
		val >>= 7
		if val != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if val == 0 {
			break
		}
	}
	return buf
}

func decodeOrFatal(t *testing.T, data []byte) *wasm.Module {
	t.Helper()
	mod, err := wasm.Decode(data)
	require.NoError(t, err)
	return mod
}

func TestExtractCustomSection_Found(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	mod := decodeOrFatal(t, buildWasm(customSection{"contractspecv0", payload}))

	result := ExtractCustomSection(mod, "contractspecv0")
	assert.Equal(t, payload, result)
}

func TestExtractCustomSection_NotFound(t *testing.T) {
	mod := decodeOrFatal(t, buildWasm(customSection{"other_section", []byte{0x01}}))

	result := ExtractCustomSection(mod, "contractspecv0")
	assert.Nil(t, result)
}

func TestExtractCustomSection_EmptyPayload(t *testing.T) {
	mod := decodeOrFatal(t, buildWasm(customSection{"contractspecv0", nil}))

	result := ExtractCustomSection(mod, "contractspecv0")
	assert.Equal(t, []byte{}, result)
}

func TestExtractCustomSection_MultipleCustomSections(t *testing.T) {
	payload1 := []byte{0x01, 0x02}
	payload2 := []byte{0x03, 0x04}
	mod := decodeOrFatal(t, buildWasm(
		customSection{"other", payload1},
		customSection{"contractspecv0", payload2},
	))

	result := ExtractCustomSection(mod, "contractspecv0")
	assert.Equal(t, payload2, result)
}

func TestExtractCustomSection_SkipsNonCustomSections(t *testing.T) {
	payload := []byte{0xCA, 0xFE}
	mod := decodeOrFatal(t, buildWasmWithNonCustomSection("contractspecv0", payload))

	result := ExtractCustomSection(mod, "contractspecv0")
	assert.Equal(t, payload, result)
}

func TestExtractCustomSection_InvalidMagicFailsAtDecode(t *testing.T) {
	data := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x01, 0x00, 0x00, 0x00}

	_, err := wasm.Decode(data)
	require.Error(t, err)
}

func TestExtractCustomSection_TruncatedSectionFailsAtDecode(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	data = append(data, 0x00) // section ID = 0
	data = append(data, 0xFF) // LEB128 length continuation byte, truncated

	_, err := wasm.Decode(data)
	require.Error(t, err)
}

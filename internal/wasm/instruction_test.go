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

// buildExpr concatenates raw instruction bytes and appends the
// terminating End, matching the shape a code body's expression takes.
func buildExpr(b ...byte) []byte {
	return append(b, byte(OpEnd))
}

func TestDecodeExprSimpleSequence(t *testing.T) {
	// i32.const 10, i32.const 5, i32.add, end
	data := buildExpr(byte(OpI32Const), 10, byte(OpI32Const), 5, byte(OpI32Add))
	insts, err := DecodeExpr(leb.NewReader(data))
	require.NoError(t, err)
	require.Len(t, insts, 4)
	assert.Equal(t, OpI32Const, insts[0].Op)
	assert.Equal(t, int32(10), insts[0].Imm32)
	assert.Equal(t, OpI32Add, insts[2].Op)
	assert.Equal(t, OpEnd, insts[3].Op)
}

func TestDecodeExprBlockEndIndex(t *testing.T) {
	// block (void) / nop / end / end
	data := buildExpr(byte(OpBlock), 0x40, byte(OpNop), byte(OpEnd))
	insts, err := DecodeExpr(leb.NewReader(data))
	require.NoError(t, err)
	require.Len(t, insts, 4)
	assert.Equal(t, OpBlock, insts[0].Op)
	assert.Equal(t, 2, insts[0].EndIdx) // points at the block's own End, index 2
	assert.Equal(t, OpNop, insts[1].Op)
	assert.Equal(t, OpEnd, insts[2].Op)
	assert.Equal(t, OpEnd, insts[3].Op) // terminating end of the outer expr
}

func TestDecodeExprIfElseEndIndices(t *testing.T) {
	// if (void) / i32.const 1 / else / i32.const 2 / end / end
	data := buildExpr(
		byte(OpIf), 0x40,
		byte(OpI32Const), 1,
		byte(OpElse),
		byte(OpI32Const), 2,
		byte(OpEnd),
	)
	insts, err := DecodeExpr(leb.NewReader(data))
	require.NoError(t, err)
	// if, i32.const 1, else, i32.const 2, end, end(outer)
	require.Len(t, insts, 6)
	assert.Equal(t, OpIf, insts[0].Op)
	assert.Equal(t, 2, insts[0].ElseIdx)
	assert.Equal(t, 4, insts[0].EndIdx)
	assert.Equal(t, OpElse, insts[2].Op)
}

func TestDecodeExprNestedBlocks(t *testing.T) {
	data := buildExpr(
		byte(OpBlock), 0x40, // 0
		byte(OpLoop), 0x40, // 1
		byte(OpNop),        // 2
		byte(OpEnd),        // 3 closes loop
		byte(OpEnd),        // 4 closes block
	)
	insts, err := DecodeExpr(leb.NewReader(data))
	require.NoError(t, err)
	require.Len(t, insts, 6)
	assert.Equal(t, 4, insts[0].EndIdx) // block closes at index 4
	assert.Equal(t, 3, insts[1].EndIdx) // loop closes at index 3
}

func TestDecodeExprBlockWithResultType(t *testing.T) {
	data := buildExpr(byte(OpBlock), byte(ValTypeI32), byte(OpI32Const), 7, byte(OpEnd))
	insts, err := DecodeExpr(leb.NewReader(data))
	require.NoError(t, err)
	assert.True(t, insts[0].HasBlockType)
	assert.Equal(t, ValTypeI32, insts[0].BlockType)
}

func TestDecodeExprUnsupportedBlockType(t *testing.T) {
	data := buildExpr(byte(OpBlock), 0x00, byte(OpEnd)) // bogus byte not in the recognized set
	_, err := DecodeExpr(leb.NewReader(data))
	assert.Error(t, err)
}

func TestDecodeExprElseWithoutIf(t *testing.T) {
	data := buildExpr(byte(OpElse))
	_, err := DecodeExpr(leb.NewReader(data))
	assert.Error(t, err)
}

func TestDecodeExprMemArg(t *testing.T) {
	data := buildExpr(byte(OpI32Load), 2, 4) // align=2, offset=4
	insts, err := DecodeExpr(leb.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), insts[0].MemAlign)
	assert.Equal(t, uint32(4), insts[0].MemOffset)
}

func TestDecodeExprBrTable(t *testing.T) {
	data := buildExpr(byte(OpBrTable), 2, 0, 1, 2) // 2 targets then default
	insts, err := DecodeExpr(leb.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1}, insts[0].BrTargets)
	assert.Equal(t, uint32(2), insts[0].BrDefault)
}

func TestDecodeExprBulkMemoryFill(t *testing.T) {
	data := buildExpr(0xfc, 11, 0x00) // memory.fill, reserved mem idx byte
	insts, err := DecodeExpr(leb.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, OpMemoryFill, insts[0].Op)
}

func TestDecodeExprCallIndirect(t *testing.T) {
	data := buildExpr(byte(OpCallIndirect), 3, 0)
	insts, err := DecodeExpr(leb.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), insts[0].TypeIdx)
	assert.Equal(t, uint32(0), insts[0].TableIdx)
}

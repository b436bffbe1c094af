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

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	assert.NotNil(t, ErrWasmInvalid)
	assert.NotNil(t, ErrTruncated)
	assert.NotNil(t, ErrUnsupportedFeature)
	assert.NotNil(t, ErrStackUnderflow)
	assert.NotNil(t, ErrDivideByZero)
	assert.NotNil(t, ErrMemoryOutOfBounds)
	assert.NotNil(t, ErrIndirectCallMismatch)
}

func TestErrorWrapping(t *testing.T) {
	wrapped := WrapWasmInvalid("bad magic bytes")
	assert.True(t, errors.Is(wrapped, ErrWasmInvalid))
	assert.Contains(t, wrapped.Error(), "bad magic bytes")

	wrapped = WrapTruncated("leb128 ran past end of buffer")
	assert.True(t, errors.Is(wrapped, ErrTruncated))

	wrapped = WrapStackUnderflow("i32.add")
	assert.True(t, errors.Is(wrapped, ErrStackUnderflow))
	assert.Contains(t, wrapped.Error(), "i32.add")

	wrapped = WrapDivideByZero("i32.div_s")
	assert.True(t, errors.Is(wrapped, ErrDivideByZero))

	wrapped = WrapMemoryOutOfBounds("i32.load", 100, 4, 64)
	assert.True(t, errors.Is(wrapped, ErrMemoryOutOfBounds))
	assert.Contains(t, wrapped.Error(), "i32.load")

	wrapped = WrapIndirectCallMismatch(2, "(i32)->i32", "(i32,i32)->i32")
	assert.True(t, errors.Is(wrapped, ErrIndirectCallMismatch))

	wrapped = WrapExportNotFound("_start")
	assert.True(t, errors.Is(wrapped, ErrExportNotFound))
	assert.Contains(t, wrapped.Error(), "_start")

	wrapped = WrapHostCallFailed("fd_write", fmt.Errorf("broken pipe"))
	assert.True(t, errors.Is(wrapped, ErrHostCallFailed))
	assert.Contains(t, wrapped.Error(), "broken pipe")
}

func TestErrorComparison(t *testing.T) {
	err1 := WrapWasmInvalid("truncated header")
	err2 := WrapStackUnderflow("drop")

	assert.True(t, errors.Is(err1, ErrWasmInvalid))
	assert.False(t, errors.Is(err1, ErrStackUnderflow))

	assert.True(t, errors.Is(err2, ErrStackUnderflow))
	assert.False(t, errors.Is(err2, ErrWasmInvalid))
}

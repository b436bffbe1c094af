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

// Frame is the per-call state: a single linear namespace of locals
// where indices below the parameter count refer to parameters and
// higher indices refer to declared locals. The operand stack is
// shared across all frames: callers observe callee pushes directly.
type Frame struct {
	Locals []wasm.Value
}

// Get reads a local by index.
func (f *Frame) Get(idx uint32) (wasm.Value, error) {
	if int(idx) >= len(f.Locals) {
		return wasm.Value{}, errors.WrapInvalidLocalIndex(idx, len(f.Locals))
	}
	return f.Locals[idx], nil
}

// Set writes a local by index.
func (f *Frame) Set(idx uint32, v wasm.Value) error {
	if int(idx) >= len(f.Locals) {
		return errors.WrapInvalidLocalIndex(idx, len(f.Locals))
	}
	f.Locals[idx] = v
	return nil
}

// newFrame builds the callee's frame for a direct or indirect call:
// params are supplied in signature order, locals declared in the body
// are zero-initialized by type.
func newFrame(params []wasm.Value, localTypes []wasm.ValueType) *Frame {
	locals := make([]wasm.Value, len(params)+len(localTypes))
	copy(locals, params)
	for i, vt := range localTypes {
		locals[len(params)+i] = wasm.ZeroOf(vt)
	}
	return &Frame{Locals: locals}
}

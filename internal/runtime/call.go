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

// CallByIndex invokes a function (imported or defined) by its index in
// the combined import+defined function space, popping its arguments
// off the shared operand stack and leaving its results on it.
func (rt *Runtime) CallByIndex(idx uint32) error {
	ft, err := rt.Module.FuncType(idx)
	if err != nil {
		return err
	}
	args, err := rt.popArgs(ft)
	if err != nil {
		return err
	}

	if imp := rt.Module.FuncImport(idx); imp != nil {
		return rt.callImport(idx, imp, ft, args)
	}

	defIdx := int(idx) - rt.Module.ImportedFuncCount
	if defIdx < 0 || defIdx >= len(rt.Module.Codes) {
		return errors.WrapInvalidFunctionIndex(idx, rt.Module.TotalFuncCount())
	}
	return rt.callDefined(rt.Module.Codes[defIdx], ft, args)
}

// callIndirect implements call_indirect: look the callee up in the
// function table, optionally verify its declared type matches the
// instruction's type immediate, gated by Options.StrictIndirectCallTypes
// (default true), then
// dispatch as an ordinary call.
func (rt *Runtime) callIndirect(inst wasm.Instruction) error {
	idxVal, err := rt.pop()
	if err != nil {
		return err
	}
	tblIdx := idxVal.U32()
	if int(tblIdx) >= len(rt.table) {
		return errors.WrapTableOutOfBounds(tblIdx, len(rt.table))
	}
	fnIdx := rt.table[tblIdx]
	if fnIdx < 0 {
		return errors.WrapTableOutOfBounds(tblIdx, len(rt.table))
	}

	if int(inst.TypeIdx) >= len(rt.Module.Types) {
		return errors.WrapWasmInvalid("call_indirect: invalid declared type index")
	}
	declared := rt.Module.Types[inst.TypeIdx]

	if rt.opts.StrictIndirectCallTypes {
		actual, err := rt.Module.FuncType(uint32(fnIdx))
		if err != nil {
			return err
		}
		if !declared.Equal(actual) {
			return errors.WrapIndirectCallMismatch(tblIdx, declared.String(), actual.String())
		}
	}

	return rt.CallByIndex(uint32(fnIdx))
}

// popArgs pops len(ft.Params) values off the stack and returns them in
// signature order (the last-pushed argument corresponds to the last
// parameter).
func (rt *Runtime) popArgs(ft wasm.FuncType) ([]wasm.Value, error) {
	args := make([]wasm.Value, len(ft.Params))
	for i := len(ft.Params) - 1; i >= 0; i-- {
		v, err := rt.pop()
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (rt *Runtime) callImport(idx uint32, imp *wasm.Import, ft wasm.FuncType, args []wasm.Value) error {
	if rt.opts.Bridge == nil {
		return errors.WrapImportUnresolved(imp.Module, imp.Field)
	}
	results, err := rt.opts.Bridge.Call(rt.ctx, idx, imp.Module, imp.Field, args, rt.Memory)
	if err != nil {
		return err
	}
	if len(results) != len(ft.Results) {
		return errors.WrapWasmInvalid("host function returned a different arity than its declared type")
	}
	for _, r := range results {
		rt.push(r)
	}
	rt.FunctionsExecuted++
	return nil
}

func (rt *Runtime) callDefined(code wasm.Code, ft wasm.FuncType, args []wasm.Value) error {
	frame := newFrame(args, code.Locals)
	preDepth := len(rt.Stack)

	if err := rt.executeBlock(frame, code.Body); err != nil {
		return err
	}

	if len(rt.Stack) != preDepth+len(ft.Results) {
		return errors.WrapStackImbalance(-1, preDepth+len(ft.Results), len(rt.Stack))
	}
	rt.FunctionsExecuted++
	return nil
}

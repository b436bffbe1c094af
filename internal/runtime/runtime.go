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

// Package runtime is the execution engine: a recursive stack-machine
// interpreter over a module's value stack, linear memory, globals,
// function table, and data segments.
package runtime

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dotandev/stackvm/internal/errors"
	"github.com/dotandev/stackvm/internal/hostio"
	"github.com/dotandev/stackvm/internal/telemetry"
	"github.com/dotandev/stackvm/internal/wasm"
)

// PageSize is the fixed size, in bytes, of one unit of linear memory growth.
const PageSize = 65536

// globalInstance is a runtime-owned (mutability, Value) pair.
type globalInstance struct {
	value   wasm.Value
	mutable bool
}

// dataSegment is a runtime-owned clone of a module's data segment;
// Dropped is set by data.drop and makes further memory.init against it
// an error.
type dataSegment struct {
	bytes   []byte
	dropped bool
}

// Options configures a Runtime beyond what the module itself declares.
type Options struct {
	// MaxMemoryPages overrides the module's declared memory maximum; 0
	// means "use the module's own declaration, or unbounded if absent".
	MaxMemoryPages uint32
	// StrictIndirectCallTypes verifies call_indirect's declared type
	// against the callee's actual signature; default true.
	StrictIndirectCallTypes bool
	// Bridge resolves imported functions to native routines.
	Bridge *hostio.Bridge
}

// Runtime is one instantiated module: the value stack, linear memory,
// globals, function table, and data segments, plus an immutable borrow
// of the decoded module image.
type Runtime struct {
	Module *wasm.Module
	opts   Options

	Stack   []wasm.Value
	Memory  []byte
	globals []globalInstance
	table   []int64 // function index, or -1 for a null entry
	data    []dataSegment

	FunctionsExecuted int

	// ctx is the context passed to Run, held for the duration of
	// execution so host calls can attach their spans to it. Never
	// set outside of Run.
	ctx context.Context
}

// New instantiates a module: allocates memory,
// evaluates constant initializer expressions for globals/table/data by
// recursively invoking the execution engine against an empty frame,
// and populates runtime state. The module image itself is never
// mutated; data segments are cloned into the runtime.
func New(mod *wasm.Module, opts Options) (*Runtime, error) {
	rt := &Runtime{Module: mod, opts: opts, ctx: context.Background()}

	initialPages := uint32(1)
	if len(mod.Memories) > 0 {
		initialPages = mod.Memories[0].Limits.Min
		if initialPages == 0 {
			initialPages = 1
		}
	}
	rt.Memory = make([]byte, int(initialPages)*PageSize)

	tableLen := 0
	if len(mod.Tables) > 0 {
		tableLen = int(mod.Tables[0].Limits.Min)
	}
	rt.table = make([]int64, tableLen)
	for i := range rt.table {
		rt.table[i] = -1
	}

	for _, seg := range mod.Elements {
		if seg.Offset == nil {
			continue // passive segment: not instantiated into the table
		}
		offsetVal, err := rt.evalConstExpr(seg.Offset)
		if err != nil {
			return nil, err
		}
		base := int(offsetVal.I32())
		if base < 0 || base+len(seg.Funcs) > len(rt.table) {
			return nil, errors.WrapTableOutOfBounds(uint32(base), len(rt.table))
		}
		for i, fn := range seg.Funcs {
			rt.table[base+i] = int64(fn)
		}
	}

	for _, seg := range mod.Data {
		clone := make([]byte, len(seg.Bytes))
		copy(clone, seg.Bytes)
		rt.data = append(rt.data, dataSegment{bytes: clone})

		if seg.Offset == nil {
			continue // passive segment: only reachable via memory.init
		}
		offsetVal, err := rt.evalConstExpr(seg.Offset)
		if err != nil {
			return nil, err
		}
		base := int(offsetVal.I32())
		if base < 0 || base+len(seg.Bytes) > len(rt.Memory) {
			return nil, errors.WrapMemoryOutOfBounds("data segment init", uint64(base), uint64(len(seg.Bytes)), len(rt.Memory))
		}
		copy(rt.Memory[base:], seg.Bytes)
	}

	for _, g := range mod.Globals {
		v, err := rt.evalConstExpr(g.Init)
		if err != nil {
			return nil, err
		}
		rt.globals = append(rt.globals, globalInstance{value: v, mutable: g.Type.Mutable})
	}

	if mod.Start != nil {
		if err := rt.CallByIndex(*mod.Start); err != nil {
			return nil, err
		}
	}

	return rt, nil
}

// evalConstExpr runs a constant initializer expression (global init,
// element/data offset) against an empty frame and pops its result.
func (rt *Runtime) evalConstExpr(insts []wasm.Instruction) (wasm.Value, error) {
	frame := &Frame{}
	preDepth := len(rt.Stack)
	if err := rt.executeBlock(frame, insts); err != nil {
		return wasm.Value{}, err
	}
	if len(rt.Stack) != preDepth+1 {
		return wasm.Value{}, errors.WrapStackImbalance(-1, preDepth+1, len(rt.Stack))
	}
	return rt.pop()
}

// Run invokes the named export and returns normally once it completes.
// Observable effects are whatever it left in linear memory or wrote
// through the host bridge. The whole invocation, and each host call it
// makes along the way, is wrapped in its own OpenTelemetry span.
func (rt *Runtime) Run(ctx context.Context, name string) error {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.Start(ctx, "runtime.Run")
	span.SetAttributes(attribute.String("wasm.export", name))
	defer span.End()

	idx, err := rt.Module.ExportedFunc(name)
	if err != nil {
		return err
	}

	rt.ctx = ctx
	return rt.CallByIndex(idx)
}

// push appends a value onto the shared operand stack.
func (rt *Runtime) push(v wasm.Value) {
	rt.Stack = append(rt.Stack, v)
}

// pop removes and returns the top of the operand stack.
func (rt *Runtime) pop() (wasm.Value, error) {
	if len(rt.Stack) == 0 {
		return wasm.Value{}, errors.WrapStackUnderflow("pop")
	}
	v := rt.Stack[len(rt.Stack)-1]
	rt.Stack = rt.Stack[:len(rt.Stack)-1]
	return v, nil
}

// MemoryPages returns the current linear memory size in pages.
func (rt *Runtime) MemoryPages() uint32 {
	return uint32(len(rt.Memory) / PageSize)
}

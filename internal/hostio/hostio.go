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

// Package hostio bridges a module's imported functions to native Go
// routines. The MVP core only ever exercises fd_write, but the bridge
// itself is a general (module, field) -> routine registry so adding a
// second host call later is a registration, not a rewrite.
package hostio

import (
	"context"
	"encoding/binary"
	"io"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dotandev/stackvm/internal/errors"
	"github.com/dotandev/stackvm/internal/telemetry"
	"github.com/dotandev/stackvm/internal/wasm"
)

// HostFunc is a native routine standing in for an imported function.
// It reads/writes memory directly rather than through the stack, since
// host calls operate on pointers into linear memory.
type HostFunc func(args []wasm.Value, memory []byte) ([]wasm.Value, error)

// Sink is where fd_write's fd 1/2 output ends up; Stdout and Stderr
// are resolved independently so a caller can, for instance, capture
// one and pass the other through.
type Sink struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (s Sink) writerFor(fd int32) io.Writer {
	if fd == 1 {
		return s.Stdout
	}
	return s.Stderr
}

// registryKey identifies a host routine by its import (module, field) name.
type registryKey struct {
	module string
	field  string
}

// Bridge resolves a module's imports against the registry at load
// time and dispatches host calls by import index during execution.
type Bridge struct {
	funcs map[uint32]HostFunc
}

// NewBridge scans mod's imported functions and wires any whose
// (module, field) name matches a known host routine; imports with no
// match are left unresolved and trap on first call.
func NewBridge(mod *wasm.Module, sink Sink) *Bridge {
	b := &Bridge{funcs: make(map[uint32]HostFunc)}
	registry := defaultRegistry(sink)

	for i := 0; i < mod.ImportedFuncCount; i++ {
		imp := mod.FuncImport(uint32(i))
		if imp == nil {
			continue
		}
		if fn, ok := registry[registryKey{imp.Module, imp.Field}]; ok {
			b.funcs[uint32(i)] = fn
		}
	}
	return b
}

// Call dispatches a host call by import index, wrapping the dispatch in
// its own span so host-call latency shows up distinctly from the
// interpreter loop around it.
func (b *Bridge) Call(ctx context.Context, idx uint32, module, field string, args []wasm.Value, memory []byte) ([]wasm.Value, error) {
	tracer := telemetry.GetTracer()
	_, span := tracer.Start(ctx, "hostio.Call")
	span.SetAttributes(
		attribute.String("hostio.module", module),
		attribute.String("hostio.field", field),
	)
	defer span.End()

	fn, ok := b.funcs[idx]
	if !ok {
		return nil, errors.WrapImportUnresolved(module, field)
	}
	results, err := fn(args, memory)
	if err != nil {
		return nil, errors.WrapHostCallFailed(module+"."+field, err)
	}
	return results, nil
}

func defaultRegistry(sink Sink) map[registryKey]HostFunc {
	return map[registryKey]HostFunc{
		{"wasi_snapshot_preview1", "fd_write"}: fdWrite(sink),
		{"wasi_unstable", "fd_write"}:          fdWrite(sink),
	}
}

// fdWrite implements WASI's fd_write(fd, iovs_ptr, iovs_len,
// nwritten_ptr): reads iovs_len (base, length) pairs from memory
// starting at iovs_ptr, writes each chunk to the sink selected by fd,
// then stores the total byte count at nwritten_ptr. Returns the WASI
// errno (0 on success) as the single i32 result.
func fdWrite(sink Sink) HostFunc {
	return func(args []wasm.Value, memory []byte) ([]wasm.Value, error) {
		if len(args) != 4 {
			return nil, errors.WrapWasmInvalid("fd_write expects 4 arguments")
		}
		fd := args[0].I32()
		iovsPtr := args[1].U32()
		iovsLen := args[2].U32()
		nwrittenPtr := args[3].U32()

		w := sink.writerFor(fd)
		if w == nil {
			return []wasm.Value{wasm.I32(0)}, nil
		}

		var total uint32
		for i := uint32(0); i < iovsLen; i++ {
			entry := iovsPtr + i*8
			if uint64(entry)+8 > uint64(len(memory)) {
				return nil, errors.WrapMemoryOutOfBounds("fd_write iovec", uint64(entry), 8, len(memory))
			}
			base := binary.LittleEndian.Uint32(memory[entry : entry+4])
			length := binary.LittleEndian.Uint32(memory[entry+4 : entry+8])
			if uint64(base)+uint64(length) > uint64(len(memory)) {
				return nil, errors.WrapMemoryOutOfBounds("fd_write buffer", uint64(base), uint64(length), len(memory))
			}
			n, err := w.Write(memory[base : base+length])
			if err != nil {
				return nil, err
			}
			total += uint32(n)
		}

		if uint64(nwrittenPtr)+4 > uint64(len(memory)) {
			return nil, errors.WrapMemoryOutOfBounds("fd_write nwritten", uint64(nwrittenPtr), 4, len(memory))
		}
		binary.LittleEndian.PutUint32(memory[nwrittenPtr:nwrittenPtr+4], total)

		return []wasm.Value{wasm.I32(0)}, nil
	}
}

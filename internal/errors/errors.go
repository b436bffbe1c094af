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

// Package errors centralizes the sentinel errors stackvm returns, so
// callers can classify a failure with errors.Is instead of parsing
// messages.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison with errors.Is
var (
	ErrFileNotFound         = errors.New("module file not found")
	ErrWasmInvalid          = errors.New("malformed wasm module")
	ErrTruncated            = errors.New("unexpected end of input")
	ErrUnsupportedFeature   = errors.New("unsupported wasm feature")
	ErrStackUnderflow       = errors.New("value stack underflow")
	ErrStackImbalance       = errors.New("function left stack unbalanced")
	ErrUnreachable          = errors.New("unreachable instruction executed")
	ErrDivideByZero         = errors.New("integer division by zero")
	ErrIntegerOverflow      = errors.New("integer overflow")
	ErrMemoryOutOfBounds    = errors.New("out of bounds memory access")
	ErrTableOutOfBounds     = errors.New("out of bounds table access")
	ErrInvalidLocalIndex    = errors.New("invalid local index")
	ErrInvalidGlobalIndex   = errors.New("invalid global index")
	ErrInvalidFunctionIndex = errors.New("invalid function index")
	ErrExportNotFound       = errors.New("export not found")
	ErrImportUnresolved     = errors.New("import not resolved by host bridge")
	ErrIndirectCallMismatch = errors.New("indirect call type mismatch")
	ErrDataSegmentDropped   = errors.New("use of dropped data segment")
	ErrUninitializedValue   = errors.New("uninitialized value observed")
	ErrNotImplemented       = errors.New("opcode not implemented")
	ErrHostCallFailed       = errors.New("host call failed")
	ErrConfigInvalid        = errors.New("invalid configuration")
)

// WrapFileNotFound reports a launcher-level failure to open the module file.
func WrapFileNotFound(err error) error {
	return fmt.Errorf("%w: %w", ErrFileNotFound, err)
}

// WrapWasmInvalid reports a malformed module: bad magic, truncated
// section, inconsistent section size, and the like.
func WrapWasmInvalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrWasmInvalid, msg)
}

// WrapTruncated reports a LEB128/float/byte read that ran past the end
// of the input.
func WrapTruncated(msg string) error {
	return fmt.Errorf("%w: %s", ErrTruncated, msg)
}

// WrapUnsupportedFeature reports a construct this core does not
// implement: a non-void/i32 block type, a non-funcref table, a missing
// opcode, and so on.
func WrapUnsupportedFeature(msg string) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedFeature, msg)
}

// WrapStackUnderflow reports an attempt to pop more values than the
// stack holds.
func WrapStackUnderflow(op string) error {
	return fmt.Errorf("%w: during %s", ErrStackUnderflow, op)
}

// WrapStackImbalance reports a defined function whose net stack effect
// did not match its signature's result arity.
func WrapStackImbalance(funcIdx int, wantDepth, gotDepth int) error {
	return fmt.Errorf("%w: func %d expected depth %d, got %d", ErrStackImbalance, funcIdx, wantDepth, gotDepth)
}

// WrapDivideByZero reports an i32/i64 div_s/div_u/rem_s/rem_u by zero.
func WrapDivideByZero(op string) error {
	return fmt.Errorf("%w: %s", ErrDivideByZero, op)
}

// WrapIntegerOverflow reports a signed division overflow (e.g. INT32_MIN / -1).
func WrapIntegerOverflow(op string) error {
	return fmt.Errorf("%w: %s", ErrIntegerOverflow, op)
}

// WrapMemoryOutOfBounds reports a load/store/bulk-memory access past the
// end of linear memory.
func WrapMemoryOutOfBounds(op string, addr uint64, size uint64, memLen int) error {
	return fmt.Errorf("%w: %s at address %d+%d, memory size %d", ErrMemoryOutOfBounds, op, addr, size, memLen)
}

// WrapTableOutOfBounds reports a call_indirect/element access past the
// end of the function table.
func WrapTableOutOfBounds(idx uint32, tableLen int) error {
	return fmt.Errorf("%w: index %d, table size %d", ErrTableOutOfBounds, idx, tableLen)
}

// WrapInvalidLocalIndex reports a local.get/set/tee past the frame's
// param+local count.
func WrapInvalidLocalIndex(idx uint32, count int) error {
	return fmt.Errorf("%w: index %d, have %d locals", ErrInvalidLocalIndex, idx, count)
}

// WrapInvalidGlobalIndex reports a global.get/set past the module's
// global count.
func WrapInvalidGlobalIndex(idx uint32, count int) error {
	return fmt.Errorf("%w: index %d, have %d globals", ErrInvalidGlobalIndex, idx, count)
}

// WrapInvalidFunctionIndex reports a call/call_indirect/element target
// outside [0, imports+codes).
func WrapInvalidFunctionIndex(idx uint32, count int) error {
	return fmt.Errorf("%w: index %d, have %d functions", ErrInvalidFunctionIndex, idx, count)
}

// WrapExportNotFound reports a launcher request for an export the
// module does not define.
func WrapExportNotFound(name string) error {
	return fmt.Errorf("%w: %q", ErrExportNotFound, name)
}

// WrapImportUnresolved reports a call to an imported function the host
// bridge has no native routine for.
func WrapImportUnresolved(module, field string) error {
	return fmt.Errorf("%w: %s.%s", ErrImportUnresolved, module, field)
}

// WrapIndirectCallMismatch reports a call_indirect whose declared type
// does not match the callee's actual signature.
func WrapIndirectCallMismatch(tableIdx uint32, wantType, gotType string) error {
	return fmt.Errorf("%w: table entry %d declared %s, found %s", ErrIndirectCallMismatch, tableIdx, wantType, gotType)
}

// WrapDataSegmentDropped reports a memory.init against a segment that
// data.drop already cleared.
func WrapDataSegmentDropped(segIdx uint32) error {
	return fmt.Errorf("%w: segment %d", ErrDataSegmentDropped, segIdx)
}

// WrapUninitializedValue reports a value with the uninitialized tag
// observed on the stack or in a local, which is always an interpreter
// bug or a malformed module.
func WrapUninitializedValue(where string) error {
	return fmt.Errorf("%w: %s", ErrUninitializedValue, where)
}

// WrapNotImplemented reports an opcode recognized by the decoder but
// deliberately left unimplemented (saturating truncation, sign-extension
// ops, and similar post-MVP additions).
func WrapNotImplemented(mnemonic string) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, mnemonic)
}

// WrapHostCallFailed reports a failure inside a host bridge routine
// (e.g. the underlying sink returned a write error).
func WrapHostCallFailed(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrHostCallFailed, name, err)
}

// WrapConfigInvalid reports a configuration value that failed
// validation (empty entry export or unknown log level).
func WrapConfigInvalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrConfigInvalid, msg)
}

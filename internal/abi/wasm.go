// Copyright 2025 StackVM Users
// SPDX-License-Identifier: Apache-2.0

package abi

import (
	"github.com/dotandev/stackvm/internal/wasm"
)

// ExtractCustomSection returns the payload of mod's custom section with the
// given name, or nil if it is not present. mod is already fully decoded by
// wasm.Decode, which retains every custom section's raw bytes in
// mod.CustomSections, so this never re-scans the module's bytes.
func ExtractCustomSection(mod *wasm.Module, name string) []byte {
	return mod.CustomSections[name]
}

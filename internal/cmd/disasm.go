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

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotandev/stackvm/internal/abi"
	"github.com/dotandev/stackvm/internal/wasm"
	"github.com/dotandev/stackvm/internal/wat"
)

var (
	disasmOffsetFlag        string
	disasmContextFlag       int
	disasmCustomSectionFlag string
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <module.wasm>",
	Short: "Disassemble a module to WAT-style text around a byte offset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return disassembleModule(args[0])
	},
}

func init() {
	disasmCmd.Flags().StringVar(&disasmOffsetFlag, "offset", "", "byte offset to center the disassembly on, e.g. 0x120 (defaults to the start of the code section)")
	disasmCmd.Flags().IntVar(&disasmContextFlag, "context", 8, "number of instructions to show before and after the target offset")
	disasmCmd.Flags().StringVar(&disasmCustomSectionFlag, "custom-section", "name", "custom section to report the size of, if present (empty to skip)")
	rootCmd.AddCommand(disasmCmd)
}

func disassembleModule(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	dis := wat.NewDisassembler(data)
	if !dis.IsValidWasm() {
		return fmt.Errorf("%s is not a valid WASM module", path)
	}

	offset, err := parseOffset(disasmOffsetFlag)
	if err != nil {
		return err
	}

	snippet, err := dis.DisassembleAt(offset, disasmContextFlag)
	if err != nil {
		return fmt.Errorf("disassembly failed: %w", err)
	}

	fmt.Print(snippet.Format())

	if disasmCustomSectionFlag != "" {
		printCustomSectionSummary(data, disasmCustomSectionFlag)
	}

	return nil
}

// printCustomSectionSummary decodes the module and reports the size of the
// named custom section, if present, e.g. the "name" section emitted by most
// toolchains for debug symbols.
func printCustomSectionSummary(data []byte, name string) {
	mod, err := wasm.Decode(data)
	if err != nil {
		fmt.Printf("\n(custom section %q unavailable: %v)\n", name, err)
		return
	}

	payload := abi.ExtractCustomSection(mod, name)
	if payload == nil {
		return
	}
	fmt.Printf("\ncustom section %q: %d bytes\n", name, len(payload))
}

func parseOffset(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	trimmed := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	offset, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid --offset %q: %w", raw, err)
	}
	return offset, nil
}

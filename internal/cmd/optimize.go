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

	"github.com/spf13/cobra"

	"github.com/dotandev/stackvm/internal/wasmopt"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <module.wasm> <out.wasm>",
	Short: "Eliminate dead code from a module",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return optimizeModule(args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(optimizeCmd)
}

func optimizeModule(inPath, outPath string) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", inPath, err)
	}

	optimized, report, err := wasmopt.EliminateDeadCode(data)
	if err != nil {
		return fmt.Errorf("dead code elimination failed: %w", err)
	}

	if err := os.WriteFile(outPath, optimized, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	fmt.Printf("functions: %d kept, %d removed (of %d defined)\n",
		report.KeptDefinedFunctions, report.RemovedDefinedFunctions, report.OriginalDefinedFunctions)
	if len(report.RemovedFunctionIndices) > 0 {
		fmt.Printf("removed function indices: %v\n", report.RemovedFunctionIndices)
	}
	fmt.Printf("wrote %s (%d bytes, was %d bytes)\n", outPath, len(optimized), len(data))
	return nil
}

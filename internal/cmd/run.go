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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dotandev/stackvm/internal/config"
	"github.com/dotandev/stackvm/internal/historydb"
	"github.com/dotandev/stackvm/internal/hostio"
	"github.com/dotandev/stackvm/internal/runtime"
	"github.com/dotandev/stackvm/internal/wasm"
	"github.com/dotandev/stackvm/internal/wasmopt"
)

var (
	runEntryFlag    string
	runMaxPagesFlag uint32
	runOptimizeFlag bool
)

var runCmd = &cobra.Command{
	Use:   "run <module.wasm>",
	Short: "Decode and execute a module's exported function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runModule(cmd.Context(), args[0])
	},
}

func init() {
	runCmd.Flags().StringVar(&runEntryFlag, "entry", "", "exported function to invoke (overrides config entry_export)")
	runCmd.Flags().Uint32Var(&runMaxPagesFlag, "max-pages", 0, "override the module's declared memory maximum")
	runCmd.Flags().BoolVar(&runOptimizeFlag, "optimize", false, "eliminate dead code before running")
	rootCmd.AddCommand(runCmd)
}

func runModule(ctx context.Context, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if runOptimizeFlag {
		optimized, _, err := wasmopt.EliminateDeadCode(data)
		if err != nil {
			return err
		}
		data = optimized
	}

	mod, err := wasm.Decode(data)
	if err != nil {
		return err
	}

	entry := cfg.EntryExport
	if runEntryFlag != "" {
		entry = runEntryFlag
	}

	maxPages := cfg.MaxMemoryPages
	if runMaxPagesFlag != 0 {
		maxPages = runMaxPagesFlag
	}

	bridge := hostio.NewBridge(mod, hostio.Sink{Stdout: os.Stdout, Stderr: os.Stderr})
	rt, err := runtime.New(mod, runtime.Options{
		MaxMemoryPages:          maxPages,
		StrictIndirectCallTypes: cfg.StrictIndirectCallTypes,
		Bridge:                  bridge,
	})
	if err != nil {
		return traceRunError(err)
	}

	started := time.Now()
	runErr := rt.Run(ctx, entry)
	duration := time.Since(started)

	if store, storeErr := historydb.Open(cfg.HistoryDBPath); storeErr == nil {
		trapMsg := ""
		if runErr != nil {
			trapMsg = runErr.Error()
		}
		_, _ = store.Insert(historydb.Record{
			ModuleHash:        moduleHash(data),
			ExportName:        entry,
			StartedAt:         started,
			DurationNanos:     duration.Nanoseconds(),
			TrapMessage:       trapMsg,
			MemoryPagesFinal:  rt.MemoryPages(),
			FunctionsExecuted: rt.FunctionsExecuted,
		})
		store.Close()
	}

	if runErr != nil {
		return traceRunError(runErr)
	}
	return nil
}

func traceRunError(err error) error {
	if color.NoColor {
		return fmt.Errorf("trap: %w", err)
	}
	red := color.New(color.FgRed, color.Bold)
	return fmt.Errorf("%s %w", red.Sprint("trap:"), err)
}

func moduleHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

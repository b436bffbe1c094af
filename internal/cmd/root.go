// Copyright 2025 StackVM Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/dotandev/stackvm/internal/updater"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stackvm",
	Short: "A minimal WebAssembly MVP interpreter and toolkit",
	Long: `stackvm decodes and executes WebAssembly MVP binary modules.

Key features:
  - Run an exported function and observe its effects on memory and stdout
  - Disassemble a module to WAT-style text around a byte offset
  - Eliminate dead code from a module ahead of execution
  - Review the history of past runs against a given module

Examples:
  stackvm run ./module.wasm --entry main
  stackvm disasm ./module.wasm --offset 0x120
  stackvm optimize ./module.wasm ./module.opt.wasm
  stackvm history --limit 10`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		checkForUpdatesAsync()
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// checkForUpdatesAsync runs the update check in a goroutine to not block CLI startup
func checkForUpdatesAsync() {
	go func() {
		checker := updater.NewChecker(Version)
		checker.CheckForUpdates()
	}()
}

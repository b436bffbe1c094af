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

	"github.com/spf13/cobra"

	"github.com/dotandev/stackvm/internal/config"
	"github.com/dotandev/stackvm/internal/historydb"
)

var historyLimitFlag int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the history of past runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showHistory()
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "maximum number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func showHistory() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := historydb.Open(cfg.HistoryDBPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer store.Close()

	records, err := store.List(historyLimitFlag)
	if err != nil {
		return fmt.Errorf("failed to list run history: %w", err)
	}

	if len(records) == 0 {
		fmt.Println("no runs recorded yet")
		return nil
	}

	for _, rec := range records {
		status := "ok"
		if rec.TrapMessage != "" {
			status = "trap: " + rec.TrapMessage
		}
		fmt.Printf("%s  %-12s  %8s  %s  pages=%d funcs=%d  %s\n",
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			rec.ExportName,
			durationString(rec.DurationNanos),
			rec.ModuleHash[:12],
			rec.MemoryPagesFinal,
			rec.FunctionsExecuted,
			status,
		)
	}
	return nil
}

func durationString(nanos int64) string {
	micros := nanos / 1000
	if micros < 1000 {
		return fmt.Sprintf("%dus", micros)
	}
	return fmt.Sprintf("%dms", micros/1000)
}

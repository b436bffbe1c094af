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

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dotandev/stackvm/internal/cmd"
	"github.com/dotandev/stackvm/internal/config"
	"github.com/dotandev/stackvm/internal/logger"
	"github.com/dotandev/stackvm/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	logger.Init(parseLogLevel(cfg.LogLevel), os.Stderr)

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.TelemetryEnabled,
		ExporterURL: cfg.TelemetryEndpoint,
		ServiceName: "stackvm",
	})
	if err != nil {
		logger.Logger.Warn("telemetry init failed", "error", err)
	} else {
		defer shutdown()
	}

	os.Exit(run(cmd.Execute, os.Stderr))
}

// run invokes fn and maps its result to a process exit code, writing any
// error to stderr. Separated from main so it can be exercised without
// actually exiting the test binary.
func run(fn func() error, stderr io.Writer) int {
	err := fn()
	if err == nil {
		return 0
	}
	if cmd.IsInterrupted(err) {
		fmt.Fprint(stderr, "Interrupted. Shutting down...\n")
		return cmd.InterruptExitCode
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

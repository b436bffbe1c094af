// Copyright 2025 StackVM Users
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "_start", cfg.EntryExport)
	assert.True(t, cfg.StrictIndirectCallTypes)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.HistoryDBPath)
}

func TestDefaultConfigIsACopy(t *testing.T) {
	a := DefaultConfig()
	a.EntryExport = "main"
	b := DefaultConfig()
	assert.Equal(t, "_start", b.EntryExport)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid defaults", *DefaultConfig(), false},
		{"empty entry export", Config{EntryExport: "", LogLevel: "info"}, true},
		{"bad log level", Config{EntryExport: "_start", LogLevel: "verbose"}, true},
		{"empty log level allowed", Config{EntryExport: "_start", LogLevel: ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseTOML(t *testing.T) {
	cfg := DefaultConfig()
	content := `
# comment
entry_export = "main"
max_memory_pages = 16
strict_indirect_call_types = false
log_level = "debug"
`
	require.NoError(t, cfg.parseTOML(content))
	assert.Equal(t, "main", cfg.EntryExport)
	assert.Equal(t, uint32(16), cfg.MaxMemoryPages)
	assert.False(t, cfg.StrictIndirectCallTypes)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".stackvm.toml")
	require.NoError(t, os.WriteFile(path, []byte(`entry_export = "run_tests"`), 0600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.loadTOML(path))
	assert.Equal(t, "run_tests", cfg.EntryExport)
}

func TestSaveAndSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")
	cfg := DefaultConfig()
	cfg.EntryExport = "entrypoint"

	require.NoError(t, Save(path, cfg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "entrypoint")
}

package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	oldArgs, oldFlags := os.Args, flag.CommandLine
	t.Cleanup(func() {
		os.Args, flag.CommandLine = oldArgs, oldFlags
	})
	os.Args = append([]string{"alert-cli"}, args...)
	flag.CommandLine = flag.NewFlagSet("alert-cli", flag.ContinueOnError)
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alert.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: console\n"), 0o644))
	return path
}

func TestExecuteExitCodes(t *testing.T) {
	cfg := writeConfig(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"version", []string{"-version"}, 0},
		{"validate", []string{"-config", cfg, "-validate"}, 0},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "absent.yaml")}, 1},
		{"unknown alert", []string{"-config", cfg, "-alert", "ops"}, 1},
		{"restart without job", []string{"-config", cfg, "-restart"}, 2},
		{"no action", []string{"-config", cfg}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withArgs(t, tt.args...)
			assert.Equal(t, tt.want, execute())
		})
	}
}

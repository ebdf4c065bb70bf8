package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command against a config directory and returns
// stdout and stderr.
func runCLI(t *testing.T, dir, stdin string, args ...string) (string, string, error) {
	t.Helper()
	color.NoColor = true

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", dir}, args...))

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeConfig writes a .conceptci.yaml into a fresh temp dir and returns
// the dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".conceptci.yaml"), []byte(content), 0o644))
	return dir
}

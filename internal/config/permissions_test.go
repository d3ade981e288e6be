// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

//go:build !windows

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs swaps the default slog handler for the test's duration and
// returns the buffer it writes to.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func TestWarnInsecurePermissions(t *testing.T) {
	tests := []struct {
		name     string
		perm     os.FileMode
		wantWarn bool
	}{
		{"owner read-write", 0o600, false},
		{"owner read-only", 0o400, false},
		{"group and world readable", 0o644, true},
		{"world readable", 0o604, true},
		{"wide open", 0o666, true},
		{"group readable", 0o640, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := filepath.Join(t.TempDir(), "mnemo.yaml")
			require.NoError(t, os.WriteFile(cfgPath, []byte("api:\n  port: 7337\n"), tt.perm))

			buf := captureLogs(t)
			WarnInsecurePermissions(cfgPath)

			if tt.wantWarn {
				assert.Contains(t, buf.String(), "insecure permissions")
				assert.Contains(t, buf.String(), cfgPath)
				assert.Contains(t, buf.String(), "0600", "warning should name the recommended mode")
			} else {
				assert.NotContains(t, buf.String(), "insecure permissions")
			}
		})
	}
}

func TestWarnInsecurePermissions_EmptyPath(t *testing.T) {
	buf := captureLogs(t)
	WarnInsecurePermissions("")
	assert.Empty(t, buf.String(), "no config file loaded means nothing to check")
}

func TestWarnInsecurePermissions_MissingFile(t *testing.T) {
	buf := captureLogs(t)
	WarnInsecurePermissions("/nonexistent/path/mnemo.yaml")

	// A vanished file is a debug-level event at most, never a warning.
	assert.NotContains(t, buf.String(), "insecure permissions")
	assert.NotContains(t, buf.String(), "level=WARN")
}

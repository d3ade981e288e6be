// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check binary health, daemon reachability, configuration, the knowledge database, and disk space.",
		RunE:  runDoctor,
	}

	addAddressFlag(cmd)

	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	addr, _ := cmd.Flags().GetString("address")
	dataDir := resolveDataDir()

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Daemon", func() string { return checkDaemon(cmd, addr) }},
		{"Config", checkConfig},
		{"Embedding", checkEmbedding},
		{"Database", func() string { return checkDatabase(dataDir) }},
		{"Disk Space", func() string { return checkDiskSpace(dataDir) }},
	}

	for _, c := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", c.name+":", c.fn()); err != nil {
			return err
		}
	}

	return nil
}

// resolveDataDir returns the data directory from viper or the default.
func resolveDataDir() string {
	dataDir := viper.GetString("data_dir")
	if dataDir != "" {
		return dataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mnemo")
}

func checkBinary() string {
	return fmt.Sprintf("mnemo %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func checkDaemon(cmd *cobra.Command, addr string) string {
	client := clientFromFlags(cmd)
	var body struct {
		Status       string `json:"status"`
		TrainingBusy bool   `json:"training_busy"`
	}
	if err := client.getJSON(cmd.Context(), "/api/v1/status", &body); err != nil {
		if mnemoerr.HasCode(err, mnemoerr.CodeCLIDaemonNotRunning) {
			return fmt.Sprintf("not running at %s (run 'mnemo start')", addr)
		}
		return fmt.Sprintf("error: %s", err)
	}
	if body.TrainingBusy {
		return fmt.Sprintf("%s at %s (training batch in progress)", body.Status, addr)
	}
	return fmt.Sprintf("%s at %s", body.Status, addr)
}

func checkConfig() string {
	cfgFile := viper.ConfigFileUsed()
	if cfgFile != "" {
		return fmt.Sprintf("loaded from %s", cfgFile)
	}
	return "using defaults (no config file found)"
}

func checkEmbedding() string {
	provider := viper.GetString("embedding.provider")
	if viper.GetString("embedding.api_key") == "" {
		return fmt.Sprintf("%s, no API key configured (run 'mnemo init')", provider)
	}
	return fmt.Sprintf("%s, %d dimensions", provider, viper.GetInt("embedding.dimensions"))
}

func checkDatabase(dataDir string) string {
	var (
		total uint64
		found int
	)
	for _, name := range []string{"catalog.db", "vectors.db"} {
		info, err := os.Stat(filepath.Join(dataDir, name))
		if err != nil {
			continue
		}
		total += uint64(info.Size())
		found++
	}
	if found == 0 {
		return fmt.Sprintf("no databases in %s yet (created on first use)", dataDir)
	}
	return fmt.Sprintf("%d database file(s) in %s (%s)", found, dataDir, formatBytes(total))
}

func checkDiskSpace(dataDir string) string {
	path := dataDir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to home directory if data dir doesn't exist yet.
		path, _ = os.UserHomeDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}

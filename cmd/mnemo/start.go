// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/secrets"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the mnemo daemon",
		Long:  "Load configuration, open the knowledge stores, and serve the training API until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address host")
	cmd.Flags().Int("port", 0, "override listen port")

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	v := viper.GetViper()

	// Resolve keyring:// secret references (API keys, auth token) before the
	// config is unmarshalled, so downstream components only ever see plain
	// values.
	if err := secrets.ResolveViperSecrets(v, secretStoreFactory()); err != nil {
		return mnemoerr.Wrap(err, mnemoerr.CodeCLISetupFailure, "resolving secrets")
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return mnemoerr.Wrap(err, mnemoerr.CodeCLISetupFailure, "loading config")
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.API.Host = listen
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.API.Port = port
	}

	level := cfg.LogLevel()
	if v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	daemon, err := WireDaemon(ctx, cfg)
	if err != nil {
		return mnemoerr.Wrap(err, mnemoerr.CodeCLISetupFailure, "wiring daemon")
	}
	defer func() {
		if err := daemon.Close(); err != nil {
			slog.Warn("daemon shutdown left errors", slog.Any("error", err))
		}
	}()

	slog.Info("mnemo daemon starting",
		slog.String("version", version),
		slog.String("data_dir", cfg.DataDir),
		slog.String("addr", cfg.API.Addr()),
	)

	return daemon.Start(ctx)
}

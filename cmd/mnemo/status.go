// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/mnemo-dev/mnemo/pkg/health"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long:  "Check the running daemon's status endpoint and display daemon and embedding provider state.",
		RunE:  runStatus,
	}

	addAddressFlag(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("address")
	out := cmd.OutOrStdout()

	client := clientFromFlags(cmd)
	var body struct {
		Status       string          `json:"status"`
		TrainingBusy bool            `json:"training_busy"`
		Embedding    *health.Metrics `json:"embedding"`
	}
	if err := client.getJSON(cmd.Context(), "/api/v1/status", &body); err != nil {
		if mnemoerr.HasCode(err, mnemoerr.CodeCLIDaemonNotRunning) {
			_, _ = fmt.Fprintf(out, "Daemon at %s is not running (connection refused)\n", addr)
			return nil
		}
		_, _ = fmt.Fprintf(out, "Daemon at %s: %s\n", addr, err)
		return nil
	}

	_, _ = fmt.Fprintf(out, "Daemon at %s: %s\n", addr, body.Status)
	if body.TrainingBusy {
		_, _ = fmt.Fprintln(out, "Training:   a batch is currently running")
	} else {
		_, _ = fmt.Fprintln(out, "Training:   idle")
	}
	switch {
	case body.Embedding == nil:
		_, _ = fmt.Fprintln(out, "Embedding:  not configured")
	case body.Embedding.Available:
		_, _ = fmt.Fprintln(out, "Embedding:  available")
	case body.Embedding.Cooling(time.Now()):
		_, _ = fmt.Fprintf(out, "Embedding:  cooling down until %s after %d failure(s)\n",
			body.Embedding.CooldownUntil.Format(time.Kitchen), body.Embedding.FailureCount)
	default:
		_, _ = fmt.Fprintf(out, "Embedding:  unavailable after %d failure(s)\n", body.Embedding.FailureCount)
	}
	return nil
}

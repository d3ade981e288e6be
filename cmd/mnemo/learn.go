// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func newLearnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learn [transcript-file]",
		Short: "Distill a chat transcript into chat-pool items",
		Long: "Send a transcript to the daemon, which extracts durable facts and stores each\n" +
			"as an untrained item in the chat pool. Reads from stdin when no file is given.\n" +
			"Run 'mnemo train' afterwards to embed the new items.",
		Args: cobra.MaximumNArgs(1),
		RunE: runLearn,
	}

	addAddressFlag(cmd)

	return cmd
}

func runLearn(cmd *cobra.Command, args []string) error {
	var (
		transcript []byte
		err        error
	)
	if len(args) == 1 {
		transcript, err = os.ReadFile(args[0])
		if err != nil {
			return mnemoerr.Errorf(mnemoerr.CodeCLIInputInvalid, "reading transcript %s: %w", args[0], err)
		}
	} else {
		transcript, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return mnemoerr.Errorf(mnemoerr.CodeCLIInputInvalid, "reading transcript from stdin: %w", err)
		}
	}
	if len(transcript) == 0 {
		return mnemoerr.New(mnemoerr.CodeCLIInputInvalid, "transcript is empty")
	}

	client := clientFromFlags(cmd)
	req := struct {
		Transcript string `json:"transcript"`
	}{Transcript: string(transcript)}

	var body struct {
		Items []struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"items"`
	}
	if err := client.postJSON(cmd.Context(), "/api/v1/learnings", req, &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Items) == 0 {
		_, _ = fmt.Fprintln(out, "No durable facts found in the transcript.")
		return nil
	}
	for _, it := range body.Items {
		_, _ = fmt.Fprintf(out, "created %s  %s\n", it.ID, it.Title)
	}
	_, _ = fmt.Fprintf(out, "\n%d item(s) added to the chat pool. Run 'mnemo train' to embed them.\n", len(body.Items))
	return nil
}

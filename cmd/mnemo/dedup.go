// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDedupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Find and remove duplicate knowledge items",
		Long: "Scan one pool for items with near-identical content. Preview is read-only;\n" +
			"remove keeps the earliest-created item of each duplicate set and deletes the rest,\n" +
			"including their vector records.",
	}

	cmd.AddCommand(
		newDedupPreviewCmd(),
		newDedupRemoveCmd(),
	)

	return cmd
}

func newDedupPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <pool>",
		Short: "List duplicates without removing anything",
		Args:  cobra.ExactArgs(1),
		RunE:  runDedupPreview,
	}
	addAddressFlag(cmd)
	return cmd
}

func newDedupRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <pool>",
		Short: "Remove duplicates, keeping one item per set",
		Args:  cobra.ExactArgs(1),
		RunE:  runDedupRemove,
	}
	addAddressFlag(cmd)
	return cmd
}

type dedupItemSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func runDedupPreview(cmd *cobra.Command, args []string) error {
	client := clientFromFlags(cmd)
	req := struct {
		Pool string `json:"pool"`
	}{Pool: args[0]}

	var body struct {
		Pool   string `json:"pool"`
		Groups []struct {
			Kept       dedupItemSummary   `json:"kept"`
			Duplicates []dedupItemSummary `json:"duplicates"`
		} `json:"groups"`
		RemovedCount int `json:"removed_count"`
		KeptCount    int `json:"kept_count"`
	}
	if err := client.postJSON(cmd.Context(), "/api/v1/dedup/preview", req, &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Groups) == 0 {
		_, _ = fmt.Fprintf(out, "No duplicates in the %s pool.\n", body.Pool)
		return nil
	}

	for _, g := range body.Groups {
		_, _ = fmt.Fprintf(out, "keep   %s  %s\n", g.Kept.ID, g.Kept.Title)
		for _, d := range g.Duplicates {
			_, _ = fmt.Fprintf(out, "remove %s  %s\n", d.ID, d.Title)
		}
	}
	_, _ = fmt.Fprintf(out, "\n%d item(s) would be removed, %d kept. Run 'mnemo dedup remove %s' to apply.\n",
		body.RemovedCount, body.KeptCount, body.Pool)
	return nil
}

func runDedupRemove(cmd *cobra.Command, args []string) error {
	client := clientFromFlags(cmd)
	req := struct {
		Pool string `json:"pool"`
	}{Pool: args[0]}

	var body struct {
		Pool         string `json:"pool"`
		RemovedCount int    `json:"removed_count"`
		KeptCount    int    `json:"kept_count"`
	}
	if err := client.postJSON(cmd.Context(), "/api/v1/dedup/remove", req, &body); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %d duplicate(s) from the %s pool, kept %d.\n",
		body.RemovedCount, body.Pool, body.KeptCount)
	return nil
}

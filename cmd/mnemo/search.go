// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Vector search across trained knowledge",
		Long:  "Embed the query and return the nearest chunks from the vector store, closest first.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	addAddressFlag(cmd)
	cmd.Flags().StringP("pool", "p", "", "restrict to one pool (library or chat)")
	cmd.Flags().IntP("limit", "n", 5, "maximum number of hits")

	return cmd
}

func runSearch(cmd *cobra.Command, args []string) error {
	client := clientFromFlags(cmd)
	pool, _ := cmd.Flags().GetString("pool")
	limit, _ := cmd.Flags().GetInt("limit")

	req := struct {
		Query string `json:"query"`
		Limit int    `json:"limit,omitempty"`
		Pool  string `json:"pool,omitempty"`
	}{Query: strings.Join(args, " "), Limit: limit, Pool: pool}

	var body struct {
		Hits []struct {
			ID          string  `json:"id"`
			Title       string  `json:"title"`
			Pool        string  `json:"pool"`
			Text        string  `json:"text"`
			Score       float64 `json:"score"`
			ChunkIndex  int     `json:"chunk_index"`
			TotalChunks int     `json:"total_chunks"`
		} `json:"hits"`
	}
	if err := client.postJSON(cmd.Context(), "/api/v1/search", req, &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Hits) == 0 {
		_, _ = fmt.Fprintln(out, "No results.")
		return nil
	}

	for i, hit := range body.Hits {
		_, _ = fmt.Fprintf(out, "%d. %s [%s] (chunk %d/%d, distance %.4f)\n",
			i+1, hit.Title, hit.Pool, hit.ChunkIndex+1, hit.TotalChunks, hit.Score)
		_, _ = fmt.Fprintf(out, "   %s\n", previewText(hit.Text, 200))
	}
	return nil
}

// previewText clips chunk text to a single display line.
func previewText(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

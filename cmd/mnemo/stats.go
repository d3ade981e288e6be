// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-pool knowledge statistics",
		Long:  "Display item, trained-item and vector chunk counts for the library and chat pools.",
		RunE:  runStats,
	}

	addAddressFlag(cmd)

	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	client := clientFromFlags(cmd)

	var body struct {
		Pools []struct {
			Pool             string `json:"pool"`
			ItemCount        int64  `json:"item_count"`
			TrainedCount     int64  `json:"trained_count"`
			VectorChunkCount int64  `json:"vector_chunk_count"`
		} `json:"pools"`
	}
	if err := client.getJSON(cmd.Context(), "/api/v1/stats", &body); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "POOL\tITEMS\tTRAINED\tVECTOR CHUNKS")
	for _, p := range body.Pools {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", p.Pool, p.ItemCount, p.TrainedCount, p.VectorChunkCount)
	}
	return tw.Flush()
}

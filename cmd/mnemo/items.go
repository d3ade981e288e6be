// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func newItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Manage knowledge items",
		Long:  "Create, list, import and delete knowledge items in the library and chat pools.",
	}

	cmd.AddCommand(
		newItemsAddCmd(),
		newItemsListCmd(),
		newItemsImportCmd(),
		newItemsDeleteCmd(),
	)

	return cmd
}

func newItemsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add one knowledge item",
		Long:  "Create an untrained item from flags. Content is read from --content, --file, or stdin, in that order of preference.",
		RunE:  runItemsAdd,
	}
	addAddressFlag(cmd)
	cmd.Flags().StringP("pool", "p", "library", "pool to create the item in (library or chat)")
	cmd.Flags().StringP("title", "t", "", "item title (required)")
	cmd.Flags().StringP("description", "d", "", "optional description")
	cmd.Flags().String("category", "", "category tag, defaults to manual")
	cmd.Flags().String("content", "", "item content")
	cmd.Flags().StringP("file", "f", "", "read content from a file")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newItemsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List knowledge items",
		RunE:  runItemsList,
	}
	addAddressFlag(cmd)
	cmd.Flags().StringP("pool", "p", "", "restrict to one pool (library or chat)")
	cmd.Flags().Bool("untrained", false, "only items without current vectors")
	return cmd
}

func newItemsImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <pack.yaml>",
		Short: "Import a YAML pack of knowledge items",
		Long: "Create one untrained item per entry of a YAML pack file:\n\n" +
			"  pool: library        # optional, per-pack default\n" +
			"  items:\n" +
			"    - title: ...\n" +
			"      description: ...  # optional\n" +
			"      category: ...     # optional\n" +
			"      content: |\n" +
			"        ...",
		Args: cobra.ExactArgs(1),
		RunE: runItemsImport,
	}
	addAddressFlag(cmd)
	return cmd
}

func newItemsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete knowledge items and their vectors",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runItemsDelete,
	}
	addAddressFlag(cmd)
	return cmd
}

// createItemRequest mirrors the daemon's item creation body.
type createItemRequest struct {
	Pool        string `json:"pool"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

func runItemsAdd(cmd *cobra.Command, _ []string) error {
	pool, _ := cmd.Flags().GetString("pool")
	title, _ := cmd.Flags().GetString("title")
	description, _ := cmd.Flags().GetString("description")
	category, _ := cmd.Flags().GetString("category")
	content, _ := cmd.Flags().GetString("content")
	file, _ := cmd.Flags().GetString("file")

	switch {
	case content != "":
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return mnemoerr.Errorf(mnemoerr.CodeCLIInputInvalid, "reading %s: %w", file, err)
		}
		content = string(data)
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return mnemoerr.Errorf(mnemoerr.CodeCLIInputInvalid, "reading content from stdin: %w", err)
		}
		content = string(data)
	}
	if content == "" {
		return mnemoerr.New(mnemoerr.CodeCLIInputInvalid, "item content must not be empty")
	}

	client := clientFromFlags(cmd)
	var body struct {
		ID string `json:"id"`
	}
	req := createItemRequest{
		Pool:        pool,
		Title:       title,
		Content:     content,
		Description: description,
		Category:    category,
	}
	if err := client.postJSON(cmd.Context(), "/api/v1/items", req, &body); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s  %s\nRun 'mnemo train' to embed it.\n", body.ID, title)
	return nil
}

func runItemsList(cmd *cobra.Command, _ []string) error {
	pool, _ := cmd.Flags().GetString("pool")
	untrained, _ := cmd.Flags().GetBool("untrained")

	path := "/api/v1/items?limit=0"
	if pool != "" {
		path += "&pool=" + pool
	}
	if untrained {
		path += "&untrained=true"
	}

	client := clientFromFlags(cmd)
	var body struct {
		Items []struct {
			ID            string `json:"id"`
			Pool          string `json:"pool"`
			Title         string `json:"title"`
			Category      string `json:"category"`
			IsTrained     bool   `json:"is_trained"`
			ChunksCreated int    `json:"chunks_created"`
		} `json:"items"`
	}
	if err := client.getJSON(cmd.Context(), path, &body); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(body.Items) == 0 {
		_, _ = fmt.Fprintln(out, "No items.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPOOL\tTRAINED\tCHUNKS\tCATEGORY\tTITLE")
	for _, it := range body.Items {
		trained := "no"
		if it.IsTrained {
			trained = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			it.ID, it.Pool, trained, it.ChunksCreated, it.Category, it.Title)
	}
	return tw.Flush()
}

// itemPack is the YAML import file format.
type itemPack struct {
	Pool  string `yaml:"pool"`
	Items []struct {
		Pool        string `yaml:"pool"`
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
		Category    string `yaml:"category"`
		Content     string `yaml:"content"`
	} `yaml:"items"`
}

func runItemsImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return mnemoerr.Errorf(mnemoerr.CodeCLIInputInvalid, "reading pack %s: %w", args[0], err)
	}

	var pack itemPack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return mnemoerr.Errorf(mnemoerr.CodeCLIInputInvalid, "parsing pack %s: %w", args[0], err)
	}
	if len(pack.Items) == 0 {
		return mnemoerr.Errorf(mnemoerr.CodeCLIInputInvalid, "pack %s contains no items", args[0])
	}

	client := clientFromFlags(cmd)
	out := cmd.OutOrStdout()
	created := 0
	for i, entry := range pack.Items {
		pool := entry.Pool
		if pool == "" {
			pool = pack.Pool
		}
		if pool == "" {
			pool = "library"
		}
		req := createItemRequest{
			Pool:        pool,
			Title:       entry.Title,
			Content:     entry.Content,
			Description: entry.Description,
			Category:    entry.Category,
		}
		if req.Category == "" {
			req.Category = "document-upload"
		}

		var body struct {
			ID string `json:"id"`
		}
		if err := client.postJSON(cmd.Context(), "/api/v1/items", req, &body); err != nil {
			// Items created so far stay; the pack is re-runnable after the
			// bad entry is fixed (dedup catches any re-imports).
			return mnemoerr.Wrapf(err, mnemoerr.CodeCLIRequestFailure,
				"importing item %d (%q); %d item(s) already created", i+1, entry.Title, created)
		}
		created++
		_, _ = fmt.Fprintf(out, "created %s  %s\n", body.ID, entry.Title)
	}

	_, _ = fmt.Fprintf(out, "\nImported %d item(s). Run 'mnemo train' to embed them.\n", created)
	return nil
}

func runItemsDelete(cmd *cobra.Command, args []string) error {
	client := clientFromFlags(cmd)
	out := cmd.OutOrStdout()

	for _, id := range args {
		if err := client.deleteJSON(cmd.Context(), "/api/v1/items/"+id, nil); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "deleted %s\n", id)
	}
	return nil
}

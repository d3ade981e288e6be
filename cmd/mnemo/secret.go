// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/secrets"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long: "Store, list and delete secrets kept under the mnemo service in the operating system keyring.\n" +
			"Config values reference them as keyring://mnemo/<name>.",
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretGetCmd(),
		newSecretListCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Store a secret under the given name",
		Args:  cobra.ExactArgs(2),
		RunE:  runSecretSet,
	}
}

func newSecretGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a secret's keyring reference and confirm it resolves",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretGet,
	}
}

func newSecretListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all stored secret names",
		RunE:  runSecretList,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name, value := args[0], strings.TrimSpace(args[1])
	if value == "" {
		return mnemoerr.New(mnemoerr.CodeCLIInputInvalid, "secret value must not be empty")
	}

	store := secretStoreFactory()
	if err := store.Set(secrets.DefaultService, name, value); err != nil {
		return mnemoerr.Errorf(mnemoerr.CodeSecretBackendFailure, "storing secret %q: %w", name, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret: %s\nReference it in config as keyring://%s/%s\n",
		name, secrets.DefaultService, name)
	return nil
}

func runSecretGet(cmd *cobra.Command, args []string) error {
	name := args[0]
	store := secretStoreFactory()

	// The value itself is never printed; secrets stay out of terminal
	// scrollback and shell history.
	if _, err := store.Get(secrets.DefaultService, name); err != nil {
		if mnemoerr.HasCode(err, mnemoerr.CodeSecretNotFound) {
			return mnemoerr.Errorf(mnemoerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return mnemoerr.Errorf(mnemoerr.CodeSecretBackendFailure, "reading secret %q: %w", name, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "keyring://%s/%s (resolves)\n", secrets.DefaultService, name)
	return nil
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	store := secretStoreFactory()
	keys, err := store.List(secrets.DefaultService)
	if err != nil {
		return mnemoerr.Errorf(mnemoerr.CodeSecretBackendFailure, "listing secrets: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}

	for _, k := range keys {
		_, _ = fmt.Fprintln(out, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	store := secretStoreFactory()

	if err := store.Delete(secrets.DefaultService, name); err != nil {
		if mnemoerr.HasCode(err, mnemoerr.CodeSecretNotFound) {
			return mnemoerr.Errorf(mnemoerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return mnemoerr.Errorf(mnemoerr.CodeSecretBackendFailure, "deleting secret %q: %w", name, err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}

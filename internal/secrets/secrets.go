// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package secrets stores API keys and auth tokens in the OS keychain and
// resolves keyring:// references in configuration.
package secrets

// DefaultService is the keyring service name all Mnemo secrets live under.
const DefaultService = "mnemo"

// Store provides secure secret storage operations.
// Implementations may use OS keyrings, encrypted files, or other backends.
type Store interface {
	// Set saves a secret value under the given service and key.
	Set(service, key, value string) error

	// Get fetches the secret value for the given service and key.
	// Returns CodeSecretNotFound if the key does not exist.
	Get(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	// Returns CodeSecretNotFound if the key does not exist.
	Delete(service, key string) error

	// List returns all key names stored under the given service.
	List(service string) ([]string, error)
}

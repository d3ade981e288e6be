// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package secrets

import (
	"strings"

	"github.com/spf13/viper"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
// Returns an error if the URI is malformed.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", mnemoerr.Errorf(mnemoerr.CodeSecretRefInvalid, "not a keyring URI: %q", uri)
	}

	path := strings.TrimPrefix(uri, keyringScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", mnemoerr.Errorf(mnemoerr.CodeSecretRefInvalid,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}

	return parts[0], parts[1], nil
}

// ResolveKeyringURI resolves a single keyring:// URI to its secret value.
// Returns the original value unchanged if it is not a keyring URI.
func ResolveKeyringURI(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Get(service, key)
	if err != nil {
		// Keep the original classification (not found vs backend failure).
		return "", mnemoerr.Wrapf(err, mnemoerr.CodeOf(err), "resolving keyring URI %q", value)
	}

	return secret, nil
}

// ResolveViperSecrets walks all keys in a Viper instance and resolves any
// string values that use the keyring:// URI scheme. This is a post-load
// resolution step, not a Viper decoder hook. Returns an error naming the
// config key on the first URI that cannot be resolved; a daemon must not
// come up with an unresolved credential reference in place of the secret.
func ResolveViperSecrets(v *viper.Viper, store Store) error {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := ResolveKeyringURI(store, val)
		if err != nil {
			return mnemoerr.Wrapf(err, mnemoerr.CodeOf(err), "resolving config key %s from %q", key, val)
		}

		v.Set(key, resolved)
	}
	return nil
}

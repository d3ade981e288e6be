// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package secrets_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/secrets"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func TestIsKeyringURI(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"valid URI", "keyring://mnemo/openai_api_key", true},
		{"valid URI with dashes", "keyring://my-svc/my-key", true},
		{"env var reference", "${OPENAI_API_KEY}", false},
		{"literal value", "sk-abc123", false},
		{"empty string", "", false},
		{"just scheme", "keyring://", true},
		{"other scheme", "vault://secret/key", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := secrets.IsKeyringURI(tt.value)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKeyringURI(t *testing.T) {
	tests := []struct {
		name        string
		uri         string
		wantService string
		wantKey     string
		wantErr     bool
	}{
		{"valid", "keyring://mnemo/api-key", "mnemo", "api-key", false},
		{"dashes", "keyring://my-service/my-key-name", "my-service", "my-key-name", false},
		{"slashes in key", "keyring://mnemo/path/to/key", "mnemo", "path/to/key", false},
		{"not a keyring URI", "vault://secret/key", "", "", true},
		{"missing key", "keyring://mnemo/", "", "", true},
		{"missing service", "keyring:///key", "", "", true},
		{"missing both", "keyring://", "", "", true},
		{"no path", "keyring://mnemo", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, key, err := secrets.ParseKeyringURI(tt.uri)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeSecretRefInvalid))
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantService, svc)
				assert.Equal(t, tt.wantKey, key)
			}
		})
	}
}

func TestResolveKeyringURI(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Set("mnemo", "test-key", "resolved-secret"))

	t.Run("resolves keyring URI", func(t *testing.T) {
		val, err := secrets.ResolveKeyringURI(ks, "keyring://mnemo/test-key")
		require.NoError(t, err)
		assert.Equal(t, "resolved-secret", val)
	})

	t.Run("passes through non-keyring values", func(t *testing.T) {
		val, err := secrets.ResolveKeyringURI(ks, "literal-value")
		require.NoError(t, err)
		assert.Equal(t, "literal-value", val)
	})

	t.Run("passes through env var references", func(t *testing.T) {
		val, err := secrets.ResolveKeyringURI(ks, "${ENV_VAR}")
		require.NoError(t, err)
		assert.Equal(t, "${ENV_VAR}", val)
	})

	t.Run("error on missing secret keeps classification", func(t *testing.T) {
		_, err := secrets.ResolveKeyringURI(ks, "keyring://mnemo/nonexistent")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resolving keyring URI")
		assert.True(t, mnemoerr.IsNotFound(err))
	})

	t.Run("error on malformed URI", func(t *testing.T) {
		_, err := secrets.ResolveKeyringURI(ks, "keyring://bad")
		require.Error(t, err)
		assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeSecretRefInvalid))
	})
}

func TestResolveViperSecrets(t *testing.T) {
	ks := secrets.NewKeyringStore()
	require.NoError(t, ks.Set("mnemo", "openai_api_key", "sk-oai-secret"))
	require.NoError(t, ks.Set("mnemo", "auth_token", "tok-secret"))

	v := viper.New()
	v.Set("embedding.api_key", "keyring://mnemo/openai_api_key")
	v.Set("api.auth_token", "keyring://mnemo/auth_token")
	v.Set("api.host", "127.0.0.1") // non-keyring value
	v.Set("embedding.provider", "openai")

	require.NoError(t, secrets.ResolveViperSecrets(v, ks))

	assert.Equal(t, "sk-oai-secret", v.GetString("embedding.api_key"))
	assert.Equal(t, "tok-secret", v.GetString("api.auth_token"))
	assert.Equal(t, "127.0.0.1", v.GetString("api.host"))
	assert.Equal(t, "openai", v.GetString("embedding.provider"))
}

func TestResolveViperSecrets_MissingSecretReturnsError(t *testing.T) {
	ks := secrets.NewKeyringStore()

	v := viper.New()
	v.Set("embedding.api_key", "keyring://mnemo/nonexistent-key")

	err := secrets.ResolveViperSecrets(v, ks)

	// Should return an error with a clear message identifying the unresolved key.
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.api_key")
	assert.Contains(t, err.Error(), "keyring://mnemo/nonexistent-key")
}

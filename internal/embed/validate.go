// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package embed

import (
	"context"
	"io"
	"net/http"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// ValidateKey makes a lightweight HTTP call to the provider's models endpoint
// to confirm the API key is valid, without spending embedding quota.
func ValidateKey(ctx context.Context, client *http.Client, provider, key string) error {
	var (
		url     string
		headers map[string]string
	)

	switch provider {
	case "openai":
		url = "https://api.openai.com/v1/models"
		headers = map[string]string{
			"Authorization": "Bearer " + key,
		}
	case "google":
		// Google's Generative Language API authenticates via query parameter.
		// This is Google's standard approach — there is no header-based
		// alternative. Note: the key will appear in HTTP proxy/CDN access logs.
		url = "https://generativelanguage.googleapis.com/v1/models?key=" + key
	case "anthropic":
		// Not an embedding provider, but the init wizard validates the
		// distiller key through the same path.
		url = "https://api.anthropic.com/v1/models"
		headers = map[string]string{
			"x-api-key":         key,
			"anthropic-version": "2023-06-01",
		}
	default:
		return mnemoerr.Errorf(mnemoerr.CodeEmbedProviderNotFound, "unknown provider: %s", provider)
	}

	return validateAgainst(ctx, client, provider, url, headers)
}

// ValidateKeyWithURL is a testable version of ValidateKey that accepts an
// explicit URL. When url is non-empty it overrides the provider default.
func ValidateKeyWithURL(ctx context.Context, client *http.Client, provider, key, url string) error {
	if url == "" {
		return ValidateKey(ctx, client, provider, key)
	}

	headers := map[string]string{}
	switch provider {
	case "openai":
		headers["Authorization"] = "Bearer " + key
	case "anthropic":
		headers["x-api-key"] = key
		headers["anthropic-version"] = "2023-06-01"
	case "google":
		// Query-parameter auth; the caller bakes the key into the test URL.
	default:
		return mnemoerr.Errorf(mnemoerr.CodeEmbedProviderNotFound, "unknown provider: %s", provider)
	}

	return validateAgainst(ctx, client, provider, url, headers)
}

func validateAgainst(ctx context.Context, client *http.Client, provider, url string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return mnemoerr.Errorf(mnemoerr.CodeEmbedRequestInvalid, "building validation request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return mnemoerr.Errorf(mnemoerr.CodeEmbedUpstreamFailure, "validating %s key: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return mnemoerr.Errorf(mnemoerr.CodeConfigEmbeddingMissing,
			"invalid %s API key (HTTP %d)", provider, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return mnemoerr.Errorf(mnemoerr.CodeEmbedUpstreamFailure,
			"%s validation failed (HTTP %d)", provider, resp.StatusCode)
	}

	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package embed

import (
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// New builds the configured provider wrapped in the standard decorator
// stack: truncation outermost, then the cache, then the retry loop, with
// health tracking recording each raw provider call. The returned Tracker is
// shared with the scheduler and the health endpoint.
func New(cfg Config) (Embedder, *Tracker, error) {
	tracker, err := NewTracker(DefaultHealthCooldown)
	if err != nil {
		return nil, nil, err
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return nil, nil, err
	}

	embedder := WithTracking(provider, tracker)
	embedder = WithRetry(embedder, cfg.Retry)
	embedder = WithCache(embedder, provider.Name()+"/"+cfg.Model, cfg.Cache)
	embedder = WithTruncation(embedder, cfg.InputLimit)
	return embedder, tracker, nil
}

func newProvider(cfg Config) (Embedder, error) {
	name := cfg.Provider
	if name == "" {
		name = DefaultProvider
	}

	switch name {
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case "google":
		return NewGemini(GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, mnemoerr.New(mnemoerr.CodeEmbedProviderNotFound,
			"unknown embedding provider: "+name, mnemoerr.FieldProvider(name))
	}
}

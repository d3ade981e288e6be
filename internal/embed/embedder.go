// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package embed turns chunk text into fixed-dimension vectors by calling an
// external embedding provider. A provider embeds all chunks of one knowledge
// item in a single batched call; decorators layer retry, caching, and health
// tracking around the raw provider.
package embed

import (
	"context"
	"unicode/utf8"
)

// Embedder is a batched embedding provider.
type Embedder interface {
	// Embed returns one vector per input text, in input order. The whole
	// batch succeeds or fails as one call.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the fixed dimensionality of returned vectors.
	Dimensions() int

	// Name identifies the provider ("openai", "google").
	Name() string

	Close() error
}

const (
	// DefaultProvider is used when the config names none.
	DefaultProvider = "openai"

	// DefaultDimensions matches text-embedding-3-small and is what the
	// vector store is sized to unless configured otherwise.
	DefaultDimensions = 1536

	// DefaultInputLimit is the per-text rune budget sent to a provider.
	// Longer texts are truncated silently; chunking keeps texts far below
	// this in normal operation.
	DefaultInputLimit = 8000
)

// Config selects and tunes the embedding provider. It mirrors the
// "embedding" section of the config file.
type Config struct {
	Provider   string      `yaml:"provider" mapstructure:"provider"`
	Model      string      `yaml:"model" mapstructure:"model"`
	Dimensions int         `yaml:"dimensions" mapstructure:"dimensions"`
	APIKey     string      `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string      `yaml:"base_url" mapstructure:"base_url"`
	InputLimit int         `yaml:"input_limit" mapstructure:"input_limit"`
	Retry      RetryConfig `yaml:"retry" mapstructure:"retry"`
	Cache      CacheConfig `yaml:"cache" mapstructure:"cache"`
}

// Truncate clips text to at most limit runes. Truncation is silent: provider
// input limits are a hard constraint, not an error condition.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		limit = DefaultInputLimit
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}

// truncatingEmbedder clips every input before handing the batch on.
type truncatingEmbedder struct {
	Embedder
	limit int
}

// WithTruncation wraps inner so every text is clipped to limit runes before
// the provider sees it.
func WithTruncation(inner Embedder, limit int) Embedder {
	if limit <= 0 {
		limit = DefaultInputLimit
	}
	return &truncatingEmbedder{Embedder: inner, limit: limit}
}

func (t *truncatingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	clipped := make([]string, len(texts))
	for i, text := range texts {
		clipped[i] = Truncate(text, t.limit)
	}
	return t.Embedder.Embed(ctx, clipped)
}

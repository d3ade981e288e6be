// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

const (
	// DefaultCacheSize bounds the number of cached embeddings.
	DefaultCacheSize = 2048

	// DefaultCacheTTL bounds how long a cached embedding is reused.
	DefaultCacheTTL = 24 * time.Hour
)

// CacheConfig tunes the in-process embedding cache. A zero Size disables
// caching entirely.
type CacheConfig struct {
	Size int           `yaml:"size" mapstructure:"size"`
	TTL  time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// cachedEmbedder memoises per-text embeddings in an expiring LRU, so
// retraining unchanged content skips the provider round-trip. Keys hash the
// model name with the text; vectors are cloned on the way in and out so
// callers can never mutate a cached entry.
type cachedEmbedder struct {
	Embedder
	cache *expirable.LRU[string, []float32]
	model string
}

// WithCache wraps inner in an expiring LRU keyed by model and text content.
// Returns inner unchanged when the cache is disabled.
func WithCache(inner Embedder, model string, cfg CacheConfig) Embedder {
	if cfg.Size <= 0 {
		return inner
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &cachedEmbedder{
		Embedder: inner,
		cache:    expirable.NewLRU[string, []float32](cfg.Size, nil, ttl),
		model:    model,
	}
}

func (c *cachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	// Collect the cache misses, preserving their positions.
	var (
		missTexts []string
		missIdx   []int
	)
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.key(text)); ok {
			out[i] = cloneVector(vec)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.Embedder.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, mnemoerr.Errorf(mnemoerr.CodeEmbedResponseInvalid,
			"embed cache: got %d vectors for %d texts", len(vectors), len(missTexts))
	}

	for j, vec := range vectors {
		i := missIdx[j]
		out[i] = vec
		c.cache.Add(c.key(texts[i]), cloneVector(vec))
	}
	return out, nil
}

func (c *cachedEmbedder) key(text string) string {
	hash := sha256.Sum256([]byte(text))
	return "embed:" + c.model + ":" + hex.EncodeToString(hash[:])
}

func cloneVector(vec []float32) []float32 {
	if len(vec) == 0 {
		return nil
	}
	clone := make([]float32, len(vec))
	copy(clone, vec)
	return clone
}

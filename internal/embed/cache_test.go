// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package embed_test

import (
	"context"
	"testing"
	"time"

	"github.com/mnemo-dev/mnemo/internal/embed"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(inner embed.Embedder) embed.Embedder {
	return embed.WithCache(inner, "test-model", embed.CacheConfig{Size: 32, TTL: time.Minute})
}

func TestCache_HitSkipsProvider(t *testing.T) {
	ctx := context.Background()
	fake := newFakeEmbedder(3)
	embedder := testCache(fake)

	first, err := embedder.Embed(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := embedder.Embed(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fake.callCount())
}

func TestCache_PartialHitSendsOnlyMisses(t *testing.T) {
	ctx := context.Background()
	fake := newFakeEmbedder(3)
	embedder := testCache(fake)

	_, err := embedder.Embed(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)

	vectors, err := embedder.Embed(ctx, []string{"beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	// Only the unseen text reaches the provider; cached and fresh vectors
	// land back in their request positions.
	require.Equal(t, 2, fake.callCount())
	assert.Equal(t, []string{"gamma"}, fake.batch(1))
	assert.Equal(t, float32(4), vectors[0][0])
	assert.Equal(t, float32(5), vectors[1][0])
}

func TestCache_ReturnedVectorsAreIsolated(t *testing.T) {
	ctx := context.Background()
	fake := newFakeEmbedder(3)
	embedder := testCache(fake)

	first, err := embedder.Embed(ctx, []string{"alpha"})
	require.NoError(t, err)
	first[0][0] = 999

	second, err := embedder.Embed(ctx, []string{"alpha"})
	require.NoError(t, err)

	assert.Equal(t, float32(5), second[0][0])
	assert.Equal(t, 1, fake.callCount())
}

func TestCache_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	fake := newFakeEmbedder(3)
	fake.errs = []error{mnemoerr.New(mnemoerr.CodeEmbedUpstreamFailure, "down")}
	embedder := testCache(fake)

	_, err := embedder.Embed(ctx, []string{"alpha"})
	require.Error(t, err)

	vectors, err := embedder.Embed(ctx, []string{"alpha"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, 2, fake.callCount())
}

func TestCache_DisabledPassesThrough(t *testing.T) {
	ctx := context.Background()
	fake := newFakeEmbedder(3)
	embedder := embed.WithCache(fake, "test-model", embed.CacheConfig{})

	for i := 0; i < 2; i++ {
		_, err := embedder.Embed(ctx, []string{"alpha"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, fake.callCount())
}

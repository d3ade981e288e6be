// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package train

import (
	"context"
	"strings"

	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// DefaultSearchLimit is the result count used when a search request names
// none.
const DefaultSearchLimit = 5

// Search embeds the query with the same provider that trained the vectors
// and runs a nearest-neighbor query over the shared table. k <= 0 falls back
// to DefaultSearchLimit; a nil pool searches both pools.
func (s *Service) Search(ctx context.Context, query string, k int, pool *store.Pool) ([]store.VectorResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, mnemoerr.New(mnemoerr.CodeStoreInvalidInput, "search: query must not be empty")
	}
	if pool != nil && !pool.Valid() {
		return nil, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "search: unknown pool %q", *pool)
	}
	if s.embedder == nil {
		return nil, mnemoerr.New(mnemoerr.CodeConfigEmbeddingMissing,
			"embedding provider is not configured: set an embedding API key")
	}
	if k <= 0 {
		k = DefaultSearchLimit
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, mnemoerr.Errorf(mnemoerr.CodeEmbedResponseInvalid,
			"search: got %d vectors for one query", len(vectors))
	}
	return s.vectors.Search(ctx, vectors[0], k, pool)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package store

import "context"

// VectorStore manages the single shared vector table. Both pools live in the
// same table; pool membership is recovered from each record's Pool column,
// which keeps nearest-neighbor search unified while allowing pool-scoped
// counts.
//
// The table is created lazily on the first successful Append. Before that,
// Count, CountByPool, DeleteByPrefix and Search treat the missing table as
// empty rather than as an error.
type VectorStore interface {
	// Append inserts records transactionally. All writes are serialized
	// within the process.
	Append(ctx context.Context, records []VectorChunkRecord) error
	// DeleteByPrefix removes every record derived from the given item and
	// returns how many rows went away. Zero matches is not an error.
	DeleteByPrefix(ctx context.Context, pool Pool, itemID string) (int64, error)
	// Search runs a nearest-neighbor query. pool narrows results to one
	// pool; nil searches both.
	Search(ctx context.Context, query []float32, k int, pool *Pool) ([]VectorResult, error)
	Count(ctx context.Context) (int64, error)
	CountByPool(ctx context.Context, pool Pool) (int64, error)
	Close() error
}

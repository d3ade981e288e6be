// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package store

import "context"

// CatalogStore manages the two knowledge-item catalogs. Every query is
// pool-scoped except the id-based lookups, because ids are unique across
// pools.
type CatalogStore interface {
	CreateItem(ctx context.Context, item *KnowledgeItem) error
	GetItem(ctx context.Context, id string) (*KnowledgeItem, error)
	// ListItems returns items in a pool ordered oldest-created first
	// (creation time, then id, as a deterministic tiebreak).
	ListItems(ctx context.Context, pool Pool, opts ListOpts) ([]*KnowledgeItem, error)
	// ListUntrained returns every untrained item in a pool, oldest first.
	ListUntrained(ctx context.Context, pool Pool) ([]*KnowledgeItem, error)
	// ListByIDs returns the items that exist among ids, in catalog creation
	// order. Missing ids are simply absent from the result; callers that
	// care detect the gap themselves.
	ListByIDs(ctx context.Context, ids []string) ([]*KnowledgeItem, error)

	// UpdateItemContent replaces the textual payload of an item and resets
	// its training state (isTrained=false, trainedAt=null, chunksCreated=0).
	// Purging the now-stale vector records is the caller's decision.
	UpdateItemContent(ctx context.Context, id, title, description, content string) error

	// MarkTrained records a successful training run.
	MarkTrained(ctx context.Context, id string, chunkCount int) error
	// ResetTrained clears training state without touching the payload.
	ResetTrained(ctx context.Context, id string) error

	DeleteItem(ctx context.Context, id string) error

	CountByPool(ctx context.Context, pool Pool) (int64, error)
	CountTrained(ctx context.Context, pool Pool) (int64, error)

	Close() error
}

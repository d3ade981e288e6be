// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package store

import (
	"fmt"
	"time"
)

// --- Knowledge pools ---

// Pool identifies which knowledge pool an item or vector record belongs to.
// It is a closed set: every switch over Pool must handle all variants and
// reject anything else.
type Pool string

const (
	// PoolLibrary holds manually added or imported knowledge items.
	PoolLibrary Pool = "library"
	// PoolChat holds facts distilled from chat sessions (the "brain" pool).
	PoolChat Pool = "chat"
)

// Pools returns all known pools in stable order.
func Pools() []Pool {
	return []Pool{PoolLibrary, PoolChat}
}

// ParsePool converts a raw string into a Pool. It is the only place a raw
// string becomes a Pool; everything downstream can rely on the value being
// one of the closed set.
func ParsePool(s string) (Pool, error) {
	switch Pool(s) {
	case PoolLibrary:
		return PoolLibrary, nil
	case PoolChat:
		return PoolChat, nil
	default:
		return "", fmt.Errorf("%w: unknown pool %q", ErrInvalidInput, s)
	}
}

// Valid reports whether p is one of the known pools.
func (p Pool) Valid() bool {
	switch p {
	case PoolLibrary, PoolChat:
		return true
	default:
		return false
	}
}

// RecordPrefix returns the vector-record id prefix for an item in this pool.
// Library items use the bare item id; chat-derived items are namespaced with
// a "chat-" prefix so the two pools never collide in the shared table.
func (p Pool) RecordPrefix(itemID string) string {
	switch p {
	case PoolChat:
		return "chat-" + itemID
	default:
		return itemID
	}
}

// ChunkRecordID returns the id of the index-th vector record for an item.
func ChunkRecordID(pool Pool, itemID string, index int) string {
	return fmt.Sprintf("%s-chunk-%d", pool.RecordPrefix(itemID), index)
}

// ChunkDeletePattern returns the SQL LIKE pattern matching every vector
// record derived from the given item. Retrain and cascade deletion both
// delete through this pattern.
func ChunkDeletePattern(pool Pool, itemID string) string {
	return pool.RecordPrefix(itemID) + "-chunk-%"
}

// --- Knowledge items ---

// KnowledgeItem is one entry in a knowledge catalog. The same shape serves
// both pools; Pool says which catalog the item lives in.
type KnowledgeItem struct {
	ID          string
	Pool        Pool
	Title       string
	Description string
	Content     string
	// Category is a free-form display tag ("manual", "document-upload",
	// "chat-learning"). It never changes pipeline behavior.
	Category string

	// Training state, mutated only through MarkTrained / ResetTrained /
	// UpdateItemContent. IsTrained implies at least one vector record with
	// this item's record prefix exists.
	IsTrained     bool
	TrainedAt     *time.Time
	ChunksCreated int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// --- Vector records ---

// VectorChunkRecord is one embedded chunk in the shared vector table.
// Records are append-only; the only mutation is bulk deletion by id-prefix.
type VectorChunkRecord struct {
	ID   string
	Text string
	// Vector is the embedding; its length must match the store's configured
	// dimensionality.
	Vector []float32

	// Denormalized metadata so search results render without a catalog join.
	Title       string
	Pool        Pool
	ChunkIndex  int
	TotalChunks int
	CrawledAt   time.Time
}

// VectorResult is a single nearest-neighbor search hit.
type VectorResult struct {
	ID    string
	Score float64 // Distance metric: lower = more similar; 0.0 = exact match.

	Text        string
	Title       string
	Pool        Pool
	ChunkIndex  int
	TotalChunks int
}

// --- Stats ---

// PoolStats summarizes one knowledge pool.
type PoolStats struct {
	Pool             Pool  `json:"pool"`
	ItemCount        int64 `json:"item_count"`
	TrainedCount     int64 `json:"trained_count"`
	VectorChunkCount int64 `json:"vector_chunk_count"`
}

// --- Query options ---

// ListOpts provides pagination parameters for list operations.
type ListOpts struct {
	Limit  int
	Offset int
}

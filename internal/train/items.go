// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package train

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mnemo-dev/mnemo/internal/store"
)

const (
	// DefaultCategory tags items created without an explicit category.
	DefaultCategory = "manual"
	// CategoryChatLearning tags chat-pool items produced by the distiller.
	CategoryChatLearning = "chat-learning"
)

// NewItemParams carries the caller-supplied fields of a new knowledge item.
type NewItemParams struct {
	Pool        store.Pool
	Title       string
	Description string
	Content     string
	// Category defaults to "manual" when empty.
	Category string
}

// CreateItem persists a new untrained knowledge item and returns it.
func (s *Service) CreateItem(ctx context.Context, p NewItemParams) (*store.KnowledgeItem, error) {
	category := p.Category
	if category == "" {
		category = DefaultCategory
	}
	now := time.Now()
	item := &store.KnowledgeItem{
		ID:          uuid.New().String(),
		Pool:        p.Pool,
		Title:       p.Title,
		Description: p.Description,
		Content:     p.Content,
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.catalog.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateItemContent replaces an item's textual payload and resets its
// training state. With purge-on-edit enabled, the now-stale vector records
// are deleted too, so "trained implies vectors exist" holds in both
// directions; disabled, the stale records linger until the next retrain.
func (s *Service) UpdateItemContent(ctx context.Context, id, title, description, content string) (*store.KnowledgeItem, error) {
	item, err := s.catalog.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.UpdateItemContent(ctx, id, title, description, content); err != nil {
		return nil, err
	}
	if s.purgeOnEdit {
		// A failure here leaves the item untrained with stale vectors, the
		// same recoverable state as an interrupted retrain.
		if _, err := s.vectors.DeleteByPrefix(ctx, item.Pool, item.ID); err != nil {
			return nil, err
		}
	}
	return s.catalog.GetItem(ctx, id)
}

// DeleteItem removes an item and every vector record derived from it.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	item, err := s.catalog.GetItem(ctx, id)
	if err != nil {
		return err
	}
	// Vectors go first: if the prefix delete fails, the catalog row
	// survives and the cascade can be retried.
	if _, err := s.vectors.DeleteByPrefix(ctx, item.Pool, item.ID); err != nil {
		return err
	}
	return s.catalog.DeleteItem(ctx, item.ID)
}

// Stats summarizes every knowledge pool.
func (s *Service) Stats(ctx context.Context) ([]store.PoolStats, error) {
	out := make([]store.PoolStats, 0, len(store.Pools()))
	for _, pool := range store.Pools() {
		items, err := s.catalog.CountByPool(ctx, pool)
		if err != nil {
			return nil, err
		}
		trained, err := s.catalog.CountTrained(ctx, pool)
		if err != nil {
			return nil, err
		}
		chunks, err := s.vectors.CountByPool(ctx, pool)
		if err != nil {
			return nil, err
		}
		out = append(out, store.PoolStats{
			Pool:             pool,
			ItemCount:        items,
			TrainedCount:     trained,
			VectorChunkCount: chunks,
		})
	}
	return out, nil
}

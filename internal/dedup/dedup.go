// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package dedup finds and removes duplicate knowledge items. Duplicates are
// detected per pool, never across pools, by comparing the first 500 runes of
// normalized content; the earliest-created item of each duplicate set is
// kept.
package dedup

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// KeyRunes bounds how much normalized content participates in duplicate
// detection.
const KeyRunes = 500

// Cataloger lists a pool's items oldest-created first.
type Cataloger interface {
	ListItems(ctx context.Context, pool store.Pool, opts store.ListOpts) ([]*store.KnowledgeItem, error)
}

// ItemDeleter removes an item through the cascading deletion path: the
// catalog row plus every vector record derived from it.
type ItemDeleter interface {
	DeleteItem(ctx context.Context, id string) error
}

// Group is one duplicate set: the earliest-created item plus every later
// item sharing its content key.
type Group struct {
	Kept       *store.KnowledgeItem   `json:"kept"`
	Duplicates []*store.KnowledgeItem `json:"duplicates"`
}

// Preview is the outcome of a dry-run duplicate scan.
type Preview struct {
	Pool         store.Pool `json:"pool"`
	Groups       []Group    `json:"groups"`
	RemovedCount int        `json:"removed_count"`
	KeptCount    int        `json:"kept_count"`
}

// Result summarizes a removal pass.
type Result struct {
	Pool         store.Pool `json:"pool"`
	RemovedCount int        `json:"removed_count"`
	KeptCount    int        `json:"kept_count"`
}

// Engine scans a pool's catalog for duplicates.
type Engine struct {
	catalog Cataloger
	deleter ItemDeleter
	logger  *slog.Logger
}

// NewEngine creates an Engine over the given catalog and deletion path.
func NewEngine(catalog Cataloger, deleter ItemDeleter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		catalog: catalog,
		deleter: deleter,
		logger:  logger.With(slog.String("component", "dedup")),
	}
}

// Preview scans a pool without changing anything. The scan is deterministic:
// identical catalogs produce identical previews.
func (e *Engine) Preview(ctx context.Context, pool store.Pool) (*Preview, error) {
	groups, total, err := e.scan(ctx, pool)
	if err != nil {
		return nil, err
	}
	removed := 0
	for _, g := range groups {
		removed += len(g.Duplicates)
	}
	return &Preview{
		Pool:         pool,
		Groups:       groups,
		RemovedCount: removed,
		KeptCount:    total - removed,
	}, nil
}

// Remove deletes every duplicate in a pool through the cascading deletion
// path, keeping the earliest-created item of each set. A delete failure
// aborts the pass; rerunning resumes where it left off, since already-removed
// duplicates no longer match anything.
func (e *Engine) Remove(ctx context.Context, pool store.Pool) (*Result, error) {
	groups, total, err := e.scan(ctx, pool)
	if err != nil {
		return nil, err
	}

	removed := 0
	for _, g := range groups {
		for _, dup := range g.Duplicates {
			if err := e.deleter.DeleteItem(ctx, dup.ID); err != nil {
				return nil, mnemoerr.Wrapf(err, mnemoerr.CodeOf(err), "removing duplicate %s of %s", dup.ID, g.Kept.ID)
			}
			removed++
		}
	}

	e.logger.Info("deduplication pass finished",
		slog.String("pool", string(pool)),
		slog.Int("removed", removed),
		slog.Int("kept", total-removed))
	return &Result{
		Pool:         pool,
		RemovedCount: removed,
		KeptCount:    total - removed,
	}, nil
}

// scan walks a pool oldest first and buckets items by content key. Returned
// groups contain only sets with at least one duplicate; total is the pool's
// item count.
func (e *Engine) scan(ctx context.Context, pool store.Pool) ([]Group, int, error) {
	if !pool.Valid() {
		return nil, 0, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "dedup: unknown pool %q", pool)
	}
	items, err := e.catalog.ListItems(ctx, pool, store.ListOpts{})
	if err != nil {
		return nil, 0, err
	}

	byKey := make(map[string]int, len(items))
	all := make([]Group, 0, len(items))
	for _, item := range items {
		key := contentKey(item.Content)
		if i, ok := byKey[key]; ok {
			all[i].Duplicates = append(all[i].Duplicates, item)
			continue
		}
		byKey[key] = len(all)
		all = append(all, Group{Kept: item})
	}

	var groups []Group
	for _, g := range all {
		if len(g.Duplicates) > 0 {
			groups = append(groups, g)
		}
	}
	return groups, len(items), nil
}

// contentKey normalizes content for duplicate detection: trimmed, lowered,
// clipped to the first KeyRunes runes.
func contentKey(content string) string {
	key := strings.ToLower(strings.TrimSpace(content))
	runes := []rune(key)
	if len(runes) > KeyRunes {
		return string(runes[:KeyRunes])
	}
	return key
}

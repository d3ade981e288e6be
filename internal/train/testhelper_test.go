// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package train_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/train"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// memCatalog is an in-memory store.CatalogStore with the same ordering
// contract as the sqlite backend: creation time ascending, id as tiebreak.
type memCatalog struct {
	mu    sync.Mutex
	items map[string]*store.KnowledgeItem
}

func newMemCatalog() *memCatalog {
	return &memCatalog{items: make(map[string]*store.KnowledgeItem)}
}

func cloneItem(item *store.KnowledgeItem) *store.KnowledgeItem {
	clone := *item
	if item.TrainedAt != nil {
		at := *item.TrainedAt
		clone.TrainedAt = &at
	}
	return &clone
}

func (c *memCatalog) CreateItem(_ context.Context, item *store.KnowledgeItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[item.ID]; ok {
		return mnemoerr.Errorf(mnemoerr.CodeStoreItemInsertConflict, "item %s already exists", item.ID)
	}
	c.items[item.ID] = cloneItem(item)
	return nil
}

func (c *memCatalog) GetItem(_ context.Context, id string) (*store.KnowledgeItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return nil, mnemoerr.Errorf(mnemoerr.CodeStoreItemNotFound, "item %s not found", id)
	}
	return cloneItem(item), nil
}

// sortedLocked returns every item in catalog order. Caller holds c.mu.
func (c *memCatalog) sortedLocked() []*store.KnowledgeItem {
	out := make([]*store.KnowledgeItem, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *memCatalog) ListItems(_ context.Context, pool store.Pool, opts store.ListOpts) ([]*store.KnowledgeItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*store.KnowledgeItem
	for _, item := range c.sortedLocked() {
		if item.Pool == pool {
			out = append(out, cloneItem(item))
		}
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (c *memCatalog) ListUntrained(_ context.Context, pool store.Pool) ([]*store.KnowledgeItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*store.KnowledgeItem
	for _, item := range c.sortedLocked() {
		if item.Pool == pool && !item.IsTrained {
			out = append(out, cloneItem(item))
		}
	}
	return out, nil
}

func (c *memCatalog) ListByIDs(_ context.Context, ids []string) ([]*store.KnowledgeItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []*store.KnowledgeItem
	for _, item := range c.sortedLocked() {
		if wanted[item.ID] {
			out = append(out, cloneItem(item))
		}
	}
	return out, nil
}

func (c *memCatalog) UpdateItemContent(_ context.Context, id, title, description, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return mnemoerr.Errorf(mnemoerr.CodeStoreItemNotFound, "item %s not found", id)
	}
	item.Title = title
	item.Description = description
	item.Content = content
	item.IsTrained = false
	item.TrainedAt = nil
	item.ChunksCreated = 0
	return nil
}

func (c *memCatalog) MarkTrained(_ context.Context, id string, chunkCount int) error {
	if chunkCount <= 0 {
		return mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "chunk count must be positive, got %d", chunkCount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return mnemoerr.Errorf(mnemoerr.CodeStoreItemNotFound, "item %s not found", id)
	}
	now := time.Now()
	item.IsTrained = true
	item.TrainedAt = &now
	item.ChunksCreated = chunkCount
	return nil
}

func (c *memCatalog) ResetTrained(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[id]
	if !ok {
		return mnemoerr.Errorf(mnemoerr.CodeStoreItemNotFound, "item %s not found", id)
	}
	item.IsTrained = false
	item.TrainedAt = nil
	item.ChunksCreated = 0
	return nil
}

func (c *memCatalog) DeleteItem(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return mnemoerr.Errorf(mnemoerr.CodeStoreItemNotFound, "item %s not found", id)
	}
	delete(c.items, id)
	return nil
}

func (c *memCatalog) CountByPool(_ context.Context, pool store.Pool) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, item := range c.items {
		if item.Pool == pool {
			n++
		}
	}
	return n, nil
}

func (c *memCatalog) CountTrained(_ context.Context, pool store.Pool) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, item := range c.items {
		if item.Pool == pool && item.IsTrained {
			n++
		}
	}
	return n, nil
}

func (c *memCatalog) Close() error { return nil }

// memVectors is an in-memory store.VectorStore. failAppend, when set, fails
// the next Append once.
type memVectors struct {
	mu         sync.Mutex
	dims       int
	records    map[string]store.VectorChunkRecord
	failAppend error
}

func newMemVectors(dims int) *memVectors {
	return &memVectors{dims: dims, records: make(map[string]store.VectorChunkRecord)}
}

func (v *memVectors) Append(_ context.Context, records []store.VectorChunkRecord) error {
	for _, r := range records {
		if err := r.Validate(v.dims); err != nil {
			return err
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.failAppend != nil {
		err := v.failAppend
		v.failAppend = nil
		return err
	}
	for _, r := range records {
		v.records[r.ID] = r
	}
	return nil
}

func (v *memVectors) DeleteByPrefix(_ context.Context, pool store.Pool, itemID string) (int64, error) {
	prefix := pool.RecordPrefix(itemID) + "-chunk-"
	v.mu.Lock()
	defer v.mu.Unlock()
	var n int64
	for id := range v.records {
		if strings.HasPrefix(id, prefix) {
			delete(v.records, id)
			n++
		}
	}
	return n, nil
}

func (v *memVectors) Search(_ context.Context, query []float32, k int, pool *store.Pool) ([]store.VectorResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []store.VectorResult
	for _, r := range v.records {
		if pool != nil && r.Pool != *pool {
			continue
		}
		var dist float64
		for i := range query {
			d := float64(query[i] - r.Vector[i])
			dist += d * d
		}
		out = append(out, store.VectorResult{
			ID:          r.ID,
			Score:       dist,
			Text:        r.Text,
			Title:       r.Title,
			Pool:        r.Pool,
			ChunkIndex:  r.ChunkIndex,
			TotalChunks: r.TotalChunks,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out, nil
}

func (v *memVectors) Count(_ context.Context) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return int64(len(v.records)), nil
}

func (v *memVectors) CountByPool(_ context.Context, pool store.Pool) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var n int64
	for _, r := range v.records {
		if r.Pool == pool {
			n++
		}
	}
	return n, nil
}

func (v *memVectors) Close() error { return nil }

func (v *memVectors) ids() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, 0, len(v.records))
	for id := range v.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (v *memVectors) record(id string) (store.VectorChunkRecord, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	r, ok := v.records[id]
	return r, ok
}

// scriptedEmbedder fails call n with errs[n] when set and otherwise returns
// deterministic vectors. afterCall, when set, runs after each call with the
// 0-based call index.
type scriptedEmbedder struct {
	mu        sync.Mutex
	dims      int
	calls     int
	batches   [][]string
	errs      []error
	afterCall func(n int)
}

func newScriptedEmbedder(dims int) *scriptedEmbedder {
	return &scriptedEmbedder{dims: dims}
}

func (e *scriptedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	call := e.calls
	e.calls++
	e.batches = append(e.batches, append([]string(nil), texts...))
	after := e.afterCall
	var scripted error
	if call < len(e.errs) {
		scripted = e.errs[call]
	}
	e.mu.Unlock()

	if after != nil {
		defer after(call)
	}
	if scripted != nil {
		return nil, scripted
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, e.dims)
		vec[0] = float32(utf8.RuneCountInString(text))
		out[i] = vec
	}
	return out, nil
}

func (e *scriptedEmbedder) Dimensions() int { return e.dims }
func (e *scriptedEmbedder) Name() string    { return "scripted" }
func (e *scriptedEmbedder) Close() error    { return nil }

func (e *scriptedEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// collect drains a progress stream into a slice.
func collect(ch <-chan train.ProgressEvent) []train.ProgressEvent {
	var out []train.ProgressEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func ofType(events []train.ProgressEvent, t train.EventType) []train.ProgressEvent {
	var out []train.ProgressEvent
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

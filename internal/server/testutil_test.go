// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package server_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/dedup"
	"github.com/mnemo-dev/mnemo/internal/distill"
	"github.com/mnemo-dev/mnemo/internal/server"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/train"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/mnemo-dev/mnemo/pkg/health"
)

var (
	fixedCreated = time.Date(2026, 1, 12, 9, 30, 0, 0, time.UTC)
	fixedTrained = time.Date(2026, 1, 12, 10, 0, 0, 0, time.UTC)
)

func libraryItem() *store.KnowledgeItem {
	trained := fixedTrained
	return &store.KnowledgeItem{
		ID:            "lib-1",
		Pool:          store.PoolLibrary,
		Title:         "Backup routine",
		Description:   "Nightly restic run",
		Content:       "The house server runs restic against the NAS every night at two.",
		Category:      train.DefaultCategory,
		IsTrained:     true,
		TrainedAt:     &trained,
		ChunksCreated: 2,
		CreatedAt:     fixedCreated,
		UpdatedAt:     fixedCreated,
	}
}

func chatItem() *store.KnowledgeItem {
	created := fixedCreated.Add(time.Hour)
	return &store.KnowledgeItem{
		ID:        "chat-1",
		Pool:      store.PoolChat,
		Title:     "Preferred editor",
		Content:   "Helix with the default theme, never an IDE.",
		Category:  train.CategoryChatLearning,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// mockItems implements server.ItemService, recording mutations.
type mockItems struct {
	mu      sync.Mutex
	created []train.NewItemParams
	deleted []string

	createErr error
	updateErr error
	deleteErr error
	stats     []store.PoolStats
	statsErr  error
}

func (m *mockItems) CreateItem(_ context.Context, p train.NewItemParams) (*store.KnowledgeItem, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.mu.Lock()
	m.created = append(m.created, p)
	n := len(m.created)
	m.mu.Unlock()
	return &store.KnowledgeItem{
		ID:          fmt.Sprintf("created-%d", n),
		Pool:        p.Pool,
		Title:       p.Title,
		Description: p.Description,
		Content:     p.Content,
		Category:    p.Category,
		CreatedAt:   fixedCreated,
		UpdatedAt:   fixedCreated,
	}, nil
}

func (m *mockItems) UpdateItemContent(_ context.Context, id, title, description, content string) (*store.KnowledgeItem, error) {
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &store.KnowledgeItem{
		ID:          id,
		Pool:        store.PoolLibrary,
		Title:       title,
		Description: description,
		Content:     content,
		Category:    train.DefaultCategory,
		CreatedAt:   fixedCreated,
		UpdatedAt:   fixedCreated.Add(2 * time.Hour),
	}, nil
}

func (m *mockItems) DeleteItem(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	m.deleted = append(m.deleted, id)
	m.mu.Unlock()
	return nil
}

func (m *mockItems) Stats(_ context.Context) ([]store.PoolStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

// mockCatalog implements server.CatalogReader over a fixed item slice.
type mockCatalog struct {
	items   []*store.KnowledgeItem
	getErr  error
	listErr error
}

func (m *mockCatalog) GetItem(_ context.Context, id string) (*store.KnowledgeItem, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, it := range m.items {
		if it.ID == id {
			return it, nil
		}
	}
	return nil, mnemoerr.Errorf(mnemoerr.CodeStoreItemNotFound, "item %q not found", id)
}

func (m *mockCatalog) ListItems(_ context.Context, pool store.Pool, opts store.ListOpts) ([]*store.KnowledgeItem, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*store.KnowledgeItem
	for _, it := range m.items {
		if it.Pool == pool {
			out = append(out, it)
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

func (m *mockCatalog) ListUntrained(_ context.Context, pool store.Pool) ([]*store.KnowledgeItem, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*store.KnowledgeItem
	for _, it := range m.items {
		if it.Pool == pool && !it.IsTrained {
			out = append(out, it)
		}
	}
	return out, nil
}

// scriptedTrainer implements server.Trainer, replaying fixed frames.
type scriptedTrainer struct {
	frames []train.ProgressEvent
	err    error
	busy   bool

	mu   sync.Mutex
	last *train.Request
}

func (t *scriptedTrainer) Train(_ context.Context, req train.Request) (<-chan train.ProgressEvent, error) {
	if t.err != nil {
		return nil, t.err
	}
	t.mu.Lock()
	r := req
	t.last = &r
	t.mu.Unlock()
	ch := make(chan train.ProgressEvent, len(t.frames)+1)
	for _, f := range t.frames {
		ch <- f
	}
	close(ch)
	return ch, nil
}

func (t *scriptedTrainer) Busy() bool { return t.busy }

func (t *scriptedTrainer) lastRequest() *train.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// mockSearcher implements server.Searcher.
type mockSearcher struct {
	results []store.VectorResult
	err     error

	mu        sync.Mutex
	lastQuery string
	lastK     int
	lastPool  *store.Pool
}

func (m *mockSearcher) Search(_ context.Context, query string, k int, pool *store.Pool) ([]store.VectorResult, error) {
	m.mu.Lock()
	m.lastQuery, m.lastK, m.lastPool = query, k, pool
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

// mockDeduper implements server.Deduper.
type mockDeduper struct {
	preview *dedup.Preview
	result  *dedup.Result
	err     error
}

func (m *mockDeduper) Preview(_ context.Context, pool store.Pool) (*dedup.Preview, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.preview, nil
}

func (m *mockDeduper) Remove(_ context.Context, pool store.Pool) (*dedup.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockDistiller implements server.Distiller.
type mockDistiller struct {
	facts []distill.Fact
	err   error
}

func (m *mockDistiller) Distill(_ context.Context, _ string) ([]distill.Fact, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.facts, nil
}

// stubHealth implements server.HealthReporter with a fixed snapshot.
type stubHealth struct {
	metrics health.Metrics
}

func (s stubHealth) Metrics() health.Metrics { return s.metrics }

// fixtures bundles one mock per service so tests can reach in and
// script or inspect any of them.
type fixtures struct {
	items     *mockItems
	catalog   *mockCatalog
	trainer   *scriptedTrainer
	searcher  *mockSearcher
	deduper   *mockDeduper
	distiller server.Distiller
	health    server.HealthReporter
}

func defaultFixtures() *fixtures {
	return &fixtures{
		items:    &mockItems{},
		catalog:  &mockCatalog{items: []*store.KnowledgeItem{libraryItem(), chatItem()}},
		trainer:  &scriptedTrainer{},
		searcher: &mockSearcher{},
		deduper:  &mockDeduper{},
	}
}

func (f *fixtures) services() *server.Services {
	return server.NewServicesForTest(server.ServicesConfig{
		Items:     f.items,
		Catalog:   f.catalog,
		Trainer:   f.trainer,
		Searcher:  f.searcher,
		Deduper:   f.deduper,
		Distiller: f.distiller,
		Health:    f.health,
	})
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func newTestServerWithData(t *testing.T) (*server.Server, *fixtures) {
	t.Helper()
	srv := newTestServer(t)
	f := defaultFixtures()
	srv.RegisterServices(f.services())
	return srv, f
}

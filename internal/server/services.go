// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package server

import (
	"context"

	"github.com/mnemo-dev/mnemo/internal/dedup"
	"github.com/mnemo-dev/mnemo/internal/distill"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/train"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/mnemo-dev/mnemo/pkg/health"
)

// ItemService provides knowledge-item mutations for REST handlers.
type ItemService interface {
	CreateItem(ctx context.Context, p train.NewItemParams) (*store.KnowledgeItem, error)
	UpdateItemContent(ctx context.Context, id, title, description, content string) (*store.KnowledgeItem, error)
	DeleteItem(ctx context.Context, id string) error
	Stats(ctx context.Context) ([]store.PoolStats, error)
}

// CatalogReader provides read-only item access for REST handlers.
type CatalogReader interface {
	GetItem(ctx context.Context, id string) (*store.KnowledgeItem, error)
	ListItems(ctx context.Context, pool store.Pool, opts store.ListOpts) ([]*store.KnowledgeItem, error)
	ListUntrained(ctx context.Context, pool store.Pool) ([]*store.KnowledgeItem, error)
}

// Trainer runs training batches and reports progress frame streams.
type Trainer interface {
	Train(ctx context.Context, req train.Request) (<-chan train.ProgressEvent, error)
	Busy() bool
}

// Searcher embeds a query and runs nearest-neighbor search over the vector
// table.
type Searcher interface {
	Search(ctx context.Context, query string, k int, pool *store.Pool) ([]store.VectorResult, error)
}

// Deduper scans a pool for duplicate items.
type Deduper interface {
	Preview(ctx context.Context, pool store.Pool) (*dedup.Preview, error)
	Remove(ctx context.Context, pool store.Pool) (*dedup.Result, error)
}

// Distiller extracts durable facts from a chat transcript.
type Distiller interface {
	Distill(ctx context.Context, transcript string) ([]distill.Fact, error)
}

// HealthReporter snapshots embedding provider health.
type HealthReporter interface {
	Metrics() health.Metrics
}

// ServicesConfig wires subsystem implementations into the REST layer. Each
// field is an interface so subsystems can be mocked in tests.
type ServicesConfig struct {
	Items    ItemService
	Catalog  CatalogReader
	Trainer  Trainer
	Searcher Searcher
	Deduper  Deduper

	// Distiller is optional; nil leaves POST /api/v1/learnings answering 503.
	Distiller Distiller

	// Health is optional; nil omits embedding health from /healthz.
	Health HealthReporter
}

// Services holds the dependencies injected into route handlers.
// Use NewServices so every required service is present.
type Services struct {
	items     ItemService
	catalog   CatalogReader
	trainer   Trainer
	searcher  Searcher
	deduper   Deduper
	distiller Distiller
	health    HealthReporter
}

// NewServices creates a Services instance, validating that every required
// service is provided.
func NewServices(cfg ServicesConfig) (*Services, error) {
	if cfg.Items == nil {
		return nil, mnemoerr.New(mnemoerr.CodeServerConfigInvalid, "item service is required")
	}
	if cfg.Catalog == nil {
		return nil, mnemoerr.New(mnemoerr.CodeServerConfigInvalid, "catalog reader is required")
	}
	if cfg.Trainer == nil {
		return nil, mnemoerr.New(mnemoerr.CodeServerConfigInvalid, "trainer is required")
	}
	if cfg.Searcher == nil {
		return nil, mnemoerr.New(mnemoerr.CodeServerConfigInvalid, "searcher is required")
	}
	if cfg.Deduper == nil {
		return nil, mnemoerr.New(mnemoerr.CodeServerConfigInvalid, "deduper is required")
	}
	return &Services{
		items:     cfg.Items,
		catalog:   cfg.Catalog,
		trainer:   cfg.Trainer,
		searcher:  cfg.Searcher,
		deduper:   cfg.Deduper,
		distiller: cfg.Distiller,
		health:    cfg.Health,
	}, nil
}

// Items returns the item mutation service.
func (s *Services) Items() ItemService {
	return s.items
}

// Catalog returns the read-only catalog access.
func (s *Services) Catalog() CatalogReader {
	return s.catalog
}

// Trainer returns the training service.
func (s *Services) Trainer() Trainer {
	return s.trainer
}

// Searcher returns the vector search service.
func (s *Services) Searcher() Searcher {
	return s.searcher
}

// Deduper returns the deduplication service.
func (s *Services) Deduper() Deduper {
	return s.deduper
}

// Distiller returns the optional transcript distiller. Nil when no Anthropic
// credentials are configured.
func (s *Services) Distiller() Distiller {
	return s.distiller
}

// Health returns the optional embedding health reporter.
func (s *Services) Health() HealthReporter {
	return s.health
}

// NewServicesForTest creates a Services instance for testing. It delegates
// to NewServices so tests hit the same validation as production code, and
// panics when a required service is missing.
func NewServicesForTest(cfg ServicesConfig) *Services {
	svc, err := NewServices(cfg)
	if err != nil {
		panic(err)
	}
	return svc
}

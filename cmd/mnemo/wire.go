// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mnemo-dev/mnemo/internal/chunk"
	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/dedup"
	"github.com/mnemo-dev/mnemo/internal/distill"
	"github.com/mnemo-dev/mnemo/internal/embed"
	"github.com/mnemo-dev/mnemo/internal/schedule"
	"github.com/mnemo-dev/mnemo/internal/server"
	"github.com/mnemo-dev/mnemo/internal/store"
	_ "github.com/mnemo-dev/mnemo/internal/store/sqlite" // register sqlite backend
	"github.com/mnemo-dev/mnemo/internal/train"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// Daemon holds all wired subsystems and manages their lifecycle.
type Daemon struct {
	Server    *server.Server
	Catalog   store.CatalogStore
	Vectors   store.VectorStore
	Embedder  embed.Embedder
	Trainer   *train.Service
	Deduper   *dedup.Engine
	Scheduler *schedule.Scheduler
}

// WireDaemon creates all subsystems and wires them together. The dataDir is
// the root directory for all persistent state.
func WireDaemon(_ context.Context, cfg *config.Config) (*Daemon, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "creating data directory: %w", err)
	}

	// 1. Catalog and vector stores (shared SQLite database).
	storeCfg := &store.StorageConfig{VectorDimensions: cfg.Embedding.Dimensions}
	catalog, vectors, err := store.NewStores(storeCfg, cfg.DataDir)
	if err != nil {
		return nil, mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "creating stores: %w", err)
	}

	// 2. Embedding provider. A missing API key is not fatal at startup: the
	// daemon runs with training and search disabled, and every training
	// request fails batch-scoped before touching an item.
	var (
		embedder embed.Embedder
		tracker  *embed.Tracker
	)
	if cfg.Embedding.APIKey != "" {
		embedder, tracker, err = embed.New(embed.Config{
			Provider:   cfg.Embedding.Provider,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			InputLimit: cfg.Embedding.InputLimit,
			Retry: embed.RetryConfig{
				MaxAttempts: cfg.Embedding.Retry.MaxAttempts,
				BaseDelay:   cfg.Embedding.Retry.BaseDelay,
				MaxDelay:    cfg.Embedding.Retry.MaxDelay,
			},
			Cache: embed.CacheConfig{
				Size: cfg.Embedding.Cache.Size,
				TTL:  cfg.Embedding.Cache.TTL,
			},
		})
		if err != nil {
			_ = catalog.Close()
			_ = vectors.Close()
			return nil, mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "creating embedding provider: %w", err)
		}
	} else {
		slog.Warn("no embedding API key configured — training and search are disabled until one is set")
	}

	// 3. Training service.
	trainer := train.NewService(train.Config{
		Catalog:  catalog,
		Vectors:  vectors,
		Embedder: embedder,
		Chunking: chunk.Config{
			MaxSize: cfg.Training.ChunkSize,
			Overlap: cfg.Training.ChunkOverlap,
		},
		PurgeOnEdit: cfg.Training.PurgeOnEdit,
	})

	// 4. Deduplication engine, deleting through the trainer's cascading
	// item-deletion path so removed duplicates never orphan vectors.
	deduper := dedup.NewEngine(catalog, trainer, nil)

	// 5. Transcript distiller (optional).
	var distiller server.Distiller
	if cfg.Distill.APIKey != "" {
		d, err := distill.New(distill.Config{
			APIKey: cfg.Distill.APIKey,
			Model:  cfg.Distill.Model,
		})
		if err != nil {
			_ = closeAll(embedder, catalog, vectors)
			return nil, mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "creating distiller: %w", err)
		}
		distiller = d
	}

	// 6. Maintenance scheduler.
	scheduler := schedule.New(nil)
	if cfg.Schedule.TrainInterval != "" {
		var reporter schedule.AvailabilityReporter
		if tracker != nil {
			reporter = tracker
		}
		job := schedule.NewAutoTrainJob(trainer, reporter, nil)
		if err := scheduler.Register(cfg.Schedule.TrainInterval, job); err != nil {
			_ = closeAll(embedder, catalog, vectors)
			return nil, mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "registering auto-train job: %w", err)
		}
	}

	// 7. HTTP server.
	srv, err := server.New(server.Config{
		ListenAddr: cfg.API.Addr(),
		AuthToken:  cfg.API.AuthToken,
	})
	if err != nil {
		_ = closeAll(embedder, catalog, vectors)
		return nil, mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	svcCfg := server.ServicesConfig{
		Items:     trainer,
		Catalog:   catalog,
		Trainer:   trainer,
		Searcher:  trainer,
		Deduper:   deduper,
		Distiller: distiller,
	}
	if tracker != nil {
		svcCfg.Health = tracker
	}
	services, err := server.NewServices(svcCfg)
	if err != nil {
		_ = closeAll(embedder, catalog, vectors)
		return nil, mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "creating services: %w", err)
	}
	srv.RegisterServices(services)

	return &Daemon{
		Server:    srv,
		Catalog:   catalog,
		Vectors:   vectors,
		Embedder:  embedder,
		Trainer:   trainer,
		Deduper:   deduper,
		Scheduler: scheduler,
	}, nil
}

// Start runs the scheduler and the HTTP server, blocking until the context
// is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.Scheduler.Start(ctx)
	defer d.Scheduler.Stop()
	return d.Server.Start(ctx)
}

// Close releases all resources held by the daemon.
func (d *Daemon) Close() error {
	return closeAll(d.Server, d.Embedder, d.Vectors, d.Catalog)
}

type closer interface{ Close() error }

func closeAll(closers ...closer) error {
	var errs []error
	for _, c := range closers {
		if c != nil {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

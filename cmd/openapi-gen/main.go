// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mnemo-dev/mnemo/internal/dedup"
	"github.com/mnemo-dev/mnemo/internal/server"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/train"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec creates a server with all routes registered and extracts the
// OpenAPI spec that huma generates from the Go type annotations.
func generateSpec() ([]byte, error) {
	// Use no-op service stubs so all routes are registered for schema
	// discovery. Handlers are never invoked during spec generation.
	svc := server.NewServicesForTest(server.ServicesConfig{
		Items:    &stubItems{},
		Catalog:  &stubCatalog{},
		Trainer:  &stubTrainer{},
		Searcher: &stubSearcher{},
		Deduper:  &stubDeduper{},
	})

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	if err != nil {
		return nil, mnemoerr.Errorf(mnemoerr.CodeCLISetupFailure, "creating server: %w", err)
	}
	srv.RegisterServices(svc)

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// No-op service stubs for spec generation. Methods are never called.

type stubItems struct{}

func (s *stubItems) CreateItem(context.Context, train.NewItemParams) (*store.KnowledgeItem, error) {
	return nil, nil
}

func (s *stubItems) UpdateItemContent(_ context.Context, _, _, _, _ string) (*store.KnowledgeItem, error) {
	return nil, nil
}
func (s *stubItems) DeleteItem(context.Context, string) error         { return nil }
func (s *stubItems) Stats(context.Context) ([]store.PoolStats, error) { return nil, nil }

type stubCatalog struct{}

func (s *stubCatalog) GetItem(context.Context, string) (*store.KnowledgeItem, error) {
	return nil, nil
}

func (s *stubCatalog) ListItems(context.Context, store.Pool, store.ListOpts) ([]*store.KnowledgeItem, error) {
	return nil, nil
}

func (s *stubCatalog) ListUntrained(context.Context, store.Pool) ([]*store.KnowledgeItem, error) {
	return nil, nil
}

type stubTrainer struct{}

func (s *stubTrainer) Train(context.Context, train.Request) (<-chan train.ProgressEvent, error) {
	return nil, nil
}
func (s *stubTrainer) Busy() bool { return false }

type stubSearcher struct{}

func (s *stubSearcher) Search(context.Context, string, int, *store.Pool) ([]store.VectorResult, error) {
	return nil, nil
}

type stubDeduper struct{}

func (s *stubDeduper) Preview(context.Context, store.Pool) (*dedup.Preview, error) { return nil, nil }
func (s *stubDeduper) Remove(context.Context, store.Pool) (*dedup.Result, error)   { return nil, nil }

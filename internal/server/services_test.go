// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package server_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/server"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func validServicesConfig() server.ServicesConfig {
	return server.ServicesConfig{
		Items:    &mockItems{},
		Catalog:  &mockCatalog{},
		Trainer:  &scriptedTrainer{},
		Searcher: &mockSearcher{},
		Deduper:  &mockDeduper{},
	}
}

func TestNewServices(t *testing.T) {
	svc, err := server.NewServices(validServicesConfig())
	require.NoError(t, err)

	assert.NotNil(t, svc.Items())
	assert.NotNil(t, svc.Catalog())
	assert.NotNil(t, svc.Trainer())
	assert.NotNil(t, svc.Searcher())
	assert.NotNil(t, svc.Deduper())
	// Optional services stay nil when not provided.
	assert.Nil(t, svc.Distiller())
	assert.Nil(t, svc.Health())
}

func TestNewServices_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*server.ServicesConfig)
		wantMsg string
	}{
		{
			name:    "items",
			mutate:  func(c *server.ServicesConfig) { c.Items = nil },
			wantMsg: "item service is required",
		},
		{
			name:    "catalog",
			mutate:  func(c *server.ServicesConfig) { c.Catalog = nil },
			wantMsg: "catalog reader is required",
		},
		{
			name:    "trainer",
			mutate:  func(c *server.ServicesConfig) { c.Trainer = nil },
			wantMsg: "trainer is required",
		},
		{
			name:    "searcher",
			mutate:  func(c *server.ServicesConfig) { c.Searcher = nil },
			wantMsg: "searcher is required",
		},
		{
			name:    "deduper",
			mutate:  func(c *server.ServicesConfig) { c.Deduper = nil },
			wantMsg: "deduper is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validServicesConfig()
			tt.mutate(&cfg)

			_, err := server.NewServices(cfg)
			require.Error(t, err)
			assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeServerConfigInvalid))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestNewServices_OptionalServices(t *testing.T) {
	cfg := validServicesConfig()
	cfg.Distiller = &mockDistiller{}
	cfg.Health = stubHealth{}

	svc, err := server.NewServices(cfg)
	require.NoError(t, err)
	assert.NotNil(t, svc.Distiller())
	assert.NotNil(t, svc.Health())
}

func TestNewServicesForTest_PanicsOnMissing(t *testing.T) {
	cfg := validServicesConfig()
	cfg.Trainer = nil

	require.Panics(t, func() {
		server.NewServicesForTest(cfg)
	})
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package store

import (
	"sync"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// defaultVectorDimensions is the default embedding dimension (matches OpenAI text-embedding-3-small).
const defaultVectorDimensions = 1536

// Factory creates the catalog and vector stores for a data directory.
// Implementations may share an underlying connection between the two; Close
// must stay safe to call on both.
type Factory func(dataDir string, vectorDims int) (CatalogStore, VectorStore, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a factory for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewStores creates the catalog and vector stores for a data directory.
func NewStores(cfg *StorageConfig, dataDir string) (CatalogStore, VectorStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, nil, mnemoerr.Errorf(mnemoerr.CodeStoreBackendUnsupported,
			"unsupported storage backend: %q", backend)
	}

	dims := defaultVectorDimensions
	if cfg.VectorDimensions > 0 {
		dims = cfg.VectorDimensions
	}

	return factory(dataDir, dims)
}

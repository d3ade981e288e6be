// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package sqlite

import (
	"path/filepath"

	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", newStores)
}

func newStores(dataDir string, vectorDims int) (store.CatalogStore, store.VectorStore, error) {
	catalog, err := NewCatalogStore(filepath.Join(dataDir, "catalog.db"))
	if err != nil {
		return nil, nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreDatabaseFailure, "creating catalog store")
	}

	vectors, err := NewVectorStore(filepath.Join(dataDir, "vectors.db"), vectorDims)
	if err != nil {
		_ = catalog.Close()
		return nil, nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "creating vector store")
	}

	return catalog, vectors, nil
}

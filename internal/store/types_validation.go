// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package store

import (
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// Validate checks that the KnowledgeItem has all required fields set correctly.
func (i KnowledgeItem) Validate() error {
	if i.ID == "" {
		return mnemoerr.New(mnemoerr.CodeStoreInvalidInput, "knowledge item: ID is required")
	}
	if !i.Pool.Valid() {
		return mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "knowledge item: invalid pool %q", i.Pool)
	}
	if i.Title == "" {
		return mnemoerr.New(mnemoerr.CodeStoreInvalidInput, "knowledge item: Title is required")
	}
	if i.Content == "" {
		return mnemoerr.New(mnemoerr.CodeStoreInvalidInput, "knowledge item: Content is required")
	}
	if i.CreatedAt.IsZero() {
		return mnemoerr.New(mnemoerr.CodeStoreInvalidInput, "knowledge item: CreatedAt is required")
	}
	// An untrained item must not carry trained-state leftovers; the retrain
	// invariant depends on the fields moving together.
	if !i.IsTrained && (i.TrainedAt != nil || i.ChunksCreated != 0) {
		return mnemoerr.New(mnemoerr.CodeStoreInvalidInput, "knowledge item: TrainedAt and ChunksCreated must be unset while untrained")
	}
	if i.IsTrained && i.ChunksCreated <= 0 {
		return mnemoerr.New(mnemoerr.CodeStoreInvalidInput, "knowledge item: trained item requires ChunksCreated > 0")
	}
	return nil
}

// Validate checks that the VectorChunkRecord is internally consistent and
// carries a vector of the expected dimensionality. dims <= 0 skips the
// dimension check.
func (r VectorChunkRecord) Validate(dims int) error {
	if r.ID == "" {
		return mnemoerr.New(mnemoerr.CodeStoreInvalidInput, "vector record: ID is required")
	}
	if r.Text == "" {
		return mnemoerr.New(mnemoerr.CodeStoreInvalidInput, "vector record: Text is required")
	}
	if !r.Pool.Valid() {
		return mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "vector record: invalid pool %q", r.Pool)
	}
	if len(r.Vector) == 0 {
		return mnemoerr.New(mnemoerr.CodeStoreInvalidInput, "vector record: Vector is required")
	}
	if dims > 0 && len(r.Vector) != dims {
		return mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "vector record: expected %d dimensions, got %d", dims, len(r.Vector))
	}
	if r.ChunkIndex < 0 || r.TotalChunks <= 0 || r.ChunkIndex >= r.TotalChunks {
		return mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "vector record: chunk index %d out of range for %d chunks", r.ChunkIndex, r.TotalChunks)
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package store_test

import (
	"testing"
	"time"

	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePool(t *testing.T) {
	tests := []struct {
		in      string
		want    store.Pool
		wantErr bool
	}{
		{"library", store.PoolLibrary, false},
		{"chat", store.PoolChat, false},
		{"", "", true},
		{"Library", "", true},
		{"brain", "", true},
	}

	for _, tt := range tests {
		t.Run("in="+tt.in, func(t *testing.T) {
			got, err := store.ParsePool(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, store.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPoolValid(t *testing.T) {
	assert.True(t, store.PoolLibrary.Valid())
	assert.True(t, store.PoolChat.Valid())
	assert.False(t, store.Pool("").Valid())
	assert.False(t, store.Pool("brain").Valid())
}

func TestPoolsCoversEveryVariant(t *testing.T) {
	pools := store.Pools()
	require.Len(t, pools, 2)
	assert.Equal(t, store.PoolLibrary, pools[0])
	assert.Equal(t, store.PoolChat, pools[1])
	for _, p := range pools {
		assert.True(t, p.Valid())
	}
}

func TestRecordPrefixPerPool(t *testing.T) {
	assert.Equal(t, "item-1", store.PoolLibrary.RecordPrefix("item-1"))
	assert.Equal(t, "chat-item-1", store.PoolChat.RecordPrefix("item-1"))
}

func TestChunkRecordID(t *testing.T) {
	assert.Equal(t, "item-1-chunk-0", store.ChunkRecordID(store.PoolLibrary, "item-1", 0))
	assert.Equal(t, "item-1-chunk-7", store.ChunkRecordID(store.PoolLibrary, "item-1", 7))
	assert.Equal(t, "chat-item-1-chunk-0", store.ChunkRecordID(store.PoolChat, "item-1", 0))
}

func TestChunkDeletePattern(t *testing.T) {
	assert.Equal(t, "item-1-chunk-%", store.ChunkDeletePattern(store.PoolLibrary, "item-1"))
	assert.Equal(t, "chat-item-1-chunk-%", store.ChunkDeletePattern(store.PoolChat, "item-1"))
}

func TestChunkDeletePatternMatchesRecordIDs(t *testing.T) {
	// The delete pattern must cover exactly the ids ChunkRecordID produces.
	for _, pool := range store.Pools() {
		pattern := store.ChunkDeletePattern(pool, "i")
		prefix := pattern[:len(pattern)-1] // strip the trailing %
		for idx := 0; idx < 3; idx++ {
			id := store.ChunkRecordID(pool, "i", idx)
			assert.Contains(t, id, prefix)
		}
	}
}

func validItem() store.KnowledgeItem {
	return store.KnowledgeItem{
		ID:        "item-1",
		Pool:      store.PoolLibrary,
		Title:     "Raft in practice",
		Content:   "Leader election is triggered by heartbeat timeouts.",
		Category:  "manual",
		CreatedAt: time.Now(),
	}
}

func TestKnowledgeItemValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validItem().Validate())
	})

	t.Run("missing id", func(t *testing.T) {
		it := validItem()
		it.ID = ""
		assert.Error(t, it.Validate())
	})

	t.Run("invalid pool", func(t *testing.T) {
		it := validItem()
		it.Pool = "brain"
		assert.Error(t, it.Validate())
	})

	t.Run("missing title", func(t *testing.T) {
		it := validItem()
		it.Title = ""
		assert.Error(t, it.Validate())
	})

	t.Run("missing content", func(t *testing.T) {
		it := validItem()
		it.Content = ""
		assert.Error(t, it.Validate())
	})

	t.Run("untrained with leftover trained_at", func(t *testing.T) {
		it := validItem()
		now := time.Now()
		it.TrainedAt = &now
		assert.Error(t, it.Validate())
	})

	t.Run("untrained with leftover chunk count", func(t *testing.T) {
		it := validItem()
		it.ChunksCreated = 3
		assert.Error(t, it.Validate())
	})

	t.Run("trained without chunk count", func(t *testing.T) {
		it := validItem()
		now := time.Now()
		it.IsTrained = true
		it.TrainedAt = &now
		assert.Error(t, it.Validate())
	})

	t.Run("trained with chunk count", func(t *testing.T) {
		it := validItem()
		now := time.Now()
		it.IsTrained = true
		it.TrainedAt = &now
		it.ChunksCreated = 3
		assert.NoError(t, it.Validate())
	})
}

func validRecord() store.VectorChunkRecord {
	return store.VectorChunkRecord{
		ID:          "item-1-chunk-0",
		Text:        "Raft in practice\n\nLeader election is triggered by heartbeat timeouts.",
		Vector:      []float32{0.1, 0.2, 0.3},
		Title:       "Raft in practice",
		Pool:        store.PoolLibrary,
		ChunkIndex:  0,
		TotalChunks: 1,
		CrawledAt:   time.Now(),
	}
}

func TestVectorChunkRecordValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validRecord().Validate(3))
	})

	t.Run("dims not enforced when zero", func(t *testing.T) {
		assert.NoError(t, validRecord().Validate(0))
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		assert.Error(t, validRecord().Validate(1536))
	})

	t.Run("missing id", func(t *testing.T) {
		r := validRecord()
		r.ID = ""
		assert.Error(t, r.Validate(3))
	})

	t.Run("missing text", func(t *testing.T) {
		r := validRecord()
		r.Text = ""
		assert.Error(t, r.Validate(3))
	})

	t.Run("empty vector", func(t *testing.T) {
		r := validRecord()
		r.Vector = nil
		assert.Error(t, r.Validate(3))
	})

	t.Run("invalid pool", func(t *testing.T) {
		r := validRecord()
		r.Pool = "unknown"
		assert.Error(t, r.Validate(3))
	})

	t.Run("chunk index out of range", func(t *testing.T) {
		r := validRecord()
		r.ChunkIndex = 1
		r.TotalChunks = 1
		assert.Error(t, r.Validate(3))
	})

	t.Run("negative chunk index", func(t *testing.T) {
		r := validRecord()
		r.ChunkIndex = -1
		assert.Error(t, r.Validate(3))
	})
}

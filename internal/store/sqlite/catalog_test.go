// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/store/sqlite"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestItem(id string, pool store.Pool, createdAt time.Time) *store.KnowledgeItem {
	return &store.KnowledgeItem{
		ID:        id,
		Pool:      pool,
		Title:     "Title " + id,
		Content:   "Content for " + id,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestCatalogStore_CRUD(t *testing.T) {
	ctx := context.Background()
	cs, err := sqlite.NewCatalogStore(testDBPath(t, "catalog"))
	require.NoError(t, err)
	defer cs.Close()

	now := time.Now().Truncate(time.Millisecond)
	item := newTestItem("item-1", store.PoolLibrary, now)
	item.Description = "A short description"
	item.Category = "reference"

	// Create
	err = cs.CreateItem(ctx, item)
	require.NoError(t, err)

	// Get
	got, err := cs.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, store.PoolLibrary, got.Pool)
	assert.Equal(t, item.Title, got.Title)
	assert.Equal(t, item.Description, got.Description)
	assert.Equal(t, item.Content, got.Content)
	assert.Equal(t, item.Category, got.Category)
	assert.False(t, got.IsTrained)
	assert.Nil(t, got.TrainedAt)
	assert.Zero(t, got.ChunksCreated)
	assert.True(t, got.CreatedAt.Equal(now))

	// Update content
	err = cs.UpdateItemContent(ctx, "item-1", "New title", "New description", "New content")
	require.NoError(t, err)

	got, err = cs.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "New title", got.Title)
	assert.Equal(t, "New description", got.Description)
	assert.Equal(t, "New content", got.Content)

	// Delete
	err = cs.DeleteItem(ctx, "item-1")
	require.NoError(t, err)

	_, err = cs.GetItem(ctx, "item-1")
	assert.True(t, mnemoerr.IsNotFound(err))
}

func TestCatalogStore_CreateConflict(t *testing.T) {
	ctx := context.Background()
	cs, err := sqlite.NewCatalogStore(testDBPath(t, "catalog-conflict"))
	require.NoError(t, err)
	defer cs.Close()

	item := newTestItem("item-1", store.PoolLibrary, time.Now())
	require.NoError(t, cs.CreateItem(ctx, item))

	err = cs.CreateItem(ctx, item)
	assert.True(t, mnemoerr.IsConflict(err))
}

func TestCatalogStore_ListItemsOldestFirst(t *testing.T) {
	ctx := context.Background()
	cs, err := sqlite.NewCatalogStore(testDBPath(t, "catalog-list"))
	require.NoError(t, err)
	defer cs.Close()

	base := time.Now().Add(-time.Hour)
	// Insert out of chronological order to prove ordering comes from
	// created_at, not insert order.
	for _, i := range []int{2, 0, 1} {
		item := newTestItem(fmt.Sprintf("item-%d", i), store.PoolLibrary, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, cs.CreateItem(ctx, item))
	}

	items, err := cs.ListItems(ctx, store.PoolLibrary, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "item-0", items[0].ID)
	assert.Equal(t, "item-1", items[1].ID)
	assert.Equal(t, "item-2", items[2].ID)

	// Limit and offset
	items, err = cs.ListItems(ctx, store.PoolLibrary, store.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "item-1", items[0].ID)
}

func TestCatalogStore_PoolIsolation(t *testing.T) {
	ctx := context.Background()
	cs, err := sqlite.NewCatalogStore(testDBPath(t, "catalog-pools"))
	require.NoError(t, err)
	defer cs.Close()

	now := time.Now()
	require.NoError(t, cs.CreateItem(ctx, newTestItem("lib-1", store.PoolLibrary, now)))
	require.NoError(t, cs.CreateItem(ctx, newTestItem("chat-1", store.PoolChat, now)))

	libItems, err := cs.ListItems(ctx, store.PoolLibrary, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, libItems, 1)
	assert.Equal(t, "lib-1", libItems[0].ID)

	chatItems, err := cs.ListItems(ctx, store.PoolChat, store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, chatItems, 1)
	assert.Equal(t, "chat-1", chatItems[0].ID)

	libCount, err := cs.CountByPool(ctx, store.PoolLibrary)
	require.NoError(t, err)
	assert.Equal(t, int64(1), libCount)
}

func TestCatalogStore_TrainingLifecycle(t *testing.T) {
	ctx := context.Background()
	cs, err := sqlite.NewCatalogStore(testDBPath(t, "catalog-training"))
	require.NoError(t, err)
	defer cs.Close()

	require.NoError(t, cs.CreateItem(ctx, newTestItem("item-1", store.PoolLibrary, time.Now())))

	// Fresh items show up as untrained.
	untrained, err := cs.ListUntrained(ctx, store.PoolLibrary)
	require.NoError(t, err)
	require.Len(t, untrained, 1)

	// Mark trained
	err = cs.MarkTrained(ctx, "item-1", 7)
	require.NoError(t, err)

	got, err := cs.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.True(t, got.IsTrained)
	require.NotNil(t, got.TrainedAt)
	assert.WithinDuration(t, time.Now(), *got.TrainedAt, 5*time.Second)
	assert.Equal(t, 7, got.ChunksCreated)

	untrained, err = cs.ListUntrained(ctx, store.PoolLibrary)
	require.NoError(t, err)
	assert.Empty(t, untrained)

	trained, err := cs.CountTrained(ctx, store.PoolLibrary)
	require.NoError(t, err)
	assert.Equal(t, int64(1), trained)

	// Reset back to untrained
	err = cs.ResetTrained(ctx, "item-1")
	require.NoError(t, err)

	got, err = cs.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.False(t, got.IsTrained)
	assert.Nil(t, got.TrainedAt)
	assert.Zero(t, got.ChunksCreated)
}

func TestCatalogStore_MarkTrainedValidation(t *testing.T) {
	ctx := context.Background()
	cs, err := sqlite.NewCatalogStore(testDBPath(t, "catalog-marktrained"))
	require.NoError(t, err)
	defer cs.Close()

	// Zero chunk count is rejected before touching the row.
	err = cs.MarkTrained(ctx, "item-1", 0)
	assert.True(t, mnemoerr.IsInvalidInput(err))

	// Missing item
	err = cs.MarkTrained(ctx, "item-1", 3)
	assert.True(t, mnemoerr.IsNotFound(err))
}

func TestCatalogStore_UpdateContentResetsTraining(t *testing.T) {
	ctx := context.Background()
	cs, err := sqlite.NewCatalogStore(testDBPath(t, "catalog-edit"))
	require.NoError(t, err)
	defer cs.Close()

	require.NoError(t, cs.CreateItem(ctx, newTestItem("item-1", store.PoolLibrary, time.Now())))
	require.NoError(t, cs.MarkTrained(ctx, "item-1", 4))

	// Editing the content invalidates prior training in the same statement.
	err = cs.UpdateItemContent(ctx, "item-1", "Edited title", "", "Edited content")
	require.NoError(t, err)

	got, err := cs.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.False(t, got.IsTrained)
	assert.Nil(t, got.TrainedAt)
	assert.Zero(t, got.ChunksCreated)
}

func TestCatalogStore_ListByIDs(t *testing.T) {
	ctx := context.Background()
	cs, err := sqlite.NewCatalogStore(testDBPath(t, "catalog-byids"))
	require.NoError(t, err)
	defer cs.Close()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		item := newTestItem(fmt.Sprintf("item-%d", i), store.PoolLibrary, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, cs.CreateItem(ctx, item))
	}

	// Missing ids are simply absent, not errors; order follows creation time.
	items, err := cs.ListByIDs(ctx, []string{"item-2", "item-0", "no-such-item"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "item-0", items[0].ID)
	assert.Equal(t, "item-2", items[1].ID)

	items, err = cs.ListByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCatalogStore_NotFound(t *testing.T) {
	ctx := context.Background()
	cs, err := sqlite.NewCatalogStore(testDBPath(t, "catalog-noent"))
	require.NoError(t, err)
	defer cs.Close()

	_, err = cs.GetItem(ctx, "nonexistent")
	assert.True(t, mnemoerr.IsNotFound(err))

	err = cs.ResetTrained(ctx, "nonexistent")
	assert.True(t, mnemoerr.IsNotFound(err))

	err = cs.DeleteItem(ctx, "nonexistent")
	assert.True(t, mnemoerr.IsNotFound(err))

	err = cs.UpdateItemContent(ctx, "nonexistent", "t", "", "c")
	assert.True(t, mnemoerr.IsNotFound(err))
}

func TestCatalogStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dbPath := testDBPath(t, "catalog-reopen")

	cs, err := sqlite.NewCatalogStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, cs.CreateItem(ctx, newTestItem("item-1", store.PoolChat, time.Now())))
	require.NoError(t, cs.Close())

	reopened, err := sqlite.NewCatalogStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, store.PoolChat, got.Pool)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// Compile-time interface check.
var _ store.CatalogStore = (*CatalogStore)(nil)

// CatalogStore implements store.CatalogStore backed by SQLite. Both knowledge
// pools share the knowledge_items table; every pool-scoped query filters on
// the pool column.
type CatalogStore struct {
	db *sql.DB
}

// NewCatalogStore opens (or creates) a SQLite database at dbPath and
// initialises the knowledge_items table.
func NewCatalogStore(dbPath string) (*CatalogStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreDatabaseFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreDatabaseFailure, "pinging sqlite db")
	}

	if err := migrateCatalog(db); err != nil {
		_ = db.Close()
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreDatabaseFailure, "migrating catalog tables")
	}

	return &CatalogStore{db: db}, nil
}

func migrateCatalog(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS knowledge_items (
	id             TEXT PRIMARY KEY,
	pool           TEXT NOT NULL,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	content        TEXT NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	is_trained     INTEGER NOT NULL DEFAULT 0,
	trained_at     TEXT NOT NULL DEFAULT '',
	chunks_created INTEGER NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_pool_created ON knowledge_items(pool, created_at);
CREATE INDEX IF NOT EXISTS idx_items_pool_trained ON knowledge_items(pool, is_trained);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (c *CatalogStore) Close() error {
	return c.db.Close()
}

const itemColumns = `id, pool, title, description, content, category, is_trained, trained_at, chunks_created, created_at, updated_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(sc rowScanner) (*store.KnowledgeItem, error) {
	var (
		item      store.KnowledgeItem
		pool      string
		isTrained int
		trainedAt string
		createdAt string
		updatedAt string
	)

	if err := sc.Scan(
		&item.ID,
		&pool,
		&item.Title,
		&item.Description,
		&item.Content,
		&item.Category,
		&isTrained,
		&trainedAt,
		&item.ChunksCreated,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	item.Pool = store.Pool(pool)
	item.IsTrained = isTrained != 0
	if trainedAt != "" {
		t := parseTime(trainedAt)
		item.TrainedAt = &t
	}
	item.CreatedAt = parseTime(createdAt)
	item.UpdatedAt = parseTime(updatedAt)

	return &item, nil
}

func (c *CatalogStore) CreateItem(ctx context.Context, item *store.KnowledgeItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	const q = `INSERT INTO knowledge_items (` + itemColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	trainedAt := ""
	if item.TrainedAt != nil {
		trainedAt = formatTime(*item.TrainedAt)
	}

	_, err := c.db.ExecContext(ctx, q,
		item.ID,
		string(item.Pool),
		item.Title,
		item.Description,
		item.Content,
		item.Category,
		boolToInt(item.IsTrained),
		trainedAt,
		item.ChunksCreated,
		formatTime(item.CreatedAt),
		formatTime(item.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return mnemoerr.Wrapf(err, mnemoerr.CodeStoreItemInsertConflict, "knowledge item %s already exists", item.ID)
		}
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "creating knowledge item %s", item.ID)
	}
	return nil
}

func (c *CatalogStore) GetItem(ctx context.Context, id string) (*store.KnowledgeItem, error) {
	const q = `SELECT ` + itemColumns + ` FROM knowledge_items WHERE id = ?`

	item, err := scanItem(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mnemoerr.Errorf(mnemoerr.CodeStoreItemNotFound, "knowledge item %s not found", id)
	}
	if err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "getting knowledge item %s", id)
	}
	return item, nil
}

func (c *CatalogStore) ListItems(ctx context.Context, pool store.Pool, opts store.ListOpts) ([]*store.KnowledgeItem, error) {
	if !pool.Valid() {
		return nil, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "listing items: invalid pool %q", pool)
	}

	// Oldest first with id as a deterministic tiebreak; dedup relies on this
	// order for its earliest-created-wins rule. SQLite treats LIMIT -1 as
	// unbounded, which is what Limit <= 0 means to callers.
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}

	const q = `SELECT ` + itemColumns + ` FROM knowledge_items
WHERE pool = ? ORDER BY created_at ASC, id ASC LIMIT ? OFFSET ?`

	rows, err := c.db.QueryContext(ctx, q, string(pool), limit, opts.Offset)
	if err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "listing items in pool %s", pool)
	}
	defer func() { _ = rows.Close() }()

	return collectItems(rows)
}

func (c *CatalogStore) ListUntrained(ctx context.Context, pool store.Pool) ([]*store.KnowledgeItem, error) {
	if !pool.Valid() {
		return nil, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "listing untrained items: invalid pool %q", pool)
	}

	const q = `SELECT ` + itemColumns + ` FROM knowledge_items
WHERE pool = ? AND is_trained = 0 ORDER BY created_at ASC, id ASC`

	rows, err := c.db.QueryContext(ctx, q, string(pool))
	if err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "listing untrained items in pool %s", pool)
	}
	defer func() { _ = rows.Close() }()

	return collectItems(rows)
}

func (c *CatalogStore) ListByIDs(ctx context.Context, ids []string) ([]*store.KnowledgeItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	q := `SELECT ` + itemColumns + ` FROM knowledge_items
WHERE id IN (` + placeholders + `) ORDER BY created_at ASC, id ASC`

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreDatabaseFailure, "listing items by id")
	}
	defer func() { _ = rows.Close() }()

	return collectItems(rows)
}

func collectItems(rows *sql.Rows) ([]*store.KnowledgeItem, error) {
	var items []*store.KnowledgeItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreDatabaseFailure, "scanning item row")
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreDatabaseFailure, "iterating item rows")
	}
	return items, nil
}

// UpdateItemContent replaces the textual payload and clears training state in
// one statement, so a crash can never leave an edited item looking trained.
func (c *CatalogStore) UpdateItemContent(ctx context.Context, id, title, description, content string) error {
	if title == "" || content == "" {
		return mnemoerr.New(mnemoerr.CodeStoreInvalidInput, "updating item: title and content are required")
	}

	const q = `UPDATE knowledge_items
SET title = ?, description = ?, content = ?, is_trained = 0, trained_at = '', chunks_created = 0, updated_at = ?
WHERE id = ?`

	result, err := c.db.ExecContext(ctx, q, title, description, content, formatTime(time.Now()), id)
	if err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "updating knowledge item %s", id)
	}
	return requireRow(result, id)
}

func (c *CatalogStore) MarkTrained(ctx context.Context, id string, chunkCount int) error {
	if chunkCount <= 0 {
		return mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "marking item %s trained: chunk count must be > 0, got %d", id, chunkCount)
	}

	const q = `UPDATE knowledge_items
SET is_trained = 1, trained_at = ?, chunks_created = ?, updated_at = ?
WHERE id = ?`

	now := formatTime(time.Now())
	result, err := c.db.ExecContext(ctx, q, now, chunkCount, now, id)
	if err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "marking knowledge item %s trained", id)
	}
	return requireRow(result, id)
}

func (c *CatalogStore) ResetTrained(ctx context.Context, id string) error {
	const q = `UPDATE knowledge_items
SET is_trained = 0, trained_at = '', chunks_created = 0, updated_at = ?
WHERE id = ?`

	result, err := c.db.ExecContext(ctx, q, formatTime(time.Now()), id)
	if err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "resetting knowledge item %s", id)
	}
	return requireRow(result, id)
}

func (c *CatalogStore) DeleteItem(ctx context.Context, id string) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM knowledge_items WHERE id = ?`, id)
	if err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "deleting knowledge item %s", id)
	}
	return requireRow(result, id)
}

func (c *CatalogStore) CountByPool(ctx context.Context, pool store.Pool) (int64, error) {
	if !pool.Valid() {
		return 0, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "counting items: invalid pool %q", pool)
	}

	var n int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_items WHERE pool = ?`, string(pool)).Scan(&n)
	if err != nil {
		return 0, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "counting items in pool %s", pool)
	}
	return n, nil
}

func (c *CatalogStore) CountTrained(ctx context.Context, pool store.Pool) (int64, error) {
	if !pool.Valid() {
		return 0, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "counting trained items: invalid pool %q", pool)
	}

	var n int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_items WHERE pool = ? AND is_trained = 1`, string(pool)).Scan(&n)
	if err != nil {
		return 0, mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "counting trained items in pool %s", pool)
	}
	return n, nil
}

// requireRow converts a zero-row update/delete into a not-found error.
func requireRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeStoreDatabaseFailure, "checking rows affected for item %s", id)
	}
	if rows == 0 {
		return mnemoerr.Errorf(mnemoerr.CodeStoreItemNotFound, "knowledge item %s not found", id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.VectorStore = (*VectorStore)(nil)

// VectorStore implements store.VectorStore backed by SQLite with sqlite-vec.
// Embeddings live in the knowledge_vectors vec0 virtual table; chunk text and
// display metadata live in the companion knowledge_chunks table, joined by id.
//
// Neither table exists until the first Append. Reads against a store whose
// tables were never created report empty results, not errors.
type VectorStore struct {
	db   *sql.DB
	dims int

	// mu serialises writes and guards ready. SQLite allows a single writer;
	// funneling Append and DeleteByPrefix through one mutex keeps training
	// and deduplication from tripping over each other.
	mu    sync.Mutex
	ready bool
}

// NewVectorStore opens (or creates) a SQLite database at dbPath for chunk
// storage. Table creation is deferred until the first append.
func NewVectorStore(dbPath string, dims int) (*VectorStore, error) {
	if dims <= 0 {
		return nil, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "vector store requires positive dimensions, got %d", dims)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "opening vector db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "pinging vector db")
	}

	return &VectorStore{db: db, dims: dims}, nil
}

// Close closes the underlying database connection.
func (v *VectorStore) Close() error {
	return v.db.Close()
}

// ensureTables creates the vector tables if they are missing. Callers must
// hold mu. ready is only set once creation succeeds, so a failed attempt is
// retried by the next write instead of poisoning the store.
func (v *VectorStore) ensureTables(ctx context.Context) error {
	if v.ready {
		return nil
	}

	vecDDL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d])`,
		v.dims,
	)
	if _, err := v.db.ExecContext(ctx, vecDDL); err != nil {
		return mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "creating knowledge_vectors virtual table")
	}

	const chunkDDL = `
CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id           TEXT PRIMARY KEY,
	text         TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	pool         TEXT NOT NULL,
	chunk_index  INTEGER NOT NULL,
	total_chunks INTEGER NOT NULL,
	crawled_at   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_chunks_pool ON knowledge_chunks(pool);
`
	if _, err := v.db.ExecContext(ctx, chunkDDL); err != nil {
		return mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "creating knowledge_chunks table")
	}

	v.ready = true
	return nil
}

// tablesExist reports whether the vector tables have been created, consulting
// sqlite_master so a store reopened over an existing database is recognised.
func (v *VectorStore) tablesExist(ctx context.Context) (bool, error) {
	v.mu.Lock()
	ready := v.ready
	v.mu.Unlock()
	if ready {
		return true, nil
	}

	var name string
	err := v.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'knowledge_chunks'`,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "checking for vector tables")
	}

	v.mu.Lock()
	v.ready = true
	v.mu.Unlock()
	return true, nil
}

// Append stores the given chunk records, creating the vector tables on first
// use. Records with an existing id are replaced; vec0 does not support ON
// CONFLICT, so the upsert is delete-then-insert inside one transaction.
func (v *VectorStore) Append(ctx context.Context, records []store.VectorChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if err := records[i].Validate(v.dims); err != nil {
			return err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.ensureTables(ctx); err != nil {
		return err
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "beginning append transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for i := range records {
		rec := &records[i]

		blob, err := sqlite_vec.SerializeFloat32(rec.Vector)
		if err != nil {
			return mnemoerr.Wrapf(err, mnemoerr.CodeStoreVectorFailure, "serializing embedding for %s", rec.ID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_vectors WHERE id = ?`, rec.ID); err != nil {
			return mnemoerr.Wrapf(err, mnemoerr.CodeStoreVectorFailure, "clearing existing vector %s", rec.ID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE id = ?`, rec.ID); err != nil {
			return mnemoerr.Wrapf(err, mnemoerr.CodeStoreVectorFailure, "clearing existing chunk %s", rec.ID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge_vectors(id, embedding) VALUES (?, ?)`,
			rec.ID, blob,
		); err != nil {
			return mnemoerr.Wrapf(err, mnemoerr.CodeStoreVectorFailure, "inserting vector %s", rec.ID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO knowledge_chunks(id, text, title, pool, chunk_index, total_chunks, crawled_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Text, rec.Title, string(rec.Pool), rec.ChunkIndex, rec.TotalChunks, formatTime(rec.CrawledAt),
		); err != nil {
			return mnemoerr.Wrapf(err, mnemoerr.CodeStoreVectorFailure, "inserting chunk %s", rec.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "committing append transaction")
	}
	return nil
}

// DeleteByPrefix removes every chunk record belonging to the given item and
// reports how many were deleted. An item with no chunks, or a store whose
// tables were never created, deletes zero records without error.
func (v *VectorStore) DeleteByPrefix(ctx context.Context, pool store.Pool, itemID string) (int64, error) {
	if !pool.Valid() {
		return 0, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "deleting chunks: invalid pool %q", pool)
	}

	exists, err := v.tablesExist(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	pattern := store.ChunkDeletePattern(pool, itemID)

	v.mu.Lock()
	defer v.mu.Unlock()

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "beginning delete transaction")
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 tables cannot be targeted with LIKE directly; resolve matching
	// ids from the metadata table first.
	ids, err := chunkIDsMatching(ctx, tx, pattern)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_vectors WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return 0, mnemoerr.Wrapf(err, mnemoerr.CodeStoreVectorFailure, "deleting vectors for item %s", itemID)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, mnemoerr.Wrapf(err, mnemoerr.CodeStoreVectorFailure, "deleting chunks for item %s", itemID)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "counting deleted chunks")
	}

	if err := tx.Commit(); err != nil {
		return 0, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "committing delete transaction")
	}
	return deleted, nil
}

func chunkIDsMatching(ctx context.Context, tx *sql.Tx, pattern string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM knowledge_chunks WHERE id LIKE ?`, pattern)
	if err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeStoreVectorFailure, "finding chunks matching %s", pattern)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "scanning chunk id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "iterating chunk ids")
	}
	return ids, nil
}

// Search performs a k-nearest-neighbor search and returns results closest
// first. Score represents distance (lower = more similar); 0.0 = exact match.
// A non-nil pool restricts results to that pool. Searching before any append
// returns no results.
func (v *VectorStore) Search(ctx context.Context, query []float32, k int, pool *store.Pool) ([]store.VectorResult, error) {
	if len(query) != v.dims {
		return nil, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "query has %d dimensions, store expects %d", len(query), v.dims)
	}
	if k <= 0 {
		return nil, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "search requires k > 0, got %d", k)
	}
	if pool != nil && !pool.Valid() {
		return nil, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "search: invalid pool %q", *pool)
	}

	exists, err := v.tablesExist(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "serializing query vector")
	}

	q := `SELECT v.id, v.distance, c.text, c.title, c.pool, c.chunk_index, c.total_chunks
FROM knowledge_vectors v
LEFT JOIN knowledge_chunks c ON c.id = v.id
WHERE v.embedding MATCH ? AND k = ?`
	args := []any{blob, k}
	if pool != nil {
		q += ` AND c.pool = ?`
		args = append(args, string(*pool))
	}
	q += ` ORDER BY v.distance`

	rows, err := v.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "searching vectors")
	}
	defer func() { _ = rows.Close() }()

	var results []store.VectorResult
	for rows.Next() {
		var (
			r     store.VectorResult
			text  sql.NullString
			title sql.NullString
			pl    sql.NullString
			idx   sql.NullInt64
			total sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Score, &text, &title, &pl, &idx, &total); err != nil {
			return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "scanning search result")
		}
		r.Text = text.String
		r.Title = title.String
		r.Pool = store.Pool(pl.String)
		r.ChunkIndex = int(idx.Int64)
		r.TotalChunks = int(total.Int64)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "iterating search results")
	}

	return results, nil
}

// Count returns the number of stored chunks across all pools. A store whose
// tables were never created counts as zero.
func (v *VectorStore) Count(ctx context.Context) (int64, error) {
	exists, err := v.tablesExist(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var n int64
	if err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_chunks`).Scan(&n); err != nil {
		return 0, mnemoerr.Wrap(err, mnemoerr.CodeStoreVectorFailure, "counting chunks")
	}
	return n, nil
}

// CountByPool returns the number of stored chunks in a single pool.
func (v *VectorStore) CountByPool(ctx context.Context, pool store.Pool) (int64, error) {
	if !pool.Valid() {
		return 0, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "counting chunks: invalid pool %q", pool)
	}

	exists, err := v.tablesExist(ctx)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var n int64
	if err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_chunks WHERE pool = ?`, string(pool)).Scan(&n); err != nil {
		return 0, mnemoerr.Wrapf(err, mnemoerr.CodeStoreVectorFailure, "counting chunks in pool %s", pool)
	}
	return n, nil
}

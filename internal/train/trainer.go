// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package train turns knowledge items into vector records: chunk the
// content, embed all of an item's chunks in one batched call, append the
// records to the vector store, then mark the catalog row trained. Progress
// is reported as a frame stream; items are processed strictly sequentially
// so frame order always matches processing order.
package train

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mnemo-dev/mnemo/internal/chunk"
	"github.com/mnemo-dev/mnemo/internal/embed"
	"github.com/mnemo-dev/mnemo/internal/store"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// eventBuffer smooths frame bursts. Sends block for normal backpressure;
// once the run context is cancelled, emit degrades to best-effort delivery
// so an abandoned stream cannot wedge the run goroutine.
const eventBuffer = 64

// Config holds dependencies for the Service.
type Config struct {
	Catalog store.CatalogStore
	Vectors store.VectorStore

	// Embedder may be nil when no provider is configured; every training
	// request then fails batch-scoped before any item is touched.
	Embedder embed.Embedder

	Chunking chunk.Config

	// PurgeOnEdit deletes an item's stale vector records when its content
	// changes, keeping "trained implies vectors exist" true in both
	// directions. Off reproduces the legacy lingering-vector behavior.
	PurgeOnEdit bool

	Logger *slog.Logger
}

// Service runs training batches over the knowledge catalogs. Only one batch
// runs at a time per process; a second request while one is in flight fails
// with a conflict.
type Service struct {
	catalog     store.CatalogStore
	vectors     store.VectorStore
	embedder    embed.Embedder
	chunking    chunk.Config
	purgeOnEdit bool
	logger      *slog.Logger

	busy atomic.Bool
}

// NewService creates a Service with the given dependencies.
func NewService(cfg Config) *Service {
	chunking := cfg.Chunking
	if !chunking.Valid() {
		chunking = chunk.DefaultConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:     cfg.Catalog,
		vectors:     cfg.Vectors,
		embedder:    cfg.Embedder,
		chunking:    chunking,
		purgeOnEdit: cfg.PurgeOnEdit,
		logger:      logger.With(slog.String("component", "train")),
	}
}

// Request selects the items for one training batch.
type Request struct {
	// ItemIDs trains exactly these items, in request order. Empty selects
	// every untrained item in scope instead.
	ItemIDs []string

	// Pool narrows the untrained selection to one pool; nil means both.
	// Ignored when ItemIDs is set, since ids are unique across pools.
	Pool *store.Pool

	// Retrain deletes each item's existing vector records and resets its
	// training state before training it again.
	Retrain bool
}

// Busy reports whether a training batch is currently running.
func (s *Service) Busy() bool {
	return s.busy.Load()
}

// Train starts a training batch and returns its progress stream. The stream
// is exactly one start frame, per-item frames in processing order, and a
// terminal complete frame; the channel is closed after complete. Train fails
// synchronously when the request is invalid or a batch is already running.
func (s *Service) Train(ctx context.Context, req Request) (<-chan ProgressEvent, error) {
	if req.Pool != nil && !req.Pool.Valid() {
		return nil, mnemoerr.Errorf(mnemoerr.CodeStoreInvalidInput, "train: unknown pool %q", *req.Pool)
	}
	if !s.busy.CompareAndSwap(false, true) {
		return nil, mnemoerr.New(mnemoerr.CodeTrainBatchConflict, "a training batch is already running")
	}

	ch := make(chan ProgressEvent, eventBuffer)
	go func() {
		defer close(ch)
		defer s.busy.Store(false)
		s.run(ctx, req, ch)
	}()
	return ch, nil
}

func (s *Service) run(ctx context.Context, req Request, ch chan<- ProgressEvent) {
	if s.embedder == nil {
		s.fatal(ctx, ch, mnemoerr.New(mnemoerr.CodeConfigEmbeddingMissing,
			"embedding provider is not configured: set an embedding API key"))
		return
	}

	items, err := s.resolve(ctx, req)
	if err != nil {
		s.fatal(ctx, ch, err)
		return
	}

	total := len(items)
	emit(ctx, ch, ProgressEvent{
		Type:    EventStart,
		Message: fmt.Sprintf("training %d items", total),
		Total:   total,
	})

	var tally Tally
	for i, sel := range items {
		if ctx.Err() != nil {
			break
		}
		s.trainItem(ctx, ch, req.Retrain, sel, i+1, total, &tally)
	}

	msg := fmt.Sprintf("trained %d, failed %d, skipped %d", tally.Trained, tally.Failed, tally.Skipped)
	if ctx.Err() != nil {
		msg = "training cancelled: " + msg
	}
	emit(ctx, ch, ProgressEvent{
		Type:    EventComplete,
		Message: msg,
		Total:   total,
		Tally:   &tally,
	})
	s.logger.Info("training batch finished",
		slog.Int("total", total),
		slog.Int("trained", tally.Trained),
		slog.Int("failed", tally.Failed),
		slog.Int("skipped", tally.Skipped))
}

// fatal ends a batch before any item is processed. The stream still keeps
// its start/complete framing so consumers never see an ambiguous end.
func (s *Service) fatal(ctx context.Context, ch chan<- ProgressEvent, err error) {
	s.logger.Error("training batch aborted", slog.Any("error", err))
	emit(ctx, ch, ProgressEvent{Type: EventStart, Message: "training 0 items"})
	emit(ctx, ch, ProgressEvent{Type: EventError, Message: err.Error()})
	emit(ctx, ch, ProgressEvent{Type: EventComplete, Message: "trained 0, failed 0, skipped 0", Tally: &Tally{}})
}

// selection is one slot of a resolved batch. item is nil when the requested
// id does not exist; the slot is kept so the miss surfaces as an item-scoped
// error frame in the right position.
type selection struct {
	id   string
	item *store.KnowledgeItem
}

func (s *Service) resolve(ctx context.Context, req Request) ([]selection, error) {
	if len(req.ItemIDs) > 0 {
		items, err := s.catalog.ListByIDs(ctx, req.ItemIDs)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]*store.KnowledgeItem, len(items))
		for _, item := range items {
			byID[item.ID] = item
		}

		out := make([]selection, 0, len(req.ItemIDs))
		seen := make(map[string]bool, len(req.ItemIDs))
		for _, id := range req.ItemIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, selection{id: id, item: byID[id]})
		}
		return out, nil
	}

	pools := store.Pools()
	if req.Pool != nil {
		pools = []store.Pool{*req.Pool}
	}
	var out []selection
	for _, pool := range pools {
		items, err := s.catalog.ListUntrained(ctx, pool)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			out = append(out, selection{id: item.ID, item: item})
		}
	}
	return out, nil
}

// trainItem runs one item through the pipeline. Failures are item-scoped:
// they bump the failed tally and emit an error frame, never an error return,
// so one bad item cannot abort the batch.
func (s *Service) trainItem(ctx context.Context, ch chan<- ProgressEvent, retrain bool, sel selection, current, total int, tally *Tally) {
	fail := func(err error, msg string) {
		tally.Failed++
		s.logger.Warn("item training failed",
			slog.String("item_id", sel.id),
			slog.Any("error", err))
		emit(ctx, ch, ProgressEvent{Type: EventError, Message: msg, ItemID: sel.id, Current: current, Total: total})
	}

	if sel.item == nil {
		err := mnemoerr.Errorf(mnemoerr.CodeStoreItemNotFound, "item %s not found", sel.id)
		fail(err, err.Error())
		return
	}
	item := sel.item

	emit(ctx, ch, ProgressEvent{
		Type:    EventProgress,
		Message: fmt.Sprintf("training %q", item.Title),
		ItemID:  item.ID,
		Current: current,
		Total:   total,
	})

	if retrain {
		deleted, err := s.vectors.DeleteByPrefix(ctx, item.Pool, item.ID)
		if err != nil {
			fail(err, fmt.Sprintf("retraining %q: deleting stale vectors: %v", item.Title, err))
			return
		}
		emit(ctx, ch, ProgressEvent{
			Type:    EventProgress,
			Message: fmt.Sprintf("deleted %d stale vector records", deleted),
			ItemID:  item.ID,
			Current: current,
			Total:   total,
		})

		if err := s.catalog.ResetTrained(ctx, item.ID); err != nil {
			fail(err, fmt.Sprintf("retraining %q: resetting training state: %v", item.Title, err))
			return
		}
		emit(ctx, ch, ProgressEvent{
			Type:    EventProgress,
			Message: "reset training state",
			ItemID:  item.ID,
			Current: current,
			Total:   total,
		})
	}

	chunks := chunk.Split(item.Content, s.chunking)
	if len(chunks) == 0 {
		tally.Skipped++
		emit(ctx, ch, ProgressEvent{
			Type:    EventWarning,
			Message: fmt.Sprintf("skipped %q: content too short to produce chunks", item.Title),
			ItemID:  item.ID,
			Current: current,
			Total:   total,
		})
		return
	}

	header := contextHeader(item)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c
		if header != "" {
			texts[i] = header + "\n\n" + c
		}
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		fail(err, fmt.Sprintf("embedding %q: %v", item.Title, err))
		return
	}
	if len(vectors) != len(texts) {
		err := mnemoerr.Errorf(mnemoerr.CodeEmbedResponseInvalid,
			"embedding %q: got %d vectors for %d chunks", item.Title, len(vectors), len(texts))
		fail(err, err.Error())
		return
	}

	now := time.Now()
	records := make([]store.VectorChunkRecord, len(chunks))
	for i := range chunks {
		records[i] = store.VectorChunkRecord{
			ID:          store.ChunkRecordID(item.Pool, item.ID, i),
			Text:        texts[i],
			Vector:      vectors[i],
			Title:       item.Title,
			Pool:        item.Pool,
			ChunkIndex:  i,
			TotalChunks: len(chunks),
			CrawledAt:   now,
		}
	}
	if err := s.vectors.Append(ctx, records); err != nil {
		fail(err, fmt.Sprintf("storing vectors for %q: %v", item.Title, err))
		return
	}

	// The catalog row flips trained only after the append committed. If the
	// flip itself fails, the item reads untrained with vectors present; the
	// next train run redoes it through the delete-first upsert, so the state
	// is recoverable.
	if err := s.catalog.MarkTrained(ctx, item.ID, len(chunks)); err != nil {
		fail(err, fmt.Sprintf("marking %q trained: %v", item.Title, err))
		return
	}

	tally.Trained++
	emit(ctx, ch, ProgressEvent{
		Type:    EventSuccess,
		Message: fmt.Sprintf("trained %q: %d chunks", item.Title, len(chunks)),
		ItemID:  item.ID,
		Current: current,
		Total:   total,
	})
}

// contextHeader synthesizes the provenance prefix folded into every chunk
// before embedding: title and description, newline separated, skipping empty
// parts. Carrying the context inside the embedded text keeps retrieval hits
// self-describing without a catalog join.
func contextHeader(item *store.KnowledgeItem) string {
	parts := make([]string, 0, 2)
	for _, part := range []string{item.Title, item.Description} {
		if p := strings.TrimSpace(part); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// emit delivers one frame, blocking for normal backpressure. Once ctx is
// cancelled it falls back to a non-blocking send: a still-draining consumer
// gets the frame, an abandoned stream drops it instead of wedging the run
// goroutine.
func emit(ctx context.Context, ch chan<- ProgressEvent, ev ProgressEvent) {
	select {
	case ch <- ev:
	case <-ctx.Done():
		select {
		case ch <- ev:
		default:
		}
	}
}

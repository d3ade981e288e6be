// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mnemo-dev/mnemo/internal/dedup"
	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/train"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/mnemo-dev/mnemo/pkg/health"
)

// Item is the full wire representation of a knowledge item.
type Item struct {
	ID            string     `json:"id" doc:"Item identifier"`
	Pool          string     `json:"pool" doc:"Pool the item belongs to (library or chat)"`
	Title         string     `json:"title" doc:"Short human-readable title"`
	Description   string     `json:"description,omitempty" doc:"Optional longer description"`
	Content       string     `json:"content" doc:"Full item content"`
	Category      string     `json:"category" doc:"Free-form category tag"`
	IsTrained     bool       `json:"is_trained" doc:"Whether vectors exist for the current content"`
	ChunksCreated int        `json:"chunks_created" doc:"Number of chunks produced by the last training run"`
	CreatedAt     time.Time  `json:"created_at" doc:"Creation timestamp"`
	UpdatedAt     time.Time  `json:"updated_at" doc:"Last modification timestamp"`
	TrainedAt     *time.Time `json:"trained_at,omitempty" doc:"Completion time of the last training run"`
}

// ItemSummary is the compact listing representation of a knowledge item.
type ItemSummary struct {
	ID            string    `json:"id" doc:"Item identifier"`
	Pool          string    `json:"pool" doc:"Pool the item belongs to"`
	Title         string    `json:"title" doc:"Short human-readable title"`
	Category      string    `json:"category" doc:"Free-form category tag"`
	IsTrained     bool      `json:"is_trained" doc:"Whether vectors exist for the current content"`
	ChunksCreated int       `json:"chunks_created" doc:"Number of chunks produced by the last training run"`
	CreatedAt     time.Time `json:"created_at" doc:"Creation timestamp"`
}

// SearchHit is one nearest-neighbour result for a search query.
type SearchHit struct {
	ID          string  `json:"id" doc:"Chunk record identifier, item id plus chunk index"`
	Title       string  `json:"title" doc:"Title of the owning item"`
	Pool        string  `json:"pool" doc:"Pool the owning item belongs to"`
	Text        string  `json:"text" doc:"Chunk text that matched"`
	Score       float64 `json:"score" doc:"Distance to the query vector, smaller is closer"`
	ChunkIndex  int     `json:"chunk_index" doc:"Position of the chunk within its item"`
	TotalChunks int     `json:"total_chunks" doc:"Total chunks the item produced"`
}

// DedupGroup is one cluster of near-duplicate items.
type DedupGroup struct {
	Kept       ItemSummary   `json:"kept" doc:"Item that survives removal"`
	Duplicates []ItemSummary `json:"duplicates" doc:"Items that would be removed"`
}

func itemFromStore(it *store.KnowledgeItem) Item {
	out := Item{
		ID:            it.ID,
		Pool:          string(it.Pool),
		Title:         it.Title,
		Description:   it.Description,
		Content:       it.Content,
		Category:      it.Category,
		IsTrained:     it.IsTrained,
		ChunksCreated: it.ChunksCreated,
		CreatedAt:     it.CreatedAt,
		UpdatedAt:     it.UpdatedAt,
	}
	if it.TrainedAt != nil {
		t := *it.TrainedAt
		out.TrainedAt = &t
	}
	return out
}

func summaryFromStore(it *store.KnowledgeItem) ItemSummary {
	return ItemSummary{
		ID:            it.ID,
		Pool:          string(it.Pool),
		Title:         it.Title,
		Category:      it.Category,
		IsTrained:     it.IsTrained,
		ChunksCreated: it.ChunksCreated,
		CreatedAt:     it.CreatedAt,
	}
}

func hitFromStore(r store.VectorResult) SearchHit {
	return SearchHit{
		ID:          r.ID,
		Title:       r.Title,
		Pool:        string(r.Pool),
		Text:        r.Text,
		Score:       r.Score,
		ChunkIndex:  r.ChunkIndex,
		TotalChunks: r.TotalChunks,
	}
}

func dedupGroupFromEngine(g dedup.Group) DedupGroup {
	out := DedupGroup{
		Kept:       summaryFromStore(g.Kept),
		Duplicates: make([]ItemSummary, 0, len(g.Duplicates)),
	}
	for _, d := range g.Duplicates {
		out.Duplicates = append(out.Duplicates, summaryFromStore(d))
	}
	return out
}

// paginate applies offset and limit to an already-ordered slice. Limit 0
// means no limit.
func paginate(items []*store.KnowledgeItem, offset, limit int) []*store.KnowledgeItem {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// mapDomainError translates a domain error into the huma status error the
// handlers return. Handlers with operation-specific mappings check their own
// codes first and fall through to this.
func mapDomainError(err error) error {
	switch {
	case mnemoerr.IsMissingCredentials(err):
		return huma.Error503ServiceUnavailable(err.Error())
	case mnemoerr.IsInvalidInput(err):
		return huma.Error422UnprocessableEntity(err.Error())
	default:
		switch mnemoerr.HTTPStatus(err) {
		case http.StatusNotFound:
			return huma.Error404NotFound(err.Error())
		case http.StatusConflict:
			return huma.Error409Conflict(err.Error())
		case http.StatusTooManyRequests:
			return huma.Error429TooManyRequests(err.Error())
		case http.StatusBadGateway:
			return huma.Error502BadGateway(err.Error())
		case http.StatusGatewayTimeout:
			return huma.Error504GatewayTimeout(err.Error())
		default:
			return huma.Error500InternalServerError(err.Error())
		}
	}
}

// RegisterServices sets the service dependencies and registers the typed
// REST routes. Until it is called the server answers only /healthz, the
// OpenAPI surface and the training route (which reports 503).
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	type createItemInput struct {
		Body struct {
			Pool        string `json:"pool" enum:"library,chat" doc:"Pool to create the item in"`
			Title       string `json:"title" minLength:"1" doc:"Short human-readable title"`
			Content     string `json:"content" minLength:"1" doc:"Full item content"`
			Description string `json:"description,omitempty" doc:"Optional longer description"`
			Category    string `json:"category,omitempty" doc:"Category tag, defaults to manual"`
		}
	}
	type itemOutput struct {
		Body Item
	}
	huma.Register(s.api, huma.Operation{
		OperationID:   "create-item",
		Method:        http.MethodPost,
		Path:          "/api/v1/items",
		Summary:       "Create a knowledge item",
		Tags:          []string{"Items"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *createItemInput) (*itemOutput, error) {
		pool, err := store.ParsePool(input.Body.Pool)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		item, err := s.services.Items().CreateItem(ctx, train.NewItemParams{
			Pool:        pool,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Content:     input.Body.Content,
			Category:    input.Body.Category,
		})
		if err != nil {
			return nil, mapDomainError(err)
		}
		return &itemOutput{Body: itemFromStore(item)}, nil
	})

	type listItemsInput struct {
		Pool      string `query:"pool" doc:"Restrict to one pool (library or chat)"`
		Untrained bool   `query:"untrained" doc:"Only items without current vectors; ignores limit and offset"`
		Limit     int    `query:"limit" minimum:"0" maximum:"1000" doc:"Page size, 0 for no limit"`
		Offset    int    `query:"offset" minimum:"0" doc:"Items to skip"`
	}
	type listItemsOutput struct {
		Body struct {
			Items []ItemSummary `json:"items" doc:"Items ordered library then chat, oldest first within each pool"`
		}
	}
	huma.Register(s.api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/api/v1/items",
		Summary:     "List knowledge items",
		Tags:        []string{"Items"},
	}, func(ctx context.Context, input *listItemsInput) (*listItemsOutput, error) {
		pools := []store.Pool{store.PoolLibrary, store.PoolChat}
		if input.Pool != "" {
			p, err := store.ParsePool(input.Pool)
			if err != nil {
				return nil, huma.Error422UnprocessableEntity(err.Error())
			}
			pools = []store.Pool{p}
		}

		var items []*store.KnowledgeItem
		for _, p := range pools {
			var (
				batch []*store.KnowledgeItem
				err   error
			)
			switch {
			case input.Untrained:
				batch, err = s.services.Catalog().ListUntrained(ctx, p)
			case len(pools) == 1:
				batch, err = s.services.Catalog().ListItems(ctx, p, store.ListOpts{
					Limit:  input.Limit,
					Offset: input.Offset,
				})
			default:
				// Both pools: fetch everything and page over the combined slice,
				// since per-pool offsets would not compose.
				batch, err = s.services.Catalog().ListItems(ctx, p, store.ListOpts{})
			}
			if err != nil {
				return nil, mapDomainError(err)
			}
			items = append(items, batch...)
		}
		if len(pools) > 1 && !input.Untrained {
			items = paginate(items, input.Offset, input.Limit)
		}

		out := &listItemsOutput{}
		out.Body.Items = make([]ItemSummary, 0, len(items))
		for _, it := range items {
			out.Body.Items = append(out.Body.Items, summaryFromStore(it))
		}
		return out, nil
	})

	type itemIDInput struct {
		ID string `path:"id" doc:"Item identifier"`
	}
	huma.Register(s.api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/api/v1/items/{id}",
		Summary:     "Fetch one knowledge item",
		Tags:        []string{"Items"},
	}, func(ctx context.Context, input *itemIDInput) (*itemOutput, error) {
		item, err := s.services.Catalog().GetItem(ctx, input.ID)
		if err != nil {
			if mnemoerr.IsNotFound(err) {
				return nil, huma.Error404NotFound(fmt.Sprintf("item %q not found", input.ID))
			}
			return nil, mapDomainError(err)
		}
		return &itemOutput{Body: itemFromStore(item)}, nil
	})

	type updateItemInput struct {
		ID   string `path:"id" doc:"Item identifier"`
		Body struct {
			Title       *string `json:"title,omitempty" doc:"New title"`
			Description *string `json:"description,omitempty" doc:"New description"`
			Content     *string `json:"content,omitempty" doc:"New content"`
		}
	}
	huma.Register(s.api, huma.Operation{
		OperationID: "update-item",
		Method:      http.MethodPatch,
		Path:        "/api/v1/items/{id}",
		Summary:     "Update a knowledge item",
		Description: "Any content change resets training: the item's vectors are purged and it must be retrained.",
		Tags:        []string{"Items"},
	}, func(ctx context.Context, input *updateItemInput) (*itemOutput, error) {
		b := input.Body
		if b.Title == nil && b.Description == nil && b.Content == nil {
			return nil, huma.Error422UnprocessableEntity("at least one of title, description or content must be provided")
		}
		if b.Title != nil && *b.Title == "" {
			return nil, huma.Error422UnprocessableEntity("title must not be empty")
		}
		if b.Content != nil && *b.Content == "" {
			return nil, huma.Error422UnprocessableEntity("content must not be empty")
		}
		current, err := s.services.Catalog().GetItem(ctx, input.ID)
		if err != nil {
			if mnemoerr.IsNotFound(err) {
				return nil, huma.Error404NotFound(fmt.Sprintf("item %q not found", input.ID))
			}
			return nil, mapDomainError(err)
		}
		title, description, content := current.Title, current.Description, current.Content
		if b.Title != nil {
			title = *b.Title
		}
		if b.Description != nil {
			description = *b.Description
		}
		if b.Content != nil {
			content = *b.Content
		}
		item, err := s.services.Items().UpdateItemContent(ctx, input.ID, title, description, content)
		if err != nil {
			return nil, mapDomainError(err)
		}
		return &itemOutput{Body: itemFromStore(item)}, nil
	})

	type deleteItemOutput struct {
		Body struct {
			Status string `json:"status" doc:"Always deleted on success"`
		}
	}
	huma.Register(s.api, huma.Operation{
		OperationID: "delete-item",
		Method:      http.MethodDelete,
		Path:        "/api/v1/items/{id}",
		Summary:     "Delete a knowledge item and its vectors",
		Tags:        []string{"Items"},
	}, func(ctx context.Context, input *itemIDInput) (*deleteItemOutput, error) {
		if err := s.services.Items().DeleteItem(ctx, input.ID); err != nil {
			if mnemoerr.IsNotFound(err) {
				return nil, huma.Error404NotFound(fmt.Sprintf("item %q not found", input.ID))
			}
			return nil, mapDomainError(err)
		}
		out := &deleteItemOutput{}
		out.Body.Status = "deleted"
		return out, nil
	})

	type statsOutput struct {
		Body struct {
			Pools []store.PoolStats `json:"pools" doc:"Per-pool item and training counts"`
		}
	}
	huma.Register(s.api, huma.Operation{
		OperationID: "pool-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Per-pool knowledge statistics",
		Tags:        []string{"Stats"},
	}, func(ctx context.Context, _ *struct{}) (*statsOutput, error) {
		stats, err := s.services.Items().Stats(ctx)
		if err != nil {
			return nil, mapDomainError(err)
		}
		out := &statsOutput{}
		out.Body.Pools = stats
		if out.Body.Pools == nil {
			out.Body.Pools = []store.PoolStats{}
		}
		return out, nil
	})

	type searchInput struct {
		Body struct {
			Query string `json:"query" minLength:"1" doc:"Natural-language query"`
			Limit int    `json:"limit,omitempty" minimum:"0" maximum:"100" doc:"Maximum hits, 0 for the default"`
			Pool  string `json:"pool,omitempty" doc:"Restrict to one pool (library or chat)"`
		}
	}
	type searchOutput struct {
		Body struct {
			Hits []SearchHit `json:"hits" doc:"Nearest chunks, closest first"`
		}
	}
	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Vector search across trained items",
		Tags:        []string{"Search"},
	}, func(ctx context.Context, input *searchInput) (*searchOutput, error) {
		var pool *store.Pool
		if input.Body.Pool != "" {
			p, err := store.ParsePool(input.Body.Pool)
			if err != nil {
				return nil, huma.Error422UnprocessableEntity(err.Error())
			}
			pool = &p
		}
		results, err := s.services.Searcher().Search(ctx, input.Body.Query, input.Body.Limit, pool)
		if err != nil {
			if mnemoerr.IsMissingCredentials(err) {
				return nil, huma.Error503ServiceUnavailable("embedding provider is not configured")
			}
			return nil, mapDomainError(err)
		}
		out := &searchOutput{}
		out.Body.Hits = make([]SearchHit, 0, len(results))
		for _, r := range results {
			out.Body.Hits = append(out.Body.Hits, hitFromStore(r))
		}
		return out, nil
	})

	type dedupInput struct {
		Body struct {
			Pool string `json:"pool" enum:"library,chat" doc:"Pool to scan for duplicates"`
		}
	}
	type dedupPreviewOutput struct {
		Body struct {
			Pool         string       `json:"pool" doc:"Pool that was scanned"`
			Groups       []DedupGroup `json:"groups" doc:"Duplicate clusters found"`
			RemovedCount int          `json:"removed_count" doc:"Items a removal pass would delete"`
			KeptCount    int          `json:"kept_count" doc:"Group survivors a removal pass would keep"`
		}
	}
	huma.Register(s.api, huma.Operation{
		OperationID: "dedup-preview",
		Method:      http.MethodPost,
		Path:        "/api/v1/dedup/preview",
		Summary:     "Preview near-duplicate items without removing them",
		Tags:        []string{"Dedup"},
	}, func(ctx context.Context, input *dedupInput) (*dedupPreviewOutput, error) {
		pool, err := store.ParsePool(input.Body.Pool)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		preview, err := s.services.Deduper().Preview(ctx, pool)
		if err != nil {
			return nil, mapDomainError(err)
		}
		out := &dedupPreviewOutput{}
		out.Body.Pool = string(preview.Pool)
		out.Body.RemovedCount = preview.RemovedCount
		out.Body.KeptCount = preview.KeptCount
		out.Body.Groups = make([]DedupGroup, 0, len(preview.Groups))
		for _, g := range preview.Groups {
			out.Body.Groups = append(out.Body.Groups, dedupGroupFromEngine(g))
		}
		return out, nil
	})

	type dedupRemoveOutput struct {
		Body struct {
			Pool         string `json:"pool" doc:"Pool that was deduplicated"`
			RemovedCount int    `json:"removed_count" doc:"Items deleted"`
			KeptCount    int    `json:"kept_count" doc:"Group survivors retained"`
		}
	}
	huma.Register(s.api, huma.Operation{
		OperationID: "dedup-remove",
		Method:      http.MethodPost,
		Path:        "/api/v1/dedup/remove",
		Summary:     "Remove near-duplicate items, keeping one per cluster",
		Tags:        []string{"Dedup"},
	}, func(ctx context.Context, input *dedupInput) (*dedupRemoveOutput, error) {
		pool, err := store.ParsePool(input.Body.Pool)
		if err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		result, err := s.services.Deduper().Remove(ctx, pool)
		if err != nil {
			return nil, mapDomainError(err)
		}
		out := &dedupRemoveOutput{}
		out.Body.Pool = string(result.Pool)
		out.Body.RemovedCount = result.RemovedCount
		out.Body.KeptCount = result.KeptCount
		return out, nil
	})

	type learningsInput struct {
		Body struct {
			Transcript string `json:"transcript" minLength:"1" doc:"Raw chat transcript to distill"`
		}
	}
	type learningsOutput struct {
		Body struct {
			Items []Item `json:"items" doc:"Chat-pool items created from distilled facts"`
		}
	}
	huma.Register(s.api, huma.Operation{
		OperationID:   "create-learnings",
		Method:        http.MethodPost,
		Path:          "/api/v1/learnings",
		Summary:       "Distill a chat transcript into chat-pool items",
		Tags:          []string{"Learnings"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *learningsInput) (*learningsOutput, error) {
		distiller := s.services.Distiller()
		if distiller == nil {
			return nil, huma.Error503ServiceUnavailable("distiller is not configured: set an Anthropic API key")
		}
		facts, err := distiller.Distill(ctx, input.Body.Transcript)
		if err != nil {
			if mnemoerr.HasCode(err, mnemoerr.CodeDistillResponseInvalid) {
				return nil, huma.Error502BadGateway(err.Error())
			}
			return nil, mapDomainError(err)
		}
		out := &learningsOutput{}
		out.Body.Items = make([]Item, 0, len(facts))
		for _, fact := range facts {
			item, err := s.services.Items().CreateItem(ctx, train.NewItemParams{
				Pool:     store.PoolChat,
				Title:    fact.Title,
				Content:  fact.Content,
				Category: train.CategoryChatLearning,
			})
			if err != nil {
				return nil, mapDomainError(err)
			}
			out.Body.Items = append(out.Body.Items, itemFromStore(item))
		}
		return out, nil
	})

	type statusOutput struct {
		Body struct {
			Status       string          `json:"status" doc:"Always ok when the daemon responds"`
			TrainingBusy bool            `json:"training_busy" doc:"Whether a training batch is running"`
			Embedding    *health.Metrics `json:"embedding,omitempty" doc:"Embedding provider health, when tracked"`
		}
	}
	huma.Register(s.api, huma.Operation{
		OperationID: "daemon-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Daemon and provider status",
		Tags:        []string{"Status"},
	}, func(ctx context.Context, _ *struct{}) (*statusOutput, error) {
		out := &statusOutput{}
		out.Body.Status = "ok"
		out.Body.TrainingBusy = s.services.Trainer().Busy()
		if reporter := s.services.Health(); reporter != nil {
			m := reporter.Metrics()
			out.Body.Embedding = &m
		}
		return out, nil
	})
}

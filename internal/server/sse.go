// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mnemo-dev/mnemo/internal/store"
	"github.com/mnemo-dev/mnemo/internal/train"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// TrainingRequest is the request body for the training stream endpoint.
// An empty body trains every untrained item across both pools.
type TrainingRequest struct {
	ItemIDs []string `json:"item_ids,omitempty" doc:"Train exactly these items, in order"`
	Pool    string   `json:"pool,omitempty" doc:"Narrow the untrained selection to one pool"`
	Retrain bool     `json:"retrain,omitempty" doc:"Retrain items that already have vectors"`
}

func (s *Server) registerTrainingRoute() {
	s.router.Post("/api/v1/training/start", s.handleTrainingStart)

	// Register the operation in the OpenAPI spec manually. The progress
	// stream needs raw http.ResponseWriter access, so it cannot use Huma's
	// standard handler signature. The chi route above does the actual
	// handling; this entry documents it.
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "training-start",
		Method:      http.MethodPost,
		Path:        "/api/v1/training/start",
		Summary:     "Start a training batch and stream its progress",
		Description: "Embeds and stores vectors for the selected items. Set Accept: text/event-stream for an SSE progress stream, otherwise the progress frames are collected into a JSON array.",
		Tags:        []string{"Training"},
		RequestBody: &huma.RequestBody{
			Required: false,
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type: "object",
						Properties: map[string]*huma.Schema{
							"item_ids": {
								Type:        "array",
								Items:       &huma.Schema{Type: "string"},
								Description: "Train exactly these items, in order",
							},
							"pool": {
								Type:        "string",
								Enum:        []any{"library", "chat"},
								Description: "Narrow the untrained selection to one pool",
							},
							"retrain": {
								Type:        "boolean",
								Description: "Retrain items that already have vectors",
							},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Progress stream (SSE or JSON depending on Accept header)",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{
							Type:        "string",
							Description: "Server-sent stream of training progress frames",
						},
					},
					"application/json": {
						Schema: &huma.Schema{
							Type: "object",
							Properties: map[string]*huma.Schema{
								"events": {
									Type:        "array",
									Description: "Collected progress frames in stream order",
									Items:       &huma.Schema{Type: "object"},
								},
							},
						},
					},
				},
			},
			"409": {Description: "A training batch is already running"},
			"422": {Description: "Unknown pool"},
			"503": {Description: "Training service not configured"},
		},
	})
}

func (s *Server) handleTrainingStart(w http.ResponseWriter, r *http.Request) {
	var req TrainingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	trainReq := train.Request{ItemIDs: req.ItemIDs, Retrain: req.Retrain}
	if req.Pool != "" {
		pool, err := store.ParsePool(req.Pool)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		trainReq.Pool = &pool
	}

	if s.services == nil || s.services.Trainer() == nil {
		writeError(w, http.StatusServiceUnavailable, "training service not configured")
		return
	}

	// Cancelling the derived context on write failure makes the batch
	// goroutine fall back to non-blocking sends, so a vanished client
	// never wedges a training run.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := s.services.Trainer().Train(ctx, trainReq)
	if err != nil {
		if mnemoerr.IsMissingCredentials(err) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, mnemoerr.HTTPStatus(err), err.Error())
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamSSE(w, events)
		return
	}
	s.collectJSON(w, events)
}

func (s *Server) streamSSE(w http.ResponseWriter, events <-chan train.ProgressEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		// httptest.ResponseRecorder doesn't implement Flusher,
		// but we still write the frames for testability.
		flusher = nil
	}

	for ev := range events {
		data, _ := json.Marshal(ev)
		if err := writeSSEFrame(w, string(ev.Type), string(data)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// writeSSEFrame writes one event in wire format. Multi-line data gets one
// data: field per line, as the SSE spec requires.
func writeSSEFrame(w io.Writer, event, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return err
	}
	for _, line := range strings.Split(data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func (s *Server) collectJSON(w http.ResponseWriter, events <-chan train.ProgressEvent) {
	collected := make([]train.ProgressEvent, 0, 16)
	for ev := range events {
		collected = append(collected, ev)
	}

	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Events []train.ProgressEvent `json:"events"`
	}{Events: collected}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("encoding collected training events failed", slog.Any("error", err))
	}
}

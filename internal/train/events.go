// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package train

// EventType identifies one kind of training progress frame.
type EventType string

const (
	// EventStart opens every stream and carries the batch total.
	EventStart EventType = "start"
	// EventProgress marks a processing step within the batch.
	EventProgress EventType = "progress"
	// EventWarning reports a skipped item (content too short to train).
	EventWarning EventType = "warning"
	// EventSuccess reports one item trained.
	EventSuccess EventType = "success"
	// EventError reports an item-scoped or batch-scoped failure.
	EventError EventType = "error"
	// EventComplete closes every stream and carries the final tally.
	EventComplete EventType = "complete"
)

// Tally counts item outcomes for a training batch.
type Tally struct {
	Trained int `json:"trained"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// ProgressEvent is one frame of a training run. Events are ephemeral: they
// exist only on the stream and are never persisted. The frame grammar is
// fixed: a stream is exactly `start`, zero or more per-item frames in
// processing order, then `complete`, even when the batch is cancelled or
// aborts before the first item.
type ProgressEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`

	// ItemID scopes per-item frames; empty on batch-scoped frames.
	ItemID string `json:"item_id,omitempty"`

	// Current/Total position the frame within the batch (1-based).
	Current int `json:"current,omitempty"`
	Total   int `json:"total"`

	// Tally is set on the complete frame only.
	Tally *Tally `json:"tally,omitempty"`
}

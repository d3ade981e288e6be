// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package distill extracts durable knowledge facts from chat transcripts.
// Each fact becomes an untrained chat-pool item; the training pipeline picks
// it up like any other item.
package distill

import (
	"context"
	"encoding/json"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// DefaultModel is the extraction model. Fact extraction is a cheap,
// low-creativity task; the small model is deliberate.
const DefaultModel = "claude-haiku-4-5"

const maxReplyTokens = 4096

// systemPrompt pins the model to a machine-readable reply. The JSON-array
// contract is what parseFacts depends on.
const systemPrompt = `You extract durable facts from a chat transcript.

A durable fact is a statement worth remembering beyond this conversation:
a preference the user stated, a decision that was made, a piece of domain
knowledge that was established. Ignore greetings, meta-chatter, and anything
tied only to the moment.

Reply with a JSON array and nothing else. Each element is an object with a
short "title" and a self-contained "content" stating the fact in full. Reply
with [] when the transcript holds no durable facts.`

// Fact is one extracted knowledge nugget.
type Fact struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Config holds distiller configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string
}

// Distiller turns transcripts into facts via the Anthropic Messages API.
type Distiller struct {
	client anthropicsdk.Client
	model  string
}

// New creates a Distiller. Returns an error if the API key is missing.
func New(cfg Config) (*Distiller, error) {
	if cfg.APIKey == "" {
		return nil, mnemoerr.New(mnemoerr.CodeDistillMissingKey, "anthropic: missing api_key in config")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Distiller{
		client: anthropicsdk.NewClient(opts...),
		model:  model,
	}, nil
}

// Distill extracts facts from a transcript. An empty result is a valid
// outcome: the transcript simply held nothing durable.
func (d *Distiller) Distill(ctx context.Context, transcript string) ([]Fact, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, mnemoerr.New(mnemoerr.CodeDistillRequestInvalid, "distill: empty transcript")
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(d.model),
		MaxTokens: maxReplyTokens,
		System: []anthropicsdk.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(transcript)),
		},
		Temperature: anthropicsdk.Float(0),
	}

	msg, err := d.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mnemoerr.Wrapf(err, mnemoerr.CodeDistillUpstreamFailure, "distill: calling model %s", d.model)
	}

	var reply strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	return parseFacts(reply.String())
}

// parseFacts pulls the JSON array out of a model reply. Models occasionally
// wrap the array in prose or markdown fences despite the prompt, so the
// parser scans for the outermost brackets instead of unmarshalling the raw
// reply.
func parseFacts(raw string) ([]Fact, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, mnemoerr.Errorf(mnemoerr.CodeDistillResponseInvalid, "distill: no JSON array in reply %q", clip(raw))
	}

	var facts []Fact
	if err := json.Unmarshal([]byte(raw[start:end+1]), &facts); err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeDistillResponseInvalid, "distill: parsing reply")
	}

	out := make([]Fact, 0, len(facts))
	for _, f := range facts {
		f.Title = strings.TrimSpace(f.Title)
		f.Content = strings.TrimSpace(f.Content)
		if f.Title == "" || f.Content == "" {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// clip bounds raw reply text quoted into error messages.
func clip(s string) string {
	const max = 120
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package embed

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/genai"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// DefaultGeminiModel is the embedding model used when none is configured.
const DefaultGeminiModel = "gemini-embedding-001"

// GeminiConfig holds Google Gemini embedding provider configuration.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Dimensions int
}

// Gemini implements Embedder using the Google Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
	dims   int
}

// Compile-time interface check.
var _ Embedder = (*Gemini)(nil)

// NewGemini creates a Gemini embedder. Returns an error if the API key is
// missing.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, mnemoerr.New(mnemoerr.CodeConfigEmbeddingMissing,
			"google: missing api_key in config", mnemoerr.FieldProvider("google"))
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, mnemoerr.Wrap(err, mnemoerr.CodeEmbedUpstreamFailure,
			"google: creating client", mnemoerr.FieldProvider("google"))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	return &Gemini{client: client, model: model, dims: dims}, nil
}

func (g *Gemini) Name() string { return "google" }

func (g *Gemini) Dimensions() int { return g.dims }

func (g *Gemini) Close() error { return nil }

func (g *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{
			Parts: []*genai.Part{
				{Text: text},
			},
		}
	}

	// Gemini embedding models emit 3072 dims natively; request the
	// configured dimensionality so all providers feed the same store.
	config := &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(g.dims)),
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, mnemoerr.Errorf(mnemoerr.CodeEmbedResponseInvalid,
			"google: got %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, mnemoerr.Errorf(mnemoerr.CodeEmbedResponseInvalid,
				"google: empty embedding for input %d", i)
		}
		vec := make([]float32, len(emb.Values))
		copy(vec, emb.Values)
		out[i] = vec
	}

	return out, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return mnemoerr.Wrap(err, mnemoerr.CodeEmbedRateLimited,
			"google: rate limited", mnemoerr.FieldProvider("google"))
	}
	return mnemoerr.Wrap(err, mnemoerr.CodeEmbedUpstreamFailure,
		"google: embedding request failed", mnemoerr.FieldProvider("google"))
}

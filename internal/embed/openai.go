// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package embed

import (
	"context"
	"errors"
	"net/http"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig holds OpenAI embedding provider configuration.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // optional, useful for testing against a mock server
	Model      string
	Dimensions int
}

// OpenAI implements Embedder using the OpenAI Embeddings API.
type OpenAI struct {
	client openaisdk.Client
	model  string
	dims   int
}

// Compile-time interface check.
var _ Embedder = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI embedder. Returns an error if the API key is
// missing.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, mnemoerr.New(mnemoerr.CodeConfigEmbeddingMissing,
			"openai: missing api_key in config", mnemoerr.FieldProvider("openai"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	return &OpenAI{
		client: openaisdk.NewClient(opts...),
		model:  model,
		dims:   dims,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Dimensions() int { return o.dims }

func (o *OpenAI) Close() error { return nil }

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openaisdk.EmbeddingModel(o.model),
	}
	// text-embedding-3-* models accept a reduced output dimensionality.
	if o.dims != DefaultDimensions {
		params.Dimensions = param.NewOpt(int64(o.dims))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, mnemoerr.Errorf(mnemoerr.CodeEmbedResponseInvalid,
			"openai: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	// The API echoes each input's position in Index; trust that over the
	// response array order.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			return nil, mnemoerr.Errorf(mnemoerr.CodeEmbedResponseInvalid,
				"openai: embedding index %d out of range for %d inputs", idx, len(texts))
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[idx] = vec
	}
	for i, vec := range out {
		if vec == nil {
			return nil, mnemoerr.Errorf(mnemoerr.CodeEmbedResponseInvalid,
				"openai: missing embedding for input %d", i)
		}
	}

	return out, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return mnemoerr.Wrap(err, mnemoerr.CodeEmbedRateLimited,
			"openai: rate limited", mnemoerr.FieldProvider("openai"))
	}
	return mnemoerr.Wrap(err, mnemoerr.CodeEmbedUpstreamFailure,
		"openai: embedding request failed", mnemoerr.FieldProvider("openai"))
}

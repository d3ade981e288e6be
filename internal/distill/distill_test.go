// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package distill_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/distill"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func TestNew_MissingAPIKey(t *testing.T) {
	_, err := distill.New(distill.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, mnemoerr.IsMissingCredentials(err))
	assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeDistillMissingKey))
}

func TestNew_WithKey(t *testing.T) {
	d, err := distill.New(distill.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestDistill_EmptyTranscript(t *testing.T) {
	d := mustNewDistiller(t)

	_, err := d.Distill(context.Background(), "   \n\t")
	require.Error(t, err)
	assert.True(t, mnemoerr.IsInvalidInput(err))
	assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeDistillRequestInvalid))
}

func TestParseFacts(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []distill.Fact
	}{
		{
			name: "plain array",
			raw:  `[{"title":"Favorite editor","content":"The user prefers vim keybindings."}]`,
			want: []distill.Fact{
				{Title: "Favorite editor", Content: "The user prefers vim keybindings."},
			},
		},
		{
			name: "markdown fenced",
			raw: "```json\n" +
				`[{"title":"Deploy day","content":"Deploys happen on Tuesdays."}]` +
				"\n```",
			want: []distill.Fact{
				{Title: "Deploy day", Content: "Deploys happen on Tuesdays."},
			},
		},
		{
			name: "prose wrapped",
			raw: `Here are the extracted facts:

[{"title":"Timezone","content":"The team works in UTC."}]

Let me know if you need anything else.`,
			want: []distill.Fact{
				{Title: "Timezone", Content: "The team works in UTC."},
			},
		},
		{
			name: "multiple facts keep order",
			raw: `[
				{"title":"First","content":"Fact one."},
				{"title":"Second","content":"Fact two."}
			]`,
			want: []distill.Fact{
				{Title: "First", Content: "Fact one."},
				{Title: "Second", Content: "Fact two."},
			},
		},
		{
			name: "empty array is a valid outcome",
			raw:  `[]`,
			want: []distill.Fact{},
		},
		{
			name: "blank facts are dropped",
			raw: `[
				{"title":"","content":"No title means no fact."},
				{"title":"No content","content":"   "},
				{"title":"Kept","content":"This one survives."}
			]`,
			want: []distill.Fact{
				{Title: "Kept", Content: "This one survives."},
			},
		},
		{
			name: "fields are trimmed",
			raw:  `[{"title":"  Spaced title  ","content":"\n  Spaced content.  \n"}]`,
			want: []distill.Fact{
				{Title: "Spaced title", Content: "Spaced content."},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := distill.ParseFacts(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFacts_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no array at all", raw: "I could not find any durable facts in this transcript."},
		{name: "empty reply", raw: ""},
		{name: "malformed JSON inside brackets", raw: `[{"title": oops]`},
		{name: "closing bracket before opening", raw: `] nonsense ["`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := distill.ParseFacts(tt.raw)
			require.Error(t, err)
			assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeDistillResponseInvalid))
		})
	}
}

// mustNewDistiller creates a distiller with a dummy API key for unit tests.
func mustNewDistiller(t *testing.T) *distill.Distiller {
	t.Helper()
	d, err := distill.New(distill.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)
	return d
}

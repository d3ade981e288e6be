// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-dev/mnemo/internal/train"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

func testClient(srv *httptest.Server, token string) *daemonClient {
	return &daemonClient{baseURL: srv.URL, token: token, http: srv.Client()}
}

func TestDaemonClient_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := testClient(srv, "tok-123")
	var dest struct{}
	err := client.getJSON(context.Background(), "/api/v1/status", &dest)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestDaemonClient_DaemonNotRunning(t *testing.T) {
	// Port 1 is never listening.
	client := newDaemonClient("127.0.0.1:1", "")
	err := client.getJSON(context.Background(), "/api/v1/status", nil)
	require.Error(t, err)
	assert.Equal(t, mnemoerr.CodeCLIDaemonNotRunning, mnemoerr.CodeOf(err))
}

func TestDaemonClient_ErrorBodyShapes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{
			name:    "plain error shape",
			status:  http.StatusConflict,
			body:    `{"error":"a training batch is already running"}`,
			wantMsg: "a training batch is already running",
		},
		{
			name:    "huma problem shape",
			status:  http.StatusUnprocessableEntity,
			body:    `{"title":"Unprocessable Entity","detail":"validation failed"}`,
			wantMsg: "validation failed",
		},
		{
			name:    "unstructured body",
			status:  http.StatusInternalServerError,
			body:    "something broke",
			wantMsg: "something broke",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := testClient(srv, "")
			err := client.getJSON(context.Background(), "/api/v1/stats", nil)
			require.Error(t, err)
			assert.Equal(t, mnemoerr.CodeCLIRequestFailure, mnemoerr.CodeOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestReadSSEFrames_ParsesFrameStream(t *testing.T) {
	stream := strings.Join([]string{
		"event: start",
		`data: {"type":"start","message":"Training 2 items","total":2}`,
		"",
		"event: progress",
		`data: {"type":"progress","item_id":"it-1","current":1,"total":2}`,
		"",
		"event: complete",
		`data: {"type":"complete","total":2,"tally":{"trained":2,"failed":0,"skipped":0}}`,
		"",
	}, "\n")

	events := make(chan train.ProgressEvent, 8)
	readSSEFrames(strings.NewReader(stream), events)
	close(events)

	var got []train.ProgressEvent
	for ev := range events {
		got = append(got, ev)
	}

	require.Len(t, got, 3)
	assert.Equal(t, train.EventStart, got[0].Type)
	assert.Equal(t, 2, got[0].Total)
	assert.Equal(t, train.EventProgress, got[1].Type)
	assert.Equal(t, "it-1", got[1].ItemID)
	assert.Equal(t, 1, got[1].Current)
	require.Equal(t, train.EventComplete, got[2].Type)
	require.NotNil(t, got[2].Tally)
	assert.Equal(t, 2, got[2].Tally.Trained)
}

func TestReadSSEFrames_DropsTruncatedFinalFrame(t *testing.T) {
	stream := "event: start\n" +
		`data: {"type":"start","total":1}` + "\n\n" +
		`data: {"type":"progress","item` // cut off mid-frame, no blank line

	events := make(chan train.ProgressEvent, 8)
	readSSEFrames(strings.NewReader(stream), events)
	close(events)

	var got []train.ProgressEvent
	for ev := range events {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	assert.Equal(t, train.EventStart, got[0].Type)
}

func TestStreamTraining_DeliversEventsAndCloses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"item_ids":["it-1"]`)

		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, frame := range []string{
			"event: start\ndata: {\"type\":\"start\",\"total\":1}\n\n",
			"event: progress\ndata: {\"type\":\"progress\",\"item_id\":\"it-1\",\"current\":1,\"total\":1}\n\n",
			"event: complete\ndata: {\"type\":\"complete\",\"total\":1,\"tally\":{\"trained\":1,\"failed\":0,\"skipped\":0}}\n\n",
		} {
			_, _ = io.WriteString(w, frame)
			fl.Flush()
		}
	}))
	defer srv.Close()

	client := testClient(srv, "")
	events, err := client.streamTraining(context.Background(), trainingRequest{ItemIDs: []string{"it-1"}})
	require.NoError(t, err)

	var got []train.ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				require.Len(t, got, 3)
				assert.Equal(t, train.EventComplete, got[2].Type)
				return
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestStreamTraining_ConflictReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"training already in progress"}`))
	}))
	defer srv.Close()

	client := testClient(srv, "")
	_, err := client.streamTraining(context.Background(), trainingRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "training already in progress")
}

func TestTrainingOutcome(t *testing.T) {
	assert.NoError(t, trainingOutcome(&train.Tally{Trained: 3}))
	assert.NoError(t, trainingOutcome(&train.Tally{Trained: 1, Skipped: 2}))

	err := trainingOutcome(&train.Tally{Trained: 1, Failed: 2})
	require.Error(t, err)

	err = trainingOutcome(nil)
	require.Error(t, err)
	assert.Equal(t, mnemoerr.CodeCLIResponseInvalid, mnemoerr.CodeOf(err))
}

func TestPreviewText(t *testing.T) {
	assert.Equal(t, "short", previewText("short", 20))
	assert.Equal(t, "line one line two", previewText("line one\nline two", 40))

	clipped := previewText(strings.Repeat("x", 100), 20)
	assert.True(t, strings.HasSuffix(clipped, "…"))
	assert.Equal(t, 21, len([]rune(clipped)))
}

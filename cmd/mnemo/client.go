// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mnemo-dev/mnemo/internal/secrets"
	"github.com/mnemo-dev/mnemo/internal/train"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// defaultDaemonAddr is where CLI commands look for a running daemon unless
// --address overrides it. Matches the api.host/api.port config defaults.
const defaultDaemonAddr = "127.0.0.1:7337"

// defaultHTTPClient is the package-level HTTP client used by daemon commands.
// Overridden in tests via httptest. No timeout: training streams are
// long-lived; short-lived requests bound themselves with contexts.
var defaultHTTPClient = &http.Client{}

// daemonClient provides HTTP access to a running mnemo daemon.
type daemonClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// newDaemonClient creates a client targeting the given host:port address.
func newDaemonClient(addr, token string) *daemonClient {
	return &daemonClient{
		baseURL: "http://" + addr,
		token:   token,
		http:    defaultHTTPClient,
	}
}

// addAddressFlag registers the shared --address flag on a daemon-facing
// command.
func addAddressFlag(cmd *cobra.Command) {
	cmd.Flags().String("address", defaultDaemonAddr, "daemon address (host:port)")
}

// clientFromFlags builds a daemonClient from --address and the configured
// auth token. A keyring:// token reference is resolved through the OS
// keyring; if resolution fails the raw value is sent as-is and the daemon
// rejects it.
func clientFromFlags(cmd *cobra.Command) *daemonClient {
	addr, _ := cmd.Flags().GetString("address")
	if addr == "" {
		addr = defaultDaemonAddr
	}
	token := viper.GetString("api.auth_token")
	if secrets.IsKeyringURI(token) {
		if resolved, err := secrets.ResolveKeyringURI(secretStoreFactory(), token); err == nil {
			token = resolved
		}
	}
	return newDaemonClient(addr, token)
}

func (c *daemonClient) do(ctx context.Context, method, path string, body, dest any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return mnemoerr.Errorf(mnemoerr.CodeCLIRequestFailure, "encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return mnemoerr.Errorf(mnemoerr.CodeCLIRequestFailure, "building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return mnemoerr.Errorf(mnemoerr.CodeCLIDaemonNotRunning,
				"daemon is not running at %s (connection refused)", strings.TrimPrefix(c.baseURL, "http://"))
		}
		return mnemoerr.Errorf(mnemoerr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeErrorBody(resp)
	}

	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return mnemoerr.Errorf(mnemoerr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// getJSON performs a GET request and decodes the JSON response into dest.
func (c *daemonClient) getJSON(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, dest)
}

// postJSON performs a POST request with a JSON body and decodes the JSON
// response into dest. dest may be nil when the response body is irrelevant.
func (c *daemonClient) postJSON(ctx context.Context, path string, body, dest any) error {
	return c.do(ctx, http.MethodPost, path, body, dest)
}

// patchJSON performs a PATCH request with a JSON body.
func (c *daemonClient) patchJSON(ctx context.Context, path string, body, dest any) error {
	return c.do(ctx, http.MethodPatch, path, body, dest)
}

// deleteJSON performs a DELETE request.
func (c *daemonClient) deleteJSON(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodDelete, path, nil, dest)
}

// trainingRequest mirrors the daemon's training start body.
type trainingRequest struct {
	ItemIDs []string `json:"item_ids,omitempty"`
	Pool    string   `json:"pool,omitempty"`
	Retrain bool     `json:"retrain,omitempty"`
}

// streamTraining opens the SSE training stream and delivers parsed progress
// frames on the returned channel. The channel closes when the stream ends;
// cancelling ctx closes the connection and lets the daemon abort the batch.
func (c *daemonClient) streamTraining(ctx context.Context, req trainingRequest) (<-chan train.ProgressEvent, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, mnemoerr.Errorf(mnemoerr.CodeCLIRequestFailure, "encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/training/start", bytes.NewReader(data))
	if err != nil {
		return nil, mnemoerr.Errorf(mnemoerr.CodeCLIRequestFailure, "building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if isDialError(err) {
			return nil, mnemoerr.Errorf(mnemoerr.CodeCLIDaemonNotRunning,
				"daemon is not running at %s (connection refused)", strings.TrimPrefix(c.baseURL, "http://"))
		}
		return nil, mnemoerr.Errorf(mnemoerr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		err := decodeErrorBody(resp)
		_ = resp.Body.Close()
		return nil, err
	}

	events := make(chan train.ProgressEvent, 16)
	go func() {
		defer close(events)
		defer func() { _ = resp.Body.Close() }()
		readSSEFrames(resp.Body, events)
	}()
	return events, nil
}

// readSSEFrames parses event:/data: lines into progress frames. The frame
// type comes from the data payload; the event: line is redundant and only
// there for EventSource consumers.
func readSSEFrames(r io.Reader, events chan<- train.ProgressEvent) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(line, "data: "))
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev train.ProgressEvent
			if err := json.Unmarshal([]byte(data.String()), &ev); err == nil {
				events <- ev
			}
			data.Reset()
		}
	}
	// A truncated final frame is dropped; the caller treats a stream that
	// ends without a complete frame as a disconnect.
}

// decodeErrorBody turns a non-2xx daemon response into a CLI error. Both the
// raw writeError shape and huma's problem+json shape are handled.
func decodeErrorBody(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var plain struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &plain); err == nil {
		if plain.Error != "" {
			msg = plain.Error
		} else if plain.Detail != "" {
			msg = plain.Detail
		}
	}
	if msg == "" {
		msg = resp.Status
	}
	return mnemoerr.Errorf(mnemoerr.CodeCLIRequestFailure, "daemon returned status %d: %s", resp.StatusCode, msg)
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

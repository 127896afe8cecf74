// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/morganforge/quill/internal/api"
)

// noSleep returns an injectable sleep that records delays without waiting.
func noSleep(delays *[]time.Duration) api.SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

// sseChunk writes one delta frame in wire format.
func sseChunk(content string) string {
	return fmt.Sprintf("data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", content)
}

func newRunner(t *testing.T, baseURL string, markdown bool) (*TurnRunner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	status := &bytes.Buffer{}
	runner := &TurnRunner{
		Client:   api.NewClient(&api.ClientConfig{BaseURL: baseURL, Model: "test-model"}),
		Policy:   api.RetryPolicy{MaxAttempts: 2, BaseDelay: 10 * time.Millisecond},
		Out:      out,
		Status:   status,
		Markdown: markdown,
	}
	return runner, out, status
}

func TestRunTurn_StreamsAndAppendsMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("Hello"))
		fmt.Fprint(w, sseChunk(" there"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	runner, out, _ := newRunner(t, server.URL, false)

	messages, err := runner.RunTurn(context.Background(), nil, "hi")
	require.NoError(t, err)

	require.Len(t, messages, 2)
	require.Equal(t, api.RoleUser, messages[0].Role)
	require.Equal(t, "hi", messages[0].Content)
	require.Equal(t, api.RoleAssistant, messages[1].Role)
	require.Equal(t, "Hello there", messages[1].Content)
	require.Contains(t, out.String(), "Hello there")
}

func TestRunTurn_UserMessageAppendedOncePerTurn(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("recovered"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	runner, _, status := newRunner(t, server.URL, false)
	var delays []time.Duration
	runner.Sleep = noSleep(&delays)

	messages, err := runner.RunTurn(context.Background(), nil, "flaky?")
	require.NoError(t, err)

	require.Equal(t, 3, requests)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays)

	// One user message despite three attempts, plus the reply.
	require.Len(t, messages, 2)
	require.Equal(t, "flaky?", messages[0].Content)
	require.Equal(t, "recovered", messages[1].Content)
	require.Contains(t, status.String(), "retrying")
}

func TestRunTurn_TerminalFailureKeepsUserMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request"}}`)
	}))
	defer server.Close()

	runner, out, status := newRunner(t, server.URL, false)
	var delays []time.Duration
	runner.Sleep = noSleep(&delays)

	messages, err := runner.RunTurn(context.Background(), nil, "oops")
	require.Error(t, err)
	require.Contains(t, err.Error(), "400")

	// Non-retriable: no backoff, no retry notices, nothing streamed.
	require.Empty(t, delays)
	require.Empty(t, status.String())
	require.Empty(t, out.String())

	// The user message stays in history even on terminal failure.
	require.Len(t, messages, 1)
	require.Equal(t, api.RoleUser, messages[0].Role)
}

func TestRunTurn_RetriesExhausted(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	runner, _, _ := newRunner(t, server.URL, false)
	var delays []time.Duration
	runner.Sleep = noSleep(&delays)

	_, err := runner.RunTurn(context.Background(), nil, "again")
	require.Error(t, err)

	// MaxAttempts=2 means 3 attempts total.
	require.Equal(t, 3, requests)
	require.Len(t, delays, 2)
}

func TestRunTurn_VerboseIncludesErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"model not found"}}`)
	}))
	defer server.Close()

	runner, _, _ := newRunner(t, server.URL, false)
	runner.Verbose = true

	_, err := runner.RunTurn(context.Background(), nil, "which model?")
	require.Error(t, err)
	require.Contains(t, err.Error(), "model not found")
}

func TestRunTurn_MarkdownFormatsFences(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("Look:\n``"))
		fmt.Fprint(w, sseChunk("`go\nx := 1\n```"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	runner, out, _ := newRunner(t, server.URL, true)

	messages, err := runner.RunTurn(context.Background(), nil, "show code")
	require.NoError(t, err)

	got := out.String()
	require.NotContains(t, got, "```")
	require.Contains(t, got, "── go ")
	require.Contains(t, got, "x := 1")

	// History keeps the raw reply with markers intact.
	require.Contains(t, messages[1].Content, "```go")
}

func TestRunTurn_PartialStreamIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk("partial answer"))
		// Connection closes without a terminator.
	}))
	defer server.Close()

	runner, _, _ := newRunner(t, server.URL, false)

	messages, err := runner.RunTurn(context.Background(), nil, "q")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "partial answer", messages[1].Content)
}

func TestRunTurn_EmptyReplyNotAppended(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	runner, _, _ := newRunner(t, server.URL, false)

	messages, err := runner.RunTurn(context.Background(), nil, "silence")
	require.NoError(t, err)

	// Clean terminator with no content: user message only.
	require.Len(t, messages, 1)
	require.Equal(t, api.RoleUser, messages[0].Role)
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SERVER HELPERS
// =============================================================================

// sseHandler writes the given frames as an event stream, flushing after each
// write so chunk boundaries reach the client as sent.
func sseHandler(t *testing.T, writes []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		require.True(t, ok, "test server must support flushing")

		for _, chunk := range writes {
			_, err := w.Write([]byte(chunk))
			require.NoError(t, err)
			flusher.Flush()
		}
	}
}

func newTestClient(url string) *Client {
	return NewClient(&ClientConfig{
		BaseURL: url,
		APIKey:  "test-key",
		Model:   "test-model",
	})
}

func deltaFrame(content string) string {
	return `data: {"choices":[{"delta":{"content":"` + content + `"}}]}` + "\n"
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestStreamChat_FullStream(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		deltaFrame("Hello"),
		deltaFrame(", "),
		deltaFrame("world"),
		"data: [DONE]\n",
	}))
	defer srv.Close()

	var deltas []string
	res := newTestClient(srv.URL).StreamChat(context.Background(),
		[]Message{NewUserMessage("hi")},
		func(delta string) { deltas = append(deltas, delta) })

	require.True(t, res.OK)
	require.Equal(t, "Hello, world", res.Reply)
	require.Equal(t, []string{"Hello", ", ", "world"}, deltas)
}

func TestStreamChat_TerminatorStopsConsumption(t *testing.T) {
	// Frames after the terminator must never surface.
	srv := httptest.NewServer(sseHandler(t, []string{
		deltaFrame("before"),
		"data: [DONE]\n",
		deltaFrame("after"),
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).StreamChat(context.Background(),
		[]Message{NewUserMessage("hi")}, nil)

	require.True(t, res.OK)
	require.Equal(t, "before", res.Reply)
}

func TestStreamChat_PartialStreamIsSuccess(t *testing.T) {
	// Connection closes with no terminator: partial output is preserved and
	// the attempt still counts as a success.
	srv := httptest.NewServer(sseHandler(t, []string{
		deltaFrame("partial "),
		deltaFrame("output"),
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).StreamChat(context.Background(),
		[]Message{NewUserMessage("hi")}, nil)

	require.True(t, res.OK)
	require.Equal(t, "partial output", res.Reply)
}

func TestStreamChat_UnterminatedFinalLine(t *testing.T) {
	// The last frame lacks its newline; the decoder flush must still feed it
	// through the parser.
	srv := httptest.NewServer(sseHandler(t, []string{
		deltaFrame("first"),
		`data: {"choices":[{"delta":{"content":"last"}}]}`, // no trailing \n
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).StreamChat(context.Background(),
		[]Message{NewUserMessage("hi")}, nil)

	require.True(t, res.OK)
	require.Equal(t, "firstlast", res.Reply)
}

func TestStreamChat_MalformedFramesIgnored(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		": heartbeat\n",
		deltaFrame("a"),
		"data: {broken json\n",
		"event: noise\n",
		"\n",
		deltaFrame("b"),
		"data: [DONE]\n",
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).StreamChat(context.Background(),
		[]Message{NewUserMessage("hi")}, nil)

	require.True(t, res.OK)
	require.Equal(t, "ab", res.Reply)
}

func TestStreamChat_SplitFrameAcrossWrites(t *testing.T) {
	// One frame delivered in three raw chunks, cut mid-JSON.
	frame := deltaFrame("split across chunks")
	srv := httptest.NewServer(sseHandler(t, []string{
		frame[:10],
		frame[10:25],
		frame[25:],
		"data: [DONE]\n",
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).StreamChat(context.Background(),
		[]Message{NewUserMessage("hi")}, nil)

	require.True(t, res.OK)
	require.Equal(t, "split across chunks", res.Reply)
}

// =============================================================================
// FAILURE TESTS
// =============================================================================

func TestStreamChat_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	called := false
	res := newTestClient(srv.URL).StreamChat(context.Background(),
		[]Message{NewUserMessage("hi")},
		func(string) { called = true })

	require.False(t, res.OK)
	require.Equal(t, http.StatusTooManyRequests, res.Status)
	require.Equal(t, "rate limited", res.ErrorBody)
	require.False(t, called, "no output may be emitted for a failed attempt")
	require.Empty(t, res.Reply)
}

func TestStreamChat_HTTPErrorPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).StreamChat(context.Background(),
		[]Message{NewUserMessage("hi")}, nil)

	require.False(t, res.OK)
	require.Equal(t, http.StatusBadGateway, res.Status)
	require.Equal(t, "upstream exploded", res.ErrorBody)
}

func TestStreamChat_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // immediately: nothing is listening

	res := newTestClient(srv.URL).StreamChat(context.Background(),
		[]Message{NewUserMessage("hi")}, nil)

	require.False(t, res.OK)
	require.Zero(t, res.Status)
	require.Error(t, res.Err)
	require.True(t, Retriable(res), "connection errors are transient")
}

func TestStreamChat_CanceledMidStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		w.Write([]byte(deltaFrame("early")))
		flusher.Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res := newTestClient(srv.URL).StreamChat(ctx, []Message{NewUserMessage("hi")}, nil)

	// Cancellation ends the turn but keeps what already arrived.
	require.True(t, res.OK)
	require.Equal(t, "early", res.Reply)
}

// =============================================================================
// RETRY INTEGRATION
// =============================================================================

func TestStreamChat_RetryAfterServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		sseHandler(t, []string{deltaFrame("finally"), "data: [DONE]\n"})(w, r)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

	res := RunWithRetry(context.Background(), policy, noSleep(new([]time.Duration)),
		func(int) AttemptResult {
			return client.StreamChat(context.Background(), []Message{NewUserMessage("hi")}, nil)
		})

	require.True(t, res.OK)
	require.Equal(t, "finally", res.Reply)
	require.Equal(t, 3, attempts)
}

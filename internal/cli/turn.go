// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// turn.go - One user turn: request, streamed output, retries.

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/morganforge/quill/internal/api"
	"github.com/morganforge/quill/internal/ui/format"
	"github.com/morganforge/quill/internal/ui/styles"
)

// =============================================================================
// TURN RUNNER
// =============================================================================

// TurnRunner executes user turns against the chat API, streaming the reply
// to the terminal and retrying transient failures.
type TurnRunner struct {
	Client *api.Client
	Policy api.RetryPolicy

	// Sleep is the backoff sleep; nil means api.Sleep. Injectable for
	// tests.
	Sleep api.SleepFunc

	// Out receives the streamed assistant output.
	Out io.Writer
	// Status receives retry and failure notices (typically stderr).
	Status io.Writer

	// Styled enables ANSI styling; Markdown enables fence-aware formatting.
	Styled   bool
	Markdown bool
	// Verbose includes API error bodies in failure messages.
	Verbose bool
}

// RunTurn appends input as the next user message and streams the assistant
// reply. The user message is appended exactly once, before the first
// attempt, and is kept even when every attempt fails. The assistant message
// is appended only when the turn succeeds with content.
//
// The updated conversation is returned alongside any terminal error.
func (r *TurnRunner) RunTurn(ctx context.Context, messages []api.Message, input string) ([]api.Message, error) {
	messages = append(messages, api.NewUserMessage(input))

	sleep := r.Sleep
	if sleep == nil {
		sleep = api.Sleep
	}

	attempt := func(n int) api.AttemptResult {
		// Fresh formatter per attempt: fence state never leaks across
		// retries.
		formatter := format.NewStreamFormatter(r.Styled)

		res := r.Client.StreamChat(ctx, messages, func(delta string) {
			if r.Markdown {
				io.WriteString(r.Out, formatter.FormatToken(delta))
			} else {
				io.WriteString(r.Out, delta)
			}
		})
		if res.OK && r.Markdown {
			io.WriteString(r.Out, formatter.Flush())
		}

		if !res.OK && api.Retriable(res) && n < r.Policy.MaxAttempts {
			fmt.Fprintln(r.Status, styles.RenderWarning(fmt.Sprintf(
				"%s, retrying in %s (attempt %d/%d)",
				attemptFailure(res, r.Verbose), r.Policy.Backoff(n), n+1, r.Policy.MaxAttempts)))
		}
		return res
	}

	result := api.RunWithRetry(ctx, r.Policy, sleep, attempt)

	if !result.OK {
		return messages, fmt.Errorf("%s", attemptFailure(result, r.Verbose))
	}

	if !strings.HasSuffix(result.Reply, "\n") {
		fmt.Fprintln(r.Out)
	}
	if result.Reply != "" {
		messages = append(messages, api.NewAssistantMessage(result.Reply))
	}
	return messages, nil
}

// attemptFailure renders a failed attempt as a one-line description.
func attemptFailure(res api.AttemptResult, verbose bool) string {
	switch {
	case res.Status != 0:
		msg := fmt.Sprintf("request failed with status %d", res.Status)
		if verbose && res.ErrorBody != "" {
			msg += ": " + res.ErrorBody
		}
		return msg
	case res.Err != nil:
		return res.Err.Error()
	default:
		return "request failed"
	}
}

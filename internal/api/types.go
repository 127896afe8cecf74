// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message represents a chat message in the conversation.
type Message struct {
	Role    string `json:"role"`    // "user", "assistant", "system"
	Content string `json:"content"` // The message content
}

// ChatRequest is the request body for the /chat/completions endpoint.
type ChatRequest struct {
	Model       string    `json:"model"`                 // Model name (e.g., "gpt-4o-mini")
	Messages    []Message `json:"messages"`              // Conversation history
	Stream      bool      `json:"stream"`                // Always true for this client
	Temperature float64   `json:"temperature,omitempty"` // 0.0-2.0
	MaxTokens   int       `json:"max_tokens,omitempty"`  // Max tokens to generate
}

// =============================================================================
// WIRE TYPES (streaming response)
// =============================================================================

// streamChunk is the JSON payload of one "data:" frame.
// Only the delta content path is interesting; everything else is ignored.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// apiError is the error envelope returned on non-2xx responses.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// =============================================================================
// ATTEMPT RESULT
// =============================================================================

// AttemptResult reports the outcome of a single streaming attempt.
// Consumed only by the retry controller and the turn handler.
type AttemptResult struct {
	// OK is true when the attempt produced a usable reply, including the
	// partial-success case where the transport closed before the terminator.
	OK bool

	// Reply is the accumulated assistant text. May be non-empty even when
	// the stream ended early; callers must never discard partial output.
	Reply string

	// Status is the HTTP status code (0 when the request never got a response).
	Status int

	// ErrorBody is the raw response body of a failed request, shown only
	// under verbose mode.
	ErrorBody string

	// Err is the transport-level error, if any.
	Err error
}

// =============================================================================
// MESSAGE CONSTRUCTORS
// =============================================================================

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"io"

	"github.com/morganforge/quill/internal/api"
	"github.com/morganforge/quill/internal/config"
	"github.com/morganforge/quill/internal/session"
)

// =============================================================================
// COMMAND CONTEXT
// =============================================================================

// Context carries the shared state command handlers operate on. The REPL
// owns one Context for its lifetime.
type Context struct {
	Config   *config.Config
	Client   *api.Client
	Store    *session.Store
	Registry *Registry

	// Out receives all command output.
	Out io.Writer

	// Width is the terminal width used for history rendering.
	Width int

	// Messages is the live conversation, including any leading system
	// message.
	Messages []api.Message

	// SessionID is the persisted ID of the current conversation, empty
	// until the first /save.
	SessionID string

	// rawArgs is the unsplit argument text of the command being executed,
	// for handlers that take free-form input.
	rawArgs string
}

// SystemPrompt returns the current system prompt, if any.
func (c *Context) SystemPrompt() string {
	if len(c.Messages) > 0 && c.Messages[0].Role == api.RoleSystem {
		return c.Messages[0].Content
	}
	return ""
}

// SetSystemPrompt replaces or inserts the leading system message. An empty
// prompt removes it.
func (c *Context) SetSystemPrompt(prompt string) {
	hasSystem := len(c.Messages) > 0 && c.Messages[0].Role == api.RoleSystem

	switch {
	case prompt == "" && hasSystem:
		c.Messages = c.Messages[1:]
	case prompt != "" && hasSystem:
		c.Messages[0].Content = prompt
	case prompt != "":
		c.Messages = append([]api.Message{api.NewSystemMessage(prompt)}, c.Messages...)
	}
}

// ResetConversation drops all messages except the system prompt and detaches
// from any saved session.
func (c *Context) ResetConversation() {
	prompt := c.SystemPrompt()
	c.Messages = nil
	c.SessionID = ""
	if prompt != "" {
		c.Messages = []api.Message{api.NewSystemMessage(prompt)}
	}
}

// TurnCount returns the number of non-system messages.
func (c *Context) TurnCount() int {
	n := len(c.Messages)
	if c.SystemPrompt() != "" {
		n--
	}
	return n
}

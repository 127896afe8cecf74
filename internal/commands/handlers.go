// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/morganforge/quill/internal/api"
	"github.com/morganforge/quill/internal/session"
	"github.com/morganforge/quill/internal/ui/format"
	"github.com/morganforge/quill/internal/ui/styles"
	"github.com/morganforge/quill/internal/util"
)

// =============================================================================
// CONVERSATION HANDLERS
// =============================================================================

func handleClear(ctx *Context, _ []string) (bool, error) {
	ctx.ResetConversation()
	fmt.Fprintln(ctx.Out, styles.RenderSuccess("Conversation cleared"))
	return false, nil
}

func handleHistory(ctx *Context, _ []string) (bool, error) {
	if ctx.TurnCount() == 0 {
		fmt.Fprintln(ctx.Out, styles.RenderInfo("No messages yet"))
		return false, nil
	}

	width := ctx.Width
	if width <= 0 {
		width = 80
	}

	for _, msg := range ctx.Messages {
		switch msg.Role {
		case api.RoleUser:
			fmt.Fprintln(ctx.Out, styles.RenderInfo("You:"))
			fmt.Fprintln(ctx.Out, msg.Content)
		case api.RoleAssistant:
			fmt.Fprintln(ctx.Out, styles.RenderInfo(ctx.Client.Model()+":"))
			fmt.Fprintln(ctx.Out, format.RenderMessage(msg.Content, width))
		}
		fmt.Fprintln(ctx.Out)
	}
	return false, nil
}

func handleSystem(ctx *Context, args []string) (bool, error) {
	if len(args) == 0 {
		if prompt := ctx.SystemPrompt(); prompt != "" {
			fmt.Fprintln(ctx.Out, styles.RenderInfo("System prompt:"))
			fmt.Fprintln(ctx.Out, prompt)
		} else {
			fmt.Fprintln(ctx.Out, styles.RenderInfo("No system prompt set"))
		}
		return false, nil
	}

	// The raw text after the command name, so the prompt needs no quoting.
	ctx.SetSystemPrompt(ctx.rawArgs)
	fmt.Fprintln(ctx.Out, styles.RenderSuccess("System prompt updated"))
	return false, nil
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

func handleSave(ctx *Context, args []string) (bool, error) {
	if ctx.TurnCount() == 0 {
		return false, fmt.Errorf("nothing to save yet")
	}

	sess := &session.Session{
		ID:       ctx.SessionID,
		Model:    ctx.Client.Model(),
		Messages: ctx.Messages,
	}
	if len(args) > 0 {
		sess.Title = ctx.rawArgs
	}
	id, err := ctx.Store.Save(sess)
	if err != nil {
		return false, fmt.Errorf("save failed: %w", err)
	}

	ctx.SessionID = id
	fmt.Fprintln(ctx.Out, styles.RenderSuccess("Saved session "+util.TruncateRunes(id, 8)))
	return false, nil
}

func handleLoad(ctx *Context, args []string) (bool, error) {
	if len(args) == 0 {
		return false, fmt.Errorf("usage: /load <number|id>")
	}

	var (
		sess *session.Session
		err  error
	)
	if index, convErr := strconv.Atoi(args[0]); convErr == nil {
		sess, err = ctx.Store.LoadByIndex(index)
	} else {
		sess, err = ctx.Store.Load(args[0])
	}
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return false, fmt.Errorf("no session %q", args[0])
		}
		return false, fmt.Errorf("load failed: %w", err)
	}

	ctx.Messages = sess.Messages
	ctx.SessionID = sess.ID
	if sess.Model != "" {
		ctx.Client.SetModel(sess.Model)
	}

	fmt.Fprintln(ctx.Out, styles.RenderSuccess(fmt.Sprintf("Loaded %q (%d messages)", sess.Title, len(sess.Messages))))
	return false, nil
}

func handleSessions(ctx *Context, _ []string) (bool, error) {
	metas, err := ctx.Store.List()
	if err != nil {
		return false, fmt.Errorf("could not list sessions: %w", err)
	}
	fmt.Fprint(ctx.Out, session.FormatList(metas))
	if len(metas) == 0 {
		fmt.Fprintln(ctx.Out)
	}
	return false, nil
}

// =============================================================================
// SETTINGS HANDLERS
// =============================================================================

func handleModel(ctx *Context, args []string) (bool, error) {
	if len(args) == 0 {
		fmt.Fprintln(ctx.Out, styles.RenderInfo("Model: "+ctx.Client.Model()))
		return false, nil
	}

	ctx.Client.SetModel(args[0])
	ctx.Config.API.Model = args[0]
	fmt.Fprintln(ctx.Out, styles.RenderSuccess("Switched to "+args[0]))
	return false, nil
}

func handleStatus(ctx *Context, _ []string) (bool, error) {
	fmt.Fprintln(ctx.Out, styles.RenderInfo("Status"))
	fmt.Fprintf(ctx.Out, "  Endpoint:  %s\n", ctx.Config.API.BaseURL)
	fmt.Fprintf(ctx.Out, "  Model:     %s\n", ctx.Client.Model())
	fmt.Fprintf(ctx.Out, "  Messages:  %d\n", ctx.TurnCount())
	if ctx.SessionID != "" {
		fmt.Fprintf(ctx.Out, "  Session:   %s\n", util.TruncateRunes(ctx.SessionID, 8))
	}
	markdown := "off"
	if ctx.Config.UI.Markdown {
		markdown = "on"
	}
	fmt.Fprintf(ctx.Out, "  Markdown:  %s\n", markdown)
	return false, nil
}

// =============================================================================
// GENERAL HANDLERS
// =============================================================================

func handleHelp(ctx *Context, _ []string) (bool, error) {
	// Stable category order, not map order.
	order := []string{"Conversation", "Sessions", "Settings", "General"}
	registry := ctx.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	byCategory := registry.ByCategory()

	for _, category := range order {
		cmds := byCategory[category]
		if len(cmds) == 0 {
			continue
		}
		fmt.Fprintln(ctx.Out, styles.RenderInfo(category))
		for _, cmd := range cmds {
			fmt.Fprintf(ctx.Out, "  %-12s %s\n", cmd.Name, cmd.Description)
		}
	}
	fmt.Fprintln(ctx.Out, "\nAnything else you type is sent to the model.")
	return false, nil
}

func handleQuit(_ *Context, _ []string) (bool, error) {
	return true, nil
}

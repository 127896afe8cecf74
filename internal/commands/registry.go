// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system for the quill REPL.
package commands

import (
	"sort"
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Description is shown in help
	Description string

	// Usage shows argument syntax (e.g., "/model <name>")
	Usage string

	// Handler executes the command. It returns quit=true when the REPL
	// should exit.
	Handler func(ctx *Context, args []string) (quit bool, err error)

	// Hidden commands don't appear in help
	Hidden bool

	// Category for grouping in help display
	Category string
}

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands sorted by name.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// ByCategory returns visible commands grouped by category, names sorted
// within each group.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.All() {
		if cmd.Hidden {
			continue
		}
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	// Conversation commands
	r.Register(&Command{
		Name:        "/clear",
		Aliases:     []string{"/new"},
		Description: "Clear the conversation and start fresh",
		Usage:       "/clear",
		Category:    "Conversation",
		Handler:     handleClear,
	})
	r.Register(&Command{
		Name:        "/history",
		Description: "Re-render the conversation with syntax highlighting",
		Usage:       "/history",
		Category:    "Conversation",
		Handler:     handleHistory,
	})
	r.Register(&Command{
		Name:        "/system",
		Description: "Show or set the system prompt",
		Usage:       "/system [prompt]",
		Category:    "Conversation",
		Handler:     handleSystem,
	})

	// Session commands
	r.Register(&Command{
		Name:        "/save",
		Description: "Save the current conversation",
		Usage:       "/save [title]",
		Category:    "Sessions",
		Handler:     handleSave,
	})
	r.Register(&Command{
		Name:        "/load",
		Description: "Load a saved session by number or ID",
		Usage:       "/load <number|id>",
		Category:    "Sessions",
		Handler:     handleLoad,
	})
	r.Register(&Command{
		Name:        "/sessions",
		Aliases:     []string{"/ls"},
		Description: "List saved sessions",
		Usage:       "/sessions",
		Category:    "Sessions",
		Handler:     handleSessions,
	})

	// Settings commands
	r.Register(&Command{
		Name:        "/model",
		Aliases:     []string{"/m"},
		Description: "Show or switch the active model",
		Usage:       "/model [name]",
		Category:    "Settings",
		Handler:     handleModel,
	})
	r.Register(&Command{
		Name:        "/status",
		Description: "Show connection and conversation status",
		Usage:       "/status",
		Category:    "Settings",
		Handler:     handleStatus,
	})

	// General commands
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show help and available commands",
		Usage:       "/help",
		Category:    "General",
		Handler:     handleHelp,
	})
	r.Register(&Command{
		Name:        "/quit",
		Aliases:     []string{"/exit", "/q"},
		Description: "Exit quill",
		Usage:       "/quit",
		Category:    "General",
		Handler:     handleQuit,
	})
}

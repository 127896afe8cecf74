// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat REPL for quill.
//
// USABILITY: line editing, input history, and streamed output
//
// Interactive commands (during chat):
//   /help, /h           Show available commands
//   /clear              Clear conversation history
//   /model [name]       Show or switch model
//   /save, /load        Persist and restore sessions
//   /quit, /q           Exit
//   Ctrl+C              Cancel current generation
//   Ctrl+D              Exit

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/morganforge/quill/internal/api"
	"github.com/morganforge/quill/internal/commands"
	"github.com/morganforge/quill/internal/config"
	"github.com/morganforge/quill/internal/session"
	"github.com/morganforge/quill/internal/ui/styles"
)

// =============================================================================
// STYLES
// =============================================================================

// init configures the lipgloss color profile from terminal capabilities.
func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(styles.Cyan).
			Bold(true)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(styles.Purple).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(styles.TextSecondary)

	valueStyle = lipgloss.NewStyle().
			Foreground(styles.Emerald)

	errorStyle = lipgloss.NewStyle().
			Foreground(styles.Rose).
			Bold(true)
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options carries command-line overrides into the REPL.
type Options struct {
	// Model overrides the configured model when non-empty.
	Model string
	// ConfigPath overrides the default config file location.
	ConfigPath string
	// Verbose includes API error bodies in failure messages.
	Verbose bool
}

// =============================================================================
// CHAT REPL
// =============================================================================

// RunChat starts the interactive chat loop and blocks until the user exits.
func RunChat(opts Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	client := api.NewClient(&api.ClientConfig{
		BaseURL:     cfg.API.BaseURL,
		APIKey:      cfg.API.Key,
		Model:       cfg.API.Model,
		Timeout:     cfg.RequestTimeout(),
		Temperature: cfg.API.Temperature,
		MaxTokens:   cfg.API.MaxTokens,
	})

	store, err := session.NewStore()
	if err != nil {
		return fmt.Errorf("could not open session store: %w", err)
	}

	registry := commands.NewRegistry()
	parser := commands.NewParser(registry)
	cmdCtx := &commands.Context{
		Config:   cfg,
		Client:   client,
		Store:    store,
		Registry: registry,
		Out:      os.Stdout,
		Width:    GetTerminalWidth(),
	}
	if cfg.API.SystemPrompt != "" {
		cmdCtx.SetSystemPrompt(cfg.API.SystemPrompt)
	}

	runner := &TurnRunner{
		Client:   client,
		Policy:   api.RetryPolicy{MaxAttempts: cfg.Retry.MaxRetries, BaseDelay: cfg.BaseDelay()},
		Out:      os.Stdout,
		Status:   os.Stderr,
		Styled:   ColorsEnabled(),
		Markdown: cfg.UI.Markdown,
		Verbose:  cfg.UI.Verbose,
	}

	printWelcome(cfg, client.Model())

	input := NewInput()
	defer input.Close()

	// First Ctrl+C cancels the in-flight turn; at the prompt, liner turns
	// it into ErrPromptAborted.
	var cancelMu sync.Mutex
	var cancelTurn context.CancelFunc

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			cancelMu.Lock()
			if cancelTurn != nil {
				cancelTurn()
			}
			cancelMu.Unlock()
		}
	}()

	start := time.Now()
	for {
		line, err := input.ReadLine(promptStyle.Render("quill> "))
		if err != nil {
			// Ctrl+C at the prompt or Ctrl+D: exit gracefully.
			if err != liner.ErrPromptAborted && err != io.EOF {
				fmt.Fprintln(os.Stderr, errorStyle.Render("[Error] ")+err.Error())
			}
			fmt.Println()
			farewell(runner, cmdCtx)
			printGoodbye(cmdCtx, start)
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if commands.IsCommand(line) {
			quit, err := commands.Execute(cmdCtx, parser.Parse(line))
			if err != nil {
				fmt.Fprintln(os.Stderr, styles.RenderError(err.Error()))
			}
			if quit {
				farewell(runner, cmdCtx)
				printGoodbye(cmdCtx, start)
				return nil
			}
			continue
		}

		turnCtx, cancel := context.WithCancel(context.Background())
		cancelMu.Lock()
		cancelTurn = cancel
		cancelMu.Unlock()

		messages, err := runner.RunTurn(turnCtx, cmdCtx.Messages, line)
		cmdCtx.Messages = messages

		cancelMu.Lock()
		cancelTurn = nil
		cancelMu.Unlock()
		cancel()

		if err != nil {
			fmt.Fprintln(os.Stderr, styles.RenderError(err.Error()))
		}
	}
}

// loadConfig loads configuration and applies command-line overrides.
func loadConfig(opts Options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.ConfigPath != "" {
		cfg, err = config.LoadFromPath(opts.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if opts.Model != "" {
		cfg.API.Model = opts.Model
	}
	if opts.Verbose {
		cfg.UI.Verbose = true
	}
	return cfg, nil
}

// =============================================================================
// BANNER AND FAREWELL
// =============================================================================

// printWelcome prints the startup banner and connection summary.
func printWelcome(cfg *config.Config, model string) {
	fmt.Println()
	fmt.Println(welcomeStyle.Render("quill — terminal chat"))
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %s\n", infoStyle.Render("Model:"), valueStyle.Render(model))
	fmt.Printf("%s %s\n", infoStyle.Render("Endpoint:"), valueStyle.Render(cfg.API.BaseURL))
	if cfg.API.Key == "" {
		fmt.Println(styles.RenderWarning("No API key configured (set QUILL_API_KEY)"))
	}
	fmt.Println()
	fmt.Println(infoStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Println()
}

// farewell sends one synthetic goodbye turn through the executor.
// Best effort: a single attempt with a short deadline, failures ignored.
func farewell(runner *TurnRunner, cmdCtx *commands.Context) {
	if cmdCtx.TurnCount() == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	quick := *runner
	quick.Policy = api.RetryPolicy{MaxAttempts: 0, BaseDelay: 0}
	quick.Status = io.Discard

	fmt.Println()
	if _, err := quick.RunTurn(ctx, cmdCtx.Messages, "I'm heading out - goodbye!"); err == nil {
		fmt.Println()
	}
}

// printGoodbye prints the session summary on exit.
func printGoodbye(cmdCtx *commands.Context, start time.Time) {
	fmt.Println()
	fmt.Println(infoStyle.Render(strings.Repeat("─", 30)))
	fmt.Printf("%s %d messages in %s\n",
		infoStyle.Render("Session:"),
		cmdCtx.TurnCount(),
		time.Since(start).Round(time.Second))
}

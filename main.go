// quill - terminal chat client for OpenAI-compatible endpoints.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/morganforge/quill/internal/cli"
	"github.com/morganforge/quill/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var opts cli.Options
	var showVersion bool

	flag.StringVar(&opts.Model, "model", "", "model to use (overrides config)")
	flag.StringVar(&opts.Model, "m", "", "model to use (shorthand)")
	flag.StringVar(&opts.ConfigPath, "config", "", "path to config file")
	flag.BoolVar(&opts.Verbose, "verbose", false, "include API error details in failures")
	flag.BoolVar(&opts.Verbose, "v", false, "verbose (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if showVersion {
		fmt.Printf("quill %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := cli.RunChat(opts); err != nil {
		fmt.Fprintln(os.Stderr, styles.RenderError(err.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `quill - terminal chat client

Usage:
  quill [flags]

Flags:
  -m, --model NAME    Use a specific model (overrides config)
  --config PATH       Use an alternate config file
  -v, --verbose       Include API error details in failure messages
  --version           Print version and exit

Configuration:
  ~/.quill/config.toml, overridden by QUILL_API_KEY, QUILL_BASE_URL,
  QUILL_MODEL.
`)
}

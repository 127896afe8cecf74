// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package format

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/quill/internal/ui/styles"
)

// =============================================================================
// COMPLETED MESSAGE RENDERER
// =============================================================================

// Unlike the stream formatter, this renderer sees whole messages, so it can
// afford full syntax highlighting. Used by /history.

// RenderMessage renders a completed assistant message: fenced code blocks get
// chroma syntax highlighting inside a bordered box, prose gets inline-code
// styling.
func RenderMessage(content string, maxWidth int) string {
	lines := strings.Split(content, "\n")

	var (
		result    []string
		inFence   bool
		codeLines []string
		language  string
	)

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, fenceMarker):
			if inFence {
				result = append(result, renderCodeBlock(language, strings.Join(codeLines, "\n"), maxWidth))
				codeLines = nil
				language = ""
				inFence = false
			} else {
				language = strings.TrimSpace(strings.TrimPrefix(line, fenceMarker))
				inFence = true
			}
		case inFence:
			codeLines = append(codeLines, line)
		default:
			result = append(result, renderInline(line))
		}
	}

	// Unclosed fence: render what we have rather than dropping it.
	if inFence && len(codeLines) > 0 {
		result = append(result, renderCodeBlock(language, strings.Join(codeLines, "\n"), maxWidth))
	}

	return strings.Join(result, "\n")
}

// renderCodeBlock highlights one fenced block and wraps it in a bordered box
// with a language badge.
func renderCodeBlock(language, code string, maxWidth int) string {
	highlighted := highlight(strings.TrimRight(code, "\n"), language)

	var header string
	if language != "" {
		header = lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Background(styles.SurfaceDim).
			Padding(0, 1).
			Bold(true).
			Render(language) + "\n"
	}

	if maxWidth < 20 {
		maxWidth = 20
	}

	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(styles.Overlay).
		Padding(0, 1).
		MaxWidth(maxWidth).
		Render(header + highlighted)
}

// renderInline styles `inline code` spans within a prose line. An unpaired
// backtick stays literal.
func renderInline(line string) string {
	inlineStyle := lipgloss.NewStyle().Foreground(styles.Cyan)

	var (
		out    strings.Builder
		span   strings.Builder
		inCode bool
	)
	for _, r := range line {
		switch {
		case r == '`' && inCode:
			out.WriteString(inlineStyle.Render(span.String()))
			span.Reset()
			inCode = false
		case r == '`':
			inCode = true
		case inCode:
			span.WriteRune(r)
		default:
			out.WriteRune(r)
		}
	}
	if inCode {
		out.WriteString("`")
		out.WriteString(span.String())
	}
	return out.String()
}

// =============================================================================
// SYNTAX HIGHLIGHTING (Chroma-based)
// =============================================================================

// highlight applies ANSI-safe syntax highlighting, falling back to the plain
// code on any failure.
func highlight(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

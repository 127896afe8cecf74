// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package format renders assistant output for the terminal: a streaming
// code-fence-aware formatter for live token output, and a chroma-backed
// renderer for completed messages.
package format

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/quill/internal/ui/styles"
)

// =============================================================================
// STREAM FORMATTER
// =============================================================================

// fenceMarker delimits code blocks within chat content.
const fenceMarker = "```"

// bannerWidth is the total width of fence enter/exit banners.
const bannerWidth = 40

// StreamFormatter re-renders assistant deltas live, tracking code-fence state
// across token boundaries. One instance is owned by exactly one assistant
// turn; create a fresh one per turn.
//
// The formatter never sees the whole message: deltas arrive with no alignment
// to any syntactic boundary, so a fence marker or its language tag may be
// split across calls. Undecided input (a partial marker, or a marker whose
// language line has no newline yet) is retained in the pending buffer until
// the next delta disambiguates it. Output is append-only: once a character
// has been emitted as literal text it is never reclassified.
type StreamFormatter struct {
	insideFence bool
	pending     string
	language    string

	styled bool

	codeStyle   lipgloss.Style
	bannerStyle lipgloss.Style
}

// NewStreamFormatter creates a formatter for one assistant turn.
// When styled is false (non-TTY, NO_COLOR) output carries no ANSI styling
// but fence banners are still drawn.
func NewStreamFormatter(styled bool) *StreamFormatter {
	return &StreamFormatter{
		styled:      styled,
		codeStyle:   lipgloss.NewStyle().Foreground(styles.Cyan),
		bannerStyle: lipgloss.NewStyle().Foreground(styles.TextMuted),
	}
}

// InsideFence reports whether the formatter is currently inside a code fence.
func (f *StreamFormatter) InsideFence() bool {
	return f.insideFence
}

// Language returns the language tag of the currently open fence, if any.
func (f *StreamFormatter) Language() string {
	return f.language
}

// FormatToken consumes the next delta and returns the styled output to
// append. Must be called in strict delta order.
func (f *StreamFormatter) FormatToken(delta string) string {
	buf := f.pending + delta
	f.pending = ""

	var out strings.Builder
	i := 0
	for i < len(buf) {
		tick := strings.IndexByte(buf[i:], '`')
		if tick < 0 {
			out.WriteString(f.styleText(buf[i:]))
			break
		}
		if tick > 0 {
			out.WriteString(f.styleText(buf[i : i+tick]))
			i += tick
		}

		run := backtickRun(buf[i:])
		if run < len(fenceMarker) {
			if i+run == len(buf) {
				// Strict prefix of a fence marker at the end of the scan:
				// the next delta may complete it, so neither consume nor
				// emit. This is the case that keeps split markers from
				// being misrendered as literal backticks.
				f.pending = buf[i:]
				return out.String()
			}
			// Followed by something else, so these are literal backticks.
			out.WriteString(f.styleText(buf[i : i+run]))
			i += run
			continue
		}

		if f.insideFence {
			// Closing fence.
			i += len(fenceMarker)
			f.insideFence = false
			f.language = ""
			out.WriteString(f.exitBanner())
			continue
		}

		// Opening fence: the language tag runs up to the next newline, which
		// may not have arrived yet.
		nl := strings.IndexByte(buf[i+len(fenceMarker):], '\n')
		if nl < 0 {
			f.pending = buf[i:]
			return out.String()
		}
		lang := strings.TrimSpace(buf[i+len(fenceMarker) : i+len(fenceMarker)+nl])
		i += len(fenceMarker) + nl + 1
		f.insideFence = true
		f.language = lang
		out.WriteString(f.enterBanner(lang))
	}

	return out.String()
}

// Flush releases whatever the formatter retained at end of turn. A lone
// backtick prefix comes out as literal text; an opening fence whose language
// line never got its newline still opens the fence so the banner is not
// lost. An unterminated fence is left open, never auto-closed.
func (f *StreamFormatter) Flush() string {
	if f.pending == "" {
		return ""
	}
	buf := f.pending
	f.pending = ""

	if !f.insideFence && strings.HasPrefix(buf, fenceMarker) {
		lang := strings.TrimSpace(buf[len(fenceMarker):])
		f.insideFence = true
		f.language = lang
		return f.enterBanner(lang)
	}
	return f.styleText(buf)
}

// =============================================================================
// RENDERING
// =============================================================================

// styleText styles a run of literal characters according to fence state.
func (f *StreamFormatter) styleText(s string) string {
	if !f.styled || !f.insideFence {
		return s
	}
	// Style line by line: a delta may span newlines and lipgloss padding
	// must not bleed across them.
	parts := strings.Split(s, "\n")
	for i, part := range parts {
		if part != "" {
			parts[i] = f.codeStyle.Render(part)
		}
	}
	return strings.Join(parts, "\n")
}

// enterBanner draws the visually distinct "enter code block" line, carrying
// the language tag when present.
func (f *StreamFormatter) enterBanner(lang string) string {
	label := "──"
	if lang != "" {
		label += " " + lang + " "
	}
	line := label + strings.Repeat("─", max(0, bannerWidth-len([]rune(label))))
	if !f.styled {
		return "\n" + line + "\n"
	}
	return "\n" + f.bannerStyle.Render(line) + "\n"
}

// exitBanner draws the matching "exit code block" line.
func (f *StreamFormatter) exitBanner() string {
	line := strings.Repeat("─", bannerWidth)
	if !f.styled {
		return line + "\n"
	}
	return f.bannerStyle.Render(line) + "\n"
}

// =============================================================================
// HELPERS
// =============================================================================

// backtickRun counts leading backticks, capped at a full marker.
func backtickRun(s string) int {
	n := 0
	for n < len(s) && n < len(fenceMarker) && s[n] == '`' {
		n++
	}
	return n
}

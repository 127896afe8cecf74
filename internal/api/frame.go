// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// EVENT FRAME PARSER
// =============================================================================

// FrameKind classifies a parsed event-stream line.
type FrameKind int

const (
	// FrameSkip marks a line that carries nothing for us: blank lines,
	// heartbeats, metadata frames, and anything malformed. The stream
	// continues; only the explicit terminator ends a turn.
	FrameSkip FrameKind = iota

	// FrameDelta carries an incremental fragment of assistant text.
	FrameDelta

	// FrameDone is the sentinel "data: [DONE]" terminator frame.
	FrameDone
)

// Frame is one parsed unit of the event-stream wire protocol.
type Frame struct {
	Kind  FrameKind
	Delta string // Populated only for FrameDelta
}

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
)

// ParseFrame interprets a single complete line as an event-stream frame.
//
// The parser is deliberately maximally permissive: upstream transports
// interleave comments, heartbeats, and metadata frames, and a malformed frame
// must never abort the stream. Parse failure is ordinary control flow here,
// so this is a total function returning a tagged value, never an error.
func ParseFrame(line string) Frame {
	line = strings.TrimSpace(line)
	if line == "" {
		return Frame{Kind: FrameSkip}
	}

	if !strings.HasPrefix(line, dataPrefix) {
		return Frame{Kind: FrameSkip}
	}

	payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
	if payload == doneSentinel {
		return Frame{Kind: FrameDone}
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		// Skip malformed frames
		return Frame{Kind: FrameSkip}
	}

	if len(chunk.Choices) == 0 {
		return Frame{Kind: FrameSkip}
	}

	content := chunk.Choices[0].Delta.Content
	if content == "" {
		// Role-only and finish_reason-only chunks carry no delta
		return Frame{Kind: FrameSkip}
	}

	return Frame{Kind: FrameDelta, Delta: content}
}

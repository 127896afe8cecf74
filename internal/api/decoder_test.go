// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"strings"
	"testing"
)

// =============================================================================
// LINE DECODER TESTS
// =============================================================================

func TestLineDecoder_SingleChunk(t *testing.T) {
	var d LineDecoder

	lines := d.Feed([]byte("one\ntwo\nthree\n"))

	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if lines[0] != "one" || lines[1] != "two" || lines[2] != "three" {
		t.Errorf("lines = %q", lines)
	}
	if tail := d.Flush(); tail != "" {
		t.Errorf("Flush() = %q, want empty", tail)
	}
}

func TestLineDecoder_PartialLineAcrossChunks(t *testing.T) {
	var d LineDecoder

	if lines := d.Feed([]byte("hel")); len(lines) != 0 {
		t.Errorf("premature lines: %q", lines)
	}
	if lines := d.Feed([]byte("lo\nwor")); len(lines) != 1 || lines[0] != "hello" {
		t.Errorf("lines = %q, want [hello]", lines)
	}
	if tail := d.Flush(); tail != "wor" {
		t.Errorf("Flush() = %q, want %q", tail, "wor")
	}
}

func TestLineDecoder_CRLF(t *testing.T) {
	var d LineDecoder

	lines := d.Feed([]byte("data: a\r\ndata: b\r\n"))

	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0] != "data: a" || lines[1] != "data: b" {
		t.Errorf("lines = %q", lines)
	}
}

func TestLineDecoder_MidRuneSplit(t *testing.T) {
	// "héllo\n" split inside the two-byte é must decode losslessly.
	raw := []byte("h\xc3\xa9llo\n")
	var d LineDecoder

	var lines []string
	lines = append(lines, d.Feed(raw[:2])...) // ends mid-rune
	lines = append(lines, d.Feed(raw[2:])...)

	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if lines[0] != "héllo" {
		t.Errorf("line = %q, want %q", lines[0], "héllo")
	}
}

func TestLineDecoder_EmptyChunk(t *testing.T) {
	var d LineDecoder

	if lines := d.Feed(nil); lines != nil {
		t.Errorf("Feed(nil) = %q, want nil", lines)
	}
	if lines := d.Feed([]byte{}); lines != nil {
		t.Errorf("Feed(empty) = %q, want nil", lines)
	}
}

func TestLineDecoder_FlushResets(t *testing.T) {
	var d LineDecoder

	d.Feed([]byte("tail"))
	if tail := d.Flush(); tail != "tail" {
		t.Errorf("Flush() = %q, want %q", tail, "tail")
	}
	if tail := d.Flush(); tail != "" {
		t.Errorf("second Flush() = %q, want empty", tail)
	}
}

// TestLineDecoder_ChunkBoundaryInvariance verifies that any chunking of the
// same byte stream reconstructs the same ordered line sequence.
func TestLineDecoder_ChunkBoundaryInvariance(t *testing.T) {
	content := "data: {\"choices\":[{\"delta\":{\"content\":\"héllo ⚡\"}}]}\n" +
		"\n" +
		": heartbeat\n" +
		"data: [DONE]\n"

	// Reference: whole stream as one chunk.
	var ref LineDecoder
	want := ref.Feed([]byte(content))
	if tail := ref.Flush(); tail != "" {
		want = append(want, tail)
	}

	// Every possible split into two chunks, plus byte-at-a-time.
	for cut := 0; cut <= len(content); cut++ {
		var d LineDecoder
		got := d.Feed([]byte(content[:cut]))
		got = append(got, d.Feed([]byte(content[cut:]))...)
		if tail := d.Flush(); tail != "" {
			got = append(got, tail)
		}
		if strings.Join(got, "\x00") != strings.Join(want, "\x00") {
			t.Fatalf("cut %d: lines = %q, want %q", cut, got, want)
		}
	}

	var d LineDecoder
	var got []string
	for i := 0; i < len(content); i++ {
		got = append(got, d.Feed([]byte{content[i]})...)
	}
	if tail := d.Flush(); tail != "" {
		got = append(got, tail)
	}
	if strings.Join(got, "\x00") != strings.Join(want, "\x00") {
		t.Errorf("byte-at-a-time: lines = %q, want %q", got, want)
	}
}

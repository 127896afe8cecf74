// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import "bytes"

// =============================================================================
// LINE DECODER
// =============================================================================

// LineDecoder reassembles complete lines from an arbitrary sequence of raw
// byte chunks. The transport gives no alignment guarantees: a chunk boundary
// may fall mid-line or even mid-UTF-8-rune, so the decoder works on bytes and
// only ever splits at '\n'. Any unterminated trailing fragment is retained
// across Feed calls.
type LineDecoder struct {
	// PERFORMANCE: bytes.Buffer reuses its backing array across chunks
	rest bytes.Buffer
}

// Feed appends a raw chunk and returns every complete line it closes, in
// order, without the trailing newline. A trailing "\r" is stripped so CRLF
// and LF streams decode identically. Nothing is ever dropped.
func (d *LineDecoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}
	d.rest.Write(chunk)

	var lines []string
	for {
		data := d.rest.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimSuffix(data[:idx], []byte{'\r'}))
		lines = append(lines, line)
		d.rest.Next(idx + 1)
	}
	return lines
}

// Flush returns the retained trailing fragment, if any, and resets the
// decoder. Callers must treat a non-empty result as a final line that lacked
// its terminator.
func (d *LineDecoder) Flush() string {
	if d.rest.Len() == 0 {
		return ""
	}
	line := string(bytes.TrimSuffix(d.rest.Bytes(), []byte{'\r'}))
	d.rest.Reset()
	return line
}

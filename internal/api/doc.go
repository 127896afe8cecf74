// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for OpenAI-compatible chat-completion
// endpoints, including the SSE stream decoding pipeline and the retry
// controller that wraps a single streaming attempt.
//
// The streaming pipeline is split into three small stages:
//
//	bytes -> LineDecoder -> complete lines
//	line  -> ParseFrame  -> Frame (delta / done / skip)
//	Frame -> caller callback (one delta at a time, in order)
//
// Each stage is independently testable; the Client only wires them together
// for one HTTP attempt. Bounded retry with exponential backoff lives in
// retry.go and never reaches inside an attempt.
package api

// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"time"

	"github.com/aegis-foundation/aegis/lib/llm"
)

// Result summarizes one completed [Orchestrator.Process] call.
type Result struct {
	// Text is the assistant's prose, accumulated across every round
	// of the call and joined with newlines.
	Text string

	// RoundCount is the number of model calls the loop made.
	RoundCount int

	// ToolsUsed lists the name of every tool that actually executed,
	// in call order. Denied and rejected calls do not appear here.
	ToolsUsed []string

	// ErrorCount is the number of tool calls that ended in an error
	// result, including policy denials and confirmation rejections.
	ErrorCount int

	// Elapsed is the wall-clock duration of the whole call.
	Elapsed time.Duration

	// Usage is the token usage accumulated across all rounds.
	Usage llm.Usage
}

// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"github.com/aegis-foundation/aegis/lib/llm"
	"github.com/aegis-foundation/aegis/lib/policy"
)

// SessionSink receives the durable record of a conversation: every
// user message, model round, tool decision, and the final metrics.
// Implementations must tolerate being called from the orchestrator's
// worker goroutine; the orchestrator serializes calls itself, so no
// two sink methods run concurrently.
//
// The canonical implementation is the JSONL writer in
// [github.com/aegis-foundation/aegis/lib/sessionlog].
type SessionSink interface {
	// UserMessage records the text that opened the call.
	UserMessage(text string)

	// ThinkingStarted records that a model round began.
	ThinkingStarted(round int)

	// ToolCall records a tool invocation that passed policy and is
	// about to execute.
	ToolCall(call llm.ToolUse)

	// ToolResult records the outcome of an executed tool call.
	ToolResult(result llm.ToolResult)

	// ToolDenied records a tool call the policy engine refused,
	// with the sanitizer violations (if any) that forced the denial.
	ToolDenied(call llm.ToolUse, violations []policy.Violation)

	// ToolRejected records a confirmation-gated tool call the
	// operator declined, or that defaulted to rejection because no
	// confirmation channel exists.
	ToolRejected(call llm.ToolUse)

	// AssistantText records prose the model produced in a round.
	AssistantText(text string)

	// Metrics records the final summary after the loop ends.
	Metrics(result Result)
}

// ProgressSink receives live progress during a streaming call. It is
// a UI-facing feed: deltas arrive as the model produces them, before
// the round is complete. The orchestrator serializes calls.
type ProgressSink interface {
	// ThinkingStarted fires when a model round begins.
	ThinkingStarted(round int)

	// TextDelta fires for each fragment of streamed prose.
	TextDelta(text string)

	// ToolStarted fires when an approved tool call begins executing.
	ToolStarted(call llm.ToolUse)

	// ToolCompleted fires when a tool call finishes, whatever the
	// outcome.
	ToolCompleted(call llm.ToolUse, result llm.ToolResult)

	// Completed fires once, after the loop ends successfully.
	Completed(result Result)
}

// nopSession is the sink used when the caller supplies none.
type nopSession struct{}

func (nopSession) UserMessage(string)                         {}
func (nopSession) ThinkingStarted(int)                        {}
func (nopSession) ToolCall(llm.ToolUse)                       {}
func (nopSession) ToolResult(llm.ToolResult)                  {}
func (nopSession) ToolDenied(llm.ToolUse, []policy.Violation) {}
func (nopSession) ToolRejected(llm.ToolUse)                   {}
func (nopSession) AssistantText(string)                       {}
func (nopSession) Metrics(Result)                             {}

type nopProgress struct{}

func (nopProgress) ThinkingStarted(int)                       {}
func (nopProgress) TextDelta(string)                          {}
func (nopProgress) ToolStarted(llm.ToolUse)                   {}
func (nopProgress) ToolCompleted(llm.ToolUse, llm.ToolResult) {}
func (nopProgress) Completed(Result)                          {}

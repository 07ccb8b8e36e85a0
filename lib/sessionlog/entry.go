// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"encoding/json"
	"time"
)

// EntryKind classifies session log entries.
type EntryKind string

const (
	// KindUserMessage is the text that opened a Process call.
	KindUserMessage EntryKind = "user_message"

	// KindThinking marks the start of a model round.
	KindThinking EntryKind = "thinking"

	// KindToolCall is a tool invocation that passed policy.
	KindToolCall EntryKind = "tool_call"

	// KindToolResult is the outcome of an executed tool call.
	KindToolResult EntryKind = "tool_result"

	// KindToolDenied is a tool call refused by the policy engine.
	KindToolDenied EntryKind = "tool_denied"

	// KindToolRejected is a confirmation-gated tool call the
	// operator declined.
	KindToolRejected EntryKind = "tool_rejected"

	// KindAssistantText is prose produced by the model.
	KindAssistantText EntryKind = "assistant_text"

	// KindMetrics is the final summary of a Process call.
	KindMetrics EntryKind = "metrics"
)

// Entry is a structured session log record. Each entry has a
// timestamp, kind, kind-specific payload, and a chain hash linking
// it to the previous entry. Entries are serialized as JSONL in the
// live log and as CBOR in compacted archives.
type Entry struct {
	// Timestamp is when the entry was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Kind classifies the entry.
	Kind EntryKind `json:"kind"`

	// Chain is the hex-encoded BLAKE3 chain hash over this entry's
	// payload and the previous entry's chain hash. See [Verify].
	Chain string `json:"chain"`

	// UserMessage is set for KindUserMessage entries.
	UserMessage *UserMessageEntry `json:"user_message,omitempty"`

	// Thinking is set for KindThinking entries.
	Thinking *ThinkingEntry `json:"thinking,omitempty"`

	// ToolCall is set for KindToolCall entries.
	ToolCall *ToolCallEntry `json:"tool_call,omitempty"`

	// ToolResult is set for KindToolResult entries.
	ToolResult *ToolResultEntry `json:"tool_result,omitempty"`

	// ToolDenied is set for KindToolDenied entries.
	ToolDenied *ToolDeniedEntry `json:"tool_denied,omitempty"`

	// ToolRejected is set for KindToolRejected entries.
	ToolRejected *ToolRejectedEntry `json:"tool_rejected,omitempty"`

	// AssistantText is set for KindAssistantText entries.
	AssistantText *AssistantTextEntry `json:"assistant_text,omitempty"`

	// Metrics is set for KindMetrics entries.
	Metrics *MetricsEntry `json:"metrics,omitempty"`
}

// UserMessageEntry records the text that opened a call.
type UserMessageEntry struct {
	// Content is the message text.
	Content string `json:"content"`
}

// ThinkingEntry records the start of a model round.
type ThinkingEntry struct {
	// Round is the 1-based round number within the call.
	Round int `json:"round"`
}

// ToolCallEntry records a tool invocation.
type ToolCallEntry struct {
	// ID is the model's tool_use identifier.
	ID string `json:"id,omitempty"`

	// Name is the tool name.
	Name string `json:"name"`

	// Input is the tool input, preserved as raw JSON.
	Input json.RawMessage `json:"input,omitempty"`
}

// ToolResultEntry records the outcome of a tool invocation.
type ToolResultEntry struct {
	// ID matches the corresponding ToolCallEntry.ID.
	ID string `json:"id,omitempty"`

	// IsError indicates the tool call failed.
	IsError bool `json:"is_error,omitempty"`

	// Output is the tool result text.
	Output string `json:"output,omitempty"`
}

// ToolDeniedEntry records a policy denial.
type ToolDeniedEntry struct {
	// ID is the model's tool_use identifier.
	ID string `json:"id,omitempty"`

	// Name is the tool name.
	Name string `json:"name"`

	// Violations lists the sanitizer findings that forced the
	// denial, rendered as "kind at path". Empty for denials driven
	// by the decision matrix alone.
	Violations []string `json:"violations,omitempty"`
}

// ToolRejectedEntry records a declined confirmation.
type ToolRejectedEntry struct {
	// ID is the model's tool_use identifier.
	ID string `json:"id,omitempty"`

	// Name is the tool name.
	Name string `json:"name"`
}

// AssistantTextEntry records prose from the model.
type AssistantTextEntry struct {
	// Content is the text.
	Content string `json:"content"`
}

// MetricsEntry records the final summary of a call.
type MetricsEntry struct {
	// Rounds is the number of model calls made.
	Rounds int `json:"rounds"`

	// ToolsUsed lists every executed tool, in call order.
	ToolsUsed []string `json:"tools_used,omitempty"`

	// ErrorCount is the number of failed tool calls.
	ErrorCount int `json:"error_count,omitempty"`

	// InputTokens and OutputTokens are the accumulated token usage.
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`

	// ElapsedMilliseconds is the wall-clock duration of the call.
	ElapsedMilliseconds int64 `json:"elapsed_ms"`
}

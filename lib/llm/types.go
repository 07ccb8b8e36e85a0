// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in a conversation: a role plus an ordered
// sequence of content blocks. Messages are immutable once appended to
// a conversation.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// ContentBlockType discriminates the ContentBlock union.
type ContentBlockType string

const (
	ContentText       ContentBlockType = "text"
	ContentToolUse    ContentBlockType = "tool_use"
	ContentToolResult ContentBlockType = "tool_result"
	ContentImage      ContentBlockType = "image"
)

// ContentBlock is a tagged union of the block types that can appear
// in a message. Exactly one payload field is set, selected by Type.
// Representing wire content as a closed union (rather than a dynamic
// map) gives every protocol branch an exhaustive switch.
type ContentBlock struct {
	Type       ContentBlockType
	Text       string
	ToolUse    *ToolUse
	ToolResult *ToolResult
	Image      *Image
}

// ToolUse is a model-requested tool invocation. Created by the
// response decoder (or assembled incrementally during streaming) and
// immutable afterward.
type ToolUse struct {
	// ID is the provider-assigned identifier correlating this request
	// with its ToolResult.
	ID string

	// Name is the tool to invoke.
	Name string

	// Input is the tool arguments as raw JSON. Kept raw so the exact
	// wire bytes survive round-trips through the conversation history.
	Input json.RawMessage
}

// InputMap decodes the tool input into a generic map. Empty or
// malformed input decodes to an empty map rather than an error: a
// tool call with unusable arguments should still reach validation,
// which reports the missing fields with proper diagnostics.
func (use ToolUse) InputMap() map[string]any {
	if len(use.Input) == 0 {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal(use.Input, &input); err != nil || input == nil {
		return map[string]any{}
	}
	return input
}

// ToolResult is the outcome of one tool invocation. Produced by tool
// execution, or synthesized by the policy/denial/rejection paths.
type ToolResult struct {
	// ToolUseID matches the ID of the ToolUse this result answers.
	ToolUseID string

	// Content is the tool output (or error description) as text.
	Content string

	// IsError marks the result as a failure the model should react to.
	IsError bool
}

// Image is a base64-encoded image block. Produced only by
// vision-capable tools; consumed only by the protocol client.
type Image struct {
	// MediaType is the MIME type (e.g., "image/png").
	MediaType string

	// Data is the base64-encoded image bytes.
	Data string
}

// ToolDefinition describes a tool to the model. Registered once at
// startup and read-only afterward.
type ToolDefinition struct {
	Name        string
	Description string

	// InputSchema is the tool's JSON Schema, serialized as JSON.
	InputSchema json.RawMessage
}

// StopReason is the model's signal for why a turn ended.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonToolUse      StopReason = "tool_use"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
)

// Usage is the token accounting for one model turn.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Request is one model call: the full conversation so far plus tool
// definitions and sampling parameters.
type Request struct {
	Model     string
	MaxTokens int

	// System is the optional system prompt.
	System string

	Messages []Message
	Tools    []ToolDefinition

	// Temperature overrides the provider default when non-nil.
	Temperature *float64

	StopSequences []string
}

// Response is one complete model turn.
type Response struct {
	ID         string
	Model      string
	Content    []ContentBlock
	StopReason StopReason
	Usage      Usage
}

// ToolUses returns the tool invocations requested in this response,
// in content order.
func (response *Response) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, block := range response.Content {
		if block.Type == ContentToolUse && block.ToolUse != nil {
			uses = append(uses, *block.ToolUse)
		}
	}
	return uses
}

// TextContent returns the concatenated text blocks of this response.
// Multiple text blocks are joined with newlines.
func (response *Response) TextContent() string {
	var parts []string
	for _, block := range response.Content {
		if block.Type == ContentText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// StreamEventType discriminates the StreamEvent union.
type StreamEventType string

const (
	// EventMessageStart opens a streamed turn and carries the message
	// ID and model name.
	EventMessageStart StreamEventType = "message_start"

	// EventTextDelta carries an incremental text fragment.
	EventTextDelta StreamEventType = "text_delta"

	// EventToolUseStart announces a tool_use content block. The
	// ToolUse payload has ID and Name; its Input accumulates from
	// subsequent EventInputJSONDelta events.
	EventToolUseStart StreamEventType = "tool_use_start"

	// EventInputJSONDelta carries a fragment of a tool_use block's
	// input JSON.
	EventInputJSONDelta StreamEventType = "input_json_delta"

	// EventContentBlockDone closes a content block and carries the
	// fully assembled block.
	EventContentBlockDone StreamEventType = "content_block_done"

	// EventMessageDelta carries the stop reason and output token
	// count for the turn.
	EventMessageDelta StreamEventType = "message_delta"

	// EventDone marks the end of the stream.
	EventDone StreamEventType = "done"

	// EventPing is a provider heartbeat. Inert.
	EventPing StreamEventType = "ping"

	// EventError is an in-stream error reported by the provider.
	EventError StreamEventType = "error"
)

// StreamEvent is one structured event decoded from a streaming
// response. Fields beyond Type are populated per event type; see the
// StreamEventType constants. StreamEvents are transient — consumed by
// the caller's streaming loop and discarded.
type StreamEvent struct {
	Type StreamEventType

	// Index is the content block index for block-scoped events
	// (tool_use_start, input_json_delta, content_block_done).
	Index int

	// MessageID and Model are set on message_start.
	MessageID string
	Model     string

	// Text is the fragment for text_delta.
	Text string

	// ToolUse is set on tool_use_start (ID and Name only).
	ToolUse *ToolUse

	// PartialJSON is the fragment for input_json_delta.
	PartialJSON string

	// ContentBlock is the assembled block for content_block_done.
	ContentBlock ContentBlock

	// StopReason and OutputTokens are set on message_delta.
	StopReason   StopReason
	OutputTokens int64

	// Error is set on error events.
	Error error
}

// TextBlock creates a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentText, Text: text}
}

// ToolUseBlock creates a tool_use content block.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{
		Type:    ContentToolUse,
		ToolUse: &ToolUse{ID: id, Name: name, Input: input},
	}
}

// ToolResultBlock creates a tool_result content block.
func ToolResultBlock(result ToolResult) ContentBlock {
	return ContentBlock{Type: ContentToolResult, ToolResult: &result}
}

// ImageBlock creates an image content block from base64 data.
func ImageBlock(mediaType, data string) ContentBlock {
	return ContentBlock{
		Type:  ContentImage,
		Image: &Image{MediaType: mediaType, Data: data},
	}
}

// UserMessage creates a user message with a single text block.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// AssistantMessage creates an assistant message with a single text block.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{TextBlock(text)}}
}

// ToolResultMessage creates the user-role message that answers a
// round's tool requests: one tool_result block per result, in the
// order given.
func ToolResultMessage(results ...ToolResult) Message {
	message := Message{Role: RoleUser}
	for _, result := range results {
		message.Content = append(message.Content, ToolResultBlock(result))
	}
	return message
}

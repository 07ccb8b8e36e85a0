// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// anthropicVersion is the API version header value the Messages API
// requires on every request.
const anthropicVersion = "2023-06-01"

// DefaultAnthropicBaseURL is the production Messages API host.
const DefaultAnthropicBaseURL = "https://api.anthropic.com"

// Anthropic implements [Provider] for the Anthropic Messages API
// (POST {baseURL}/v1/messages). Authentication and versioning travel
// as x-api-key and anthropic-version headers on each request.
type Anthropic struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewAnthropic creates an Anthropic provider. A nil httpClient uses
// http.DefaultClient; an empty baseURL uses the production host.
// Transport concerns beyond a plain client (retry, proxying) belong
// to the injected httpClient.
func NewAnthropic(httpClient *http.Client, baseURL, apiKey string) *Anthropic {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultAnthropicBaseURL
	}
	return &Anthropic{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// Complete sends a non-streaming request and returns the full response.
func (provider *Anthropic) Complete(ctx context.Context, request Request) (*Response, error) {
	wireRequest := provider.buildRequest(request, false)

	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		provider.endpoint(), provider.headers(), wireRequest, "llm/anthropic", false)
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	var wireResponse anthropicResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wireResponse); err != nil {
		return nil, fmt.Errorf("llm/anthropic: decoding response: %w (%w)", err, ErrInvalidResponse)
	}

	return wireResponse.toResponse(), nil
}

// Stream sends a streaming request and returns an [EventStream].
func (provider *Anthropic) Stream(ctx context.Context, request Request) (*EventStream, error) {
	wireRequest := provider.buildRequest(request, true)

	httpResponse, err := doProviderRequest(ctx, provider.httpClient,
		provider.endpoint(), provider.headers(), wireRequest, "llm/anthropic", true)
	if err != nil {
		return nil, err
	}

	return provider.newEventStream(httpResponse.Body), nil
}

func (provider *Anthropic) endpoint() string {
	return provider.baseURL + "/v1/messages"
}

func (provider *Anthropic) headers() map[string]string {
	return map[string]string{
		"x-api-key":         provider.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

// buildRequest converts our types to the Messages API wire format.
func (provider *Anthropic) buildRequest(request Request, stream bool) anthropicRequest {
	wireRequest := anthropicRequest{
		Model:     request.Model,
		MaxTokens: request.MaxTokens,
		Stream:    stream,
	}

	if request.System != "" {
		wireRequest.System = request.System
	}
	if request.Temperature != nil {
		wireRequest.Temperature = request.Temperature
	}
	if len(request.StopSequences) > 0 {
		wireRequest.StopSequences = request.StopSequences
	}

	for _, message := range request.Messages {
		wireRequest.Messages = append(wireRequest.Messages, toAnthropicMessage(message))
	}

	for _, tool := range request.Tools {
		wireRequest.Tools = append(wireRequest.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}

	return wireRequest
}

// newEventStream wraps the SSE body in an EventStream that decodes
// Messages API streaming frames into [StreamEvent] values.
//
// Frames whose JSON fails to parse, or whose event name is unknown,
// are skipped rather than failing the stream: the provider may add
// event types at any time, and one garbled frame should not kill a
// conversation.
func (provider *Anthropic) newEventStream(body io.ReadCloser) *EventStream {
	sseScanner := NewSSEScanner(body)

	// Partial per-index state for content blocks being assembled.
	// content_block_start creates an entry, deltas append, and
	// content_block_stop finalizes the block.
	var partialBlocks []anthropicPartialBlock

	stream := NewEventStream(nil, body)

	stream.next = func() (StreamEvent, error) {
		for {
			if !sseScanner.Next() {
				if err := sseScanner.Err(); err != nil {
					return StreamEvent{}, fmt.Errorf("llm/anthropic: reading SSE: %w", err)
				}
				return StreamEvent{}, io.EOF
			}

			sseFrame := sseScanner.Frame()

			switch sseFrame.Event {
			case "message_start":
				var envelope struct {
					Message struct {
						ID    string         `json:"id"`
						Model string         `json:"model"`
						Usage anthropicUsage `json:"usage"`
					} `json:"message"`
				}
				if json.Unmarshal([]byte(sseFrame.Data), &envelope) != nil {
					continue
				}
				stream.SetMessageID(envelope.Message.ID)
				stream.SetModel(envelope.Message.Model)
				stream.SetUsage(Usage{InputTokens: envelope.Message.Usage.InputTokens})
				return StreamEvent{
					Type:      EventMessageStart,
					MessageID: envelope.Message.ID,
					Model:     envelope.Message.Model,
				}, nil

			case "content_block_start":
				var envelope struct {
					Index        int `json:"index"`
					ContentBlock struct {
						Type string `json:"type"`
						ID   string `json:"id"`
						Name string `json:"name"`
					} `json:"content_block"`
				}
				if json.Unmarshal([]byte(sseFrame.Data), &envelope) != nil {
					continue
				}
				for len(partialBlocks) <= envelope.Index {
					partialBlocks = append(partialBlocks, anthropicPartialBlock{})
				}
				partialBlocks[envelope.Index] = anthropicPartialBlock{
					blockType: envelope.ContentBlock.Type,
					toolUseID: envelope.ContentBlock.ID,
					toolName:  envelope.ContentBlock.Name,
				}
				if envelope.ContentBlock.Type == "tool_use" {
					return StreamEvent{
						Type:  EventToolUseStart,
						Index: envelope.Index,
						ToolUse: &ToolUse{
							ID:   envelope.ContentBlock.ID,
							Name: envelope.ContentBlock.Name,
						},
					}, nil
				}
				continue

			case "content_block_delta":
				var envelope struct {
					Index int `json:"index"`
					Delta struct {
						Type        string `json:"type"`
						Text        string `json:"text"`
						PartialJSON string `json:"partial_json"`
					} `json:"delta"`
				}
				if json.Unmarshal([]byte(sseFrame.Data), &envelope) != nil {
					continue
				}
				if envelope.Index >= len(partialBlocks) {
					continue
				}
				block := &partialBlocks[envelope.Index]
				switch envelope.Delta.Type {
				case "text_delta":
					block.textContent.WriteString(envelope.Delta.Text)
					return StreamEvent{
						Type:  EventTextDelta,
						Index: envelope.Index,
						Text:  envelope.Delta.Text,
					}, nil
				case "input_json_delta":
					block.inputJSON.WriteString(envelope.Delta.PartialJSON)
					return StreamEvent{
						Type:        EventInputJSONDelta,
						Index:       envelope.Index,
						PartialJSON: envelope.Delta.PartialJSON,
					}, nil
				}
				continue

			case "content_block_stop":
				var envelope struct {
					Index int `json:"index"`
				}
				if json.Unmarshal([]byte(sseFrame.Data), &envelope) != nil {
					continue
				}
				if envelope.Index >= len(partialBlocks) {
					continue
				}
				return StreamEvent{
					Type:         EventContentBlockDone,
					Index:        envelope.Index,
					ContentBlock: partialBlocks[envelope.Index].toContentBlock(),
				}, nil

			case "message_delta":
				var envelope struct {
					Delta struct {
						StopReason string `json:"stop_reason"`
					} `json:"delta"`
					Usage struct {
						OutputTokens int64 `json:"output_tokens"`
					} `json:"usage"`
				}
				if json.Unmarshal([]byte(sseFrame.Data), &envelope) != nil {
					continue
				}
				stopReason := mapAnthropicStopReason(envelope.Delta.StopReason)
				stream.SetStopReason(stopReason)
				stream.AddOutputTokens(envelope.Usage.OutputTokens)
				return StreamEvent{
					Type:         EventMessageDelta,
					StopReason:   stopReason,
					OutputTokens: envelope.Usage.OutputTokens,
				}, nil

			case "message_stop":
				return StreamEvent{Type: EventDone}, nil

			case "ping":
				return StreamEvent{Type: EventPing}, nil

			case "error":
				var envelope struct {
					Error struct {
						Type    string `json:"type"`
						Message string `json:"message"`
					} `json:"error"`
				}
				if json.Unmarshal([]byte(sseFrame.Data), &envelope) == nil && envelope.Error.Message != "" {
					return StreamEvent{
						Type:  EventError,
						Error: fmt.Errorf("llm/anthropic: stream error: %s: %s", envelope.Error.Type, envelope.Error.Message),
					}, nil
				}
				return StreamEvent{
					Type:  EventError,
					Error: fmt.Errorf("llm/anthropic: stream error: %s", sseFrame.Data),
				}, nil

			default:
				// Unknown frame types are skipped.
				continue
			}
		}
	}

	return stream
}

// --- Anthropic wire types ---
//
// These map directly to the Messages API JSON format. They stay
// separate from the public types because the wire format uses
// snake_case and represents content as a single-level discriminated
// union keyed by "type".

type anthropicRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	Tools         []anthropicTool    `json:"tools,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Temperature   *float64           `json:"temperature,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
}

// anthropicMessage carries content as either a bare string (for a
// message that is exactly one text block — the compact form the API
// accepts) or a []anthropicContentBlock.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicContentBlock struct {
	Type      string                `json:"type"`
	Text      string                `json:"text,omitempty"`
	ID        string                `json:"id,omitempty"`
	Name      string                `json:"name,omitempty"`
	Input     json.RawMessage       `json:"input,omitempty"`
	ToolUseID string                `json:"tool_use_id,omitempty"`
	Content   json.RawMessage       `json:"content,omitempty"`
	IsError   bool                  `json:"is_error,omitempty"`
	Source    *anthropicImageSource `json:"source,omitempty"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// anthropicPartialBlock is a content block mid-assembly during
// streaming.
type anthropicPartialBlock struct {
	blockType   string
	textContent strings.Builder
	inputJSON   strings.Builder
	toolUseID   string
	toolName    string
}

func (block *anthropicPartialBlock) toContentBlock() ContentBlock {
	switch block.blockType {
	case "text":
		return TextBlock(block.textContent.String())
	case "tool_use":
		// Tool input accumulated from partial_json fragments may be
		// incomplete if the stream was cut short. An unusable
		// accumulation degrades to an empty input object so the tool
		// call itself survives to validation.
		input := json.RawMessage(block.inputJSON.String())
		if !json.Valid(input) || len(input) == 0 {
			input = json.RawMessage("{}")
		}
		return ToolUseBlock(block.toolUseID, block.toolName, input)
	default:
		// Unknown block types are preserved as text with a type prefix.
		return TextBlock(fmt.Sprintf("[%s] %s", block.blockType, block.textContent.String()))
	}
}

// --- Wire type conversions ---

func toAnthropicMessage(message Message) anthropicMessage {
	wire := anthropicMessage{Role: string(message.Role)}

	// A message that is exactly one text block serializes as a bare
	// string for compactness.
	if len(message.Content) == 1 && message.Content[0].Type == ContentText {
		wire.Content = message.Content[0].Text
		return wire
	}

	blocks := make([]anthropicContentBlock, 0, len(message.Content))
	for _, block := range message.Content {
		blocks = append(blocks, toAnthropicContentBlock(block))
	}
	wire.Content = blocks
	return wire
}

func toAnthropicContentBlock(block ContentBlock) anthropicContentBlock {
	switch block.Type {
	case ContentText:
		return anthropicContentBlock{Type: "text", Text: block.Text}
	case ContentToolUse:
		if block.ToolUse != nil {
			return anthropicContentBlock{
				Type:  "tool_use",
				ID:    block.ToolUse.ID,
				Name:  block.ToolUse.Name,
				Input: block.ToolUse.Input,
			}
		}
	case ContentToolResult:
		if block.ToolResult != nil {
			// The wire format carries tool result content as a JSON
			// value; marshal the string so quoting is correct.
			contentJSON, _ := json.Marshal(block.ToolResult.Content)
			return anthropicContentBlock{
				Type:      "tool_result",
				ToolUseID: block.ToolResult.ToolUseID,
				Content:   contentJSON,
				IsError:   block.ToolResult.IsError,
			}
		}
	case ContentImage:
		if block.Image != nil {
			return anthropicContentBlock{
				Type: "image",
				Source: &anthropicImageSource{
					Type:      "base64",
					MediaType: block.Image.MediaType,
					Data:      block.Image.Data,
				},
			}
		}
	}
	return anthropicContentBlock{Type: string(block.Type)}
}

func (wireResponse *anthropicResponse) toResponse() *Response {
	response := &Response{
		ID:         wireResponse.ID,
		Model:      wireResponse.Model,
		StopReason: mapAnthropicStopReason(wireResponse.StopReason),
		Usage: Usage{
			InputTokens:  wireResponse.Usage.InputTokens,
			OutputTokens: wireResponse.Usage.OutputTokens,
		},
	}
	for _, wireBlock := range wireResponse.Content {
		response.Content = append(response.Content, fromAnthropicContentBlock(wireBlock))
	}
	return response
}

func fromAnthropicContentBlock(wire anthropicContentBlock) ContentBlock {
	switch wire.Type {
	case "text":
		return TextBlock(wire.Text)
	case "tool_use":
		return ToolUseBlock(wire.ID, wire.Name, wire.Input)
	default:
		return TextBlock(fmt.Sprintf("[%s] %s", wire.Type, wire.Text))
	}
}

func mapAnthropicStopReason(reason string) StopReason {
	switch reason {
	case "end_turn":
		return StopReasonEndTurn
	case "tool_use":
		return StopReasonToolUse
	case "max_tokens":
		return StopReasonMaxTokens
	case "stop_sequence":
		return StopReasonStopSequence
	default:
		return StopReason(reason)
	}
}

// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrInvalidResponse marks a 2xx response whose body could not be
// decoded. Wire decode failures are never papered over with a zero
// Response — callers must be able to tell "the model said nothing"
// from "we could not read what the model said".
var ErrInvalidResponse = errors.New("llm: invalid response body")

// Provider is the interface for LLM API backends. Implementations
// translate between the common types in this package and the
// vendor's wire format.
type Provider interface {
	// Complete sends a request and blocks until the full response is
	// available.
	Complete(ctx context.Context, request Request) (*Response, error)

	// Stream sends a request and returns an [EventStream] yielding
	// events as they arrive. The caller must call [EventStream.Close]
	// when done, even if iteration ended early.
	Stream(ctx context.Context, request Request) (*EventStream, error)
}

// nextFunc is the iteration function for an EventStream. Returns
// io.EOF when the stream is complete.
type nextFunc func() (StreamEvent, error)

// EventStream reads streaming events from a model response. It
// yields [StreamEvent] values via [Next] while accumulating the
// complete [Response] internally; after Next returns [io.EOF], call
// [EventStream.Response] for the assembled result.
//
// EventStream is not safe for concurrent use.
type EventStream struct {
	next     nextFunc
	closer   io.Closer
	response Response
	done     bool
}

// NewEventStream creates an EventStream from a provider-specific
// iteration function and a closer for the underlying resource
// (typically the HTTP response body).
//
// The next function returns (event, nil) per event and (zero, io.EOF)
// at end of stream. Accumulation of the complete Response happens
// here, not in the provider.
func NewEventStream(next nextFunc, closer io.Closer) *EventStream {
	return &EventStream{next: next, closer: closer}
}

// Next returns the next event. Returns io.EOF when the stream is
// complete; any other error means the stream is broken and no further
// events will arrive.
func (stream *EventStream) Next() (StreamEvent, error) {
	if stream.done {
		return StreamEvent{}, io.EOF
	}

	event, err := stream.next()
	if err != nil {
		if err == io.EOF {
			stream.done = true
		}
		return event, err
	}

	stream.accumulate(event)
	return event, nil
}

// Response returns the accumulated response. Complete only after
// [Next] has returned io.EOF; before that it holds whatever has been
// assembled so far.
func (stream *EventStream) Response() Response {
	return stream.response
}

// Close releases the underlying resources. Must be called when done
// with the stream, even if iteration ended early.
func (stream *EventStream) Close() error {
	if stream.closer != nil {
		return stream.closer.Close()
	}
	return nil
}

// accumulate folds one event into the assembled response. Stop
// reason, usage, and identity arrive through the Set methods called
// by the provider's next function.
func (stream *EventStream) accumulate(event StreamEvent) {
	if event.Type == EventContentBlockDone {
		stream.response.Content = append(stream.response.Content, event.ContentBlock)
	}
}

// SetMessageID records the message ID on the accumulated response.
// Called by provider implementations during stream parsing.
func (stream *EventStream) SetMessageID(id string) {
	stream.response.ID = id
}

// SetModel records the model name on the accumulated response.
func (stream *EventStream) SetModel(model string) {
	stream.response.Model = model
}

// SetStopReason records the stop reason on the accumulated response.
func (stream *EventStream) SetStopReason(reason StopReason) {
	stream.response.StopReason = reason
}

// SetUsage records usage on the accumulated response.
func (stream *EventStream) SetUsage(usage Usage) {
	stream.response.Usage = usage
}

// AddOutputTokens increments the output token count. The Anthropic
// message_delta event carries only output_tokens, incrementally.
func (stream *EventStream) AddOutputTokens(count int64) {
	stream.response.Usage.OutputTokens += count
}

// ProviderError is returned when the model API responds with a
// non-2xx status.
type ProviderError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Type is the provider's error type string
	// (e.g., "authentication_error", "rate_limit_error").
	Type string

	// Message is the human-readable error description.
	Message string
}

func (err *ProviderError) Error() string {
	if err.Type != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Type, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsUnauthorized reports whether the error is an authentication
// failure (HTTP 401).
func (err *ProviderError) IsUnauthorized() bool {
	return err.StatusCode == http.StatusUnauthorized
}

// IsRateLimited reports whether the error is a rate limit response
// (HTTP 429).
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// IsServerError reports whether the error is a server-side failure
// (HTTP 5xx).
func (err *ProviderError) IsServerError() bool {
	return err.StatusCode >= 500
}

// doProviderRequest marshals wireRequest as JSON, POSTs it to
// endpoint with the given headers, and returns the HTTP response.
// Non-2xx statuses return a *ProviderError. When streaming, the
// Accept header asks for text/event-stream.
//
// On success the caller owns the response body; on error it is
// already closed.
func doProviderRequest(ctx context.Context, httpClient *http.Client, endpoint string, headers map[string]string, wireRequest any, prefix string, streaming bool) (*http.Response, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost,
		endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	if streaming {
		httpRequest.Header.Set("Accept", "text/event-stream")
	}
	for name, value := range headers {
		httpRequest.Header.Set(name, value)
	}

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}

	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		defer httpResponse.Body.Close()
		return nil, readProviderError(httpResponse)
	}

	return httpResponse, nil
}

// readProviderError parses an error response body in the
// {"error":{"type":"...","message":"..."}} format shared by Anthropic
// and compatible APIs. Bodies that don't match still produce a
// ProviderError carrying the raw text, so the status code is never
// lost.
func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Type:       wireError.Error.Type,
			Message:    wireError.Error.Message,
		}
	}

	return &ProviderError{
		StatusCode: httpResponse.StatusCode,
		Message:    string(body),
	}
}

// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrCancelled is returned when a call was torn down by [Client.Abort].
// It is distinct from generic context cancellation so callers can tell
// a deliberate abort from an unrelated cause (parent deadline, shutdown).
var ErrCancelled = errors.New("llm: call cancelled")

// Client wraps a [Provider] with cancellation of the most recently
// started call. Send and SendStreaming run the underlying provider
// call under a child context whose cancel handle the client retains;
// [Client.Abort] fires that handle, and the interrupted call fails
// with [ErrCancelled] rather than a bare context error.
//
// One call may be in flight at a time per Client; starting a new call
// replaces the retained handle.
type Client struct {
	provider Provider

	mutex          sync.Mutex
	cancelInFlight context.CancelFunc
	aborted        bool
}

// NewClient wraps provider in an abortable client.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Send issues a blocking completion call.
func (client *Client) Send(ctx context.Context, request Request) (*Response, error) {
	callCtx := client.beginCall(ctx)
	defer client.endCall()

	response, err := client.provider.Complete(callCtx, request)
	if err != nil {
		if client.abortedThisCall(callCtx) {
			return nil, ErrCancelled
		}
		return nil, err
	}
	return response, nil
}

// SendStreaming issues a streaming call. The retained cancel handle
// covers the whole life of the returned stream: Abort during
// iteration makes the next [EventStream.Next] return [ErrCancelled].
// Closing the stream releases the handle.
func (client *Client) SendStreaming(ctx context.Context, request Request) (*EventStream, error) {
	callCtx := client.beginCall(ctx)

	stream, err := client.provider.Stream(callCtx, request)
	if err != nil {
		client.endCall()
		if client.abortedThisCall(callCtx) {
			return nil, ErrCancelled
		}
		return nil, err
	}

	// Rewrap the stream's iteration and close paths so abort maps to
	// ErrCancelled and closing ends the call.
	innerNext := stream.next
	stream.next = func() (StreamEvent, error) {
		event, err := innerNext()
		if err != nil && err != io.EOF && client.abortedThisCall(callCtx) {
			return event, ErrCancelled
		}
		return event, err
	}
	innerCloser := stream.closer
	stream.closer = closeFunc(func() error {
		client.endCall()
		if innerCloser != nil {
			return innerCloser.Close()
		}
		return nil
	})

	return stream, nil
}

// Abort cancels the in-flight call, if any. The interrupted call
// fails with [ErrCancelled]. Abort on an idle client is a no-op for
// the next call — each call starts with a clean abort state.
func (client *Client) Abort() {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	if client.cancelInFlight != nil {
		client.aborted = true
		client.cancelInFlight()
	}
}

// beginCall derives the per-call context, retains its cancel handle,
// and clears the abort flag.
func (client *Client) beginCall(ctx context.Context) context.Context {
	callCtx, cancel := context.WithCancel(ctx)
	client.mutex.Lock()
	defer client.mutex.Unlock()
	client.cancelInFlight = cancel
	client.aborted = false
	return callCtx
}

// endCall releases the retained cancel handle.
func (client *Client) endCall() {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	if client.cancelInFlight != nil {
		client.cancelInFlight()
		client.cancelInFlight = nil
	}
}

// abortedThisCall reports whether the call running under callCtx was
// torn down by Abort (as opposed to failing for an unrelated reason).
func (client *Client) abortedThisCall(callCtx context.Context) bool {
	client.mutex.Lock()
	defer client.mutex.Unlock()
	return client.aborted && callCtx.Err() != nil
}

// closeFunc adapts a function to io.Closer.
type closeFunc func() error

func (close closeFunc) Close() error {
	return close()
}

// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"io"

	"github.com/aegis-foundation/aegis/lib/llm"
)

// ProcessStreaming runs the round loop like [Orchestrator.Process],
// additionally feeding live progress — text deltas, tool starts and
// completions — through the given sink as the model produces them.
// A nil sink degrades to Process.
func (orchestrator *Orchestrator) ProcessStreaming(ctx context.Context, text string, progress ProgressSink) (*Result, error) {
	if progress == nil {
		return orchestrator.run(ctx, text, nopProgress{}, false)
	}
	return orchestrator.run(ctx, text, progress, true)
}

// streamRound issues one streaming model call, forwarding text
// deltas to the progress sink and returning the accumulated response
// once the stream ends.
func (orchestrator *Orchestrator) streamRound(ctx context.Context, request llm.Request, progress ProgressSink) (*llm.Response, error) {
	stream, err := orchestrator.client.SendStreaming(ctx, request)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	for {
		event, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch event.Type {
		case llm.EventTextDelta:
			progress.TextDelta(event.Text)
		case llm.EventError:
			return nil, fmt.Errorf("stream error: %w", event.Error)
		}
	}

	response := stream.Response()
	if len(response.Content) == 0 && response.StopReason == "" {
		return nil, ErrNoResponse
	}
	return &response, nil
}

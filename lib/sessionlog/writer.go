// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/aegis-foundation/aegis/lib/llm"
	"github.com/aegis-foundation/aegis/lib/orchestrator"
	"github.com/aegis-foundation/aegis/lib/policy"
)

// Writer writes session entries as JSONL (one JSON object per line)
// to a log file, maintaining the chain hash and aggregated summary
// counters. It implements [orchestrator.SessionSink] and is safe for
// concurrent use.
//
// Sink methods cannot return errors, so write failures are logged
// and counted; [Writer.Err] reports the first one.
type Writer struct {
	file     *os.File
	encoder  *json.Encoder
	logger   *slog.Logger
	mutex    sync.Mutex
	closed   bool
	previous Hash
	firstErr error

	// Aggregated summary counters, protected by mutex.
	startTime     time.Time
	entryCount    int64
	inputTokens   int64
	outputTokens  int64
	toolCallCount int64
	denialCount   int64
	errorCount    int64
	roundCount    int64
}

// NewWriter creates a new session log file and returns a writer. The
// file is created (or truncated) at the given path. A nil logger
// discards diagnostics.
func NewWriter(path string, logger *slog.Logger) (*Writer, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating session log %q: %w", path, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	encoder := json.NewEncoder(file)
	// No indentation — one compact JSON object per line.
	encoder.SetEscapeHTML(false)
	return &Writer{
		file:      file,
		encoder:   encoder,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// Write appends a single entry to the session log, filling in its
// timestamp and chain hash, and updates summary counters.
func (writer *Writer) Write(entry Entry) error {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	return writer.writeLocked(entry)
}

func (writer *Writer) writeLocked(entry Entry) error {
	if writer.closed {
		return fmt.Errorf("session log is closed")
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	payload, err := chainPayload(entry)
	if err != nil {
		return err
	}
	link := chainHash(writer.previous, payload)
	entry.Chain = hex.EncodeToString(link[:])

	if err := writer.encoder.Encode(entry); err != nil {
		return fmt.Errorf("encoding session log entry: %w", err)
	}

	// Sync after each write so entries survive a crash. The cost is
	// acceptable for session logs, which see at most tens of entries
	// per second.
	if err := writer.file.Sync(); err != nil {
		return fmt.Errorf("syncing session log: %w", err)
	}

	writer.previous = link
	writer.entryCount++

	switch entry.Kind {
	case KindThinking:
		writer.roundCount++
	case KindToolCall:
		writer.toolCallCount++
	case KindToolDenied, KindToolRejected:
		writer.denialCount++
	case KindToolResult:
		if entry.ToolResult != nil && entry.ToolResult.IsError {
			writer.errorCount++
		}
	case KindMetrics:
		if entry.Metrics != nil {
			writer.inputTokens += entry.Metrics.InputTokens
			writer.outputTokens += entry.Metrics.OutputTokens
		}
	}

	return nil
}

// record is the sink-method path: it writes and swallows the error,
// keeping the first failure for [Writer.Err].
func (writer *Writer) record(entry Entry) {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	if err := writer.writeLocked(entry); err != nil {
		if writer.firstErr == nil {
			writer.firstErr = err
		}
		writer.logger.Error("session log write failed", "kind", entry.Kind, "error", err)
	}
}

// Err returns the first write failure encountered by the sink
// methods, or nil.
func (writer *Writer) Err() error {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	return writer.firstErr
}

// Close flushes any buffered data and closes the underlying file.
// Close is idempotent — calling it more than once returns nil.
func (writer *Writer) Close() error {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	if writer.closed {
		return nil
	}
	writer.closed = true
	return writer.file.Close()
}

// Summary is an aggregated summary of the session log.
type Summary struct {
	EntryCount    int64         `json:"entry_count"`
	InputTokens   int64         `json:"input_tokens"`
	OutputTokens  int64         `json:"output_tokens"`
	ToolCallCount int64         `json:"tool_call_count"`
	DenialCount   int64         `json:"denial_count"`
	ErrorCount    int64         `json:"error_count"`
	RoundCount    int64         `json:"round_count"`
	Duration      time.Duration `json:"duration"`
}

// Summary returns an aggregated summary of all entries written so far.
func (writer *Writer) Summary() Summary {
	writer.mutex.Lock()
	defer writer.mutex.Unlock()
	return Summary{
		EntryCount:    writer.entryCount,
		InputTokens:   writer.inputTokens,
		OutputTokens:  writer.outputTokens,
		ToolCallCount: writer.toolCallCount,
		DenialCount:   writer.denialCount,
		ErrorCount:    writer.errorCount,
		RoundCount:    writer.roundCount,
		Duration:      time.Since(writer.startTime),
	}
}

// orchestrator.SessionSink implementation.

func (writer *Writer) UserMessage(text string) {
	writer.record(Entry{
		Kind:        KindUserMessage,
		UserMessage: &UserMessageEntry{Content: text},
	})
}

func (writer *Writer) ThinkingStarted(round int) {
	writer.record(Entry{
		Kind:     KindThinking,
		Thinking: &ThinkingEntry{Round: round},
	})
}

func (writer *Writer) ToolCall(call llm.ToolUse) {
	writer.record(Entry{
		Kind: KindToolCall,
		ToolCall: &ToolCallEntry{
			ID:    call.ID,
			Name:  call.Name,
			Input: call.Input,
		},
	})
}

func (writer *Writer) ToolResult(result llm.ToolResult) {
	writer.record(Entry{
		Kind: KindToolResult,
		ToolResult: &ToolResultEntry{
			ID:      result.ToolUseID,
			IsError: result.IsError,
			Output:  result.Content,
		},
	})
}

func (writer *Writer) ToolDenied(call llm.ToolUse, violations []policy.Violation) {
	rendered := make([]string, 0, len(violations))
	for _, violation := range violations {
		rendered = append(rendered, violation.String())
	}
	writer.record(Entry{
		Kind: KindToolDenied,
		ToolDenied: &ToolDeniedEntry{
			ID:         call.ID,
			Name:       call.Name,
			Violations: rendered,
		},
	})
}

func (writer *Writer) ToolRejected(call llm.ToolUse) {
	writer.record(Entry{
		Kind:         KindToolRejected,
		ToolRejected: &ToolRejectedEntry{ID: call.ID, Name: call.Name},
	})
}

func (writer *Writer) AssistantText(text string) {
	writer.record(Entry{
		Kind:          KindAssistantText,
		AssistantText: &AssistantTextEntry{Content: text},
	})
}

func (writer *Writer) Metrics(result orchestrator.Result) {
	writer.record(Entry{
		Kind: KindMetrics,
		Metrics: &MetricsEntry{
			Rounds:              result.RoundCount,
			ToolsUsed:           result.ToolsUsed,
			ErrorCount:          result.ErrorCount,
			InputTokens:         result.Usage.InputTokens,
			OutputTokens:        result.Usage.OutputTokens,
			ElapsedMilliseconds: result.Elapsed.Milliseconds(),
		},
	})
}

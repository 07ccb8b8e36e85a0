// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aegis-foundation/aegis/lib/llm"
	"github.com/aegis-foundation/aegis/lib/policy"
	"github.com/aegis-foundation/aegis/lib/tool"
)

// Defaults applied by [New] when the corresponding option is zero.
const (
	DefaultMaxRounds = 25
	DefaultTimeout   = 300 * time.Second
)

// ConfirmFunc asks the operator to approve a confirmation-gated tool
// call. It returns true to execute the call. An error counts as a
// rejection.
type ConfirmFunc func(ctx context.Context, call llm.ToolUse) (bool, error)

// Options configures an [Orchestrator].
type Options struct {
	// Model is the model identifier passed on every request.
	Model string

	// MaxTokens caps the model's output per round.
	MaxTokens int

	// SystemPrompt is sent as the system block of every request.
	SystemPrompt string

	// MaxRounds caps the number of model calls per Process call.
	// Zero means [DefaultMaxRounds].
	MaxRounds int

	// Timeout is the wall-clock budget for a whole Process call,
	// spanning every round and tool execution. Zero means
	// [DefaultTimeout].
	Timeout time.Duration

	// Confirm approves confirmation-gated tool calls. When nil,
	// every gated call is rejected: a headless deployment with no
	// confirmation channel must not silently auto-approve.
	Confirm ConfirmFunc

	// Session receives the durable conversation record. Nil means
	// no recording.
	Session SessionSink

	// Logger receives operational logging. Nil means discard.
	Logger *slog.Logger
}

// Orchestrator drives the round-based conversation loop: send the
// history to the model, execute whatever tools it requests under the
// policy engine, fold the results back into the history, and repeat
// until the model answers in prose or a limit trips.
//
// One Orchestrator holds one conversation. Process and
// ProcessStreaming must not be called concurrently with each other;
// Abort, Reset, and the context-lock accessors are safe from any
// goroutine.
type Orchestrator struct {
	client   *llm.Client
	registry *tool.Registry
	policy   *policy.Engine
	options  Options
	session  SessionSink
	logger   *slog.Logger

	mutex       sync.Mutex
	history     []llm.Message
	contextLock *ContextLock
	aborted     bool
	cancelRun   context.CancelFunc
}

// New returns an orchestrator over the given model client, tool
// registry, and policy engine.
func New(client *llm.Client, registry *tool.Registry, engine *policy.Engine, options Options) *Orchestrator {
	if options.MaxRounds <= 0 {
		options.MaxRounds = DefaultMaxRounds
	}
	if options.Timeout <= 0 {
		options.Timeout = DefaultTimeout
	}
	session := options.Session
	if session == nil {
		session = nopSession{}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		client:   client,
		registry: registry,
		policy:   engine,
		options:  options,
		session:  session,
		logger:   logger,
	}
}

// Process runs the round loop for one user message and returns the
// final result. It blocks until the model answers in prose, the
// round or time budget trips, or the call is aborted.
func (orchestrator *Orchestrator) Process(ctx context.Context, text string) (*Result, error) {
	return orchestrator.run(ctx, text, nopProgress{}, false)
}

// Abort tears down the in-flight Process call, if any. The call
// returns [ErrCancelled]. Abort on an idle orchestrator is a no-op.
func (orchestrator *Orchestrator) Abort() {
	orchestrator.mutex.Lock()
	orchestrator.aborted = true
	cancel := orchestrator.cancelRun
	orchestrator.mutex.Unlock()
	if cancel != nil {
		cancel()
	}
	orchestrator.client.Abort()
}

// Reset discards the conversation history. The context lock, policy
// settings, and registry are untouched.
func (orchestrator *Orchestrator) Reset() {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	orchestrator.history = nil
}

// History returns a copy of the conversation history.
func (orchestrator *Orchestrator) History() []llm.Message {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	history := make([]llm.Message, len(orchestrator.history))
	copy(history, orchestrator.history)
	return history
}

// run is the shared harness under Process and ProcessStreaming. The
// round loop runs on a worker goroutine; run races it against the
// wall-clock budget and the caller's context, and always waits for
// the worker to unwind before returning so no goroutine outlives the
// call.
func (orchestrator *Orchestrator) run(ctx context.Context, text string, progress ProgressSink, streaming bool) (*Result, error) {
	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	orchestrator.mutex.Lock()
	orchestrator.aborted = false
	orchestrator.cancelRun = cancel
	orchestrator.mutex.Unlock()
	defer func() {
		orchestrator.mutex.Lock()
		orchestrator.cancelRun = nil
		orchestrator.mutex.Unlock()
	}()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := orchestrator.runRounds(runCtx, text, progress, streaming)
		done <- outcome{result: result, err: err}
	}()

	timer := time.NewTimer(orchestrator.options.Timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, orchestrator.mapRunError(out.err)
		}
		out.result.Elapsed = time.Since(start)
		orchestrator.session.Metrics(*out.result)
		progress.Completed(*out.result)
		return out.result, nil
	case <-timer.C:
		cancel()
		<-done // every await in the worker honors runCtx, so this is bounded
		if orchestrator.wasAborted() {
			return nil, ErrCancelled
		}
		return nil, ErrTimeout
	case <-ctx.Done():
		cancel()
		<-done
		if orchestrator.wasAborted() {
			return nil, ErrCancelled
		}
		return nil, ctx.Err()
	}
}

// mapRunError folds worker errors caused by an abort into the
// distinguished [ErrCancelled]; everything else passes through.
func (orchestrator *Orchestrator) mapRunError(err error) error {
	if orchestrator.wasAborted() {
		return ErrCancelled
	}
	return err
}

func (orchestrator *Orchestrator) wasAborted() bool {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	return orchestrator.aborted
}

func (orchestrator *Orchestrator) appendHistory(message llm.Message) {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	orchestrator.history = append(orchestrator.history, message)
}

func (orchestrator *Orchestrator) historySnapshot() []llm.Message {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	messages := make([]llm.Message, len(orchestrator.history))
	copy(messages, orchestrator.history)
	return messages
}

// runRounds is the round loop proper. It always runs on the worker
// goroutine spawned by run.
func (orchestrator *Orchestrator) runRounds(ctx context.Context, text string, progress ProgressSink, streaming bool) (*Result, error) {
	orchestrator.appendHistory(llm.UserMessage(text))
	orchestrator.session.UserMessage(text)

	definitions := orchestrator.registry.Definitions()
	result := &Result{}
	var textParts []string

	for round := 1; round <= orchestrator.options.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		orchestrator.session.ThinkingStarted(round)
		progress.ThinkingStarted(round)
		orchestrator.logger.Debug("model round", "round", round)

		response, err := orchestrator.sendRound(ctx, definitions, progress, streaming)
		if err != nil {
			return nil, fmt.Errorf("model call failed on round %d: %w", round, err)
		}
		result.RoundCount++
		result.Usage.InputTokens += response.Usage.InputTokens
		result.Usage.OutputTokens += response.Usage.OutputTokens

		orchestrator.appendHistory(llm.Message{Role: llm.RoleAssistant, Content: response.Content})
		if prose := response.TextContent(); prose != "" {
			textParts = append(textParts, prose)
			orchestrator.session.AssistantText(prose)
		}

		toolUses := response.ToolUses()
		if len(toolUses) == 0 || response.StopReason != llm.StopReasonToolUse {
			result.Text = strings.Join(textParts, "\n")
			return result, nil
		}

		results := orchestrator.executeToolCalls(ctx, toolUses, result, progress)
		orchestrator.appendHistory(llm.ToolResultMessage(results...))
	}

	return nil, fmt.Errorf("%w: %d", ErrMaxRounds, orchestrator.options.MaxRounds)
}

// sendRound issues one model call over the current history.
func (orchestrator *Orchestrator) sendRound(ctx context.Context, definitions []llm.ToolDefinition, progress ProgressSink, streaming bool) (*llm.Response, error) {
	request := llm.Request{
		Model:     orchestrator.options.Model,
		MaxTokens: orchestrator.options.MaxTokens,
		System:    orchestrator.options.SystemPrompt,
		Messages:  orchestrator.historySnapshot(),
		Tools:     definitions,
	}

	if streaming {
		return orchestrator.streamRound(ctx, request, progress)
	}
	response, err := orchestrator.client.Send(ctx, request)
	if err != nil {
		return nil, err
	}
	if len(response.Content) == 0 && response.StopReason == "" {
		return nil, ErrNoResponse
	}
	return response, nil
}

// executeToolCalls runs the tool sub-protocol for one round: every
// requested call is evaluated against policy, confirmed if the
// decision requires it, and dispatched — and every call produces
// exactly one result, in request order, so the model always sees a
// complete accounting.
func (orchestrator *Orchestrator) executeToolCalls(ctx context.Context, calls []llm.ToolUse, result *Result, progress ProgressSink) []llm.ToolResult {
	results := make([]llm.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, orchestrator.executeToolCall(ctx, call, result, progress))
	}
	return results
}

func (orchestrator *Orchestrator) executeToolCall(ctx context.Context, call llm.ToolUse, result *Result, progress ProgressSink) llm.ToolResult {
	risk, known := orchestrator.registry.RiskLevel(call.Name)
	if !known {
		// An unregistered tool gets the most restrictive risk; if it
		// somehow clears policy, dispatch still fails it.
		risk = policy.RiskDestructive
	}

	decision, violations := orchestrator.policy.Evaluate(call.InputMap(), risk)
	switch decision {
	case policy.DecisionDeny:
		orchestrator.logger.Warn("tool call denied", "tool", call.Name, "violations", len(violations))
		orchestrator.session.ToolDenied(call, violations)
		result.ErrorCount++
		return denialResult(call, violations)
	case policy.DecisionConfirm:
		approved, err := orchestrator.awaitConfirmation(ctx, call)
		if err != nil {
			orchestrator.logger.Warn("confirmation failed", "tool", call.Name, "error", err)
			approved = false
		}
		if !approved {
			orchestrator.logger.Info("tool call rejected", "tool", call.Name)
			orchestrator.session.ToolRejected(call)
			result.ErrorCount++
			return llm.ToolResult{
				ToolUseID: call.ID,
				Content:   "rejected by user",
				IsError:   true,
			}
		}
	}

	orchestrator.session.ToolCall(call)
	progress.ToolStarted(call)
	orchestrator.logger.Info("executing tool", "tool", call.Name, "risk", risk)

	toolResult, err := orchestrator.registry.Dispatch(ctx, call)
	if err != nil {
		// Unknown tool or schema violation: report it to the model
		// as an error result rather than failing the round.
		toolResult = llm.ToolResult{
			ToolUseID: call.ID,
			Content:   err.Error(),
			IsError:   true,
		}
	} else {
		result.ToolsUsed = append(result.ToolsUsed, call.Name)
	}
	if toolResult.IsError {
		result.ErrorCount++
	}

	orchestrator.session.ToolResult(toolResult)
	progress.ToolCompleted(call, toolResult)
	return toolResult
}

// awaitConfirmation runs the confirmation callback without blocking
// cancellation: the callback runs on its own goroutine and the await
// races its answer against ctx, so a timeout or abort fires even when
// the callback never returns. A cancelled wait resolves as a
// rejection, keeping the one-result-per-call accounting intact.
func (orchestrator *Orchestrator) awaitConfirmation(ctx context.Context, call llm.ToolUse) (bool, error) {
	if orchestrator.options.Confirm == nil {
		return false, nil
	}

	type answer struct {
		approved bool
		err      error
	}
	answers := make(chan answer, 1)
	go func() {
		approved, err := orchestrator.options.Confirm(ctx, call)
		answers <- answer{approved: approved, err: err}
	}()

	select {
	case result := <-answers:
		return result.approved, result.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// denialResult renders a policy denial for the model, naming the
// sanitizer violations so it can correct the input rather than retry
// blindly.
func denialResult(call llm.ToolUse, violations []policy.Violation) llm.ToolResult {
	var builder strings.Builder
	builder.WriteString("denied by safety policy")
	for _, violation := range violations {
		builder.WriteString("\n")
		builder.WriteString(violation.String())
	}
	return llm.ToolResult{
		ToolUseID: call.ID,
		Content:   builder.String(),
		IsError:   true,
	}
}

// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aegis-foundation/aegis/lib/llm"
	"github.com/aegis-foundation/aegis/lib/policy"
	"github.com/aegis-foundation/aegis/lib/tool"
)

// mockProvider implements llm.Provider with a scripted sequence of
// responses, one per call. After exhausting the list, subsequent
// calls return the last response.
type mockProvider struct {
	mutex     sync.Mutex
	responses []*llm.Response
	requests  []llm.Request
	block     chan struct{} // non-nil: Complete blocks until ctx is done
}

func (provider *mockProvider) Complete(ctx context.Context, request llm.Request) (*llm.Response, error) {
	provider.mutex.Lock()
	provider.requests = append(provider.requests, request)
	index := len(provider.requests) - 1
	block := provider.block
	provider.mutex.Unlock()

	if block != nil {
		close(block)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return provider.response(index), nil
}

func (provider *mockProvider) Stream(ctx context.Context, request llm.Request) (*llm.EventStream, error) {
	provider.mutex.Lock()
	provider.requests = append(provider.requests, request)
	index := len(provider.requests) - 1
	provider.mutex.Unlock()

	response := provider.response(index)

	// Reproduce the response as a stream: text blocks arrive as
	// deltas, every block closes with a done event.
	var events []llm.StreamEvent
	for blockIndex, contentBlock := range response.Content {
		if contentBlock.Type == llm.ContentText {
			events = append(events, llm.StreamEvent{
				Type:  llm.EventTextDelta,
				Index: blockIndex,
				Text:  contentBlock.Text,
			})
		}
		events = append(events, llm.StreamEvent{
			Type:         llm.EventContentBlockDone,
			Index:        blockIndex,
			ContentBlock: contentBlock,
		})
	}

	position := 0
	stream := llm.NewEventStream(func() (llm.StreamEvent, error) {
		if position >= len(events) {
			return llm.StreamEvent{}, io.EOF
		}
		event := events[position]
		position++
		return event, nil
	}, nil)
	stream.SetModel(response.Model)
	stream.SetUsage(response.Usage)
	stream.SetStopReason(response.StopReason)
	return stream, nil
}

func (provider *mockProvider) response(index int) *llm.Response {
	if index < len(provider.responses) {
		return provider.responses[index]
	}
	return provider.responses[len(provider.responses)-1]
}

func (provider *mockProvider) callCount() int {
	provider.mutex.Lock()
	defer provider.mutex.Unlock()
	return len(provider.requests)
}

// recordingTool remembers the calls it executed.
type recordingTool struct {
	name   string
	risk   policy.RiskLevel
	output string
	failed bool

	mutex sync.Mutex
	calls []llm.ToolUse
}

func (recording *recordingTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        recording.name,
		Description: "test tool",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

func (recording *recordingTool) RiskLevel() policy.RiskLevel { return recording.risk }

func (recording *recordingTool) Execute(ctx context.Context, call llm.ToolUse) (string, error) {
	recording.mutex.Lock()
	recording.calls = append(recording.calls, call)
	recording.mutex.Unlock()
	if recording.failed {
		return "", fmt.Errorf("intentional failure")
	}
	return recording.output, nil
}

func (recording *recordingTool) callCount() int {
	recording.mutex.Lock()
	defer recording.mutex.Unlock()
	return len(recording.calls)
}

// recordingSink records sink method invocations in order.
type recordingSink struct {
	mutex  sync.Mutex
	events []string
}

func (sink *recordingSink) add(event string) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	sink.events = append(sink.events, event)
}

func (sink *recordingSink) recorded() []string {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	return append([]string(nil), sink.events...)
}

func (sink *recordingSink) UserMessage(text string)   { sink.add("user") }
func (sink *recordingSink) ThinkingStarted(round int) { sink.add(fmt.Sprintf("thinking:%d", round)) }
func (sink *recordingSink) ToolCall(call llm.ToolUse) { sink.add("call:" + call.Name) }
func (sink *recordingSink) ToolResult(result llm.ToolResult) {
	if result.IsError {
		sink.add("result:error")
		return
	}
	sink.add("result:ok")
}
func (sink *recordingSink) ToolDenied(call llm.ToolUse, violations []policy.Violation) {
	sink.add("denied:" + call.Name)
}
func (sink *recordingSink) ToolRejected(call llm.ToolUse) { sink.add("rejected:" + call.Name) }
func (sink *recordingSink) AssistantText(text string)     { sink.add("text") }
func (sink *recordingSink) Metrics(result Result)         { sink.add("metrics") }

func textResponse(text string) *llm.Response {
	return &llm.Response{
		Content:    []llm.ContentBlock{llm.TextBlock(text)},
		StopReason: llm.StopReasonEndTurn,
		Usage:      llm.Usage{InputTokens: 10, OutputTokens: 5},
		Model:      "mock-model",
	}
}

func toolResponse(id, name, input string) *llm.Response {
	return &llm.Response{
		Content: []llm.ContentBlock{
			llm.ToolUseBlock(id, name, json.RawMessage(input)),
		},
		StopReason: llm.StopReasonToolUse,
		Usage:      llm.Usage{InputTokens: 10, OutputTokens: 5},
		Model:      "mock-model",
	}
}

func newTestOrchestrator(t *testing.T, provider llm.Provider, tools []tool.Tool, options Options) *Orchestrator {
	t.Helper()
	registry := tool.NewRegistry()
	for _, entry := range tools {
		if err := registry.Register(entry); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if options.Model == "" {
		options.Model = "mock-model"
	}
	if options.MaxTokens == 0 {
		options.MaxTokens = 100
	}
	engine := policy.NewEngine(policy.AutonomySmartDefault)
	return New(llm.NewClient(provider), registry, engine, options)
}

func TestProcessTextOnly(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{textResponse("hello there")}}
	agent := newTestOrchestrator(t, provider, nil, Options{})

	result, err := agent.Process(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Text != "hello there" {
		t.Errorf("Text %q", result.Text)
	}
	if result.RoundCount != 1 {
		t.Errorf("RoundCount %d, want 1", result.RoundCount)
	}
	if len(result.ToolsUsed) != 0 {
		t.Errorf("ToolsUsed %v, want none", result.ToolsUsed)
	}
	if result.Usage.InputTokens != 10 || result.Usage.OutputTokens != 5 {
		t.Errorf("Usage %+v", result.Usage)
	}
}

func TestProcessToolRoundsThenText(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "lookup", `{}`),
		toolResponse("toolu_02", "compute", `{}`),
		textResponse("done"),
	}}
	lookup := &recordingTool{name: "lookup", risk: policy.RiskSafe, output: "found"}
	compute := &recordingTool{name: "compute", risk: policy.RiskCaution, output: "42"}
	agent := newTestOrchestrator(t, provider, []tool.Tool{lookup, compute}, Options{})

	result, err := agent.Process(context.Background(), "work it out")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.RoundCount != 3 {
		t.Errorf("RoundCount %d, want 3", result.RoundCount)
	}
	if len(result.ToolsUsed) != 2 || result.ToolsUsed[0] != "lookup" || result.ToolsUsed[1] != "compute" {
		t.Errorf("ToolsUsed %v", result.ToolsUsed)
	}
	if result.ErrorCount != 0 {
		t.Errorf("ErrorCount %d", result.ErrorCount)
	}
	if lookup.callCount() != 1 || compute.callCount() != 1 {
		t.Errorf("tool call counts %d, %d", lookup.callCount(), compute.callCount())
	}
	// Accumulated usage spans all three rounds.
	if result.Usage.InputTokens != 30 || result.Usage.OutputTokens != 15 {
		t.Errorf("Usage %+v", result.Usage)
	}

	// The second round's request must carry the first round's tool
	// result back to the model.
	secondRequest := provider.requests[1]
	last := secondRequest.Messages[len(secondRequest.Messages)-1]
	if last.Role != llm.RoleUser || len(last.Content) != 1 {
		t.Fatalf("second request tail %+v", last)
	}
	toolResult := last.Content[0].ToolResult
	if toolResult == nil || toolResult.ToolUseID != "toolu_01" || toolResult.Content != "found" {
		t.Errorf("fed-back result %+v", toolResult)
	}
}

func TestProcessTextAccumulatesAcrossRounds(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		{
			Content: []llm.ContentBlock{
				llm.TextBlock("Let me check."),
				llm.ToolUseBlock("toolu_01", "lookup", json.RawMessage(`{}`)),
			},
			StopReason: llm.StopReasonToolUse,
		},
		textResponse("All good."),
	}}
	lookup := &recordingTool{name: "lookup", risk: policy.RiskSafe, output: "x"}
	agent := newTestOrchestrator(t, provider, []tool.Tool{lookup}, Options{})

	result, err := agent.Process(context.Background(), "check")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.Text != "Let me check.\nAll good." {
		t.Errorf("Text %q", result.Text)
	}
}

func TestProcessConfirmationWithoutCallbackRejects(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "send_message", `{}`),
		textResponse("understood"),
	}}
	dangerous := &recordingTool{name: "send_message", risk: policy.RiskDangerous}
	sink := &recordingSink{}
	agent := newTestOrchestrator(t, provider, []tool.Tool{dangerous}, Options{Session: sink})

	result, err := agent.Process(context.Background(), "send it")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if dangerous.callCount() != 0 {
		t.Error("gated tool executed without a confirmation channel")
	}
	if result.ErrorCount != 1 {
		t.Errorf("ErrorCount %d, want 1", result.ErrorCount)
	}
	if len(result.ToolsUsed) != 0 {
		t.Errorf("ToolsUsed %v, want none", result.ToolsUsed)
	}

	// The model sees the rejection as an error result.
	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	toolResult := last.Content[0].ToolResult
	if toolResult == nil || !toolResult.IsError || !strings.Contains(toolResult.Content, "rejected") {
		t.Errorf("fed-back result %+v", toolResult)
	}

	events := sink.recorded()
	joined := strings.Join(events, ",")
	if !strings.Contains(joined, "rejected:send_message") {
		t.Errorf("sink events %v missing rejection", events)
	}
}

func TestProcessConfirmationApproved(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "send_message", `{}`),
		textResponse("sent"),
	}}
	dangerous := &recordingTool{name: "send_message", risk: policy.RiskDangerous, output: "delivered"}
	confirmed := 0
	agent := newTestOrchestrator(t, provider, []tool.Tool{dangerous}, Options{
		Confirm: func(ctx context.Context, call llm.ToolUse) (bool, error) {
			confirmed++
			return true, nil
		},
	})

	result, err := agent.Process(context.Background(), "send it")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if confirmed != 1 {
		t.Errorf("confirm callback ran %d times, want 1", confirmed)
	}
	if dangerous.callCount() != 1 {
		t.Errorf("tool ran %d times, want 1", dangerous.callCount())
	}
	if len(result.ToolsUsed) != 1 || result.ToolsUsed[0] != "send_message" {
		t.Errorf("ToolsUsed %v", result.ToolsUsed)
	}
}

func TestProcessConfirmationDeclined(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "send_message", `{}`),
		textResponse("ok"),
	}}
	dangerous := &recordingTool{name: "send_message", risk: policy.RiskDangerous}
	agent := newTestOrchestrator(t, provider, []tool.Tool{dangerous}, Options{
		Confirm: func(ctx context.Context, call llm.ToolUse) (bool, error) {
			return false, nil
		},
	})

	result, err := agent.Process(context.Background(), "send it")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if dangerous.callCount() != 0 {
		t.Error("declined tool executed")
	}
	if result.ErrorCount != 1 {
		t.Errorf("ErrorCount %d, want 1", result.ErrorCount)
	}
}

func TestProcessDestructiveAlwaysConfirmed(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "delete_file", `{}`),
		textResponse("ok"),
	}}
	destructive := &recordingTool{name: "delete_file", risk: policy.RiskDestructive}
	asked := false

	registry := tool.NewRegistry()
	if err := registry.Register(destructive); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Full auto approves everything else, but destructive must still
	// reach the confirmation callback.
	engine := policy.NewEngine(policy.AutonomyFullAuto)
	agent := New(llm.NewClient(provider), registry, engine, Options{
		Model: "mock-model", MaxTokens: 100,
		Confirm: func(ctx context.Context, call llm.ToolUse) (bool, error) {
			asked = true
			return true, nil
		},
	})

	if _, err := agent.Process(context.Background(), "delete"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !asked {
		t.Error("destructive tool bypassed confirmation at full autonomy")
	}
}

func TestProcessPolicyDenial(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "lookup", `{"path":"../../etc/shadow"}`),
		textResponse("noted"),
	}}
	lookup := &recordingTool{name: "lookup", risk: policy.RiskSafe}
	sink := &recordingSink{}
	agent := newTestOrchestrator(t, provider, []tool.Tool{lookup}, Options{Session: sink})

	result, err := agent.Process(context.Background(), "read it")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if lookup.callCount() != 0 {
		t.Error("denied tool executed")
	}
	if result.ErrorCount != 1 {
		t.Errorf("ErrorCount %d, want 1", result.ErrorCount)
	}

	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	toolResult := last.Content[0].ToolResult
	if toolResult == nil || !toolResult.IsError {
		t.Fatalf("fed-back result %+v", toolResult)
	}
	if !strings.Contains(toolResult.Content, "denied by safety policy") ||
		!strings.Contains(toolResult.Content, "path_traversal") {
		t.Errorf("denial content %q", toolResult.Content)
	}
	if !strings.Contains(strings.Join(sink.recorded(), ","), "denied:lookup") {
		t.Errorf("sink events %v missing denial", sink.recorded())
	}
}

func TestProcessUnknownToolTreatedAsDestructive(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "ghost_tool", `{}`),
		textResponse("ok"),
	}}
	var askedFor string
	agent := newTestOrchestrator(t, provider, nil, Options{
		Confirm: func(ctx context.Context, call llm.ToolUse) (bool, error) {
			askedFor = call.Name
			return true, nil
		},
	})

	result, err := agent.Process(context.Background(), "use the ghost")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// The unregistered name takes the most restrictive risk, so the
	// call is confirmation-gated; once approved, dispatch fails it.
	if askedFor != "ghost_tool" {
		t.Errorf("confirmation asked for %q, want ghost_tool", askedFor)
	}
	if result.ErrorCount != 1 {
		t.Errorf("ErrorCount %d, want 1", result.ErrorCount)
	}

	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	toolResult := last.Content[0].ToolResult
	if toolResult == nil || !toolResult.IsError || !strings.Contains(toolResult.Content, "unknown tool") {
		t.Errorf("fed-back result %+v", toolResult)
	}
}

func TestProcessOneResultPerToolUse(t *testing.T) {
	t.Parallel()

	// One round requests three tools with three different fates:
	// executed, denied, unknown-rejected. The reply must carry
	// exactly three results in request order.
	provider := &mockProvider{responses: []*llm.Response{
		{
			Content: []llm.ContentBlock{
				llm.ToolUseBlock("toolu_01", "lookup", json.RawMessage(`{}`)),
				llm.ToolUseBlock("toolu_02", "lookup", json.RawMessage(`{"path":"../x"}`)),
				llm.ToolUseBlock("toolu_03", "ghost", json.RawMessage(`{}`)),
			},
			StopReason: llm.StopReasonToolUse,
		},
		textResponse("ok"),
	}}
	lookup := &recordingTool{name: "lookup", risk: policy.RiskSafe, output: "found"}
	agent := newTestOrchestrator(t, provider, []tool.Tool{lookup}, Options{})

	result, err := agent.Process(context.Background(), "go")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.ErrorCount != 2 {
		t.Errorf("ErrorCount %d, want 2", result.ErrorCount)
	}

	second := provider.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if len(last.Content) != 3 {
		t.Fatalf("got %d results, want 3", len(last.Content))
	}
	wantIDs := []string{"toolu_01", "toolu_02", "toolu_03"}
	for i, block := range last.Content {
		if block.ToolResult == nil || block.ToolResult.ToolUseID != wantIDs[i] {
			t.Errorf("result %d: %+v, want id %s", i, block.ToolResult, wantIDs[i])
		}
	}
	if last.Content[0].ToolResult.IsError {
		t.Error("executed tool result flagged as error")
	}
	if !last.Content[1].ToolResult.IsError || !last.Content[2].ToolResult.IsError {
		t.Error("denied/unknown results not flagged as errors")
	}
}

func TestProcessFailedToolCountsAsUsedAndErrored(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "flaky", `{}`),
		textResponse("ok"),
	}}
	flaky := &recordingTool{name: "flaky", risk: policy.RiskSafe, failed: true}
	agent := newTestOrchestrator(t, provider, []tool.Tool{flaky}, Options{})

	result, err := agent.Process(context.Background(), "try")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// The tool did execute, so it appears in ToolsUsed; its failure
	// counts as an error.
	if len(result.ToolsUsed) != 1 || result.ToolsUsed[0] != "flaky" {
		t.Errorf("ToolsUsed %v", result.ToolsUsed)
	}
	if result.ErrorCount != 1 {
		t.Errorf("ErrorCount %d, want 1", result.ErrorCount)
	}
}

func TestProcessMaxRounds(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "lookup", `{}`),
	}}
	lookup := &recordingTool{name: "lookup", risk: policy.RiskSafe, output: "more"}
	agent := newTestOrchestrator(t, provider, []tool.Tool{lookup}, Options{MaxRounds: 2})

	_, err := agent.Process(context.Background(), "loop forever")
	if !errors.Is(err, ErrMaxRounds) {
		t.Fatalf("err = %v, want ErrMaxRounds", err)
	}
	if provider.callCount() != 2 {
		t.Errorf("model called %d times, want exactly 2", provider.callCount())
	}
}

func TestProcessTimeout(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*llm.Response{textResponse("never delivered")},
		block:     make(chan struct{}),
	}
	agent := newTestOrchestrator(t, provider, nil, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := agent.Process(context.Background(), "hang")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v, worker did not unwind", elapsed)
	}
}

func TestProcessAbort(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*llm.Response{textResponse("never delivered")},
		block:     make(chan struct{}),
	}
	agent := newTestOrchestrator(t, provider, nil, Options{})

	errs := make(chan error, 1)
	go func() {
		_, err := agent.Process(context.Background(), "hang")
		errs <- err
	}()

	<-provider.block // the model call is in flight
	agent.Abort()

	select {
	case err := <-errs:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("err = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Process did not return after Abort")
	}
}

func TestProcessTimeoutDuringConfirmation(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "send_message", `{}`),
		textResponse("ok"),
	}}
	dangerous := &recordingTool{name: "send_message", risk: policy.RiskDangerous}
	release := make(chan struct{})
	defer close(release)
	agent := newTestOrchestrator(t, provider, []tool.Tool{dangerous}, Options{
		Timeout: 50 * time.Millisecond,
		Confirm: func(ctx context.Context, call llm.ToolUse) (bool, error) {
			// Never answers within the budget; the loop must not
			// wait for it.
			<-release
			return true, nil
		},
	})

	errs := make(chan error, 1)
	go func() {
		_, err := agent.Process(context.Background(), "send it")
		errs <- err
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("err = %v, want ErrTimeout", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Process still blocked long after the timeout; confirmation await ignored cancellation")
	}
	if dangerous.callCount() != 0 {
		t.Error("tool executed after an unanswered confirmation")
	}
}

func TestProcessAbortDuringConfirmation(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "send_message", `{}`),
		textResponse("ok"),
	}}
	dangerous := &recordingTool{name: "send_message", risk: policy.RiskDangerous}
	asked := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	agent := newTestOrchestrator(t, provider, []tool.Tool{dangerous}, Options{
		Confirm: func(ctx context.Context, call llm.ToolUse) (bool, error) {
			close(asked)
			<-release
			return true, nil
		},
	})

	errs := make(chan error, 1)
	go func() {
		_, err := agent.Process(context.Background(), "send it")
		errs <- err
	}()

	<-asked // the prompt is pending
	agent.Abort()

	select {
	case err := <-errs:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("err = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Process did not return after Abort during confirmation")
	}
	if dangerous.callCount() != 0 {
		t.Error("tool executed after an aborted confirmation")
	}
}

func TestProcessParentContextCancellation(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{
		responses: []*llm.Response{textResponse("never delivered")},
		block:     make(chan struct{}),
	}
	agent := newTestOrchestrator(t, provider, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := agent.Process(ctx, "hang")
		errs <- err
	}()

	<-provider.block // the model call is in flight
	cancel()

	select {
	case err := <-errs:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
		if errors.Is(err, ErrCancelled) {
			t.Error("parent cancellation misreported as an abort")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Process did not return after parent cancellation")
	}
}

func TestProcessStreamingProgress(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "lookup", `{}`),
		textResponse("the answer"),
	}}
	lookup := &recordingTool{name: "lookup", risk: policy.RiskSafe, output: "data"}
	agent := newTestOrchestrator(t, provider, []tool.Tool{lookup}, Options{})

	progress := &recordingProgress{}
	result, err := agent.ProcessStreaming(context.Background(), "stream it", progress)
	if err != nil {
		t.Fatalf("ProcessStreaming: %v", err)
	}
	if result.Text != "the answer" {
		t.Errorf("Text %q", result.Text)
	}

	events := progress.recorded()
	want := []string{
		"thinking:1",
		"tool_started:lookup",
		"tool_completed:lookup",
		"thinking:2",
		"delta:the answer",
		"completed",
	}
	if len(events) != len(want) {
		t.Fatalf("progress events %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: %q, want %q", i, events[i], want[i])
		}
	}
}

// recordingProgress records progress callbacks in order.
type recordingProgress struct {
	mutex  sync.Mutex
	events []string
}

func (progress *recordingProgress) add(event string) {
	progress.mutex.Lock()
	defer progress.mutex.Unlock()
	progress.events = append(progress.events, event)
}

func (progress *recordingProgress) recorded() []string {
	progress.mutex.Lock()
	defer progress.mutex.Unlock()
	return append([]string(nil), progress.events...)
}

func (progress *recordingProgress) ThinkingStarted(round int) {
	progress.add(fmt.Sprintf("thinking:%d", round))
}
func (progress *recordingProgress) TextDelta(text string) { progress.add("delta:" + text) }
func (progress *recordingProgress) ToolStarted(call llm.ToolUse) {
	progress.add("tool_started:" + call.Name)
}
func (progress *recordingProgress) ToolCompleted(call llm.ToolUse, result llm.ToolResult) {
	progress.add("tool_completed:" + call.Name)
}
func (progress *recordingProgress) Completed(result Result) { progress.add("completed") }

func TestSessionSinkOrdering(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{
		toolResponse("toolu_01", "lookup", `{}`),
		textResponse("answer"),
	}}
	lookup := &recordingTool{name: "lookup", risk: policy.RiskSafe, output: "found"}
	sink := &recordingSink{}
	agent := newTestOrchestrator(t, provider, []tool.Tool{lookup}, Options{Session: sink})

	if _, err := agent.Process(context.Background(), "go"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	want := []string{
		"user",
		"thinking:1",
		"call:lookup",
		"result:ok",
		"thinking:2",
		"text",
		"metrics",
	}
	events := sink.recorded()
	if len(events) != len(want) {
		t.Fatalf("sink events %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: %q, want %q", i, events[i], want[i])
		}
	}
}

func TestResetClearsHistory(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{textResponse("one")}}
	agent := newTestOrchestrator(t, provider, nil, Options{})

	if _, err := agent.Process(context.Background(), "first"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(agent.History()) == 0 {
		t.Fatal("history empty after a call")
	}

	agent.Reset()
	if len(agent.History()) != 0 {
		t.Error("history survives Reset")
	}

	// The next call starts a fresh conversation.
	if _, err := agent.Process(context.Background(), "second"); err != nil {
		t.Fatalf("Process after Reset: %v", err)
	}
	lastRequest := provider.requests[len(provider.requests)-1]
	if len(lastRequest.Messages) != 1 {
		t.Errorf("request after Reset carries %d messages, want 1", len(lastRequest.Messages))
	}
}

func TestHistoryPersistsAcrossCalls(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{textResponse("reply")}}
	agent := newTestOrchestrator(t, provider, nil, Options{})

	if _, err := agent.Process(context.Background(), "first"); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := agent.Process(context.Background(), "second"); err != nil {
		t.Fatalf("Process: %v", err)
	}

	lastRequest := provider.requests[len(provider.requests)-1]
	// user, assistant, user.
	if len(lastRequest.Messages) != 3 {
		t.Errorf("second call carries %d messages, want 3", len(lastRequest.Messages))
	}
}

func TestContextLock(t *testing.T) {
	t.Parallel()

	provider := &mockProvider{responses: []*llm.Response{textResponse("x")}}
	agent := newTestOrchestrator(t, provider, nil, Options{})

	if _, locked := agent.ContextLock(); locked {
		t.Error("fresh orchestrator reports a lock")
	}

	agent.SetContextLock(ContextLock{BundleID: "com.example.editor", PID: 4242})
	lock, locked := agent.ContextLock()
	if !locked || lock.BundleID != "com.example.editor" || lock.PID != 4242 {
		t.Errorf("lock %+v, locked %v", lock, locked)
	}

	agent.ClearContextLock()
	if _, locked := agent.ContextLock(); locked {
		t.Error("lock survives Clear")
	}
}

// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aegis-foundation/aegis/lib/llm"
	"github.com/aegis-foundation/aegis/lib/policy"
)

// fakeTool is a configurable test tool.
type fakeTool struct {
	name    string
	schema  string
	risk    policy.RiskLevel
	execute func(ctx context.Context, call llm.ToolUse) (string, error)
}

func (tool fakeTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        tool.name,
		Description: "test tool",
		InputSchema: json.RawMessage(tool.schema),
	}
}

func (tool fakeTool) RiskLevel() policy.RiskLevel { return tool.risk }

func (tool fakeTool) Execute(ctx context.Context, call llm.ToolUse) (string, error) {
	if tool.execute != nil {
		return tool.execute(ctx, call)
	}
	return "ok", nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if err := registry.Register(fakeTool{name: "alpha", risk: policy.RiskSafe}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register(fakeTool{name: "beta", risk: policy.RiskDangerous}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	risk, known := registry.RiskLevel("beta")
	if !known || risk != policy.RiskDangerous {
		t.Errorf("RiskLevel(beta) = %v, %v", risk, known)
	}
	if _, known := registry.RiskLevel("gamma"); known {
		t.Error("RiskLevel(gamma) reported known")
	}

	definitions := registry.Definitions()
	if len(definitions) != 2 {
		t.Fatalf("got %d definitions, want 2", len(definitions))
	}
	if definitions[0].Name != "alpha" || definitions[1].Name != "beta" {
		t.Errorf("definitions out of registration order: %q, %q",
			definitions[0].Name, definitions[1].Name)
	}
}

func TestRegistryDuplicateName(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if err := registry.Register(fakeTool{name: "alpha"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := registry.Register(fakeTool{name: "alpha"})
	if !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("err = %v, want ErrDuplicateTool", err)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	_, err := registry.Dispatch(context.Background(), llm.ToolUse{ID: "x", Name: "ghost"})
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("err = %v, want ErrUnknownTool", err)
	}
}

func TestDispatchSuccess(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(fakeTool{
		name:   "echo",
		schema: `{"type":"object","required":["text"],"properties":{"text":{"type":"string"}}}`,
		execute: func(ctx context.Context, call llm.ToolUse) (string, error) {
			return call.InputMap()["text"].(string), nil
		},
	})

	result, err := registry.Dispatch(context.Background(), llm.ToolUse{
		ID:    "toolu_01",
		Name:  "echo",
		Input: json.RawMessage(`{"text":"hello"}`),
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.ToolUseID != "toolu_01" || result.Content != "hello" || result.IsError {
		t.Errorf("result %+v", result)
	}
}

func TestDispatchValidationFailure(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	executed := false
	registry.Register(fakeTool{
		name:   "strict",
		schema: `{"type":"object","required":["path"],"properties":{"path":{"type":"string"}}}`,
		execute: func(ctx context.Context, call llm.ToolUse) (string, error) {
			executed = true
			return "", nil
		},
	})

	_, err := registry.Dispatch(context.Background(), llm.ToolUse{
		ID:    "x",
		Name:  "strict",
		Input: json.RawMessage(`{}`),
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
	if executed {
		t.Error("tool executed despite failing validation")
	}
}

func TestDispatchExecutionErrorBecomesErrorResult(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(fakeTool{
		name: "flaky",
		execute: func(ctx context.Context, call llm.ToolUse) (string, error) {
			return "", fmt.Errorf("disk on fire")
		},
	})

	result, err := registry.Dispatch(context.Background(), llm.ToolUse{ID: "x", Name: "flaky"})
	if err != nil {
		t.Fatalf("execution failure must not return a dispatch error: %v", err)
	}
	if !result.IsError {
		t.Error("result not flagged as error")
	}
	if result.Content == "" || result.ToolUseID != "x" {
		t.Errorf("result %+v", result)
	}
}

func TestDispatchPanicContained(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	registry.Register(fakeTool{
		name: "volatile",
		execute: func(ctx context.Context, call llm.ToolUse) (string, error) {
			panic("index out of range")
		},
	})

	result, err := registry.Dispatch(context.Background(), llm.ToolUse{ID: "x", Name: "volatile"})
	if err != nil {
		t.Fatalf("panic must not return a dispatch error: %v", err)
	}
	if !result.IsError {
		t.Error("result not flagged as error")
	}
}

func TestValidateUnknownTool(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	if err := registry.Validate(llm.ToolUse{Name: "ghost"}); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("err = %v, want ErrUnknownTool", err)
	}
}

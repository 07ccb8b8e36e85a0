// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aegis-foundation/aegis/lib/llm"
	"github.com/aegis-foundation/aegis/lib/policy"
)

// Tool is the boundary every executable capability implements.
// Accessibility automation, browser control, screenshots, clipboard,
// filesystem, and speech tools all satisfy this shape; the registry
// and orchestrator depend on nothing else about them.
type Tool interface {
	// Definition describes the tool to the model: name, description,
	// and input schema.
	Definition() llm.ToolDefinition

	// RiskLevel is the tool's declared hazard class, consulted by the
	// policy engine before execution.
	RiskLevel() policy.RiskLevel

	// Execute runs the tool with the given call's input and returns
	// the output text. Errors are converted to error-flagged tool
	// results by the registry; they never propagate past dispatch.
	Execute(ctx context.Context, call llm.ToolUse) (string, error)
}

// ErrUnknownTool is returned when a call names a tool that was never
// registered.
var ErrUnknownTool = errors.New("tool: unknown tool")

// ErrDuplicateTool is returned when a registration reuses a name.
// Silent overwrite would let a late registration hijack an earlier
// tool's risk level.
var ErrDuplicateTool = errors.New("tool: duplicate tool name")

// Registry holds the executable tool set and exposes schema-validated
// dispatch. Tools are registered once at startup; the registry is
// safe for concurrent use afterward.
type Registry struct {
	mutex sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Returns [ErrDuplicateTool] if the name is
// already taken.
func (registry *Registry) Register(tool Tool) error {
	name := tool.Definition().Name
	registry.mutex.Lock()
	defer registry.mutex.Unlock()
	if _, exists := registry.tools[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, name)
	}
	registry.tools[name] = tool
	registry.order = append(registry.order, name)
	return nil
}

// Definitions returns all registered tool definitions in registration
// order, ready to attach to a model request.
func (registry *Registry) Definitions() []llm.ToolDefinition {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	definitions := make([]llm.ToolDefinition, 0, len(registry.order))
	for _, name := range registry.order {
		definitions = append(definitions, registry.tools[name].Definition())
	}
	return definitions
}

// RiskLevel looks up a registered tool's declared risk level. The
// second return is false for unknown names.
func (registry *Registry) RiskLevel(name string) (policy.RiskLevel, bool) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	tool, exists := registry.tools[name]
	if !exists {
		return 0, false
	}
	return tool.RiskLevel(), true
}

// Validate resolves the call's tool by name and checks its input
// against the tool's schema. Returns [ErrUnknownTool] for
// unregistered names and a validation error describing the first
// mismatched field otherwise.
func (registry *Registry) Validate(call llm.ToolUse) error {
	registry.mutex.RLock()
	tool, exists := registry.tools[call.Name]
	registry.mutex.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}
	return validateInput(tool.Definition().InputSchema, call.InputMap())
}

// Dispatch validates the call and executes it. Unknown names and
// schema mismatches fail with an error before execution; once a tool
// runs, any failure — returned error or panic — is converted into an
// error-flagged [llm.ToolResult] and never propagated. Dispatch
// therefore always produces exactly one result for an executed call.
func (registry *Registry) Dispatch(ctx context.Context, call llm.ToolUse) (llm.ToolResult, error) {
	registry.mutex.RLock()
	tool, exists := registry.tools[call.Name]
	registry.mutex.RUnlock()
	if !exists {
		return llm.ToolResult{}, fmt.Errorf("%w: %q", ErrUnknownTool, call.Name)
	}

	if err := validateInput(tool.Definition().InputSchema, call.InputMap()); err != nil {
		return llm.ToolResult{}, err
	}

	output, err := executeTool(ctx, tool, call)
	if err != nil {
		return llm.ToolResult{
			ToolUseID: call.ID,
			Content:   fmt.Sprintf("tool %s failed: %v", call.Name, err),
			IsError:   true,
		}, nil
	}

	return llm.ToolResult{ToolUseID: call.ID, Content: output}, nil
}

// executeTool runs the tool with panic containment. A panicking
// executor must not take down the round — the panic becomes an
// ordinary error result the model can react to.
func executeTool(ctx context.Context, tool Tool, call llm.ToolUse) (output string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()
	return tool.Execute(ctx, call)
}

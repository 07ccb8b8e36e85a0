// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/aegis-foundation/aegis/lib/llm"
	"github.com/aegis-foundation/aegis/lib/policy"
	"github.com/aegis-foundation/aegis/lib/tool"
)

// registerBuiltinTools installs the file and system tools the agent
// ships with. One tool per risk level, so every branch of the policy
// decision matrix is reachable out of the box.
func registerBuiltinTools(registry *tool.Registry) error {
	builtins := []tool.Tool{
		systemInfoTool{},
		readFileTool{},
		writeFileTool{},
		removePathTool{},
	}
	for _, builtin := range builtins {
		if err := registry.Register(builtin); err != nil {
			return err
		}
	}
	return nil
}

// maxFileReadBytes caps read_file output so one tool result cannot
// blow the model's context window.
const maxFileReadBytes = 64 * 1024

type systemInfoTool struct{}

func (systemInfoTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "system_info",
		Description: "Report the host operating system, architecture, CPU count, and hostname.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

func (systemInfoTool) RiskLevel() policy.RiskLevel { return policy.RiskSafe }

func (systemInfoTool) Execute(ctx context.Context, call llm.ToolUse) (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("os=%s arch=%s cpus=%d hostname=%s",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), hostname), nil
}

type readFileTool struct{}

func (readFileTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "read_file",
		Description: "Read a text file and return its contents, truncated at 64 KiB.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"required": ["path"],
			"properties": {
				"path": {"type": "string", "description": "file to read"}
			}
		}`),
	}
}

func (readFileTool) RiskLevel() policy.RiskLevel { return policy.RiskCaution }

func (readFileTool) Execute(ctx context.Context, call llm.ToolUse) (string, error) {
	path, err := stringField(call, "path")
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) > maxFileReadBytes {
		data = data[:maxFileReadBytes]
	}
	return string(data), nil
}

type writeFileTool struct{}

func (writeFileTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "write_file",
		Description: "Write content to a file, creating it or replacing its contents.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"required": ["path", "content"],
			"properties": {
				"path": {"type": "string", "description": "file to write"},
				"content": {"type": "string", "description": "full file contents"}
			}
		}`),
	}
}

func (writeFileTool) RiskLevel() policy.RiskLevel { return policy.RiskDangerous }

func (writeFileTool) Execute(ctx context.Context, call llm.ToolUse) (string, error) {
	path, err := stringField(call, "path")
	if err != nil {
		return "", err
	}
	content, err := stringField(call, "content")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

type removePathTool struct{}

func (removePathTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "remove_path",
		Description: "Delete a file or empty directory.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"required": ["path"],
			"properties": {
				"path": {"type": "string", "description": "path to delete"}
			}
		}`),
	}
}

func (removePathTool) RiskLevel() policy.RiskLevel { return policy.RiskDestructive }

func (removePathTool) Execute(ctx context.Context, call llm.ToolUse) (string, error) {
	path, err := stringField(call, "path")
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		return "", err
	}
	return fmt.Sprintf("removed %s", path), nil
}

// stringField extracts a required string argument from the call
// input. Schema validation runs before Execute, so a miss here means
// the schema and the implementation disagree.
func stringField(call llm.ToolUse, name string) (string, error) {
	value, ok := call.InputMap()[name].(string)
	if !ok {
		return "", fmt.Errorf("missing string argument %q", name)
	}
	return value, nil
}

// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package tool defines the executable tool boundary and the registry
// that dispatches model-requested calls to it.
//
// A [Tool] bundles a model-facing definition, a declared risk level,
// and an execute function. [Registry.Dispatch] resolves the call by
// name, validates its input against the tool's flat JSON-Schema
// subset, runs it with panic containment, and always yields a
// [llm.ToolResult] — execution failures are delivered to the model
// in-band, never as exceptions to the caller.
package tool

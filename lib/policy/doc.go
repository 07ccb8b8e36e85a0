// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy is the admission-control gate in front of tool
// execution: every model-requested tool call passes through
// [Engine.Evaluate] before any side effect occurs.
//
// Evaluation is a two-stage pipeline. [Sanitize] scans every string
// leaf of the call's input for path traversal, protected system
// paths, control characters, and length overflow; any violation
// forces a deny. Clean input is then judged by the risk × autonomy
// matrix: a tool's declared [RiskLevel] crossed with the user's
// [AutonomyLevel] yields allow, confirm, or deny. Destructive tools
// always require confirmation regardless of autonomy.
package policy

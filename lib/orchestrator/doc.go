// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator drives the autonomous conversation loop.
//
// An [Orchestrator] owns one conversation: it sends the accumulated
// history to the model, runs whatever tools the model requests under
// the policy engine's gating, folds the results back into the
// history, and repeats until the model answers in prose. Round and
// wall-clock limits bound every call, and [Orchestrator.Abort] tears
// a call down from another goroutine.
//
// The loop reports through two channels: a [SessionSink] receives the
// durable record (persisted by lib/sessionlog), and a [ProgressSink]
// receives live streaming progress for interactive front ends.
package orchestrator

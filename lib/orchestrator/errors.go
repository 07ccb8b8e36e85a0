// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import "errors"

// Loop-bound errors. These propagate out of Process — they are
// conditions the conversation cannot recover from automatically, and
// each is distinguishable so callers can render "taking too long",
// "stopped", or "gave up" appropriately instead of one opaque failure.
var (
	// ErrMaxRounds means the round limit was reached with the model
	// still requesting tools.
	ErrMaxRounds = errors.New("orchestrator: max rounds exceeded")

	// ErrTimeout means the wall-clock budget for the whole call
	// elapsed before the round loop finished.
	ErrTimeout = errors.New("orchestrator: timed out")

	// ErrCancelled means [Orchestrator.Abort] tore the call down. It
	// is surfaced only for caller-initiated aborts, never for
	// unrelated context cancellation.
	ErrCancelled = errors.New("orchestrator: cancelled")

	// ErrNoResponse means a model call completed without producing
	// any content.
	ErrNoResponse = errors.New("orchestrator: model produced no response")
)

// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package orchestrator

// ContextLock pins the conversation to one workload. While set, the
// host application routes every tool call and status query against
// the named bundle instead of re-resolving a target per request. The
// orchestrator stores the lock; interpreting it is the host's job.
type ContextLock struct {
	// BundleID identifies the locked workload.
	BundleID string

	// PID is the process the lock was taken against, when known.
	// Zero means no process association.
	PID int
}

// ContextLock returns the current lock and whether one is set.
func (orchestrator *Orchestrator) ContextLock() (ContextLock, bool) {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	if orchestrator.contextLock == nil {
		return ContextLock{}, false
	}
	return *orchestrator.contextLock, true
}

// SetContextLock pins the conversation to the given workload,
// replacing any existing lock.
func (orchestrator *Orchestrator) SetContextLock(lock ContextLock) {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	orchestrator.contextLock = &lock
}

// ClearContextLock removes the lock, if any.
func (orchestrator *Orchestrator) ClearContextLock() {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	orchestrator.contextLock = nil
}

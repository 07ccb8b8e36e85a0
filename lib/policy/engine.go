// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "sync"

// Engine decides whether a tool call may run. Evaluation is two
// stages: content sanitization (any violation forces a deny) and the
// risk × autonomy decision matrix. The autonomy level is process-wide
// mutable state, swappable at runtime without reconstructing the
// engine.
//
// Engine is safe for concurrent use.
type Engine struct {
	mutex    sync.RWMutex
	autonomy AutonomyLevel
}

// NewEngine creates an engine with the given starting autonomy level.
func NewEngine(autonomy AutonomyLevel) *Engine {
	return &Engine{autonomy: autonomy}
}

// Autonomy returns the current autonomy level.
func (engine *Engine) Autonomy() AutonomyLevel {
	engine.mutex.RLock()
	defer engine.mutex.RUnlock()
	return engine.autonomy
}

// SetAutonomy changes the autonomy level. Takes effect for the next
// evaluation.
func (engine *Engine) SetAutonomy(autonomy AutonomyLevel) {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	engine.autonomy = autonomy
}

// Evaluate decides the fate of a tool call with the given input and
// declared risk level. Sanitization runs first: any violation forces
// [DecisionDeny] and the violations are returned for diagnostics,
// short-circuiting the matrix. Clean input falls through to the
// risk × autonomy matrix.
func (engine *Engine) Evaluate(input map[string]any, risk RiskLevel) (Decision, []Violation) {
	if violations := Sanitize(input); len(violations) > 0 {
		return DecisionDeny, violations
	}
	return engine.decide(risk), nil
}

// decide applies the decision matrix. Destructive is a hard override:
// it always requires confirmation, whatever the autonomy level, and
// is checked before the table lookup.
func (engine *Engine) decide(risk RiskLevel) Decision {
	if risk >= RiskDestructive {
		return DecisionConfirm
	}

	autonomy := engine.Autonomy()
	switch risk {
	case RiskSafe:
		return DecisionAllow
	case RiskCaution:
		if autonomy >= AutonomySmartDefault {
			return DecisionAllow
		}
		return DecisionConfirm
	case RiskDangerous:
		if autonomy >= AutonomyFullAuto {
			return DecisionAllow
		}
		return DecisionConfirm
	default:
		// Unknown levels beyond the defined range were handled by
		// the destructive override above; anything else (negative)
		// is treated as confirm rather than allow.
		return DecisionConfirm
	}
}

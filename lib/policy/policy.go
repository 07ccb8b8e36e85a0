// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "fmt"

// RiskLevel is a tool's declared hazard class. Levels are ordered:
// a higher value means a more hazardous tool.
type RiskLevel int

const (
	// RiskSafe tools only observe (screenshots, reading UI state).
	RiskSafe RiskLevel = iota

	// RiskCaution tools act but are easily reversed (typing, clicking).
	RiskCaution

	// RiskDangerous tools have side effects that are hard to undo
	// (sending messages, submitting forms).
	RiskDangerous

	// RiskDestructive tools can cause irreversible loss (deleting
	// files, closing unsaved documents).
	RiskDestructive
)

func (level RiskLevel) String() string {
	switch level {
	case RiskSafe:
		return "safe"
	case RiskCaution:
		return "caution"
	case RiskDangerous:
		return "dangerous"
	case RiskDestructive:
		return "destructive"
	default:
		return fmt.Sprintf("risk(%d)", int(level))
	}
}

// ParseRiskLevel converts a configuration string to a RiskLevel.
func ParseRiskLevel(value string) (RiskLevel, error) {
	switch value {
	case "safe":
		return RiskSafe, nil
	case "caution":
		return RiskCaution, nil
	case "dangerous":
		return RiskDangerous, nil
	case "destructive":
		return RiskDestructive, nil
	default:
		return 0, fmt.Errorf("unknown risk level %q (valid: safe, caution, dangerous, destructive)", value)
	}
}

// AutonomyLevel is the user's configured trust setting: how much risk
// is auto-approved without asking. Ordered from most to least
// restrictive.
type AutonomyLevel int

const (
	// AutonomyAskAll confirms everything except safe tools.
	AutonomyAskAll AutonomyLevel = iota

	// AutonomySmartDefault auto-approves safe and caution tools,
	// confirms dangerous ones.
	AutonomySmartDefault

	// AutonomyFullAuto auto-approves everything except destructive
	// tools.
	AutonomyFullAuto
)

func (level AutonomyLevel) String() string {
	switch level {
	case AutonomyAskAll:
		return "ask_all"
	case AutonomySmartDefault:
		return "smart_default"
	case AutonomyFullAuto:
		return "full_auto"
	default:
		return fmt.Sprintf("autonomy(%d)", int(level))
	}
}

// ParseAutonomyLevel converts a configuration string to an AutonomyLevel.
func ParseAutonomyLevel(value string) (AutonomyLevel, error) {
	switch value {
	case "ask_all":
		return AutonomyAskAll, nil
	case "smart_default":
		return AutonomySmartDefault, nil
	case "full_auto":
		return AutonomyFullAuto, nil
	default:
		return 0, fmt.Errorf("unknown autonomy level %q (valid: ask_all, smart_default, full_auto)", value)
	}
}

// Decision is the outcome of a policy evaluation.
type Decision int

const (
	// DecisionAllow permits immediate execution.
	DecisionAllow Decision = iota

	// DecisionConfirm requires an explicit user approval first.
	DecisionConfirm

	// DecisionDeny forbids execution.
	DecisionDeny
)

func (decision Decision) String() string {
	switch decision {
	case DecisionAllow:
		return "allow"
	case DecisionConfirm:
		return "confirm"
	case DecisionDeny:
		return "deny"
	default:
		return fmt.Sprintf("decision(%d)", int(decision))
	}
}

// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"sort"
	"strings"
)

// maxStringLength is the longest string accepted in any tool input
// field. Model-generated arguments beyond this are treated as hostile
// or degenerate output.
const maxStringLength = 10000

// blockedPathPrefixes are filesystem locations tool input may never
// reference. Matching is a case-insensitive prefix test on the whole
// string value.
var blockedPathPrefixes = []string{
	"/system/",
	"/library/",
	"/usr/",
	"/bin/",
	"/sbin/",
	"/private/",
}

// ViolationKind classifies a sanitization failure.
type ViolationKind string

const (
	// ViolationPathTraversal is a "../" or "..\" sequence anywhere in
	// a string value.
	ViolationPathTraversal ViolationKind = "path_traversal"

	// ViolationSystemPath is a string value addressing a protected
	// system location.
	ViolationSystemPath ViolationKind = "system_path"

	// ViolationControlCharacters is an ASCII control character other
	// than tab, newline, or carriage return.
	ViolationControlCharacters ViolationKind = "control_characters"

	// ViolationLengthExceeded is a string value longer than the
	// accepted maximum.
	ViolationLengthExceeded ViolationKind = "length_exceeded"
)

// Violation is one sanitization failure, tagged with the path of the
// offending field (dotted for map fields, bracketed for sequence
// indexes, e.g. "steps[2].path").
type Violation struct {
	Kind ViolationKind
	Path string
}

func (violation Violation) String() string {
	return fmt.Sprintf("%s at %s", violation.Kind, violation.Path)
}

// Sanitize walks every string leaf of a tool call's input — through
// nested maps and slices — and returns all violations found. A nil
// or empty result means the input is clean.
//
// Map keys are visited in sorted order so diagnostics are
// deterministic.
func Sanitize(input map[string]any) []Violation {
	var violations []Violation
	walkValue(input, "", &violations)
	return violations
}

func walkValue(value any, path string, violations *[]Violation) {
	switch typed := value.(type) {
	case string:
		checkString(typed, path, violations)
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			walkValue(typed[key], joinPath(path, key), violations)
		}
	case []any:
		for index, element := range typed {
			walkValue(element, fmt.Sprintf("%s[%d]", path, index), violations)
		}
	default:
		// Numbers, booleans, and nulls carry no string payload.
	}
}

func checkString(value, path string, violations *[]Violation) {
	if len(value) > maxStringLength {
		*violations = append(*violations, Violation{Kind: ViolationLengthExceeded, Path: path})
	}
	if hasBlockedControlCharacter(value) {
		*violations = append(*violations, Violation{Kind: ViolationControlCharacters, Path: path})
	}
	if strings.Contains(value, "../") || strings.Contains(value, `..\`) {
		*violations = append(*violations, Violation{Kind: ViolationPathTraversal, Path: path})
	}
	lowered := strings.ToLower(value)
	for _, prefix := range blockedPathPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			*violations = append(*violations, Violation{Kind: ViolationSystemPath, Path: path})
			break
		}
	}
}

// hasBlockedControlCharacter reports whether value contains an ASCII
// control character other than tab, LF, or CR. DEL (0x7f) counts as a
// control character.
func hasBlockedControlCharacter(value string) bool {
	for _, b := range []byte(value) {
		if (b < 0x20 || b == 0x7f) && b != '\t' && b != '\n' && b != '\r' {
			return true
		}
	}
	return false
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}

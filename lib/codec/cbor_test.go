// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
)

// archiveEntry is a representative compacted session record, using
// json struct tags the way the session types do (fxamacker's
// fallback reads them for CBOR field names).
type archiveEntry struct {
	Kind  string `json:"kind"`
	Tool  string `json:"tool,omitempty"`
	Round int    `json:"round"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	t.Parallel()

	original := archiveEntry{
		Kind:  "tool_call",
		Tool:  "read_file",
		Round: 3,
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded archiveEntry
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()

	entry := archiveEntry{Kind: "assistant_text", Round: 7}

	first, err := Marshal(entry)
	if err != nil {
		t.Fatalf("first Marshal: %v", err)
	}
	second, err := Marshal(entry)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("deterministic encoding violated: %x != %x", first, second)
	}
}

func TestMarshalSliceRoundtrip(t *testing.T) {
	t.Parallel()

	// Archive payloads are whole-slice encodes.
	entries := []archiveEntry{
		{Kind: "user_message", Round: 1},
		{Kind: "tool_call", Tool: "list_directory", Round: 1},
		{Kind: "metrics", Round: 2},
	}

	data, err := Marshal(entries)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded []archiveEntry
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(decoded), len(entries))
	}
	for i, want := range entries {
		if decoded[i] != want {
			t.Errorf("entry %d: got %+v, want %+v", i, decoded[i], want)
		}
	}
}

func TestOmitemptyRespected(t *testing.T) {
	t.Parallel()

	withTool := archiveEntry{Kind: "tool_call", Tool: "read_file", Round: 1}
	withoutTool := archiveEntry{Kind: "tool_call", Round: 1}

	dataWith, err := Marshal(withTool)
	if err != nil {
		t.Fatal(err)
	}
	dataWithout, err := Marshal(withoutTool)
	if err != nil {
		t.Fatal(err)
	}

	if len(dataWithout) >= len(dataWith) {
		t.Errorf("omitempty not effective: without=%d bytes, with=%d bytes",
			len(dataWithout), len(dataWith))
	}
}

func TestDefaultMapType(t *testing.T) {
	t.Parallel()

	// Any-typed decode targets must come back as map[string]any, not
	// map[interface{}]interface{}, so tool inputs flow through
	// unchanged.
	data, err := Marshal(map[string]any{"path": "/tmp/x", "recursive": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	asMap, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type %T, want map[string]any", decoded)
	}
	if asMap["path"] != "/tmp/x" {
		t.Errorf("path = %v, want /tmp/x", asMap["path"])
	}
}

func TestUnmarshalInvalidCBOR(t *testing.T) {
	t.Parallel()

	var entry archiveEntry
	if err := Unmarshal([]byte{0xFF, 0xFE, 0xFD}, &entry); err == nil {
		t.Error("Unmarshal should reject invalid CBOR")
	}
}

func TestDiagnose(t *testing.T) {
	t.Parallel()

	data, err := Marshal(map[string]any{"kind": "metrics"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	notation, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(notation, `"kind"`) {
		t.Errorf("notation %q does not contain \"kind\"", notation)
	}
	if !strings.Contains(notation, `"metrics"`) {
		t.Errorf("notation %q does not contain \"metrics\"", notation)
	}
}

func BenchmarkMarshal(b *testing.B) {
	entry := archiveEntry{Kind: "tool_call", Tool: "read_file", Round: 3}

	b.ReportAllocs()
	for b.Loop() {
		Marshal(entry)
	}
}

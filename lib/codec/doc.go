// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR encoding configuration.
//
// Aegis uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: the model wire protocol, the
//     live session log, CLI output, and configuration files.
//   - CBOR for internal storage: compacted session archive entries,
//     where deterministic bytes feed the tamper-evidence hash chain.
//
// This package provides the shared CBOR encoding and decoding modes
// so every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces
// identical bytes.
//
// Usage:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// fxamacker/cbor v2 reads `json` struct tags as fallback when `cbor`
// tags are absent, so the session types carry a single `json` tag
// that controls field naming and omitempty for both formats.
package codec

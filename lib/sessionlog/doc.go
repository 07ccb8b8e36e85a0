// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessionlog persists the durable record of a conversation.
//
// The live format is JSONL: one [Entry] per line, written through
// [Writer] (which implements [orchestrator.SessionSink]) and synced
// after every entry so the record survives a crash mid-call. Each
// entry carries a BLAKE3 chain hash over its own payload and the
// previous entry's hash, so truncation, insertion, or reordering of
// a log is detectable with [Verify].
//
// Finished logs can be compacted with [Compact]: entries re-encode
// as deterministic CBOR and compress with zstd or LZ4 into a small
// single-file archive that [ReadArchive] restores.
package sessionlog

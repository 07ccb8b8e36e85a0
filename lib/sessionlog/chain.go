// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package sessionlog

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest linking session log entries.
type Hash [32]byte

// chainDomainKey is the 32-byte key for BLAKE3 keyed hashing of
// chain links. A fixed constant — changing it invalidates every
// existing log's chain. The byte values are the ASCII encoding of
// the domain name, zero-padded to 32 bytes: readable in hex dumps
// without sacrificing any cryptographic property (BLAKE3 keyed mode
// treats the key as an opaque 32-byte value).
var chainDomainKey = [32]byte{
	'a', 'e', 'g', 'i', 's', '.', 's', 'e', 's', 's', 'i', 'o', 'n', '.',
	'c', 'h', 'a', 'i', 'n', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// chainHash computes the keyed hash of previous||payload. The
// payload is the entry's JSON encoding with an empty chain field, so
// the link covers everything the entry says; the previous hash makes
// any insertion, deletion, or reorder detectable downstream.
func chainHash(previous Hash, payload []byte) Hash {
	hasher, err := blake3.NewKeyed(chainDomainKey[:])
	if err != nil {
		panic("sessionlog: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(previous[:])
	hasher.Write(payload)
	var result Hash
	copy(result[:], hasher.Sum(nil))
	return result
}

// chainPayload returns the bytes the chain link covers: the entry's
// compact JSON encoding with the Chain field cleared. Deterministic
// because encoding/json emits struct fields in declaration order.
func chainPayload(entry Entry) ([]byte, error) {
	entry.Chain = ""
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encoding chain payload: %w", err)
	}
	return payload, nil
}

// Verify reads a JSONL session log and checks every entry's chain
// hash. It returns the entries if the chain is intact, and an error
// naming the first broken line otherwise.
func Verify(reader io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var entries []Entry
	var previous Hash
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("line %d: decoding entry: %w", line, err)
		}

		payload, err := chainPayload(entry)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		want := chainHash(previous, payload)
		if entry.Chain != hex.EncodeToString(want[:]) {
			return nil, fmt.Errorf("line %d: chain hash mismatch", line)
		}

		previous = want
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading session log: %w", err)
	}
	return entries, nil
}

// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aegis-foundation/aegis/lib/sessionlog"
)

// inspectArchive prints a session archive's payload in CBOR
// diagnostic notation on stdout.
func inspectArchive(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer file.Close()

	diagnostic, err := sessionlog.DiagnoseArchive(file)
	if err != nil {
		return err
	}
	fmt.Println(diagnostic)
	return nil
}

// compactSessionLog verifies the chain of a JSONL session log and
// writes the compacted archive next to it, replacing the extension
// with .aegslog.
func compactSessionLog(path string, tag sessionlog.CompressionTag, logger *slog.Logger) error {
	destination := strings.TrimSuffix(path, filepath.Ext(path)) + ".aegslog"
	if err := sessionlog.Compact(path, destination, tag); err != nil {
		return err
	}
	logger.Info("session log compacted",
		"source", path,
		"archive", destination,
		"compression", tag.String(),
	)
	return nil
}

// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/aegis-foundation/aegis/lib/llm"
	"github.com/aegis-foundation/aegis/lib/orchestrator"
)

// newTerminalConfirm returns a confirmation callback that prompts on
// the terminal, or nil when stdin is not a terminal. A nil callback
// makes the orchestrator reject every gated call, which is the right
// default for headless runs.
func newTerminalConfirm() orchestrator.ConfirmFunc {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}

	reader := bufio.NewReader(os.Stdin)
	return func(ctx context.Context, call llm.ToolUse) (bool, error) {
		fmt.Fprintf(os.Stderr, "\nallow tool %q with input %s? [y/N] ", call.Name, summarizeInput(call))

		// The read runs on its own goroutine so a timeout or abort
		// resolves the prompt instead of waiting for enter. The
		// pending read is abandoned on cancellation.
		type line struct {
			text string
			err  error
		}
		lines := make(chan line, 1)
		go func() {
			text, err := reader.ReadString('\n')
			lines <- line{text: text, err: err}
		}()

		select {
		case answer := <-lines:
			if answer.err != nil {
				return false, fmt.Errorf("reading confirmation: %w", answer.err)
			}
			text := strings.ToLower(strings.TrimSpace(answer.text))
			return text == "y" || text == "yes", nil
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr)
			return false, ctx.Err()
		}
	}
}

// summarizeInput renders the call's input for the prompt, truncated
// so a huge argument cannot flood the terminal.
func summarizeInput(call llm.ToolUse) string {
	const limit = 200
	input := string(call.Input)
	if input == "" {
		input = "{}"
	}
	if len(input) > limit {
		return input[:limit] + "…"
	}
	return input
}

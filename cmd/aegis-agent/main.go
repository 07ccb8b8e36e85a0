// Copyright 2026 The Aegis Authors
// SPDX-License-Identifier: Apache-2.0

// aegis-agent runs one autonomous conversation turn from the command
// line: it sends the prompt to the model, executes the tools the
// model requests under the policy engine, and prints the final
// answer.
//
// Configuration comes from a config file (AEGIS_CONFIG or --config)
// with per-invocation flag overrides. The API key comes from
// AEGIS_API_KEY. A SIGINT aborts the in-flight call cleanly; the
// session log, when enabled, records everything up to the abort.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/aegis-foundation/aegis/lib/config"
	"github.com/aegis-foundation/aegis/lib/llm"
	"github.com/aegis-foundation/aegis/lib/orchestrator"
	"github.com/aegis-foundation/aegis/lib/policy"
	"github.com/aegis-foundation/aegis/lib/sessionlog"
	"github.com/aegis-foundation/aegis/lib/tool"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var model string
	var autonomy string
	var maxRounds int
	var timeout time.Duration
	var sessionLogPath string
	var systemPrompt string
	var stream bool
	var verbose bool
	var inspectArchivePath string
	var compactLogPath string

	flagSet := pflag.NewFlagSet("aegis-agent", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $AEGIS_CONFIG)")
	flagSet.StringVar(&model, "model", "", "override the configured model")
	flagSet.StringVar(&autonomy, "autonomy", "", "override autonomy level (ask_all, smart_default, full_auto)")
	flagSet.IntVar(&maxRounds, "max-rounds", 0, "override the round limit")
	flagSet.DurationVar(&timeout, "timeout", 0, "override the wall-clock budget")
	flagSet.StringVar(&sessionLogPath, "session-log", "", "override the session log path")
	flagSet.StringVar(&systemPrompt, "system", "", "override the system prompt")
	flagSet.BoolVar(&stream, "stream", true, "stream the answer as it is produced")
	flagSet.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flagSet.StringVar(&inspectArchivePath, "inspect-archive", "", "print a session archive in CBOR diagnostic notation and exit")
	flagSet.StringVar(&compactLogPath, "compact-log", "", "verify and compact a JSONL session log into an archive and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return err
	}
	maintenance := inspectArchivePath != "" || compactLogPath != ""
	if maintenance {
		if flagSet.NArg() != 0 {
			return fmt.Errorf("maintenance modes take no prompt argument")
		}
	} else if flagSet.NArg() != 1 {
		return fmt.Errorf("usage: aegis-agent [flags] <prompt>")
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	configuration, err := loadConfiguration(configPath)
	if err != nil {
		return err
	}
	applyOverrides(configuration, model, autonomy, maxRounds, timeout, sessionLogPath, systemPrompt)

	// Maintenance modes need at most the archive compression setting,
	// not a model or API key.
	if inspectArchivePath != "" {
		return inspectArchive(inspectArchivePath)
	}
	if compactLogPath != "" {
		tag, err := sessionlog.ParseCompressionTag(configuration.ArchiveCompression)
		if err != nil {
			return err
		}
		return compactSessionLog(compactLogPath, tag, logger)
	}

	prompt := flagSet.Arg(0)
	if err := configuration.Validate(); err != nil {
		return err
	}
	if configuration.APIKey == "" {
		return fmt.Errorf("AEGIS_API_KEY environment variable not set")
	}

	registry := tool.NewRegistry()
	if err := registerBuiltinTools(registry); err != nil {
		return err
	}

	engine := policy.NewEngine(configuration.AutonomyLevel())
	provider := llm.NewAnthropic(nil, configuration.BaseURL, configuration.APIKey)
	client := llm.NewClient(provider)

	var session orchestrator.SessionSink
	if configuration.SessionLog != "" {
		writer, err := sessionlog.NewWriter(configuration.SessionLog, logger)
		if err != nil {
			return err
		}
		defer writer.Close()
		session = writer
	}

	budget, err := configuration.TimeoutDuration()
	if err != nil {
		return err
	}

	agent := orchestrator.New(client, registry, engine, orchestrator.Options{
		Model:        configuration.Model,
		MaxTokens:    configuration.MaxTokens,
		SystemPrompt: configuration.SystemPrompt,
		MaxRounds:    configuration.MaxRounds,
		Timeout:      budget,
		Confirm:      newTerminalConfirm(),
		Session:      session,
		Logger:       logger,
	})

	// SIGINT aborts the call instead of killing the process, so the
	// session log ends with a clean record.
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-interrupts:
			logger.Info("interrupt received, aborting")
			agent.Abort()
		case <-watchDone:
		}
	}()

	result, err := processPrompt(context.Background(), agent, prompt, stream)
	signal.Stop(interrupts)
	close(watchDone)
	if err != nil {
		if errors.Is(err, orchestrator.ErrCancelled) {
			fmt.Fprintln(os.Stderr, "cancelled")
			return nil
		}
		return err
	}

	if !stream {
		fmt.Println(result.Text)
	}
	logger.Info("done",
		"rounds", result.RoundCount,
		"tools", len(result.ToolsUsed),
		"errors", result.ErrorCount,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"elapsed", result.Elapsed,
	)
	return nil
}

func processPrompt(ctx context.Context, agent *orchestrator.Orchestrator, prompt string, stream bool) (*orchestrator.Result, error) {
	if !stream {
		return agent.Process(ctx, prompt)
	}
	result, err := agent.ProcessStreaming(ctx, prompt, consoleProgress{})
	if err == nil {
		fmt.Println()
	}
	return result, err
}

// consoleProgress renders streaming progress on stdout/stderr.
type consoleProgress struct{}

func (consoleProgress) ThinkingStarted(round int) {
	if round > 1 {
		fmt.Fprintf(os.Stderr, "\n[round %d]\n", round)
	}
}

func (consoleProgress) TextDelta(text string) {
	fmt.Print(text)
}

func (consoleProgress) ToolStarted(call llm.ToolUse) {
	fmt.Fprintf(os.Stderr, "[tool %s]\n", call.Name)
}

func (consoleProgress) ToolCompleted(call llm.ToolUse, result llm.ToolResult) {
	if result.IsError {
		fmt.Fprintf(os.Stderr, "[tool %s failed]\n", call.Name)
	}
}

func (consoleProgress) Completed(orchestrator.Result) {}

func loadConfiguration(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv("AEGIS_CONFIG") != "" {
		return config.Load()
	}
	// No file: run on defaults plus flags. Validate catches the
	// missing model if --model was not given either.
	configuration := config.Default()
	configuration.APIKey = os.Getenv("AEGIS_API_KEY")
	return configuration, nil
}

func applyOverrides(configuration *config.Config, model, autonomy string, maxRounds int, timeout time.Duration, sessionLogPath, systemPrompt string) {
	if model != "" {
		configuration.Model = model
	}
	if autonomy != "" {
		configuration.Autonomy = autonomy
	}
	if maxRounds > 0 {
		configuration.MaxRounds = maxRounds
	}
	if timeout > 0 {
		configuration.Timeout = timeout.String()
	}
	if sessionLogPath != "" {
		configuration.SessionLog = sessionLogPath
	}
	if systemPrompt != "" {
		configuration.SystemPrompt = systemPrompt
	}
}

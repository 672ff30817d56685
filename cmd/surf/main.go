// Package main provides surf, a one-shot command-line front end to the
// orchestrator: it runs a single instruction and prints the result envelope
// as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/entrhq/surf/pkg/config"
	"github.com/entrhq/surf/pkg/engine"
	"github.com/entrhq/surf/pkg/extern"
	"github.com/entrhq/surf/pkg/logging"
	"github.com/entrhq/surf/pkg/orchestrator"
)

func main() {
	instruction := flag.String("instruction", "", "Natural-language browser instruction (required)")
	contextText := flag.String("context", "", "Additional free-form context")
	startURL := flag.String("start-url", "", "Page to open first (derived from the instruction when empty)")
	maxSteps := flag.Int("max-steps", 0, "Maximum actions per strategy (0 uses the configured default)")
	keepAlive := flag.Bool("keepalive", false, "Leave the browser session open after the run")
	configPath := flag.String("config", "", "Path to configuration file (YAML)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "surf - run one browser instruction and print the result as JSON\n\n")
		fmt.Fprintf(os.Stderr, "Usage: surf -instruction \"...\" [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  surf -instruction 'Go to apple.com and click \"Learn more\"'\n")
		fmt.Fprintf(os.Stderr, "  surf -instruction 'summarize the pricing page' -start-url https://example.com/pricing\n")
	}
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx, *configPath, orchestrator.TaskRequest{
		Instruction: *instruction,
		ContextText: *contextText,
		StartURL:    *startURL,
		MaxSteps:    *maxSteps,
		KeepAlive:   *keepAlive,
	}); err != nil {
		cancel()
		log.Printf("surf failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

func run(ctx context.Context, configPath string, req orchestrator.TaskRequest) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logErr := logging.NewLogger("surf")
	if logErr != nil {
		log.Printf("file logging unavailable, continuing on stderr: %v", logErr)
	}
	defer logger.Close()

	factory := engine.NewFactory(engine.Options{
		Headless: cfg.Headless,
		Model:    cfg.Model,
		APIKey:   cfg.OpenAIAPIKey,
		BaseURL:  cfg.OpenAIBaseURL,
	})

	cli, err := extern.NewTool(extern.ToolConfig{
		Binary:         cfg.CLIBinary,
		Headless:       cfg.CLIHeadless,
		SuccessMarkers: cfg.SuccessMarkers,
	})
	if err != nil {
		return fmt.Errorf("failed to configure external tool: %w", err)
	}

	result, err := orchestrator.New(cfg, factory, cli, logger).Execute(ctx, req)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

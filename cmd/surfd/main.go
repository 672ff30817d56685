// Package main provides surfd, the HTTP daemon that accepts natural-language
// browser instructions and executes them through the orchestrator's fallback
// chain of automation backends.
package main

import (
	"context"
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
	"github.com/entrhq/surf/pkg/server"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (YAML)")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("surfd v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		cancel()
		log.Printf("surfd failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logErr := logging.NewLogger("surfd")
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

	orch := orchestrator.New(cfg, factory, cli, logger)
	srv := server.NewServer(orch, cfg, logger)

	addr := ":" + cfg.Port
	logger.Infof("surfd v%s listening on %s (primary engine: %s)", version, addr, cfg.PrimaryEngine)
	log.Printf("surfd listening on %s", addr)
	return srv.Start(ctx, addr)
}

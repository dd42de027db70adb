package main

import (
	"context"
	"errors"
	"log"
	"os"

	"db-health-agent/internal/agent"
	"db-health-agent/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := agent.BuildLogger(cfg)
	a, err := agent.New(context.Background(), cfg, logger)
	if err != nil {
		if errors.Is(err, agent.ErrFatalStartup) {
			logger.Error("monitoring unavailable", "error", err)
		} else {
			logger.Error("agent initialization failed", "error", err)
		}
		os.Exit(1)
	}

	if err := a.Run(context.Background()); err != nil {
		logger.Error("agent runtime failed", "error", err)
	}
}

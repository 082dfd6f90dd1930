package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/medforge/tabtrain/internal/config"
	"github.com/medforge/tabtrain/internal/training"
	"github.com/medforge/tabtrain/pkg/errors"
	"github.com/medforge/tabtrain/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	sugar, err := logger.NewSugared(logLevel, "tabtrain")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer sugar.Sync()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		sugar.Fatalw("failed to load configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestrator := training.NewOrchestrator(cfg, sugar)
	mae, err := orchestrator.Run(ctx)
	if err != nil {
		if errors.IsKind(err, errors.KindConfigDrift) {
			sugar.Fatalw("configuration drifted from cached feature columns; clear the flat directory or restore the stored config",
				"flat_dir", cfg.FlatDir(), "error", err)
		}
		sugar.Fatalw("training run failed", "error", err)
	}

	sugar.Infow("training run finished", "held_out_mae", mae)
}

// migrate applies the embedded SQL migrations of the Postgres OTP store; use with go run ./cmd/migrate.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"booking-intake/backend/internal/config"
	"booking-intake/backend/internal/db/migrate"
	"booking-intake/backend/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; add it to .env or the environment")
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	if err := migrate.Run(cfg.DatabaseURL, dir, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
}

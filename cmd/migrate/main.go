// migrate applies the embedded SQL migrations: go run ./cmd/migrate -direction up
package main

import (
	"flag"
	"os"

	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/db/migrate"
	"voice-agent-platform/pkg/logger"
)

func main() {
	direction := flag.String("direction", migrate.DirectionUp, "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.New("").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)

	if err := migrate.Run(cfg.PostgresURL(), *direction); err != nil {
		log.Error("migrate failed", "direction", *direction, "err", err)
		os.Exit(1)
	}
	log.Info("migrations applied", "direction", *direction)
}

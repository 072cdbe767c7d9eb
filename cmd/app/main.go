package main

import (
	"context"
	"log"
	"os"

	"ridelink/internal/app"
	"ridelink/internal/config"
	"ridelink/internal/mylogger"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := mylogger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	appLogger.Action("ridelink_started").Info("RideLink starting up")

	if err := app.Execute(context.Background(), appLogger, cfg); err != nil {
		appLogger.Error("Fatal error", err)
		os.Exit(1)
	}
}

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/config"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/control"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/database"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/governor"
	"github.com/LegalAILegal/analiz-klientiv-sub000/internal/server"
	"github.com/LegalAILegal/analiz-klientiv-sub000/pkg/logger"
)

func main() {
	var migrate bool
	flag.BoolVar(&migrate, "migrate", false, "Run database migrations")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize database", "error", err)
	}

	if migrate {
		if err := database.RunMigrations(db); err != nil {
			log.Fatal("Failed to run migrations", "error", err)
		}
		log.Info("Database migrations completed successfully")
		return
	}

	controller := control.New(db, log)
	if err := controller.EnsureProcesses(); err != nil {
		log.Fatal("Failed to initialize process control", "error", err)
	}

	gov := governor.New(cfg.MaxDBConnections, cfg.MaxConcurrentWorkers)

	srv := server.New(cfg, db, controller, gov, log)

	log.Info("Starting bankruptcy claims service",
		"host", cfg.Host,
		"port", cfg.Port,
	)

	if err := srv.Run(); err != nil {
		log.Fatal("Server failed to start", "error", err)
	}
}

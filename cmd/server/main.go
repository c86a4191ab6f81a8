package main

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/gin-gonic/gin"

	"examgate_backend/internal/attempts"
	"examgate_backend/internal/attendance"
	"examgate_backend/internal/config"
	"examgate_backend/internal/database"
	"examgate_backend/internal/guardian"
	"examgate_backend/internal/routes"
	"examgate_backend/internal/sessions"
	"examgate_backend/internal/ws"
)

func main() {
	// Load .env (non-fatal if missing in production)
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	if err := database.SeedAdmin(db, cfg); err != nil {
		log.Fatalf("admin seed failed: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", cfg.Timezone, err)
	}

	hubs := ws.NewHubs()
	hubs.Run()

	registry := sessions.NewRegistry(db, loc)
	ledger := attendance.NewLedger(db, registry)
	aggregator := attempts.NewAggregator(db)

	sweeper := guardian.New(db, registry, aggregator, hubs)
	sweeper.Interval = cfg.SweepInterval()
	sweeper.StartupDelay = cfg.SweepStartupDelay()
	sweeper.Grace = cfg.GracePeriod()
	sweeper.Start()
	defer sweeper.Stop()

	r := gin.Default()
	routes.Register(r, routes.Deps{
		DB:       db,
		Cfg:      cfg,
		Registry: registry,
		Ledger:   ledger,
		Attempts: aggregator,
		Hubs:     hubs,
	})

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	if err := r.Run(":" + port); err != nil {
		log.Println("server exited with error:", err)
		os.Exit(1)
	}
}

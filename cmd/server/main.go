// Command server runs the spot exchange's HTTP API: it loads
// configuration, connects to the relational backend, migrates the
// schema, seeds bootstrap state, and serves /api/v1 until an interrupt
// or SIGTERM asks it to shut down gracefully. Adapted from the
// teacher's cmd/server/main.go wiring.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"spot-exchange/internal/api"
	"spot-exchange/internal/bootstrap"
	"spot-exchange/internal/config"
	"spot-exchange/internal/dbconn"
	"spot-exchange/internal/engine"
	"spot-exchange/internal/logging"
)

func main() {
	log := logging.New()

	if err := godotenv.Load(); err != nil {
		log.Info().Msg(".env not loaded, continuing with process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	adminAPIKey, err := uuid.Parse(cfg.AdminAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("ADMIN_API_KEY must be a valid UUID")
	}

	db, err := dbconn.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer func() {
		log.Info().Msg("closing database connection")
		db.Close()
	}()
	log.Info().Msg("database connection established")

	if err := dbconn.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate schema")
	}
	log.Info().Msg("schema migrated")

	ctx := context.Background()
	if err := bootstrap.Seed(ctx, db, adminAPIKey, log); err != nil {
		log.Fatal().Err(err).Msg("failed to seed bootstrap state")
	}

	eng := engine.New(db, log)
	srv := api.New(db, eng, adminAPIKey, log)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router(),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-stop
	log.Info().Msg("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	} else {
		log.Info().Msg("server gracefully stopped")
	}
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/scrimlab/overqueue/internal/config"
	"github.com/scrimlab/overqueue/internal/database"
	"github.com/scrimlab/overqueue/internal/engine"
	"github.com/scrimlab/overqueue/internal/events"
	"github.com/scrimlab/overqueue/internal/formation"
	server "github.com/scrimlab/overqueue/internal/http"
	"github.com/scrimlab/overqueue/internal/lifecycle"
	"github.com/scrimlab/overqueue/internal/metrics"
	"github.com/scrimlab/overqueue/internal/notifier/slack"
	"github.com/scrimlab/overqueue/internal/queue"
	"github.com/scrimlab/overqueue/internal/rating"
	"github.com/scrimlab/overqueue/internal/roster"
	"github.com/scrimlab/overqueue/internal/voice"
)

func main() {
	// Start profiling timer
	startTime := time.Now()
	log.SetFormatter(log.JSONFormatter)
	cfg := config.Load()
	db, dbTeardown, err := database.InitDB(cfg.DBName, cfg.Turso.PrimaryURL, cfg.Turso.AuthToken, cfg.MigrationsDir)
	dbInitDuration := time.Since(startTime)
	log.Info("Database initialization time recorded", "duration_ms", dbInitDuration.Milliseconds())
	if err != nil {
		log.Fatalf("Failed to initialize database: %s", err)
	}
	defer func() {
		log.Info("Closing database connection")
		dbTeardown()
	}()

	store := roster.New(db)
	metricsSvc := metrics.NewService()
	metricsHandler := metrics.NewMetricsHandler()
	notifier := slack.New(cfg.Slack.Token, cfg.Slack.ChannelID, metricsSvc)
	bus := events.New(cfg.ProjectID)

	params := rating.Params{
		KFactor:            cfg.Rating.KFactor,
		CalibrationKFactor: cfg.Rating.CalibrationKFactor,
		CalibrationMatches: cfg.Rating.CalibrationMatches,
		DefaultMMR:         cfg.Rating.DefaultMMR,
		Floor:              cfg.Rating.Floor,
		Ceiling:            cfg.Rating.Ceiling,
	}
	ctrl := lifecycle.New(store, params, lifecycle.ReportPolicy(cfg.Queue.ReportPolicy), cfg.MapPool, cfg.CommunityID)

	eng := engine.New(engine.Config{
		CommunityID: cfg.CommunityID,
		Formation: formation.Config{
			Mode:            formation.Mode(cfg.Queue.Mode),
			PlayersPerMatch: cfg.Queue.PlayersPerMatch,
			TankPerTeam:     cfg.Queue.TankPerTeam,
			DPSPerTeam:      cfg.Queue.DPSPerTeam,
			SupportPerTeam:  cfg.Queue.SupportPerTeam,
		},
		DefaultRole: queue.Role(cfg.Queue.DefaultRole),
		Rating:      params,
		Voice: engine.VoiceChannels{
			Main:  cfg.Voice.MainChannelID,
			TeamA: cfg.Voice.TeamAChannelID,
			TeamB: cfg.Voice.TeamBChannelID,
		},
	}, store, ctrl, voice.NewNoop(), notifier, bus, metricsSvc)

	if err := eng.Restore(); err != nil {
		log.Fatal("Failed to restore runtime state", "error", err)
	}

	engineCtx, engineCancel := context.WithCancel(context.Background())
	defer engineCancel()
	go eng.Run(engineCtx)

	s := server.NewServer(
		eng,
		store,
		metricsSvc,
		metricsHandler,
		cfg,
	)

	// --- Record startup time ---
	startupDuration := time.Since(startTime)
	metricsSvc.SetStartupTime(startupDuration.Seconds())
	log.Info("Startup time recorded", "duration_ms", startupDuration.Milliseconds())

	// --- Graceful shutdown setup ---
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: s,
	}

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)

	// Start the server in a goroutine
	go func() {
		log.Info("Server started", "port", cfg.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", "signal", sig)

		// Create a context with a timeout for the shutdown.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Attempt to gracefully shut down the server.
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Server shutdown failed", "error", err)
		} else {
			log.Info("Server gracefully stopped")
		}
		engineCancel()
	}

	log.Info("Server process shutting down")
}

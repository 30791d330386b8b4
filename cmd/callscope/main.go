package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/callscope/callscope/internal/api"
	"github.com/callscope/callscope/internal/audio"
	"github.com/callscope/callscope/internal/config"
	"github.com/callscope/callscope/internal/database"
	"github.com/callscope/callscope/internal/database/pgsource"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	slog.SetDefault(slog.New(cfg.SlogHandler(os.Stdout)))

	slog.Info("starting callscope",
		"http_port", cfg.HTTPPort,
		"cdr_driver", cfg.CDRDriver,
		"data_dir", cfg.DataDir,
	)

	// Open the CDR source: embedded sqlite by default, or an existing
	// PostgreSQL CDR table.
	legs, cleanup, err := openLegSource(cfg)
	if err != nil {
		slog.Error("failed to open cdr source", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Load classification rules and watch the file for edits.
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		slog.Error("failed to load rules", "path", cfg.RulesFile, "error", err)
		os.Exit(1)
	}
	provider := config.NewRulesProvider(cfg.RulesFile, rules)

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	if err := provider.Watch(appCtx); err != nil {
		slog.Warn("rules file watch disabled", "error", err)
	}

	// Audio store and retention sweep.
	store := audio.NewStore(cfg.RecordingsRoot())
	audio.StartCleanupTicker(appCtx, legs, store, cfg.RetentionDays, time.Hour)

	// HTTP server using the api package.
	handler := api.NewServer(cfg, legs, provider, store)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down server")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("callscope stopped")
}

// openLegSource opens the configured CDR backend and returns it together
// with a close function.
func openLegSource(cfg *config.Config) (database.LegSource, func(), error) {
	switch cfg.CDRDriver {
	case "postgres":
		src, err := pgsource.New(cfg.CDRDSN, cfg.CDRTable)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	default:
		db, err := database.Open(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return database.NewLegSource(db), func() { db.Close() }, nil
	}
}

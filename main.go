package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"consciousness-forge/baseline"
	"consciousness-forge/config"
	"consciousness-forge/internal/api"
	"consciousness-forge/internal/app"
	"consciousness-forge/keys"
	"consciousness-forge/observability"
	"consciousness-forge/repository"
	"consciousness-forge/services"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	observability.InitLogger(os.Getenv("ENV") == "production")
	observability.InitMetrics()

	if envErr != nil {
		observability.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		observability.Fatal("invalid configuration", "error", err)
	}

	ctx := context.Background()

	// Server-side credential. The server still starts without one; the
	// page is served and the relay reports the missing credential.
	cred, ok := keys.LoadAnthropic()
	if !ok {
		observability.Warn("ANTHROPIC_API_KEY not set, relay requests will fail")
	}
	if availability := keys.ValidateAll(); len(availability.Missing) > 0 {
		observability.Info("provider key inventory", "available", availability.Available, "missing", availability.Missing)
	}

	// Database is optional; without it sessions are not persisted.
	var repo app.RepositoryInterface
	if cfg.HasDatabase() {
		pgRepo, err := repository.NewRepository(ctx, cfg.Database.URL)
		if err != nil {
			observability.Warn("failed to initialize database, sessions will not be persisted", "error", err)
		} else {
			repo = pgRepo
			observability.Info("connected to database")
		}
	} else {
		observability.Info("DATABASE_URL not set, sessions will not be persisted")
	}

	anthropic := services.NewAnthropicService(cfg, cred)
	runner := baseline.NewRunner(anthropic, cfg.Baseline)

	application := app.New(cfg, repo, anthropic, runner)
	application.Startup(ctx)

	handler := api.NewHandler(application, cfg)
	router := api.NewRouter(handler, cfg)

	// Write timeout leaves headroom over the upstream timeout
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: time.Duration(cfg.Anthropic.TimeoutSeconds+30) * time.Second,
	}

	go func() {
		observability.Info("serving consciousness forge",
			"url", fmt.Sprintf("http://%s:%d/consciousness-forge", cfg.HTTP.Host, cfg.HTTP.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observability.Fatal("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	observability.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		observability.Fatal("server forced to shutdown", "error", err)
	}

	application.Shutdown(shutdownCtx)
	observability.Info("server stopped")
}

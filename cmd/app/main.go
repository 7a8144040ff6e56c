package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatapi/internal/api/v1/router"
	"chatapi/internal/config"
	"chatapi/internal/logger"

	"github.com/joho/godotenv"
)

// @title ChatAPI
// @version 1.0
// @description AI chat backend with subscription-based daily token quotas
// @host localhost:8080
// @BasePath /v1
// @Schemes http https

func main() {
	log := logger.New()

	// 1. Load configuration
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Msgf("Error loading config: %v", err)
	}

	// 2. Build router (and get DB pool + usage recorder)
	r, pool, rec, err := router.New(cfg)
	if err != nil {
		log.Fatal().Msgf("Failed to build router: %v", err)
	}
	defer pool.Close()

	// 3. Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 150 * time.Second, // provider calls can be slow
		IdleTimeout:  60 * time.Second,
	}

	// 4. Start server in a goroutine
	go func() {
		log.Info().Msgf("🚀 Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Msgf("Listen: %s\n", err)
		}
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutdown signal received, exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Msgf("Server forced to shutdown: %v", err)
	}

	// Drain queued usage events before the pool closes.
	rec.Close()
	log.Info().Msg("Server shut down gracefully")
}

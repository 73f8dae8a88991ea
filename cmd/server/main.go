// Package main is the entry point for the Video Insights API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/Shimizu-Technology/video-insights-api/internal/app"
	"github.com/Shimizu-Technology/video-insights-api/internal/config"
	"github.com/Shimizu-Technology/video-insights-api/internal/handlers"
	"github.com/Shimizu-Technology/video-insights-api/internal/router"
	"github.com/Shimizu-Technology/video-insights-api/internal/services/worker"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("🚀 Video Insights API %s starting...", Version)

	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("⚠️  Could not read .env: %v", err)
	}

	// Step 1: Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	log.Printf("📋 Config loaded: port=%s, model=%s, backend=%s, workers=%d, gin_mode=%s",
		cfg.Port, cfg.Model, cfg.Backend, cfg.WorkerCount, cfg.GinMode)
	log.Printf("💰 Daily budgets: user=$%.2f global=$%.2f", cfg.UserDailyBudgetUSD, cfg.GlobalDailyBudgetUSD)

	gin.SetMode(cfg.GinMode)

	// Step 2: Database, model client and analysis services
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("❌ Failed to start: %v", err)
	}
	defer a.Close()
	log.Printf("✅ Database connected (%s)", a.DB.Dialect())

	if _, err := a.DB.MarkInterruptedJobs(context.Background()); err != nil {
		log.Printf("⚠️  %v", err)
	}
	if cfg.YtDlpPath != "" {
		log.Printf("🔧 yt-dlp duration fallback: %s", cfg.YtDlpPath)
	}

	// Step 3: Create and Start Worker Pool
	wp := worker.NewPool(cfg.WorkerCount, cfg.JobQueueSize, a.DB, a.Analysis)
	wp.Start()
	defer wp.Stop()

	if cfg.AdminAPIKey != "" {
		log.Println("✅ Admin API key configured (API key creation protected)")
	} else {
		log.Println("⚠️  No admin API key set (API key creation is open; set ADMIN_API_KEY in production)")
	}

	// Step 4: Setup HTTP Router
	handlers.Version = Version
	h := handlers.NewHandler(a.DB, a.Analysis, a.Budget, wp, cfg.JWTSecret, cfg.DefaultRateLimit)
	r := router.Setup(h, router.Options{
		JWTSecret:        cfg.JWTSecret,
		AdminAPIKey:      cfg.AdminAPIKey,
		AllowedOrigins:   cfg.AllowedOrigins,
		DefaultRateLimit: cfg.DefaultRateLimit,
	})

	// Step 5: Start the HTTP Server
	// Synchronous analyses of long videos take minutes, so the write timeout
	// covers a full model call plus retries.
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3*cfg.ModelCallTimeout + time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🌐 Server listening on http://localhost:%s", cfg.Port)
		log.Printf("📖 Docs: http://localhost:%s/api/docs", cfg.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	// Step 6: Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("🛑 Received signal %v, shutting down gracefully...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Server forced to shutdown: %v", err)
	}

	log.Println("👋 Server stopped. Goodbye!")
}

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"stablewatch/config"
	"stablewatch/models"
	"stablewatch/routes"
	"stablewatch/scheduler"
	"stablewatch/services/marketdata"
	"stablewatch/services/volatility"
)

func main() {
	log.Println("==============================================")
	log.Println("  stablewatch volatility tracker - Starting...")
	log.Println("==============================================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer config.CloseDB()

	if err := models.MigrateMarketModels(db); err != nil {
		log.Printf("Warning: Migration failed: %v", err)
	}

	if err := marketdata.ValidateCoinIDs(db); err != nil {
		log.Printf("Warning: Coin id validation failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ohlc := marketdata.NewOHLCClient(cfg.CoinGeckoAPIKey)
	tracker := volatility.NewTracker(db, ohlc)

	// Run once immediately, then hourly on the scheduler
	go tracker.Run(ctx)

	jobScheduler := scheduler.NewScheduler(tracker)
	jobScheduler.Start(ctx)

	// Health endpoints for container orchestration
	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.HealthPort,
		Handler:           routes.NewHealthRouter("voltracker", db),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("Health server listening on 0.0.0.0:%s", cfg.HealthPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Health server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	jobScheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server forced to shutdown: %v", err)
	}

	log.Println("Volatility tracker shutdown completed")
}

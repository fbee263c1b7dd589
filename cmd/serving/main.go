package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traffic-aqi-pipeline/internal/database"
	"traffic-aqi-pipeline/internal/health"
	"traffic-aqi-pipeline/internal/localtime"
	"traffic-aqi-pipeline/internal/serving"
	"traffic-aqi-pipeline/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Serving API...")

	localizer, err := localtime.New(cfg.LocalTime.OffsetHours, cfg.LocalTime.PeakHours)
	if err != nil {
		log.Fatalf("Failed to build local time settings: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	service := serving.NewService(db, localizer, cfg.Speed.RealtimeRetention)

	// Health endpoints share the API router
	registry := health.NewRegistry()
	healthHandler := health.NewHandler(registry, map[string]health.Pinger{
		"postgres": health.PingerFunc(db.PingContext),
	})

	server := serving.NewServer(
		fmt.Sprintf(":%d", cfg.Serving.Port),
		service,
		cfg.Serving.MaxRealtimeAge,
		healthHandler,
	)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("API server error: %v", err)
		}
	}()

	fmt.Println("\n✓ Serving API is running")
	fmt.Printf("✓ Listening on :%d\n", cfg.Serving.Port)
	fmt.Println("✓ Press Ctrl+C to stop")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	forceExit := time.AfterFunc(cfg.Shutdown.Hard, func() {
		log.Fatalf("Shutdown exceeded %v, forcing exit", cfg.Shutdown.Hard)
	})
	defer forceExit.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Grace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("API server shutdown error: %v", err)
	}

	fmt.Println("Serving API stopped")
}

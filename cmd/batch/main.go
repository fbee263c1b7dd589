package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traffic-aqi-pipeline/internal/batch"
	"traffic-aqi-pipeline/internal/database"
	"traffic-aqi-pipeline/internal/health"
	"traffic-aqi-pipeline/internal/localtime"
	"traffic-aqi-pipeline/internal/scheduler"
	"traffic-aqi-pipeline/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Batch Layer Service...")

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

	// Run migrations
	if err := db.RunMigrations("migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	service := batch.NewService(
		batch.NewHourlyJob(db, localizer),
		batch.NewDailyJob(db, localizer),
		batch.NewPeakJob(db, localizer),
	)

	// Heartbeats cover each job's own cadence
	registry := health.NewRegistry()
	for name, period := range map[string]time.Duration{
		"hourly-rebuild": time.Hour,
		"daily-rollup":   24 * time.Hour,
		"peak-analysis":  24 * time.Hour,
	} {
		if err := registry.Register(name, period); err != nil {
			log.Fatalf("Failed to register heartbeat: %v", err)
		}
	}

	beat := func(name string) {
		if err := registry.Beat(name); err != nil {
			log.Printf("Failed to record heartbeat: %v", err)
		}
	}

	// Schedule the batch jobs in local time
	sched := scheduler.New(localizer.Location())
	if err := sched.EveryHourAt("hourly-rebuild", cfg.Batch.HourlyMinute, func(ctx context.Context) {
		service.RunHourly(ctx)
		beat("hourly-rebuild")
	}); err != nil {
		log.Fatalf("Failed to schedule hourly rebuild: %v", err)
	}
	if err := sched.DailyAt("daily-rollup", cfg.Batch.DailyHourLocal, 0, func(ctx context.Context) {
		service.RunDaily(ctx)
		beat("daily-rollup")
	}); err != nil {
		log.Fatalf("Failed to schedule daily rollup: %v", err)
	}
	if err := sched.DailyAt("peak-analysis", cfg.Batch.PeakHourLocal, 0, func(ctx context.Context) {
		service.RunPeak(ctx)
		beat("peak-analysis")
	}); err != nil {
		log.Fatalf("Failed to schedule peak analysis: %v", err)
	}

	// Rebuild the windows that closed while the service was down
	if err := sched.RunOnceAt("catch-up", time.Now().Add(5*time.Second), func(ctx context.Context) {
		service.CatchUp(ctx)
		beat("hourly-rebuild")
		beat("daily-rollup")
		beat("peak-analysis")
	}); err != nil {
		log.Fatalf("Failed to schedule catch-up: %v", err)
	}

	sched.Start()
	fmt.Printf("Scheduled jobs: hourly at :%02d, daily at %02d:00, peak at %02d:00 (local)\n",
		cfg.Batch.HourlyMinute, cfg.Batch.DailyHourLocal, cfg.Batch.PeakHourLocal)

	// Health endpoints
	healthHandler := health.NewHandler(registry, map[string]health.Pinger{
		"postgres": health.PingerFunc(db.PingContext),
	})
	healthServer := health.NewServer(fmt.Sprintf(":%d", cfg.Health.Port), healthHandler)
	go func() {
		if err := healthServer.Start(); err != nil {
			log.Printf("Health server error: %v", err)
		}
	}()
	fmt.Printf("Health endpoints listening on :%d\n", cfg.Health.Port)

	// Print batch stats periodically
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			stats := service.Stats()
			fmt.Printf("Batch stats: Runs=%d, Skips=%d, Failures=%d\n",
				stats.Runs, stats.Skips, stats.Failures)
		}
	}()

	fmt.Println("\n✓ Batch Layer Service is running")
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

	if !sched.Stop(cfg.Shutdown.Grace) {
		log.Printf("A batch job did not finish within %v", cfg.Shutdown.Grace)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Grace)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server shutdown error: %v", err)
	}

	fmt.Println("Batch Layer Service stopped")
}

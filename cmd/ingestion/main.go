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
	"traffic-aqi-pipeline/internal/ingest"
	"traffic-aqi-pipeline/internal/localtime"
	"traffic-aqi-pipeline/internal/queue"
	"traffic-aqi-pipeline/internal/scheduler"
	"traffic-aqi-pipeline/internal/upstream"
	"traffic-aqi-pipeline/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Upstream.TomTomAPIKey == "" {
		log.Fatalf("TOMTOM_API_KEY is required")
	}
	if cfg.Upstream.AQICNToken == "" {
		log.Fatalf("AQICN_TOKEN is required")
	}

	fmt.Println("Starting Ingestion Service...")

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

	// Register the monitored locations
	ctx := context.Background()
	sites := make([]upstream.Site, 0, len(cfg.Locations))
	for _, loc := range cfg.Locations {
		if err := db.UpsertLocation(ctx, &database.Location{
			Name:      loc.Name,
			StationID: loc.StationID,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
		}); err != nil {
			log.Fatalf("Failed to register location %s: %v", loc.Name, err)
		}
		sites = append(sites, upstream.Site{
			Name:      loc.Name,
			StationID: loc.StationID,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
		})
	}
	fmt.Printf("Registered %d monitored locations\n", len(sites))

	// Create Kafka topic
	if err := queue.CreateTopic(
		cfg.Kafka.Brokers,
		cfg.Kafka.Topic,
		cfg.Kafka.NumPartitions,
		1, // replication factor
	); err != nil {
		fmt.Printf("Note: Topic creation failed (may already exist): %v\n", err)
	}

	// Create Kafka producer
	producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer producer.Close()
	fmt.Println("Kafka producer initialized")

	// Create upstream feed clients
	feeds := &upstream.Feeds{
		Traffic: upstream.NewTrafficClient(cfg.Upstream.TrafficAPIURL, cfg.Upstream.TomTomAPIKey, cfg.Upstream.Timeout),
		AQI:     upstream.NewAQIClient(cfg.Upstream.AQIAPIURL, cfg.Upstream.AQICNToken, cfg.Upstream.Timeout),
	}

	poller := ingest.NewPoller(
		sites,
		feeds,
		producer,
		db,
		localizer,
		cfg.Upstream.Timeout,
		cfg.Ingestion.FanoutConcurrency,
	)

	// Health endpoints
	registry := health.NewRegistry()
	if err := registry.Register("poller", cfg.Ingestion.PollInterval); err != nil {
		log.Fatalf("Failed to register heartbeat: %v", err)
	}
	healthHandler := health.NewHandler(registry, map[string]health.Pinger{
		"postgres": health.PingerFunc(db.PingContext),
		"kafka": health.PingerFunc(func(ctx context.Context) error {
			return queue.Ping(ctx, cfg.Kafka.Brokers)
		}),
	})
	healthServer := health.NewServer(fmt.Sprintf(":%d", cfg.Health.Port), healthHandler)
	go func() {
		if err := healthServer.Start(); err != nil {
			log.Printf("Health server error: %v", err)
		}
	}()
	fmt.Printf("Health endpoints listening on :%d\n", cfg.Health.Port)

	// Schedule the poll cycle
	sched := scheduler.New(localizer.Location())
	err = sched.Every("poll", cfg.Ingestion.PollInterval, func(ctx context.Context) {
		poller.Cycle(ctx)
		if err := registry.Beat("poller"); err != nil {
			log.Printf("Failed to record heartbeat: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule poll cycle: %v", err)
	}
	sched.Start()

	// Print poller stats periodically
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := poller.Stats()
			fmt.Printf("Poller stats: Cycles=%d, Emitted=%d, Skipped=%d, PublishDrops=%d, RawDrops=%d\n",
				stats.Cycles, stats.EmittedSamples, stats.SkippedLocations,
				stats.PublishDrops, stats.RawDrops)
		}
	}()

	fmt.Println("\n✓ Ingestion Service is running")
	fmt.Printf("✓ Polling %d locations every %v\n", len(sites), cfg.Ingestion.PollInterval)
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
		log.Printf("Poll cycle did not finish within %v", cfg.Shutdown.Grace)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Grace)
	defer cancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server shutdown error: %v", err)
	}

	fmt.Println("Ingestion Service stopped")
}

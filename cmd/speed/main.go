package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"traffic-aqi-pipeline/internal/database"
	"traffic-aqi-pipeline/internal/dedup"
	"traffic-aqi-pipeline/internal/health"
	"traffic-aqi-pipeline/internal/localtime"
	"traffic-aqi-pipeline/internal/queue"
	"traffic-aqi-pipeline/internal/scheduler"
	"traffic-aqi-pipeline/internal/speed"
	"traffic-aqi-pipeline/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Speed Layer Service...")

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

	// Connect to Redis for the delivery guard
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	fmt.Println("Connected to Redis")

	guard := dedup.NewGuard(redisClient, cfg.Redis.DedupTTL)
	processor := speed.NewProcessor(db, guard, localizer)

	// Start the consumer group
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	consumers := make([]*queue.Consumer, 0, cfg.Speed.ConsumerConcurrency)
	for i := 0; i < cfg.Speed.ConsumerConcurrency; i++ {
		consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
		consumers = append(consumers, consumer)

		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := consumer.Run(ctx, processor.Handle); err != nil {
				log.Printf("Consumer %d stopped: %v", id, err)
			}
		}(i)
	}
	fmt.Printf("Started %d consumers in group %s\n", cfg.Speed.ConsumerConcurrency, cfg.Kafka.GroupID)

	// Schedule the retention sweep
	evictor := speed.NewEvictor(db, cfg.Speed.RealtimeRetention)

	registry := health.NewRegistry()
	if err := registry.Register("evictor", cfg.Speed.EvictionInterval); err != nil {
		log.Fatalf("Failed to register heartbeat: %v", err)
	}

	sched := scheduler.New(localizer.Location())
	err = sched.Every("evict-stale-realtime", cfg.Speed.EvictionInterval, func(ctx context.Context) {
		evictor.Run(ctx)
		if err := registry.Beat("evictor"); err != nil {
			log.Printf("Failed to record heartbeat: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule eviction: %v", err)
	}
	sched.Start()

	// Health endpoints
	healthHandler := health.NewHandler(registry, map[string]health.Pinger{
		"postgres": health.PingerFunc(db.PingContext),
		"redis": health.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
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

	// Print processor stats periodically
	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := processor.Stats()
			fmt.Printf("Processor stats: Processed=%d, Duplicates=%d, Malformed=%d, Evicted=%d\n",
				stats.Processed, stats.Duplicates, stats.Malformed, evictor.Evicted())
		}
	}()

	fmt.Println("\n✓ Speed Layer Service is running")
	fmt.Println("✓ Consuming samples and maintaining the real-time view")
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

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Shutdown.Grace):
		log.Printf("Consumers did not stop within %v", cfg.Shutdown.Grace)
	}

	for _, consumer := range consumers {
		if err := consumer.Close(); err != nil {
			log.Printf("Failed to close consumer: %v", err)
		}
	}

	if !sched.Stop(cfg.Shutdown.Grace) {
		log.Printf("Eviction sweep did not finish within %v", cfg.Shutdown.Grace)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Shutdown.Grace)
	defer cancelShutdown()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server shutdown error: %v", err)
	}

	fmt.Println("Speed Layer Service stopped")
}

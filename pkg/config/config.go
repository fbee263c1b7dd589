package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Upstream  UpstreamConfig
	Ingestion IngestionConfig
	Speed     SpeedConfig
	Batch     BatchConfig
	LocalTime LocalTimeConfig
	Serving   ServingConfig
	Health    HealthConfig
	Shutdown  ShutdownConfig
	Locations []Location
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	DedupTTL time.Duration
}

type KafkaConfig struct {
	Brokers       []string
	Topic         string
	GroupID       string
	NumPartitions int
}

type UpstreamConfig struct {
	TrafficAPIURL string
	AQIAPIURL     string
	TomTomAPIKey  string
	AQICNToken    string
	Timeout       time.Duration
}

type IngestionConfig struct {
	PollInterval      time.Duration
	FanoutConcurrency int
	LocationsFile     string
}

type SpeedConfig struct {
	ConsumerConcurrency int
	RealtimeRetention   time.Duration
	EvictionInterval    time.Duration
}

type BatchConfig struct {
	HourlyMinute   int
	DailyHourLocal int
	PeakHourLocal  int
}

type LocalTimeConfig struct {
	OffsetHours int
	PeakHours   []int
}

type ServingConfig struct {
	Port           int
	MaxRealtimeAge time.Duration
}

type HealthConfig struct {
	Port int
}

type ShutdownConfig struct {
	Grace time.Duration
	Hard  time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	peakHours, err := getEnvAsIntSlice("PEAK_HOURS_LOCAL", []int{6, 7, 8, 9, 16, 17, 18, 19})
	if err != nil {
		return nil, fmt.Errorf("failed to parse PEAK_HOURS_LOCAL: %w", err)
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "traffic_user"),
			Password: getEnv("DB_PASSWORD", "traffic_pass"),
			DBName:   getEnv("DB_NAME", "traffic_aqi_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			DedupTTL: getEnvAsSeconds("DEDUP_TTL_SECONDS", 7200),
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			Topic:         getEnv("KAFKA_TOPIC", "traffic-aqi-data"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "speed-layer"),
			NumPartitions: getEnvAsInt("KAFKA_NUM_PARTITIONS", 10),
		},
		Upstream: UpstreamConfig{
			TrafficAPIURL: getEnv("TRAFFIC_API_URL", "https://api.tomtom.com/traffic/services/4/flowSegmentData/absolute/10/json"),
			AQIAPIURL:     getEnv("AQI_API_URL", "https://api.waqi.info/feed"),
			TomTomAPIKey:  getEnv("TOMTOM_API_KEY", ""),
			AQICNToken:    getEnv("AQICN_TOKEN", ""),
			Timeout:       getEnvAsSeconds("UPSTREAM_TIMEOUT_SECONDS", 10),
		},
		Ingestion: IngestionConfig{
			PollInterval:      getEnvAsSeconds("POLL_INTERVAL_SECONDS", 15),
			FanoutConcurrency: getEnvAsInt("FANOUT_CONCURRENCY", 32),
			LocationsFile:     getEnv("LOCATIONS_FILE", ""),
		},
		Speed: SpeedConfig{
			ConsumerConcurrency: getEnvAsInt("SPEED_CONSUMER_CONCURRENCY", 2),
			RealtimeRetention:   getEnvAsSeconds("REALTIME_RETENTION_SECONDS", 3600),
			EvictionInterval:    getEnvAsSeconds("REALTIME_EVICTION_INTERVAL_SECONDS", 60),
		},
		Batch: BatchConfig{
			HourlyMinute:   getEnvAsInt("BATCH_HOURLY_MINUTE", 5),
			DailyHourLocal: getEnvAsInt("BATCH_DAILY_HOUR_LOCAL", 2),
			PeakHourLocal:  getEnvAsInt("BATCH_PEAK_HOUR_LOCAL", 3),
		},
		LocalTime: LocalTimeConfig{
			OffsetHours: getEnvAsInt("LOCAL_OFFSET_HOURS", 7),
			PeakHours:   peakHours,
		},
		Serving: ServingConfig{
			Port:           getEnvAsInt("SERVING_PORT", 8090),
			MaxRealtimeAge: getEnvAsSeconds("SERVING_MAX_REALTIME_AGE_SECONDS", 300),
		},
		Health: HealthConfig{
			Port: getEnvAsInt("HEALTH_PORT", 8091),
		},
		Shutdown: ShutdownConfig{
			Grace: getEnvAsSeconds("SHUTDOWN_GRACE_SECONDS", 30),
			Hard:  getEnvAsSeconds("SHUTDOWN_HARD_SECONDS", 60),
		},
	}

	locations, err := LoadLocations(config.Ingestion.LocationsFile)
	if err != nil {
		return nil, err
	}
	config.Locations = locations

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the structural constraints every process relies on.
func (c *Config) Validate() error {
	if c.Ingestion.PollInterval <= 0 {
		return fmt.Errorf("invalid POLL_INTERVAL_SECONDS: must be positive")
	}
	if c.Ingestion.FanoutConcurrency < 1 {
		return fmt.Errorf("invalid FANOUT_CONCURRENCY: must be at least 1")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("invalid UPSTREAM_TIMEOUT_SECONDS: must be positive")
	}
	if c.Kafka.NumPartitions < 1 {
		return fmt.Errorf("invalid KAFKA_NUM_PARTITIONS: must be at least 1")
	}
	if c.Speed.ConsumerConcurrency < 1 {
		return fmt.Errorf("invalid SPEED_CONSUMER_CONCURRENCY: must be at least 1")
	}
	if c.Speed.RealtimeRetention <= 0 {
		return fmt.Errorf("invalid REALTIME_RETENTION_SECONDS: must be positive")
	}
	if c.Speed.EvictionInterval <= 0 {
		return fmt.Errorf("invalid REALTIME_EVICTION_INTERVAL_SECONDS: must be positive")
	}
	if c.Batch.HourlyMinute < 0 || c.Batch.HourlyMinute > 59 {
		return fmt.Errorf("invalid BATCH_HOURLY_MINUTE: %d not in 0..59", c.Batch.HourlyMinute)
	}
	if c.Batch.DailyHourLocal < 0 || c.Batch.DailyHourLocal > 23 {
		return fmt.Errorf("invalid BATCH_DAILY_HOUR_LOCAL: %d not in 0..23", c.Batch.DailyHourLocal)
	}
	if c.Batch.PeakHourLocal < 0 || c.Batch.PeakHourLocal > 23 {
		return fmt.Errorf("invalid BATCH_PEAK_HOUR_LOCAL: %d not in 0..23", c.Batch.PeakHourLocal)
	}
	if c.LocalTime.OffsetHours < -12 || c.LocalTime.OffsetHours > 14 {
		return fmt.Errorf("invalid LOCAL_OFFSET_HOURS: %d not in -12..14", c.LocalTime.OffsetHours)
	}
	if len(c.LocalTime.PeakHours) == 0 {
		return fmt.Errorf("invalid PEAK_HOURS_LOCAL: at least one hour required")
	}
	for _, hour := range c.LocalTime.PeakHours {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("invalid PEAK_HOURS_LOCAL: hour %d not in 0..23", hour)
		}
	}
	if c.Serving.MaxRealtimeAge <= 0 {
		return fmt.Errorf("invalid SERVING_MAX_REALTIME_AGE_SECONDS: must be positive")
	}
	if c.Shutdown.Grace <= 0 {
		return fmt.Errorf("invalid SHUTDOWN_GRACE_SECONDS: must be positive")
	}
	if c.Shutdown.Hard < c.Shutdown.Grace {
		return fmt.Errorf("invalid SHUTDOWN_HARD_SECONDS: must be at least the grace period")
	}
	if len(c.Locations) == 0 {
		return fmt.Errorf("no monitored locations configured")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

func getEnvAsIntSlice(key string, defaultValue []int) ([]int, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}

	parts := strings.Split(valueStr, ",")
	values := make([]int, 0, len(parts))
	for _, part := range parts {
		value, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", part)
		}
		values = append(values, value)
	}
	return values, nil
}

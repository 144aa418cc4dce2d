package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the indoor monitor backend
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	MQTT      MQTTConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	Engine    EngineConfig
	RateLimit RateLimitConfig
	Retention RetentionConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds reading store configuration.
// Driver selects "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver     string
	URL        string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	BrokerURL       string
	ClientID        string
	Username        string
	Password        string
	KeepAlive       time.Duration
	PingTimeout     time.Duration
	ConnectRetry    bool
	TopicSensorData string
}

// KafkaConfig holds Kafka ingestion configuration. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers       []string
	TopicReadings string
	GroupID       string
	BatchSize     int
	FlushInterval time.Duration
}

// RedisConfig holds response cache configuration. Empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// EngineConfig holds the aggregation engine limits and defaults
type EngineConfig struct {
	DefaultWindow  time.Duration
	LatestWindow   time.Duration
	MaxWindow      time.Duration
	MaxBuckets     int
	MinSamples     int
	ChunkThreshold int
	ChunkSpan      time.Duration
	Precision      int
}

// RateLimitConfig holds per-client API rate limiting. Zero RPS disables it.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// RetentionConfig controls deletion of old readings. Zero MaxAge disables it.
type RetentionConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			URL:        getEnv("DATABASE_URL", ""),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			DBName:     getEnv("DB_NAME", "indoor_monitor"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "indoor.sqlite3"),
		},
		MQTT: MQTTConfig{
			BrokerURL:       getMQTTBrokerURL(),
			ClientID:        getEnv("MQTT_CLIENT_ID", "indoor_monitor"),
			Username:        getEnv("MQTT_USERNAME", ""),
			Password:        getEnv("MQTT_PASSWORD", ""),
			KeepAlive:       getDurationEnv("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout:     getDurationEnv("MQTT_PING_TIMEOUT", 10*time.Second),
			ConnectRetry:    getBoolEnv("MQTT_CONNECT_RETRY", true),
			TopicSensorData: getEnv("MQTT_TOPIC_SENSOR_DATA", "indoor/sensors/+/data"),
		},
		Kafka: KafkaConfig{
			Brokers:       getListEnv("KAFKA_BROKERS"),
			TopicReadings: getEnv("KAFKA_TOPIC_READINGS", "indoor.readings.raw"),
			GroupID:       getEnv("KAFKA_GROUP_ID", "indoor-monitor"),
			BatchSize:     getIntEnv("KAFKA_BATCH_SIZE", 100),
			FlushInterval: getDurationEnv("KAFKA_FLUSH_INTERVAL", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			TTL:      getDurationEnv("REDIS_TTL", 10*time.Minute),
		},
		Engine: EngineConfig{
			DefaultWindow:  getDurationEnv("ENGINE_DEFAULT_WINDOW", 5*time.Minute),
			LatestWindow:   getDurationEnv("ENGINE_LATEST_WINDOW", 5*time.Minute),
			MaxWindow:      getDurationEnv("ENGINE_MAX_WINDOW", 90*24*time.Hour),
			MaxBuckets:     getIntEnv("ENGINE_MAX_BUCKETS", 5000),
			MinSamples:     getIntEnv("ENGINE_MIN_SAMPLES", 1),
			ChunkThreshold: getIntEnv("ENGINE_CHUNK_THRESHOLD", 200000),
			ChunkSpan:      getDurationEnv("ENGINE_CHUNK_SPAN", 6*time.Hour),
			Precision:      getIntEnv("ENGINE_PRECISION", 2),
		},
		RateLimit: RateLimitConfig{
			RPS:   getFloatEnv("RATE_LIMIT_RPS", 20),
			Burst: getIntEnv("RATE_LIMIT_BURST", 40),
		},
		Retention: RetentionConfig{
			MaxAge:   getDurationEnv("RETENTION_MAX_AGE", 0),
			Interval: getDurationEnv("RETENTION_INTERVAL", time.Hour),
		},
	}
}

// getEnv returns environment variable value or default if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv returns duration environment variable value or default if not set
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getBoolEnv returns boolean environment variable value or default if not set
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated variable, dropping empty items
func getListEnv(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getMQTTBrokerURL returns MQTT broker URL with tcp:// prefix if not present.
// An unset broker returns "" and disables MQTT ingestion.
func getMQTTBrokerURL() string {
	broker := getEnv("MQTT_BROKER", getEnv("MQTT_BROKER_URL", ""))

	if broker != "" && !strings.HasPrefix(broker, "tcp:") && !strings.HasPrefix(broker, "ssl") {
		return "tcp://" + broker
	}
	return broker
}

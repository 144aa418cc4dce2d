package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DRIVER", "MQTT_BROKER", "MQTT_BROKER_URL", "KAFKA_BROKERS", "REDIS_ADDR", "RETENTION_MAX_AGE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Server.Port != "8080" {
		t.Errorf("Expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Expected postgres driver, got %s", cfg.Database.Driver)
	}
	if cfg.MQTT.BrokerURL != "" || len(cfg.Kafka.Brokers) != 0 || cfg.Redis.Addr != "" {
		t.Error("Expected optional collaborators disabled by default")
	}
	if cfg.Retention.MaxAge != 0 {
		t.Errorf("Expected retention disabled, got %s", cfg.Retention.MaxAge)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MQTT_BROKER", "broker.local:1883")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("ENGINE_MAX_BUCKETS", "not-a-number")
	t.Setenv("RETENTION_MAX_AGE", "720h")

	cfg := Load()
	if cfg.MQTT.BrokerURL != "tcp://broker.local:1883" {
		t.Errorf("Expected tcp prefix, got %s", cfg.MQTT.BrokerURL)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Engine.MaxBuckets <= 0 {
		t.Errorf("Expected default max buckets on invalid value, got %d", cfg.Engine.MaxBuckets)
	}
	if cfg.Retention.MaxAge != 720*time.Hour {
		t.Errorf("Expected 720h retention, got %s", cfg.Retention.MaxAge)
	}
}

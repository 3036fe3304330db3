package config

import (
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("SERVICE_PORT", "8085")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_DB", "lifecycle")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("KAFKA_BROKER", "localhost:9092,localhost:9093")
	t.Setenv("KAFKA_TOPIC", "conversation-events")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("POSTS_SERVICE_URL", "http://localhost:8081")
	t.Setenv("USERS_SERVICE_URL", "http://localhost:8082")
}

func TestLoadFromEnv(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Port != 8085 || cfg.App.PortString() != "8085" {
		t.Fatalf("port = %d", cfg.App.Port)
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Fatalf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.App.SendRatePerMin != 60 {
		t.Fatalf("send rate default = %d, want 60", cfg.App.SendRatePerMin)
	}
	if cfg.Auditor.CleanupPerSecond != 20 {
		t.Fatalf("cleanup rate default = %v, want 20", cfg.Auditor.CleanupPerSecond)
	}
}

func TestLoadMissingMongoFails(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MONGODB_URI", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation failure without a mongo uri")
	}
}

func TestEnvOverridesAreApplied(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SEND_RATE_PER_MIN", "5")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.SendRatePerMin != 5 {
		t.Fatalf("send rate = %d, want 5", cfg.App.SendRatePerMin)
	}
	if cfg.App.Env != "production" {
		t.Fatalf("env = %q", cfg.App.Env)
	}
}

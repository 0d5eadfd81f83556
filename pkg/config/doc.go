// Package config provides application configuration management from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	PULSE_HOST="0.0.0.0"
//	PULSE_PORT="8080"
//	PULSE_HEALTH_PORT="9090"
//	PULSE_READ_TIMEOUT="15s"
//	PULSE_WRITE_TIMEOUT="15s"
//	PULSE_RATE_LIMIT_REQUESTS="30"
//	PULSE_RATE_LIMIT_WINDOW="1m"
//
// Storage settings:
//
//	PULSE_POSTGRES_URL="postgres://localhost/pulse"
//	PULSE_POSTGRES_MAX_CONNS="20"
//	PULSE_REDIS_URL="redis://localhost:6379/0"
//	PULSE_TOKEN_CACHE_PREFIX="pulse-tokens"
//	PULSE_S3_REGION="us-east-1"
//
// Auth settings:
//
//	PULSE_ACCESS_SECRET="..."   # required, distinct from refresh secret
//	PULSE_REFRESH_SECRET="..."  # required
//	PULSE_ACCESS_TTL="15m"
//	PULSE_REFRESH_TTL="24h"
//	PULSE_BENCHMARK_TOKEN=""    # optional static token for load generators
//
// Observability settings:
//
//	PULSE_LOG_LEVEL="info"
//	PULSE_METRICS_ENABLED="true"
//	PULSE_GAUGE_REFRESH_SCHEDULE="@every 1m"
//	PULSE_OTEL_ENABLED="false"
//	PULSE_OTEL_ENDPOINT="localhost:4317"
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config

// Package config loads runtime configuration from the environment, 12-factor
// style, the same way the teacher service does.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every knob this service reads from the environment.
type Config struct {
	HTTPPort    string
	Environment string
	LogLevel    string

	RedisAddr     string
	RedisPassword string
	RedisEnabled  bool

	PostgresURL   string
	AuditEnabled  bool

	KeetaRPCURL string

	ReconcileInterval time.Duration
	DustThreshold     float64

	// LegacyCustodialWithdrawals is read from the environment (off by
	// default) but no component reads it: the settlement worker calls
	// SendOnBehalfLegacy for every withdrawal regardless. See DESIGN.md Open
	// Question (2).
	LegacyCustodialWithdrawals bool

	AllowedOrigins []string
}

// Load reads Config from the environment, applying the same defaults the
// teacher's cmd/api/main.go LoadConfig used.
func Load() Config {
	cfg := Config{
		HTTPPort:                   getEnv("HTTP_PORT", "8080"),
		Environment:                getEnv("ENVIRONMENT", "development"),
		LogLevel:                   getEnv("LOG_LEVEL", "info"),
		RedisAddr:                  getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:              getEnv("REDIS_PASSWORD", ""),
		RedisEnabled:               getEnvBool("REDIS_ENABLED", false),
		PostgresURL:                getEnv("POSTGRES_URL", ""),
		AuditEnabled:               getEnvBool("AUDIT_ENABLED", false),
		KeetaRPCURL:                getEnv("KEETA_RPC_URL", "https://testnet.keeta.example/rpc"),
		ReconcileInterval:          getEnvDuration("RECONCILE_INTERVAL", 60*time.Second),
		DustThreshold:              getEnvFloat("DUST_THRESHOLD", 1e-4),
		LegacyCustodialWithdrawals: getEnvBool("LEGACY_CUSTODIAL_WITHDRAWALS", false),
		AllowedOrigins:             []string{getEnv("ALLOWED_ORIGIN", "http://localhost:3000")},
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

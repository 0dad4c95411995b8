package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL string
	ServerAddr  string

	ChainRPCURL       string
	ChainRPCTimeout   time.Duration
	SettlementAddress string

	ReplayTTL          time.Duration
	SignatureMaxWindow time.Duration
	IdempotencyTTL     time.Duration
	IdempotencyGrace   time.Duration
	LockTTL            time.Duration
	LedgerBatchSize    int

	RateLimitRPM   int
	RateLimitBurst int
	BreakerMaxFail int
	BreakerReset   time.Duration
	EventBuffer    int

	PolicyRules []string
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "settlement_hub")
		pass := getenv("POSTGRES_PASSWORD", "settlement_hub_pass")
		db := getenv("POSTGRES_DB", "settlement_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	settlementAddr := os.Getenv("SETTLEMENT_ADDRESS")
	if settlementAddr == "" {
		return nil, fmt.Errorf("SETTLEMENT_ADDRESS is required")
	}

	var rules []string
	for _, rule := range strings.Split(os.Getenv("POLICY_RULES"), ";") {
		if strings.TrimSpace(rule) != "" {
			rules = append(rules, rule)
		}
	}

	return &Config{
		DatabaseURL: dsn,
		ServerAddr:  getenv("SERVER_ADDR", "0.0.0.0:8080"),

		ChainRPCURL:       getenv("CHAIN_RPC_URL", "http://localhost:8545"),
		ChainRPCTimeout:   parseDuration(getenv("CHAIN_RPC_TIMEOUT", "10s"), 10*time.Second),
		SettlementAddress: settlementAddr,

		ReplayTTL:          parseDuration(getenv("REPLAY_TTL", "24h"), 24*time.Hour),
		SignatureMaxWindow: parseDuration(getenv("SIGNATURE_MAX_WINDOW", "5m"), 5*time.Minute),
		IdempotencyTTL:     parseDuration(getenv("IDEMPOTENCY_TTL", "24h"), 24*time.Hour),
		IdempotencyGrace:   parseDuration(getenv("IDEMPOTENCY_GRACE", "2m"), 2*time.Minute),
		LockTTL:            parseDuration(getenv("LOCK_TTL", "30s"), 30*time.Second),
		LedgerBatchSize:    parseInt(getenv("LEDGER_BATCH_SIZE", "64"), 64),

		RateLimitRPM:   parseInt(getenv("RATE_LIMIT_RPM", "120"), 120),
		RateLimitBurst: parseInt(getenv("RATE_LIMIT_BURST", "30"), 30),
		BreakerMaxFail: parseInt(getenv("BREAKER_FAILURES", "5"), 5),
		BreakerReset:   parseDuration(getenv("BREAKER_RESET", "30s"), 30*time.Second),
		EventBuffer:    parseInt(getenv("EVENT_BUFFER", "16"), 16),

		PolicyRules: rules,
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return n
}

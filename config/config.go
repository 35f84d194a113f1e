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
	HTTPAddr       string
	DatabaseURL    string
	JWTSecret      string
	AllowedOrigins []string
	LogLevel       string

	RPCURL           string
	ContractAddress  string
	ChainID          int64
	MinConfirmations uint64
	LedgerTimeout    time.Duration
	TxCacheTTL       time.Duration

	PinataAPIKey    string
	PinataSecretKey string
	PinataAPIURL    string
	IPFSGatewayURL  string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	ClaimRateLimit  int
	ClaimRateWindow time.Duration
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:         env("HTTP_ADDR", ":8080"),
		DatabaseURL:      env("DATABASE_URL", ""),
		JWTSecret:        env("JWT_SECRET", ""),
		AllowedOrigins:   splitList(env("ALLOWED_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000")),
		LogLevel:         env("LOG_LEVEL", "info"),
		RPCURL:           env("ETH_RPC_URL", ""),
		ContractAddress:  strings.ToLower(env("REGISTRY_CONTRACT", "")),
		PinataAPIKey:     env("PINATA_API_KEY", ""),
		PinataSecretKey:  env("PINATA_SECRET_KEY", ""),
		PinataAPIURL:     env("PINATA_API_URL", "https://api.pinata.cloud/pinning/pinFileToIPFS"),
		IPFSGatewayURL:   env("IPFS_GATEWAY_URL", "https://gateway.pinata.cloud"),
		RedisAddr:        env("REDIS_ADDR", ""),
		RedisPassword:    env("REDIS_PASSWORD", ""),
		ClaimRateWindow:  time.Minute,
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			env("user", ""), env("password", ""), env("host", "localhost"), env("port", "5432"),
			env("dbname", ""), env("sslmode", "require"))
	}

	var err error
	if cfg.ChainID, err = envInt64("CHAIN_ID", 11155111); err != nil {
		return cfg, err
	}
	confirmations, err := envInt64("MIN_CONFIRMATIONS", 1)
	if err != nil {
		return cfg, err
	}
	if confirmations < 1 {
		return cfg, fmt.Errorf("MIN_CONFIRMATIONS must be at least 1")
	}
	cfg.MinConfirmations = uint64(confirmations)
	if cfg.LedgerTimeout, err = envDuration("LEDGER_TIMEOUT", 10*time.Second); err != nil {
		return cfg, err
	}
	if cfg.TxCacheTTL, err = envDuration("TX_CACHE_TTL", 10*time.Minute); err != nil {
		return cfg, err
	}
	redisDB, err := envInt64("REDIS_DB", 0)
	if err != nil {
		return cfg, err
	}
	cfg.RedisDB = int(redisDB)
	limit, err := envInt64("CLAIM_RATE_LIMIT", 30)
	if err != nil {
		return cfg, err
	}
	cfg.ClaimRateLimit = int(limit)
	return cfg, nil
}

// ValidateServe checks the settings that only the HTTP server needs.
func (c Config) ValidateServe() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.RPCURL == "" {
		return fmt.Errorf("ETH_RPC_URL is required")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("REGISTRY_CONTRACT is required")
	}
	return nil
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt64(key string, fallback int64) (int64, error) {
	raw := env(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := env(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

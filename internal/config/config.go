// Package config loads runtime configuration for the registry binaries from
// the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Gateway configures the client-side application daemon.
type Gateway struct {
	// APIBaseURL is the remote store base URL, including the /api prefix.
	APIBaseURL string `env:"PITRACE_API_BASE,default=http://localhost:3000/api"`

	ListenAddr string `env:"PITRACE_LISTEN_ADDR,default=:8080"`
	LogLevel   string `env:"PITRACE_LOG_LEVEL,default=info"`

	// CacheBackend selects the local fallback store: "file" or "redis".
	CacheBackend string `env:"PITRACE_CACHE_BACKEND,default=file"`
	CacheDir     string `env:"PITRACE_CACHE_DIR,default=.pitrace"`
	RedisAddr    string `env:"PITRACE_REDIS_ADDR,default=localhost:6379"`
	RedisDB      int    `env:"PITRACE_REDIS_DB,default=0"`

	// Wallet selects the wallet capability: "sandbox" or "none" (guest only).
	Wallet string `env:"PITRACE_WALLET,default=none"`

	// Remote client tuning.
	RequestTimeout time.Duration `env:"PITRACE_REQUEST_TIMEOUT,default=30s"`
	RequestRate    float64       `env:"PITRACE_REQUEST_RATE,default=20"`
	RequestBurst   int           `env:"PITRACE_REQUEST_BURST,default=10"`

	// Payment poll loop.
	PollInterval    time.Duration `env:"PITRACE_POLL_INTERVAL,default=3s"`
	MaxPollAttempts int           `env:"PITRACE_POLL_MAX_ATTEMPTS,default=10"`
	// PollTimeoutFails marks a payment failed when the poll ceiling is hit
	// instead of leaving it approved.
	PollTimeoutFails bool `env:"PITRACE_POLL_TIMEOUT_FAILS,default=false"`

	// VerifyRecovered requires a matching local record before an incomplete
	// payment reported by the wallet SDK is marked completed remotely.
	VerifyRecovered bool `env:"PITRACE_VERIFY_RECOVERED,default=false"`

	// ResumeVerifyExpiry rejects cached sessions whose token has expired.
	ResumeVerifyExpiry bool `env:"PITRACE_RESUME_VERIFY_EXPIRY,default=false"`

	// SyncSchedule is the cron spec for re-pushing locally saved products.
	SyncSchedule string `env:"PITRACE_SYNC_SCHEDULE,default=@every 1m"`
}

// Server configures the reference remote store daemon.
type Server struct {
	ListenAddr string `env:"REGISTRYD_LISTEN_ADDR,default=:3000"`
	LogLevel   string `env:"REGISTRYD_LOG_LEVEL,default=info"`

	// StoreBackend selects persistence: "memory" or "postgres".
	StoreBackend  string `env:"REGISTRYD_STORE,default=memory"`
	DatabaseURL   string `env:"REGISTRYD_DATABASE_URL,default="`
	MigrationsDir string `env:"REGISTRYD_MIGRATIONS_DIR,default=migrations"`

	JWTSecret string        `env:"REGISTRYD_JWT_SECRET,default=pi-trace-dev-secret"`
	TokenTTL  time.Duration `env:"REGISTRYD_TOKEN_TTL,default=24h"`
}

// LoadGateway reads gateway configuration from the environment. A .env file in
// the working directory is loaded first when present.
func LoadGateway() (Gateway, error) {
	_ = godotenv.Load()
	var cfg Gateway
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Gateway{}, fmt.Errorf("decode gateway config: %w", err)
	}
	return cfg, nil
}

// LoadServer reads server configuration from the environment.
func LoadServer() (Server, error) {
	_ = godotenv.Load()
	var cfg Server
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Server{}, fmt.Errorf("decode server config: %w", err)
	}
	if cfg.StoreBackend == "postgres" && cfg.DatabaseURL == "" {
		return Server{}, fmt.Errorf("postgres store selected but REGISTRYD_DATABASE_URL is empty")
	}
	return cfg, nil
}

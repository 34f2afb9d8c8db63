package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Watch struct {
	// ShadowMargin is how long an order stays shadowed before it is
	// considered permanently invalid and removed from the live set.
	ShadowMargin time.Duration
	// SweepInterval is the period of the permanent-cleanup sweep.
	SweepInterval time.Duration
	// ExpiryPollInterval is how often the built-in expiry watcher scans
	// watched orders for passed deadlines.
	ExpiryPollInterval time.Duration
}

type API struct {
	ListenAddr     string
	AllowedOrigins []string
	// DefaultPerPage is the page size used when a request omits perPage.
	DefaultPerPage int
	// MaxPerPage caps client-supplied page sizes.
	MaxPerPage int
}

type Chain struct {
	// DefaultERC20Precision is the decimal precision synthesized for
	// ERC-20 assets in asset-pair listings.
	DefaultERC20Precision int
}

type Config struct {
	DBPath string
	Watch  Watch
	API    API
	Chain  Chain
}

func Default() Config {
	return Config{
		DBPath: "data/relayer",
		Watch: Watch{
			ShadowMargin:       100 * time.Second,
			SweepInterval:      10 * time.Second,
			ExpiryPollInterval: 5 * time.Second,
		},
		API: API{
			ListenAddr:     ":3000",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
			DefaultPerPage: 20,
			MaxPerPage:     100,
		},
		Chain: Chain{
			DefaultERC20Precision: 18,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if it exists) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.API.ListenAddr = getEnv("API_ADDR", cfg.API.ListenAddr)

	if ms := os.Getenv("ORDER_SHADOWING_MARGIN_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.Watch.ShadowMargin = time.Duration(v) * time.Millisecond
		}
	}
	if ms := os.Getenv("PERMANENT_CLEANUP_INTERVAL_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.Watch.SweepInterval = time.Duration(v) * time.Millisecond
		}
	}
	if ms := os.Getenv("EXPIRY_POLL_INTERVAL_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.Watch.ExpiryPollInterval = time.Duration(v) * time.Millisecond
		}
	}
	if pp := os.Getenv("DEFAULT_PER_PAGE"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 {
			cfg.API.DefaultPerPage = v
		}
	}
	if pp := os.Getenv("MAX_PER_PAGE"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 {
			cfg.API.MaxPerPage = v
		}
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}
	if p := os.Getenv("DEFAULT_ERC20_TOKEN_PRECISION"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v >= 0 {
			cfg.Chain.DefaultERC20Precision = v
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

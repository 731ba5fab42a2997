package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverPostgres     = "postgres"
	DriverGormPostgres = "gorm-postgres"
	DriverSQLite       = "sqlite"
	DriverBolt         = "bolt"
	DriverMemory       = "memory"
)

// Config holds service configuration.
type Config struct {
	ServerAddr string

	StoreDriver       string
	DatabaseURL       string
	SQLitePath        string
	BoltPath          string
	StoreCompensating bool

	JWTSecret string
	JWTIssuer string

	LivenessWindow time.Duration
	ChannelBuffer  int
	OfflineBuffer  int
	OfflineGrace   time.Duration

	// OverduePolicy is empty unless the operator sets one; the sweeper only
	// runs when it is set.
	OverdueInterval time.Duration
	OverduePolicy   string
}

// OverdueEnabled reports whether automatic overdue marking is configured.
func (c *Config) OverdueEnabled() bool {
	return c.OverduePolicy != ""
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "lending_hub")
		pass := getenv("POSTGRES_PASSWORD", "lending_hub_pass")
		db := getenv("POSTGRES_DB", "lending_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	driver := strings.ToLower(getenv("STORE_DRIVER", DriverPostgres))
	switch driver {
	case DriverPostgres, DriverGormPostgres, DriverSQLite, DriverBolt, DriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &Config{
		ServerAddr:        getenv("SERVER_ADDR", "0.0.0.0:8080"),
		StoreDriver:       driver,
		DatabaseURL:       dsn,
		SQLitePath:        getenv("SQLITE_PATH", "lending-hub.sqlite"),
		BoltPath:          getenv("BOLT_PATH", "lending-hub.db"),
		StoreCompensating: parseBool(getenv("STORE_COMPENSATING", "false"), false),
		JWTSecret:         secret,
		JWTIssuer:         os.Getenv("JWT_ISSUER"),
		LivenessWindow:    parseDuration(getenv("SESSION_LIVENESS_WINDOW", "60s"), 60*time.Second),
		ChannelBuffer:     parseInt(getenv("HUB_CHANNEL_BUFFER", "64"), 64),
		OfflineBuffer:     parseInt(getenv("HUB_OFFLINE_BUFFER", "32"), 32),
		OfflineGrace:      parseDuration(getenv("HUB_OFFLINE_GRACE", "30s"), 30*time.Second),
		OverdueInterval:   parseDuration(getenv("OVERDUE_INTERVAL", "15m"), 15*time.Minute),
		OverduePolicy:     strings.TrimSpace(os.Getenv("OVERDUE_POLICY")),
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

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return def
	}
	return n
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	DBDialect    string
	DatabaseURL  string
	SQLitePath   string
	RedisURL     string
	NameCacheTTL time.Duration

	ResponseWindow time.Duration
	WarningLead    time.Duration
	SweepInterval  time.Duration
	RemoteRetries  int

	NotifyMode    string
	NotifyBaseURL string
	NotifyWSURL   string
	NotifyToken   string
	NotifyTimeout time.Duration

	PlaceholderName string
	MessagesDir     string

	MediaBucket          string
	MediaRegion          string
	MediaEndpoint        string
	MediaAccessKeyID     string
	MediaSecretAccessKey string
}

// LoadDotEnv reads .env (or the given files) into the environment without
// overriding variables that are already set. A missing default file is fine.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		DBDialect:       "sqlite",
		SQLitePath:      "skate.sqlite",
		NameCacheTTL:    10 * time.Minute,
		ResponseWindow:  48 * time.Hour,
		WarningLead:     6 * time.Hour,
		SweepInterval:   5 * time.Minute,
		RemoteRetries:   8,
		NotifyMode:      "log",
		NotifyTimeout:   5 * time.Second,
		PlaceholderName: "Skater",
	}

	if v := getenv("DB_DIALECT"); v != "" {
		cfg.DBDialect = strings.ToLower(v)
	}
	cfg.DatabaseURL = getenv("DATABASE_URL")
	if v := getenv("DB_SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}
	cfg.RedisURL = getenv("REDIS_URL")

	var err error
	if cfg.NameCacheTTL, err = durationEnv("NAME_CACHE_TTL", cfg.NameCacheTTL); err != nil {
		return nil, err
	}
	if cfg.ResponseWindow, err = durationEnv("SKATE_RESPONSE_WINDOW", cfg.ResponseWindow); err != nil {
		return nil, err
	}
	if cfg.WarningLead, err = durationEnv("SKATE_WARNING_LEAD", cfg.WarningLead); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = durationEnv("SKATE_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = durationEnv("NOTIFY_TIMEOUT", cfg.NotifyTimeout); err != nil {
		return nil, err
	}
	if v := getenv("SKATE_REMOTE_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("SKATE_REMOTE_RETRIES: invalid value %q", v)
		}
		cfg.RemoteRetries = n
	}

	if v := getenv("NOTIFY_MODE"); v != "" {
		cfg.NotifyMode = strings.ToLower(v)
	}
	cfg.NotifyBaseURL = getenv("NOTIFY_BASE_URL")
	cfg.NotifyWSURL = getenv("NOTIFY_WS_URL")
	cfg.NotifyToken = getenv("NOTIFY_TOKEN")

	if v := getenv("PLACEHOLDER_NAME"); v != "" {
		cfg.PlaceholderName = v
	}
	cfg.MessagesDir = getenv("MESSAGES_DIR")

	cfg.MediaBucket = getenv("MEDIA_BUCKET")
	cfg.MediaRegion = getenv("MEDIA_REGION")
	cfg.MediaEndpoint = getenv("MEDIA_ENDPOINT")
	cfg.MediaAccessKeyID = getenv("MEDIA_ACCESS_KEY_ID")
	cfg.MediaSecretAccessKey = getenv("MEDIA_SECRET_ACCESS_KEY")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.DBDialect {
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("DB_SQLITE_PATH is required")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required")
		}
	default:
		return fmt.Errorf("DB_DIALECT must be postgres or sqlite, got %q", c.DBDialect)
	}

	switch c.NotifyMode {
	case "log":
	case "http":
		if c.NotifyBaseURL == "" {
			return errors.New("NOTIFY_BASE_URL is required")
		}
	case "ws":
		if c.NotifyWSURL == "" {
			return errors.New("NOTIFY_WS_URL is required")
		}
	case "auto":
		if c.NotifyBaseURL == "" || c.NotifyWSURL == "" {
			return errors.New("NOTIFY_BASE_URL and NOTIFY_WS_URL are required")
		}
	default:
		return fmt.Errorf("NOTIFY_MODE must be log, http, ws or auto, got %q", c.NotifyMode)
	}

	if c.WarningLead >= c.ResponseWindow {
		return errors.New("SKATE_WARNING_LEAD must be shorter than SKATE_RESPONSE_WINDOW")
	}
	return nil
}

func getenv(key string) string { return strings.TrimSpace(os.Getenv(key)) }

// durationEnv accepts Go duration syntax (90m) or whole seconds (5400).
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("%s: must be positive", key)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

// Package config handles application configuration from an optional TOML
// file and environment variables. Environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the application configuration.
type Config struct {
	HTTPAddr     string `toml:"http_addr"`
	DatabasePath string `toml:"database_path"`
	SecretsPath  string `toml:"secrets_path"`
	LogLevel     string `toml:"log_level"`

	GoogleAPIKey        string  `toml:"google_api_key"`
	GoogleCSEID         string  `toml:"google_cse_id"`
	MaxDailyRequests    int     `toml:"max_daily_requests"`
	QuotaTimezone       string  `toml:"quota_timezone"`
	SearchRatePerSecond float64 `toml:"search_rate_per_second"`

	JWTSecret        string   `toml:"auth_jwt_secret"`
	JWTPublicKeyFile string   `toml:"auth_jwt_public_key_file"`
	JWTIssuer        string   `toml:"auth_jwt_issuer"`
	JWTAudience      string   `toml:"auth_jwt_audience"`
	CORSOrigins      []string `toml:"cors_origins"`

	ContinuousCron string `toml:"continuous_cron"`
	HistoricalCron string `toml:"historical_cron"`
	TrendsCron     string `toml:"trends_cron"`
	TrendsFeedURL  string `toml:"trends_feed_url"`

	RedisURL string `toml:"redis_url"`

	TelegramBotToken string  `toml:"telegram_bot_token"`
	TelegramChatIDs  []int64 `toml:"telegram_chat_ids"`
	AllowedUsers     []int64 `toml:"allowed_users"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		HTTPAddr:            ":8080",
		DatabasePath:        "./data/monitor.db",
		SecretsPath:         "./data/secrets",
		LogLevel:            "info",
		MaxDailyRequests:    100,
		QuotaTimezone:       "America/Los_Angeles",
		SearchRatePerSecond: 2,
		CORSOrigins:         []string{"http://localhost:3000"},
		ContinuousCron:      "0 6 * * *",
		HistoricalCron:      "0 3 * * *",
		TrendsCron:          "@every 1h",
		TrendsFeedURL:       "https://trends.google.com/trending/rss?geo=BR",
	}
}

// Load builds the configuration from defaults, the TOML file named by
// MONITOR_CONFIG_FILE (if any) and environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("MONITOR_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	for key, dst := range map[string]*string{
		"HTTP_ADDR":                &cfg.HTTPAddr,
		"DATABASE_PATH":            &cfg.DatabasePath,
		"SECRETS_PATH":             &cfg.SecretsPath,
		"LOG_LEVEL":                &cfg.LogLevel,
		"GOOGLE_API_KEY":           &cfg.GoogleAPIKey,
		"GOOGLE_CSE_ID":            &cfg.GoogleCSEID,
		"QUOTA_TIMEZONE":           &cfg.QuotaTimezone,
		"AUTH_JWT_SECRET":          &cfg.JWTSecret,
		"AUTH_JWT_PUBLIC_KEY_FILE": &cfg.JWTPublicKeyFile,
		"AUTH_JWT_ISSUER":          &cfg.JWTIssuer,
		"AUTH_JWT_AUDIENCE":        &cfg.JWTAudience,
		"CONTINUOUS_CRON":          &cfg.ContinuousCron,
		"HISTORICAL_CRON":          &cfg.HistoricalCron,
		"TRENDS_CRON":              &cfg.TrendsCron,
		"TRENDS_FEED_URL":          &cfg.TrendsFeedURL,
		"REDIS_URL":                &cfg.RedisURL,
		"TELEGRAM_BOT_TOKEN":       &cfg.TelegramBotToken,
	} {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if raw := os.Getenv("MAX_DAILY_REQUESTS"); raw != "" {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("invalid MAX_DAILY_REQUESTS %q: %w", raw, err)
		}
		cfg.MaxDailyRequests = n
	}
	if raw := os.Getenv("SEARCH_RATE_PER_SECOND"); raw != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("invalid SEARCH_RATE_PER_SECOND %q: %w", raw, err)
		}
		cfg.SearchRatePerSecond = f
	}
	if raw := os.Getenv("CORS_ORIGINS"); raw != "" {
		cfg.CORSOrigins = splitList(raw)
	}
	if raw := os.Getenv("TELEGRAM_CHAT_IDS"); raw != "" {
		ids, err := parseIDs(raw)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_IDS: %w", err)
		}
		cfg.TelegramChatIDs = ids
	}
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		ids, err := parseIDs(raw)
		if err != nil {
			return fmt.Errorf("invalid ALLOWED_USERS: %w", err)
		}
		cfg.AllowedUsers = ids
	}
	return nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" && c.JWTPublicKeyFile == "" {
		return errors.New("AUTH_JWT_SECRET or AUTH_JWT_PUBLIC_KEY_FILE is required")
	}
	if c.MaxDailyRequests <= 0 {
		return fmt.Errorf("MAX_DAILY_REQUESTS must be positive, got %d", c.MaxDailyRequests)
	}
	if c.SearchRatePerSecond <= 0 {
		return fmt.Errorf("SEARCH_RATE_PER_SECOND must be positive, got %g", c.SearchRatePerSecond)
	}
	if _, err := time.LoadLocation(c.QuotaTimezone); err != nil {
		return fmt.Errorf("invalid QUOTA_TIMEZONE %q: %w", c.QuotaTimezone, err)
	}
	return nil
}

// QuotaLocation returns the timezone in which the daily quota resets.
func (c *Config) QuotaLocation() *time.Location {
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SearchConfigured reports whether Google Custom Search credentials are set.
func (c *Config) SearchConfigured() bool {
	return c.GoogleAPIKey != "" && c.GoogleCSEID != ""
}

// IsUserAllowed checks whether a Telegram user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, s := range splitList(raw) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ID %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

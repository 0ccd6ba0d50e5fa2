package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Redis configuration (new-listing stream fan-out)
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Memcache configuration (robots.txt bodies, portal block markers)
	MemcacheAddr string

	// Storage configuration. DatabaseURL selects Postgres; otherwise the
	// SQLite file at DBPath is used.
	DBPath      string
	DatabaseURL string

	// Crawl tunables
	MinDelay      time.Duration
	MaxDelay      time.Duration
	MaxRetries    int
	BackoffFactor int
	Timeout       time.Duration
	MaxPages      int
	FetchDetails  bool
	StrictFilter  bool
	RespectRobots bool
	UserAgents    []string

	// Scheduling
	CrawlInterval time.Duration
	CrawlCron     string
	RetentionDays int

	// Enabled portals, priority order
	Portals []string

	// Search profiles file
	ProfilesPath string

	// Notification channels
	TelegramToken  string
	TelegramChatID string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPassword   string
	EmailFrom      string
	EmailTo        []string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamMaxLen, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "500"))
	smtpPort, _ := strconv.Atoi(getEnv("SMTP_PORT", "587"))

	return &Config{
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "listings"),
		RedisStreamMaxLength: streamMaxLen,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", "localhost:11211"),

		DBPath:      getEnv("DB_PATH", "data/listings.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		MinDelay:      getEnvDuration("MIN_DELAY_SECONDS", 3*time.Second),
		MaxDelay:      getEnvDuration("MAX_DELAY_SECONDS", 5*time.Second),
		MaxRetries:    getEnvInt("MAX_RETRIES", 3),
		BackoffFactor: getEnvInt("BACKOFF_FACTOR", 2),
		Timeout:       getEnvDuration("REQUEST_TIMEOUT_SECONDS", 30*time.Second),
		MaxPages:      getEnvInt("MAX_PAGES", 10),
		FetchDetails:  getEnvBool("FETCH_DETAILS", false),
		StrictFilter:  getEnvBool("STRICT_FILTER", false),
		RespectRobots: getEnvBool("RESPECT_ROBOTS_TXT", true),
		UserAgents:    getEnvList("USER_AGENTS", nil),

		CrawlInterval: getEnvDuration("CRAWL_INTERVAL_SECONDS", 0),
		CrawlCron:     getEnv("CRAWL_CRON", ""),
		RetentionDays: getEnvInt("RETENTION_DAYS", 90),

		Portals: getEnvList("PORTALS", []string{"idealista", "fotocasa", "pisos", "habitaclia"}),

		ProfilesPath: getEnv("PROFILES_PATH", "config/profiles.yaml"),

		TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID: getEnv("TELEGRAM_CHAT_ID", ""),
		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       smtpPort,
		SMTPUser:       getEnv("SMTP_USER", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailTo:        getEnvList("EMAIL_TO", nil),

		Environment: getEnv("PISOWATCH_ENVIRONMENT", "development"),
	}
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.MinDelay > c.MaxDelay {
		return fmt.Errorf("MIN_DELAY_SECONDS (%s) must not exceed MAX_DELAY_SECONDS (%s)", c.MinDelay, c.MaxDelay)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must not be negative")
	}
	if c.BackoffFactor < 1 {
		return fmt.Errorf("BACKOFF_FACTOR must be at least 1")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("MAX_PAGES must be at least 1")
	}
	if len(c.Portals) == 0 {
		return fmt.Errorf("at least one portal must be enabled")
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvDuration reads a duration expressed in whole seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return time.Duration(n) * time.Second
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

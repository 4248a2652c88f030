package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"study-agents/api/internal/llm"
)

type Config struct {
	Port string

	GeminiAPIKey string
	// Models: tier -> model id, from MODEL_* env and optionally TIERS_FILE.
	Models    map[llm.Tier]string
	TiersFile string

	// DBDriver is postgres, sqlite or empty (no persistence).
	DBDriver       string
	DatabaseURL    string
	DBPath         string
	RunCacheTTL    time.Duration
	RunRetention   time.Duration
	RequestTimeout time.Duration

	TelegramBotToken string
	WebhookURL       string

	LogLevel  string
	LogFormat string
	LogFile   string
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	// bare number = seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return 0, fmt.Errorf("%s: invalid duration %q", k, v)
}

// Load reads .env (if present), then the environment, then TIERS_FILE.
// Real environment variables win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8000"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		Models: map[llm.Tier]string{
			llm.TierSmart:      getEnv("MODEL_SMART", "gemini-2.5-pro"),
			llm.TierFast:       getEnv("MODEL_FAST", "gemini-2.5-flash"),
			llm.TierImageSmart: getEnv("MODEL_IMAGE_SMART", "gemini-2.5-pro"),
			llm.TierImageFast:  getEnv("MODEL_IMAGE_FAST", "gemini-2.5-flash"),
		},
		TiersFile: getEnv("TIERS_FILE", ""),

		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", "")),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBPath:      getEnv("DB_PATH", "data/agents.sqlite3"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogFile:   getEnv("LOG_FILE", ""),
	}

	var err error
	if cfg.RunCacheTTL, err = getDuration("RUN_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RunRetention, err = getDuration("RUN_RETENTION", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", 180*time.Second); err != nil {
		return nil, err
	}

	if cfg.TiersFile != "" {
		if err := cfg.loadTiersFile(cfg.TiersFile); err != nil {
			return nil, err
		}
	}
	switch cfg.DBDriver {
	case "", "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("DB_DRIVER: want postgres|sqlite, got %q", cfg.DBDriver)
	}
	if cfg.DBDriver == "postgres" && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = resolveDSN()
	}
	return cfg, nil
}

type tiersFile struct {
	Tiers map[string]string `yaml:"tiers"`
}

// loadTiersFile overrides Models with the entries of a YAML file:
//
//	tiers:
//	  smart: gemini-2.5-pro
//	  fast: gemini-2.5-flash
func (c *Config) loadTiersFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("TIERS_FILE: %w", err)
	}
	var tf tiersFile
	if err := yaml.Unmarshal(b, &tf); err != nil {
		return fmt.Errorf("TIERS_FILE %s: %w", path, err)
	}
	for name, model := range tf.Tiers {
		tier, err := llm.ParseTier(name)
		if err != nil {
			return fmt.Errorf("TIERS_FILE %s: %w", path, err)
		}
		if strings.TrimSpace(model) != "" {
			c.Models[tier] = strings.TrimSpace(model)
		}
	}
	return nil
}

// Tiers freezes the model table.
func (c *Config) Tiers() (llm.Tiers, error) {
	return llm.NewTiers(c.Models)
}

func (c *Config) RequireGemini() error {
	if c.GeminiAPIKey == "" {
		return errors.New("missing required env GEMINI_API_KEY")
	}
	return nil
}

// DSN is what store.Open takes for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.DBPath
	}
	return c.DatabaseURL
}

// resolveDSN builds a postgres URL from POSTGRES_* / PG* variables.
func resolveDSN() string {
	user := getEnv("POSTGRES_USER", "agents")
	pass := os.Getenv("POSTGRES_PASSWORD")
	host := getEnv("PGHOST", "db")
	port := getEnv("PGPORT", "5432")
	db := getEnv("POSTGRES_DB", "agents")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SafeDSNSummary describes a DSN without credentials, for logs.
func SafeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" {
		return "path=" + dsn
	}
	host, port := u.Host, ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, u.User.Username())
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, u.User.Username())
}

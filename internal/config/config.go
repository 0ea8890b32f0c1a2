// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends accepted by STORE_BACKEND.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port           string   `yaml:"port"`
	Env            string   `yaml:"env"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	GRPCHealthPort string   `yaml:"grpc_health_port"`

	Store           StoreConfig           `yaml:"store"`
	Model           ModelConfig           `yaml:"model"`
	Agent           AgentConfig           `yaml:"agent"`
	Fares           FaresConfig           `yaml:"fares"`
	Email           EmailConfig           `yaml:"email"`
	RateLimit       RateLimitConfig       `yaml:"rate_limit"`
	ConversationLog ConversationLogConfig `yaml:"conversation_log"`
}

// StoreConfig selects and configures the conversation checkpoint store.
type StoreConfig struct {
	Backend       string        `yaml:"backend"`
	DBPath        string        `yaml:"db_path"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

// ModelConfig configures the chat-completions provider.
type ModelConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	WorkerModel    string `yaml:"worker_model"`
	EvaluatorModel string `yaml:"evaluator_model"`
}

// AgentConfig controls the worker/evaluator loop.
type AgentConfig struct {
	SuccessCriteria    string `yaml:"success_criteria"`
	MaxEvaluatorCycles int    `yaml:"max_evaluator_cycles"`
}

// FaresConfig configures the fare-lookup collaborator.
type FaresConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// EmailConfig holds SMTP submission settings.
type EmailConfig struct {
	Sender      string `yaml:"-"`
	AppPassword string `yaml:"-"`
	SMTPHost    string `yaml:"smtp_host"`
	SMTPPort    int    `yaml:"smtp_port"`
}

// RateLimitConfig bounds chat requests per client.
type RateLimitConfig struct {
	RequestsPerWindow int           `yaml:"requests_per_window"`
	WindowDuration    time.Duration `yaml:"window"`
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Dir       string `yaml:"dir"`
	QueueSize int    `yaml:"queue_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:           "8000",
		Env:            "production",
		AllowedOrigins: []string{"https://frontend-flightassistant.onrender.com"},
		Store: StoreConfig{
			Backend:    StoreSQLite,
			DBPath:     "./data/memory.db",
			RedisAddr:  "localhost:6379",
			SessionTTL: 7 * 24 * time.Hour,
		},
		Model: ModelConfig{
			BaseURL:        "https://api.openai.com/v1",
			WorkerModel:    "gpt-4o-mini",
			EvaluatorModel: "gpt-4o-mini",
		},
		Agent: AgentConfig{
			SuccessCriteria:    "Answer clearly. Offer email if relevant.",
			MaxEvaluatorCycles: 8,
		},
		Fares: FaresConfig{
			BaseURL: "https://ryanair-api-hx0t.onrender.com/api/search-fares",
			Timeout: 120 * time.Second,
		},
		Email: EmailConfig{
			SMTPHost: "smtp.gmail.com",
			SMTPPort: 587,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 30,
			WindowDuration:    time.Minute,
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   false,
			Dir:       "./data/logs/conversations",
			QueueSize: 1000,
		},
	}
}

// Load reads configuration from the optional CONFIG_FILE and then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Env = getEnv("APP_ENV", c.Env)
	c.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", c.AllowedOrigins)
	c.GRPCHealthPort = getEnv("GRPC_HEALTH_PORT", c.GRPCHealthPort)

	c.Store.Backend = strings.ToLower(getEnv("STORE_BACKEND", c.Store.Backend))
	c.Store.DBPath = getEnv("DB_PATH", c.Store.DBPath)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = getEnv("REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.RedisDB = getEnvInt("REDIS_DB", c.Store.RedisDB)
	c.Store.SessionTTL = getEnvDuration("SESSION_TTL", c.Store.SessionTTL)

	c.Model.APIKey = getEnv("OPENAI_API_KEY", c.Model.APIKey)
	c.Model.BaseURL = getEnv("OPENAI_BASE_URL", c.Model.BaseURL)
	c.Model.WorkerModel = getEnv("WORKER_MODEL", c.Model.WorkerModel)
	c.Model.EvaluatorModel = getEnv("EVALUATOR_MODEL", c.Model.EvaluatorModel)

	c.Agent.SuccessCriteria = getEnv("SUCCESS_CRITERIA", c.Agent.SuccessCriteria)
	c.Agent.MaxEvaluatorCycles = getEnvInt("MAX_EVALUATOR_CYCLES", c.Agent.MaxEvaluatorCycles)

	c.Fares.BaseURL = getEnv("FARE_API_URL", c.Fares.BaseURL)
	c.Fares.Timeout = getEnvDuration("FARE_API_TIMEOUT", c.Fares.Timeout)

	c.Email.Sender = getEnv("GMAIL_SENDER_EMAIL", c.Email.Sender)
	c.Email.AppPassword = getEnv("GMAIL_APP_PASSWORD", c.Email.AppPassword)
	c.Email.SMTPHost = getEnv("SMTP_HOST", c.Email.SMTPHost)
	c.Email.SMTPPort = getEnvInt("SMTP_PORT", c.Email.SMTPPort)

	c.RateLimit.RequestsPerWindow = getEnvInt("RATE_LIMIT_REQUESTS", c.RateLimit.RequestsPerWindow)
	c.RateLimit.WindowDuration = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimit.WindowDuration)

	c.ConversationLog.Enabled = getEnvBool("CONVERSATION_LOG_ENABLED", c.ConversationLog.Enabled)
	c.ConversationLog.Dir = getEnv("CONVERSATION_LOG_DIR", c.ConversationLog.Dir)
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", c.ConversationLog.QueueSize)
	if queueSize <= 0 {
		queueSize = 1000
	}
	c.ConversationLog.QueueSize = queueSize
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Store.Backend {
	case StoreSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.Store.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must be >= 0")
	}
	if c.Agent.MaxEvaluatorCycles <= 0 {
		return fmt.Errorf("MAX_EVALUATOR_CYCLES must be > 0")
	}
	if c.Fares.BaseURL == "" {
		return fmt.Errorf("FARE_API_URL cannot be empty")
	}
	if c.Fares.Timeout <= 0 {
		return fmt.Errorf("FARE_API_TIMEOUT must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("rate limit must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	Port string `yaml:"port"`
	Env  string `yaml:"env"`

	// Origin check
	EnforceAuth      bool          `yaml:"enforce_auth"`
	RequireInitData  bool          `yaml:"require_init_data"`
	TelegramBotToken string        `yaml:"telegram_bot_token"`
	InitDataMaxAge   time.Duration `yaml:"init_data_max_age"`

	// Session tokens issued after an init-data exchange
	SessionSecret string        `yaml:"session_secret"`
	SessionTTL    time.Duration `yaml:"session_ttl"`

	// Gemini AI
	GeminiAPIKey          string        `yaml:"gemini_api_key"`
	GeminiModel           string        `yaml:"gemini_model"`
	GeminiMaxOutputTokens int           `yaml:"gemini_max_output_tokens"`
	GeminiConcurrentReqs  int           `yaml:"gemini_concurrent_requests"`
	ProviderTimeout       time.Duration `yaml:"provider_timeout"`
	ReplyLanguage         string        `yaml:"reply_language"`

	// Ingestion limits
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
	MaxContentChars int    `yaml:"max_content_chars"`
	MaxCards        int    `yaml:"max_cards"`
	UploadDir       string `yaml:"upload_dir"`

	// Redis (optional; rate limiting and progress fan-out)
	RedisURL string `yaml:"redis_url"`

	// Rate limiting
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`

	// Frontend
	AllowedOrigins []string `yaml:"allowed_origins"`

	LogMode string `yaml:"log_mode"`
}

func defaults() *Config {
	return &Config{
		Port:                  "3001",
		Env:                   "development",
		InitDataMaxAge:        0,
		SessionTTL:            time.Hour,
		GeminiModel:           "gemini-2.5-flash",
		GeminiMaxOutputTokens: 2000,
		GeminiConcurrentReqs:  5,
		ProviderTimeout:       45 * time.Second,
		ReplyLanguage:         "Russian",
		MaxUploadBytes:        1024 * 1024,
		MaxContentChars:       50000,
		MaxCards:              15,
		UploadDir:             filepath.Join(os.TempDir(), "flashcards-uploads"),
		RateLimitRequests:     100,
		RateLimitWindow:       15 * time.Minute,
		AllowedOrigins:        []string{"http://localhost:5173", "https://web.telegram.org"},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and finally the environment.
func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.Env = getEnvOrDefault("NODE_ENV", getEnvOrDefault("ENV", cfg.Env))
	cfg.EnforceAuth = getEnvAsBoolOrDefault("ENFORCE_AUTH", cfg.EnforceAuth || cfg.IsProduction())
	cfg.RequireInitData = getEnvAsBoolOrDefault("REQUIRE_INIT_DATA", cfg.RequireInitData)
	cfg.TelegramBotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	cfg.InitDataMaxAge = getEnvAsDurationOrDefault("INIT_DATA_MAX_AGE", cfg.InitDataMaxAge)
	cfg.SessionSecret = getEnvOrDefault("SESSION_SECRET", cfg.SessionSecret)
	cfg.SessionTTL = getEnvAsDurationOrDefault("SESSION_TTL", cfg.SessionTTL)
	cfg.GeminiAPIKey = getEnvOrDefault("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiModel = getEnvOrDefault("GEMINI_MODEL", cfg.GeminiModel)
	cfg.GeminiMaxOutputTokens = getEnvAsIntOrDefault("GEMINI_MAX_OUTPUT_TOKENS", cfg.GeminiMaxOutputTokens)
	cfg.GeminiConcurrentReqs = getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", cfg.GeminiConcurrentReqs)
	cfg.ProviderTimeout = getEnvAsDurationOrDefault("PROVIDER_TIMEOUT", cfg.ProviderTimeout)
	cfg.ReplyLanguage = getEnvOrDefault("REPLY_LANGUAGE", cfg.ReplyLanguage)
	cfg.MaxUploadBytes = int64(getEnvAsIntOrDefault("MAX_UPLOAD_BYTES", int(cfg.MaxUploadBytes)))
	cfg.MaxContentChars = getEnvAsIntOrDefault("MAX_CONTENT_CHARS", cfg.MaxContentChars)
	cfg.MaxCards = getEnvAsIntOrDefault("MAX_CARDS", cfg.MaxCards)
	cfg.UploadDir = getEnvOrDefault("UPLOAD_DIR", cfg.UploadDir)
	cfg.RedisURL = getEnvOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.RateLimitRequests = getEnvAsIntOrDefault("RATE_LIMIT_REQUESTS", cfg.RateLimitRequests)
	cfg.RateLimitWindow = getEnvAsDurationOrDefault("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	cfg.AllowedOrigins = getEnvAsListOrDefault("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.LogMode = getEnvOrDefault("LOG_MODE", cfg.Env)

	if cfg.SessionSecret == "" {
		cfg.SessionSecret = cfg.TelegramBotToken
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// UseCannedReplies reports whether the synthesis step runs without a live
// provider.
func (c *Config) UseCannedReplies() bool {
	return c.GeminiAPIKey == ""
}

func (c *Config) Validate() error {
	if c.EnforceAuth && c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when auth is enforced")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.MaxContentChars <= 0 {
		return fmt.Errorf("MAX_CONTENT_CHARS must be positive, got %d", c.MaxContentChars)
	}
	if c.GeminiConcurrentReqs <= 0 {
		return fmt.Errorf("GEMINI_CONCURRENT_REQUESTS must be positive, got %d", c.GeminiConcurrentReqs)
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

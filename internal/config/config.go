package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// LLM providers understood by the synthesizer wiring.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderGemini     = "gemini"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	BadgerDBPath     string `mapstructure:"BADGERDB_PATH"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`

	LLMProvider       string  `mapstructure:"LLM_PROVIDER"`
	LLMAPIKey         string  `mapstructure:"LLM_API_KEY"`
	LLMBaseURL        string  `mapstructure:"LLM_BASE_URL"`
	LLMModel          string  `mapstructure:"LLM_MODEL"`
	LLMMaxPromptChars int     `mapstructure:"LLM_MAX_PROMPT_CHARS"`
	LLMTimeoutSeconds int     `mapstructure:"LLM_TIMEOUT_SECONDS"`
	LLMTemperature    float64 `mapstructure:"LLM_TEMPERATURE"`
	LLMMaxTokens      int     `mapstructure:"LLM_MAX_TOKENS"`

	FetchTimeoutSeconds int     `mapstructure:"FETCH_TIMEOUT_SECONDS"`
	FetchMaxBytes       int64   `mapstructure:"FETCH_MAX_BYTES"`
	FetchRateLimit      float64 `mapstructure:"FETCH_RATE_LIMIT"`
	MinArticleChars     int     `mapstructure:"MIN_ARTICLE_CHARS"`
	BrowserFallback     bool    `mapstructure:"BROWSER_FALLBACK"`
	TempDir             string  `mapstructure:"TEMP_DIR"`

	ExportDocx              bool `mapstructure:"EXPORT_DOCX"`
	BadgerGCIntervalMinutes int  `mapstructure:"BADGER_GC_INTERVAL_MINUTES"`
}

var defaults = map[string]interface{}{
	"TELEGRAM_BOT_TOKEN":         "",
	"BADGERDB_PATH":              "./badger_data",
	"LOG_LEVEL":                  "info",
	"LLM_PROVIDER":               ProviderOpenRouter,
	"LLM_API_KEY":                "",
	"LLM_BASE_URL":               "",
	"LLM_MODEL":                  "meta-llama/llama-3-8b-instruct",
	"LLM_MAX_PROMPT_CHARS":       12000,
	"LLM_TIMEOUT_SECONDS":        60,
	"LLM_TEMPERATURE":            0.7,
	"LLM_MAX_TOKENS":             1500,
	"FETCH_TIMEOUT_SECONDS":      15,
	"FETCH_MAX_BYTES":            20 << 20,
	"FETCH_RATE_LIMIT":           2.0,
	"MIN_ARTICLE_CHARS":          200,
	"BROWSER_FALLBACK":           false,
	"TEMP_DIR":                   "",
	"EXPORT_DOCX":                true,
	"BADGER_GC_INTERVAL_MINUTES": 5,
}

// LoadConfig reads configuration from path/config.yaml and environment
// variables. Environment variables win over the file.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Every key needs a default so AutomaticEnv can see it during Unmarshal.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required values and numeric bounds.
func (c Config) Validate() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}
	if c.BadgerDBPath == "" {
		return fmt.Errorf("BADGERDB_PATH must not be empty")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}

	switch c.LLMProvider {
	case ProviderOpenRouter, ProviderOpenAI, ProviderGemini:
		if c.LLMAPIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required for provider %q", c.LLMProvider)
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.LLMModel == "" {
		return fmt.Errorf("LLM_MODEL must not be empty")
	}

	positive := map[string]float64{
		"LLM_MAX_PROMPT_CHARS":       float64(c.LLMMaxPromptChars),
		"LLM_TIMEOUT_SECONDS":        float64(c.LLMTimeoutSeconds),
		"LLM_MAX_TOKENS":             float64(c.LLMMaxTokens),
		"FETCH_TIMEOUT_SECONDS":      float64(c.FetchTimeoutSeconds),
		"FETCH_MAX_BYTES":            float64(c.FetchMaxBytes),
		"FETCH_RATE_LIMIT":           c.FetchRateLimit,
		"MIN_ARTICLE_CHARS":          float64(c.MinArticleChars),
		"BADGER_GC_INTERVAL_MINUTES": float64(c.BadgerGCIntervalMinutes),
	}
	for key, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %v", key, value)
		}
	}
	if c.LLMTemperature < 0 || c.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2, got %v", c.LLMTemperature)
	}
	return nil
}

// Level returns the parsed log level, info if it does not parse.
func (c Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c Config) GCInterval() time.Duration {
	return time.Duration(c.BadgerGCIntervalMinutes) * time.Minute
}

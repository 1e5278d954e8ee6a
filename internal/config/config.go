package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	APIBaseURL       string `yaml:"api_base_url"`
	LegacyAPIBaseURL string `yaml:"legacy_api_base_url"`
	Port             string `yaml:"port"`
	DBPath           string `yaml:"db_path"`
	TelegramToken    string `yaml:"telegram_bot_token"`
	WebhookPublicURL string `yaml:"webhook_public_url"`
	OpenAIKey        string `yaml:"openai_api_key"`
	LogLevel         string `yaml:"log_level"`
	Environment      string `yaml:"environment"`
}

// TelegramEnabled reports whether the chat surface should start.
func (c Config) TelegramEnabled() bool { return c.TelegramToken != "" }

// Load reads .env, the optional CONFIG_FILE and the environment, exiting on error.
func Load() Config {
	_ = godotenv.Load()
	cfg, err := load(os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	return cfg
}

func load(getenv func(string) string) (Config, error) {
	cfg := Config{
		APIBaseURL:  "http://localhost:8000",
		Port:        "9095",
		DBPath:      "data/history.db",
		LogLevel:    "info",
		Environment: "development",
	}
	if path := getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	override := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.APIBaseURL, "API_BASE_URL")
	override(&cfg.LegacyAPIBaseURL, "LEGACY_API_BASE_URL")
	override(&cfg.Port, "PORT")
	override(&cfg.DBPath, "DB_PATH")
	override(&cfg.TelegramToken, "TELEGRAM_BOT_TOKEN")
	override(&cfg.WebhookPublicURL, "WEBHOOK_PUBLIC_URL")
	override(&cfg.OpenAIKey, "OPENAI_API_KEY")
	override(&cfg.LogLevel, "LOG_LEVEL")
	override(&cfg.Environment, "ENVIRONMENT")

	if cfg.LegacyAPIBaseURL == "" {
		cfg.LegacyAPIBaseURL = cfg.APIBaseURL
	}
	if cfg.TelegramEnabled() && cfg.WebhookPublicURL == "" {
		return cfg, errors.New("missing env WEBHOOK_PUBLIC_URL (required with TELEGRAM_BOT_TOKEN)")
	}
	return cfg, nil
}

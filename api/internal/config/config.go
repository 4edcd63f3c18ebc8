package config

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config holds process-level settings. Per-run provider settings live in
// ProviderConfig and are loaded through a SettingsStore.
type Config struct {
	Port string

	SettingsPath  string
	DatabaseURL   string
	TelegramToken string

	// TelegramWebhookURL switches the bot from polling to webhook mode.
	TelegramWebhookURL string

	// Browser enables tab capture through a headless Chromium.
	Browser        bool
	BrowserInstall bool

	// RunRetention is how long run history is kept; zero keeps it forever.
	RunRetention time.Duration

	DedalusModel string
	GeminiModel  string
	OllamaModel  string

	HTTPTimeout time.Duration
	LogLevel    slog.Level
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", k, "value", v, "default", def)
		return def
	}
	return d
}

func getBool(k string, def bool) bool {
	switch strings.ToLower(getEnv(k, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8000"),

		SettingsPath:  getEnv("LENS_SETTINGS", "lens.yaml"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		TelegramToken: getEnv("TELEGRAM_BOT_TOKEN", ""),

		TelegramWebhookURL: getEnv("TELEGRAM_WEBHOOK_URL", ""),

		Browser:        getBool("LENS_BROWSER", false),
		BrowserInstall: getBool("LENS_BROWSER_INSTALL", false),

		RunRetention: getRetention("LENS_RUN_RETENTION", DefaultRunRetention),

		DedalusModel: getEnv("DEDALUS_MODEL", DefaultDedalusModel),
		GeminiModel:  getEnv("GEMINI_MODEL", DefaultGeminiModel),
		OllamaModel:  getEnv("OLLAMA_MODEL", DefaultOllamaModel),

		HTTPTimeout: getDuration("LENS_HTTP_TIMEOUT", DefaultHTTPTimeout),
		LogLevel:    parseLevel(getEnv("LOG_LEVEL", "info")),
	}
}

// Models returns the provider name -> model mapping used by the vision registry.
func (c *Config) Models() map[string]string {
	return map[string]string{
		ProviderDedalus: c.DedalusModel,
		ProviderGemini:  c.GeminiModel,
		ProviderOllama:  c.OllamaModel,
	}
}

const (
	DefaultDedalusModel = "google/gemini-2.0-flash"
	DefaultGeminiModel  = "gemini-2.5-flash"
	DefaultOllamaModel  = "llava"
	DefaultHTTPTimeout  = 60 * time.Second
	DefaultRunRetention = 30 * 24 * time.Hour
)

// getRetention accepts "0" to disable purging.
func getRetention(k string, def time.Duration) time.Duration {
	if getEnv(k, "") == "0" {
		return 0
	}
	return getDuration(k, def)
}

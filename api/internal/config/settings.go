package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ProviderDedalus = "dedalus"
	ProviderGemini  = "gemini"
	ProviderOllama  = "ollama"

	DefaultOllamaURL = "http://127.0.0.1:11434"
)

// ProviderConfig is a read-only snapshot of user settings for one pipeline run.
type ProviderConfig struct {
	VisionProvider string `yaml:"visionProvider"`
	DedalusAPIKey  string `yaml:"dedalusApiKey"`
	GeminiAPIKey   string `yaml:"geminiApiKey"`
	OllamaURL      string `yaml:"ollamaUrl"`

	WebhookURL    string `yaml:"webhookUrl"`
	WebhookAPIKey string `yaml:"webhookApiKey"`

	ImageSearchKey string `yaml:"imageSearchKey"`
	ImageHostKey   string `yaml:"imageHostKey"`

	BackendURL   string `yaml:"backendUrl"`
	BackendToken string `yaml:"backendToken"`
}

// Provider returns the selected vision provider, defaulting to dedalus.
func (p ProviderConfig) Provider() string {
	v := strings.ToLower(strings.TrimSpace(p.VisionProvider))
	if v == "" {
		return ProviderDedalus
	}
	return v
}

// APIKey returns the credential for the selected provider. Ollama needs none
// and reports its base URL instead.
func (p ProviderConfig) APIKey() string {
	switch p.Provider() {
	case ProviderGemini:
		return strings.TrimSpace(p.GeminiAPIKey)
	case ProviderOllama:
		if u := strings.TrimSpace(p.OllamaURL); u != "" {
			return u
		}
		return DefaultOllamaURL
	default:
		return strings.TrimSpace(p.DedalusAPIKey)
	}
}

// ReverseSearchEnabled reports whether both keys for reverse image search are set.
func (p ProviderConfig) ReverseSearchEnabled() bool {
	return strings.TrimSpace(p.ImageHostKey) != "" && strings.TrimSpace(p.ImageSearchKey) != ""
}

// SettingsStore yields a fresh ProviderConfig for each run.
type SettingsStore interface {
	Load(ctx context.Context) (ProviderConfig, error)
}

// Static is a fixed in-memory settings snapshot.
type Static ProviderConfig

func (s Static) Load(context.Context) (ProviderConfig, error) { return ProviderConfig(s), nil }

// FileSettings reads a YAML settings file on every Load and applies LENS_*
// environment overrides on top. A missing file is treated as empty.
type FileSettings struct {
	Path string
}

func NewFileSettings(path string) *FileSettings { return &FileSettings{Path: path} }

func (f *FileSettings) Load(ctx context.Context) (ProviderConfig, error) {
	var pc ProviderConfig
	if err := ctx.Err(); err != nil {
		return pc, err
	}
	if f.Path != "" {
		b, err := os.ReadFile(f.Path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return pc, fmt.Errorf("read settings %s: %w", f.Path, err)
		default:
			if err := yaml.Unmarshal(b, &pc); err != nil {
				return pc, fmt.Errorf("parse settings %s: %w", f.Path, err)
			}
		}
	}
	applyEnv(&pc)
	switch pc.Provider() {
	case ProviderDedalus, ProviderGemini, ProviderOllama:
	default:
		return pc, fmt.Errorf("unknown vision provider %q", pc.VisionProvider)
	}
	return pc, nil
}

func applyEnv(pc *ProviderConfig) {
	overrides := []struct {
		key string
		dst *string
	}{
		{"LENS_VISION_PROVIDER", &pc.VisionProvider},
		{"LENS_DEDALUS_API_KEY", &pc.DedalusAPIKey},
		{"LENS_GEMINI_API_KEY", &pc.GeminiAPIKey},
		{"LENS_OLLAMA_URL", &pc.OllamaURL},
		{"LENS_WEBHOOK_URL", &pc.WebhookURL},
		{"LENS_WEBHOOK_API_KEY", &pc.WebhookAPIKey},
		{"LENS_IMAGE_SEARCH_KEY", &pc.ImageSearchKey},
		{"LENS_IMAGE_HOST_KEY", &pc.ImageHostKey},
		{"LENS_BACKEND_URL", &pc.BackendURL},
		{"LENS_BACKEND_TOKEN", &pc.BackendToken},
	}
	for _, o := range overrides {
		if v := getEnv(o.key, ""); v != "" {
			*o.dst = v
		}
	}
}

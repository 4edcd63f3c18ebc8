package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LENS_HTTP_TIMEOUT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("GEMINI_MODEL", "")

	cfg := Load()
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, DefaultHTTPTimeout, cfg.HTTPTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "gemini-2.5-flash", cfg.Models()[ProviderGemini])
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LENS_HTTP_TIMEOUT", "5s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadInvalidTimeoutFallsBack(t *testing.T) {
	t.Setenv("LENS_HTTP_TIMEOUT", "soon")
	assert.Equal(t, DefaultHTTPTimeout, Load().HTTPTimeout)
}

func TestFileSettingsReadsYAMLEachLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("visionProvider: gemini\ngeminiApiKey: g-1\n"), 0o600))

	fs := NewFileSettings(path)
	pc, err := fs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, pc.Provider())
	assert.Equal(t, "g-1", pc.APIKey())

	require.NoError(t, os.WriteFile(path, []byte("visionProvider: dedalus\ndedalusApiKey: d-2\nwebhookUrl: http://hook\n"), 0o600))
	pc, err = fs.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ProviderDedalus, pc.Provider())
	assert.Equal(t, "d-2", pc.APIKey())
	assert.Equal(t, "http://hook", pc.WebhookURL)
}

func TestFileSettingsEnvOverride(t *testing.T) {
	t.Setenv("LENS_IMAGE_HOST_KEY", "host")
	t.Setenv("LENS_IMAGE_SEARCH_KEY", "search")

	pc, err := NewFileSettings(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, pc.ReverseSearchEnabled())
	assert.Equal(t, ProviderDedalus, pc.Provider())
}

func TestFileSettingsRejectsUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("visionProvider: claude\n"), 0o600))
	_, err := NewFileSettings(path).Load(context.Background())
	assert.ErrorContains(t, err, "unknown vision provider")
}

func TestFileSettingsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("visionProvider: [\n"), 0o600))
	_, err := NewFileSettings(path).Load(context.Background())
	assert.Error(t, err)
}

func TestOllamaAPIKeyDefaultsToLocalURL(t *testing.T) {
	pc := ProviderConfig{VisionProvider: "Ollama"}
	assert.Equal(t, DefaultOllamaURL, pc.APIKey())
}

func TestLoadBrowserAndRetention(t *testing.T) {
	t.Setenv("LENS_BROWSER", "true")
	t.Setenv("LENS_BROWSER_INSTALL", "")
	t.Setenv("LENS_RUN_RETENTION", "0")

	cfg := Load()
	assert.True(t, cfg.Browser)
	assert.False(t, cfg.BrowserInstall)
	assert.Zero(t, cfg.RunRetention)

	t.Setenv("LENS_RUN_RETENTION", "")
	assert.Equal(t, DefaultRunRetention, Load().RunRetention)
}

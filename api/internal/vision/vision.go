// Package vision turns an image into a short description through one of the
// configured multimodal providers.
package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lens-capture/api/internal/config"
)

const (
	DescribePrompt = "Identify and briefly describe what is in this image in one or two sentences. Be concise (object/scene and key details)."

	ImageMaxTokens = 300
	TextMaxTokens  = 500
)

type Image struct {
	Data []byte
	MIME string
}

// Describer is implemented by every vision provider.
type Describer interface {
	Name() string
	Model() string
	DescribeImage(ctx context.Context, img Image) (string, error)
	DescribeText(ctx context.Context, prompt string) (string, error)
}

// Factory builds a provider client for one run. key is the provider
// credential (the base URL for ollama).
type Factory func(key, model string, timeout time.Duration) Describer

type Engines struct {
	Dedalus Factory
	Gemini  Factory
	Ollama  Factory

	Models  map[string]string
	Timeout time.Duration
}

// GetEngine picks the provider named in pc. A missing credential fails here,
// before any network call.
func (e *Engines) GetEngine(pc config.ProviderConfig) (Describer, error) {
	name := pc.Provider()
	var f Factory
	switch name {
	case config.ProviderDedalus:
		f = e.Dedalus
	case config.ProviderGemini:
		f = e.Gemini
	case config.ProviderOllama:
		f = e.Ollama
	default:
		return nil, fmt.Errorf("unknown vision provider %q; use dedalus, gemini or ollama", name)
	}
	if f == nil {
		return nil, errors.New("vision provider " + name + " is not available")
	}
	key := pc.APIKey()
	if strings.TrimSpace(key) == "" {
		return nil, &Error{Kind: MissingCredentials, Provider: name}
	}
	return f(key, e.Models[name], e.Timeout), nil
}

// WithTimeout bounds a single provider call.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"lens-capture/api/internal/vision"
)

const name = "ollama"

// Engine calls a local Ollama server. It needs no credential; the configured
// key is the server's base URL.
type Engine struct {
	BaseURL string
	model   string
	httpc   *http.Client
}

func New(baseURL, model string, timeout time.Duration) vision.Describer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Engine{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:   strings.TrimSpace(model),
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (e *Engine) Name() string  { return name }
func (e *Engine) Model() string { return e.model }

func (e *Engine) client() (*api.Client, error) {
	u, err := url.Parse(e.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ollama URL %q", e.BaseURL)
	}
	return api.NewClient(&url.URL{Scheme: u.Scheme, Host: u.Host}, e.httpc), nil
}

func (e *Engine) DescribeImage(ctx context.Context, img vision.Image) (string, error) {
	return e.chat(ctx, api.Message{
		Role:    "user",
		Content: vision.DescribePrompt,
		Images:  []api.ImageData{api.ImageData(img.Data)},
	}, vision.ImageMaxTokens)
}

func (e *Engine) DescribeText(ctx context.Context, prompt string) (string, error) {
	return e.chat(ctx, api.Message{Role: "user", Content: prompt}, vision.TextMaxTokens)
}

func (e *Engine) chat(ctx context.Context, msg api.Message, maxTokens int) (string, error) {
	cl, err := e.client()
	if err != nil {
		return "", &vision.Error{Kind: vision.MissingCredentials, Provider: name, Err: err}
	}
	stream := false
	req := &api.ChatRequest{
		Model:    e.model,
		Messages: []api.Message{msg},
		Stream:   &stream,
		Options:  map[string]any{"num_predict": maxTokens},
	}

	var sb strings.Builder
	err = cl.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", classify(err)
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", vision.Invalid(name, "empty message content")
	}
	return out, nil
}

func classify(err error) error {
	var se api.StatusError
	if errors.As(err, &se) {
		msg := se.ErrorMessage
		if msg == "" {
			msg = se.Status
		}
		return vision.FromStatus(name, se.StatusCode, msg)
	}
	if vision.IsNetworkError(err) {
		return vision.Network(name, err)
	}
	return &vision.Error{Kind: vision.InvalidUpstreamResponse, Provider: name, Message: err.Error(), Err: err}
}

package dedalus

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"lens-capture/api/internal/util"
	"lens-capture/api/internal/vision"
)

const (
	DefaultBaseURL = "https://api.dedaluslabs.ai/v1/"
	name           = "dedalus"
)

// Engine talks to the Dedalus OpenAI-compatible chat completions endpoint.
type Engine struct {
	APIKey  string
	model   string
	BaseURL string
	httpc   *http.Client
}

func New(key, model string, timeout time.Duration) vision.Describer {
	return NewWithBaseURL(key, model, DefaultBaseURL, timeout)
}

func NewWithBaseURL(key, model, baseURL string, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Engine{
		APIKey:  strings.TrimSpace(key),
		model:   strings.TrimSpace(model),
		BaseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (e *Engine) Name() string  { return name }
func (e *Engine) Model() string { return e.model }

func (e *Engine) client() openai.Client {
	return openai.NewClient(
		option.WithAPIKey(e.APIKey),
		option.WithBaseURL(e.BaseURL),
		option.WithHTTPClient(e.httpc),
		option.WithMaxRetries(0),
	)
}

func (e *Engine) DescribeImage(ctx context.Context, img vision.Image) (string, error) {
	if e.APIKey == "" {
		return "", &vision.Error{Kind: vision.MissingCredentials, Provider: name}
	}
	mime := util.PickMIME(img.MIME, "", img.Data)
	dataURL := util.MakeDataURL(mime, base64.StdEncoding.EncodeToString(img.Data))

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(vision.DescribePrompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    dataURL,
			Detail: "low",
		}),
	}
	return e.complete(ctx, openai.UserMessage(parts), vision.ImageMaxTokens)
}

func (e *Engine) DescribeText(ctx context.Context, prompt string) (string, error) {
	if e.APIKey == "" {
		return "", &vision.Error{Kind: vision.MissingCredentials, Provider: name}
	}
	return e.complete(ctx, openai.UserMessage(prompt), vision.TextMaxTokens)
}

func (e *Engine) complete(ctx context.Context, msg openai.ChatCompletionMessageParamUnion, maxTokens int64) (string, error) {
	cl := e.client()
	resp, err := cl.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(e.model),
		MaxTokens: openai.Int(maxTokens),
		Messages:  []openai.ChatCompletionMessageParamUnion{msg},
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", vision.Invalid(name, "no choices")
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", vision.Invalid(name, "empty message content")
	}
	return out, nil
}

func classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		msg := errorBody(apierr)
		if msg == "" {
			msg = http.StatusText(apierr.StatusCode)
		}
		return vision.FromStatus(name, apierr.StatusCode, msg)
	}
	if vision.IsNetworkError(err) {
		return vision.Network(name, err)
	}
	return &vision.Error{Kind: vision.InvalidUpstreamResponse, Provider: name, Message: err.Error(), Err: err}
}

// errorBody returns the raw response body of a failed call. The SDK leaves a
// readable copy on the response.
func errorBody(apierr *openai.Error) string {
	if apierr.Response != nil && apierr.Response.Body != nil {
		if b, err := io.ReadAll(apierr.Response.Body); err == nil {
			if body := strings.TrimSpace(string(b)); body != "" {
				return util.Truncate(body, 2000)
			}
		}
	}
	if raw := strings.TrimSpace(apierr.RawJSON()); raw != "" {
		return raw
	}
	return apierr.Message
}

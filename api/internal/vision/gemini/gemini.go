package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"lens-capture/api/internal/util"
	"lens-capture/api/internal/vision"
)

const name = "gemini"

type Engine struct {
	APIKey  string
	model   string
	Timeout time.Duration
}

func New(key, model string, timeout time.Duration) vision.Describer {
	return &Engine{
		APIKey:  strings.TrimSpace(key),
		model:   strings.TrimSpace(model),
		Timeout: timeout,
	}
}

func (e *Engine) Name() string  { return name }
func (e *Engine) Model() string { return e.model }

func (e *Engine) DescribeImage(ctx context.Context, img vision.Image) (string, error) {
	mime := util.PickMIME(img.MIME, "", img.Data)
	return e.generate(ctx, vision.ImageMaxTokens,
		genai.Blob{MIMEType: mime, Data: img.Data},
		genai.Text(vision.DescribePrompt),
	)
}

func (e *Engine) DescribeText(ctx context.Context, prompt string) (string, error) {
	return e.generate(ctx, vision.TextMaxTokens, genai.Text(prompt))
}

func (e *Engine) generate(ctx context.Context, maxTokens int32, parts ...genai.Part) (string, error) {
	if e.APIKey == "" {
		return "", &vision.Error{Kind: vision.MissingCredentials, Provider: name}
	}
	ctx, cancel := vision.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", vision.Network(name, err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.model)
	m.SetMaxOutputTokens(maxTokens)

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classify(err)
	}
	return textOf(resp)
}

// textOf joins the text parts of the first candidate.
func textOf(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", vision.Invalid(name, "no candidates")
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", vision.Invalid(name, "candidate has no text")
	}
	return out, nil
}

func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return vision.FromStatus(name, gerr.Code, gerr.Message)
	}
	var aerr *apierror.APIError
	if errors.As(err, &aerr) {
		status := aerr.HTTPCode()
		if status <= 0 {
			status = grpcToHTTP(aerr.GRPCStatus().Code())
		}
		return vision.FromStatus(name, status, aerr.Error())
	}
	if vision.IsNetworkError(err) {
		return vision.Network(name, err)
	}
	return &vision.Error{Kind: vision.InvalidUpstreamResponse, Provider: name, Message: err.Error(), Err: err}
}

func grpcToHTTP(c codes.Code) int {
	switch c {
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

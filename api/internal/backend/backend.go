// Package backend talks to the user's bookmark backend: saving items and,
// when configured, delegating analysis.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lens-capture/api/internal/products"
)

var (
	ErrNoBackend    = errors.New("Backend URL is not set. Add backendUrl to your settings.")
	ErrUnauthorized = errors.New("Invalid or missing auth token.")
)

type Client struct {
	BaseURL string
	Token   string
	httpc   *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Token:   strings.TrimSpace(token),
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool { return c != nil && c.BaseURL != "" }

type Item struct {
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	SourceURL   string         `json:"source_url"`
}

// SaveItem posts the item to <base>/items and returns the backend's JSON object.
func (c *Client) SaveItem(ctx context.Context, it Item) (map[string]any, error) {
	if !c.Configured() {
		return nil, ErrNoBackend
	}
	if it.Type == "" {
		it.Type = "product"
	}
	if it.Metadata == nil {
		it.Metadata = map[string]any{}
	}
	out := map[string]any{}
	if err := c.post(ctx, "/items", it, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type analyzeRequest struct {
	Image    string `json:"image"`
	MIMEType string `json:"mimeType"`
	Intent   string `json:"intent"`
}

type AnalyzeResult struct {
	Description     string             `json:"description"`
	SimilarProducts []products.Product `json:"similarProducts"`
	Results         []products.Product `json:"results"`
}

// Analyze delegates description and product search to <base>/analyze.
func (c *Client) Analyze(ctx context.Context, image, mime, intent string) (AnalyzeResult, error) {
	if !c.Configured() {
		return AnalyzeResult{}, ErrNoBackend
	}
	var out AnalyzeResult
	err := c.post(ctx, "/analyze", analyzeRequest{Image: image, MIMEType: mime, Intent: intent}, &out)
	if err != nil {
		return AnalyzeResult{}, err
	}
	if out.SimilarProducts == nil {
		out.SimilarProducts = out.Results
	}
	if out.SimilarProducts == nil {
		out.SimilarProducts = []products.Product{}
	}
	out.Results = nil
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode/100 != 2 {
		text := strings.TrimSpace(string(body))
		if text == "" {
			text = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%d %s", resp.StatusCode, text)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend %s: decode response: %w", path, err)
	}
	return nil
}

// Package imghost uploads selection images to imgbb to obtain a public URL
// for reverse image search.
package imghost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.imgbb.com/1/upload"
	// ExpirationSeconds keeps uploads only as long as a search needs them.
	ExpirationSeconds = 600
)

type Client struct {
	Key     string
	BaseURL string
	httpc   *http.Client
}

func New(key string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		Key:     strings.TrimSpace(key),
		BaseURL: DefaultBaseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

func extFor(mime string) string {
	switch strings.ToLower(mime) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

// Upload posts data as the multipart "image" part and returns the hosted URL.
func (c *Client) Upload(ctx context.Context, data []byte, mime string) (string, error) {
	if c.Key == "" {
		return "", fmt.Errorf("imgbb: key is empty")
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", "selection."+extFor(mime))
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("key", c.Key)
	q.Set("expiration", fmt.Sprint(ExpirationSeconds))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"?"+q.Encode(), &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("imgbb %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		Success bool `json:"success"`
		Data    struct {
			URL        string `json:"url"`
			DisplayURL string `json:"display_url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("imgbb: decode response: %w", err)
	}
	u := out.Data.URL
	if u == "" {
		u = out.Data.DisplayURL
	}
	if u == "" {
		return "", fmt.Errorf("imgbb: no url in response")
	}
	return u, nil
}

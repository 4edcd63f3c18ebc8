// Package lens queries SerpApi's Google Lens engine for visual matches.
package lens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lens-capture/api/internal/products"
)

const DefaultBaseURL = "https://serpapi.com/search.json"

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

type price struct {
	Value          string   `json:"value"`
	ExtractedValue *float64 `json:"extracted_value"`
}

// UnmarshalJSON accepts both the structured object and a bare string or number.
func (p *price) UnmarshalJSON(b []byte) error {
	switch {
	case len(b) == 0 || string(b) == "null":
		return nil
	case b[0] == '"':
		return json.Unmarshal(b, &p.Value)
	case b[0] == '{':
		type raw price
		return json.Unmarshal(b, (*raw)(p))
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return nil
		}
		p.ExtractedValue = &f
		return nil
	}
}

type match struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Thumbnail string `json:"thumbnail"`
	Image     string `json:"image"`
	Source    string `json:"source"`
	Snippet   string `json:"snippet"`
	Price     *price `json:"price"`
}

// Search runs one google_lens query of resultType against imageURL. The
// list named by resultType is preferred; otherwise the first non-empty list
// among visual_matches, products and shopping_results is returned.
func (c *Client) Search(ctx context.Context, imageURL, resultType string) ([]products.Match, error) {
	if c.Key == "" {
		return nil, fmt.Errorf("serpapi: key is empty")
	}
	q := url.Values{}
	q.Set("engine", "google_lens")
	q.Set("url", imageURL)
	q.Set("api_key", c.Key)
	if resultType != "" {
		q.Set("type", resultType)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("serpapi %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out map[string]json.RawMessage
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("serpapi: decode response: %w", err)
	}
	if raw, ok := out["error"]; ok {
		var msg string
		_ = json.Unmarshal(raw, &msg)
		// "hasn't returned any results" is an empty set, not a failure
		if strings.Contains(strings.ToLower(msg), "any results") {
			return nil, nil
		}
		return nil, fmt.Errorf("serpapi: %s", msg)
	}
	for _, key := range resultKeys(resultType) {
		raw, ok := out[key]
		if !ok {
			continue
		}
		var ms []match
		if err := json.Unmarshal(raw, &ms); err != nil || len(ms) == 0 {
			continue
		}
		return convert(ms), nil
	}
	return nil, nil
}

func resultKeys(resultType string) []string {
	if resultType == "products" {
		return []string{"products", "shopping_results", "visual_matches"}
	}
	return []string{"visual_matches", "products", "shopping_results"}
}

func convert(ms []match) []products.Match {
	res := make([]products.Match, 0, len(ms))
	for _, m := range ms {
		pm := products.Match{
			Title:     m.Title,
			Link:      m.Link,
			Thumbnail: m.Thumbnail,
			Source:    m.Source,
			Snippet:   m.Snippet,
		}
		if pm.Thumbnail == "" {
			pm.Thumbnail = m.Image
		}
		if m.Price != nil {
			pm.Price = m.Price.Value
			pm.PriceNum = m.Price.ExtractedValue
		}
		res = append(res, pm)
	}
	return res
}

package products

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lens-capture/api/internal/util"
)

const (
	MaxResults = 8

	ResultProducts      = "products"
	ResultVisualMatches = "visual_matches"
)

// Match is one raw reverse image search hit.
type Match struct {
	Title     string
	Link      string
	Thumbnail string
	Source    string
	Snippet   string
	Price     string
	PriceNum  *float64
}

type ImageHost interface {
	Upload(ctx context.Context, data []byte, mime string) (string, error)
}

type VisualSearch interface {
	Search(ctx context.Context, imageURL, resultType string) ([]Match, error)
}

type TextDescriber interface {
	DescribeText(ctx context.Context, prompt string) (string, error)
}

// Resolver runs reverse image search when Host and Search are set and falls
// back to a single search phrase from Text. It never fails.
type Resolver struct {
	Host   ImageHost
	Search VisualSearch
	Text   TextDescriber
	Log    *slog.Logger
}

func (r *Resolver) log() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// Resolve returns resolved products, one fallback entry, or an empty list.
func (r *Resolver) Resolve(ctx context.Context, image []byte, mime, description string) []Product {
	if ps, err := r.reverseSearch(ctx, image, mime); err != nil {
		r.log().Debug("reverse image search skipped", "err", err)
	} else if len(ps) > 0 {
		return ps
	}

	q, err := r.searchPhrase(ctx, description)
	if err != nil {
		r.log().Debug("search phrase unavailable", "err", err)
		return []Product{}
	}
	return []Product{NewFallback(q)}
}

func (r *Resolver) reverseSearch(ctx context.Context, image []byte, mime string) ([]Product, error) {
	if r.Host == nil || r.Search == nil {
		return nil, fmt.Errorf("reverse image search is not configured")
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("no image")
	}
	imageURL, err := r.Host.Upload(ctx, image, mime)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	for _, kind := range []string{ResultProducts, ResultVisualMatches} {
		matches, err := r.Search.Search(ctx, imageURL, kind)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", kind, err)
		}
		if ps := Normalize(matches); len(ps) > 0 {
			r.log().Debug("reverse image search", "type", kind, "results", len(ps))
			return ps, nil
		}
	}
	return nil, nil
}

// SearchPhrasePrompt asks for a single shopping phrase as JSON.
func SearchPhrasePrompt(description string) string {
	return fmt.Sprintf(`The user selected an image region that was described as: "%s". `+
		`Suggest one short search phrase (a few keywords) to find this or a visually similar product on shopping sites. `+
		`Reply with ONLY a JSON object with exactly one key, "search_query". No other text or markdown. `+
		`Example: {"search_query": "white ceramic coffee mug"}`, description)
}

func (r *Resolver) searchPhrase(ctx context.Context, description string) (string, error) {
	if r.Text == nil {
		return "", fmt.Errorf("no text provider")
	}
	if strings.TrimSpace(description) == "" {
		return "", fmt.Errorf("empty description")
	}
	reply, err := r.Text.DescribeText(ctx, SearchPhrasePrompt(description))
	if err != nil {
		return "", err
	}
	q := util.ParseSearchPhrase(reply)
	if q == "" {
		return "", fmt.Errorf("no usable phrase in reply")
	}
	return q, nil
}

// Normalize converts raw matches to products: prices are filled from the
// structured field or the title and snippet text, missing links are derived
// from the title, and entries with neither are dropped. At most MaxResults
// are kept.
func Normalize(matches []Match) []Product {
	out := make([]Product, 0, min(len(matches), MaxResults))
	for _, m := range matches {
		if len(out) == MaxResults {
			break
		}
		title := strings.TrimSpace(m.Title)
		link := strings.TrimSpace(m.Link)
		if link == "" {
			if title == "" {
				continue
			}
			link = ShoppingLink(title)
		}
		p := Product{
			Name:   title,
			Link:   link,
			Image:  m.Thumbnail,
			Source: m.Source,
		}
		if p.Name == "" {
			p.Name = m.Source
		}
		switch {
		case m.PriceNum != nil:
			n := *m.PriceNum
			p.PriceNum = &n
			p.Price = m.Price
			if p.Price == "" {
				p.Price = fmt.Sprintf("%.2f", n)
			}
		case m.Price != "":
			p.Price = m.Price
			if _, n, ok := ExtractPrice(m.Price); ok {
				p.PriceNum = &n
			}
		default:
			if display, n, ok := ExtractPrice(title + " " + m.Snippet); ok {
				p.Price = display
				p.PriceNum = &n
			}
		}
		out = append(out, p)
	}
	return out
}

// Package products resolves an image description into purchasable,
// visually similar products.
package products

import (
	"errors"
	"net/url"
	"strings"
)

const FallbackName = "Search similar products"

// Product is either a resolved product with a direct link or a fallback
// placeholder carrying only a search phrase.
type Product struct {
	Name        string   `json:"name"`
	Price       string   `json:"price,omitempty"`
	PriceNum    *float64 `json:"priceNum,omitempty"`
	Link        string   `json:"link,omitempty"`
	Image       string   `json:"image,omitempty"`
	Source      string   `json:"source,omitempty"`
	SearchQuery string   `json:"search_query,omitempty"`
	Fallback    bool     `json:"fallback,omitempty"`
}

func NewFallback(query string) Product {
	return Product{Name: FallbackName, SearchQuery: strings.TrimSpace(query), Fallback: true}
}

var (
	ErrMissingLink  = errors.New("resolved product has no link")
	ErrFallbackLink = errors.New("fallback product must not carry a link")
	ErrMissingQuery = errors.New("fallback product has no search query")
)

func (p Product) Validate() error {
	if p.Fallback {
		if p.Link != "" {
			return ErrFallbackLink
		}
		if strings.TrimSpace(p.SearchQuery) == "" {
			return ErrMissingQuery
		}
		return nil
	}
	if strings.TrimSpace(p.Link) == "" {
		return ErrMissingLink
	}
	return nil
}

// ShoppingLink builds a Google Shopping search URL for q.
func ShoppingLink(q string) string {
	return "https://www.google.com/search?tbm=shop&q=" + url.QueryEscape(strings.TrimSpace(q))
}

// AmazonLink builds an Amazon search URL for q.
func AmazonLink(q string) string {
	return "https://www.amazon.com/s?k=" + url.QueryEscape(strings.TrimSpace(q))
}

// Package present turns an analyze result into what the viewer sees: the
// description, an optional webhook advisory and the sortable product list.
package present

import (
	"errors"
	"strings"

	"lens-capture/api/internal/messaging"
	"lens-capture/api/internal/products"
)

const (
	NoDescription = "No description."
	NoProducts    = "No similar products found."
)

type Link struct {
	Label string
	URL   string
}

// Item is one row of the product list. Fallback entries carry deferred
// search links instead of a product link.
type Item struct {
	Name     string
	Price    string
	Source   string
	Image    string
	Query    string
	Fallback bool
	Links    []Link
}

type View struct {
	Description string
	Advisory    string
	Direction   products.Direction
	Products    []products.Product
}

// Build copies the products so re-sorting never touches the response.
func Build(res messaging.AnalyzeResult) View {
	v := View{
		Description: strings.TrimSpace(res.Description),
		Products:    append([]products.Product(nil), res.SimilarProducts...),
	}
	if v.Description == "" {
		v.Description = NoDescription
	}
	if res.WebhookError != nil && strings.TrimSpace(*res.WebhookError) != "" {
		v.Advisory = "Backend: " + strings.TrimSpace(*res.WebhookError)
	}
	v.Sort(products.Ascending)
	return v
}

func (v *View) Sort(dir products.Direction) {
	v.Direction = dir
	Sort(v.Products, dir)
}

// Sort re-orders ps in place on the viewer's choice.
func Sort(ps []products.Product, dir products.Direction) {
	products.SortByPrice(ps, dir)
}

func (v View) Empty() bool { return len(v.Products) == 0 }

func (v View) Items() []Item {
	out := make([]Item, 0, len(v.Products))
	for _, p := range v.Products {
		it := Item{
			Name:     p.Name,
			Price:    p.Price,
			Source:   p.Source,
			Image:    p.Image,
			Query:    p.SearchQuery,
			Fallback: p.Fallback,
		}
		if p.Fallback {
			it.Links = []Link{
				{Label: "Google Shopping", URL: products.ShoppingLink(p.SearchQuery)},
				{Label: "Amazon", URL: products.AmazonLink(p.SearchQuery)},
			}
		} else if p.Link != "" {
			it.Links = []Link{{Label: "View", URL: p.Link}}
		}
		out = append(out, it)
	}
	return out
}

type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notice is a transient notification.
type Notice struct {
	Level Level
	Text  string
}

func Outcome(res messaging.AnalyzeResult) Notice {
	if res.WebhookError != nil && strings.TrimSpace(*res.WebhookError) != "" {
		return Notice{Level: Warning, Text: "Analyzed. Backend: " + strings.TrimSpace(*res.WebhookError)}
	}
	if res.SentToWebhook {
		return Notice{Level: Info, Text: "Analyzed and sent to your backend."}
	}
	return Notice{Level: Info, Text: "Analyzed."}
}

// Failure is the single notification for a fatal run error.
func Failure(err error) Notice {
	if errors.Is(err, messaging.ErrUnreachable) {
		return Notice{Level: Error, Text: messaging.ErrUnreachable.Error()}
	}
	msg := "Something went wrong."
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		msg = err.Error()
	}
	return Notice{Level: Error, Text: msg}
}

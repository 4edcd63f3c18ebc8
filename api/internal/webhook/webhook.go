// Package webhook delivers a capture event to a user-configured endpoint.
package webhook

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
)

type Kind int

const (
	Other Kind = iota
	NotFound
	AuthOrPermission
	ServerError
)

type Error struct {
	Kind   Kind
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		if e.Err != nil {
			return e.Err.Error()
		}
		return "request failed"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		body = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%d %s", e.Status, body)
}

func (e *Error) Unwrap() error { return e.Err }

// Hint is the human-readable advisory shown next to a successful result.
func (e *Error) Hint() string {
	switch e.Kind {
	case NotFound:
		return "404 - URL or path not found. Check the webhook URL in options and that your backend has this endpoint."
	case AuthOrPermission:
		return fmt.Sprintf("%d - Backend rejected the request (auth or permission).", e.Status)
	case ServerError:
		return fmt.Sprintf("%d - Server error on your backend.", e.Status)
	default:
		if e.Status != 0 {
			return e.Error()
		}
		return "Request failed. Check URL and network."
	}
}

func classify(status int, body string) *Error {
	e := &Error{Status: status, Body: body}
	switch {
	case status == http.StatusNotFound:
		e.Kind = NotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = AuthOrPermission
	case status >= 500:
		e.Kind = ServerError
	default:
		e.Kind = Other
	}
	return e
}

// Hint maps any notifier error to its advisory text.
func Hint(err error) string {
	if err == nil {
		return ""
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Hint()
	}
	return "Request failed. Check URL and network."
}

type Event struct {
	Image       string `json:"image"`
	MIMEType    string `json:"mimeType"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

type Notifier struct {
	URL    string
	APIKey string
	httpc  *http.Client
	now    func() time.Time
}

func New(url, apiKey string, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Notifier{
		URL:    strings.TrimSpace(url),
		APIKey: strings.TrimSpace(apiKey),
		httpc:  &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

func (n *Notifier) Enabled() bool { return n != nil && n.URL != "" }

// Notify posts one event. The timestamp is taken at posting time.
func (n *Notifier) Notify(ctx context.Context, image, mime, description string) error {
	if !n.Enabled() {
		return nil
	}
	if mime == "" {
		mime = "image/png"
	}
	ev := Event{
		Image:       image,
		MIMEType:    mime,
		Description: description,
		Timestamp:   n.now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return &Error{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(payload))
	if err != nil {
		return &Error{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if n.APIKey != "" {
		req.Header.Set("X-API-Key", n.APIKey)
	}
	resp, err := n.httpc.Do(req)
	if err != nil {
		return &Error{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return classify(resp.StatusCode, string(b))
	}
	return nil
}

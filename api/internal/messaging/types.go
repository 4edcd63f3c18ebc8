// Package messaging is the request/response channel between the
// page-embedded selection component and the privileged orchestrator.
package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"lens-capture/api/internal/products"
)

type Type string

const (
	CaptureTab     Type = "CAPTURE_TAB"
	AnalyzeAndSend Type = "ANALYZE_AND_SEND"
	SaveItem       Type = "SAVE_ITEM"
)

// Envelope is one request. Every envelope receives exactly one Response.
type Envelope struct {
	ID      string          `json:"id"`
	Type    Type            `json:"type"`
	TabID   int             `json:"tabId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(t Type, tabID int, payload any) (Envelope, error) {
	env := Envelope{ID: uuid.NewString(), Type: t, TabID: tabID}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s payload: %w", t, err)
		}
		env.Payload = b
	}
	return env, nil
}

type CaptureResult struct {
	DataURL string `json:"dataUrl"`
}

type AnalyzeRequest struct {
	CroppedBase64 string `json:"croppedBase64"`
	MIMEType      string `json:"mimeType"`
	Intent        string `json:"intent,omitempty"`
}

const IntentProduct = "product"

type AnalyzeResult struct {
	Description     string             `json:"description"`
	SimilarProducts []products.Product `json:"similarProducts"`
	SentToWebhook   bool               `json:"sentToWebhook"`
	WebhookError    *string            `json:"webhookError"`
}

type SaveItemRequest struct {
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	SourceURL   string         `json:"source_url"`
}

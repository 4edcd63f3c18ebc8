package telegram

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lens-capture/api/internal/messaging"
	"lens-capture/api/internal/products"
)

func TestFormatReply(t *testing.T) {
	hint := "404 - URL or path not found. Check the webhook URL."
	out := formatReply(messaging.AnalyzeResult{
		Description: "A white mug.",
		SimilarProducts: []products.Product{
			{Name: "Mug B", Price: "$30", Link: "https://b"},
			{Name: "Mug A", Price: "$10", Link: "https://a", Source: "Shop"},
		},
		WebhookError: &hint,
	})
	assert.Contains(t, out, "A white mug.")
	assert.Contains(t, out, "Backend: "+hint)
	assert.Less(t, strings.Index(out, "Mug A"), strings.Index(out, "Mug B"))
	assert.Contains(t, out, "1. Mug A - $10 (Shop)")
	assert.True(t, strings.HasSuffix(out, "Analyzed. Backend: "+hint))
}

func TestFormatReplyEmpty(t *testing.T) {
	out := formatReply(messaging.AnalyzeResult{})
	assert.Contains(t, out, "No description.")
	assert.Contains(t, out, "No similar products found.")
	assert.True(t, strings.HasSuffix(out, "Analyzed."))
}

func TestFormatReplyTruncates(t *testing.T) {
	out := formatReply(messaging.AnalyzeResult{Description: strings.Repeat("x", 5000)})
	assert.Len(t, []rune(out), maxReplyRunes)
}

func TestProductKeyboard(t *testing.T) {
	_, ok := productKeyboard(messaging.AnalyzeResult{})
	assert.False(t, ok)

	kb, ok := productKeyboard(messaging.AnalyzeResult{
		SimilarProducts: []products.Product{products.NewFallback("white mug")},
	})
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 2)
	b := kb.InlineKeyboard[0][0]
	assert.Equal(t, "Google Shopping: white mug", b.Text)
	require.NotNil(t, b.URL)
	assert.Equal(t, "https://www.google.com/search?tbm=shop&q=white+mug", *b.URL)
}

func TestProductKeyboardCapsRows(t *testing.T) {
	ps := make([]products.Product, 12)
	for i := range ps {
		ps[i] = products.Product{Name: strings.Repeat("n", 100), Link: "https://x"}
	}
	kb, ok := productKeyboard(messaging.AnalyzeResult{SimilarProducts: ps})
	require.True(t, ok)
	assert.Len(t, kb.InlineKeyboard, maxKeyboardRows)
	assert.Len(t, []rune(kb.InlineKeyboard[0][0].Text), maxButtonLabel)
}

func TestImageFileID(t *testing.T) {
	msg := &tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}}
	assert.Equal(t, "large", imageFileID(msg))

	msg = &tgbotapi.Message{Document: &tgbotapi.Document{FileID: "doc", MimeType: "image/jpeg"}}
	assert.Equal(t, "doc", imageFileID(msg))

	msg = &tgbotapi.Message{Document: &tgbotapi.Document{FileID: "pdf", MimeType: "application/pdf"}}
	assert.Empty(t, imageFileID(msg))
}

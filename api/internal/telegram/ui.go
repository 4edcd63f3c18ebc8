package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lens-capture/api/internal/messaging"
	"lens-capture/api/internal/present"
	"lens-capture/api/internal/util"
)

const (
	maxReplyRunes   = 3900
	maxButtonLabel  = 60
	maxKeyboardRows = 8
)

func formatReply(res messaging.AnalyzeResult) string {
	v := present.Build(res)
	var b strings.Builder
	b.WriteString("📝 ")
	b.WriteString(v.Description)
	b.WriteString("\n")
	if v.Advisory != "" {
		b.WriteString("\n⚠️ ")
		b.WriteString(v.Advisory)
		b.WriteString("\n")
	}
	b.WriteString("\n🛍 Similar products:\n")
	if v.Empty() {
		b.WriteString(present.NoProducts)
	}
	for i, it := range v.Items() {
		line := fmt.Sprintf("%d. %s", i+1, it.Name)
		if it.Fallback && it.Query != "" {
			line = fmt.Sprintf("%d. Search: %s", i+1, it.Query)
		}
		if it.Price != "" {
			line += " - " + it.Price
		}
		if it.Source != "" {
			line += " (" + it.Source + ")"
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(present.Outcome(res).Text)
	return util.Truncate(b.String(), maxReplyRunes)
}

// productKeyboard puts one URL button row per product link.
func productKeyboard(res messaging.AnalyzeResult) (tgbotapi.InlineKeyboardMarkup, bool) {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, it := range present.Build(res).Items() {
		for _, l := range it.Links {
			if len(rows) == maxKeyboardRows {
				break
			}
			label := it.Name
			if it.Fallback {
				label = l.Label + ": " + it.Query
			}
			label = util.Truncate(label, maxButtonLabel)
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(label, l.URL)))
		}
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

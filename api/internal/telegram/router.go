package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lens-capture/api/internal/messaging"
)

// Analyzer sends one ANALYZE_AND_SEND request. *messaging.Client satisfies it.
type Analyzer interface {
	AnalyzeAndSend(ctx context.Context, req messaging.AnalyzeRequest) (messaging.AnalyzeResult, error)
}

type Router struct {
	Bot    *tgbotapi.BotAPI
	Client Analyzer
	Log    *slog.Logger
	// Timeout bounds one photo from download to reply.
	Timeout time.Duration

	httpc    *http.Client
	inflight sync.Map // chatID -> struct{}
}

func NewRouter(bot *tgbotapi.BotAPI, client Analyzer, timeout time.Duration, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &Router{
		Bot:     bot,
		Client:  client,
		Log:     log,
		Timeout: timeout,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (r *Router) HandleCommand(upd tgbotapi.Update) {
	cid := upd.Message.Chat.ID
	switch upd.Message.Command() {
	case "start":
		r.send(cid, "Send me a photo of something you like. I will describe it and look for similar products.\nCommands: /health")
	case "health":
		r.send(cid, "✅ OK")
	default:
		r.send(cid, "Unknown command")
	}
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.HandleCommand(upd)
		return
	}
	if fileID := imageFileID(upd.Message); fileID != "" {
		r.acceptPhoto(ctx, upd.Message.Chat.ID, fileID)
		return
	}
	if upd.Message.Text != "" {
		r.send(upd.Message.Chat.ID, "Send a photo to analyze.")
	}
}

func (r *Router) send(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := r.Bot.Send(msg); err != nil {
		r.Log.Warn("telegram send", "chat", chatID, "err", err)
	}
}

func (r *Router) SendError(chatID int64, err error) {
	r.send(chatID, fmt.Sprintf("❌ %v", err))
}

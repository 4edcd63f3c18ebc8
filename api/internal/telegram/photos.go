package telegram

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"lens-capture/api/internal/messaging"
	"lens-capture/api/internal/util"
)

const maxImageBytes = 20 << 20

// imageFileID picks the largest photo size, or an image sent as a document.
func imageFileID(msg *tgbotapi.Message) string {
	if n := len(msg.Photo); n > 0 {
		return msg.Photo[n-1].FileID
	}
	if d := msg.Document; d != nil && strings.HasPrefix(d.MimeType, "image/") {
		return d.FileID
	}
	return ""
}

func (r *Router) acceptPhoto(ctx context.Context, chatID int64, fileID string) {
	if _, busy := r.inflight.LoadOrStore(chatID, struct{}{}); busy {
		r.send(chatID, "Still working on your previous photo.")
		return
	}
	r.send(chatID, "Photo received, analyzing…")
	go func() {
		defer r.inflight.Delete(chatID)
		ctx, cancel := context.WithTimeout(ctx, r.Timeout)
		defer cancel()
		if err := r.analyzePhoto(ctx, chatID, fileID); err != nil {
			r.Log.Warn("telegram photo failed", "chat", chatID, "err", err)
			r.SendError(chatID, err)
		}
	}()
}

func (r *Router) analyzePhoto(ctx context.Context, chatID int64, fileID string) error {
	url, err := r.Bot.GetFileDirectURL(fileID)
	if err != nil {
		return fmt.Errorf("get file: %w", err)
	}
	img, err := r.download(ctx, url)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	res, err := r.Client.AnalyzeAndSend(ctx, messaging.AnalyzeRequest{
		CroppedBase64: base64.StdEncoding.EncodeToString(img),
		MIMEType:      util.SniffMimeHTTP(img),
		Intent:        messaging.IntentProduct,
	})
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, formatReply(res))
	msg.DisableWebPagePreview = true
	if kb, ok := productKeyboard(res); ok {
		msg.ReplyMarkup = kb
	}
	if _, err := r.Bot.Send(msg); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

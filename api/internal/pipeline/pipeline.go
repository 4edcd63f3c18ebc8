// Package pipeline implements the privileged side of the messaging protocol:
// tab capture, vision description, product resolution and webhook delivery.
package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"lens-capture/api/internal/backend"
	"lens-capture/api/internal/config"
	"lens-capture/api/internal/messaging"
	"lens-capture/api/internal/products"
	"lens-capture/api/internal/products/imghost"
	"lens-capture/api/internal/products/lens"
	"lens-capture/api/internal/store"
	"lens-capture/api/internal/util"
	"lens-capture/api/internal/vision"
	"lens-capture/api/internal/webhook"
)

var (
	ErrCaptureFailed = errors.New("capture failed")
	ErrNoImage       = errors.New("No image data")
)

// Capturer grabs the visible viewport of a tab as PNG.
type Capturer interface {
	CaptureVisible(ctx context.Context, tabID int) ([]byte, error)
}

// RunRecorder stores completed runs. Failures never affect the response.
type RunRecorder interface {
	Insert(ctx context.Context, run store.Run) error
}

type Pipeline struct {
	Settings config.SettingsStore
	Engines  *vision.Engines
	Capture  Capturer
	Records  RunRecorder
	Timeout  time.Duration
	Log      *slog.Logger

	// Endpoint overrides; empty means the public service.
	ImageHostURL   string
	ImageSearchURL string
}

var _ messaging.Service = (*Pipeline)(nil)

func (p *Pipeline) log() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.Default()
}

func (p *Pipeline) CaptureTab(ctx context.Context, tabID int) (messaging.CaptureResult, error) {
	if tabID == 0 {
		return messaging.CaptureResult{}, fmt.Errorf("%w: No tab id", ErrCaptureFailed)
	}
	if p.Capture == nil {
		return messaging.CaptureResult{}, fmt.Errorf("%w: tab capture is not available", ErrCaptureFailed)
	}
	png, err := p.Capture.CaptureVisible(ctx, tabID)
	if err != nil {
		return messaging.CaptureResult{}, fmt.Errorf("%w: Screenshot failed: %v", ErrCaptureFailed, err)
	}
	p.log().Debug("tab captured", "tab", tabID, "bytes", len(png))
	return messaging.CaptureResult{
		DataURL: util.MakeDataURL("image/png", base64.StdEncoding.EncodeToString(png)),
	}, nil
}

func (p *Pipeline) AnalyzeAndSend(ctx context.Context, req messaging.AnalyzeRequest) (messaging.AnalyzeResult, error) {
	b64 := util.StripDataURL(req.CroppedBase64)
	if b64 == "" {
		return messaging.AnalyzeResult{}, ErrNoImage
	}
	data, hint, err := util.DecodeBase64MaybeDataURL(req.CroppedBase64)
	if err != nil {
		return messaging.AnalyzeResult{}, fmt.Errorf("invalid image data: %w", err)
	}
	mime := util.PickMIME(req.MIMEType, hint, data)
	intent := strings.TrimSpace(req.Intent)
	if intent == "" {
		intent = messaging.IntentProduct
	}

	pc, err := p.Settings.Load(ctx)
	if err != nil {
		return messaging.AnalyzeResult{}, fmt.Errorf("load settings: %w", err)
	}

	if strings.TrimSpace(pc.BackendURL) != "" {
		return p.analyzeViaBackend(ctx, pc, b64, mime, intent)
	}

	d, err := p.Engines.GetEngine(pc)
	if err != nil {
		return messaging.AnalyzeResult{}, err
	}
	description, err := d.DescribeImage(ctx, vision.Image{Data: data, MIME: mime})
	if err != nil {
		return messaging.AnalyzeResult{}, err
	}
	p.log().Info("image described", "provider", d.Name(), "model", d.Model(), "chars", len(description))

	notifier := webhook.New(pc.WebhookURL, pc.WebhookAPIKey, p.Timeout)
	resolver := p.resolverFor(pc, d)

	var (
		g          errgroup.Group
		webhookErr error
		similar    = []products.Product{}
	)
	g.Go(func() error {
		webhookErr = notifier.Notify(ctx, b64, mime, description)
		if webhookErr != nil {
			p.log().Warn("webhook failed", "err", webhookErr)
		}
		return nil
	})
	if intent == messaging.IntentProduct {
		g.Go(func() error {
			similar = resolver.Resolve(ctx, data, mime, description)
			return nil
		})
	}
	_ = g.Wait()

	res := messaging.AnalyzeResult{
		Description:     description,
		SimilarProducts: similar,
		SentToWebhook:   notifier.Enabled() && webhookErr == nil,
	}
	if webhookErr != nil {
		hint := webhook.Hint(webhookErr)
		res.WebhookError = &hint
	}
	p.record(ctx, data, d, res)
	return res, nil
}

func (p *Pipeline) resolverFor(pc config.ProviderConfig, d vision.Describer) *products.Resolver {
	r := &products.Resolver{Text: d, Log: p.log()}
	if pc.ReverseSearchEnabled() {
		host := imghost.New(pc.ImageHostKey, p.Timeout)
		if p.ImageHostURL != "" {
			host.BaseURL = p.ImageHostURL
		}
		search := lens.New(pc.ImageSearchKey, p.Timeout)
		if p.ImageSearchURL != "" {
			search.BaseURL = p.ImageSearchURL
		}
		r.Host, r.Search = host, search
	}
	return r
}

func (p *Pipeline) analyzeViaBackend(ctx context.Context, pc config.ProviderConfig, b64, mime, intent string) (messaging.AnalyzeResult, error) {
	out, err := backend.New(pc.BackendURL, pc.BackendToken, p.Timeout).Analyze(ctx, b64, mime, intent)
	if err != nil {
		return messaging.AnalyzeResult{}, fmt.Errorf("backend: %w", err)
	}
	p.log().Info("image analyzed by backend", "products", len(out.SimilarProducts))
	return messaging.AnalyzeResult{
		Description:     out.Description,
		SimilarProducts: out.SimilarProducts,
	}, nil
}

func (p *Pipeline) record(ctx context.Context, data []byte, d vision.Describer, res messaging.AnalyzeResult) {
	if p.Records == nil {
		return
	}
	js, err := json.Marshal(res.SimilarProducts)
	if err != nil {
		return
	}
	run := store.Run{
		ImageHash:     store.HashImage(data),
		Provider:      d.Name(),
		Model:         d.Model(),
		Description:   res.Description,
		Products:      js,
		SentToWebhook: res.SentToWebhook,
		WebhookError:  res.WebhookError,
	}
	if err := p.Records.Insert(ctx, run); err != nil {
		p.log().Warn("record run", "err", err)
	}
}

func (p *Pipeline) SaveItem(ctx context.Context, req messaging.SaveItemRequest) (map[string]any, error) {
	pc, err := p.Settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return backend.New(pc.BackendURL, pc.BackendToken, p.Timeout).SaveItem(ctx, backend.Item{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		Metadata:    req.Metadata,
		SourceURL:   req.SourceURL,
	})
}

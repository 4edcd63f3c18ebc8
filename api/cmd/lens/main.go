// Command lens opens a page in headless Chromium, selects a region and runs
// the capture, describe and product search pipeline on it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"lens-capture/api/internal/capture"
	"lens-capture/api/internal/config"
	"lens-capture/api/internal/imagecodec"
	"lens-capture/api/internal/messaging"
	"lens-capture/api/internal/pipeline"
	"lens-capture/api/internal/products"
	"lens-capture/api/internal/selection"
	"lens-capture/api/internal/vision"
	"lens-capture/api/internal/vision/dedalus"
	"lens-capture/api/internal/vision/gemini"
	"lens-capture/api/internal/vision/ollama"
)

type options struct {
	url      string
	rect     selection.Rect
	viewport capture.Viewport
	settings string
	order    products.Direction
	format   imagecodec.Format
	intent   string
	install  bool
	width    int
}

func main() {
	cfg := config.Load()
	opts, err := parseFlags(os.Args[1:], cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, log); err != nil {
		os.Exit(1)
	}
}

func parseFlags(args []string, cfg *config.Config) (options, error) {
	fs := flag.NewFlagSet("lens", flag.ContinueOnError)
	var (
		o        options
		rect     = fs.String("rect", "", "selection in CSS pixels: x,y,w,h")
		viewport = fs.String("viewport", "1280x800", "viewport size WxH")
		dpr      = fs.Float64("dpr", 1, "device pixel ratio")
		order    = fs.String("sort", "asc", "price order: asc or desc")
		format   = fs.String("format", "png", "selection image format: png, jpeg or webp")
	)
	fs.StringVar(&o.url, "url", "", "page to open")
	fs.StringVar(&o.settings, "settings", cfg.SettingsPath, "provider settings file")
	fs.StringVar(&o.intent, "intent", messaging.IntentProduct, "analysis intent")
	fs.BoolVar(&o.install, "install", cfg.BrowserInstall, "install the browser driver before launch")
	fs.IntVar(&o.width, "width", 100, "output width in columns")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.url == "" {
		return o, errors.New("-url is required")
	}
	r, err := parseRect(*rect)
	if err != nil {
		return o, err
	}
	vp, err := parseViewport(*viewport)
	if err != nil {
		return o, err
	}
	vp.DPR = *dpr
	o.rect, o.viewport = r, vp
	o.order = products.ParseDirection(*order)
	o.format = imagecodec.ParseFormat(*format)
	return o, nil
}

func parseRect(s string) (selection.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return selection.Rect{}, fmt.Errorf("-rect must be x,y,w,h, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return selection.Rect{}, fmt.Errorf("-rect: %w", err)
		}
		v[i] = f
	}
	return selection.Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}, nil
}

func parseViewport(s string) (capture.Viewport, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return capture.Viewport{}, fmt.Errorf("-viewport must be WxH, got %q", s)
	}
	wi, err1 := strconv.Atoi(strings.TrimSpace(w))
	hi, err2 := strconv.Atoi(strings.TrimSpace(h))
	if err1 != nil || err2 != nil || wi <= 0 || hi <= 0 {
		return capture.Viewport{}, fmt.Errorf("-viewport must be WxH, got %q", s)
	}
	return capture.Viewport{Width: wi, Height: hi}, nil
}

func run(ctx context.Context, cfg *config.Config, o options, log *slog.Logger) error {
	browser, err := capture.Start(capture.Options{Headless: true, Install: o.install, Log: log})
	if err != nil {
		log.Error("start browser", "err", err)
		return err
	}
	defer browser.Close()

	tabID, err := browser.Open(ctx, o.url, o.viewport)
	if err != nil {
		log.Error("open page", "url", o.url, "err", err)
		return err
	}
	vp, err := browser.Viewport(tabID)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Settings: config.NewFileSettings(o.settings),
		Engines: &vision.Engines{
			Dedalus: dedalus.New,
			Gemini:  gemini.New,
			Ollama:  ollama.New,
			Models:  cfg.Models(),
			Timeout: cfg.HTTPTimeout,
		},
		Capture: browser,
		Timeout: cfg.HTTPTimeout,
		Log:     log,
	}
	transport := messaging.NewLocalTransport(messaging.NewRouter(p, log, pipeline.UserMessage))
	client := messaging.NewClient(transport, tabID)

	ctrl := selection.NewController(client, selection.Options{Format: o.format, Intent: o.intent, Log: log})
	ui := newTerminal(os.Stdout, os.Stderr, o.order, o.width, log)
	s, err := ctrl.Start(ui, selection.Viewport{
		Width:  float64(vp.Width),
		Height: float64(vp.Height),
		DPR:    vp.DPR,
	})
	if err != nil {
		return err
	}

	from := selection.Point{X: o.rect.X, Y: o.rect.Y}
	to := selection.Point{X: o.rect.X + o.rect.W, Y: o.rect.Y + o.rect.H}
	s.PointerDown(from)
	s.PointerMove(to)
	s.PointerUp(to)
	if s.State() != selection.Editing {
		s.Cancel()
		err := fmt.Errorf("selection %v is too small or outside the viewport", o.rect)
		log.Error("select", "err", err)
		return err
	}
	if err := s.Confirm(ctx); err != nil {
		return err
	}

	select {
	case <-s.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	_, err = s.Result()
	return err
}

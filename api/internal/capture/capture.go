// Package capture drives headless Chromium tabs whose visible viewport can be
// captured as PNG.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/playwright-community/playwright-go"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 800
)

var (
	ErrNoTab  = errors.New("no such tab")
	ErrClosed = errors.New("browser is closed")
)

type Viewport struct {
	Width  int
	Height int
	// DPR is the device pixel ratio; captured rasters are Width*DPR wide.
	DPR float64
}

func (v Viewport) withDefaults() Viewport {
	if v.Width <= 0 {
		v.Width = DefaultWidth
	}
	if v.Height <= 0 {
		v.Height = DefaultHeight
	}
	if v.DPR <= 0 {
		v.DPR = 1
	}
	return v
}

type Options struct {
	Headless bool
	// Install downloads the browser driver before launch.
	Install bool
	Log     *slog.Logger
}

type tab struct {
	ctx  playwright.BrowserContext
	page playwright.Page
	vp   Viewport
}

// Browser owns one Chromium instance and its tabs. Tab ids start at 1.
type Browser struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	tabs    map[int]*tab
	next    int
	log     *slog.Logger
}

func Start(opts Options) (*Browser, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	runOpts := &playwright.RunOptions{Verbose: false, Stdout: io.Discard, Stderr: io.Discard}
	if opts.Install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	br, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	log.Info("browser started", "headless", opts.Headless)
	return &Browser{pw: pw, browser: br, tabs: map[int]*tab{}, log: log}, nil
}

// Open loads url in a new tab and returns its id.
func (b *Browser) Open(ctx context.Context, url string, vp Viewport) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	vp = vp.withDefaults()

	bctx, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport:          &playwright.Size{Width: vp.Width, Height: vp.Height},
		DeviceScaleFactor: playwright.Float(vp.DPR),
	})
	if err != nil {
		return 0, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return 0, fmt.Errorf("new page: %w", err)
	}
	if url != "" {
		if _, err := page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad}); err != nil {
			_ = bctx.Close()
			return 0, fmt.Errorf("goto %s: %w", url, err)
		}
	}
	b.next++
	id := b.next
	b.tabs[id] = &tab{ctx: bctx, page: page, vp: vp}
	b.log.Debug("tab opened", "tab", id, "url", url, "width", vp.Width, "height", vp.Height, "dpr", vp.DPR)
	return id, nil
}

func (b *Browser) tab(id int) (*tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.tabs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoTab, id)
	}
	return t, nil
}

func (b *Browser) Viewport(id int) (Viewport, error) {
	t, err := b.tab(id)
	if err != nil {
		return Viewport{}, err
	}
	return t.vp, nil
}

// CaptureVisible returns a PNG of the tab's visible viewport.
func (b *Browser) CaptureVisible(ctx context.Context, id int) ([]byte, error) {
	t, err := b.tab(id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.page.Screenshot(playwright.PageScreenshotOptions{
		Type: playwright.ScreenshotTypePng,
	})
}

func (b *Browser) CloseTab(id int) error {
	b.mu.Lock()
	t, ok := b.tabs[id]
	delete(b.tabs, id)
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoTab, id)
	}
	return t.ctx.Close()
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, t := range b.tabs {
		_ = t.ctx.Close()
		delete(b.tabs, id)
	}
	var errs []error
	if b.browser != nil {
		errs = append(errs, b.browser.Close())
		b.browser = nil
	}
	if b.pw != nil {
		errs = append(errs, b.pw.Stop())
		b.pw = nil
	}
	return errors.Join(errs...)
}

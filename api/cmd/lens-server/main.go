package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"lens-capture/api/internal/capture"
	"lens-capture/api/internal/config"
	"lens-capture/api/internal/handle"
	"lens-capture/api/internal/httpserver"
	"lens-capture/api/internal/messaging"
	"lens-capture/api/internal/pipeline"
	"lens-capture/api/internal/store"
	"lens-capture/api/internal/telegram"
	"lens-capture/api/internal/vision"
	"lens-capture/api/internal/vision/dedalus"
	"lens-capture/api/internal/vision/gemini"
	"lens-capture/api/internal/vision/ollama"
)

func main() {
	cfg := config.Load()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("lens-server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	p := &pipeline.Pipeline{
		Settings: config.NewFileSettings(cfg.SettingsPath),
		Engines: &vision.Engines{
			Dedalus: dedalus.New,
			Gemini:  gemini.New,
			Ollama:  ollama.New,
			Models:  cfg.Models(),
			Timeout: cfg.HTTPTimeout,
		},
		Timeout: cfg.HTTPTimeout,
		Log:     log,
	}

	// --- Postgres (optional) ---
	var runs handle.RunLister
	if dsn := resolveDSN(cfg.DatabaseURL); dsn != "" {
		db, err := openDB(ctx, dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		log.Info("db connected", "dsn", safeDSNSummary(dsn))

		repo := store.NewRunRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		p.Records = repo
		runs = repo
		if cfg.RunRetention > 0 {
			go purgeLoop(ctx, repo, cfg.RunRetention, log)
		}
	}

	// --- Browser (optional) ---
	var browser *capture.Browser
	if cfg.Browser {
		b, err := capture.Start(capture.Options{Headless: true, Install: cfg.BrowserInstall, Log: log})
		if err != nil {
			return fmt.Errorf("start browser: %w", err)
		}
		defer b.Close()
		browser = b
		p.Capture = b
	}

	router := messaging.NewRouter(p, log, pipeline.UserMessage)
	h := handle.New(router, runs, log)
	if browser != nil {
		h.WithTabs(browser)
	}
	mux := http.NewServeMux()
	h.Register(mux)

	// --- Telegram (optional) ---
	if token := strings.TrimSpace(cfg.TelegramToken); token != "" {
		bot, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		bot.Debug = false
		client := messaging.NewClient(messaging.NewLocalTransport(router), 0)
		tr := telegram.NewRouter(bot, client, 3*time.Minute, log)

		if hook := strings.TrimSpace(cfg.TelegramWebhookURL); hook != "" {
			if err := startWebhookMode(ctx, mux, bot, tr, hook, log); err != nil {
				return err
			}
		} else {
			go runPolling(ctx, bot, log, func(upd tgbotapi.Update) { tr.HandleUpdate(ctx, upd) })
		}
	}

	return httpserver.Start(ctx, "0.0.0.0:"+cfg.Port, mux, log)
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(1 * time.Hour)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	return db, nil
}

func purgeLoop(ctx context.Context, repo *store.RunRepo, retention time.Duration, log *slog.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		n, err := repo.PurgeOlderThan(ctx, retention)
		if err != nil {
			log.Warn("purge runs", "err", err)
		} else if n > 0 {
			log.Info("purged runs", "count", n, "older_than", retention)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// ---------------- Helpers -----------------

// resolveDSN prefers DATABASE_URL and otherwise builds a DSN from PG* env
// vars. Run history is disabled when neither is set.
func resolveDSN(databaseURL string) string {
	if v := strings.TrimSpace(databaseURL); v != "" {
		return v
	}
	host := strings.TrimSpace(os.Getenv("PGHOST"))
	if host == "" {
		return ""
	}
	user := getenvDefault("POSTGRES_USER", "lens")
	pass := os.Getenv("POSTGRES_PASSWORD")
	port := getenvDefault("PGPORT", "5432")
	db := getenvDefault("POSTGRES_DB", "lens")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getenvDefault(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func safeDSNSummary(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "dsn: parse error"
	}
	user := u.User.Username()
	host := u.Host
	port := ""
	if h, p, err := net.SplitHostPort(u.Host); err == nil {
		host, port = h, p
	}
	db := strings.TrimPrefix(u.Path, "/")
	if port == "" {
		return fmt.Sprintf("host=%s db=%s user=%s", host, db, user)
	}
	return fmt.Sprintf("host=%s port=%s db=%s user=%s", host, port, db, user)
}

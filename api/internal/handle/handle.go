package handle

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"lens-capture/api/internal/capture"
	"lens-capture/api/internal/messaging"
	"lens-capture/api/internal/store"
)

const DefaultRequestTimeout = 180 * time.Second

// RunLister reads recent run history.
type RunLister interface {
	List(ctx context.Context, limit int) ([]store.Run, error)
}

// TabOpener opens a page in the capture browser and returns its tab id.
type TabOpener interface {
	Open(ctx context.Context, url string, vp capture.Viewport) (int, error)
}

type Handle struct {
	router *messaging.Router
	runs   RunLister
	tabs   TabOpener
	log    *slog.Logger
}

// New wires the message router; runs may be nil when history is disabled.
func New(router *messaging.Router, runs RunLister, log *slog.Logger) *Handle {
	if log == nil {
		log = slog.Default()
	}
	return &Handle{router: router, runs: runs, log: log}
}

// WithTabs enables POST /v1/tabs.
func (h *Handle) WithTabs(t TabOpener) *Handle {
	h.tabs = t
	return h
}

func (h *Handle) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/messages", h.Messages)
	mux.HandleFunc("/v1/runs", h.Runs)
	mux.HandleFunc("/v1/tabs", h.Tabs)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func requestTimeout(r *http.Request) time.Duration {
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return DefaultRequestTimeout
}

// Messages answers one envelope with exactly one response. Failures inside
// the pipeline are reported in the body with status 200.
func (h *Handle) Messages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, messaging.Fail("POST only"))
		return
	}
	var env messaging.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeJSON(w, http.StatusBadRequest, messaging.Fail("bad json: "+err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout(r))
	defer cancel()

	start := time.Now()
	resp := h.router.Dispatch(ctx, env)
	h.log.Info("message handled", "type", env.Type, "id", env.ID, "success", resp.Success, "took", time.Since(start).Round(time.Millisecond))
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handle) Runs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "GET only"})
		return
	}
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run history is disabled; set DATABASE_URL"})
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad limit"})
			return
		}
		limit = n
	}
	runs, err := h.runs.List(r.Context(), store.ClampLimit(limit))
	if err != nil {
		h.log.Error("list runs", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

type OpenTabRequest struct {
	URL    string  `json:"url"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	DPR    float64 `json:"dpr"`
}

// Tabs opens a page so that CAPTURE_TAB can address it by the returned id.
func (h *Handle) Tabs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
		return
	}
	if h.tabs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "tab capture is disabled; set LENS_BROWSER=1"})
		return
	}
	var req OpenTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json: " + err.Error()})
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout(r))
	defer cancel()
	id, err := h.tabs.Open(ctx, req.URL, capture.Viewport{Width: req.Width, Height: req.Height, DPR: req.DPR})
	if err != nil {
		h.log.Warn("open tab", "url", req.URL, "err", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"tabId": id})
}

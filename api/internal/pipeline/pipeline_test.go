package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lens-capture/api/internal/backend"
	"lens-capture/api/internal/config"
	"lens-capture/api/internal/messaging"
	"lens-capture/api/internal/store"
	"lens-capture/api/internal/vision"
)

type fakeDescriber struct {
	description string
	phrase      string
	err         error
	images      atomic.Int32
}

func (f *fakeDescriber) Name() string  { return "dedalus" }
func (f *fakeDescriber) Model() string { return "google/gemini-2.0-flash" }
func (f *fakeDescriber) DescribeImage(context.Context, vision.Image) (string, error) {
	f.images.Add(1)
	return f.description, f.err
}
func (f *fakeDescriber) DescribeText(context.Context, string) (string, error) {
	return f.phrase, nil
}

type fakeCapturer struct {
	png []byte
	err error
}

func (f fakeCapturer) CaptureVisible(context.Context, int) ([]byte, error) { return f.png, f.err }

type fakeRecorder struct {
	mu   sync.Mutex
	runs []store.Run
	err  error
}

func (f *fakeRecorder) Insert(_ context.Context, run store.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return f.err
}

func newPipeline(pc config.ProviderConfig, d *fakeDescriber) *Pipeline {
	factory := func(string, string, time.Duration) vision.Describer { return d }
	return &Pipeline{
		Settings: config.Static(pc),
		Engines:  &vision.Engines{Dedalus: factory, Gemini: factory, Ollama: factory},
		Timeout:  time.Second,
	}
}

var imageB64 = base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\nfake"))

func TestAnalyzeWithoutOptionalServices(t *testing.T) {
	d := &fakeDescriber{description: "A white ceramic mug.", phrase: `{"search_query":"white ceramic mug"}`}
	p := newPipeline(config.ProviderConfig{DedalusAPIKey: "k"}, d)

	res, err := p.AnalyzeAndSend(context.Background(), messaging.AnalyzeRequest{CroppedBase64: imageB64, MIMEType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "A white ceramic mug.", res.Description)
	assert.False(t, res.SentToWebhook)
	assert.Nil(t, res.WebhookError)
	require.Len(t, res.SimilarProducts, 1)
	assert.True(t, res.SimilarProducts[0].Fallback)
	assert.Equal(t, "white ceramic mug", res.SimilarProducts[0].SearchQuery)
	assert.Equal(t, int32(1), d.images.Load())
}

func TestAnalyzeUnusablePhraseStillSucceeds(t *testing.T) {
	d := &fakeDescriber{description: "A lamp.", phrase: `{"search_query":""}`}
	res, err := newPipeline(config.ProviderConfig{DedalusAPIKey: "k"}, d).
		AnalyzeAndSend(context.Background(), messaging.AnalyzeRequest{CroppedBase64: imageB64})
	require.NoError(t, err)
	assert.Equal(t, "A lamp.", res.Description)
	assert.NotNil(t, res.SimilarProducts)
	assert.Empty(t, res.SimilarProducts)
}

func TestAnalyzeNonProductIntentSkipsResolver(t *testing.T) {
	d := &fakeDescriber{description: "A sunset.", phrase: `{"search_query":"sunset"}`}
	res, err := newPipeline(config.ProviderConfig{DedalusAPIKey: "k"}, d).
		AnalyzeAndSend(context.Background(), messaging.AnalyzeRequest{CroppedBase64: imageB64, Intent: "describe"})
	require.NoError(t, err)
	assert.Empty(t, res.SimilarProducts)
}

func TestAnalyzeWebhookOutcomes(t *testing.T) {
	tests := []struct {
		status int
		sent   bool
		hint   string
	}{
		{http.StatusOK, true, ""},
		{http.StatusNotFound, false, "URL or path not found"},
		{http.StatusInternalServerError, false, "Server error"},
	}
	for _, tt := range tests {
		var gotKey string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotKey = r.Header.Get("X-API-Key")
			w.WriteHeader(tt.status)
		}))
		d := &fakeDescriber{description: "A mug.", phrase: "mug"}
		p := newPipeline(config.ProviderConfig{DedalusAPIKey: "k", WebhookURL: srv.URL, WebhookAPIKey: "wk"}, d)

		res, err := p.AnalyzeAndSend(context.Background(), messaging.AnalyzeRequest{CroppedBase64: imageB64, MIMEType: "image/png"})
		srv.Close()

		require.NoError(t, err, "status %d", tt.status)
		assert.Equal(t, "A mug.", res.Description)
		assert.Equal(t, tt.sent, res.SentToWebhook)
		assert.Equal(t, "wk", gotKey)
		if tt.hint == "" {
			assert.Nil(t, res.WebhookError)
		} else {
			require.NotNil(t, res.WebhookError)
			assert.Contains(t, *res.WebhookError, tt.hint)
		}
		assert.Len(t, res.SimilarProducts, 1)
	}
}

func TestAnalyzeMissingCredentialsMakesNoCalls(t *testing.T) {
	d := &fakeDescriber{description: "x"}
	_, err := newPipeline(config.ProviderConfig{VisionProvider: "gemini"}, d).
		AnalyzeAndSend(context.Background(), messaging.AnalyzeRequest{CroppedBase64: imageB64})
	assert.Equal(t, vision.MissingCredentials, vision.KindOf(err))
	assert.Equal(t, int32(0), d.images.Load())
	assert.Equal(t, "Gemini API key is not set. Add it to your settings or set a backend URL.", UserMessage(err))
}

func TestAnalyzeVisionFailureIsFatal(t *testing.T) {
	d := &fakeDescriber{err: vision.FromStatus("dedalus", http.StatusUnauthorized, "bad key")}
	rec := &fakeRecorder{}
	p := newPipeline(config.ProviderConfig{DedalusAPIKey: "k"}, d)
	p.Records = rec

	_, err := p.AnalyzeAndSend(context.Background(), messaging.AnalyzeRequest{CroppedBase64: imageB64})
	assert.Equal(t, vision.InvalidCredentials, vision.KindOf(err))
	assert.Equal(t, "Invalid API key. Check your key in settings.", UserMessage(err))
	assert.Empty(t, rec.runs)
}

func TestAnalyzeRequiresImage(t *testing.T) {
	_, err := newPipeline(config.ProviderConfig{DedalusAPIKey: "k"}, &fakeDescriber{}).
		AnalyzeAndSend(context.Background(), messaging.AnalyzeRequest{})
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestAnalyzeReverseImageSearch(t *testing.T) {
	host := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":{"url":"https://i.ibb.co/sel.png"}}`)
	}))
	defer host.Close()
	var kinds []string
	var mu sync.Mutex
	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		kinds = append(kinds, r.URL.Query().Get("type"))
		mu.Unlock()
		assert.Equal(t, "https://i.ibb.co/sel.png", r.URL.Query().Get("url"))
		if r.URL.Query().Get("type") == "products" {
			_, _ = io.WriteString(w, `{"visual_matches":[]}`)
			return
		}
		_, _ = io.WriteString(w, `{"visual_matches":[
			{"title":"Mug $30","link":"https://a"},
			{"title":"Cup","link":"https://b"},
			{"title":"Mug $10","link":"https://c"}
		]}`)
	}))
	defer search.Close()

	d := &fakeDescriber{description: "A mug.", phrase: "unused"}
	p := newPipeline(config.ProviderConfig{DedalusAPIKey: "k", ImageHostKey: "h", ImageSearchKey: "s"}, d)
	p.ImageHostURL = host.URL
	p.ImageSearchURL = search.URL

	res, err := p.AnalyzeAndSend(context.Background(), messaging.AnalyzeRequest{CroppedBase64: imageB64, MIMEType: "image/png"})
	require.NoError(t, err)
	require.Len(t, res.SimilarProducts, 3)
	for _, pr := range res.SimilarProducts {
		assert.False(t, pr.Fallback)
		assert.NoError(t, pr.Validate())
	}
	assert.Equal(t, []string{"products", "visual_matches"}, kinds)
}

func TestAnalyzeRecordsRun(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("db down")}
	d := &fakeDescriber{description: "A mug.", phrase: "mug"}
	p := newPipeline(config.ProviderConfig{DedalusAPIKey: "k"}, d)
	p.Records = rec

	_, err := p.AnalyzeAndSend(context.Background(), messaging.AnalyzeRequest{CroppedBase64: imageB64})
	require.NoError(t, err)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, "dedalus", rec.runs[0].Provider)
	assert.Equal(t, "A mug.", rec.runs[0].Description)
	assert.Len(t, rec.runs[0].ImageHash, 64)
	assert.JSONEq(t, `[{"name":"Search similar products","search_query":"mug","fallback":true}]`, string(rec.runs[0].Products))
}

func TestAnalyzeDelegatesToBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, "Bearer t", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"description":"From backend.","similarProducts":[]}`)
	}))
	defer srv.Close()

	d := &fakeDescriber{description: "local"}
	p := newPipeline(config.ProviderConfig{BackendURL: srv.URL, BackendToken: "t"}, d)
	res, err := p.AnalyzeAndSend(context.Background(), messaging.AnalyzeRequest{CroppedBase64: imageB64})
	require.NoError(t, err)
	assert.Equal(t, "From backend.", res.Description)
	assert.Equal(t, int32(0), d.images.Load())
}

func TestCaptureTab(t *testing.T) {
	p := newPipeline(config.ProviderConfig{}, &fakeDescriber{})

	_, err := p.CaptureTab(context.Background(), 1)
	assert.ErrorIs(t, err, ErrCaptureFailed)

	p.Capture = fakeCapturer{png: []byte("png-bytes")}
	_, err = p.CaptureTab(context.Background(), 0)
	assert.ErrorIs(t, err, ErrCaptureFailed)
	assert.Contains(t, err.Error(), "No tab id")

	res, err := p.CaptureTab(context.Background(), 4)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.DataURL, "data:image/png;base64,"))

	p.Capture = fakeCapturer{err: errors.New("tab gone")}
	_, err = p.CaptureTab(context.Background(), 4)
	assert.ErrorContains(t, err, "Screenshot failed: tab gone")
}

func TestSaveItemWithoutBackendThroughRouter(t *testing.T) {
	p := newPipeline(config.ProviderConfig{}, &fakeDescriber{})
	_, err := p.SaveItem(context.Background(), messaging.SaveItemRequest{Title: "Mug"})
	assert.ErrorIs(t, err, backend.ErrNoBackend)

	c := messaging.NewClient(messaging.NewLocalTransport(messaging.NewRouter(p, nil, UserMessage)), 1)
	_, err = c.SaveItem(context.Background(), messaging.SaveItemRequest{Title: "Mug"})
	var re *messaging.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "Backend URL is not set")
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, "Network error. Check your connection.", UserMessage(vision.Network("gemini", errors.New("dial"))))
	assert.Contains(t, UserMessage(vision.FromStatus("gemini", 429, "quota exceeded")), "quota exceeded")
	assert.Equal(t, "plain", UserMessage(errors.New("plain")))
}

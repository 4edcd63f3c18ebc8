package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lens-capture/api/internal/products"
)

type fakeService struct {
	captures atomic.Int32
	analyzed AnalyzeRequest
	err      error
	panicOn  Type
}

func (f *fakeService) CaptureTab(_ context.Context, tabID int) (CaptureResult, error) {
	f.captures.Add(1)
	if f.panicOn == CaptureTab {
		panic("boom")
	}
	if f.err != nil {
		return CaptureResult{}, f.err
	}
	if tabID == 0 {
		return CaptureResult{}, errors.New("No tab id")
	}
	return CaptureResult{DataURL: "data:image/png;base64,AAAA"}, nil
}

func (f *fakeService) AnalyzeAndSend(_ context.Context, req AnalyzeRequest) (AnalyzeResult, error) {
	f.analyzed = req
	if f.err != nil {
		return AnalyzeResult{}, f.err
	}
	return AnalyzeResult{
		Description:     "A mug.",
		SimilarProducts: []products.Product{products.NewFallback("mug")},
	}, nil
}

func (f *fakeService) SaveItem(_ context.Context, req SaveItemRequest) (map[string]any, error) {
	return map[string]any{"id": "should-not-leak", "item_id": "42", "title": req.Title}, nil
}

func TestRouterAnswersUnknownType(t *testing.T) {
	r := NewRouter(&fakeService{}, nil, nil)
	resp := r.Dispatch(context.Background(), Envelope{ID: "1", Type: "NOPE"})
	assert.False(t, resp.Success)
	assert.Equal(t, UnknownType, resp.Error)
	assert.Equal(t, "1", resp.ID)
}

func TestRouterRecoversPanic(t *testing.T) {
	r := NewRouter(&fakeService{panicOn: CaptureTab}, nil, nil)
	resp := r.Dispatch(context.Background(), Envelope{ID: "p", Type: CaptureTab, TabID: 1})
	assert.False(t, resp.Success)
	assert.Equal(t, "p", resp.ID)
}

func TestRouterErrorText(t *testing.T) {
	r := NewRouter(&fakeService{err: errors.New("raw")}, nil, func(error) string { return "friendly" })
	resp := r.Dispatch(context.Background(), Envelope{ID: "2", Type: CaptureTab, TabID: 3})
	assert.Equal(t, "friendly", resp.Error)
}

func TestRouterBadPayload(t *testing.T) {
	r := NewRouter(&fakeService{}, nil, nil)
	resp := r.Dispatch(context.Background(), Envelope{ID: "3", Type: AnalyzeAndSend, Payload: json.RawMessage(`[1,2]`)})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "invalid ANALYZE_AND_SEND payload")
}

func TestResponseJSONIsFlat(t *testing.T) {
	resp, err := OK(CaptureResult{DataURL: "data:x"})
	require.NoError(t, err)
	resp.ID = "abc"

	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc","success":true,"dataUrl":"data:x"}`, string(b))

	b, err = json.Marshal(Fail("nope"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"nope"}`, string(b))

	var back Response
	require.NoError(t, json.Unmarshal([]byte(`{"success":true,"description":"d","webhookError":null,"similarProducts":[],"sentToWebhook":false}`), &back))
	assert.True(t, back.Success)
	var ar AnalyzeResult
	require.NoError(t, back.Decode(&ar))
	assert.Equal(t, "d", ar.Description)
	assert.Nil(t, ar.WebhookError)
}

func TestLocalTransportRoundTrip(t *testing.T) {
	svc := &fakeService{}
	c := NewClient(NewLocalTransport(NewRouter(svc, nil, nil)), 7)

	dataURL, err := c.CaptureTab(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AAAA", dataURL)

	res, err := c.AnalyzeAndSend(context.Background(), AnalyzeRequest{CroppedBase64: "AAAA", MIMEType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "A mug.", res.Description)
	require.Len(t, res.SimilarProducts, 1)
	assert.True(t, res.SimilarProducts[0].Fallback)
	assert.Equal(t, "AAAA", svc.analyzed.CroppedBase64)

	saved, err := c.SaveItem(context.Background(), SaveItemRequest{Title: "Mug"})
	require.NoError(t, err)
	assert.Equal(t, "42", saved["item_id"])
	assert.Equal(t, "Mug", saved["title"])
	_, leaked := saved["id"]
	assert.False(t, leaked)
}

func TestLocalTransportUnreachable(t *testing.T) {
	tr := NewLocalTransport(nil)
	c := NewClient(tr, 1)

	start := time.Now()
	_, err := c.CaptureTab(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Less(t, time.Since(start), time.Second)

	tr.Attach(NewRouter(&fakeService{}, nil, nil))
	_, err = c.CaptureTab(context.Background())
	assert.NoError(t, err)

	tr.Detach()
	_, err = c.CaptureTab(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestRemoteError(t *testing.T) {
	c := NewClient(NewLocalTransport(NewRouter(&fakeService{}, nil, nil)), 0)
	_, err := c.CaptureTab(context.Background())
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "No tab id", re.Message)
	assert.Equal(t, CaptureTab, re.Type)
}

func TestHTTPTransport(t *testing.T) {
	router := NewRouter(&fakeService{}, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		var env Envelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		_ = json.NewEncoder(w).Encode(router.Dispatch(r.Context(), env))
	}))
	defer srv.Close()

	c := NewClient(NewHTTPTransport(srv.URL, time.Second), 5)
	dataURL, err := c.CaptureTab(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,AAAA", dataURL)
}

func TestHTTPTransportUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u := srv.URL
	srv.Close()

	_, err := NewClient(NewHTTPTransport(u, time.Second), 1).CaptureTab(context.Background())
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestEnvelopeIDsAreUnique(t *testing.T) {
	a, err := NewEnvelope(CaptureTab, 1, nil)
	require.NoError(t, err)
	b, err := NewEnvelope(CaptureTab, 1, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Empty(t, a.Payload)
}

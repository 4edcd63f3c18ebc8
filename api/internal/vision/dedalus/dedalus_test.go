package dedalus

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lens-capture/api/internal/vision"
)

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "google/gemini-2.0-flash",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func TestDescribeImageSendsPromptAndImage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion("A white ceramic mug on a desk."))
	}))
	defer srv.Close()

	e := NewWithBaseURL("key-1", "google/gemini-2.0-flash", srv.URL+"/", time.Second)
	out, err := e.DescribeImage(context.Background(), vision.Image{Data: []byte{0x89, 'P', 'N', 'G'}, MIME: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "A white ceramic mug on a desk.", out)

	assert.Equal(t, "google/gemini-2.0-flash", got["model"])
	assert.EqualValues(t, 300, got["max_tokens"])
	raw, _ := json.Marshal(got["messages"])
	assert.Contains(t, string(raw), "Identify and briefly describe")
	assert.Contains(t, string(raw), "data:image/png;base64,")
	assert.Contains(t, string(raw), `"detail":"low"`)
}

func TestDescribeTextUsesLargerBudget(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion(`{"search_query":"mug"}`))
	}))
	defer srv.Close()

	out, err := NewWithBaseURL("k", "m", srv.URL+"/", time.Second).DescribeText(context.Background(), "find")
	require.NoError(t, err)
	assert.Equal(t, `{"search_query":"mug"}`, out)
	assert.EqualValues(t, 500, got["max_tokens"])
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   vision.Kind
	}{
		{http.StatusUnauthorized, vision.InvalidCredentials},
		{http.StatusForbidden, vision.RateLimitedOrForbidden},
		{http.StatusTooManyRequests, vision.RateLimitedOrForbidden},
		{http.StatusInternalServerError, vision.UpstreamError},
	}
	for _, tt := range tests {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"x"}}`)
		}))

		_, err := NewWithBaseURL("k", "m", srv.URL+"/", time.Second).DescribeImage(context.Background(), vision.Image{Data: []byte("x")})
		srv.Close()

		assert.Equal(t, tt.want, vision.KindOf(err), "status %d", tt.status)
		assert.Equal(t, 1, calls, "no retries for status %d", tt.status)
	}
}

func TestUpstreamErrorKeepsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"error":{"message":"","type":"upstream_down"}}`)
	}))
	defer srv.Close()

	_, err := NewWithBaseURL("k", "m", srv.URL+"/", time.Second).DescribeImage(context.Background(), vision.Image{Data: []byte("x")})
	var verr *vision.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, vision.UpstreamError, verr.Kind)
	assert.Equal(t, http.StatusBadGateway, verr.Status)
	assert.Contains(t, verr.Message, "upstream_down")
}

func TestEmptyChoicesIsInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewWithBaseURL("k", "m", srv.URL+"/", time.Second).DescribeText(context.Background(), "p")
	assert.Equal(t, vision.InvalidUpstreamResponse, vision.KindOf(err))
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/"
	srv.Close()

	_, err := NewWithBaseURL("k", "m", url, time.Second).DescribeText(context.Background(), "p")
	assert.Equal(t, vision.NetworkError, vision.KindOf(err))
}

func TestMissingKey(t *testing.T) {
	_, err := NewWithBaseURL("", "m", "http://unused/", time.Second).DescribeText(context.Background(), "p")
	assert.Equal(t, vision.MissingCredentials, vision.KindOf(err))
}

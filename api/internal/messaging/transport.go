package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Transport carries one envelope to the privileged side and returns its
// response. Send fails with ErrUnreachable when nothing is listening.
type Transport interface {
	Send(ctx context.Context, env Envelope) (Response, error)
}

// LocalTransport delivers envelopes to an in-process Router on a separate
// goroutine.
type LocalTransport struct {
	mu     sync.RWMutex
	router *Router
}

func NewLocalTransport(r *Router) *LocalTransport {
	return &LocalTransport{router: r}
}

func (t *LocalTransport) Attach(r *Router) {
	t.mu.Lock()
	t.router = r
	t.mu.Unlock()
}

func (t *LocalTransport) Detach() { t.Attach(nil) }

func (t *LocalTransport) Send(ctx context.Context, env Envelope) (Response, error) {
	t.mu.RLock()
	r := t.router
	t.mu.RUnlock()
	if r == nil {
		return Response{}, ErrUnreachable
	}

	ch := make(chan Response, 1)
	go func() { ch <- r.Dispatch(ctx, env) }()
	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// HTTPTransport posts envelopes to a lens-server.
type HTTPTransport struct {
	BaseURL string
	httpc   *http.Client
}

// NewHTTPTransport uses timeout for the whole round trip; a run includes
// the vision call and product search, so it should be generous.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &HTTPTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTransport) Send(ctx context.Context, env Envelope) (Response, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		return Response{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		if resp.StatusCode == http.StatusNotFound {
			return Response{}, fmt.Errorf("%w: no message endpoint at %s", ErrUnreachable, t.BaseURL)
		}
		return Response{}, fmt.Errorf("messages %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return out, nil
}

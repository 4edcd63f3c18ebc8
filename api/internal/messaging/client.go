package messaging

import (
	"context"
	"fmt"
)

// Client is the page-side sender with one typed method per message.
type Client struct {
	Transport Transport
	TabID     int
}

func NewClient(t Transport, tabID int) *Client {
	return &Client{Transport: t, TabID: tabID}
}

func (c *Client) call(ctx context.Context, t Type, payload, out any) error {
	if c.Transport == nil {
		return ErrUnreachable
	}
	env, err := NewEnvelope(t, c.TabID, payload)
	if err != nil {
		return err
	}
	resp, err := c.Transport.Send(ctx, env)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &RemoteError{Type: t, Message: resp.Error}
	}
	if out != nil {
		if err := resp.Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", t, err)
		}
	}
	return nil
}

// CaptureTab returns the full-viewport data URL of the caller's tab.
func (c *Client) CaptureTab(ctx context.Context) (string, error) {
	var out CaptureResult
	if err := c.call(ctx, CaptureTab, nil, &out); err != nil {
		return "", err
	}
	return out.DataURL, nil
}

func (c *Client) AnalyzeAndSend(ctx context.Context, req AnalyzeRequest) (AnalyzeResult, error) {
	var out AnalyzeResult
	err := c.call(ctx, AnalyzeAndSend, req, &out)
	return out, err
}

func (c *Client) SaveItem(ctx context.Context, req SaveItemRequest) (map[string]any, error) {
	out := map[string]any{}
	if err := c.call(ctx, SaveItem, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

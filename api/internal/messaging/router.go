package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

const UnknownType = "unknown message type"

// Service is the privileged side of the protocol.
type Service interface {
	CaptureTab(ctx context.Context, tabID int) (CaptureResult, error)
	AnalyzeAndSend(ctx context.Context, req AnalyzeRequest) (AnalyzeResult, error)
	SaveItem(ctx context.Context, req SaveItemRequest) (map[string]any, error)
}

// Router dispatches envelopes to a Service and answers each exactly once.
type Router struct {
	Service Service
	Log     *slog.Logger
	// ErrorText turns a failure into the message returned to the page.
	ErrorText func(error) string
}

func NewRouter(svc Service, log *slog.Logger, errText func(error) string) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{Service: svc, Log: log, ErrorText: errText}
}

func (r *Router) errText(err error) string {
	if r.ErrorText != nil {
		return r.ErrorText(err)
	}
	return err.Error()
}

func (r *Router) Dispatch(ctx context.Context, env Envelope) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			r.Log.Error("dispatch panic", "type", env.Type, "id", env.ID, "panic", p)
			resp = Fail(fmt.Sprintf("internal error handling %s", env.Type))
		}
		resp.ID = env.ID
	}()

	var (
		out any
		err error
	)
	switch env.Type {
	case CaptureTab:
		out, err = r.Service.CaptureTab(ctx, env.TabID)
	case AnalyzeAndSend:
		var req AnalyzeRequest
		if err := decodePayload(env, &req); err != nil {
			return Fail(err.Error())
		}
		out, err = r.Service.AnalyzeAndSend(ctx, req)
	case SaveItem:
		var req SaveItemRequest
		if err := decodePayload(env, &req); err != nil {
			return Fail(err.Error())
		}
		out, err = r.Service.SaveItem(ctx, req)
	default:
		r.Log.Warn("unknown message type", "type", env.Type, "id", env.ID)
		return Fail(UnknownType)
	}
	if err != nil {
		r.Log.Info("message failed", "type", env.Type, "id", env.ID, "err", err)
		return Fail(r.errText(err))
	}
	resp, err = OK(out)
	if err != nil {
		return Fail(err.Error())
	}
	return resp
}

func decodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return nil
}

package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	ModeHTTP = "http"
	ModeWS   = "ws"
	ModeAuto = "auto"
	ModeLog  = "log"
)

// NewDispatcher picks a transport by mode. Auto prefers the websocket when it
// is connected and falls back to HTTP once on failure.
func NewDispatcher(mode string, c *Client, s *Stream, logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch mode {
	case ModeWS:
		return &wsDispatcher{s: s}
	case ModeAuto:
		return &autoDispatcher{ws: &wsDispatcher{s: s}, http: &httpDispatcher{c: c}, logger: logger}
	case ModeLog:
		return &LogDispatcher{Logger: logger}
	default:
		return &httpDispatcher{c: c}
	}
}

type httpDispatcher struct{ c *Client }

func (h *httpDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if h == nil || h.c == nil {
		return errors.New("http dispatcher not available")
	}
	return h.c.Push(ctx, msg)
}

type wsDispatcher struct{ s *Stream }

func (w *wsDispatcher) connected() bool {
	return w != nil && w.s != nil && w.s.State() == StateConnected
}

func (w *wsDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if w == nil || w.s == nil {
		return errors.New("ws dispatcher not available")
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return w.s.Send(ctx, msg)
}

type autoDispatcher struct {
	ws     *wsDispatcher
	http   *httpDispatcher
	logger *zap.Logger
}

func (a *autoDispatcher) Dispatch(ctx context.Context, msg Message) error {
	if a.ws.connected() {
		err := a.ws.Dispatch(ctx, msg)
		if err == nil {
			return nil
		}
		a.logger.Warn("dispatch_fallback", zap.String("type", string(msg.Type)), zap.String("target", msg.TargetPlayerID), zap.Error(err))
	}
	return a.http.Dispatch(ctx, msg)
}

// LogDispatcher only logs. Used when no gateway is configured.
type LogDispatcher struct {
	Logger *zap.Logger
}

func (l *LogDispatcher) Dispatch(_ context.Context, msg Message) error {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notify_dryrun",
		zap.String("id", msg.ID),
		zap.String("type", string(msg.Type)),
		zap.String("target", msg.TargetPlayerID),
		zap.String("title", msg.Title),
	)
	return nil
}

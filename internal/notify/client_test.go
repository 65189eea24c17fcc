package notify

import (
	"context"
	"encoding/json"
	"net"
	"sync/atomic"
	"testing"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func gateway(t *testing.T, h fasthttp.RequestHandler) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: h}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	return NewClient("http://gateway",
		WithDial(func(string) (net.Conn, error) { return ln.Dial() }),
		WithHeaderProvider(BearerToken("tok")),
	)
}

func TestPushRetriesServerErrors(t *testing.T) {
	var calls int32
	got := make(chan Message, 1)
	c := gateway(t, func(ctx *fasthttp.RequestCtx) {
		n := atomic.AddInt32(&calls, 1)
		if string(ctx.Path()) != "/push" || string(ctx.Request.Header.Peek("Authorization")) != "Bearer tok" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			return
		}
		if n == 1 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		var m Message
		if err := json.Unmarshal(ctx.PostBody(), &m); err != nil {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		got <- m
	})

	if err := c.Push(context.Background(), Message{ID: "m1", TargetPlayerID: "u1", Type: "your_turn", Title: "t"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
	m := <-got
	if m.ID != "m1" || m.TargetPlayerID != "u1" || m.Title != "t" {
		t.Fatalf("gateway got %+v", m)
	}
}

func TestPushDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := gateway(t, func(ctx *fasthttp.RequestCtx) {
		atomic.AddInt32(&calls, 1)
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString("bad target")
	})
	if err := c.Push(context.Background(), Message{ID: "m1"}); err == nil {
		t.Fatalf("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestHealth(t *testing.T) {
	c := gateway(t, func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/health" {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"status":"ok","version":"1.2.0"}`)
	})
	st, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if st.Status != "ok" || st.Version != "1.2.0" {
		t.Fatalf("status = %+v", st)
	}
}

func TestBackoffDuration(t *testing.T) {
	if backoffDuration(1) != 100_000_000 || backoffDuration(3) != 400_000_000 {
		t.Fatalf("unexpected backoff steps")
	}
	if backoffDuration(10) != backoffDuration(6) {
		t.Fatalf("backoff not capped")
	}
}

package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/skate-duel/internal/identity"
	"github.com/park285/skate-duel/internal/msgcat"
	"github.com/park285/skate-duel/internal/obslog"
	"github.com/park285/skate-duel/internal/skate"
	"go.uber.org/zap"
)

const DefaultPlaceholderName = "Skater"

// Outbox turns committed intents into messages and hands them to a
// Dispatcher in the background. It implements skate.Publisher.
type Outbox struct {
	d           Dispatcher
	cat         *msgcat.Catalog
	names       identity.Directory
	placeholder string
	timeout     time.Duration
	now         func() time.Time

	sem chan struct{}
	wg  sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

var _ skate.Publisher = (*Outbox)(nil)

type OutboxOption func(*Outbox)

func WithCatalog(c *msgcat.Catalog) OutboxOption { return func(o *Outbox) { o.cat = c } }

func WithDirectory(d identity.Directory) OutboxOption { return func(o *Outbox) { o.names = d } }

func WithPlaceholderName(name string) OutboxOption {
	return func(o *Outbox) {
		if strings.TrimSpace(name) != "" {
			o.placeholder = strings.TrimSpace(name)
		}
	}
}

// WithDispatchTimeout bounds each Dispatch call.
func WithDispatchTimeout(d time.Duration) OutboxOption {
	return func(o *Outbox) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithConcurrency caps in-flight dispatches.
func WithConcurrency(n int) OutboxOption {
	return func(o *Outbox) {
		if n > 0 {
			o.sem = make(chan struct{}, n)
		}
	}
}

func NewOutbox(d Dispatcher, opts ...OutboxOption) *Outbox {
	o := &Outbox{
		d:           d,
		placeholder: DefaultPlaceholderName,
		timeout:     5 * time.Second,
		now:         time.Now,
		sem:         make(chan struct{}, 16),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.d == nil {
		o.d = &LogDispatcher{Logger: obslog.L()}
	}
	return o
}

// Publish returns immediately. Delivery outlives ctx cancellation but keeps
// its values.
func (o *Outbox) Publish(ctx context.Context, intents []skate.Intent) {
	if len(intents) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		obslog.L().Warn("notify_outbox_closed", zap.Int("dropped", len(intents)))
		return
	}
	base := context.WithoutCancel(ctx)
	for _, in := range intents {
		o.wg.Add(1)
		go o.deliver(base, in)
	}
}

func (o *Outbox) deliver(ctx context.Context, in skate.Intent) {
	defer o.wg.Done()
	o.sem <- struct{}{}
	defer func() { <-o.sem }()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	msg := o.Build(ctx, in)
	if err := o.d.Dispatch(ctx, msg); err != nil {
		obslog.L().Warn("notify_dispatch_error",
			zap.String("id", msg.ID),
			zap.String("type", string(msg.Type)),
			zap.String("target", msg.TargetPlayerID),
			zap.Error(err),
		)
		return
	}
	obslog.L().Debug("notify_dispatched",
		zap.String("id", msg.ID),
		zap.String("type", string(msg.Type)),
		zap.String("target", msg.TargetPlayerID),
	)
}

// Build renders an intent. The opponent name comes from the directory, then
// the name carried by the intent, then the placeholder.
func (o *Outbox) Build(ctx context.Context, in skate.Intent) Message {
	data := make(map[string]any, len(in.Data)+1)
	for k, v := range in.Data {
		data[k] = v
	}
	fallback := o.placeholder
	if carried, ok := data[skate.KeyOpponentName].(string); ok && strings.TrimSpace(carried) != "" {
		fallback = carried
	}
	oppID, _ := data[skate.KeyOpponentID].(string)
	data[skate.KeyOpponentName] = identity.Resolve(ctx, o.names, oppID, fallback)

	msg := Message{
		ID:             uuid.NewString(),
		TargetPlayerID: in.TargetPlayerID,
		Type:           in.Type,
		Data:           data,
		CreatedAt:      o.now().UTC(),
	}
	msg.Title = o.render(in.Type, "title", data)
	msg.Body = o.render(in.Type, "body", data)
	return msg
}

func (o *Outbox) render(t skate.IntentType, field string, data map[string]any) string {
	if o.cat == nil {
		return string(t)
	}
	key := fmt.Sprintf("notify.%s.%s", t, field)
	out, err := o.cat.Render(key, data)
	if err != nil {
		obslog.L().Warn("notify_render_error", zap.String("key", key), zap.Error(err))
		return string(t)
	}
	return out
}

// Wait blocks until in-flight dispatches finish or ctx ends.
func (o *Outbox) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting intents and drains the in-flight ones.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	return o.Wait(ctx)
}

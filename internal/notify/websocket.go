package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// ErrNotConnected is returned by Send while the stream is down.
var ErrNotConnected = errors.New("notify: websocket not connected")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// Ack is what the gateway sends back for each pushed message.
type Ack struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type (
	AckCallback   func(Ack)
	StateCallback func(State)
)

// Stream keeps a websocket open to the push gateway, reconnecting with
// backoff. Writes are serialized.
type Stream struct {
	wsURL string

	conn   *websocket.Conn
	state  State
	stateM sync.RWMutex
	writeM sync.Mutex

	ackCbs   []AckCallback
	stateCbs []StateCallback
	cbM      sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headerProvider HeaderProvider
}

func NewStream(wsURL string, maxReconnectAttempts int) *Stream {
	return &Stream{
		wsURL:                wsURL,
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

// SetHeaderProvider injects headers into the handshake.
func (s *Stream) SetHeaderProvider(h HeaderProvider) { s.headerProvider = h }

func (s *Stream) Connect(ctx context.Context) error {
	s.stateM.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.stateM.Unlock()
		return nil
	}
	s.stateM.Unlock()

	if s.rootCtx == nil {
		s.rootCtx, s.rootCancel = context.WithCancel(context.Background())
	}
	s.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := s.dial(dialCtx)
	if err != nil {
		s.setState(StateFailed)
		s.scheduleReconnect()
		return err
	}
	s.attach(conn)
	return nil
}

func (s *Stream) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, s.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      s.buildHeaders(),
	})
	return conn, err
}

func (s *Stream) attach(conn *websocket.Conn) {
	s.stateM.Lock()
	s.conn = conn
	s.stateM.Unlock()
	s.setState(StateConnected)

	s.wg.Add(2)
	go s.listen(conn)
	go s.pingLoop(conn)
}

func (s *Stream) current() *websocket.Conn {
	s.stateM.RLock()
	defer s.stateM.RUnlock()
	if s.state != StateConnected {
		return nil
	}
	return s.conn
}

// State reports the current connection state.
func (s *Stream) State() State {
	s.stateM.RLock()
	defer s.stateM.RUnlock()
	return s.state
}

// Send writes one message as JSON.
func (s *Stream) Send(ctx context.Context, msg Message) error {
	conn := s.current()
	if conn == nil {
		return ErrNotConnected
	}
	s.writeM.Lock()
	defer s.writeM.Unlock()
	return wsjson.Write(ctx, conn, msg)
}

func (s *Stream) listen(conn *websocket.Conn) {
	defer s.wg.Done()
	for {
		var ack Ack
		if err := wsjson.Read(s.rootCtx, conn, &ack); err != nil {
			if s.isStopping() {
				return
			}
			s.drop(conn, "reconnect")
			return
		}

		s.cbM.RLock()
		callbacks := append([]AckCallback(nil), s.ackCbs...)
		s.cbM.RUnlock()
		for _, cb := range callbacks {
			cb(ack)
		}
	}
}

func (s *Stream) pingLoop(conn *websocket.Conn) {
	defer s.wg.Done()
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			if s.current() != conn {
				return
			}
			ctx, cancel := context.WithTimeout(s.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				if !s.isStopping() {
					s.drop(conn, "ping failure")
				}
				return
			}
		}
	}
}

// drop closes conn if it is still the active one and starts reconnecting.
func (s *Stream) drop(conn *websocket.Conn, reason string) {
	s.stateM.Lock()
	if s.conn != conn {
		s.stateM.Unlock()
		return
	}
	s.conn = nil
	s.stateM.Unlock()
	_ = conn.Close(websocket.StatusGoingAway, reason)
	s.setState(StateDisconnected)
	s.scheduleReconnect()
}

func (s *Stream) scheduleReconnect() {
	if s.maxReconnectAttempts <= 0 || s.isStopping() {
		return
	}
	s.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= s.maxReconnectAttempts; attempt++ {
			select {
			case <-s.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(s.rootCtx, 10*time.Second)
			conn, err := s.dial(dialCtx)
			cancel()
			if err != nil {
				continue
			}
			if s.isStopping() {
				_ = conn.Close(websocket.StatusNormalClosure, "close")
				return
			}
			s.attach(conn)
			return
		}
		s.setState(StateFailed)
	}()
}

func (s *Stream) OnAck(cb AckCallback) {
	if cb == nil {
		return
	}
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.ackCbs = append(s.ackCbs, cb)
}

func (s *Stream) OnStateChange(cb StateCallback) {
	if cb == nil {
		return
	}
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.stateCbs = append(s.stateCbs, cb)
}

func (s *Stream) setState(state State) {
	s.stateM.Lock()
	s.state = state
	s.stateM.Unlock()

	s.cbM.RLock()
	callbacks := append([]StateCallback(nil), s.stateCbs...)
	s.cbM.RUnlock()
	for _, cb := range callbacks {
		cb(state)
	}
}

func (s *Stream) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.stateM.Lock()
	conn := s.conn
	s.conn = nil
	s.stateM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if s.rootCancel != nil {
			s.rootCancel()
		}
		s.setState(StateDisconnected)
		return nil
	}
}

func (s *Stream) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

func (s *Stream) buildHeaders() http.Header {
	hdr := http.Header{}
	if s.headerProvider == nil {
		return hdr
	}
	for k, v := range s.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}

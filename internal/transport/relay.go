package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"veilchat/internal/domain"
)

const (
	defaultBackoffBase     = 2 * time.Second
	defaultMaxRetries      = 5
	relayHandshakeDeadline = 10 * time.Second
	relayWriteDeadline     = 10 * time.Second
)

// RelayConfig parameterises a relay channel.
type RelayConfig struct {
	URL       string // websocket endpoint, e.g. ws://127.0.0.1:3001/ws
	Username  string
	PublicKey string // base64 public key text, registered with the relay

	// BackoffBase is the linear reconnect unit: attempt n waits n*base.
	BackoffBase time.Duration
	// MaxRetries bounds reconnection attempts after an unclean closure.
	MaxRetries uint64

	Logger *logrus.Logger
}

// RelayChannel forwards every envelope through the central relay over a
// persistent websocket. The relay routes opaque ciphertext between usernames;
// it is always treated as untrusted. There is no negotiation phase: the
// channel is connected once the registration frame is acknowledged.
type RelayChannel struct {
	cfg RelayConfig
	log *logrus.Entry
	st  stateTracker

	mu      sync.Mutex
	conn    *websocket.Conn
	closing bool
	online  []string

	writeMu sync.Mutex

	msgMu sync.Mutex
	onMsg func(domain.Message)
}

// NewRelay builds an unconnected relay channel. Register handlers with
// OnMessage/OnStateChange, then call Connect.
func NewRelay(cfg RelayConfig) *RelayChannel {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &RelayChannel{
		cfg: cfg,
		log: cfg.Logger.WithFields(logrus.Fields{"transport": "relay", "user": cfg.Username}),
	}
}

// Connect dials the relay, registers this identity, and starts the read loop.
func (r *RelayChannel) Connect(ctx context.Context) error {
	conn, err := r.dial(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	r.st.set(domain.StateConnected)
	go r.readLoop()
	return nil
}

// dial opens the websocket and performs the register handshake.
func (r *RelayChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, r.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", r.cfg.URL, err)
	}

	reg := domain.RelayFrame{
		Type:      domain.FrameRegister,
		Username:  r.cfg.Username,
		PublicKey: r.cfg.PublicKey,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(relayHandshakeDeadline))
	if err := conn.WriteJSON(reg); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("register with relay: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(relayHandshakeDeadline))
	for {
		var f domain.RelayFrame
		if err := conn.ReadJSON(&f); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("await relay registration: %w", err)
		}
		switch f.Type {
		case domain.FrameRegistered:
			_ = conn.SetReadDeadline(time.Time{})
			r.log.WithField("user_id", f.UserID).Debug("registered with relay")
			return conn, nil
		case domain.FrameError:
			_ = conn.Close()
			if strings.Contains(f.Message, "already exists") {
				return nil, domain.ErrUsernameTaken
			}
			return nil, fmt.Errorf("relay rejected registration: %s", f.Message)
		case domain.FrameOnlineUsers:
			r.setOnline(f.Users)
		}
	}
}

func (r *RelayChannel) readLoop() {
	for {
		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()
		if conn == nil {
			return
		}

		var f domain.RelayFrame
		if err := conn.ReadJSON(&f); err != nil {
			if r.isClosing() {
				r.st.set(domain.StateClosed)
				return
			}
			r.log.WithError(err).Warn("relay connection lost")
			if rerr := r.reconnect(); rerr != nil {
				r.log.WithError(rerr).Error("relay reconnection gave up")
				r.st.set(domain.StateClosed)
				return
			}
			continue
		}
		r.handleFrame(f)
	}
}

func (r *RelayChannel) handleFrame(f domain.RelayFrame) {
	switch f.Type {
	case domain.FrameMessage:
		if f.Encrypted == nil {
			r.log.WithField("id", f.ID).Warn("relay message frame without envelope")
			return
		}
		msg := domain.Message{
			ID:        f.ID,
			From:      f.From,
			To:        f.To,
			Envelope:  *f.Encrypted,
			Timestamp: f.Timestamp,
		}
		r.msgMu.Lock()
		fn := r.onMsg
		r.msgMu.Unlock()
		if fn != nil {
			fn(msg)
		}
	case domain.FrameOnlineUsers:
		r.setOnline(f.Users)
	case domain.FrameError:
		r.log.WithField("message", f.Message).Warn("relay reported an error")
	default:
		r.log.WithField("type", f.Type).Debug("ignoring relay frame")
	}
}

// linearBackOff waits attempt*base between retries.
type linearBackOff struct {
	base time.Duration
	n    int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.base
}

func (b *linearBackOff) Reset() { b.n = 0 }

// reconnect re-dials the relay with bounded, linearly increasing backoff.
// A clean Close never reaches here.
func (r *RelayChannel) reconnect() error {
	r.st.set(domain.StateNegotiating)

	attempt := 0
	op := func() error {
		if r.isClosing() {
			return backoff.Permanent(domain.ErrTransportClosed)
		}
		attempt++
		r.log.WithField("attempt", attempt).Info("reconnecting to relay")

		ctx, cancel := context.WithTimeout(context.Background(), relayHandshakeDeadline)
		defer cancel()
		conn, err := r.dial(ctx)
		if err != nil {
			return err
		}
		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()
		return nil
	}

	policy := backoff.WithMaxRetries(&linearBackOff{base: r.cfg.BackoffBase}, r.cfg.MaxRetries)
	if err := backoff.Retry(op, policy); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportClosed, err)
	}
	r.st.set(domain.StateConnected)
	return nil
}

// Send forwards an envelope plus its destination username to the relay.
func (r *RelayChannel) Send(ctx context.Context, to string, env domain.Envelope) error {
	switch r.st.get() {
	case domain.StateConnected:
	case domain.StateClosed:
		return domain.ErrTransportClosed
	default:
		return domain.ErrNotConnected
	}

	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return domain.ErrNotConnected
	}

	deadline := time.Now().Add(relayWriteDeadline)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	frame := domain.RelayFrame{Type: domain.FrameSendMessage, To: to, Encrypted: &env}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportClosed, err)
	}
	return nil
}

// Online returns the last user list pushed by the relay.
func (r *RelayChannel) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.online...)
}

func (r *RelayChannel) setOnline(users []string) {
	r.mu.Lock()
	r.online = append([]string(nil), users...)
	r.mu.Unlock()
}

func (r *RelayChannel) OnMessage(fn func(domain.Message)) {
	r.msgMu.Lock()
	r.onMsg = fn
	r.msgMu.Unlock()
}

func (r *RelayChannel) OnStateChange(fn func(domain.ConnectionState)) { r.st.observe(fn) }

func (r *RelayChannel) State() domain.ConnectionState { return r.st.get() }

func (r *RelayChannel) isClosing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closing
}

// Close shuts the channel down intentionally; no reconnection follows.
func (r *RelayChannel) Close() error {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return nil
	}
	r.closing = true
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		r.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		r.writeMu.Unlock()
		_ = conn.Close()
	}
	r.st.set(domain.StateClosed)
	return nil
}

var _ domain.Transport = (*RelayChannel)(nil)

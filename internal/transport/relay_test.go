package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilchat/internal/domain"
)

// testRelay is a minimal in-process relay speaking the websocket frame
// protocol, with hooks for dropping connections uncleanly.
type testRelay struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    map[string]*websocket.Conn
	dials    []time.Time
	rejectAl bool
}

func newTestRelay(t *testing.T) (*testRelay, *httptest.Server) {
	tr := &testRelay{t: t, conns: make(map[string]*websocket.Conn)}
	srv := httptest.NewServer(http.HandlerFunc(tr.handle))
	t.Cleanup(srv.Close)
	return tr, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (tr *testRelay) handle(w http.ResponseWriter, r *http.Request) {
	tr.mu.Lock()
	tr.dials = append(tr.dials, time.Now())
	reject := tr.rejectAl
	tr.mu.Unlock()
	if reject {
		http.Error(w, "gone", http.StatusServiceUnavailable)
		return
	}

	conn, err := tr.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var username string
	for {
		var f domain.RelayFrame
		if err := conn.ReadJSON(&f); err != nil {
			tr.mu.Lock()
			if username != "" {
				delete(tr.conns, username)
			}
			tr.mu.Unlock()
			return
		}
		switch f.Type {
		case domain.FrameRegister:
			username = f.Username
			tr.mu.Lock()
			tr.conns[username] = conn
			tr.mu.Unlock()
			_ = conn.WriteJSON(domain.RelayFrame{
				Type: domain.FrameRegistered, UserID: "u-" + username, Username: username,
			})
		case domain.FrameSendMessage:
			tr.mu.Lock()
			dst := tr.conns[f.To]
			tr.mu.Unlock()
			if dst == nil {
				_ = conn.WriteJSON(domain.RelayFrame{
					Type: domain.FrameError, Message: "Recipient not found or offline",
				})
				continue
			}
			_ = dst.WriteJSON(domain.RelayFrame{
				Type:      domain.FrameMessage,
				ID:        "srv-1",
				From:      username,
				To:        f.To,
				Encrypted: f.Encrypted,
				Timestamp: time.Now().UnixMilli(),
			})
		}
	}
}

// drop closes a user's connection without a close frame.
func (tr *testRelay) drop(username string) {
	tr.mu.Lock()
	conn := tr.conns[username]
	delete(tr.conns, username)
	tr.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (tr *testRelay) rejectAll(v bool) {
	tr.mu.Lock()
	tr.rejectAl = v
	tr.mu.Unlock()
}

func (tr *testRelay) dialTimes() []time.Time {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]time.Time(nil), tr.dials...)
}

func waitForState(t *testing.T, states <-chan domain.ConnectionState, want domain.ConnectionState) {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case st := <-states:
			if st == want {
				return
			}
		case <-deadline:
			t.Fatalf("never reached state %s", want)
		}
	}
}

func newTestRelayChannel(t *testing.T, srv *httptest.Server, username string) (*RelayChannel, chan domain.ConnectionState) {
	ch := NewRelay(RelayConfig{
		URL:         wsURL(srv),
		Username:    username,
		PublicKey:   "pk-" + username,
		BackoffBase: 30 * time.Millisecond,
		MaxRetries:  3,
	})
	states := make(chan domain.ConnectionState, 16)
	ch.OnStateChange(func(st domain.ConnectionState) { states <- st })
	t.Cleanup(func() { _ = ch.Close() })
	return ch, states
}

func TestRelayConnectAndRoundTrip(t *testing.T) {
	_, srv := newTestRelay(t)

	alice, _ := newTestRelayChannel(t, srv, "alice")
	bob, _ := newTestRelayChannel(t, srv, "bob")

	inbound := make(chan domain.Message, 1)
	bob.OnMessage(func(m domain.Message) { inbound <- m })

	require.NoError(t, alice.Connect(context.Background()))
	require.NoError(t, bob.Connect(context.Background()))
	assert.Equal(t, domain.StateConnected, alice.State())

	env := domain.Envelope{Ciphertext: []byte("ct"), Nonce: []byte("n"), SenderPublicKey: []byte("pk")}
	require.NoError(t, alice.Send(context.Background(), "bob", env))

	select {
	case m := <-inbound:
		assert.Equal(t, "alice", m.From)
		assert.Equal(t, env.Ciphertext, m.Envelope.Ciphertext)
		assert.NotZero(t, m.Timestamp)
	case <-time.After(5 * time.Second):
		t.Fatal("message never routed")
	}
}

func TestRelaySendBeforeConnect(t *testing.T) {
	_, srv := newTestRelay(t)
	ch, _ := newTestRelayChannel(t, srv, "alice")

	err := ch.Send(context.Background(), "bob", domain.Envelope{})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestRelayReconnectsAfterUncleanDrop(t *testing.T) {
	tr, srv := newTestRelay(t)
	ch, states := newTestRelayChannel(t, srv, "alice")

	require.NoError(t, ch.Connect(context.Background()))
	tr.drop("alice")

	// Unclean drop: the channel reconnects and comes back up.
	waitForState(t, states, domain.StateNegotiating)
	waitForState(t, states, domain.StateConnected)
}

func TestRelayGivesUpAfterBoundedRetries(t *testing.T) {
	tr, srv := newTestRelay(t)
	ch, states := newTestRelayChannel(t, srv, "alice")

	require.NoError(t, ch.Connect(context.Background()))
	tr.rejectAll(true)
	start := time.Now()
	tr.drop("alice")

	waitForState(t, states, domain.StateClosed)

	// 1 initial dial + 1 immediate retry + MaxRetries backed-off retries.
	dials := tr.dialTimes()
	assert.Equal(t, 5, len(dials))
	// Linear backoff: waits of 1x, 2x and 3x base between the retries.
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	for i := 2; i < len(dials)-1; i++ {
		earlier := dials[i].Sub(dials[i-1])
		later := dials[i+1].Sub(dials[i])
		assert.Greater(t, later, earlier, "reconnect intervals must increase")
	}

	// Terminal: sends now fail explicitly.
	err := ch.Send(context.Background(), "bob", domain.Envelope{})
	assert.ErrorIs(t, err, domain.ErrTransportClosed)
}

func TestRelayCleanCloseDoesNotReconnect(t *testing.T) {
	tr, srv := newTestRelay(t)
	ch, states := newTestRelayChannel(t, srv, "alice")

	require.NoError(t, ch.Connect(context.Background()))
	dialsBefore := len(tr.dialTimes())

	require.NoError(t, ch.Close())
	waitForState(t, states, domain.StateClosed)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, dialsBefore, len(tr.dialTimes()))

	err := ch.Send(context.Background(), "bob", domain.Envelope{})
	assert.ErrorIs(t, err, domain.ErrTransportClosed)
}

func TestRelayErrorFrameForOfflineRecipient(t *testing.T) {
	_, srv := newTestRelay(t)
	ch, _ := newTestRelayChannel(t, srv, "alice")
	require.NoError(t, ch.Connect(context.Background()))

	// The relay answers with an error frame; the channel logs it and stays up.
	require.NoError(t, ch.Send(context.Background(), "ghost", domain.Envelope{Ciphertext: []byte("x")}))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, domain.StateConnected, ch.State())
}

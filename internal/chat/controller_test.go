package chat

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilchat/internal/crypto"
	"veilchat/internal/domain"
	"veilchat/internal/store"
)

// fakeDirectory resolves keys from a fixed map.
type fakeDirectory struct {
	mu   sync.Mutex
	keys map[string]string
}

func (d *fakeDirectory) Register(_ context.Context, username, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.keys[username]; taken {
		return domain.ErrUsernameTaken
	}
	d.keys[username] = key
	return nil
}
func (d *fakeDirectory) CheckUsername(_ context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, taken := d.keys[username]
	return !taken, nil
}
func (d *fakeDirectory) ResolveKey(_ context.Context, username string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key, ok := d.keys[username]
	if !ok {
		return "", domain.ErrRecipientUnknown
	}
	return key, nil
}
func (d *fakeDirectory) Online(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	users := make([]string, 0, len(d.keys))
	for u := range d.keys {
		users = append(users, u)
	}
	return users, nil
}
func (d *fakeDirectory) DeliverSignal(context.Context, domain.SignalingMessage) error { return nil }
func (d *fakeDirectory) PendingSignals(context.Context, string) ([]domain.SignalingMessage, error) {
	return nil, nil
}

// loopbackTransport hands envelopes straight to its twin, as a connected
// channel pair would.
type loopbackTransport struct {
	user  string
	state domain.ConnectionState
	twin  *loopbackTransport

	mu      sync.Mutex
	onMsg   func(domain.Message)
	onState func(domain.ConnectionState)
}

func connectedPair(a, b string) (*loopbackTransport, *loopbackTransport) {
	ta := &loopbackTransport{user: a, state: domain.StateConnected}
	tb := &loopbackTransport{user: b, state: domain.StateConnected}
	ta.twin, tb.twin = tb, ta
	return ta, tb
}

func (t *loopbackTransport) Send(_ context.Context, to string, env domain.Envelope) error {
	if t.state != domain.StateConnected {
		return domain.ErrNotConnected
	}
	msg := domain.Message{
		ID:        uuid.NewString(),
		From:      t.user,
		To:        to,
		Envelope:  env,
		Timestamp: time.Now().UnixMilli(),
	}
	t.twin.mu.Lock()
	fn := t.twin.onMsg
	t.twin.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
	return nil
}

func (t *loopbackTransport) OnMessage(fn func(domain.Message)) {
	t.mu.Lock()
	t.onMsg = fn
	t.mu.Unlock()
}
func (t *loopbackTransport) OnStateChange(fn func(domain.ConnectionState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}
func (t *loopbackTransport) State() domain.ConnectionState { return t.state }
func (t *loopbackTransport) Close() error                  { t.state = domain.StateClosed; return nil }

func newTestController(t *testing.T, username string, dir *fakeDirectory) *Controller {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	id := domain.Identity{Username: username, KeyPair: kp}

	hs, err := store.OpenHistory(filepath.Join(t.TempDir(), store.DefaultHistoryFileName))
	require.NoError(t, err)
	t.Cleanup(func() { _ = hs.Close() })

	c := NewController(id, dir, hs, nil)
	require.NoError(t, c.Register(context.Background()))
	return c
}

func awaitEvent(t *testing.T, c *Controller, kind EventKind) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("event kind %d never arrived", kind)
		}
	}
}

func TestSendEndToEnd(t *testing.T) {
	dir := &fakeDirectory{keys: make(map[string]string)}
	alice := newTestController(t, "alice", dir)
	bob := newTestController(t, "bob", dir)

	ta, tb := connectedPair("alice", "bob")
	alice.Attach(ta)
	bob.Attach(tb)

	sent, err := alice.Send(context.Background(), "bob", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, sent.ID)

	// Bob's pipeline decrypts and raises a new-message event.
	ev := awaitEvent(t, bob, EventMessage)
	assert.Equal(t, "hello", ev.Message.Plaintext)
	assert.Equal(t, "alice", ev.Message.From)
	assert.NotEqual(t, sent.ID, ev.Message.ID)

	// Both histories show "hello" attributed to alice.
	aliceHist, err := alice.Restore("bob")
	require.NoError(t, err)
	require.Len(t, aliceHist, 1)
	assert.Equal(t, "alice", aliceHist[0].From)
	assert.Equal(t, "hello", aliceHist[0].Plaintext)

	bobHist, err := bob.Restore("alice")
	require.NoError(t, err)
	require.Len(t, bobHist, 1)
	assert.Equal(t, "alice", bobHist[0].From)
	assert.Equal(t, "hello", bobHist[0].Plaintext)
}

func TestSendWithoutTransport(t *testing.T) {
	dir := &fakeDirectory{keys: make(map[string]string)}
	alice := newTestController(t, "alice", dir)

	_, err := alice.Send(context.Background(), "bob", "hi")
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestSendToUnknownRecipient(t *testing.T) {
	dir := &fakeDirectory{keys: make(map[string]string)}
	alice := newTestController(t, "alice", dir)
	ta, _ := connectedPair("alice", "bob")
	alice.Attach(ta)

	_, err := alice.Send(context.Background(), "ghost", "hi")
	assert.ErrorIs(t, err, domain.ErrRecipientUnknown)
}

func TestInboundTamperedEnvelopeRetained(t *testing.T) {
	dir := &fakeDirectory{keys: make(map[string]string)}
	alice := newTestController(t, "alice", dir)
	bob := newTestController(t, "bob", dir)

	env, err := crypto.Encrypt([]byte("secret"), bob.id.KeyPair.Public,
		alice.id.KeyPair.Private, alice.id.KeyPair.Public)
	require.NoError(t, err)
	env.Ciphertext[0] ^= 0xff

	msg := domain.Message{
		ID: "tampered-1", From: "alice", To: "bob",
		Envelope: env, Timestamp: time.Now().UnixMilli(),
	}
	bob.HandleInbound(msg)

	ev := awaitEvent(t, bob, EventUndecryptable)
	assert.Equal(t, "tampered-1", ev.Message.ID)
	assert.False(t, ev.Message.Decrypted)

	// The raw envelope stays in history for a future retry.
	hist, err := bob.history.Read("alice")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.False(t, hist[0].Decrypted)
	assert.Equal(t, env.Ciphertext, hist[0].Envelope.Ciphertext)
}

func TestRestoreRetriesDecryption(t *testing.T) {
	dir := &fakeDirectory{keys: make(map[string]string)}
	alice := newTestController(t, "alice", dir)
	bob := newTestController(t, "bob", dir)

	env, err := crypto.Encrypt([]byte("delayed"), bob.id.KeyPair.Public,
		alice.id.KeyPair.Private, alice.id.KeyPair.Public)
	require.NoError(t, err)

	// Simulate an entry that landed in history before decryption succeeded.
	raw := domain.Message{
		ID: "m-raw", From: "alice", To: "bob",
		Envelope: env, Timestamp: time.Now().UnixMilli(),
	}
	require.NoError(t, bob.history.Append("bob", raw))

	hist, err := bob.Restore("alice")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Decrypted)
	assert.Equal(t, "delayed", hist[0].Plaintext)

	// The recovered plaintext is now cached durably.
	stored, err := bob.history.Read("alice")
	require.NoError(t, err)
	assert.True(t, stored[0].Decrypted)
	assert.Equal(t, "delayed", stored[0].Plaintext)
}

func TestStateChangeEventsForwarded(t *testing.T) {
	dir := &fakeDirectory{keys: make(map[string]string)}
	alice := newTestController(t, "alice", dir)
	ta, _ := connectedPair("alice", "bob")
	alice.Attach(ta)

	ta.mu.Lock()
	fn := ta.onState
	ta.mu.Unlock()
	require.NotNil(t, fn)
	fn(domain.StateClosed)

	ev := awaitEvent(t, alice, EventStateChange)
	assert.Equal(t, domain.StateClosed, ev.State)
}

package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilchat/internal/domain"
)

// blackholeDirectory accepts every signal and delivers none of them.
type blackholeDirectory struct {
	mu        sync.Mutex
	delivered []domain.SignalingMessage
}

func (d *blackholeDirectory) Register(context.Context, string, string) error { return nil }
func (d *blackholeDirectory) CheckUsername(context.Context, string) (bool, error) {
	return true, nil
}
func (d *blackholeDirectory) ResolveKey(context.Context, string) (string, error) { return "", nil }
func (d *blackholeDirectory) Online(context.Context) ([]string, error)           { return nil, nil }
func (d *blackholeDirectory) DeliverSignal(_ context.Context, sig domain.SignalingMessage) error {
	d.mu.Lock()
	d.delivered = append(d.delivered, sig)
	d.mu.Unlock()
	return nil
}
func (d *blackholeDirectory) PendingSignals(context.Context, string) ([]domain.SignalingMessage, error) {
	return nil, nil
}

// loopbackDirectory routes signals directly into the other party's channel,
// standing in for the polling round trip through the real directory.
type loopbackDirectory struct {
	mu       sync.Mutex
	channels map[string]*PeerChannel
}

func newLoopbackDirectory() *loopbackDirectory {
	return &loopbackDirectory{channels: make(map[string]*PeerChannel)}
}

func (d *loopbackDirectory) add(username string, ch *PeerChannel) {
	d.mu.Lock()
	d.channels[username] = ch
	d.mu.Unlock()
}

func (d *loopbackDirectory) Register(context.Context, string, string) error { return nil }
func (d *loopbackDirectory) CheckUsername(context.Context, string) (bool, error) {
	return true, nil
}
func (d *loopbackDirectory) ResolveKey(context.Context, string) (string, error) { return "", nil }
func (d *loopbackDirectory) Online(context.Context) ([]string, error)           { return nil, nil }
func (d *loopbackDirectory) DeliverSignal(_ context.Context, sig domain.SignalingMessage) error {
	d.mu.Lock()
	dst := d.channels[sig.To]
	d.mu.Unlock()
	if dst == nil {
		return nil
	}
	go func() {
		_ = dst.HandleSignal(context.Background(), sig)
	}()
	return nil
}
func (d *loopbackDirectory) PendingSignals(context.Context, string) ([]domain.SignalingMessage, error) {
	return nil, nil
}

func TestPeerNegotiationTimeoutFallsBackToIdle(t *testing.T) {
	dir := &blackholeDirectory{}
	ch := NewPeer(PeerConfig{
		Username:           "alice",
		Directory:          dir,
		NegotiationTimeout: 300 * time.Millisecond,
	})
	t.Cleanup(func() { _ = ch.Close() })

	err := ch.Connect(context.Background(), "bob")
	require.ErrorIs(t, err, domain.ErrNegotiationTimeout)
	assert.Equal(t, domain.StateIdle, ch.State())

	// The offer made it to the directory even though nobody answered.
	dir.mu.Lock()
	require.NotEmpty(t, dir.delivered)
	assert.Equal(t, domain.SignalOffer, dir.delivered[0].Kind)
	dir.mu.Unlock()

	// A failed negotiation permits a retry to the same peer.
	err = ch.Connect(context.Background(), "bob")
	require.ErrorIs(t, err, domain.ErrNegotiationTimeout)
	assert.Equal(t, domain.StateIdle, ch.State())
}

func TestPeerSendWhileIdleFails(t *testing.T) {
	ch := NewPeer(PeerConfig{Username: "alice", Directory: &blackholeDirectory{}})
	err := ch.Send(context.Background(), "bob", domain.Envelope{})
	assert.ErrorIs(t, err, domain.ErrNotConnected)
}

func TestPeerDropsStaleAnswer(t *testing.T) {
	ch := NewPeer(PeerConfig{Username: "alice", Directory: &blackholeDirectory{}})
	t.Cleanup(func() { _ = ch.Close() })

	// No negotiation in flight: a leftover answer from an abandoned session
	// must be discarded without completing anything.
	err := ch.HandleSignal(context.Background(), domain.SignalingMessage{
		Kind: domain.SignalAnswer, From: "bob", To: "alice", Payload: `{"type":"answer","sdp":""}`,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, ch.State())
}

func TestPeerCandidateBufferingAndDuplicates(t *testing.T) {
	dir := &blackholeDirectory{}
	ch := NewPeer(PeerConfig{
		Username:           "alice",
		Directory:          dir,
		NegotiationTimeout: 200 * time.Millisecond,
	})
	t.Cleanup(func() { _ = ch.Close() })

	done := make(chan error, 1)
	go func() { done <- ch.Connect(context.Background(), "bob") }()

	// Wait until the negotiation is in flight.
	require.Eventually(t, func() bool {
		return ch.State() == domain.StateNegotiating
	}, 2*time.Second, 10*time.Millisecond)

	cand := `{"candidate":"candidate:1 1 udp 2130706431 127.0.0.1 4242 typ host","sdpMid":"0"}`
	// Candidates ahead of the answer are buffered, and duplicates are no-ops.
	require.NoError(t, ch.HandleSignal(context.Background(), domain.SignalingMessage{
		Kind: domain.SignalCandidate, From: "bob", To: "alice", Payload: cand,
	}))
	require.NoError(t, ch.HandleSignal(context.Background(), domain.SignalingMessage{
		Kind: domain.SignalCandidate, From: "bob", To: "alice", Payload: cand,
	}))

	require.ErrorIs(t, <-done, domain.ErrNegotiationTimeout)
}

func TestPeerChannelEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("full in-process webrtc handshake")
	}

	dir := newLoopbackDirectory()
	alice := NewPeer(PeerConfig{Username: "alice", Directory: dir, NegotiationTimeout: 20 * time.Second})
	bob := NewPeer(PeerConfig{Username: "bob", Directory: dir, NegotiationTimeout: 20 * time.Second})
	dir.add("alice", alice)
	dir.add("bob", bob)
	t.Cleanup(func() { _ = alice.Close(); _ = bob.Close() })

	inbound := make(chan domain.Message, 1)
	bob.OnMessage(func(m domain.Message) { inbound <- m })

	require.NoError(t, alice.Connect(context.Background(), "bob"))
	assert.Equal(t, domain.StateConnected, alice.State())

	require.Eventually(t, func() bool {
		return bob.State() == domain.StateConnected
	}, 10*time.Second, 50*time.Millisecond)

	env := domain.Envelope{Ciphertext: []byte("ct"), Nonce: []byte("n"), SenderPublicKey: []byte("pk")}
	require.NoError(t, alice.Send(context.Background(), "bob", env))

	select {
	case m := <-inbound:
		assert.Equal(t, "alice", m.From)
		assert.Equal(t, env.Ciphertext, m.Envelope.Ciphertext)
		assert.NotEmpty(t, m.ID)
	case <-time.After(10 * time.Second):
		t.Fatal("frame never crossed the data channel")
	}
}

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"veilchat/internal/domain"
)

const (
	defaultNegotiationTimeout = 30 * time.Second
	dataChannelLabel          = "chat"
)

// errNegotiationSuperseded is returned to a Connect call whose in-flight
// negotiation was torn down by a newer Connect or an explicit Close.
var errNegotiationSuperseded = errors.New("negotiation superseded")

// PeerConfig parameterises a peer channel.
type PeerConfig struct {
	Username  string
	Directory domain.Directory

	// ICEServers lists STUN/TURN URLs; defaults to a public STUN server.
	ICEServers []string
	// NegotiationTimeout bounds the offer/answer/candidate handshake so a
	// non-responsive peer cannot wedge the session in negotiating forever.
	NegotiationTimeout time.Duration

	Logger *logrus.Logger
}

// PeerChannel is the direct transport variant: a data channel negotiated via
// offer/answer/candidate exchange relayed by the directory. One channel holds
// at most one negotiation at a time; starting a new one tears down the stale
// one first so an abandoned session can never be completed by a late answer.
type PeerChannel struct {
	cfg PeerConfig
	log *logrus.Entry
	st  stateTracker

	msgMu sync.Mutex
	onMsg func(domain.Message)

	mu        sync.Mutex
	gen       int // negotiation generation, bumped on every setup/teardown
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	peer      string
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	seen      map[string]struct{}
	connected chan struct{}
	aborted   chan struct{}
}

// NewPeer builds an idle peer channel for the given identity.
func NewPeer(cfg PeerConfig) *PeerChannel {
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = defaultNegotiationTimeout
	}
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = []string{"stun:stun.l.google.com:19302"}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &PeerChannel{
		cfg: cfg,
		log: cfg.Logger.WithFields(logrus.Fields{"transport": "peer", "user": cfg.Username}),
	}
}

// Connect runs the initiator path: create an offer, hand it to the directory
// for delivery, then wait for the handshake to complete. On timeout the
// session falls back to idle and a later Connect may retry.
func (p *PeerChannel) Connect(ctx context.Context, peer string) error {
	p.mu.Lock()
	if p.pc != nil {
		p.teardownLocked()
	}
	pc, err := p.setupLocked(peer)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		p.teardownLocked()
		p.mu.Unlock()
		return fmt.Errorf("create data channel: %w", err)
	}
	p.bindDataChannelLocked(dc)
	gen := p.gen
	connected := p.connected
	aborted := p.aborted
	p.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		p.abort(gen, domain.StateIdle)
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		p.abort(gen, domain.StateIdle)
		return fmt.Errorf("apply local offer: %w", err)
	}

	p.st.set(domain.StateNegotiating)
	p.log.WithField("peer", peer).Info("sending offer")
	if err := p.deliver(ctx, domain.SignalOffer, peer, offer); err != nil {
		p.abort(gen, domain.StateIdle)
		return fmt.Errorf("deliver offer: %w", err)
	}

	timer := time.NewTimer(p.cfg.NegotiationTimeout)
	defer timer.Stop()
	select {
	case <-connected:
		return nil
	case <-aborted:
		return errNegotiationSuperseded
	case <-ctx.Done():
		p.abort(gen, domain.StateIdle)
		return ctx.Err()
	case <-timer.C:
		p.abort(gen, domain.StateIdle)
		return fmt.Errorf("%w: no answer from %q within %s", domain.ErrNegotiationTimeout, peer, p.cfg.NegotiationTimeout)
	}
}

// HandleSignal feeds one signaling message into the state machine. Offers run
// the responder path; answers and candidates complete an in-flight
// negotiation. Candidate application is order-independent and idempotent.
func (p *PeerChannel) HandleSignal(ctx context.Context, sig domain.SignalingMessage) error {
	switch sig.Kind {
	case domain.SignalOffer:
		return p.handleOffer(ctx, sig)
	case domain.SignalAnswer:
		return p.handleAnswer(sig)
	case domain.SignalCandidate:
		return p.handleCandidate(sig)
	}
	return fmt.Errorf("unknown signal kind %q", sig.Kind)
}

func (p *PeerChannel) handleOffer(ctx context.Context, sig domain.SignalingMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal([]byte(sig.Payload), &offer); err != nil {
		return fmt.Errorf("parse offer from %q: %w", sig.From, err)
	}

	p.mu.Lock()
	if p.pc != nil {
		p.teardownLocked()
	}
	pc, err := p.setupLocked(sig.From)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		p.mu.Lock()
		p.bindDataChannelLocked(dc)
		p.mu.Unlock()
	})
	p.mu.Unlock()

	if err := pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("apply remote offer: %w", err)
	}
	p.markRemoteSet(pc)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("apply local answer: %w", err)
	}

	p.st.set(domain.StateNegotiating)
	p.log.WithField("peer", sig.From).Info("answering offer")
	return p.deliver(ctx, domain.SignalAnswer, sig.From, answer)
}

func (p *PeerChannel) handleAnswer(sig domain.SignalingMessage) error {
	p.mu.Lock()
	pc := p.pc
	peer := p.peer
	p.mu.Unlock()
	if pc == nil || sig.From != peer {
		// Stale answer for an abandoned negotiation; discard.
		p.log.WithField("from", sig.From).Debug("dropping stale answer")
		return nil
	}

	var answer webrtc.SessionDescription
	if err := json.Unmarshal([]byte(sig.Payload), &answer); err != nil {
		return fmt.Errorf("parse answer from %q: %w", sig.From, err)
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("apply remote answer: %w", err)
	}
	p.markRemoteSet(pc)
	return nil
}

func (p *PeerChannel) handleCandidate(sig domain.SignalingMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pc == nil || sig.From != p.peer {
		p.log.WithField("from", sig.From).Debug("dropping candidate with no active negotiation")
		return nil
	}
	if _, dup := p.seen[sig.Payload]; dup {
		return nil
	}
	p.seen[sig.Payload] = struct{}{}

	var cand webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(sig.Payload), &cand); err != nil {
		return fmt.Errorf("parse candidate from %q: %w", sig.From, err)
	}
	if !p.remoteSet {
		// Candidates may arrive before the remote description in any order;
		// buffer until it lands.
		p.pending = append(p.pending, cand)
		return nil
	}
	if err := p.pc.AddICECandidate(cand); err != nil {
		return fmt.Errorf("apply candidate from %q: %w", sig.From, err)
	}
	return nil
}

// markRemoteSet flushes candidates buffered before the remote description.
func (p *PeerChannel) markRemoteSet(pc *webrtc.PeerConnection) {
	p.mu.Lock()
	if p.pc != pc {
		p.mu.Unlock()
		return
	}
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, cand := range pending {
		if err := pc.AddICECandidate(cand); err != nil {
			p.log.WithError(err).Warn("buffered candidate rejected")
		}
	}
}

// setupLocked creates a fresh PeerConnection bound to peer and starts a new
// negotiation generation. Caller holds p.mu.
func (p *PeerChannel) setupLocked(peer string) (*webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: p.cfg.ICEServers}},
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p.gen++
	p.pc = pc
	p.dc = nil
	p.peer = peer
	p.remoteSet = false
	p.pending = nil
	p.seen = make(map[string]struct{})
	p.connected = make(chan struct{})
	p.aborted = make(chan struct{})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		// Candidate delivery is best-effort: a single failed delivery is
		// logged, the handshake can still complete on remaining candidates.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := p.cfg.Directory.DeliverSignal(ctx, domain.SignalingMessage{
				Kind: domain.SignalCandidate, From: p.cfg.Username, To: peer, Payload: string(payload),
			}); err != nil {
				p.log.WithError(err).Warn("candidate delivery failed")
			}
		}()
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.log.WithField("state", s.String()).Debug("peer connection state")
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			if p.st.get() == domain.StateConnected {
				p.st.set(domain.StateClosed)
			}
		}
	})

	return pc, nil
}

// bindDataChannelLocked wires the message path. Caller holds p.mu.
func (p *PeerChannel) bindDataChannelLocked(dc *webrtc.DataChannel) {
	p.dc = dc
	connected := p.connected
	peer := p.peer

	dc.OnOpen(func() {
		p.log.WithField("peer", peer).Info("peer channel open")
		p.st.set(domain.StateConnected)
		close(connected)
	})
	dc.OnClose(func() {
		if p.st.get() == domain.StateConnected {
			p.st.set(domain.StateClosed)
		}
	})
	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		var f domain.RelayFrame
		if err := json.Unmarshal(m.Data, &f); err != nil || f.Encrypted == nil {
			p.log.Warn("malformed frame on data channel")
			return
		}
		msg := domain.Message{
			ID:        f.ID,
			From:      f.From,
			To:        f.To,
			Envelope:  *f.Encrypted,
			Timestamp: f.Timestamp,
		}
		p.msgMu.Lock()
		fn := p.onMsg
		p.msgMu.Unlock()
		if fn != nil {
			fn(msg)
		}
	})
}

func (p *PeerChannel) deliver(ctx context.Context, kind domain.SignalKind, to string, desc webrtc.SessionDescription) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	return p.cfg.Directory.DeliverSignal(ctx, domain.SignalingMessage{
		Kind: kind, From: p.cfg.Username, To: to, Payload: string(payload),
	})
}

// Send frames an envelope and pushes it over the data channel.
func (p *PeerChannel) Send(ctx context.Context, to string, env domain.Envelope) error {
	p.mu.Lock()
	dc := p.dc
	peer := p.peer
	p.mu.Unlock()

	switch p.st.get() {
	case domain.StateConnected:
	case domain.StateClosed:
		return domain.ErrTransportClosed
	default:
		return domain.ErrNotConnected
	}
	if dc == nil {
		return domain.ErrNotConnected
	}
	if to != peer {
		return fmt.Errorf("%w: channel is bound to %q", domain.ErrNotConnected, peer)
	}

	frame := domain.RelayFrame{
		Type:      domain.FrameMessage,
		ID:        uuid.NewString(),
		From:      p.cfg.Username,
		To:        to,
		Encrypted: &env,
		Timestamp: time.Now().UnixMilli(),
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if err := dc.Send(b); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportClosed, err)
	}
	return nil
}

// Peer returns the username the channel is currently bound to, if any.
func (p *PeerChannel) Peer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer
}

func (p *PeerChannel) OnMessage(fn func(domain.Message)) {
	p.msgMu.Lock()
	p.onMsg = fn
	p.msgMu.Unlock()
}

func (p *PeerChannel) OnStateChange(fn func(domain.ConnectionState)) { p.st.observe(fn) }

func (p *PeerChannel) State() domain.ConnectionState { return p.st.get() }

// abort tears the session down only if the negotiation generation is still
// current; a stale waiter must not destroy a newer session.
func (p *PeerChannel) abort(gen int, state domain.ConnectionState) {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.teardownLocked()
	p.mu.Unlock()
	p.st.set(state)
}

// teardownLocked closes the underlying resources so no half-open session is
// orphaned. Caller holds p.mu.
func (p *PeerChannel) teardownLocked() {
	if p.aborted != nil {
		close(p.aborted)
		p.aborted = nil
	}
	if p.pc != nil {
		_ = p.pc.Close()
	}
	p.gen++
	p.pc = nil
	p.dc = nil
	p.peer = ""
	p.remoteSet = false
	p.pending = nil
	p.seen = nil
	p.connected = nil
}

// Close disposes the channel.
func (p *PeerChannel) Close() error {
	p.mu.Lock()
	p.teardownLocked()
	p.mu.Unlock()
	p.st.set(domain.StateClosed)
	return nil
}

var _ domain.Transport = (*PeerChannel)(nil)

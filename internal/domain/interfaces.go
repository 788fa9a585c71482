package domain

import "context"

// Directory is the external signaling/presence collaborator. It resolves
// usernames to public keys and ferries connection-setup messages between
// peers; it never sees plaintext or private keys.
type Directory interface {
	Register(ctx context.Context, username, publicKey string) error
	CheckUsername(ctx context.Context, username string) (bool, error)
	ResolveKey(ctx context.Context, username string) (string, error)
	Online(ctx context.Context) ([]string, error)
	DeliverSignal(ctx context.Context, sig SignalingMessage) error
	PendingSignals(ctx context.Context, username string) ([]SignalingMessage, error)
}

// Transport is the shared contract of the two channel variants (peer-direct
// and relayed). Implementations deliver opaque envelopes and report
// connection-state transitions; they never decrypt anything.
type Transport interface {
	// Send delivers an envelope to the named user. It fails with
	// ErrNotConnected or ErrTransportClosed rather than dropping data.
	Send(ctx context.Context, to string, env Envelope) error
	// OnMessage registers the handler for inbound messages. Must be set
	// before the channel starts delivering.
	OnMessage(fn func(Message))
	// OnStateChange registers the handler for connection-state transitions.
	OnStateChange(fn func(ConnectionState))
	State() ConnectionState
	Close() error
}

// History is the durable, per-peer ordered log of exchanged messages.
type History interface {
	// Append inserts a message into the conversation with its non-local
	// party. Appending an id already present is a no-op.
	Append(self string, msg Message) error
	// Read returns the retained history with a peer, oldest first. A peer
	// with no conversation yields an empty slice.
	Read(peer string) ([]Message, error)
	// SetPlaintext caches a locally decrypted plaintext for a stored message.
	SetPlaintext(id, plaintext string) error
	Clear(peer string) error
	ClearAll() error
}

// KeyStore owns the local identity. The private key is read-only after
// creation and leaves the store only to parameterise crypto calls.
type KeyStore interface {
	Save(passphrase string, id Identity) error
	Load(passphrase string) (Identity, error)
	Exists() bool
	// Wipe removes the identity and any associated local state (logout).
	Wipe() error
	SetLastPeer(username string) error
	LastPeer() (string, bool, error)
}

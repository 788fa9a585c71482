package domain

// PublicKey is a Curve25519 public key.
type PublicKey [32]byte

func (p PublicKey) Slice() []byte { return p[:] }

// PrivateKey is a Curve25519 private key. It is owned by the key store and
// never appears in any wire structure.
type PrivateKey [32]byte

func (k PrivateKey) Slice() []byte { return k[:] }

// KeyPair holds a user's long-lived box key pair.
type KeyPair struct {
	Public  PublicKey
	Private PrivateKey
}

// Identity is the locally stored account. The directory only ever sees
// Username and the public half of the key pair.
type Identity struct {
	Username string
	KeyPair  KeyPair
}

// Fingerprint is a short hex digest of a public key, for display.
type Fingerprint string

// Envelope is the authenticated-encryption envelope exchanged between peers.
// Field names and base64 encoding match the directory/relay wire format and
// must stay stable: changing them breaks decryption of stored history.
type Envelope struct {
	Ciphertext      []byte `json:"ciphertext"`
	Nonce           []byte `json:"nonce"`
	SenderPublicKey []byte `json:"public_key"`
}

// Message is one entry in a conversation. Plaintext is filled in exactly once
// after a successful local decryption and is never transmitted.
type Message struct {
	ID        string   `json:"id"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Envelope  Envelope `json:"encrypted"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds, sender's clock
	Plaintext string   `json:"-"`
	Decrypted bool     `json:"-"`
}

// Peer returns the conversation partner of a message as seen by self.
func (m Message) Peer(self string) string {
	if m.From == self {
		return m.To
	}
	return m.From
}

// RetentionCap bounds the number of messages retained per conversation.
// Oldest entries are evicted first once it is exceeded.
const RetentionCap = 5000

// SignalKind discriminates signaling messages exchanged while negotiating a
// peer channel.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "ice-candidate"
)

// SignalingMessage is transient connection-setup metadata relayed by the
// directory. It is consumed once and never persisted.
type SignalingMessage struct {
	Kind    SignalKind `json:"message_type"`
	From    string     `json:"from"`
	To      string     `json:"to"`
	Payload string     `json:"data"` // opaque session description or candidate JSON
}

// ConnectionState describes the lifecycle of a transport session.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

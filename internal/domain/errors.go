package domain

import "errors"

var (
	// ErrCrypto indicates malformed key, nonce or ciphertext material. Fatal
	// to the specific call, not to the session.
	ErrCrypto = errors.New("malformed cryptographic material")

	// ErrDecryption indicates an authentication failure while opening an
	// envelope. Recoverable: the raw envelope is retained in history.
	ErrDecryption = errors.New("decryption failed")

	// ErrRecipientUnknown indicates a directory miss for the recipient.
	ErrRecipientUnknown = errors.New("recipient unknown")

	// ErrUsernameTaken indicates the directory rejected a registration.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrNotConnected indicates a send was attempted with no live transport.
	ErrNotConnected = errors.New("no connected transport")

	// ErrNegotiationTimeout indicates a peer channel failed to complete its
	// handshake within the bound. The session is back at idle and retryable.
	ErrNegotiationTimeout = errors.New("negotiation timed out")

	// ErrTransportClosed indicates a mid-session drop. The relay channel
	// reconnects on its own; a peer channel requires a fresh Connect.
	ErrTransportClosed = errors.New("transport closed")
)

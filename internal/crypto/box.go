package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"veilchat/internal/domain"
)

const (
	// KeySize is the length of Curve25519 keys.
	KeySize = 32
	// NonceSize is the length of box nonces.
	NonceSize = 24
	// MaxMessageSize caps plaintext size to keep envelopes bounded.
	MaxMessageSize = 64 * 1024
)

// GenerateKeyPair produces a fresh Curve25519 box key pair from the system
// CSPRNG.
func GenerateKeyPair() (domain.KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return domain.KeyPair{}, fmt.Errorf("generate key pair: %w", err)
	}
	return domain.KeyPair{Public: domain.PublicKey(*pub), Private: domain.PrivateKey(*priv)}, nil
}

// GenerateNonce creates a cryptographically secure random nonce. A nonce must
// never be reused under the same key pair.
func GenerateNonce() ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nonce, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}

// Encrypt seals plaintext for recipientPub under a fresh nonce and returns the
// envelope carrying ciphertext, nonce and the sender's public key. The sender
// key travels with the envelope so the recipient can authenticate and decrypt
// without a prior handshake.
func Encrypt(plaintext []byte, recipientPub domain.PublicKey, senderPriv domain.PrivateKey, senderPub domain.PublicKey) (domain.Envelope, error) {
	if len(plaintext) == 0 {
		return domain.Envelope{}, fmt.Errorf("%w: empty plaintext", domain.ErrCrypto)
	}
	if len(plaintext) > MaxMessageSize {
		return domain.Envelope{}, fmt.Errorf("%w: plaintext exceeds %d bytes", domain.ErrCrypto, MaxMessageSize)
	}
	if recipientPub == (domain.PublicKey{}) || senderPriv == (domain.PrivateKey{}) {
		return domain.Envelope{}, fmt.Errorf("%w: zero key", domain.ErrCrypto)
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return domain.Envelope{}, err
	}
	sealed := box.Seal(nil, plaintext, &nonce, (*[KeySize]byte)(&recipientPub), (*[KeySize]byte)(&senderPriv))
	return domain.Envelope{
		Ciphertext:      sealed,
		Nonce:           nonce[:],
		SenderPublicKey: senderPub.Slice(),
	}, nil
}

// Decrypt verifies and opens an envelope addressed to recipientPriv. A failed
// authentication tag yields domain.ErrDecryption; callers surface that as an
// undecryptable message and keep the raw envelope.
func Decrypt(env domain.Envelope, senderPub domain.PublicKey, recipientPriv domain.PrivateKey) ([]byte, error) {
	if len(env.Nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce is %d bytes, want %d", domain.ErrCrypto, len(env.Nonce), NonceSize)
	}
	if len(env.Ciphertext) <= box.Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", domain.ErrCrypto)
	}

	var nonce [NonceSize]byte
	copy(nonce[:], env.Nonce)
	plain, ok := box.Open(nil, env.Ciphertext, &nonce, (*[KeySize]byte)(&senderPub), (*[KeySize]byte)(&recipientPriv))
	if !ok {
		return nil, domain.ErrDecryption
	}
	return plain, nil
}

// SenderKey extracts the typed sender public key carried in an envelope.
func SenderKey(env domain.Envelope) (domain.PublicKey, error) {
	if len(env.SenderPublicKey) != KeySize {
		return domain.PublicKey{}, fmt.Errorf("%w: sender key is %d bytes, want %d", domain.ErrCrypto, len(env.SenderPublicKey), KeySize)
	}
	var pub domain.PublicKey
	copy(pub[:], env.SenderPublicKey)
	return pub, nil
}

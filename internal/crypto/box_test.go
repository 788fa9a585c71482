package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veilchat/internal/domain"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sender, err := GenerateKeyPair()
	require.NoError(t, err)
	recipient, err := GenerateKeyPair()
	require.NoError(t, err)

	plaintext := []byte("hello over an untrusted relay")
	env, err := Encrypt(plaintext, recipient.Public, sender.Private, sender.Public)
	require.NoError(t, err)
	assert.Len(t, env.Nonce, NonceSize)
	assert.Equal(t, sender.Public.Slice(), env.SenderPublicKey)

	got, err := Decrypt(env, sender.Public, recipient.Private)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestDecryptDetectsTampering(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()

	env, err := Encrypt([]byte("integrity matters"), recipient.Public, sender.Private, sender.Public)
	require.NoError(t, err)

	tampered := env
	tampered.Ciphertext = append([]byte(nil), env.Ciphertext...)
	tampered.Ciphertext[0] ^= 0x01
	_, err = Decrypt(tampered, sender.Public, recipient.Private)
	assert.ErrorIs(t, err, domain.ErrDecryption)

	tampered = env
	tampered.Nonce = append([]byte(nil), env.Nonce...)
	tampered.Nonce[3] ^= 0x80
	_, err = Decrypt(tampered, sender.Public, recipient.Private)
	assert.ErrorIs(t, err, domain.ErrDecryption)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()
	other, _ := GenerateKeyPair()

	env, err := Encrypt([]byte("not for you"), recipient.Public, sender.Private, sender.Public)
	require.NoError(t, err)

	_, err = Decrypt(env, sender.Public, other.Private)
	assert.ErrorIs(t, err, domain.ErrDecryption)
}

func TestNonceUniqueness(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()

	seen := make(map[[NonceSize]byte]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		env, err := Encrypt([]byte("same plaintext"), recipient.Public, sender.Private, sender.Public)
		require.NoError(t, err)
		var nonce [NonceSize]byte
		copy(nonce[:], env.Nonce)
		if _, dup := seen[nonce]; dup {
			t.Fatalf("nonce repeated after %d encryptions", i)
		}
		seen[nonce] = struct{}{}
	}
}

func TestEncryptRejectsMalformedInput(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()

	_, err := Encrypt(nil, recipient.Public, sender.Private, sender.Public)
	assert.ErrorIs(t, err, domain.ErrCrypto)

	_, err = Encrypt([]byte("x"), domain.PublicKey{}, sender.Private, sender.Public)
	assert.ErrorIs(t, err, domain.ErrCrypto)
}

func TestDecryptRejectsMalformedEnvelope(t *testing.T) {
	sender, _ := GenerateKeyPair()
	recipient, _ := GenerateKeyPair()

	_, err := Decrypt(domain.Envelope{Ciphertext: []byte("short"), Nonce: []byte("bad")}, sender.Public, recipient.Private)
	assert.ErrorIs(t, err, domain.ErrCrypto)
}

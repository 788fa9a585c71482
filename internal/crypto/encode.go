package crypto

import (
	"encoding/base64"
	"fmt"

	"veilchat/internal/domain"
)

// Keys travel inside JSON bodies on the directory surface, so they need a
// stable, reversible text form. Standard base64 without newlines.

// EncodeKey renders a public key as base64 text.
func EncodeKey(pub domain.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub.Slice())
}

// DecodeKey parses base64 text back into a public key, rejecting anything
// that is not exactly 32 bytes.
func DecodeKey(s string) (domain.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return domain.PublicKey{}, fmt.Errorf("%w: %v", domain.ErrCrypto, err)
	}
	if len(raw) != KeySize {
		return domain.PublicKey{}, fmt.Errorf("%w: decoded key is %d bytes, want %d", domain.ErrCrypto, len(raw), KeySize)
	}
	var pub domain.PublicKey
	copy(pub[:], raw)
	return pub, nil
}

package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"veilchat/internal/domain"
)

// Fingerprint returns a short hex digest of a public key for display and
// out-of-band comparison.
func Fingerprint(pub domain.PublicKey) domain.Fingerprint {
	sum := sha256.Sum256(pub.Slice())
	return domain.Fingerprint(hex.EncodeToString(sum[:8]))
}

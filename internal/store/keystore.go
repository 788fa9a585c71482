package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"veilchat/internal/domain"
)

const (
	identityFile = "identity.enc"
	metaFile     = "chat_meta.json" // { "last_peer": "..." }
)

type chatMeta struct {
	LastPeer string `json:"last_peer"`
}

// KeyStore persists the local identity encrypted at rest, plus small bits of
// unencrypted session metadata (last open conversation partner).
type KeyStore struct {
	dir string
	mu  sync.Mutex
}

func NewKeyStore(dir string) *KeyStore { return &KeyStore{dir: dir} }

// Save encrypts the identity under passphrase and writes it to disk. The
// private key only ever touches disk inside the sealed blob.
func (s *KeyStore) Save(passphrase string, id domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(id)
	if err != nil {
		return err
	}
	N, r, p := scryptParamsDefault()
	sealed, err := seal(passphrase, raw, N, r, p)
	if err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, identityFile), sealed, 0o600)
}

// Load decrypts and returns the stored identity.
func (s *KeyStore) Load(passphrase string) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := os.ReadFile(filepath.Join(s.dir, identityFile))
	if err != nil {
		return domain.Identity{}, err
	}
	raw, err := open(passphrase, sealed)
	if err != nil {
		return domain.Identity{}, err
	}
	var id domain.Identity
	if err := json.Unmarshal(raw, &id); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// Exists reports whether an identity has been created in this home dir.
func (s *KeyStore) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, identityFile))
	return err == nil
}

// Wipe removes the identity and session metadata. Invoked on logout only.
func (s *KeyStore) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range []string{identityFile, metaFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *KeyStore) SetLastPeer(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.dir, metaFile), chatMeta{LastPeer: username}, 0o600)
}

func (s *KeyStore) LastPeer() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta chatMeta
	found, err := readJSON(filepath.Join(s.dir, metaFile), &meta)
	if err != nil || !found || meta.LastPeer == "" {
		return "", false, err
	}
	return meta.LastPeer, true, nil
}

var _ domain.KeyStore = (*KeyStore)(nil)

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"veilchat/internal/domain"
)

// DefaultHistoryFileName is the SQLite filename under the home dir.
const DefaultHistoryFileName = "history.db"

var historyMigrations = []string{
	`
CREATE TABLE IF NOT EXISTS messages (
  message_id   TEXT PRIMARY KEY,
  peer         TEXT NOT NULL,
  from_user    TEXT NOT NULL,
  to_user      TEXT NOT NULL,
  ciphertext   BLOB NOT NULL,
  nonce        BLOB NOT NULL,
  sender_key   BLOB NOT NULL,
  plaintext    TEXT,
  timestamp_ms INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_messages_peer_time
ON messages (peer, timestamp_ms, message_id);
`,
}

// HistoryStore is the durable per-peer conversation log, backed by SQLite.
// Conversations are keyed by the non-local party and ordered by the sender's
// timestamp, not arrival order.
type HistoryStore struct {
	db  *sql.DB
	mu  sync.Mutex
	cap int
}

// OpenHistory opens (creating if needed) the history database at path.
func OpenHistory(path string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	for i, m := range historyMigrations {
		if _, err := db.Exec(m); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply history migration %d: %w", i, err)
		}
	}
	return &HistoryStore{db: db, cap: domain.RetentionCap}, nil
}

// Close releases the underlying database handle.
func (s *HistoryStore) Close() error { return s.db.Close() }

// Append inserts a message into the conversation with its non-local party.
// Re-appending an existing message id is a no-op: the optimistic local echo
// and a later network round-trip may both carry the same id. After insertion
// the oldest entries are evicted once the conversation exceeds the cap.
func (s *HistoryStore) Append(self string, msg domain.Message) error {
	if msg.ID == "" {
		return errors.New("message id is required")
	}
	peer := msg.Peer(self)
	if peer == "" {
		return errors.New("message has no conversation partner")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var plaintext sql.NullString
	if msg.Decrypted {
		plaintext = sql.NullString{String: msg.Plaintext, Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO messages (
			message_id, peer, from_user, to_user,
			ciphertext, nonce, sender_key, plaintext, timestamp_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, peer, msg.From, msg.To,
		msg.Envelope.Ciphertext, msg.Envelope.Nonce, msg.Envelope.SenderPublicKey,
		plaintext, msg.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert message %q: %w", msg.ID, err)
	}
	return s.evictLocked(peer)
}

// evictLocked trims the oldest rows of one conversation down to the cap.
func (s *HistoryStore) evictLocked(peer string) error {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE peer = ?`, peer).Scan(&n); err != nil {
		return fmt.Errorf("count messages for %q: %w", peer, err)
	}
	if n <= s.cap {
		return nil
	}
	_, err := s.db.Exec(
		`DELETE FROM messages WHERE message_id IN (
			SELECT message_id FROM messages
			WHERE peer = ?
			ORDER BY timestamp_ms ASC, message_id ASC
			LIMIT ?
		)`, peer, n-s.cap)
	if err != nil {
		return fmt.Errorf("evict messages for %q: %w", peer, err)
	}
	return nil
}

// Read returns the retained conversation with peer, oldest first. An unknown
// peer yields an empty slice, not an error.
func (s *HistoryStore) Read(peer string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT message_id, from_user, to_user,
			ciphertext, nonce, sender_key, plaintext, timestamp_ms
		FROM messages
		WHERE peer = ?
		ORDER BY timestamp_ms ASC, message_id ASC`, peer)
	if err != nil {
		return nil, fmt.Errorf("read conversation %q: %w", peer, err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		var (
			msg   domain.Message
			plain sql.NullString
		)
		if err := rows.Scan(
			&msg.ID, &msg.From, &msg.To,
			&msg.Envelope.Ciphertext, &msg.Envelope.Nonce, &msg.Envelope.SenderPublicKey,
			&plain, &msg.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if plain.Valid {
			msg.Plaintext = plain.String
			msg.Decrypted = true
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

// SetPlaintext caches a locally recovered plaintext for a stored message.
// Only fills an empty slot; an already cached plaintext is left alone.
func (s *HistoryStore) SetPlaintext(id, plaintext string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE messages SET plaintext = ? WHERE message_id = ? AND plaintext IS NULL`,
		plaintext, id)
	if err != nil {
		return fmt.Errorf("cache plaintext for %q: %w", id, err)
	}
	return nil
}

// Clear deletes one conversation. User-invoked only.
func (s *HistoryStore) Clear(peer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM messages WHERE peer = ?`, peer); err != nil {
		return fmt.Errorf("clear conversation %q: %w", peer, err)
	}
	return nil
}

// ClearAll deletes every conversation. User-invoked only.
func (s *HistoryStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

var _ domain.History = (*HistoryStore)(nil)

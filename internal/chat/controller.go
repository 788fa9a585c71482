package chat

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"veilchat/internal/crypto"
	"veilchat/internal/domain"
)

// Controller orchestrates the encryption pipeline: it resolves keys through
// the directory, encrypts and decrypts with the local identity's key pair,
// binds every message to durable history, and emits events for the UI.
type Controller struct {
	id      domain.Identity
	dir     domain.Directory
	history domain.History
	log     *logrus.Entry

	mu        sync.Mutex
	transport domain.Transport
	keyCache  map[string]domain.PublicKey

	events chan Event
}

// NewController builds a controller for one active identity.
func NewController(id domain.Identity, dir domain.Directory, history domain.History, log *logrus.Logger) *Controller {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Controller{
		id:       id,
		dir:      dir,
		history:  history,
		log:      log.WithField("user", id.Username),
		keyCache: make(map[string]domain.PublicKey),
		events:   make(chan Event, 64),
	}
}

// Events is the controller-to-UI stream.
func (c *Controller) Events() <-chan Event { return c.events }

// Username returns the local identity's username.
func (c *Controller) Username() string { return c.id.Username }

// Attach makes tr the active transport session and wires its message and
// state streams into the controller.
func (c *Controller) Attach(tr domain.Transport) {
	c.mu.Lock()
	c.transport = tr
	c.mu.Unlock()

	tr.OnMessage(c.HandleInbound)
	tr.OnStateChange(func(st domain.ConnectionState) {
		c.emit(Event{Kind: EventStateChange, State: st})
	})
}

// Register announces the local identity to the directory.
func (c *Controller) Register(ctx context.Context) error {
	return c.dir.Register(ctx, c.id.Username, crypto.EncodeKey(c.id.KeyPair.Public))
}

// Peers lists currently online usernames, excluding self.
func (c *Controller) Peers(ctx context.Context) ([]string, error) {
	users, err := c.dir.Online(ctx)
	if err != nil {
		return nil, err
	}
	out := users[:0]
	for _, u := range users {
		if u != c.id.Username {
			out = append(out, u)
		}
	}
	return out, nil
}

// Send encrypts plaintext for toUsername, writes the optimistic local echo to
// history, and hands the envelope to the active transport. The echo is
// appended before the network send so a failed delivery is still visible.
func (c *Controller) Send(ctx context.Context, toUsername, plaintext string) (domain.Message, error) {
	tr := c.currentTransport()
	if tr == nil || tr.State() != domain.StateConnected {
		return domain.Message{}, domain.ErrNotConnected
	}

	peerKey, err := c.resolveKey(ctx, toUsername)
	if err != nil {
		return domain.Message{}, err
	}

	env, err := crypto.Encrypt([]byte(plaintext), peerKey, c.id.KeyPair.Private, c.id.KeyPair.Public)
	if err != nil {
		return domain.Message{}, err
	}

	msg := domain.Message{
		ID:        uuid.NewString(),
		From:      c.id.Username,
		To:        toUsername,
		Envelope:  env,
		Timestamp: time.Now().UnixMilli(),
		Plaintext: plaintext,
		Decrypted: true,
	}
	if err := c.history.Append(c.id.Username, msg); err != nil {
		return domain.Message{}, fmt.Errorf("append local echo: %w", err)
	}
	if err := tr.Send(ctx, toUsername, env); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// HandleInbound runs the receive pipeline for one transport message. A failed
// decryption never crashes the pipeline: the raw envelope is retained in
// history for a future retry and a distinct event is raised.
func (c *Controller) HandleInbound(msg domain.Message) {
	plain, err := c.decrypt(msg)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"id": msg.ID, "from": msg.From,
		}).Warn("undecryptable message")
		if aerr := c.history.Append(c.id.Username, msg); aerr != nil {
			c.log.WithError(aerr).Error("failed to retain undecryptable message")
		}
		c.emit(Event{Kind: EventUndecryptable, Message: msg})
		return
	}

	msg.Plaintext = string(plain)
	msg.Decrypted = true
	if err := c.history.Append(c.id.Username, msg); err != nil {
		c.log.WithError(err).Error("failed to append inbound message")
	}
	c.emit(Event{Kind: EventMessage, Message: msg})
}

// Restore returns the conversation with peer, retrying decryption for
// entries that lack a cached plaintext (for example messages received before
// an earlier failed attempt).
func (c *Controller) Restore(peer string) ([]domain.Message, error) {
	msgs, err := c.history.Read(peer)
	if err != nil {
		return nil, err
	}
	for i, msg := range msgs {
		if msg.Decrypted || msg.From == c.id.Username {
			continue
		}
		plain, derr := c.decrypt(msg)
		if derr != nil {
			continue // still undecryptable, keep the raw envelope
		}
		msgs[i].Plaintext = string(plain)
		msgs[i].Decrypted = true
		if serr := c.history.SetPlaintext(msg.ID, string(plain)); serr != nil {
			c.log.WithError(serr).WithField("id", msg.ID).Warn("failed to cache recovered plaintext")
		}
	}
	return msgs, nil
}

// decrypt opens one envelope with the sender key it carries, cross-checking
// it against a directory-resolved key when one is cached. The envelope key is
// redundant once the directory supplied one; a mismatch is logged because the
// protocol offers no stronger binding.
func (c *Controller) decrypt(msg domain.Message) ([]byte, error) {
	senderPub, err := crypto.SenderKey(msg.Envelope)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	cached, ok := c.keyCache[msg.From]
	c.mu.Unlock()
	if ok && !bytes.Equal(cached.Slice(), senderPub.Slice()) {
		c.log.WithField("from", msg.From).Warn("envelope sender key differs from directory key")
	}
	return crypto.Decrypt(msg.Envelope, senderPub, c.id.KeyPair.Private)
}

func (c *Controller) resolveKey(ctx context.Context, username string) (domain.PublicKey, error) {
	c.mu.Lock()
	cached, ok := c.keyCache[username]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	text, err := c.dir.ResolveKey(ctx, username)
	if err != nil {
		return domain.PublicKey{}, err
	}
	key, err := crypto.DecodeKey(text)
	if err != nil {
		return domain.PublicKey{}, fmt.Errorf("directory returned bad key for %q: %w", username, err)
	}
	c.mu.Lock()
	c.keyCache[username] = key
	c.mu.Unlock()
	return key, nil
}

func (c *Controller) currentTransport() domain.Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event dropped: consumer too slow")
	}
}

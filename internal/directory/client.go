package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"veilchat/internal/domain"
)

// Client talks to the directory/signaling service over its HTTP surface. The
// directory is semi-trusted: it sees usernames, public keys and signaling
// metadata, never plaintext or private keys.
type Client struct {
	base string
	http *http.Client
	log  *logrus.Logger
}

func NewClient(base string, httpClient *http.Client, log *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{base: base, http: httpClient, log: log}
}

// Register announces this identity's username and public key text.
func (c *Client) Register(ctx context.Context, username, publicKey string) error {
	err := c.post(ctx, "/api/register", domain.RegisterRequest{Username: username, PublicKey: publicKey}, nil)
	if isStatus(err, http.StatusConflict) {
		return domain.ErrUsernameTaken
	}
	return err
}

// CheckUsername reports whether a username is still free.
func (c *Client) CheckUsername(ctx context.Context, username string) (bool, error) {
	var resp domain.CheckUsernameResponse
	if err := c.post(ctx, "/api/check-username", domain.CheckUsernameRequest{Username: username}, &resp); err != nil {
		return false, err
	}
	return resp.Available, nil
}

// ResolveKey looks up a peer's public key text.
func (c *Client) ResolveKey(ctx context.Context, username string) (string, error) {
	var resp domain.PublicKeyResponse
	err := c.post(ctx, "/api/user/public-key", domain.PublicKeyRequest{Username: username}, &resp)
	if isStatus(err, http.StatusNotFound) {
		return "", fmt.Errorf("%w: %s", domain.ErrRecipientUnknown, username)
	}
	if err != nil {
		return "", err
	}
	return resp.PublicKey, nil
}

// Online lists currently registered usernames.
func (c *Client) Online(ctx context.Context) ([]string, error) {
	var resp domain.OnlineUsersResponse
	if err := c.getJSON(ctx, "/api/online-users", &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// DeliverSignal forwards one offer/answer/candidate to the peer's pending
// queue on the directory.
func (c *Client) DeliverSignal(ctx context.Context, sig domain.SignalingMessage) error {
	switch sig.Kind {
	case domain.SignalOffer:
		return c.post(ctx, "/api/webrtc/offer",
			domain.OfferRequest{From: sig.From, To: sig.To, Offer: sig.Payload}, nil)
	case domain.SignalAnswer:
		return c.post(ctx, "/api/webrtc/answer",
			domain.AnswerRequest{From: sig.From, To: sig.To, Answer: sig.Payload}, nil)
	case domain.SignalCandidate:
		return c.post(ctx, "/api/webrtc/ice-candidate",
			domain.CandidateRequest{From: sig.From, To: sig.To, Candidate: sig.Payload}, nil)
	}
	return fmt.Errorf("unknown signal kind %q", sig.Kind)
}

// PendingSignals drains the pending signaling queue for username. The
// directory deletes returned items, so each item is observed exactly once.
func (c *Client) PendingSignals(ctx context.Context, username string) ([]domain.SignalingMessage, error) {
	var out []domain.SignalingMessage
	if err := c.getJSON(ctx, "/api/webrtc/pending-messages/"+url.PathEscape(username), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// statusError preserves the HTTP status for error mapping at call sites.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("directory %s: status %d", e.url, e.code)
}

func isStatus(err error, code int) bool {
	se, ok := err.(*statusError)
	return ok && se.code == code
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &statusError{code: resp.StatusCode, url: req.URL.Path}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

var _ domain.Directory = (*Client)(nil)

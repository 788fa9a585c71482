package app

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds runtime wiring options for building the client.
type Config struct {
	Home         string // config directory, e.g. $HOME/.veilchat
	DirectoryURL string // directory/signaling base URL, e.g. http://127.0.0.1:3001
	RelayURL     string // relay websocket URL, e.g. ws://127.0.0.1:3001/ws

	// NegotiationTimeout bounds the peer-channel handshake.
	NegotiationTimeout time.Duration
	// SignalPollInterval is how often pending signaling is polled.
	SignalPollInterval time.Duration

	HTTP   *http.Client   // optional; defaults to http.DefaultClient
	Logger *logrus.Logger // optional; defaults to the standard logger
}

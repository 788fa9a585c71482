package app

import (
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"veilchat/internal/directory"
	"veilchat/internal/domain"
	"veilchat/internal/store"
)

const (
	defaultNegotiationTimeout = 30 * time.Second
	defaultSignalPollInterval = 2 * time.Second
)

// Wire bundles the stores and clients behind the CLI.
type Wire struct {
	Config    Config
	Keys      domain.KeyStore
	History   *store.HistoryStore
	Directory *directory.Client
	Logger    *logrus.Logger
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.NegotiationTimeout <= 0 {
		cfg.NegotiationTimeout = defaultNegotiationTimeout
	}
	if cfg.SignalPollInterval <= 0 {
		cfg.SignalPollInterval = defaultSignalPollInterval
	}

	history, err := store.OpenHistory(filepath.Join(cfg.Home, store.DefaultHistoryFileName))
	if err != nil {
		return nil, err
	}

	return &Wire{
		Config:    cfg,
		Keys:      store.NewKeyStore(cfg.Home),
		History:   history,
		Directory: directory.NewClient(cfg.DirectoryURL, cfg.HTTP, cfg.Logger),
		Logger:    cfg.Logger,
	}, nil
}

// Close releases held resources.
func (w *Wire) Close() error { return w.History.Close() }

package commands

import (
	"context"
	"fmt"

	"veilchat/internal/chat"
	"veilchat/internal/crypto"
	"veilchat/internal/domain"
	"veilchat/internal/transport"
)

func loadIdentity() (domain.Identity, error) {
	if passphrase == "" {
		return domain.Identity{}, fmt.Errorf("passphrase required (-p)")
	}
	if !wire.Keys.Exists() {
		return domain.Identity{}, fmt.Errorf("no identity in %s, run 'veilchat init' first", home)
	}
	return wire.Keys.Load(passphrase)
}

func buildController(id domain.Identity) *chat.Controller {
	return chat.NewController(id, wire.Directory, wire.History, wire.Logger)
}

// connectRelay attaches a relay channel to the controller and brings it up.
func connectRelay(ctx context.Context, ctrl *chat.Controller, id domain.Identity) (*transport.RelayChannel, error) {
	relay := transport.NewRelay(transport.RelayConfig{
		URL:       wire.Config.RelayURL,
		Username:  id.Username,
		PublicKey: crypto.EncodeKey(id.KeyPair.Public),
		Logger:    wire.Logger,
	})
	ctrl.Attach(relay)
	if err := relay.Connect(ctx); err != nil {
		return nil, err
	}
	return relay, nil
}

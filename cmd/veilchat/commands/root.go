package commands

import (
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"veilchat/internal/app"
)

var (
	home       string
	passphrase string
	dirURL     string
	relayURL   string
	verbose    bool

	wire *app.Wire
)

func Execute() error {
	root := &cobra.Command{
		Use:   "veilchat",
		Short: "End-to-end encrypted chat client",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".veilchat")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			log := logrus.New()
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}

			var err error
			wire, err = app.NewWire(app.Config{
				Home:               home,
				DirectoryURL:       dirURL,
				RelayURL:           relayURL,
				NegotiationTimeout: 30 * time.Second,
				SignalPollInterval: 2 * time.Second,
				Logger:             log,
			})
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire != nil {
				return wire.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.veilchat)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the local identity")
	root.PersistentFlags().StringVar(&dirURL, "directory", "http://127.0.0.1:3001", "directory/signaling base URL")
	root.PersistentFlags().StringVar(&relayURL, "relay", "ws://127.0.0.1:3001/ws", "relay websocket URL")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		initCmd(), registerCmd(), fingerprintCmd(), peersCmd(),
		sendCmd(), recvCmd(), chatCmd(), historyCmd(), logoutCmd(),
	)
	return root.Execute()
}

package commands

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"veilchat/internal/domain"
	"veilchat/internal/transport"
)

// chat [peer]: open a direct peer channel and chat interactively. With no
// argument the last open conversation is resumed.
func chatCmd() *cobra.Command {
	var listen bool
	cmd := &cobra.Command{
		Use:   "chat [peer]",
		Short: "Open a direct peer channel and chat interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity()
			if err != nil {
				return err
			}

			peer := ""
			if len(args) == 1 {
				peer = args[0]
			} else if last, ok, lerr := wire.Keys.LastPeer(); lerr == nil && ok {
				peer = last
			}
			if peer == "" && !listen {
				return fmt.Errorf("no peer given and no previous conversation to resume")
			}

			ctrl := buildController(id)
			ch := transport.NewPeer(transport.PeerConfig{
				Username:           id.Username,
				Directory:          wire.Directory,
				NegotiationTimeout: wire.Config.NegotiationTimeout,
				Logger:             wire.Logger,
			})
			ctrl.Attach(ch)
			defer ch.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go wire.Directory.PollSignaling(ctx, id.Username, wire.Config.SignalPollInterval,
				func(sig domain.SignalingMessage) {
					if err := ch.HandleSignal(ctx, sig); err != nil {
						wire.Logger.WithError(err).Warn("signal rejected")
					}
				})

			if listen {
				fmt.Println("waiting for an incoming connection (ctrl-c to stop)")
			} else {
				fmt.Printf("connecting to %s...\n", peer)
				if err := ch.Connect(ctx, peer); err != nil {
					return err
				}
				fmt.Println("connected")
				if err := wire.Keys.SetLastPeer(peer); err != nil {
					wire.Logger.WithError(err).Warn("failed to remember last peer")
				}
			}

			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case ev := <-ctrl.Events():
						printEvent(ev)
					}
				}
			}()

			lines := make(chan string)
			go func() {
				defer close(lines)
				sc := bufio.NewScanner(os.Stdin)
				for sc.Scan() {
					lines <- sc.Text()
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					line = strings.TrimSpace(line)
					if line == "" {
						continue
					}
					to := peer
					if to == "" {
						to = ch.Peer()
					}
					if to == "" {
						fmt.Println("* not connected yet")
						continue
					}
					if _, err := ctrl.Send(ctx, to, line); err != nil {
						fmt.Printf("* send failed: %v\n", err)
					}
				}
			}
		},
	}
	cmd.Flags().BoolVar(&listen, "listen", false, "wait for an incoming connection instead of dialing")
	return cmd
}

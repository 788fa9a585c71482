package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"veilchat/internal/chat"
)

// recv: stay connected to the relay and print messages as they arrive.
func recvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recv",
		Short: "Stay connected to the relay and print incoming messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity()
			if err != nil {
				return err
			}
			ctrl := buildController(id)
			relay, err := connectRelay(cmd.Context(), ctrl, id)
			if err != nil {
				return err
			}
			defer relay.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Printf("listening as %s (ctrl-c to stop)\n", id.Username)
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-ctrl.Events():
					printEvent(ev)
				}
			}
		},
	}
}

func printEvent(ev chat.Event) {
	switch ev.Kind {
	case chat.EventMessage:
		fmt.Printf("[%s] %s\n", ev.Message.From, ev.Message.Plaintext)
	case chat.EventUndecryptable:
		fmt.Printf("[%s] <message could not be decrypted>\n", ev.Message.From)
	case chat.EventStateChange:
		fmt.Printf("* connection %s\n", ev.State)
	}
}

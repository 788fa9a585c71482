package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// send <peer> <message>: one-shot encrypt-and-send over the relay.
func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <peer> <message>",
		Short: "Encrypt and send one message over the relay",
		Args:  cobra.ExactArgs(2),
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

			if _, err := ctrl.Send(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("sent")
			return nil
		},
	}
}

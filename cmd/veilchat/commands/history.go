package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// history <peer>: print the stored conversation, retrying decryption for
// entries that previously failed.
func historyCmd() *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "history <peer>",
		Short: "Print the stored conversation with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity()
			if err != nil {
				return err
			}
			peer := args[0]

			if clear {
				if err := wire.History.Clear(peer); err != nil {
					return err
				}
				fmt.Printf("cleared conversation with %s\n", peer)
				return nil
			}

			msgs, err := buildController(id).Restore(peer)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				ts := time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04:05")
				if m.Decrypted {
					fmt.Printf("%s [%s] %s\n", ts, m.From, m.Plaintext)
				} else {
					fmt.Printf("%s [%s] <undecryptable>\n", ts, m.From)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "delete the stored conversation instead of printing it")
	return cmd
}

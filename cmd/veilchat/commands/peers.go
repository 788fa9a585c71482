package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func peersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List peers currently online",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity()
			if err != nil {
				return err
			}
			peers, err := buildController(id).Peers(cmd.Context())
			if err != nil {
				return err
			}
			if len(peers) == 0 {
				fmt.Println("nobody online")
				return nil
			}
			for _, p := range peers {
				fmt.Println(p)
			}
			return nil
		},
	}
}

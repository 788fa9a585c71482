package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func logoutCmd() *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Wipe the local identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := wire.Keys.Wipe(); err != nil {
				return err
			}
			if purge {
				if err := wire.History.ClearAll(); err != nil {
					return err
				}
			}
			fmt.Println("logged out")
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "also delete all stored conversations")
	return cmd
}

package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"veilchat/internal/domain"
)

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register",
		Short: "Publish the username and public key to the directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity()
			if err != nil {
				return err
			}
			if err := buildController(id).Register(cmd.Context()); err != nil {
				if errors.Is(err, domain.ErrUsernameTaken) {
					return fmt.Errorf("username %q is already taken", id.Username)
				}
				return err
			}
			fmt.Printf("registered %s\n", id.Username)
			return nil
		},
	}
}

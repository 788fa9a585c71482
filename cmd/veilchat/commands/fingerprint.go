package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"veilchat/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the identity fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := loadIdentity()
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", id.Username, crypto.Fingerprint(id.KeyPair.Public))
			return nil
		},
	}
}

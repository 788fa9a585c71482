package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"veilchat/internal/crypto"
	"veilchat/internal/domain"
)

func initCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate identity keys and store them securely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			if wire.Keys.Exists() {
				return fmt.Errorf("identity already exists in %s, run 'veilchat logout' first", home)
			}
			kp, err := crypto.GenerateKeyPair()
			if err != nil {
				return err
			}
			id := domain.Identity{Username: username, KeyPair: kp}
			if err := wire.Keys.Save(passphrase, id); err != nil {
				return err
			}
			fmt.Printf("Identity created for %s.\nFingerprint: %s\n", username, crypto.Fingerprint(kp.Public))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "username for this identity")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"unisearch/internal/domain"
	"unisearch/internal/infra/config"
)

const configKeyEnv = "UNISEARCH_CONFIG_KEY"

func newEncryptCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a secret for use as an enc: config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := os.Getenv(configKeyEnv)
			if passphrase == "" {
				return domain.NewDomainError("encrypt", domain.ErrInvalidInput, configKeyEnv+" is not set")
			}
			enc, err := config.EncryptValue(args[0], passphrase)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(a.stdout, "enc:"+enc)
			return err
		},
	}
}

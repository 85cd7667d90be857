package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iurnickita/digimart/internal/token"
)

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token [user code]",
		Short: "Print a signed user token for testing the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			tokenizer, err := token.NewTokenizer(cfg.Token)
			if err != nil {
				return err
			}
			tokenString, err := tokenizer.BuildJWTString(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tokenString)
			return nil
		},
	}
}

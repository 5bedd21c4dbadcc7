package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/beat-license-registry/internal/utils"
)

func newHashKeyCommand() *cobra.Command {
	var generate bool
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Print the SERVICE_KEY_HASH for a service key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			switch {
			case generate && len(args) == 0:
				k, err := utils.NewServiceKey()
				if err != nil {
					return err
				}
				key = k
				fmt.Fprintf(cmd.OutOrStdout(), "SERVICE_KEY=%s\n", key)
			case !generate && len(args) == 1:
				key = args[0]
			default:
				return errors.New("pass a key or --generate, not both")
			}
			hash, err := utils.HashServiceKey(key, cost)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "SERVICE_KEY_HASH=%s\n", hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&generate, "generate", false, "Generate a random key")
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

// newTokenCommand mints an access token for local testing.  Production
// tokens come from the identity provider.
func newTokenCommand() *cobra.Command {
	var subject, secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("JWT_SECRET is not set; pass --secret")
			}
			tok, err := utils.NewAccessToken(secret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.Token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "User id placed in the sub claim")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default JWT_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}

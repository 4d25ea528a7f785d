package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"horizon/auth"
	"horizon/provider"
)

func NewModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			prov, err := provider.FromConfig(cfg)
			if err != nil {
				return errors.WithMessage(err, "couldn't create model provider")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			models, err := prov.ListModels(ctx)
			if err != nil {
				return errors.WithMessage(err, "couldn't list models")
			}

			current := prov.GetModel()
			boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
			for _, m := range models {
				name := m.Name
				if name == current {
					name = boldGreen(name + " (configured)")
				}
				fmt.Fprintln(os.Stdout, name)
			}
			return nil
		},
	}
}

// NewHashTokenCommand prints the bcrypt hash to put in a server user's
// token_hash. The token is read from stdin when not given as an argument.
func NewHashTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [TOKEN]",
		Short: "Hash a bearer token for the server users config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) == 1 {
				token = args[0]
			} else {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return errors.WithMessage(err, "couldn't read token from stdin")
				}
				token = strings.TrimSpace(line)
			}

			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, hash)
			return nil
		},
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"horizon/config"
	"horizon/storage"
)

const (
	Version = "v0.1.0"
	License = "Apache-2.0"
)

var (
	logLevel   = "info"
	configPath = ""
)

var rootCmd = &cobra.Command{
	Use:   "horizon",
	Short: "Horizon Estates real estate assistant",
	Long: `Horizon is a conversational real estate assistant. It lists trending
properties, shows property details and market events, and takes property
inquiries, either in the terminal or over HTTP.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitLogging(logLevel); err != nil {
			return err
		}
		log.Debug("debug logging enabled")
		return nil
	},
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(
		NewChatCommand(),
		NewServeCommand(),
		NewSessionsCommand(),
		NewModelsCommand(),
		NewHashTokenCommand(),
		NewVersionCommand(),
	)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level (trace,debug,info,warn,error) (default info)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config.toml (default ~/.config/horizon/config.toml)")

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("could not execute root command")
	}
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.GetConfigFilePath()
	}
	cfg, err := config.Load(config.ExpandPath(path))
	if err != nil {
		return nil, errors.WithMessage(err, "couldn't load config")
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (storage.ChatStore, error) {
	store, err := storage.Open(cfg.Storage.Backend, cfg.DataDir())
	if err != nil {
		return nil, errors.WithMessage(err, "couldn't open chat storage")
	}
	return store, nil
}

func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Report version information for horizon",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := struct {
				Version string `json:"version" yaml:"version"`
				License string `json:"license" yaml:"license"`
			}{Version, License}

			const flag = "output"
			of, err := cmd.Flags().GetString(flag)
			if err != nil {
				return errors.Wrapf(err, "error accessing flag %s for command %s", flag, cmd.Name())
			}
			switch of {
			case "":
				fmt.Fprintf(os.Stdout, "horizon %s (%s)\n", v.Version, v.License)
			case "short":
				fmt.Fprintln(os.Stdout, v.Version)
			case "yaml":
				y, err := yaml.Marshal(&v)
				if err != nil {
					return err
				}
				fmt.Fprint(os.Stdout, string(y))
			case "json":
				y, err := json.MarshalIndent(&v, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stdout, string(y))
			default:
				return errors.Errorf("invalid output format: %s", of)
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output format; available options are 'yaml', 'json' and 'short'")
	return cmd
}

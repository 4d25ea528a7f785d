package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"horizon/storage"
)

type SessionsFlags struct {
	UserID string
}

func (f *SessionsFlags) BindFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.UserID, "user", "", "Only show chats of this user (default the configured user_id)")
}

func NewSessionsCommand() *cobra.Command {
	f := &SessionsFlags{}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved chats",
	}
	f.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newSessionsListCommand(f),
		newSessionsSearchCommand(f),
		newSessionsExportCommand(),
		newSessionsDeleteCommand(),
	)
	return cmd
}

// withStore opens the configured chat store for the duration of fn.
func withStore(fn func(store storage.ChatStore, userID string) error, f *SessionsFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	userID := cfg.UserID
	if f != nil && f.UserID != "" {
		userID = f.UserID
	}
	return fn(store, userID)
}

func newSessionsListCommand(f *SessionsFlags) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved chats, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store storage.ChatStore, userID string) error {
				chats, err := store.ListChats(cmd.Context(), userID)
				if err != nil {
					return errors.WithMessage(err, "couldn't list chats")
				}
				chats = storage.FilterChats(chats, filter)

				boldGreen := color.New(color.FgGreen, color.Bold).SprintFunc()
				boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
				dim := color.New(color.Faint).SprintFunc()

				if len(chats) == 0 {
					fmt.Fprintln(os.Stdout, dim("no saved chats"))
					return nil
				}
				for _, c := range chats {
					fmt.Fprintf(os.Stdout, "%s  %s  %s\n",
						boldCyan(c.ID),
						boldGreen(c.Title),
						dim(fmt.Sprintf("%d messages, updated %s", c.MessageCount, c.UpdatedAt.Format("2006-01-02 15:04"))))
				}
				return nil
			}, f)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "Fuzzy filter on chat titles")
	return cmd
}

func newSessionsSearchCommand(f *SessionsFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the text of saved chats",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store storage.ChatStore, userID string) error {
				matches, err := storage.SearchMessages(cmd.Context(), store, userID, args[0])
				if err != nil {
					return errors.WithMessage(err, "couldn't search chats")
				}

				boldCyan := color.New(color.FgCyan, color.Bold).SprintFunc()
				yellow := color.New(color.FgYellow).SprintFunc()
				for _, m := range matches {
					fmt.Fprintf(os.Stdout, "%s %s %s\n", boldCyan(m.ChatID), yellow(string(m.Role)), m.Preview)
				}
				if len(matches) == 0 {
					fmt.Fprintln(os.Stdout, "no matches")
				}
				return nil
			}, f)
		},
	}
}

func newSessionsExportCommand() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export CHAT_ID",
		Short: "Export a saved chat as JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != storage.FormatJSON && format != storage.FormatYAML {
				return errors.Errorf("invalid export format: %s", format)
			}
			return withStore(func(store storage.ChatStore, _ string) error {
				chat, err := store.GetChat(cmd.Context(), args[0])
				if err != nil {
					return errors.WithMessage(err, "couldn't load chat")
				}
				if output == "-" {
					return storage.Export(os.Stdout, chat, format)
				}
				path := output
				if path == "" {
					path = storage.GenerateExportPath(chat.Title, format)
				}
				if err := storage.ExportToFile(chat, path, format); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "exported %s to %s\n", chat.ID, path)
				return nil
			}, nil)
		},
	}
	cmd.Flags().StringVar(&format, "format", storage.FormatJSON, "Export format; available options are 'json' and 'yaml'")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, or - for stdout (default ~/Downloads)")
	return cmd
}

func newSessionsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete CHAT_ID",
		Short: "Delete a saved chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store storage.ChatStore, _ string) error {
				if err := store.DeleteChat(cmd.Context(), args[0]); err != nil {
					return errors.WithMessage(err, "couldn't delete chat")
				}
				fmt.Fprintf(os.Stdout, "deleted %s\n", args[0])
				return nil
			}, nil)
		},
	}
}

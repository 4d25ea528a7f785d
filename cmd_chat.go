package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"horizon/auth"
	"horizon/config"
	"horizon/conversation"
	"horizon/dispatch"
	"horizon/provider"
	"horizon/ui"
)

type ChatFlags struct {
	ChatID string
	Model  string
}

func (f *ChatFlags) BindFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.ChatID, "resume", "", "Resume the saved chat with this id")
	flagSet.StringVar(&f.Model, "model", "", "Override the configured model")
}

func NewChatCommand() *cobra.Command {
	f := &ChatFlags{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			// the alt-screen owns the terminal from here on
			closer, err := config.RedirectLogToFile(cfg.DataDir())
			if err != nil {
				return errors.WithMessage(err, "couldn't open debug log")
			}
			defer closer.Close()

			prov, err := provider.FromConfig(cfg)
			if err != nil {
				return errors.WithMessage(err, "couldn't create model provider")
			}
			if f.Model != "" {
				prov.SetModel(f.Model)
			}

			persist, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer persist.Close()

			if cfg.UserID == "" {
				log.Info("no user_id configured, chats will not be saved")
			}

			app := ui.NewAppView(ui.Options{
				Store: conversation.NewStore(persist, auth.Static{UserID: cfg.UserID}),
				Dispatcher: dispatch.New(prov, dispatch.Options{
					SystemPrompt: cfg.SystemPrompt(),
					ToolDelay:    cfg.Chat.ToolDelay.Duration,
					StreamBuffer: cfg.Chat.StreamBuffer,
					Sink:         dispatch.StoreSink{Store: persist},
				}),
				Persist:     persist,
				UserID:      cfg.UserID,
				ChatID:      f.ChatID,
				EventBuffer: cfg.Chat.StreamBuffer,
			})

			p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithMouseCellMotion())
			final, err := p.Run()
			if err != nil {
				return errors.WithMessage(err, "terminal UI failed")
			}
			if av, ok := final.(ui.AppView); ok {
				log.WithField("chat_id", av.ChatID()).Debug("chat closed")
			}
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

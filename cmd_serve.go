package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"horizon/auth"
	"horizon/conversation"
	"horizon/dispatch"
	"horizon/provider"
	"horizon/server"
)

type ServerFlags struct {
	ListenAddr  string
	MetricsAddr string
}

func NewServerFlags() *ServerFlags {
	return &ServerFlags{}
}

func (f *ServerFlags) BindFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.ListenAddr, "listen", f.ListenAddr, "The address to serve the chat API on (default from config, :8080)")
	flagSet.StringVar(&f.MetricsAddr, "listen-metrics", f.MetricsAddr, "The address to serve prometheus metrics on (default from config, :2112)")
}

func NewServeCommand() *cobra.Command {
	f := NewServerFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API, MCP endpoint and metrics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if f.ListenAddr == "" {
				f.ListenAddr = cfg.Server.Listen
			}
			if f.MetricsAddr == "" {
				f.MetricsAddr = cfg.Server.MetricsListen
			}

			prov, err := provider.FromConfig(cfg)
			if err != nil {
				return errors.WithMessage(err, "couldn't create model provider")
			}

			persist, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer persist.Close()

			users := make([]auth.User, 0, len(cfg.Server.Users))
			for _, u := range cfg.Server.Users {
				users = append(users, auth.User{ID: u.ID, TokenHash: u.TokenHash})
			}
			if len(users) == 0 {
				log.Warn("no server users configured, every request is anonymous and nothing is saved")
			}

			srv := server.New(server.Options{
				Listen:  f.ListenAddr,
				Store:   conversation.NewStore(persist, auth.ContextProvider{}),
				Persist: persist,
				Dispatcher: dispatch.New(prov, dispatch.Options{
					SystemPrompt: cfg.SystemPrompt(),
					ToolDelay:    cfg.Chat.ToolDelay.Duration,
					StreamBuffer: cfg.Chat.StreamBuffer,
					Sink:         dispatch.StoreSink{Store: persist},
				}),
				Tokens: auth.NewTokenAuthenticator(users),
			})

			if f.MetricsAddr != "" {
				// Serve our metrics endpoint for prometheus to scrape
				go func() {
					http.Handle("/metrics", promhttp.Handler())
					err := http.ListenAndServe(f.MetricsAddr, nil) //nolint
					if err != nil {
						log.WithError(err).Error("metrics server stopped")
					}
				}()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.WithError(err).Error("error during shutdown")
				}
			}()

			return errors.WithMessage(srv.Serve(), "server failed")
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

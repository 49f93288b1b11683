package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gennadis/apiclient/internal/api"
	"github.com/gennadis/apiclient/internal/auth"
	"github.com/gennadis/apiclient/internal/client"
	"github.com/gennadis/apiclient/internal/config"
	"github.com/gennadis/apiclient/storage"
)

type app struct {
	cfg   *config.Config
	http  *client.Client
	api   *api.Client
	auth  *auth.AuthenticationHandler
	store *storage.Store
}

var (
	envFile string
	verbose bool
	current *app
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "apiclient",
		Short:         "Client for the auth and users API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg := config.FromEnv()
			httpClient, err := client.New(cfg)
			if err != nil {
				slog.Error("Failed to create API client", "base_url", cfg.BaseURL, "error", err)
				return err
			}
			apiClient := api.New(httpClient)

			store, err := storage.Open(cfg.DBPath)
			if err != nil {
				slog.Error("Failed to open storage", "path", cfg.DBPath, "error", err)
				return err
			}
			authHandler := auth.NewAuthenticationHandler(apiClient, store.Tokens)

			current = &app{
				cfg:   cfg,
				http:  httpClient,
				api:   apiClient.WithTokenSource(authHandler),
				auth:  authHandler,
				store: store,
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if current == nil {
				return nil
			}
			return current.store.Close()
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file loaded before reading API_ENDPOINT")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		configCmd(),
		requestCmd(),
		signUpCmd(),
		signInCmd(),
		signOutCmd(),
		refreshCmd(),
		usersCmd(),
		userCmd(),
		updateCmd(),
		secretCmd(),
		notSecretCmd(),
		chatCmd(),
	)
	return root
}

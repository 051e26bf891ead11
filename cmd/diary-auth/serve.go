package main

import (
	"github.com/brizzai/diary-auth/internal/auth"
	"github.com/brizzai/diary-auth/internal/backend"
	"github.com/brizzai/diary-auth/internal/logger"
	"github.com/brizzai/diary-auth/internal/ratelimit"
	"github.com/brizzai/diary-auth/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OAuth exchange server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateServer(); err != nil {
			return err
		}

		app := fx.New(
			fx.Supply(cfg),
			fx.WithLogger(func() fxevent.Logger {
				return &fxevent.ZapLogger{Logger: logger.GetLogger().Named("fx")}
			}),
			backend.Module,
			ratelimit.Module,
			auth.Module,
			server.Module,
		)
		if err := app.Err(); err != nil {
			return err
		}

		logger.Info("Exchange server ready",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
		)
		app.Run()
		return nil
	},
}

func init() {
	serveCmd.Flags().String("host", "", "Host to listen on")
	serveCmd.Flags().Int("port", 0, "Port to listen on")
	serveCmd.Flags().String("session-strategy", "", "Session strategy (magiclink, password, passthrough)")

	rootCmd.AddCommand(serveCmd)
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hostmon/internal/app"
	"hostmon/internal/config"
	"hostmon/internal/ui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:               "hostmon",
		Short:             "Host metrics collector with primary/standby database failover",
		SilenceUsage:      true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("server-id", "", "server identity reported by the read API")
	root.PersistentFlags().String("driver", "", "database driver (pgx or sqlite3)")
	bindFlag(v, root, "LOG_LEVEL", "log-level")
	bindFlag(v, root, "SERVER_ID", "server-id")
	bindFlag(v, root, "DB_DRIVER", "driver")

	root.AddCommand(
		longRunning(v, "collect", "Sample the host every minute and store it", (*app.App).RunCollector),
		withAddr(v, longRunning(v, "serve", "Serve the latest sample over HTTP", (*app.App).RunServer)),
		withAddr(v, longRunning(v, "run", "Collect and serve in one process", (*app.App).Run)),
		statusCmd(v),
		migrateCmd(v),
	)
	return root
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func withAddr(v *viper.Viper, cmd *cobra.Command) *cobra.Command {
	cmd.Flags().String("addr", "", "HTTP listen address")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return v.BindPFlag("HTTP_ADDR", cmd.Flags().Lookup("addr"))
	}
	return cmd
}

func longRunning(v *viper.Viper, use, short string, run func(*app.App, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := setup(v, os.Stdout)
			logger.Info("starting hostmon", "command", use, "driver", cfg.DBDriver,
				"primary", cfg.PrimaryHost, "standby", cfg.StandbyHost, "server_id", cfg.ServerID)
			a, err := app.New(cfg, logger)
			if err != nil {
				logger.Error("init failed", "err", err)
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := run(a, ctx); err != nil {
				logger.Error("shutdown with error", "err", err)
				return err
			}
			logger.Info("hostmon stopped", "command", use)
			return nil
		},
	}
}

func statusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest stored sample",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := setup(v, cmd.ErrOrStderr())
			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderStatus(a.Query().Latest(cmd.Context())))
			return nil
		},
	}
}

func migrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the metrics table on every reachable endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := setup(v, cmd.ErrOrStderr())
			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			roles, err := a.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied to %v\n", roles)
			return nil
		},
	}
}

// setup logs to w; one-shot commands pass stderr so stdout carries only
// their result.
func setup(v *viper.Viper, w io.Writer) (config.Config, *slog.Logger) {
	cfg := config.FromViper(v)
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel}))
	return cfg, logger
}

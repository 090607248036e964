// Command clinsight-server runs the Clinical Insight Assistant API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/and161185/clinical-insight/internal/config"
	"github.com/and161185/clinical-insight/internal/migrate"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "clinsight-server",
		Short:         "Clinical Insight Assistant API server",
		Version:       version + " (" + buildDate + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default ./config.yaml)")

	root.AddCommand(serveCmd(&cfgPath), migrateCmd(&cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd(cfgPath *string) *cobra.Command {
	var dev bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the gRPC health listener",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(viper.New(), *cfgPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, dev)
		},
	}
	cmd.Flags().BoolVar(&dev, "dev", false, "enable gRPC server reflection (dev only)")
	return cmd
}

func migrateCmd(cfgPath *string) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:       "migrate [" + strings.Join(migrate.Commands, "|") + "]",
		Short:     "Run database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: migrate.Commands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			if dsn == "" {
				cfg, err := config.Read(viper.New(), *cfgPath)
				if err != nil {
					return err
				}
				dsn = cfg.Database.DSN
			}
			if dsn == "" {
				return fmt.Errorf("database DSN is required: set --dsn or %s_DATABASE_DSN", config.EnvPrefix)
			}
			if err := migrate.Run(cmd.Context(), dsn, command); err != nil {
				return fmt.Errorf("migrate %s: %w", command, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", command)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN (overrides config)")
	return cmd
}

// Package cli wires configuration, logging and the ETL pipeline into the
// orderetl command.
package cli

import (
	"fmt"

	"github.com/compozy/orderetl/pkg/config"
	"github.com/compozy/orderetl/pkg/logger"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "orderetl.yaml"

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "orderetl",
		Short:             "Load order delivery documents into a relational store",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupGlobalConfig,
	}
	addGlobalFlags(root)
	root.AddCommand(RunCmd(), MigrateCmd(), CheckCmd(), ConfigCmd(), VersionCmd())
	return root
}

func addGlobalFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	f.String("config", defaultConfigFile, "Path to the YAML configuration file")
	f.String("env-file", ".env", "Path to an environment file loaded before configuration")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.Bool("log-json", false, "Emit logs as JSON")
	f.Bool("log-source", false, "Include source locations in logs")
	f.String("log-dir", "", "Directory for per-run log files")
	f.String("db-driver", "", "Store driver (postgres, sqlite)")
	f.String("db-conn-string", "", "Postgres connection string")
	f.String("sqlite-path", "", "SQLite database file")
	f.String("source", "", "Document source (fs, s3)")
	f.String("source-dir", "", "Directory holding order documents")
	f.String("source-pattern", "", "Glob selecting document names")
	f.String("s3-bucket", "", "Bucket holding order documents")
	f.String("s3-prefix", "", "Key prefix holding order documents")
	f.String("notify", "", "Notification driver (smtp, webhook, log, none)")
	f.String("webhook-url", "", "Webhook receiving run reports")
	f.String("metrics-textfile", "", "Write a Prometheus textfile snapshot after each run")
	f.Int("load-retries", 0, "Retries of the whole batch on transient store errors")
}

// setupGlobalConfig loads .env, then configuration with precedence
// defaults < YAML < environment < flags, and stores config and logger in the
// command context.
func setupGlobalConfig(cmd *cobra.Command, _ []string) error {
	if _, err := loadEnvFile(cmd); err != nil {
		return err
	}
	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	flags := make(map[string]any)
	extractCLIFlags(cmd, flags)
	cfg, err := config.NewService().Load(
		cmd.Context(),
		config.NewYAMLProvider(cfgFile),
		config.NewEnvProvider(),
		config.NewCLIProvider(flags),
	)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	_, _, logSource, err := logger.GetLoggerConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.SetupLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogJSON, logSource, cmd.OutOrStdout())
	ctx := config.ContextWithConfig(cmd.Context(), cfg)
	ctx = logger.ContextWithLogger(ctx, log)
	cmd.SetContext(ctx)
	return nil
}

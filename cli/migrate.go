package cli

import (
	"fmt"

	"github.com/compozy/orderetl/engine/infra/repo"
	"github.com/compozy/orderetl/pkg/config"
	"github.com/compozy/orderetl/pkg/logger"
	"github.com/spf13/cobra"
)

// MigrateCmd applies the embedded schema to the configured store.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the order schema in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			if err := repo.NewProvider(&cfg.Database).Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.FromContext(ctx).Info("Schema migrated", "store_driver", cfg.Database.Driver)
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ Schema up to date"))
			return nil
		},
	}
}

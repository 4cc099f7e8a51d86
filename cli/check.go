package cli

import (
	"fmt"

	"github.com/compozy/orderetl/engine/infra/repo"
	"github.com/compozy/orderetl/pkg/config"
	"github.com/compozy/orderetl/pkg/logger"
	"github.com/spf13/cobra"
)

// CheckCmd verifies the configured store accepts connections.
func CheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the configured store is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			if err := repo.NewProvider(&cfg.Database).Check(ctx); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), failStyle.Render("✗ Store unreachable: "+err.Error()))
				return fmt.Errorf("check: %w", err)
			}
			logger.FromContext(ctx).Info("Store reachable", "store_driver", cfg.Database.Driver)
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("✓ Store reachable"))
			return nil
		},
	}
}

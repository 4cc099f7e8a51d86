package cli

import (
	"encoding/json"
	"fmt"

	"github.com/compozy/orderetl/engine/infra/monitoring"
	"github.com/spf13/cobra"
)

// VersionCmd prints the build identity. It skips configuration loading so it
// works without a store or source configured.
func VersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:               "version",
		Short:             "Print build information",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			bi := monitoring.ReadBuildInfo()
			out := cmd.OutOrStdout()
			if asJSON {
				return json.NewEncoder(out).Encode(bi)
			}
			fmt.Fprintf(out, "orderetl %s\n", bi.Version)
			fmt.Fprintln(out, detailStyle.Render(fmt.Sprintf("commit %s, %s", bi.Commit, bi.GoVersion)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"text/tabwriter"

	"github.com/compozy/orderetl/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ConfigCmd groups configuration diagnostics.
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration diagnostics",
	}
	cmd.AddCommand(configShowCmd(), configEnvCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return formatConfigOutput(cmd.OutOrStdout(), config.FromContext(cmd.Context()), format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (json, yaml)")
	return cmd
}

func formatConfigOutput(w io.Writer, cfg *config.Config, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func configEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables recognized by orderetl",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeEnvTable(cmd.OutOrStdout())
		},
	}
}

func writeEnvTable(w io.Writer) error {
	mappings := slices.Clone(config.GenerateEnvMappings())
	sort.SliceStable(mappings, func(i, j int) bool { return mappings[i].EnvVar < mappings[j].EnvVar })
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tCONFIG PATH\tSECRET")
	for _, m := range mappings {
		secret := ""
		if m.Sensitive {
			secret = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", m.EnvVar, m.ConfigPath, secret)
	}
	return tw.Flush()
}

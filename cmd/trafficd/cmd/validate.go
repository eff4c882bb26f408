package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/plexsphere/plexd/internal/topology"
)

var validateTopologyOverride string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a trafficd config and topology document without running",
	Long: "Load and validate the configuration file and the intersection topology\n" +
		"document it references, reporting any error. Exits non-zero on failure,\n" +
		"and otherwise produces no side effects.",
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateTopologyOverride, "topology", "", "topology document path (overrides config)")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := ParseConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("trafficd validate: %w", err)
	}

	topoPath := cfg.TopologyFile
	if validateTopologyOverride != "" {
		topoPath = validateTopologyOverride
	}

	top, err := topology.LoadFile(topoPath)
	if err != nil {
		return fmt.Errorf("trafficd validate: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "config OK: %s\n", cfgFile)
	fmt.Fprintf(cmd.OutOrStdout(), "topology OK: %s (%d directions)\n", topoPath, len(top.Directions()))
	return nil
}

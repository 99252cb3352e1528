package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bmsctl/core/policy"
)

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "Print the mode parameter table",
	RunE:  runModes,
}

func init() {
	rootCmd.AddCommand(modesCmd)
}

func runModes(cmd *cobra.Command, args []string) error {
	cfg, err := loadOrDefault()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	table, err := policy.Load(cfg.Modes)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODE\tCOOLING_THRESHOLD\tMAX_CURRENT\tMAX_TEMP")
	for _, m := range table.Modes() {
		p, _ := table.Get(m)
		fmt.Fprintf(tw, "%s\t%.1f\t%.1f\t%.1f\n", m, p.CoolingThreshold, p.MaxCurrent, p.MaxTemp)
	}
	return tw.Flush()
}

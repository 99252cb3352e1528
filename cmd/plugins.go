package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bmsctl/app/plugins"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List the source, oracle, classifier and sink types compiled in",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := plugins.Catalog()
		kinds := make([]string, 0, len(cat))
		for k := range cat {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", k, strings.Join(cat[k], ", ")); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/core/policy"
	"github.com/kilianp07/bmsctl/core/selector"
)

var decideFlags struct {
	mode    string
	temp    float64
	soc     float64
	current float64
}

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Apply a mode's rules to one prediction and print the decision",
	RunE:  runDecide,
}

func init() {
	f := decideCmd.Flags()
	f.StringVarP(&decideFlags.mode, "mode", "m", "Balanced", "operating mode")
	f.Float64Var(&decideFlags.temp, "temp", 0, "predicted temperature in °C")
	f.Float64Var(&decideFlags.soc, "soc", 0, "predicted state of charge in %")
	f.Float64Var(&decideFlags.current, "current", 40, "requested current in A")
	_ = decideCmd.MarkFlagRequired("temp")
	rootCmd.AddCommand(decideCmd)
}

func runDecide(cmd *cobra.Command, args []string) error {
	cfg, err := loadOrDefault()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	table, err := policy.Load(cfg.Modes)
	if err != nil {
		return err
	}
	m, err := model.ParseMode(decideFlags.mode)
	if err != nil {
		return err
	}
	d, err := selector.New(table).Select(decideFlags.temp, decideFlags.soc, decideFlags.current, m)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

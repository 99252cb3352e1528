package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bmsctl/core/model"
	"github.com/kilianp07/bmsctl/infra/auditlog"
	"github.com/kilianp07/bmsctl/pkg/export"
)

var auditFlags struct {
	path     string
	pack     string
	mode     string
	overTemp bool
	since    time.Duration
	limit    int
	format   string
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print decisions written by a jsonl or sqlite audit-log sink",
	RunE:  runAudit,
}

func init() {
	f := auditCmd.Flags()
	f.StringVar(&auditFlags.path, "path", "decisions.jsonl", "audit log file (.jsonl, .db, .sqlite)")
	f.StringVar(&auditFlags.pack, "pack", "", "only this pack")
	f.StringVarP(&auditFlags.mode, "mode", "m", "", "only this mode")
	f.BoolVar(&auditFlags.overTemp, "over-temp", false, "only decisions carrying an over-temperature warning")
	f.DurationVar(&auditFlags.since, "since", 0, "only decisions newer than this, e.g. 1h")
	f.IntVarP(&auditFlags.limit, "limit", "n", 0, "keep only the last n decisions")
	f.StringVarP(&auditFlags.format, "format", "f", "csv", "output format: csv or json")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	q := auditlog.Query{Pack: auditFlags.pack, OverTempOnly: auditFlags.overTemp, Limit: auditFlags.limit}
	if auditFlags.mode != "" {
		m, err := model.ParseMode(auditFlags.mode)
		if err != nil {
			return err
		}
		q.Mode = &m
	}
	if auditFlags.since > 0 {
		q.Start = time.Now().Add(-auditFlags.since)
	}
	store, err := auditlog.Open(auditFlags.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", auditFlags.path, err)
	}
	defer func() { _ = store.Close() }()
	recs, err := store.Query(context.Background(), q)
	if err != nil {
		return err
	}
	out := make([]model.TickRecord, len(recs))
	for i, r := range recs {
		out[i] = r.TickRecord
	}
	return export.Write(cmd.OutOrStdout(), auditFlags.format, out)
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bmsctl/app"
	"github.com/kilianp07/bmsctl/core/control"
	"github.com/kilianp07/bmsctl/core/sink"
	"github.com/kilianp07/bmsctl/infra/csvsource"
	"github.com/kilianp07/bmsctl/infra/logger"
	"github.com/kilianp07/bmsctl/pkg/export"
)

var replayFlags struct {
	csv     string
	mode    string
	policy  string
	window  int
	format  string
	out     string
	verbose bool
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run the controller over a recorded CSV as fast as possible",
	RunE:  runReplay,
}

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayFlags.csv, "csv", "", "battery telemetry CSV")
	f.StringVarP(&replayFlags.mode, "mode", "m", "", "fixed mode, overrides the config")
	f.StringVar(&replayFlags.policy, "policy", "", "fixed or ai, overrides the config")
	f.IntVar(&replayFlags.window, "window", 0, "feature window size, overrides the config")
	f.StringVarP(&replayFlags.format, "format", "f", "csv", "output format: csv or json")
	f.StringVarP(&replayFlags.out, "out", "o", "-", "output file, - for stdout")
	f.BoolVarP(&replayFlags.verbose, "verbose", "v", false, "also log one line per step")
	_ = replayCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadOrDefault()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if replayFlags.mode != "" {
		cfg.Controller.Mode = replayFlags.mode
	}
	if replayFlags.policy != "" {
		cfg.Controller.Policy = replayFlags.policy
	}
	if replayFlags.window > 0 {
		cfg.Controller.WindowSize = replayFlags.window
	}
	cfg.API.Enabled = false
	cfg.Metrics.Enabled = false

	src, err := csvsource.New(csvsource.Config{Path: replayFlags.csv})
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if replayFlags.out != "-" {
		f, err := os.Create(replayFlags.out)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	out, err := export.NewWriterSink(w, replayFlags.format)
	if err != nil {
		return err
	}
	var snk sink.Sink = out
	if replayFlags.verbose {
		snk = sink.NewMultiSink(out, sink.NewLogSink(logger.New("replay")))
	}

	svc, err := app.New(cfg,
		app.WithSource(src),
		app.WithSink(snk),
		app.WithLoopOptions(control.WithTickPeriod(0)),
	)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()
	if err := svc.Run(ctx); err != nil {
		return err
	}
	st := svc.Loop.Status()
	_, err = fmt.Fprintf(cmd.ErrOrStderr(), "replayed %d samples: %d decisions, %d warnings, %d failures\n",
		st.Ticks, st.Decisions, st.Warnings, st.Failures)
	return err
}

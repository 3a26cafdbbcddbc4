package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/streamtrace/internal/export"
	"github.com/JakeFAU/streamtrace/internal/export/sinks"
	"github.com/JakeFAU/streamtrace/internal/harness"
	"github.com/JakeFAU/streamtrace/internal/stream"
	"github.com/JakeFAU/streamtrace/internal/trace"
)

const hubCloseTimeout = 30 * time.Second

// newRunCmd creates the 'run' subcommand.
func newRunCmd() *cobra.Command {
	var (
		withMetrics bool
		quiet       bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scenario and print the trace",
		Long: `Enqueues the configured number of units as fast as possible, signals end,
and prints every recorded notification once the loop drains. An error
notification with no handler aborts the run with a non-zero exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScenario(cmd, withMetrics, quiet)
		},
	}

	f := cmd.Flags()
	f.Int("units", harness.DefaultUnits, "number of units to enqueue")
	f.String("mode", stream.ModeData.String(), "source consumption mode (data|readable)")
	f.String("encoding", "", "encoding hint attached to every unit")
	f.Int("source-hwm", stream.DefaultHighWaterMark, "source high-water mark")
	f.Int("sink-hwm", stream.DefaultHighWaterMark, "sink high-water mark")
	f.Bool("tolerate-errors", false, "register error handlers so decode failures do not abort the run")
	f.BoolVar(&withMetrics, "metrics", false, "print Prometheus metrics in text exposition format after the run")
	f.BoolVar(&quiet, "quiet", false, "suppress the trace listing")

	return cmd
}

func runScenario(cmd *cobra.Command, withMetrics, quiet bool) error {
	rt, err := runtimeFrom(cmd.Context())
	if err != nil {
		return err
	}
	hc, err := rt.Config.HarnessConfig()
	if err != nil {
		return err
	}
	logger := rt.Logger

	reg := prometheus.NewRegistry()
	consumers := []export.Sink{sinks.NewLogSink(logger.Named("trace"))}
	if withMetrics {
		ps, err := sinks.NewPrometheusSink(reg)
		if err != nil {
			return fmt.Errorf("metrics sink: %w", err)
		}
		consumers = append(consumers, ps)
	}
	hubCfg := rt.Config.ExportConfig()
	hubCfg.Logger = logger.Named("export")
	hub := export.NewHub(hubCfg, consumers...)

	res, runErr := harness.New(hc, logger.Named("harness"), harness.WithEmitter(hub)).Run(cmd.Context())

	exportErr := closeHub(hub, len(res.Records))
	if exportErr != nil {
		logger.Error("Trace export incomplete", zap.Error(exportErr))
	}

	out := cmd.OutOrStdout()
	if !quiet {
		for _, line := range trace.DescribeAll(res.Records) {
			fmt.Fprintln(out, line)
		}
	}
	// Metrics from a partial export would misreport the trace totals.
	if withMetrics && exportErr == nil {
		if err := writeMetrics(out, reg); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if exportErr != nil {
		return exportErr
	}
	if !quiet {
		fmt.Fprintf(out, "run %s: %d units buffered, %d accepted, %d over high-water mark, %d errors\n",
			res.RunID, len(res.Buffer), res.Accepted, res.Rejected, res.Errors)
	}
	return nil
}

// closeHub flushes hub and checks every recorded event reached the sinks.
func closeHub(hub *export.Hub, recorded int) error {
	ctx, cancel := context.WithTimeout(context.Background(), hubCloseTimeout)
	defer cancel()
	if err := hub.Close(ctx); err != nil {
		return fmt.Errorf("close export hub: %w", err)
	}
	if got := hub.Forwarded(); got != int64(recorded) {
		return fmt.Errorf("export hub forwarded %d of %d records", got, recorded)
	}
	return nil
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	return writeFamilies(w, families)
}

func writeFamilies(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if mf.GetName() == "" {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

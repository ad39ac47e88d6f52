package main

import (
	"context"
	"fmt"
	"io"

	"github.com/FranksOps/firstlink/internal/config"
	"github.com/FranksOps/firstlink/internal/report"
	"github.com/FranksOps/firstlink/internal/storage"
	"github.com/FranksOps/firstlink/internal/storage/csvbackend"
	"github.com/FranksOps/firstlink/internal/storage/jsonbackend"
	"github.com/FranksOps/firstlink/internal/storage/postgres"
	"github.com/FranksOps/firstlink/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

type reportOptions struct {
	from   string
	runID  string
	format string
}

func newReportCmd(a *app) *cobra.Command {
	opts := &reportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize a finished run from its output or a mirror",
		Long: `report reads the results of a previous run back from the CSV output or
one of the mirrors and prints a summary. Without --run-id the most recent run
in the mirror is used; the CSV output only ever holds the last run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd.Context(), cmd.OutOrStdout(), a, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.from, "from", "csv", "source: csv, json, sqlite, postgres")
	f.StringVar(&opts.runID, "run-id", "", "run to summarize (mirrors only)")
	f.StringVar(&opts.format, "format", "text", "output format: text, json, yaml, html")
	return cmd
}

func runReport(ctx context.Context, w io.Writer, a *app, opts *reportOptions) error {
	v := a.v
	var (
		backend storage.Backend
		err     error
	)
	switch opts.from {
	case "csv":
		backend, err = csvbackend.Open(v.GetString("output_file"))
	case config.MirrorJSON:
		backend, err = jsonbackend.New(v.GetString("json_file"))
	case config.MirrorSQLite:
		backend, err = sqlite.New(v.GetString("sqlite_dsn"))
	case config.MirrorPostgres:
		dsn := v.GetString("postgres_dsn")
		if dsn == "" {
			return config.ErrMissingPostgresDSN
		}
		backend, err = postgres.New(ctx, dsn)
	default:
		return fmt.Errorf("report: unknown source %q", opts.from)
	}
	if err != nil {
		return err
	}
	defer backend.Close()

	results, err := backend.Query(ctx, storage.Filter{RunID: opts.runID})
	if err != nil {
		return err
	}
	if opts.runID == "" {
		results = latestRun(results)
	}

	summary := report.GenerateSummary(results)
	if opts.from == "csv" {
		summary.OutputFile = v.GetString("output_file")
	}

	switch opts.format {
	case "text":
		return report.WriteText(w, summary)
	case "json":
		return report.WriteJSON(w, summary)
	case "yaml":
		return report.WriteYAML(w, summary)
	case "html":
		return report.WriteHTML(w, summary)
	default:
		return fmt.Errorf("report: unknown format %q", opts.format)
	}
}

// latestRun keeps the results of the last run present. Backends return
// results oldest first.
func latestRun(results []*storage.Result) []*storage.Result {
	if len(results) == 0 {
		return results
	}
	last := results[len(results)-1].RunID
	out := results[:0:0]
	for _, r := range results {
		if r.RunID == last {
			out = append(out, r)
		}
	}
	return out
}

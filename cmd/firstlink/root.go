package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/FranksOps/firstlink/internal/config"
	"github.com/FranksOps/firstlink/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// app holds what PersistentPreRunE resolves for the subcommands.
type app struct {
	configFile string
	envFiles   []string

	v      *viper.Viper
	logger *slog.Logger
	closer io.Closer
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "firstlink",
		Short: "Resolve search queries to their first organic result URL",
		Long: `firstlink reads one query per line from an input file (the first line is a
header), searches each query in order through a single browser session and
writes the first organic result of every query to a query,url CSV file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, a)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default ./firstlink.yaml if present)")
	pf.StringSliceVar(&a.envFiles, "env-file", []string{".env"}, "dotenv files loaded into the environment")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("log-file", "", "also write logs to this file, rotated by size")
	pf.StringP("output", "o", "output.csv", "output CSV file, overwritten each run")
	pf.String("json-file", "results.jsonl", "NDJSON mirror file")
	pf.String("sqlite-dsn", "firstlink.db", "SQLite mirror DSN")
	pf.String("postgres-dsn", "", "Postgres mirror DSN")

	addRunFlags(cmd.Flags())
	cmd.AddCommand(newReportCmd(a))
	return cmd
}

func addRunFlags(f *pflag.FlagSet) {
	f.StringP("input", "i", "inputs.txt", "input file, one query per line after a header line")
	f.IntP("limit", "n", 0, "process only the first N queries (0 = all)")
	f.String("delay", "2s", "delay between query starts, in seconds or as a duration")
	f.Float64("jitter", 0, "random extra delay as a fraction of --delay (0-1)")
	f.String("render-timeout", "10s", "how long to wait for results to render")
	f.StringP("engine", "e", config.EngineChrome, "page engine: chrome, playwright, http")
	f.String("preset", "", "search preset: duckduckgo, duckduckgo-html, google")
	f.String("search-url", "", "override the search results URL")
	f.String("selector", "", "override the first-result CSS selector")
	f.String("user-agent", "", "User-Agent for the session (default: random desktop Chrome)")
	f.Bool("headless", true, "run the browser headless")
	f.String("browser-path", "", "browser executable to launch")
	f.Bool("install-driver", false, "install the playwright driver and browser before starting")
	f.String("fingerprint", "chrome", "TLS fingerprint for the http engine: chrome, firefox, safari, random, go")
	f.Int("metrics-port", 0, "serve Prometheus metrics on this port (0 = off)")
	f.String("summary-format", "none", "print a run summary: none, text, json, yaml")
	f.StringSlice("mirrors", nil, "also write results to: json, sqlite, postgres")
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"log-level":      "log_level",
	"log-format":     "log_format",
	"log-file":       "log_file",
	"input":          "input_file",
	"output":         "output_file",
	"limit":          "limit",
	"delay":          "delay",
	"jitter":         "jitter",
	"render-timeout": "render_timeout",
	"engine":         "engine",
	"preset":         "preset",
	"search-url":     "search_url",
	"selector":       "result_selector",
	"user-agent":     "user_agent",
	"headless":       "headless",
	"browser-path":   "browser_path",
	"install-driver": "install_driver",
	"fingerprint":    "fingerprint",
	"metrics-port":   "metrics_port",
	"summary-format": "summary_format",
	"mirrors":        "mirrors",
	"json-file":      "json_file",
	"sqlite-dsn":     "sqlite_dsn",
	"postgres-dsn":   "postgres_dsn",
}

// close releases the log file. It is safe to call more than once.
func (a *app) close() {
	if a.closer == nil {
		return
	}
	if err := a.closer.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close log:", err)
	}
	a.closer = nil
}

func (a *app) init(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.envFiles...); err != nil {
		return err
	}

	v, err := config.New(a.configFile)
	if err != nil {
		return err
	}
	// Flags only win when set explicitly; otherwise env and file apply.
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}
	a.v = v

	logger, closer, err := logging.New(logging.Options{
		Level:      v.GetString("log_level"),
		Format:     v.GetString("log_format"),
		File:       v.GetString("log_file"),
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 14,
	}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	a.logger = logger
	a.closer = closer
	return nil
}

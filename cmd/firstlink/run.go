package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"

	"github.com/FranksOps/firstlink/internal/browser"
	"github.com/FranksOps/firstlink/internal/config"
	"github.com/FranksOps/firstlink/internal/fingerprint"
	"github.com/FranksOps/firstlink/internal/metrics"
	"github.com/FranksOps/firstlink/internal/pipeline"
	"github.com/FranksOps/firstlink/internal/publish"
	"github.com/FranksOps/firstlink/internal/report"
	"github.com/FranksOps/firstlink/internal/scraper"
	"github.com/FranksOps/firstlink/internal/serp"
	"github.com/FranksOps/firstlink/internal/storage"
	"github.com/FranksOps/firstlink/internal/storage/jsonbackend"
	"github.com/FranksOps/firstlink/internal/storage/postgres"
	"github.com/FranksOps/firstlink/internal/storage/sqlite"
	"github.com/FranksOps/firstlink/pkg/useragent"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// exitInterrupted is the conventional status for a SIGINT-terminated run.
const exitInterrupted = 130

func runScrape(cmd *cobra.Command, a *app) error {
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	logger := a.logger

	runner, err := newRunner(cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopMetrics := context.WithCancel(gctx)
	defer stopMetrics()

	if cfg.MetricsPort > 0 {
		addr := net.JoinHostPort("", strconv.Itoa(cfg.MetricsPort))
		g.Go(func() error {
			// Metrics are best effort and never fail a run.
			if err := metrics.Serve(runCtx, addr, logger); err != nil {
				logger.Warn("metrics server stopped", "addr", addr, "error", err)
			}
			return nil
		})
	}

	var (
		summary report.Summary
		runErr  error
	)
	g.Go(func() error {
		defer stopMetrics()
		summary, runErr = runner.Run(runCtx)
		return nil
	})
	_ = g.Wait()

	if runErr != nil && !errors.Is(runErr, pipeline.ErrInterrupted) {
		logger.Error("run failed", "error", runErr)
		return runErr
	}
	if err := writeSummary(cmd.OutOrStdout(), cfg.SummaryFormat, summary); err != nil {
		logger.Warn("write summary failed", "error", err)
	}
	if runErr != nil {
		return &exitError{code: exitInterrupted, err: runErr}
	}
	return nil
}

func newRunner(cfg config.Config, out io.Writer, logger *slog.Logger) (*pipeline.Runner, error) {
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}

	pcfg := pipeline.Config{
		InputFile:   cfg.InputFile,
		OutputFile:  cfg.OutputFile,
		Limit:       cfg.Limit,
		Delay:       cfg.Delay,
		Jitter:      cfg.Jitter,
		Engine:      cfg.Engine,
		OpenSession: sessionFactory(cfg),
		NewSearcher: func(r browser.Renderer) (serp.Provider, error) {
			return serp.NewEngine(r, engineCfg, logger)
		},
		Mirrors:  mirrors(cfg),
		Progress: report.NewProgress(out, terminalWidth()),
		Logger:   logger,
		OnState: func(s pipeline.State) {
			logger.Debug("state", "state", s.String())
		},
	}

	if cfg.Publish.Enabled() {
		pub, err := publish.New(cfg.Publish)
		if err != nil {
			return nil, err
		}
		pcfg.Publisher = pub
	}
	return pipeline.New(pcfg)
}

// sessionFactory returns the session constructor for the configured engine.
func sessionFactory(cfg config.Config) pipeline.SessionFactory {
	ua := useragent.NewPool(nil).Choose(cfg.UserAgent)
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Headless
	opts.UserAgent = ua
	opts.ExecPath = cfg.BrowserPath
	opts.InstallDriver = cfg.InstallDriver

	switch cfg.Engine {
	case config.EnginePlaywright:
		return func(context.Context) (browser.Renderer, error) {
			return browser.NewPlaywright(opts)
		}
	case config.EngineHTTP:
		return func(context.Context) (browser.Renderer, error) {
			profile, err := fingerprint.ParseProfile(cfg.Fingerprint)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", browser.ErrStart, err)
			}
			return scraper.NewFetcher(scraper.FetchConfig{
				Timeout:      cfg.RenderTimeout,
				MaxRedirects: 5,
				UseCookieJar: true,
				UserAgent:    ua,
				Fingerprint:  profile,
			})
		}
	default:
		return func(ctx context.Context) (browser.Renderer, error) {
			return browser.NewChrome(ctx, opts)
		}
	}
}

func mirrors(cfg config.Config) []pipeline.Mirror {
	var out []pipeline.Mirror
	for _, name := range cfg.Mirrors {
		switch name {
		case config.MirrorJSON:
			path := cfg.JSONFile
			out = append(out, pipeline.Mirror{Name: name, Open: func(context.Context) (storage.Backend, error) {
				return jsonbackend.New(path)
			}})
		case config.MirrorSQLite:
			dsn := cfg.SQLiteDSN
			out = append(out, pipeline.Mirror{Name: name, Open: func(context.Context) (storage.Backend, error) {
				return sqlite.New(dsn)
			}})
		case config.MirrorPostgres:
			dsn := cfg.PostgresDSN
			out = append(out, pipeline.Mirror{Name: name, Open: func(ctx context.Context) (storage.Backend, error) {
				return postgres.New(ctx, dsn)
			}})
		}
	}
	return out
}

func writeSummary(w io.Writer, format string, summary report.Summary) error {
	switch format {
	case "text":
		return report.WriteText(w, summary)
	case "json":
		return report.WriteJSON(w, summary)
	case "yaml":
		return report.WriteYAML(w, summary)
	default:
		return nil
	}
}

// terminalWidth reads COLUMNS; zero leaves progress lines untruncated.
func terminalWidth() int {
	n, err := strconv.Atoi(os.Getenv("COLUMNS"))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

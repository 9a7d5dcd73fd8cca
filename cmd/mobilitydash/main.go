package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/lox/mobilitydash/internal/config"
	"github.com/lox/mobilitydash/internal/ingest"
	"github.com/lox/mobilitydash/internal/logging"
	"github.com/lox/mobilitydash/internal/store"
)

// Globals are flags shared by every command. Unset flags fall back to the
// MOBILITY_* environment.
type Globals struct {
	EnvFile  string `name:"env-file" default:".env" help:"Load environment variables from this file if it exists."`
	Source   string `short:"s" help:"Dataset source: CSV/XLSX path or URL, or a SQLite snapshot (overrides MOBILITY_SOURCE)."`
	LogLevel string `name:"log-level" help:"debug, info, warn or error (overrides MOBILITY_LOG_LEVEL)."`
}

type CLI struct {
	Globals

	Serve    ServeCmd    `cmd:"" default:"1" help:"Load the dataset and serve the dashboard."`
	Filter   FilterCmd   `cmd:"" help:"Print filtered rows as CSV."`
	Chart    ChartCmd    `cmd:"" help:"Render a metric for the selection as PNG."`
	Export   ExportCmd   `cmd:"" help:"Write filtered rows to an .xlsx workbook."`
	Snapshot SnapshotCmd `cmd:"" help:"Copy a CSV or XLSX source, unmodified, into a SQLite snapshot."`
	Catalog  CatalogCmd  `cmd:"" help:"List metric families and labels."`
}

// env is what every command needs after flags and environment are merged.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	loader *ingest.Loader
	cache  *store.Cache
}

func (g *Globals) setup() (*env, error) {
	if err := config.LoadEnvFile(g.EnvFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if g.Source != "" {
		cfg.Source = g.Source
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	loader := ingest.NewLoader(logger,
		ingest.WithTimeout(cfg.LoadTimeout),
		ingest.WithMaxElapsed(cfg.FetchMaxElapsed),
		ingest.WithFTPCredentials(cfg.FTPUser, cfg.FTPPassword),
	)
	return &env{
		cfg:    cfg,
		logger: logger,
		loader: loader,
		cache:  store.NewCache(loader.Load),
	}, nil
}

// table loads the configured source once.
func (e *env) table(ctx context.Context) (*store.Table, error) {
	return e.cache.Get(ctx, e.cfg.Source)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("mobilitydash"),
		kong.Description("Regional mobility dashboard."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli.Globals); err != nil {
		slog.Error("command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}

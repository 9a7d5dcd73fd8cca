package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/lox/mobilitydash/internal/api"
	"github.com/lox/mobilitydash/internal/catalog"
	"github.com/lox/mobilitydash/internal/charts"
	"github.com/lox/mobilitydash/internal/export"
	"github.com/lox/mobilitydash/internal/models"
	"github.com/lox/mobilitydash/internal/store"
)

type ServeCmd struct {
	Addr string `help:"Listen address (overrides MOBILITY_ADDR)."`
}

func (c *ServeCmd) Run(g *Globals) error {
	e, err := g.setup()
	if err != nil {
		return err
	}
	if c.Addr != "" {
		e.cfg.Addr = c.Addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// A dashboard without data is useless; fail before listening.
	if _, err := e.table(ctx); err != nil {
		return fmt.Errorf("load %s: %w", e.cfg.Source, err)
	}

	server := api.NewServer(e.cache, e.logger, api.Config{
		Source:            e.cfg.Source,
		DefaultLocalities: e.cfg.Localities(),
	})
	return server.Run(ctx, e.cfg.Addr, e.cfg.ShutdownTimeout)
}

// SelectionFlags are the filter inputs shared by filter, chart and export.
type SelectionFlags struct {
	Locality []string `short:"l" sep:"none" help:"Locality key, repeatable. Defaults to MOBILITY_DEFAULT_LOCALITIES."`
	Start    string   `help:"Exclusive lower date bound (YYYY-MM-DD). Defaults to the first date in the data."`
	End      string   `help:"Exclusive upper date bound (YYYY-MM-DD). Defaults to the last date in the data."`
}

func (f SelectionFlags) query(e *env, tbl *store.Table) (store.Query, error) {
	q := store.Query{
		Localities: f.Locality,
		Start:      tbl.MinDate(),
		End:        tbl.MaxDate(),
	}
	if len(q.Localities) == 0 {
		q.Localities = e.cfg.Localities()
	}
	var err error
	if f.Start != "" {
		if q.Start, err = models.ParseDay(f.Start); err != nil {
			return q, fmt.Errorf("--start: %w", err)
		}
	}
	if f.End != "" {
		if q.End, err = models.ParseDay(f.End); err != nil {
			return q, fmt.Errorf("--end: %w", err)
		}
	}
	return q, nil
}

// filtered runs setup, load and filter for the selection commands.
func filtered(g *Globals, sel SelectionFlags) (*env, []models.Record, error) {
	e, err := g.setup()
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tbl, err := e.table(ctx)
	if err != nil {
		return nil, nil, err
	}
	q, err := sel.query(e, tbl)
	if err != nil {
		return nil, nil, err
	}
	rows := tbl.Filter(q)
	e.logger.Debug("filtered", "localities", len(q.Localities), "rows", len(rows))
	return e, rows, nil
}

type FilterCmd struct {
	SelectionFlags `embed:""`
}

func (c *FilterCmd) Run(g *Globals) error {
	_, rows, err := filtered(g, c.SelectionFlags)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(os.Stdout)
	if err := export.WriteCSV(w, rows); err != nil {
		return err
	}
	return w.Flush()
}

type ChartCmd struct {
	SelectionFlags `embed:""`

	Metric string `short:"m" default:"all_day_bing_tiles_visited_relative_change" help:"Metric column id."`
	Out    string `short:"o" default:"chart.png" help:"Output PNG path."`
	Width  int    `default:"1024" help:"Image width in pixels."`
	Height int    `default:"480" help:"Image height in pixels."`
}

func (c *ChartCmd) Run(g *Globals) error {
	metric, err := catalog.Parse(c.Metric)
	if err != nil {
		return err
	}
	e, rows, err := filtered(g, c.SelectionFlags)
	if err != nil {
		return err
	}

	f, err := os.Create(c.Out)
	if err != nil {
		return err
	}
	if err := charts.RenderPNG(f, charts.Build(rows, metric), c.Width, c.Height); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	e.logger.Info("chart written", "path", c.Out, "metric", metric.Column(), "rows", len(rows))
	return nil
}

type ExportCmd struct {
	SelectionFlags `embed:""`

	Out string `short:"o" default:"mobility.xlsx" help:"Output workbook path."`
}

func (c *ExportCmd) Run(g *Globals) error {
	e, rows, err := filtered(g, c.SelectionFlags)
	if err != nil {
		return err
	}
	f, err := os.Create(c.Out)
	if err != nil {
		return err
	}
	if err := export.WriteXLSX(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	e.logger.Info("workbook written", "path", c.Out, "rows", len(rows))
	return nil
}

type SnapshotCmd struct {
	Out string `short:"o" required:"" help:"SQLite file to write; usable later as a source."`
}

func (c *SnapshotCmd) Run(g *Globals) error {
	e, err := g.setup()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Validate the source parses before copying it anywhere.
	if _, err := e.table(ctx); err != nil {
		return err
	}
	header, rows, err := e.loader.ReadRaw(ctx, e.cfg.Source)
	if err != nil {
		return err
	}

	db, err := store.OpenSQLite(c.Out)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.New(db, e.logger)
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := st.ReplaceRaw(ctx, e.cfg.Source, header, rows); err != nil {
		return err
	}
	e.logger.Info("snapshot written", "path", c.Out, "source", e.cfg.Source, "rows", len(rows))
	return nil
}

type CatalogCmd struct{}

func (c *CatalogCmd) Run(g *Globals) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FAMILY\tCOLUMN\tLABEL\tSCALED")
	for _, e := range catalog.Entries() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", e.Family, e.Column, e.Label, e.ID.Percentage())
	}
	return tw.Flush()
}

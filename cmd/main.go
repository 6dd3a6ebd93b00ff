package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"parcelmap/internal/cadastre"
	"parcelmap/internal/config"
	"parcelmap/internal/logging"
	"parcelmap/internal/projection"
	"parcelmap/internal/render"
	"parcelmap/internal/types"
)

const usage = `Usage: parcelmap [flags] PARCEL_ID...

Builds a PDF report of cadastral parcels with their built and unbuilt areas.
PARCEL_ID is the 14-character identifier, e.g. 75056000AB0012.

Flags:
`

func main() {
	fs := config.Flags()
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, fs.Args()); err != nil {
		slog.Error("report failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	project, err := projection.Engine(cfg.Projection.Engine)
	if err != nil {
		return err
	}

	cache, closeCache, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer closeCache()

	client := cadastre.New(cfg.Cadastre.BaseURL, cfg.Cadastre.Timeout, cache)
	client.Concurrency = cfg.Cadastre.Concurrency

	runID := uuid.NewString()
	level := Level(cfg.Report.Level)
	slog.Info("report started", "run", runID, "level", level, "parcels", len(ids))

	fetchStart := time.Now()
	lk, err := client.Lookup(ctx, ids, level.needsBuildings())
	if err != nil {
		return err
	}
	fmt.Printf("Fetched %d parcels and %d buildings in %v\n",
		len(lk.Parcels), len(lk.Buildings), time.Since(fetchStart).Truncate(time.Millisecond))

	page, err := render.PageSize(cfg.Report.Page)
	if err != nil {
		return err
	}
	opt := level.renderOptions()
	opt.Page = page
	opt.RunID = runID
	opt.Date = time.Now()

	rep, err := buildReport(ctx, lk, level, project, cfg.Report.Margin, render.MapFrame(page, opt))
	if err != nil {
		return err
	}
	printSurfaces(os.Stdout, rep, term.IsTerminal(int(os.Stdout.Fd())))

	if err := writePDF(cfg.Report.Output, rep, opt); err != nil {
		return err
	}
	fmt.Printf("Report written: %s (%s)\n", cfg.Report.Output, level)

	if cfg.Report.Shapefile != "" {
		if err := writeShapefile(cfg.Report.Shapefile, rep); err != nil {
			return err
		}
	}

	// The PDF is already on disk; a failed archive is reported but not fatal.
	if cfg.Database.Enabled && len(rep.Surfaces) > 0 {
		if err := archive(ctx, cfg.Database, runID, rep); err != nil {
			slog.Warn("archive failed", "run", runID, "error", err)
		}
	}
	return nil
}

// parseIDs validates every argument and reports all bad ones together.
// Duplicates are dropped.
func parseIDs(args []string) ([]types.ParcelID, error) {
	var ids []types.ParcelID
	var bad []string
	seen := make(map[types.ParcelID]bool)
	for _, a := range args {
		id, err := types.ParseParcelID(a)
		if err != nil {
			bad = append(bad, err.Error())
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("invalid parcel identifiers:\n  - %s", strings.Join(bad, "\n  - "))
	}
	return ids, nil
}

// newCache picks the layer cache: redis when configured, else a directory,
// else none.
func newCache(ctx context.Context, cfg config.CacheConfig) (cadastre.Cache, func(), error) {
	switch {
	case cfg.RedisURL != "":
		rc, err := cadastre.NewRedisCache(ctx, cfg.RedisURL, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { rc.Close() }, nil
	case cfg.Dir != "":
		return &cadastre.DirCache{Dir: cfg.Dir, TTL: cfg.TTL}, func() {}, nil
	default:
		return nil, func() {}, nil
	}
}

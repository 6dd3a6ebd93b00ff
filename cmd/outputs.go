package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"parcelmap/internal/config"
	"parcelmap/internal/database"
	"parcelmap/internal/export"
	"parcelmap/internal/geo"
	"parcelmap/internal/render"
	"parcelmap/internal/types"
)

const (
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorReset = "\033[0m"
)

// denseOccupancy is the occupancy rate (%) printed in red.
const denseOccupancy = 60.0

// writePDF renders the report to path, going through a temporary file so a
// failed render never leaves a truncated PDF behind.
func writePDF(path string, r *report, opt render.Options) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".parcelmap-*.pdf")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	err = render.WritePDF(tmp, render.Report{
		Parcels:       r.Parcels,
		Intersections: r.flatIntersections(),
		Surfaces:      r.Surfaces,
		Transform:     r.Transform,
	}, opt)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

func writeShapefile(path string, r *report) error {
	n, err := export.WriteShapefile(path, export.Features(r.Parcels, r.Intersections, r.Surfaces))
	if err != nil {
		return err
	}
	fmt.Printf("Shapefile written: %s (%d features)\n", path, n)
	return nil
}

// archive stores the surfaces in Oracle. At the dossier level the previous
// runs of each parcel are listed first.
func archive(ctx context.Context, cfg config.DatabaseConfig, runID string, r *report) error {
	db, err := database.NewDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if r.Level >= LevelDossier {
		for _, s := range r.Surfaces {
			history, err := db.QueryParcelHistory(ctx, s.ID)
			if err != nil {
				slog.Warn("parcel history unavailable", "parcel", s.ID, "error", err)
				continue
			}
			printHistory(os.Stdout, s, history)
		}
	}
	return db.ArchiveSurfaces(ctx, runID, r.Surfaces)
}

// printSurfaces prints the parcel summary in a readable layout.
func printSurfaces(w io.Writer, r *report, color bool) {
	paint := func(c, s string) string {
		if !color {
			return s
		}
		return c + s + colorReset
	}

	fmt.Fprintln(w, strings.Repeat("-", 80))
	if len(r.Surfaces) == 0 {
		for _, p := range r.Parcels {
			fmt.Fprintf(w, "%-16s | Section %-2s No %-4s | %10.0f m²\n", p.ID, p.ID.Section(), p.ID.Number(), geo.TotalArea(p))
		}
		fmt.Fprintln(w, strings.Repeat("-", 80))
		return
	}

	var sum types.SurfaceRecord
	for _, s := range r.Surfaces {
		rate := fmt.Sprintf("%5.1f %%", s.OccupancyRate)
		if s.OccupancyRate >= denseOccupancy {
			rate = paint(colorRed, rate)
		} else if s.BuiltArea == 0 {
			rate = paint(colorGreen, rate)
		}
		fmt.Fprintf(w, "%-16s | Total %10.0f m² | Built %9.0f m² | Unbuilt %9.0f m² | %s\n",
			s.ID, s.TotalArea, s.BuiltArea, s.UnbuiltArea, rate)
		sum.TotalArea += s.TotalArea
		sum.BuiltArea += s.BuiltArea
		sum.UnbuiltArea += s.UnbuiltArea
	}
	if len(r.Surfaces) > 1 {
		if sum.TotalArea > 0 {
			sum.OccupancyRate = sum.BuiltArea / sum.TotalArea * 100
		}
		fmt.Fprintf(w, "%-16s | Total %10.0f m² | Built %9.0f m² | Unbuilt %9.0f m² | %5.1f %%\n",
			"TOTAL", sum.TotalArea, sum.BuiltArea, sum.UnbuiltArea, sum.OccupancyRate)
	}
	if r.Skipped > 0 {
		fmt.Fprintf(w, "[Note] %d building(s) could not be intersected and were left out\n", r.Skipped)
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))
}

func printHistory(w io.Writer, cur types.SurfaceRecord, history []database.ArchivedSurface) {
	if len(history) == 0 {
		return
	}
	fmt.Fprintf(w, "History of %s:\n", cur.ID)
	for _, h := range history {
		fmt.Fprintf(w, "  %s | Built %9.0f m² | %5.1f %% | run %s\n",
			h.CreatedAt.Format(time.DateOnly), h.Record.BuiltArea, h.Record.OccupancyRate, h.RunID)
	}
}

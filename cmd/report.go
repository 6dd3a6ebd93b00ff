package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/errgroup"

	"parcelmap/internal/cadastre"
	"parcelmap/internal/geo"
	"parcelmap/internal/projection"
	"parcelmap/internal/render"
	"parcelmap/internal/spatial"
	"parcelmap/internal/types"
)

// report is everything computed for one run, ready for the output writers.
type report struct {
	Level         Level
	Parcels       []types.Parcel
	Surfaces      []types.SurfaceRecord // empty below LevelBuildings
	Intersections [][]orb.MultiPolygon  // per parcel
	Skipped       int                   // malformed or failed buildings
	Bbox          geo.BoundingBox
	Transform     geo.GeoToPageTransform
}

// buildReport computes surfaces and the page transform for the looked-up parcels.
func buildReport(ctx context.Context, lk *cadastre.Lookup, level Level, project projection.Projector, margin float64, frame render.Frame) (*report, error) {
	r := &report{Level: level, Parcels: lk.Parcels}

	if level.needsBuildings() {
		start := time.Now()
		if err := r.computeSurfaces(ctx, spatial.NewIndex(lk.Buildings)); err != nil {
			return nil, err
		}
		slog.Info("built areas computed",
			"parcels", len(r.Parcels), "buildings", len(lk.Buildings),
			"skipped", r.Skipped, "elapsed", time.Since(start).Truncate(time.Millisecond))
	}

	geoms := make([]orb.MultiPolygon, 0, len(r.Parcels))
	for _, p := range r.Parcels {
		geoms = append(geoms, p.Geometry)
	}
	bbox, err := geo.CheckedBbox(geoms...)
	if err != nil {
		return nil, fmt.Errorf("parcel extent: %w", err)
	}
	r.Bbox = geo.ExpandBbox(bbox, margin)
	r.Transform, err = geo.CheckedTransform(project, r.Bbox, frame.W, frame.H)
	if err != nil {
		return nil, fmt.Errorf("page transform: %w", err)
	}
	return r, nil
}

// computeSurfaces intersects every parcel with the buildings near it. Parcels
// are independent and run in parallel.
func (r *report) computeSurfaces(ctx context.Context, idx *spatial.Index) error {
	r.Surfaces = make([]types.SurfaceRecord, len(r.Parcels))
	r.Intersections = make([][]orb.MultiPolygon, len(r.Parcels))
	skipped := make([]int, len(r.Parcels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, p := range r.Parcels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidates := idx.Candidates(p.Geometry.Bound())
			footprints := make([]orb.MultiPolygon, len(candidates))
			for j, b := range candidates {
				footprints[j] = b.Geometry
			}

			built := geo.ComputeBuiltArea(p.Geometry, footprints)
			for _, o := range built.Outcomes {
				if o.Skipped() && !errors.Is(o.Err, geo.ErrNoOverlap) {
					skipped[i]++
					slog.Debug("building skipped", "parcel", p.ID, "building", o.Index, "reason", o.Err)
				}
			}
			r.Surfaces[i] = geo.Surface(p.ID, geo.TotalArea(p), built.Area)
			r.Intersections[i] = built.Intersections
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, n := range skipped {
		r.Skipped += n
	}
	return nil
}

// flatIntersections lists every intersection polygon of every parcel.
func (r *report) flatIntersections() []orb.MultiPolygon {
	var out []orb.MultiPolygon
	for _, mps := range r.Intersections {
		out = append(out, mps...)
	}
	return out
}

// Package cadastre downloads commune-level parcel and building layers from
// the Etalab cadastre distribution.
package cadastre

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"parcelmap/internal/types"
)

// DefaultBaseURL serves cadastre-{insee}-{layer}.json.gz per department/commune.
const DefaultBaseURL = "https://cadastre.data.gouv.fr/data/etalab-cadastre/latest/geojson/communes"

// ErrNotFound is returned for a missing commune layer or parcel.
var ErrNotFound = errors.New("not found")

const (
	layerParcels   = "parcelles"
	layerBuildings = "batiments"
)

// Client fetches cadastre layers. Responses are cached raw (gzip) when Cache is set.
type Client struct {
	BaseURL     string
	HTTP        *http.Client
	Cache       Cache
	Concurrency int
}

// New returns a client with a per-request timeout.
func New(baseURL string, timeout time.Duration, cache Cache) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		HTTP:        &http.Client{Timeout: timeout},
		Cache:       cache,
		Concurrency: 4,
	}
}

func (c *Client) layerURL(dep, insee, layer string) string {
	return fmt.Sprintf("%s/%s/%s/cadastre-%s-%s.json.gz", c.BaseURL, dep, insee, insee, layer)
}

// Parcels returns every parcel of the commune.
func (c *Client) Parcels(ctx context.Context, dep, insee string) ([]types.Parcel, error) {
	fc, err := c.layer(ctx, dep, insee, layerParcels)
	if err != nil {
		return nil, err
	}

	parcels := make([]types.Parcel, 0, len(fc.Features))
	for _, f := range fc.Features {
		mp, ok := asMultiPolygon(f.Geometry)
		if !ok {
			continue
		}
		id, err := types.ParseParcelID(f.Properties.MustString("id", ""))
		if err != nil {
			slog.Debug("skipping parcel feature", "commune", insee, "error", err)
			continue
		}
		parcels = append(parcels, types.Parcel{
			ID:         id,
			Commune:    f.Properties.MustString("commune", insee),
			Section:    f.Properties.MustString("section", id.Section()),
			Number:     f.Properties.MustString("numero", id.Number()),
			Contenance: f.Properties.MustFloat64("contenance", 0),
			Geometry:   mp,
		})
	}
	return parcels, nil
}

// Buildings returns every building footprint of the commune.
func (c *Client) Buildings(ctx context.Context, dep, insee string) ([]types.Building, error) {
	fc, err := c.layer(ctx, dep, insee, layerBuildings)
	if err != nil {
		return nil, err
	}

	buildings := make([]types.Building, 0, len(fc.Features))
	for _, f := range fc.Features {
		mp, ok := asMultiPolygon(f.Geometry)
		if !ok {
			continue
		}
		buildings = append(buildings, types.Building{
			Type:     f.Properties.MustString("type", ""),
			Geometry: mp,
		})
	}
	return buildings, nil
}

// Lookup is the geometry needed for one report.
type Lookup struct {
	Parcels   []types.Parcel   // in request order
	Buildings []types.Building // every building of every commune involved
}

// Lookup fetches the requested parcels and, when withBuildings is set, the
// buildings of their communes. Each commune is downloaded once; downloads run
// concurrently.
func (c *Client) Lookup(ctx context.Context, ids []types.ParcelID, withBuildings bool) (*Lookup, error) {
	communes := make(map[string]string) // insee -> department
	var order []string
	for _, id := range ids {
		if _, ok := communes[id.Commune()]; !ok {
			communes[id.Commune()] = id.Department()
			order = append(order, id.Commune())
		}
	}

	var (
		mu        sync.Mutex
		byID      = make(map[types.ParcelID]types.Parcel)
		buildings = make(map[string][]types.Building)
	)

	g, gctx := errgroup.WithContext(ctx)
	if c.Concurrency > 0 {
		g.SetLimit(c.Concurrency)
	}
	for _, insee := range order {
		dep := communes[insee]
		g.Go(func() error {
			parcels, err := c.Parcels(gctx, dep, insee)
			if err != nil {
				return fmt.Errorf("parcels of %s: %w", insee, err)
			}
			mu.Lock()
			for _, p := range parcels {
				byID[p.ID] = p
			}
			mu.Unlock()
			return nil
		})
		if !withBuildings {
			continue
		}
		g.Go(func() error {
			bs, err := c.Buildings(gctx, dep, insee)
			if err != nil {
				return fmt.Errorf("buildings of %s: %w", insee, err)
			}
			mu.Lock()
			buildings[insee] = bs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Lookup{Parcels: make([]types.Parcel, 0, len(ids))}
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("parcel %s: %w", id, ErrNotFound)
		}
		res.Parcels = append(res.Parcels, p)
	}
	for _, insee := range order {
		res.Buildings = append(res.Buildings, buildings[insee]...)
	}
	return res, nil
}

func (c *Client) layer(ctx context.Context, dep, insee, layer string) (*geojson.FeatureCollection, error) {
	url := c.layerURL(dep, insee, layer)
	raw, err := c.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	fc, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", url, err)
	}
	return fc, nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	if c.Cache != nil {
		if data, ok, err := c.Cache.Get(ctx, url); err != nil {
			slog.Warn("cache read failed", "url", url, "error", err)
		} else if ok {
			slog.Debug("cache hit", "url", url)
			return data, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("get %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	slog.Debug("downloaded", "url", url, "bytes", len(data), "elapsed", time.Since(start))

	if c.Cache != nil {
		if err := c.Cache.Set(ctx, url, data); err != nil {
			slog.Warn("cache write failed", "url", url, "error", err)
		}
	}
	return data, nil
}

// decode accepts gzip-compressed or plain GeoJSON.
func decode(raw []byte) (*geojson.FeatureCollection, error) {
	body := raw
	if len(raw) > 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		if body, err = io.ReadAll(zr); err != nil {
			return nil, err
		}
	}
	return geojson.UnmarshalFeatureCollection(body)
}

func asMultiPolygon(g orb.Geometry) (orb.MultiPolygon, bool) {
	switch g := g.(type) {
	case orb.Polygon:
		return orb.MultiPolygon{g}, true
	case orb.MultiPolygon:
		return g, true
	default:
		return nil, false
	}
}

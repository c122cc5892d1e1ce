// Package worker drains one lane of tile tasks: filter, fetch,
// georeference. Workers share nothing but the fetch client and the
// tile cache, both safe for concurrent use.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"tilemosaic/internal/cache"
	"tilemosaic/internal/fetch"
	"tilemosaic/internal/geometry"
	"tilemosaic/internal/mosaic"
	"tilemosaic/internal/observability"
	"tilemosaic/internal/partition"
	"tilemosaic/internal/tiler"
)

// Result summarizes one lane's run.
type Result struct {
	// RasterPaths are the georeferenced tiles this lane produced, in
	// task order.
	RasterPaths []string
	Fetched     int
	Skipped     int
	Failed      int
}

// Config wires a worker's collaborators. Cache, Metrics and Filter are
// optional.
type Config struct {
	Convention tiler.Convention
	Client     *fetch.Client
	Engine     *mosaic.Engine
	Cache      *cache.TileCache
	Metrics    *observability.Metrics
	// Filter skips tiles whose bounds do not intersect it; nil keeps
	// every tile.
	Filter orb.Geometry
	// Endpoint names the tile source in cache keys.
	Endpoint string
	Logger   *slog.Logger
}

type Worker struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{cfg: cfg, logger: logger}
}

// Run processes the lane in order. A failing task is logged and
// counted but never aborts the lane; only context cancellation stops a
// run early, checked at the top of every iteration.
func (w *Worker) Run(ctx context.Context, lane []partition.TileTask) (Result, error) {
	var res Result
	for _, task := range lane {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		bounds := w.cfg.Convention.TileBounds(task.X, task.Y, task.Zoom)
		if !geometry.Intersects(bounds, w.cfg.Filter) {
			w.cfg.Metrics.TileSkipped()
			res.Skipped++
			continue
		}

		if err := w.obtain(ctx, task); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			w.logger.Error("tile unavailable",
				"x", task.X, "y", task.Y, "zoom", task.Zoom, "error", err)
			w.cfg.Metrics.TileFailed()
			res.Failed++
			continue
		}

		rasterPath, err := w.cfg.Engine.Georeference(
			task.Path, bounds, w.cfg.Convention.ProjectionID())
		if err != nil {
			w.logger.Error("georeferencing failed", "path", task.Path, "error", err)
			w.cfg.Metrics.TileFailed()
			res.Failed++
			continue
		}

		res.RasterPaths = append(res.RasterPaths, rasterPath)
		res.Fetched++
	}
	return res, nil
}

// obtain places the raw tile image at task.Path, from the cache when
// possible, otherwise over HTTP. A fresh fetch populates the cache.
func (w *Worker) obtain(ctx context.Context, task partition.TileTask) error {
	format := strings.TrimPrefix(filepath.Ext(task.Path), ".")
	key := cache.Key(w.cfg.Endpoint, task.Zoom, task.X, task.Y, format)

	if data, ok := w.cfg.Cache.Get(key); ok {
		if _, err := os.Stat(task.Path); err == nil {
			return nil
		}
		return os.WriteFile(task.Path, data, 0o644)
	}

	start := time.Now()
	if err := w.cfg.Client.Fetch(ctx, task.URI, task.Path); err != nil {
		return err
	}
	w.cfg.Metrics.TileFetched(time.Since(start))

	if w.cfg.Cache != nil {
		data, err := os.ReadFile(task.Path)
		if err == nil {
			if err := w.cfg.Cache.Set(key, data); err != nil {
				w.logger.Warn("caching tile failed", "key", key, "error", err)
			}
		}
	}
	return nil
}

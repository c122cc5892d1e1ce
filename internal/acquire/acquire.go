// Package acquire orchestrates a full acquisition: enumerate tiles over
// an area of interest, fan the work out across lanes, and merge the
// results into one mosaic.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tilemosaic/internal/cache"
	"tilemosaic/internal/endpoint"
	"tilemosaic/internal/fetch"
	"tilemosaic/internal/geometry"
	"tilemosaic/internal/mosaic"
	"tilemosaic/internal/naming"
	"tilemosaic/internal/observability"
	"tilemosaic/internal/partition"
	"tilemosaic/internal/tiler"
	"tilemosaic/internal/worker"
)

// Options tunes an Orchestrator. Zero values select the defaults: one
// lane, no cache, no metrics.
type Options struct {
	Threads int
	Fetch   fetch.Options
	Cache   *cache.TileCache
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Orchestrator runs acquisitions against one endpoint definition.
type Orchestrator struct {
	def     endpoint.Definition
	conv    tiler.Convention
	client  *fetch.Client
	engine  *mosaic.Engine
	cache   *cache.TileCache
	metrics *observability.Metrics
	threads int
	logger  *slog.Logger
}

// New builds an orchestrator for def.
func New(def endpoint.Definition, opts Options) (*Orchestrator, error) {
	conv, err := tiler.ForName(def.Convention)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", def.Type, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threads := opts.Threads
	if threads < 1 {
		threads = 1
	}

	fetchOpts := opts.Fetch
	if fetchOpts.MaxAttempts == 0 && fetchOpts.MaxBackoff == 0 && fetchOpts.Timeout == 0 {
		fetchOpts = fetch.DefaultOptions()
	}
	fetchOpts.Credentials = def.Credentials
	metrics := opts.Metrics
	if fetchOpts.OnRetry == nil {
		fetchOpts.OnRetry = func(int) { metrics.FetchRetried() }
	}

	return &Orchestrator{
		def:     def,
		conv:    conv,
		client:  fetch.NewClient(fetchOpts, logger),
		engine:  mosaic.NewEngine(logger),
		cache:   opts.Cache,
		metrics: metrics,
		threads: threads,
		logger:  logger,
	}, nil
}

// Process acquires every tile covering aoi at zoom and merges them into
// a mosaic at outputPath. Intermediate tile artifacts live in a sibling
// working directory and are removed after a successful merge; a failed
// merge leaves them in place for inspection.
func (o *Orchestrator) Process(ctx context.Context, aoi *geometry.AreaOfInterest, zoom int, outputPath string) error {
	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID, "aoi", aoi.Name)

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tileDir := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + "_tiles"
	if err := os.MkdirAll(tileDir, 0o755); err != nil {
		return fmt.Errorf("creating tile directory: %w", err)
	}

	rng, err := partition.RangeForBounds(o.conv, aoi.BoundsBox(), zoom)
	if err != nil {
		return fmt.Errorf("tile range for %s: %w", aoi.Name, err)
	}
	lanes := partition.Lanes(o.def.URITemplate, rng, zoom, tileDir, o.def.Format, o.threads)
	logger.Info("acquisition starting",
		"zoom", zoom,
		"tiles", rng.Count(),
		"lanes", len(lanes),
		"convention", o.conv.Name(),
	)

	results := make([]worker.Result, len(lanes))
	g, gctx := errgroup.WithContext(ctx)
	for i, lane := range lanes {
		i, lane := i, lane
		w := worker.New(worker.Config{
			Convention: o.conv,
			Client:     o.client,
			Engine:     o.engine,
			Cache:      o.cache,
			Metrics:    o.metrics,
			Filter:     aoi.RefinementGeometry(),
			Endpoint:   o.def.Type,
			Logger:     logger.With("lane", i),
		})
		g.Go(func() error {
			res, err := w.Run(gctx, lane)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("acquisition interrupted: %w", err)
	}

	var rasterPaths []string
	fetched, skipped, failed := 0, 0, 0
	for _, res := range results {
		rasterPaths = append(rasterPaths, res.RasterPaths...)
		fetched += res.Fetched
		skipped += res.Skipped
		failed += res.Failed
	}
	logger.Info("acquisition finished",
		"fetched", fetched, "skipped", skipped, "failed", failed)

	if err := o.engine.Merge(rasterPaths, outputPath, o.def.Options); err != nil {
		o.metrics.MosaicRun("failure")
		return fmt.Errorf("merging %s: %w", aoi.Name, err)
	}
	o.metrics.MosaicRun("success")

	o.cleanup(tileDir, logger)
	return nil
}

// ProcessAll acquires a mosaic per AOI under outDir. One AOI failing is
// logged and the batch continues; context cancellation stops it. The
// returned error summarizes any per-AOI failures.
func (o *Orchestrator) ProcessAll(ctx context.Context, aois []*geometry.AreaOfInterest, zoom int, outDir string) error {
	var failures int
	for _, aoi := range aois {
		output := filepath.Join(outDir, naming.MosaicFilename(aoi.Name, aoi.Distance, zoom))
		if err := o.Process(ctx, aoi, zoom, output); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			o.logger.Error("area failed, continuing batch", "aoi", aoi.Name, "error", err)
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d areas failed", failures, len(aois))
	}
	return nil
}

// cleanup removes intermediate tile artifacts and the working directory
// when nothing else is left in it. Only known tile artifacts are
// touched.
func (o *Orchestrator) cleanup(tileDir string, logger *slog.Logger) {
	entries, err := os.ReadDir(tileDir)
	if err != nil {
		logger.Warn("reading tile directory for cleanup", "dir", tileDir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !naming.IsTileArtifact(entry.Name()) {
			continue
		}
		path := filepath.Join(tileDir, entry.Name())
		if err := os.Remove(path); err != nil {
			logger.Warn("removing tile artifact", "path", path, "error", err)
		}
	}
	// Fails if anything unexpected remains, which is the point.
	if err := os.Remove(tileDir); err != nil {
		logger.Debug("tile directory left in place", "dir", tileDir)
	}
}

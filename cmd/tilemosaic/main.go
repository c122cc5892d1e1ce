// Command tilemosaic downloads map tiles covering configured areas of
// interest and merges them into georeferenced mosaics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tilemosaic/internal/acquire"
	"tilemosaic/internal/cache"
	"tilemosaic/internal/config"
	"tilemosaic/internal/endpoint"
	"tilemosaic/internal/geometry"
	"tilemosaic/internal/observability"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitGeneralError  = 1
	ExitInvalidArgs   = 2
	ExitConfigError   = 3
	ExitAcquireFailed = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("tilemosaic", flag.ContinueOnError)
	threads := fs.Int("threads", 0, "Override the configured number of worker lanes")
	logLevel := fs.String("log-level", "", "Override the configured log level (debug|info|warn|error)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: tilemosaic [options] <config.yaml> <zoom> <output-dir>

Download map tiles covering each configured area of interest at the
given zoom level and merge them into one GeoTIFF mosaic per area.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}
	if fs.NArg() != 3 {
		fs.Usage()
		return ExitInvalidArgs
	}

	configPath := fs.Arg(0)
	zoom, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid zoom level %q: %v\n", fs.Arg(1), err)
		return ExitInvalidArgs
	}
	outDir := fs.Arg(2)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return ExitConfigError
	}
	if *threads > 0 {
		cfg.Threads = *threads
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logger := config.SetupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	def, err := endpoint.Resolve(cfg.Endpoint.Type, endpoint.Params{
		URITemplate: cfg.Endpoint.URI,
		Format:      cfg.Endpoint.Format,
		Options:     cfg.Endpoint.Options,
		Credentials: cfg.FetchCredentials(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Endpoint error: %v\n", err)
		return ExitConfigError
	}

	aois, err := geometry.LoadGeoJSON(cfg.AOI.Path, cfg.AOI.Distance)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Area-of-interest error: %v\n", err)
		return ExitConfigError
	}

	var tileCache *cache.TileCache
	if cfg.Cache.Dir != "" {
		tileCache, err = cache.New(cfg.Cache.Dir, cfg.Cache.MaxEntries, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cache error: %v\n", err)
			return ExitGeneralError
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		metrics = observability.NewMetrics(reg)
		srv := observability.NewServer(cfg.Metrics.Addr, reg, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics listener failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck // best-effort drain
		}()
	}

	orch, err := acquire.New(def, acquire.Options{
		Threads: cfg.Threads,
		Cache:   tileCache,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup error: %v\n", err)
		return ExitGeneralError
	}

	logger.Info("starting batch",
		"endpoint", cfg.Endpoint.Type,
		"areas", len(aois),
		"zoom", zoom,
		"threads", cfg.Threads,
	)

	if err := orch.ProcessAll(ctx, aois, zoom, outDir); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("batch interrupted")
			return ExitGeneralError
		}
		logger.Error("batch finished with failures", "error", err)
		return ExitAcquireFailed
	}

	logger.Info("batch complete", "areas", len(aois))
	return ExitSuccess
}

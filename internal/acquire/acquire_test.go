package acquire

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilemosaic/internal/endpoint"
	"tilemosaic/internal/fetch"
	"tilemosaic/internal/geometry"
	"tilemosaic/pkg/geotiff"
)

// tileServer serves a solid PNG for every tile and records request
// paths. failFirst makes the first n requests per path return 500.
type tileServer struct {
	*httptest.Server
	mu        sync.Mutex
	paths     []string
	failFirst int
	perPath   map[string]int
}

func newTileServer(t *testing.T, failFirst int) *tileServer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	payload := buf.Bytes()

	ts := &tileServer{failFirst: failFirst, perPath: map[string]int{}}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.paths = append(ts.paths, r.URL.Path)
		ts.perPath[r.URL.Path]++
		seen := ts.perPath[r.URL.Path]
		ts.mu.Unlock()
		if seen <= ts.failFirst {
			http.Error(w, "upstream flake", http.StatusInternalServerError)
			return
		}
		w.Write(payload)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tileServer) requestCount() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.paths)
}

func (ts *tileServer) uniquePaths() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.perPath)
}

func fastFetch() fetch.Options {
	opts := fetch.DefaultOptions()
	opts.MaxBackoff = time.Nanosecond
	return opts
}

func newOrchestrator(t *testing.T, srv *tileServer, typ string, threads int) *Orchestrator {
	t.Helper()
	def, err := endpoint.Resolve(typ, endpoint.Params{
		URITemplate: srv.URL + "/{z}/{x}/{y}.{format}",
	})
	require.NoError(t, err)

	o, err := New(def, Options{Threads: threads, Fetch: fastFetch()})
	require.NoError(t, err)
	return o
}

func TestProcessSingleTile(t *testing.T) {
	srv := newTileServer(t, 0)
	o := newOrchestrator(t, srv, "wmts", 1)

	// A lightly buffered point well inside one zoom-5 mercator tile.
	aoi := &geometry.AreaOfInterest{
		Name:     "single",
		Distance: 100,
		Geometry: orb.Point{10, 10},
	}

	dir := t.TempDir()
	output := filepath.Join(dir, "single.tif")
	require.NoError(t, o.Process(context.Background(), aoi, 5, output))

	assert.Equal(t, 1, srv.requestCount(), "one tile, one fetch")

	ref, _, _, err := geotiff.ReadGeoRef(output)
	require.NoError(t, err)
	assert.Equal(t, geotiff.EPSGWebMercator, ref.EPSG)

	// Intermediates and their directory are gone after success.
	_, err = os.Stat(filepath.Join(dir, "single_tiles"))
	assert.True(t, os.IsNotExist(err))
}

func TestProcessGridAcrossLanes(t *testing.T) {
	srv := newTileServer(t, 0)
	o := newOrchestrator(t, srv, "wmts", 2)

	// Polygon whose bound covers a 2x3 global-mercator grid at zoom 3.
	full := orb.Polygon{{
		{1, 1}, {88, 1}, {88, 78}, {1, 78}, {1, 1},
	}}
	aoi := &geometry.AreaOfInterest{Name: "grid", Geometry: full}

	output := filepath.Join(t.TempDir(), "grid.tif")
	require.NoError(t, o.Process(context.Background(), aoi, 3, output))

	assert.Equal(t, 6, srv.requestCount())
	assert.Equal(t, 6, srv.uniquePaths(), "every tile fetched exactly once")

	img, _, err := geotiff.ReadFile(output)
	require.NoError(t, err)
	// 2 tiles wide, 3 tall, 8px tiles.
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())
}

func TestProcessRetriesFlakyServer(t *testing.T) {
	srv := newTileServer(t, 2) // two failures per tile, then success
	o := newOrchestrator(t, srv, "wmts", 1)

	aoi := &geometry.AreaOfInterest{
		Name:     "flaky",
		Distance: 100,
		Geometry: orb.Point{10, 10},
	}

	output := filepath.Join(t.TempDir(), "flaky.tif")
	require.NoError(t, o.Process(context.Background(), aoi, 5, output))
	assert.Equal(t, 3, srv.requestCount(), "two failed attempts plus the success")

	_, _, _, err := geotiff.ReadGeoRef(output)
	assert.NoError(t, err)
}

func TestProcessRefinementExcludesTiles(t *testing.T) {
	srv := newTileServer(t, 0)
	o := newOrchestrator(t, srv, "wmts", 2)

	// L-shape: full western column, only the southern tile of the
	// eastern column. Bound still covers the 2x3 grid, but two
	// north-eastern tiles do not intersect.
	lShape := orb.Polygon{{
		{1, 1}, {88, 1}, {88, 40}, {44, 40}, {44, 78}, {1, 78}, {1, 1},
	}}
	aoi := &geometry.AreaOfInterest{Name: "lshape", Geometry: lShape}

	output := filepath.Join(t.TempDir(), "lshape.tif")
	require.NoError(t, o.Process(context.Background(), aoi, 3, output))

	assert.Equal(t, 4, srv.requestCount(), "excluded tiles never reach the network")

	img, _, err := geotiff.ReadFile(output)
	require.NoError(t, err)
	// The mosaic extent is the union of the 4 fetched tiles, which
	// still spans the full grid width and height.
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 24, img.Bounds().Dy())
}

func TestProcessMergeFailureLeavesWorkDir(t *testing.T) {
	srv := newTileServer(t, 3) // every attempt fails: no tiles at all
	o := newOrchestrator(t, srv, "wmts", 1)

	aoi := &geometry.AreaOfInterest{
		Name:     "empty",
		Distance: 100,
		Geometry: orb.Point{10, 10},
	}

	dir := t.TempDir()
	output := filepath.Join(dir, "empty.tif")
	err := o.Process(context.Background(), aoi, 5, output)
	require.Error(t, err)
	assert.ErrorContains(t, err, "no rasters")

	// The working directory is kept for inspection after a failed merge.
	_, statErr := os.Stat(filepath.Join(dir, "empty_tiles"))
	assert.NoError(t, statErr)
}

func TestProcessAllContinuesPastFailures(t *testing.T) {
	srv := newTileServer(t, 0)
	o := newOrchestrator(t, srv, "wmts", 1)

	polar := &geometry.AreaOfInterest{
		Name:     "polar",
		Distance: 100,
		Geometry: orb.Point{0, 88}, // beyond the mercator latitude limit
	}
	good := &geometry.AreaOfInterest{
		Name:     "harbor",
		Distance: 100,
		Geometry: orb.Point{10, 10},
	}

	dir := t.TempDir()
	err := o.ProcessAll(context.Background(), []*geometry.AreaOfInterest{polar, good}, 5, dir)
	require.Error(t, err)
	assert.ErrorContains(t, err, "1 of 2 areas failed")

	// The good AOI still produced its mosaic.
	_, statErr := os.Stat(filepath.Join(dir, "harbor_100m_z5.tif"))
	assert.NoError(t, statErr)
}

func TestProcessCancelledContext(t *testing.T) {
	srv := newTileServer(t, 0)
	o := newOrchestrator(t, srv, "wmts", 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	aoi := &geometry.AreaOfInterest{
		Name:     "cancelled",
		Distance: 100,
		Geometry: orb.Point{10, 10},
	}
	err := o.Process(ctx, aoi, 5, filepath.Join(t.TempDir(), "out.tif"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, srv.requestCount())
}

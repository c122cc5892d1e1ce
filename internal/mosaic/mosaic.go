// Package mosaic turns raw tile images into georeferenced rasters and
// stitches them into a single mosaic GeoTIFF.
package mosaic

import (
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"

	// Raw tiles arrive as PNG or JPEG depending on the endpoint.
	_ "image/jpeg"
	_ "image/png"

	"tilemosaic/internal/naming"
	"tilemosaic/internal/tiler"
	"tilemosaic/pkg/geotiff"
)

// Options are creation options passed through from endpoint
// configuration. Understood keys are acted on; unknown keys are
// ignored.
type Options map[string]string

const (
	// OptionMaxDimension caps the longer side of the merged mosaic in
	// pixels; larger canvases are downscaled.
	OptionMaxDimension = "MAX_DIMENSION"
	// OptionDescription is stored in the output's ImageDescription tag.
	OptionDescription = "DESCRIPTION"
)

// maxCanvasPixels bounds the merged canvas allocation. A zoom-18 AOI a
// few kilometers across stays well below this.
const maxCanvasPixels = 1 << 30

// Engine georeferences tiles and merges them. Safe for concurrent
// Georeference calls; Merge is expected to run once per acquisition.
type Engine struct {
	mercator *tiler.GlobalMercator
	logger   *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		mercator: tiler.NewGlobalMercator(tiler.DefaultTileSize),
		logger:   logger,
	}
}

// Georeference decodes the raw tile at rawPath and writes a GeoTIFF
// sibling placing it at bounds. The projection string decides the
// output CRS: a mercator projection yields EPSG:3857 with the origin
// and pixel scale in meters, anything else yields EPSG:4326 in
// degrees. Returns the path of the written raster.
func (e *Engine) Georeference(rawPath string, bounds tiler.Bounds, projectionID string) (string, error) {
	f, err := os.Open(rawPath)
	if err != nil {
		return "", fmt.Errorf("opening tile %s: %w", rawPath, err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("decoding tile %s: %w", rawPath, err)
	}

	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	if width <= 0 || height <= 0 {
		return "", fmt.Errorf("tile %s decodes to an empty image", rawPath)
	}

	var ref geotiff.GeoRef
	if strings.Contains(projectionID, "+proj=merc") {
		minX, minY := e.mercator.LatLonToMeters(bounds.South, bounds.West)
		maxX, maxY := e.mercator.LatLonToMeters(bounds.North, bounds.East)
		ref = geotiff.GeoRef{
			EPSG:       geotiff.EPSGWebMercator,
			OriginX:    minX,
			OriginY:    maxY,
			PixelSizeX: (maxX - minX) / float64(width),
			PixelSizeY: (maxY - minY) / float64(height),
		}
	} else {
		ref = geotiff.GeoRef{
			EPSG:       geotiff.EPSGWGS84,
			OriginX:    bounds.West,
			OriginY:    bounds.North,
			PixelSizeX: (bounds.East - bounds.West) / float64(width),
			PixelSizeY: (bounds.North - bounds.South) / float64(height),
		}
	}

	tifPath := naming.GeoreferencedSibling(rawPath)
	if err := geotiff.WriteFile(tifPath, img, ref, ""); err != nil {
		return "", err
	}
	return tifPath, nil
}

// Merge stitches the georeferenced rasters at paths into one GeoTIFF at
// outputPath. All inputs must share a CRS; the union of their extents
// becomes the output extent. Fails when paths is empty so an
// acquisition that produced nothing surfaces as an error.
func (e *Engine) Merge(paths []string, outputPath string, opts Options) error {
	if len(paths) == 0 {
		return fmt.Errorf("no rasters to merge into %s", outputPath)
	}
	e.warnUnknownOptions(opts)

	type input struct {
		img *image.RGBA
		ref geotiff.GeoRef
	}

	inputs := make([]input, 0, len(paths))
	for _, p := range paths {
		img, ref, err := geotiff.ReadFile(p)
		if err != nil {
			return fmt.Errorf("merge input: %w", err)
		}
		if ref.PixelSizeX <= 0 || ref.PixelSizeY <= 0 {
			return fmt.Errorf("merge input %s: missing pixel scale", p)
		}
		if len(inputs) > 0 && ref.EPSG != inputs[0].ref.EPSG {
			return fmt.Errorf("merge input %s: CRS EPSG:%d differs from EPSG:%d",
				p, ref.EPSG, inputs[0].ref.EPSG)
		}
		inputs = append(inputs, input{img, ref})
	}

	// Finest input resolution wins; at a single zoom all tiles agree.
	pixelX := inputs[0].ref.PixelSizeX
	pixelY := inputs[0].ref.PixelSizeY
	minX := math.Inf(1)
	minY := math.Inf(1)
	maxX := math.Inf(-1)
	maxY := math.Inf(-1)
	for _, in := range inputs {
		x0, y0, x1, y1 := in.ref.Extent(in.img.Bounds().Dx(), in.img.Bounds().Dy())
		minX = math.Min(minX, x0)
		minY = math.Min(minY, y0)
		maxX = math.Max(maxX, x1)
		maxY = math.Max(maxY, y1)
		pixelX = math.Min(pixelX, in.ref.PixelSizeX)
		pixelY = math.Min(pixelY, in.ref.PixelSizeY)
	}

	width := int(math.Round((maxX - minX) / pixelX))
	height := int(math.Round((maxY - minY) / pixelY))
	if width <= 0 || height <= 0 {
		return fmt.Errorf("degenerate mosaic extent %dx%d", width, height)
	}
	if int64(width)*int64(height) > maxCanvasPixels {
		return fmt.Errorf("mosaic canvas %dx%d exceeds %d pixels", width, height, maxCanvasPixels)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	for _, in := range inputs {
		srcW := in.img.Bounds().Dx()
		srcH := in.img.Bounds().Dy()
		x0 := (in.ref.OriginX - minX) / pixelX
		y0 := (maxY - in.ref.OriginY) / pixelY
		x1 := x0 + float64(srcW)*in.ref.PixelSizeX/pixelX
		y1 := y0 + float64(srcH)*in.ref.PixelSizeY/pixelY
		rect := image.Rect(
			int(math.Round(x0)), int(math.Round(y0)),
			int(math.Round(x1)), int(math.Round(y1)))
		if rect.Dx() == srcW && rect.Dy() == srcH {
			draw.Draw(canvas, rect, in.img, in.img.Bounds().Min, draw.Src)
		} else {
			// Inputs coarser than the canvas resolution get resampled
			// into their extent (geographic tiles vary per row).
			xdraw.ApproxBiLinear.Scale(canvas, rect, in.img, in.img.Bounds(), xdraw.Src, nil)
		}
	}

	out := canvas
	ref := geotiff.GeoRef{
		EPSG:       inputs[0].ref.EPSG,
		OriginX:    minX,
		OriginY:    maxY,
		PixelSizeX: pixelX,
		PixelSizeY: pixelY,
	}

	if maxDim, ok := maxDimension(opts); ok && (width > maxDim || height > maxDim) {
		scale := float64(maxDim) / float64(width)
		if height > width {
			scale = float64(maxDim) / float64(height)
		}
		scaledW, scaledH := scaledSize(width, height, scale)
		e.logger.Info("downscaling mosaic",
			"from", fmt.Sprintf("%dx%d", width, height),
			"to", fmt.Sprintf("%dx%d", scaledW, scaledH))
		scaled := image.NewRGBA(image.Rect(0, 0, scaledW, scaledH))
		xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), canvas, canvas.Bounds(), xdraw.Src, nil)
		out = scaled
		ref.PixelSizeX = (maxX - minX) / float64(scaledW)
		ref.PixelSizeY = (maxY - minY) / float64(scaledH)
	}

	if err := geotiff.WriteFile(outputPath, out, ref, opts[OptionDescription]); err != nil {
		return fmt.Errorf("writing mosaic: %w", err)
	}
	e.logger.Info("mosaic written",
		"path", outputPath,
		"inputs", len(inputs),
		"width", out.Bounds().Dx(),
		"height", out.Bounds().Dy())
	return nil
}

func maxDimension(opts Options) (int, bool) {
	v, ok := opts[OptionMaxDimension]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func scaledSize(width, height int, scale float64) (int, int) {
	w := int(math.Round(float64(width) * scale))
	h := int(math.Round(float64(height) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

func (e *Engine) warnUnknownOptions(opts Options) {
	for k := range opts {
		switch k {
		case OptionMaxDimension, OptionDescription:
		default:
			e.logger.Debug("ignoring unknown creation option", "key", k)
		}
	}
}

package tiler

import (
	"math"
	"strings"
)

const earthRadius = 6378137.0

// mercatorProj is the PROJ string tagged onto rasters built from
// global-mercator tiles (EPSG:3857 / legacy 900913).
const mercatorProj = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"

// GlobalMercator implements the TMS Global Mercator pyramid: spherical
// Mercator projection, tile origin [0,0] in the bottom-left corner.
// Accessors convert to the top-left (Google) numbering and to Microsoft
// quadkeys, which address the same rasters by different names.
type GlobalMercator struct {
	tileSize          int
	initialResolution float64
	originShift       float64
}

// NewGlobalMercator initializes the pyramid for the given tile pixel size.
func NewGlobalMercator(tileSize int) *GlobalMercator {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return &GlobalMercator{
		tileSize:          tileSize,
		initialResolution: 2 * math.Pi * earthRadius / float64(tileSize),
		originShift:       math.Pi * earthRadius,
	}
}

// Name implements Convention.
func (g *GlobalMercator) Name() string { return "mercator" }

// ProjectionID implements Convention.
func (g *GlobalMercator) ProjectionID() string { return mercatorProj }

// TileSize returns the configured tile edge in pixels.
func (g *GlobalMercator) TileSize() int { return g.tileSize }

// LatLonToMeters converts WGS84 lat/lon to spherical Mercator meters.
// Latitudes at ±90 degenerate rather than erroring: -90 yields -Inf and
// +90 a finite value far outside the world extent (tan(pi/2) is finite
// in float64). Callers that need a tile index go through LatLonToTile,
// which validates the domain.
func (g *GlobalMercator) LatLonToMeters(lat, lon float64) (mx, my float64) {
	mx = lon * g.originShift / 180.0
	my = math.Log(math.Tan((90+lat)*math.Pi/360.0)) / (math.Pi / 180.0)
	my = my * g.originShift / 180.0
	return mx, my
}

// MetersToLatLon converts spherical Mercator meters back to WGS84 lat/lon.
func (g *GlobalMercator) MetersToLatLon(mx, my float64) (lat, lon float64) {
	lon = (mx / g.originShift) * 180.0
	lat = (my / g.originShift) * 180.0
	lat = 180 / math.Pi * (2*math.Atan(math.Exp(lat*math.Pi/180.0)) - math.Pi/2.0)
	return lat, lon
}

// Resolution returns meters per pixel at the given zoom, measured at the equator.
func (g *GlobalMercator) Resolution(zoom int) float64 {
	return g.initialResolution / math.Pow(2, float64(zoom))
}

// ZoomForPixelSize returns the maximal scaledown zoom closest to pixelSize.
func (g *GlobalMercator) ZoomForPixelSize(pixelSize float64) int {
	for i := 0; i < 30; i++ {
		if pixelSize > g.Resolution(i) {
			if i != 0 {
				return i - 1
			}
			return 0
		}
	}
	return 29
}

// MetersToPixels converts Mercator meters to pyramid pixel coordinates.
func (g *GlobalMercator) MetersToPixels(mx, my float64, zoom int) (px, py float64) {
	res := g.Resolution(zoom)
	px = (mx + g.originShift) / res
	py = (my + g.originShift) / res
	return px, py
}

// PixelsToMeters converts pyramid pixel coordinates to Mercator meters.
func (g *GlobalMercator) PixelsToMeters(px, py float64, zoom int) (mx, my float64) {
	res := g.Resolution(zoom)
	mx = px*res - g.originShift
	my = py*res - g.originShift
	return mx, my
}

// PixelsToTile returns the tile covering the given pixel coordinates.
func (g *GlobalMercator) PixelsToTile(px, py float64) (tx, ty int) {
	tx = int(math.Ceil(px/float64(g.tileSize)) - 1)
	ty = int(math.Ceil(py/float64(g.tileSize)) - 1)
	return tx, ty
}

// MetersToTile returns the tile containing the given Mercator coordinates.
func (g *GlobalMercator) MetersToTile(mx, my float64, zoom int) (tx, ty int) {
	px, py := g.MetersToPixels(mx, my, zoom)
	return g.PixelsToTile(px, py)
}

// LatLonToTile implements Convention. The returned index uses TMS
// numbering (origin bottom-left).
func (g *GlobalMercator) LatLonToTile(lat, lon float64, zoom int) (x, y int, err error) {
	if err := validateLatLon(lat, lon, zoom); err != nil {
		return 0, 0, err
	}
	mx, my := g.LatLonToMeters(lat, lon)
	tx, ty := g.MetersToTile(mx, my, zoom)
	return clampTile(tx, zoom), clampTile(ty, zoom), nil
}

// TileBoundsMeters returns the tile extent in EPSG:3857 meters as
// (minx, miny, maxx, maxy).
func (g *GlobalMercator) TileBoundsMeters(tx, ty, zoom int) (minx, miny, maxx, maxy float64) {
	minx, miny = g.PixelsToMeters(float64(tx*g.tileSize), float64(ty*g.tileSize), zoom)
	maxx, maxy = g.PixelsToMeters(float64((tx+1)*g.tileSize), float64((ty+1)*g.tileSize), zoom)
	return minx, miny, maxx, maxy
}

// TileBounds implements Convention, converting the tile's pixel corners
// through meters back to WGS84 degrees.
func (g *GlobalMercator) TileBounds(tx, ty, zoom int) Bounds {
	minx, miny, maxx, maxy := g.TileBoundsMeters(tx, ty, zoom)
	south, west := g.MetersToLatLon(minx, miny)
	north, east := g.MetersToLatLon(maxx, maxy)
	return Bounds{South: south, West: west, North: north, East: east}
}

// GoogleTile converts a TMS tile index to Google numbering, which moves
// the origin from the bottom-left to the top-left corner of the extent.
func (g *GlobalMercator) GoogleTile(tx, ty, zoom int) (int, int) {
	return tx, (1 << zoom) - 1 - ty
}

// QuadKey converts a TMS tile index to a Microsoft QuadTree key: one
// base-4 digit per zoom level, most significant first, on the y-flipped
// (top-left origin) index.
func (g *GlobalMercator) QuadKey(tx, ty, zoom int) string {
	ty = (1 << zoom) - 1 - ty
	var key strings.Builder
	for i := zoom; i > 0; i-- {
		digit := byte('0')
		mask := 1 << (i - 1)
		if tx&mask != 0 {
			digit++
		}
		if ty&mask != 0 {
			digit += 2
		}
		key.WriteByte(digit)
	}
	return key.String()
}

package tiler

import (
	"fmt"
)

// Tiling limits shared by both conventions
const (
	MinZoom = 0
	MaxZoom = 23

	// MaxMercatorLat is the latitude beyond which spherical Mercator tiling
	// is undefined; inputs outside it are rejected rather than clamped
	MaxMercatorLat = 85.05112878

	// DefaultTileSize is the standard tile edge in pixels
	DefaultTileSize = 256
)

// Bounds represents a tile's geographic extent in WGS84 degrees.
// Named fields avoid the axis-order confusion of positional tuples.
type Bounds struct {
	South float64
	West  float64
	North float64
	East  float64
}

// Contains reports whether the point lies within the bounds (inclusive).
func (b Bounds) Contains(lat, lon float64) bool {
	return lat >= b.South && lat <= b.North && lon >= b.West && lon <= b.East
}

// Convention converts between geographic coordinates and tile indices for
// one tiling scheme. Implementations hold only configuration and are safe
// for concurrent use from multiple workers.
type Convention interface {
	// Name returns the convention identifier used in configuration
	Name() string

	// ProjectionID returns the spatial reference string used to
	// georeference rasters produced from this convention's tiles
	ProjectionID() string

	// LatLonToTile returns the tile index containing the given point.
	// Inputs outside the convention's valid domain return an error.
	LatLonToTile(lat, lon float64, zoom int) (x, y int, err error)

	// TileBounds returns the geographic extent of a tile
	TileBounds(x, y, zoom int) Bounds
}

// ForName returns the convention selected by a configuration string.
// "slippy" selects the top-left-origin OSM scheme; "mercator", "tms" or an
// empty string select the TMS global-mercator scheme.
func ForName(name string) (Convention, error) {
	switch name {
	case "slippy":
		return NewSlippy(DefaultTileSize), nil
	case "", "mercator", "tms":
		return NewGlobalMercator(DefaultTileSize), nil
	default:
		return nil, fmt.Errorf("unknown tiling convention: %q", name)
	}
}

// validateLatLon rejects coordinates the tiling math cannot represent.
func validateLatLon(lat, lon float64, zoom int) error {
	if zoom < MinZoom || zoom > MaxZoom {
		return fmt.Errorf("zoom %d out of range [%d, %d]", zoom, MinZoom, MaxZoom)
	}
	if lat < -MaxMercatorLat || lat > MaxMercatorLat {
		return fmt.Errorf("latitude %f beyond Mercator limit ±%f", lat, MaxMercatorLat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", lon)
	}
	return nil
}

// clampTile keeps a tile index within [0, 2^zoom - 1].
func clampTile(v, zoom int) int {
	max := (1 << zoom) - 1
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

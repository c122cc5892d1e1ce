package tiler

import (
	"math"
)

// slippyProj is the PROJ string for plain WGS84 long/lat, the reference
// system slippy-map tile bounds are expressed in.
const slippyProj = "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"

// Slippy implements the OSM slippy-map tile scheme: 2^z tiles per axis,
// origin [0,0] in the top-left corner. There is no TMS/Google numbering
// distinction for this scheme.
type Slippy struct {
	tileSize int
}

// NewSlippy returns a slippy-map tiler for the given tile pixel size.
func NewSlippy(tileSize int) *Slippy {
	if tileSize <= 0 {
		tileSize = DefaultTileSize
	}
	return &Slippy{tileSize: tileSize}
}

// Name implements Convention.
func (s *Slippy) Name() string { return "slippy" }

// ProjectionID implements Convention.
func (s *Slippy) ProjectionID() string { return slippyProj }

// TileSize returns the configured tile edge in pixels.
func (s *Slippy) TileSize() int { return s.tileSize }

// NumTiles returns the tile count per axis at the given zoom.
func (s *Slippy) NumTiles(zoom int) float64 {
	return math.Pow(2, float64(zoom))
}

// LatLonToXY returns fractional tile coordinates for a point.
func (s *Slippy) LatLonToXY(lat, lon float64, zoom int) (x, y float64) {
	n := s.NumTiles(zoom)
	latRad := lat * math.Pi / 180.0
	x = n * (lon + 180.0) / 360.0
	y = n * (1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0
	return x, y
}

// LatLonToTile implements Convention. The returned index uses top-left
// origin numbering.
func (s *Slippy) LatLonToTile(lat, lon float64, zoom int) (x, y int, err error) {
	if err := validateLatLon(lat, lon, zoom); err != nil {
		return 0, 0, err
	}
	fx, fy := s.LatLonToXY(lat, lon, zoom)
	return clampTile(int(fx), zoom), clampTile(int(fy), zoom), nil
}

// mercatorToLat inverts the slippy-map y projection.
func mercatorToLat(mercatorY float64) float64 {
	return math.Atan(math.Sinh(mercatorY)) * 180.0 / math.Pi
}

// latBounds returns the (north, south) latitudes of tile row y.
func (s *Slippy) latBounds(y, zoom int) (lat1, lat2 float64) {
	n := s.NumTiles(zoom)
	relY1 := float64(y) / n
	relY2 := relY1 + 1/n
	lat1 = mercatorToLat(math.Pi * (1 - 2*relY1))
	lat2 = mercatorToLat(math.Pi * (1 - 2*relY2))
	return lat1, lat2
}

// lonBounds returns the (west, east) longitudes of tile column x.
func (s *Slippy) lonBounds(x, zoom int) (lon1, lon2 float64) {
	n := s.NumTiles(zoom)
	unit := 360 / n
	lon1 = -180 + float64(x)*unit
	lon2 = lon1 + unit
	return lon1, lon2
}

// TileBounds implements Convention.
func (s *Slippy) TileBounds(x, y, zoom int) Bounds {
	north, south := s.latBounds(y, zoom)
	west, east := s.lonBounds(x, zoom)
	return Bounds{South: south, West: west, North: north, East: east}
}

// TileCenter returns the lat/lon of the center of a tile.
func (s *Slippy) TileCenter(x, y, zoom int) (lat, lon float64) {
	b := s.TileBounds(x, y, zoom)
	return (b.South + b.North) / 2, (b.West + b.East) / 2
}

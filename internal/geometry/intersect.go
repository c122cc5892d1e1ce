package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/project"

	"tilemosaic/internal/tiler"
)

// BoundFromTile converts tile bounds into an orb bound.
func BoundFromTile(b tiler.Bounds) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Intersects reports whether the tile rectangle intersects the geometry.
// A nil geometry intersects everything (no refinement configured).
func Intersects(tile tiler.Bounds, g orb.Geometry) bool {
	if g == nil {
		return true
	}

	bound := BoundFromTile(tile)
	if !bound.Intersects(g.Bound()) {
		return false
	}

	// Envelope overlap is not enough for concave polygons: clip the
	// geometry to the tile rectangle and test for a non-empty result.
	// clip uses its input as scratch space, so clone first: the geometry
	// is shared across workers and must stay untouched.
	return clip.Geometry(bound, orb.Clone(g)) != nil
}

// Reproject transforms a geometry between the two reference systems the
// pipeline deals in. Anything else is an unsupported input.
func Reproject(g orb.Geometry, fromEPSG, toEPSG int) (orb.Geometry, error) {
	if fromEPSG == toEPSG {
		return g, nil
	}
	switch {
	case fromEPSG == 4326 && toEPSG == 3857:
		return project.Geometry(orb.Clone(g), project.WGS84.ToMercator), nil
	case fromEPSG == 3857 && toEPSG == 4326:
		return project.Geometry(orb.Clone(g), project.Mercator.ToWGS84), nil
	default:
		return nil, fmt.Errorf("unsupported reprojection: EPSG:%d -> EPSG:%d", fromEPSG, toEPSG)
	}
}

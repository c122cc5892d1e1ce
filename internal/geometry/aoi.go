// Package geometry holds the area-of-interest model and the polygon
// predicates the tile pipeline needs, built on paulmach/orb.
package geometry

import (
	"fmt"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"tilemosaic/internal/naming"
	"tilemosaic/internal/tiler"
)

// metersPerDegree approximates one degree of latitude at the equator,
// used only to buffer point AOIs into a usable bounding box.
const metersPerDegree = 111320.0

// AreaOfInterest is a named region to be covered with tiles. Immutable
// once constructed; safe to share across workers.
type AreaOfInterest struct {
	// Name identifies the AOI in logs and output filenames
	Name string

	// Distance is the buffer attribute in meters, used for output naming
	// and to expand point geometries into a bounding box
	Distance float64

	// Geometry is the AOI geometry in WGS84 degrees
	Geometry orb.Geometry
}

// Bound returns the AOI's bounding box. Point geometries are buffered by
// Distance meters; polygon geometries return their envelope unchanged.
func (a *AreaOfInterest) Bound() orb.Bound {
	b := a.Geometry.Bound()
	if _, ok := a.Geometry.(orb.Point); !ok {
		return b
	}

	d := a.Distance
	if d <= 0 {
		d = metersPerDegree / 100 // ~1km fallback so a bare point still covers tiles
	}
	latPad := d / metersPerDegree
	centerLat := (b.Min.Lat() + b.Max.Lat()) / 2
	lonPad := latPad / math.Cos(centerLat*math.Pi/180)

	return orb.Bound{
		Min: orb.Point{b.Min.Lon() - lonPad, b.Min.Lat() - latPad},
		Max: orb.Point{b.Max.Lon() + lonPad, b.Max.Lat() + latPad},
	}
}

// RefinementGeometry returns the polygon used to discard non-intersecting
// tiles, or nil when the AOI is point-based and its box is authoritative.
func (a *AreaOfInterest) RefinementGeometry() orb.Geometry {
	switch a.Geometry.(type) {
	case orb.Point, orb.MultiPoint:
		return nil
	default:
		return a.Geometry
	}
}

// BoundsBox converts the AOI bound into the tiler's named-field form.
func (a *AreaOfInterest) BoundsBox() tiler.Bounds {
	b := a.Bound()
	return tiler.Bounds{
		South: b.Min.Lat(),
		West:  b.Min.Lon(),
		North: b.Max.Lat(),
		East:  b.Max.Lon(),
	}
}

// LoadGeoJSON reads a GeoJSON feature collection into AOIs. Feature
// properties "name" and "distance" override the generated name and the
// supplied default buffer distance.
func LoadGeoJSON(path string, defaultDistance float64) ([]*AreaOfInterest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aoi file: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse aoi file %s: %w", path, err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("aoi file %s contains no features", path)
	}

	aois := make([]*AreaOfInterest, 0, len(fc.Features))
	for idx, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}

		aoi := &AreaOfInterest{
			Name:     fmt.Sprintf("aoi-%d", idx),
			Distance: defaultDistance,
			Geometry: f.Geometry,
		}
		if name, ok := f.Properties["name"].(string); ok && name != "" {
			aoi.Name = name
		} else if pt, ok := f.Geometry.(orb.Point); ok {
			// Unnamed points get a coordinate-derived name so two runs
			// over the same file produce the same output filenames even
			// if the feature order changes
			aoi.Name = naming.SanitizeCoordinate(pt.Lat(), true) +
				"_" + naming.SanitizeCoordinate(pt.Lon(), false)
		}
		switch d := f.Properties["distance"].(type) {
		case float64:
			aoi.Distance = d
		case int:
			aoi.Distance = float64(d)
		}
		aois = append(aois, aoi)
	}

	if len(aois) == 0 {
		return nil, fmt.Errorf("aoi file %s contains no usable geometries", path)
	}
	return aois, nil
}

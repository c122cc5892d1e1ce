package geometry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilemosaic/internal/tiler"
)

func square(w, s, e, n float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{w, n}, {e, n}, {e, s}, {w, s}, {w, n},
	}}
}

func TestIntersects(t *testing.T) {
	aoi := square(10, 10, 20, 20)

	// Fully inside
	assert.True(t, Intersects(tiler.Bounds{South: 12, West: 12, North: 14, East: 14}, aoi))

	// Overlapping edge region
	assert.True(t, Intersects(tiler.Bounds{South: 18, West: 18, North: 25, East: 25}, aoi))

	// Tile containing the whole AOI
	assert.True(t, Intersects(tiler.Bounds{South: 0, West: 0, North: 30, East: 30}, aoi))

	// Disjoint
	assert.False(t, Intersects(tiler.Bounds{South: 30, West: 30, North: 40, East: 40}, aoi))
	assert.False(t, Intersects(tiler.Bounds{South: -20, West: -20, North: -10, East: -10}, aoi))

	// Nil geometry means no refinement: everything passes
	assert.True(t, Intersects(tiler.Bounds{South: 30, West: 30, North: 40, East: 40}, nil))
}

func TestIntersectsConcavePolygon(t *testing.T) {
	// L-shaped polygon whose envelope covers the notch
	l := orb.Polygon{orb.Ring{
		{0, 0}, {10, 0}, {10, 4}, {4, 4}, {4, 10}, {0, 10}, {0, 0},
	}}

	// Tile inside the envelope but entirely within the notch
	assert.False(t, Intersects(tiler.Bounds{South: 6, West: 6, North: 9, East: 9}, l))

	// Tile inside the L itself
	assert.True(t, Intersects(tiler.Bounds{South: 1, West: 1, North: 3, East: 3}, l))
}

func TestIntersectsLeavesGeometryUntouched(t *testing.T) {
	// One geometry is shared by every worker, so repeated tile tests must
	// not shrink it to the first tile's rectangle.
	l := orb.Polygon{orb.Ring{
		{1, 1}, {88, 1}, {88, 40}, {44, 40}, {44, 78}, {1, 78}, {1, 1},
	}}
	want := l.Bound()

	assert.True(t, Intersects(tiler.Bounds{South: 1, West: 1, North: 40, East: 45}, l))
	assert.Equal(t, want, l.Bound())

	// Still intersects a tile far from the first one
	assert.True(t, Intersects(tiler.Bounds{South: 67, West: 1, North: 78, East: 44}, l))
	// And still rejects the notch
	assert.False(t, Intersects(tiler.Bounds{South: 50, West: 50, North: 70, East: 80}, l))
	assert.Equal(t, want, l.Bound())
}

func TestReproject(t *testing.T) {
	p := orb.Point{-0.119888, 51.5061}

	merc, err := Reproject(p, 4326, 3857)
	require.NoError(t, err)
	mp, ok := merc.(orb.Point)
	require.True(t, ok)
	assert.InDelta(t, -13345.6, mp.X(), 1.0)
	assert.Greater(t, mp.Y(), 6.7e6)

	back, err := Reproject(merc, 3857, 4326)
	require.NoError(t, err)
	bp := back.(orb.Point)
	assert.InDelta(t, p.X(), bp.X(), 1e-6)
	assert.InDelta(t, p.Y(), bp.Y(), 1e-6)

	// Identity
	same, err := Reproject(p, 4326, 4326)
	require.NoError(t, err)
	assert.Equal(t, p, same)

	_, err = Reproject(p, 4326, 2056)
	assert.Error(t, err)
}

func TestAreaOfInterestBound(t *testing.T) {
	poly := &AreaOfInterest{Name: "poly", Geometry: square(10, 10, 20, 20)}
	b := poly.Bound()
	assert.Equal(t, 10.0, b.Min.Lat())
	assert.Equal(t, 20.0, b.Max.Lon())
	assert.NotNil(t, poly.RefinementGeometry())

	// Point AOIs get buffered by their distance attribute and carry no
	// refinement geometry (their box is authoritative)
	pt := &AreaOfInterest{Name: "pt", Distance: 1113.2, Geometry: orb.Point{44.89, 12.75}}
	pb := pt.Bound()
	assert.InDelta(t, 12.75-0.01, pb.Min.Lat(), 1e-6)
	assert.InDelta(t, 12.75+0.01, pb.Max.Lat(), 1e-6)
	assert.Less(t, pb.Min.Lon(), 44.89)
	assert.Nil(t, pt.RefinementGeometry())

	box := pt.BoundsBox()
	assert.Less(t, box.South, box.North)
	assert.Less(t, box.West, box.East)
}

func TestLoadGeoJSON(t *testing.T) {
	doc := `{
	  "type": "FeatureCollection",
	  "features": [
	    {
	      "type": "Feature",
	      "properties": {"name": "harbor", "distance": 250},
	      "geometry": {"type": "Polygon", "coordinates": [[[44.8,12.7],[44.9,12.7],[44.9,12.8],[44.8,12.8],[44.8,12.7]]]}
	    },
	    {
	      "type": "Feature",
	      "properties": {},
	      "geometry": {"type": "Point", "coordinates": [44.89, 12.75]}
	    }
	  ]
	}`

	path := filepath.Join(t.TempDir(), "aois.geojson")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	aois, err := LoadGeoJSON(path, 500)
	require.NoError(t, err)
	require.Len(t, aois, 2)

	assert.Equal(t, "harbor", aois[0].Name)
	assert.Equal(t, 250.0, aois[0].Distance)
	assert.NotNil(t, aois[0].RefinementGeometry())

	// Unnamed point features are named by their coordinates
	assert.Equal(t, "12p7500N_44p8900E", aois[1].Name)
	assert.Equal(t, 500.0, aois[1].Distance)
	assert.Nil(t, aois[1].RefinementGeometry())
}

func TestLoadGeoJSONErrors(t *testing.T) {
	_, err := LoadGeoJSON(filepath.Join(t.TempDir(), "missing.geojson"), 0)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.geojson")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	_, err = LoadGeoJSON(path, 0)
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.geojson")
	require.NoError(t, os.WriteFile(empty, []byte(`{"type":"FeatureCollection","features":[]}`), 0o644))
	_, err = LoadGeoJSON(empty, 0)
	assert.Error(t, err)
}

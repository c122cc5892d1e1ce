package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileFilenameRoundTrip(t *testing.T) {
	name := TileFilename(12, 2185, 1421, "png")
	assert.Equal(t, "tile_12_2185_1421.png", name)

	zoom, x, y, format, err := ParseTileFilename(name)
	require.NoError(t, err)
	assert.Equal(t, 12, zoom)
	assert.Equal(t, 2185, x)
	assert.Equal(t, 1421, y)
	assert.Equal(t, "png", format)
}

func TestParseTileFilenameRejectsForeignNames(t *testing.T) {
	cases := []string{
		"mosaic.tif",
		"tile_12_2185.png",
		"tile_a_b_c.png",
		"tile_12_2185_1421",
	}
	for _, c := range cases {
		_, _, _, _, err := ParseTileFilename(c)
		assert.Error(t, err, c)
	}
}

func TestGeoreferencedSibling(t *testing.T) {
	assert.Equal(t, "/out/tile_5_1_2.tif", GeoreferencedSibling("/out/tile_5_1_2.jpg"))
	assert.Equal(t, "/out/tile_5_1_2.tif", GeoreferencedSibling("/out/tile_5_1_2.png"))
}

func TestIsTileArtifact(t *testing.T) {
	assert.True(t, IsTileArtifact("/out/tile_5_1_2.png"))
	assert.True(t, IsTileArtifact("tile_5_1_2.tif"))
	assert.False(t, IsTileArtifact("/out/harbor_500m_z5.tif"))

	// A tile_ prefix alone is not an artifact: cleanup must leave files
	// it cannot account for
	assert.False(t, IsTileArtifact("tile_notes.txt"))
	assert.False(t, IsTileArtifact("tile_5_1.png"))
}

func TestMosaicFilename(t *testing.T) {
	assert.Equal(t, "harbor_500m_z12.tif", MosaicFilename("harbor", 500, 12))
	assert.Equal(t, "aoi-0_2p5m_z9.tif", MosaicFilename("aoi-0", 2.5, 9))
	assert.Equal(t, "two-words_100m_z3.tif", MosaicFilename("two words", 100, 3))
}

func TestSanitizeCoordinate(t *testing.T) {
	assert.Equal(t, "12p7500N", SanitizeCoordinate(12.75, true))
	assert.Equal(t, "44p8900S", SanitizeCoordinate(-44.89, true))
	assert.Equal(t, "0p1199W", SanitizeCoordinate(-0.119888, false))
	assert.Equal(t, "151p2093E", SanitizeCoordinate(151.2093, false))
}

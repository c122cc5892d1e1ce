// Package naming centralizes the filesystem naming contract for tile
// artifacts, so re-runs can recognize already-downloaded tiles and cleanup
// can find everything a run produced.
package naming

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// TilePrefix is the shared prefix of every intermediate tile artifact.
const TilePrefix = "tile_"

// TileFilename returns the destination filename for a raw tile download.
// Format: tile_{zoom}_{x}_{y}.{format}
func TileFilename(zoom, x, y int, format string) string {
	return fmt.Sprintf("%s%d_%d_%d.%s", TilePrefix, zoom, x, y, format)
}

// GeoreferencedSibling returns the path of the georeferenced raster
// produced from a raw tile download.
func GeoreferencedSibling(rawPath string) string {
	ext := filepath.Ext(rawPath)
	return strings.TrimSuffix(rawPath, ext) + ".tif"
}

// ParseTileFilename recovers the tile index and image format from a
// filename produced by TileFilename.
func ParseTileFilename(name string) (zoom, x, y int, format string, err error) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, TilePrefix) {
		return 0, 0, 0, "", fmt.Errorf("not a tile filename: %s", base)
	}
	ext := filepath.Ext(base)
	if ext == "" {
		return 0, 0, 0, "", fmt.Errorf("tile filename missing format extension: %s", base)
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(base, TilePrefix), ext)

	parts := strings.Split(stem, "_")
	if len(parts) != 3 {
		return 0, 0, 0, "", fmt.Errorf("malformed tile filename: %s", base)
	}
	if zoom, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, "", fmt.Errorf("malformed tile zoom in %s: %w", base, err)
	}
	if x, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, 0, "", fmt.Errorf("malformed tile x in %s: %w", base, err)
	}
	if y, err = strconv.Atoi(parts[2]); err != nil {
		return 0, 0, 0, "", fmt.Errorf("malformed tile y in %s: %w", base, err)
	}
	return zoom, x, y, strings.TrimPrefix(ext, "."), nil
}

// IsTileArtifact reports whether a filename belongs to a run's
// intermediate tile set (raw download or georeferenced sibling). A file
// must actually parse as a tile filename; a stray "tile_" prefix is not
// enough for cleanup to touch it.
func IsTileArtifact(name string) bool {
	_, _, _, _, err := ParseTileFilename(name)
	return err == nil
}

// MosaicFilename returns the output filename for one AOI's mosaic.
// Format: {name}_{distance}m_z{zoom}.tif
func MosaicFilename(aoiName string, distance float64, zoom int) string {
	return fmt.Sprintf("%s_%sm_z%d.tif", sanitizeName(aoiName), trimFloat(distance), zoom)
}

// sanitizeName makes an AOI name safe for use in a filename.
func sanitizeName(name string) string {
	r := strings.NewReplacer(" ", "-", "/", "-", "\\", "-", ":", "-")
	return r.Replace(name)
}

// trimFloat formats a distance without trailing zeros, using 'p' for the
// decimal point as filenames do elsewhere in this package.
func trimFloat(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strings.Replace(strconv.FormatFloat(v, 'f', -1, 64), ".", "p", 1)
}

// SanitizeCoordinate formats a coordinate for use in filenames: hemisphere
// letter instead of sign, 'p' instead of the decimal point.
func SanitizeCoordinate(coord float64, isLat bool) string {
	dir := "E"
	if isLat {
		dir = "N"
		if coord < 0 {
			dir = "S"
		}
	} else if coord < 0 {
		dir = "W"
	}
	s := strings.Replace(fmt.Sprintf("%.4f", math.Abs(coord)), ".", "p", 1)
	return s + dir
}

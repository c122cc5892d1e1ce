// Package partition enumerates the tile grid covering a bounding box and
// splits it into per-worker task lanes.
package partition

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"tilemosaic/internal/naming"
	"tilemosaic/internal/tiler"
)

// TileTask is one tile to fetch: its index, the resolved remote URI and
// the local destination path. Created here, consumed exactly once by
// exactly one worker.
type TileTask struct {
	X    int
	Y    int
	Zoom int
	URI  string
	Path string
}

// Range is the inclusive tile index rectangle covering a bounding box.
// X1/Y1 come from the bbox's (south, west) corner and X2/Y2 from
// (north, east); Y ordering between them depends on the convention.
type Range struct {
	X1, Y1 int
	X2, Y2 int
}

// Count returns the number of tiles in the range.
func (r Range) Count() int {
	w := r.X2 - r.X1 + 1
	h := r.Y2 - r.Y1
	if h < 0 {
		h = -h
	}
	h++
	if w <= 0 {
		return 0
	}
	return w * h
}

// RangeForBounds computes the tile range covering a geographic bounding
// box at the given zoom by converting its two corners.
func RangeForBounds(conv tiler.Convention, b tiler.Bounds, zoom int) (Range, error) {
	x1, y1, err := conv.LatLonToTile(b.South, b.West, zoom)
	if err != nil {
		return Range{}, fmt.Errorf("bbox south-west corner: %w", err)
	}
	x2, y2, err := conv.LatLonToTile(b.North, b.East, zoom)
	if err != nil {
		return Range{}, fmt.Errorf("bbox north-east corner: %w", err)
	}
	return Range{X1: x1, Y1: y1, X2: x2, Y2: y2}, nil
}

// ExpandURI substitutes the {x}, {y}, {z} and {format} placeholders in a
// tile URI template.
func ExpandURI(template string, x, y, zoom int, format string) string {
	r := strings.NewReplacer(
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{z}", strconv.Itoa(zoom),
		"{format}", format,
	)
	return r.Replace(template)
}

// Lanes enumerates every tile in the range and deals the tasks round-robin
// across laneCount ordered lists. Y runs from min(Y1,Y2) to max(Y1,Y2)
// inclusive; X runs X1..X2 as given (the caller orders the corners).
// The union of all lanes, read round-robin, reconstructs enumeration
// order; a lane may be empty when there are fewer tasks than lanes.
func Lanes(template string, rng Range, zoom int, outDir, format string, laneCount int) [][]TileTask {
	if laneCount < 1 {
		laneCount = 1
	}

	lanes := make([][]TileTask, laneCount)
	for i := range lanes {
		lanes[i] = []TileTask{}
	}

	yMin, yMax := rng.Y1, rng.Y2
	if yMin > yMax {
		yMin, yMax = yMax, yMin
	}

	index := 0
	for y := yMin; y <= yMax; y++ {
		for x := rng.X1; x <= rng.X2; x++ {
			task := TileTask{
				X:    x,
				Y:    y,
				Zoom: zoom,
				URI:  ExpandURI(template, x, y, zoom, format),
				Path: filepath.Join(outDir, naming.TileFilename(zoom, x, y, format)),
			}
			lanes[index] = append(lanes[index], task)
			index++
			if index == laneCount {
				index = 0
			}
		}
	}

	return lanes
}

// Package geotiff writes and reads single-image GeoTIFF files with
// uncompressed RGBA pixel data. It covers exactly the subset of the
// format this project produces: little-endian classic TIFF, one IFD,
// strip layout, and the ModelTiepoint/ModelPixelScale/GeoKeyDirectory
// georeferencing tags.
package geotiff

// TIFF field types.
const (
	typeByte     = 1
	typeASCII    = 2
	typeShort    = 3
	typeLong     = 4
	typeRational = 5
	typeDouble   = 12
)

// TIFF tag IDs.
const (
	tagImageWidth                = 256
	tagImageLength               = 257
	tagImageDescription          = 270
	tagBitsPerSample             = 258
	tagCompression               = 259
	tagPhotometricInterpretation = 262
	tagStripOffsets              = 273
	tagSamplesPerPixel           = 277
	tagRowsPerStrip              = 278
	tagStripByteCounts           = 279
	tagXResolution               = 282
	tagYResolution               = 283
	tagResolutionUnit            = 296

	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
)

// GeoKey IDs and values.
const (
	keyModelType       = 1024
	keyRasterType      = 1025
	keyGeographicType  = 2048
	keyGeogAngularUnit = 2054
	keyProjectedCSType = 3072
	keyProjLinearUnit  = 3076

	modelProjected  = 1
	modelGeographic = 2
	rasterPixelIsArea = 1

	unitMeter  = 9001
	unitDegree = 9102
)

// EPSGWebMercator and EPSGWGS84 are the two coordinate reference
// systems this project emits.
const (
	EPSGWebMercator = 3857
	EPSGWGS84       = 4326
)

// GeoRef places a raster in a coordinate reference system. OriginX and
// OriginY are the world coordinates of the top-left corner of the
// top-left pixel; pixel sizes are positive magnitudes in CRS units
// (meters for projected systems, degrees for geographic ones).
type GeoRef struct {
	EPSG       int
	OriginX    float64
	OriginY    float64
	PixelSizeX float64
	PixelSizeY float64
}

// Projected reports whether the CRS is a projected (planar) system.
// Everything that is not plain WGS84 lon/lat is treated as projected.
func (r GeoRef) Projected() bool {
	return r.EPSG != EPSGWGS84
}

// Extent returns the world-coordinate bounding box covered by a raster
// of the given pixel dimensions placed at this GeoRef.
func (r GeoRef) Extent(width, height int) (minX, minY, maxX, maxY float64) {
	minX = r.OriginX
	maxY = r.OriginY
	maxX = minX + float64(width)*r.PixelSizeX
	minY = maxY - float64(height)*r.PixelSizeY
	return
}

// geoKeyDirectory builds the GeoKeyDirectoryTag payload for this CRS.
// Header is [version, revision, minor, numKeys]; each key is
// [keyID, tagLocation, count, value].
func (r GeoRef) geoKeyDirectory() []uint16 {
	if r.Projected() {
		return []uint16{
			1, 1, 0, 4,
			keyModelType, 0, 1, modelProjected,
			keyRasterType, 0, 1, rasterPixelIsArea,
			keyProjectedCSType, 0, 1, uint16(r.EPSG),
			keyProjLinearUnit, 0, 1, unitMeter,
		}
	}
	return []uint16{
		1, 1, 0, 4,
		keyModelType, 0, 1, modelGeographic,
		keyRasterType, 0, 1, rasterPixelIsArea,
		keyGeographicType, 0, 1, uint16(r.EPSG),
		keyGeogAngularUnit, 0, 1, unitDegree,
	}
}

// epsgFromGeoKeys extracts the CRS code from a GeoKeyDirectoryTag
// payload, preferring a projected CS over a geographic one.
func epsgFromGeoKeys(keys []uint16) int {
	if len(keys) < 4 {
		return 0
	}
	numKeys := int(keys[3])
	geographic := 0
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(keys) {
			break
		}
		switch keys[base] {
		case keyProjectedCSType:
			return int(keys[base+3])
		case keyGeographicType:
			geographic = int(keys[base+3])
		}
	}
	return geographic
}

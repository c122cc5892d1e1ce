package geotiff

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
)

// fileIFD is the subset of the first IFD this package reads back.
type fileIFD struct {
	width, height   uint32
	compression     uint16
	samplesPerPixel uint16
	rowsPerStrip    uint32
	stripOffsets    []uint32
	stripByteCounts []uint32
	pixelScale      []float64
	tiepoint        []float64
	geoKeys         []uint16
}

// ReadFile decodes a GeoTIFF previously written by this package (or any
// uncompressed strip-layout RGB/RGBA TIFF) and returns its pixels and
// placement.
func ReadFile(path string) (*image.RGBA, GeoRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, GeoRef{}, fmt.Errorf("reading %s: %w", path, err)
	}
	ifd, _, err := parseFirstIFD(data)
	if err != nil {
		return nil, GeoRef{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if ifd.compression != 1 {
		return nil, GeoRef{}, fmt.Errorf("%s: unsupported compression %d", path, ifd.compression)
	}

	img, err := assembleStrips(data, ifd)
	if err != nil {
		return nil, GeoRef{}, fmt.Errorf("%s: %w", path, err)
	}
	return img, ifd.geoRef(), nil
}

// ReadGeoRef reads only the placement and pixel dimensions of a
// GeoTIFF, without decoding pixel data.
func ReadGeoRef(path string) (GeoRef, int, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GeoRef{}, 0, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	ifd, _, err := parseFirstIFD(data)
	if err != nil {
		return GeoRef{}, 0, 0, fmt.Errorf("parsing %s: %w", path, err)
	}
	return ifd.geoRef(), int(ifd.width), int(ifd.height), nil
}

// geoRef derives the placement from the tiepoint, pixel scale and
// geokey tags. The tiepoint maps pixel (I,J) to world (X,Y); the origin
// is shifted back to pixel (0,0).
func (ifd *fileIFD) geoRef() GeoRef {
	ref := GeoRef{EPSG: epsgFromGeoKeys(ifd.geoKeys)}
	if len(ifd.pixelScale) >= 2 {
		ref.PixelSizeX = ifd.pixelScale[0]
		ref.PixelSizeY = math.Abs(ifd.pixelScale[1])
	}
	if len(ifd.tiepoint) >= 6 {
		ref.OriginX = ifd.tiepoint[3] - ifd.tiepoint[0]*ref.PixelSizeX
		ref.OriginY = ifd.tiepoint[4] + ifd.tiepoint[1]*ref.PixelSizeY
	}
	return ref
}

func parseFirstIFD(data []byte) (*fileIFD, binary.ByteOrder, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("file too short (%d bytes)", len(data))
	}
	var bo binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		bo = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		bo = binary.BigEndian
	default:
		return nil, nil, fmt.Errorf("not a TIFF file")
	}
	if bo.Uint16(data[2:]) != 42 {
		return nil, nil, fmt.Errorf("unexpected TIFF version %d", bo.Uint16(data[2:]))
	}

	ifdOffset := bo.Uint32(data[4:])
	if int(ifdOffset)+2 > len(data) {
		return nil, nil, fmt.Errorf("IFD offset %d out of range", ifdOffset)
	}

	count := int(bo.Uint16(data[ifdOffset:]))
	base := int(ifdOffset) + 2
	if base+count*12 > len(data) {
		return nil, nil, fmt.Errorf("truncated IFD (%d entries)", count)
	}

	ifd := &fileIFD{compression: 1, samplesPerPixel: 1}
	for i := 0; i < count; i++ {
		entry := data[base+i*12 : base+i*12+12]
		tag := bo.Uint16(entry)
		fieldType := bo.Uint16(entry[2:])
		valueCount := bo.Uint32(entry[4:])

		raw, err := fieldBytes(data, bo, fieldType, valueCount, entry[8:12])
		if err != nil {
			return nil, nil, fmt.Errorf("tag %d: %w", tag, err)
		}

		switch tag {
		case tagImageWidth:
			ifd.width = firstUint(bo, fieldType, raw)
		case tagImageLength:
			ifd.height = firstUint(bo, fieldType, raw)
		case tagCompression:
			ifd.compression = uint16(firstUint(bo, fieldType, raw))
		case tagSamplesPerPixel:
			ifd.samplesPerPixel = uint16(firstUint(bo, fieldType, raw))
		case tagRowsPerStrip:
			ifd.rowsPerStrip = firstUint(bo, fieldType, raw)
		case tagStripOffsets:
			ifd.stripOffsets = uints(bo, fieldType, valueCount, raw)
		case tagStripByteCounts:
			ifd.stripByteCounts = uints(bo, fieldType, valueCount, raw)
		case tagModelPixelScale:
			ifd.pixelScale = doubles(bo, valueCount, raw)
		case tagModelTiepoint:
			ifd.tiepoint = doubles(bo, valueCount, raw)
		case tagGeoKeyDirectory:
			ifd.geoKeys = shorts(bo, valueCount, raw)
		}
	}

	if ifd.width == 0 || ifd.height == 0 {
		return nil, nil, fmt.Errorf("missing image dimensions")
	}
	if len(ifd.stripOffsets) == 0 {
		return nil, nil, fmt.Errorf("no strip offsets")
	}
	return ifd, bo, nil
}

// fieldBytes returns the raw value bytes of an IFD entry, following the
// offset into the value area when the value does not fit inline.
func fieldBytes(data []byte, bo binary.ByteOrder, fieldType uint16, count uint32, inline []byte) ([]byte, error) {
	size := fieldTypeSize(fieldType)
	if size == 0 {
		return nil, fmt.Errorf("unsupported field type %d", fieldType)
	}
	total := int(count) * size
	if total <= 4 {
		return inline[:total], nil
	}
	offset := bo.Uint32(inline)
	end := int(offset) + total
	if end > len(data) {
		return nil, fmt.Errorf("value [%d:%d] exceeds file size %d", offset, end, len(data))
	}
	return data[offset:end], nil
}

func fieldTypeSize(fieldType uint16) int {
	switch fieldType {
	case typeByte, typeASCII:
		return 1
	case typeShort:
		return 2
	case typeLong:
		return 4
	case typeRational, typeDouble:
		return 8
	}
	return 0
}

func firstUint(bo binary.ByteOrder, fieldType uint16, raw []byte) uint32 {
	vs := uints(bo, fieldType, 1, raw)
	if len(vs) == 0 {
		return 0
	}
	return vs[0]
}

func uints(bo binary.ByteOrder, fieldType uint16, count uint32, raw []byte) []uint32 {
	vs := make([]uint32, 0, count)
	for i := 0; i < int(count); i++ {
		switch fieldType {
		case typeShort:
			if (i+1)*2 > len(raw) {
				return vs
			}
			vs = append(vs, uint32(bo.Uint16(raw[i*2:])))
		case typeLong:
			if (i+1)*4 > len(raw) {
				return vs
			}
			vs = append(vs, bo.Uint32(raw[i*4:]))
		default:
			return vs
		}
	}
	return vs
}

func shorts(bo binary.ByteOrder, count uint32, raw []byte) []uint16 {
	vs := make([]uint16, 0, count)
	for i := 0; (i+1)*2 <= len(raw) && i < int(count); i++ {
		vs = append(vs, bo.Uint16(raw[i*2:]))
	}
	return vs
}

func doubles(bo binary.ByteOrder, count uint32, raw []byte) []float64 {
	vs := make([]float64, 0, count)
	for i := 0; (i+1)*8 <= len(raw) && i < int(count); i++ {
		vs = append(vs, math.Float64frombits(bo.Uint64(raw[i*8:])))
	}
	return vs
}

// assembleStrips concatenates the uncompressed strips into an RGBA
// image. Samples beyond the fourth are ignored; missing alpha is
// treated as opaque.
func assembleStrips(data []byte, ifd *fileIFD) (*image.RGBA, error) {
	if len(ifd.stripOffsets) != len(ifd.stripByteCounts) {
		return nil, fmt.Errorf("strip offsets/counts mismatch (%d vs %d)",
			len(ifd.stripOffsets), len(ifd.stripByteCounts))
	}

	spp := int(ifd.samplesPerPixel)
	if spp < 1 {
		spp = 1
	}
	pixels := make([]byte, 0, int(ifd.width)*int(ifd.height)*spp)
	for i, off := range ifd.stripOffsets {
		end := int(off) + int(ifd.stripByteCounts[i])
		if end > len(data) {
			return nil, fmt.Errorf("strip %d [%d:%d] exceeds file size %d", i, off, end, len(data))
		}
		pixels = append(pixels, data[off:end]...)
	}

	w, h := int(ifd.width), int(ifd.height)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := (y*w + x) * spp
			if idx+spp > len(pixels) {
				return img, nil
			}
			c := color.RGBA{A: 255}
			c.R = pixels[idx]
			if spp > 1 {
				c.G = pixels[idx+1]
			}
			if spp > 2 {
				c.B = pixels[idx+2]
			}
			if spp > 3 {
				c.A = pixels[idx+3]
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

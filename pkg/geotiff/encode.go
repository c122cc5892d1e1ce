package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"sort"
)

var le = binary.LittleEndian

// fieldSet accumulates IFD entries before layout. Values are kept as
// raw little-endian bytes; whether they fit inline or need an offset
// into the value area is decided at write time.
type fieldSet struct {
	entries []ifdField
}

type ifdField struct {
	tag       uint16
	fieldType uint16
	count     uint32
	value     []byte
}

func (s *fieldSet) addShort(tag uint16, vs ...uint16) {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		le.PutUint16(b[i*2:], v)
	}
	s.entries = append(s.entries, ifdField{tag, typeShort, uint32(len(vs)), b})
}

func (s *fieldSet) addLong(tag uint16, vs ...uint32) {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		le.PutUint32(b[i*4:], v)
	}
	s.entries = append(s.entries, ifdField{tag, typeLong, uint32(len(vs)), b})
}

func (s *fieldSet) addDouble(tag uint16, vs ...float64) {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		le.PutUint64(b[i*8:], math.Float64bits(v))
	}
	s.entries = append(s.entries, ifdField{tag, typeDouble, uint32(len(vs)), b})
}

func (s *fieldSet) addASCII(tag uint16, v string) {
	b := append([]byte(v), 0)
	s.entries = append(s.entries, ifdField{tag, typeASCII, uint32(len(b)), b})
}

func (s *fieldSet) addRational(tag uint16, num, den uint32) {
	b := make([]byte, 8)
	le.PutUint32(b, num)
	le.PutUint32(b[4:], den)
	s.entries = append(s.entries, ifdField{tag, typeRational, 1, b})
}

// Encode writes m to w as an uncompressed RGBA GeoTIFF placed by ref.
// The output is a classic little-endian TIFF with a single IFD and a
// single strip. A non-empty description is stored as the
// ImageDescription tag.
func Encode(w io.Writer, m image.Image, ref GeoRef, description string) error {
	bounds := m.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("cannot encode empty %dx%d image", width, height)
	}
	if width > math.MaxUint16 || height > math.MaxUint16 {
		return fmt.Errorf("image %dx%d exceeds encodable dimensions", width, height)
	}

	pixels := flattenRGBA(m)

	var fs fieldSet
	fs.addShort(tagImageWidth, uint16(width))
	fs.addShort(tagImageLength, uint16(height))
	fs.addShort(tagBitsPerSample, 8, 8, 8, 8)
	fs.addShort(tagCompression, 1) // none
	fs.addShort(tagPhotometricInterpretation, 2) // RGB
	fs.addShort(tagSamplesPerPixel, 4)
	fs.addShort(tagRowsPerStrip, uint16(height))
	fs.addRational(tagXResolution, 72, 1)
	fs.addRational(tagYResolution, 72, 1)
	fs.addShort(tagResolutionUnit, 2) // inch

	if description != "" {
		fs.addASCII(tagImageDescription, description)
	}

	fs.addDouble(tagModelPixelScale, ref.PixelSizeX, math.Abs(ref.PixelSizeY), 0)
	// Ties pixel (0,0,0) to world coordinate (originX, originY, 0).
	fs.addDouble(tagModelTiepoint, 0, 0, 0, ref.OriginX, ref.OriginY, 0)
	fs.addShort(tagGeoKeyDirectory, ref.geoKeyDirectory()...)

	// Strip location is patched after layout is known.
	fs.addLong(tagStripOffsets, 0)
	fs.addLong(tagStripByteCounts, uint32(len(pixels)))

	sort.Slice(fs.entries, func(i, j int) bool {
		return fs.entries[i].tag < fs.entries[j].tag
	})

	// Layout: 8-byte header, IFD at offset 8, value area after the IFD,
	// pixel strip after the value area.
	ifdSize := 2 + 12*len(fs.entries) + 4
	valueOffset := uint32(8 + ifdSize)

	var valueArea bytes.Buffer
	for i := range fs.entries {
		f := &fs.entries[i]
		if len(f.value) <= 4 {
			continue
		}
		off := valueOffset + uint32(valueArea.Len())
		valueArea.Write(f.value)
		f.value = encLong(off)
	}

	stripOffset := valueOffset + uint32(valueArea.Len())
	for i := range fs.entries {
		if fs.entries[i].tag == tagStripOffsets {
			fs.entries[i].value = encLong(stripOffset)
		}
	}

	var out bytes.Buffer
	out.Write([]byte{'I', 'I', 42, 0})
	out.Write(encLong(8)) // first IFD offset

	binary.Write(&out, le, uint16(len(fs.entries)))
	for _, f := range fs.entries {
		binary.Write(&out, le, f.tag)
		binary.Write(&out, le, f.fieldType)
		binary.Write(&out, le, f.count)
		var inline [4]byte
		copy(inline[:], f.value)
		out.Write(inline[:])
	}
	out.Write(encLong(0)) // no next IFD
	valueArea.WriteTo(&out)
	out.Write(pixels)

	_, err := w.Write(out.Bytes())
	return err
}

// WriteFile encodes m into a new file at path, replacing any existing
// file.
func WriteFile(path string, m image.Image, ref GeoRef, description string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Encode(f, m, ref, description); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

// flattenRGBA serializes the image as interleaved 8-bit RGBA rows.
func flattenRGBA(m image.Image) []byte {
	bounds := m.Bounds()
	out := make([]byte, 0, bounds.Dx()*bounds.Dy()*4)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := m.At(x, y).RGBA()
			out = append(out, uint8(r>>8), uint8(g>>8), uint8(b>>8), uint8(a>>8))
		}
	}
	return out
}

func encLong(v uint32) []byte {
	b := make([]byte, 4)
	le.PutUint32(b, v)
	return b
}

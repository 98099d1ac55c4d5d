package encoder

// PlanarImage is the driver's concrete Image implementation: a caller-owned
// set of byte planes plus the metadata describing their layout (spec.md §6's
// "image referencing planar pixel data, pixel format, and colour info").
// Callers in cmd/h264encd and internal/transport construct one of these
// directly from decoded file frames or a capture source; this package never
// allocates one itself beyond the NV12 fallback buffers in colorconvert.go.
type PlanarImage struct {
	Format  PixelFormat
	W, H    uint32
	Plane   [][]byte
	Stride  []int
}

func (p PlanarImage) PixelFormat() PixelFormat { return p.Format }
func (p PlanarImage) Width() uint32            { return p.W }
func (p PlanarImage) Height() uint32           { return p.H }
func (p PlanarImage) Planes() [][]byte         { return p.Plane }
func (p PlanarImage) Strides() []int           { return p.Stride }

// NewPackedImage wraps a single-plane packed buffer (RGBA/BGRA/RGB/BGR) with
// its natural stride (width * bytes-per-pixel).
func NewPackedImage(format PixelFormat, width, height uint32, data []byte) PlanarImage {
	return PlanarImage{
		Format: format,
		W:      width,
		H:      height,
		Plane:  [][]byte{data},
		Stride: []int{int(width) * bytesPerPixel(format)},
	}
}

// NewNV12Image wraps an already-converted NV12 buffer as two planes: Y
// (width*height bytes) followed by interleaved UV (width*height/2 bytes).
func NewNV12Image(width, height uint32, y, uv []byte) PlanarImage {
	return PlanarImage{
		Format: PixelFormatNV12,
		W:      width,
		H:      height,
		Plane:  [][]byte{y, uv},
		Stride: []int{int(width), int(width)},
	}
}

func bytesPerPixel(format PixelFormat) int {
	switch format {
	case PixelFormatRGBA, PixelFormatBGRA:
		return 4
	case PixelFormatRGB, PixelFormatBGR:
		return 3
	default:
		return 1
	}
}

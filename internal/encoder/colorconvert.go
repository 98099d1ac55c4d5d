package encoder

import "sync"

// nv12Pool pools NV12 conversion buffers for a fixed resolution, avoiding an
// allocation on every upload_image_to_slot call for the common case where
// every frame in a session shares one resolution.
var nv12Pool = struct {
	pool sync.Pool
	w, h uint32
	mu   sync.Mutex
}{}

func getNV12Buffer(w, h uint32) []byte {
	size := int(w)*int(h) + int(w)*int(h)/2 // Y + interleaved UV
	nv12Pool.mu.Lock()
	if nv12Pool.w == w && nv12Pool.h == h {
		nv12Pool.mu.Unlock()
		if v := nv12Pool.pool.Get(); v != nil {
			return v.([]byte)
		}
		return make([]byte, size)
	}
	nv12Pool.w = w
	nv12Pool.h = h
	nv12Pool.pool = sync.Pool{}
	nv12Pool.mu.Unlock()
	return make([]byte, size)
}

// putNV12Buffer returns a buffer obtained from getNV12Buffer for reuse. The
// caller must not touch buf afterwards.
func putNV12Buffer(buf []byte) {
	nv12Pool.pool.Put(buf)
}

// ReleaseNV12Buffer returns a buffer obtained from ConvertToNV12 to the pool
// once a backend is done reading it, so upload_image_to_slot's allocation is
// actually amortized across a session instead of a fresh slice per frame.
func ReleaseNV12Buffer(buf []byte) {
	putNV12Buffer(buf)
}

// ConvertToNV12 converts img to NV12, the format every backend in this repo
// uploads slot input as. YUV-family formats are passed straight through in
// their already-planar form where possible; RGB-family formats fall back to
// BT.709 full-range conversion (spec.md §6's "caller-provided colour info
// falling back to BT.709 full-range when RGB" rule — this driver has no
// colour-info plumbing of its own, so every RGB image takes the fallback).
func ConvertToNV12(img Image) ([]byte, error) {
	switch img.PixelFormat() {
	case PixelFormatNV12:
		planes := img.Planes()
		if len(planes) != 2 {
			return nil, &ErrUnsupportedImageFormat{Format: img.PixelFormat()}
		}
		return append(append([]byte(nil), planes[0]...), planes[1]...), nil
	case PixelFormatRGBA:
		return packedToNV12BT709(img, 4, 0, 1, 2), nil
	case PixelFormatBGRA:
		return packedToNV12BT709(img, 4, 2, 1, 0), nil
	case PixelFormatRGB:
		return packedToNV12BT709(img, 3, 0, 1, 2), nil
	case PixelFormatBGR:
		return packedToNV12BT709(img, 3, 2, 1, 0), nil
	default:
		return nil, &ErrUnsupportedImageFormat{Format: img.PixelFormat()}
	}
}

// packedToNV12BT709 converts a packed RGB-family image to NV12 using
// full-range BT.709 fixed-point coefficients. rOff/gOff/bOff give each
// channel's byte offset within one pixel (bytesPerPixel wide), so the same
// loop serves RGBA/BGRA/RGB/BGR.
//
// Grounded on the BT.601 limited-range fixed-point conversion in
// colorconv.go, re-derived for full-range BT.709:
//
//	Y  =  0.2126 R + 0.7152 G + 0.0722 B
//	Cb = -0.1146 R - 0.3854 G + 0.5000 B + 128
//	Cr =  0.5000 R - 0.4542 G - 0.0458 B + 128
func packedToNV12BT709(img Image, bytesPerPixel, rOff, gOff, bOff int) []byte {
	width, height := int(img.Width()), int(img.Height())
	planes := img.Planes()
	strides := img.Strides()
	src := planes[0]
	stride := strides[0]

	nv12 := getNV12Buffer(img.Width(), img.Height())
	yPlane := nv12[:width*height]
	uvPlane := nv12[width*height:]

	for y := 0; y < height; y++ {
		rowOff := y * stride
		yOff := y * width
		for x := 0; x < width; x++ {
			pi := rowOff + x*bytesPerPixel
			r := int(src[pi+rOff])
			g := int(src[pi+gOff])
			b := int(src[pi+bOff])

			yVal := (54*r + 183*g + 18*b + 128) >> 8
			yPlane[yOff+x] = clamp8(yVal)

			if y%2 == 0 && x%2 == 0 {
				cb := ((-29*r - 99*g + 128*b + 128) >> 8) + 128
				cr := ((128*r - 116*g - 12*b + 128) >> 8) + 128

				uvIdx := (y/2)*width + (x/2)*2
				uvPlane[uvIdx+0] = clamp8(cb)
				uvPlane[uvIdx+1] = clamp8(cr)
			}
		}
	}
	return nv12
}

func clamp8(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

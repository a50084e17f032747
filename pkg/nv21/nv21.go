// Package nv21 builds and reorders NV21 (YUV 4:2:0, interleaved V/U) frames.
//
// Layout for a w x h frame:
//
//	[0, w*h)            Y plane, one byte per pixel
//	[w*h, w*h + w*h/2)  V,U pairs, one pair per 2x2 block
//
// Conversions use BT.601 studio-range coefficients, the same ones OpenCV
// uses to decode NV21, so a frame built here decodes back to (nearly) the
// source colors.
package nv21

import (
	"fmt"
	"image"
	"image/color"
)

// MaxDimension is the largest supported frame width or height.
// Sizes up to it cannot overflow Size, even with a 32-bit int.
const MaxDimension = 8192

// Size returns the byte length of a w x h NV21 frame.
// Callers bound width and height by MaxDimension first.
func Size(width, height int) int {
	return width*height + width*height/2
}

// Uniform returns a flat w x h frame with luma y and neutral chroma.
func Uniform(width, height int, y byte) []byte {
	buf := make([]byte, Size(width, height))
	lumaLen := width * height
	for i := 0; i < lumaLen; i++ {
		buf[i] = y
	}
	for i := lumaLen; i < len(buf); i++ {
		buf[i] = 128
	}
	return buf
}

// FromImage encodes img as an NV21 frame of the same size.
// Chroma is the average of each 2x2 block. Odd trailing rows or columns
// are dropped from the frame.
func FromImage(img image.Image) []byte {
	b := img.Bounds()
	w := b.Dx() &^ 1
	h := b.Dy() &^ 1
	buf := make([]byte, Size(w, h))
	uv := buf[w*h:]

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl := rgb8(img.At(b.Min.X+x, b.Min.Y+y))
			buf[y*w+x] = luma(r, g, bl)
		}
	}

	for y := 0; y < h; y += 2 {
		for x := 0; x < w; x += 2 {
			var rs, gs, bs int
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					r, g, bl := rgb8(img.At(b.Min.X+x+dx, b.Min.Y+y+dy))
					rs += int(r)
					gs += int(g)
					bs += int(bl)
				}
			}
			u, v := chroma(uint8(rs/4), uint8(gs/4), uint8(bs/4))
			i := (y/2)*w + x
			uv[i] = v
			uv[i+1] = u
		}
	}

	return buf
}

// FromI420 reorders a planar I420 frame (Y, then U plane, then V plane)
// into NV21.
func FromI420(i420 []byte, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("nv21: invalid size %dx%d", width, height)
	}
	n := Size(width, height)
	if len(i420) < n {
		return nil, fmt.Errorf("nv21: i420 buffer has %d bytes, need %d", len(i420), n)
	}

	lumaLen := width * height
	quarter := lumaLen / 4
	uPlane := i420[lumaLen : lumaLen+quarter]
	vPlane := i420[lumaLen+quarter : lumaLen+2*quarter]

	out := make([]byte, n)
	copy(out, i420[:lumaLen])
	uv := out[lumaLen:]
	for i := 0; i < quarter; i++ {
		uv[2*i] = vPlane[i]
		uv[2*i+1] = uPlane[i]
	}
	return out, nil
}

func rgb8(c color.Color) (r, g, b uint8) {
	r32, g32, b32, _ := c.RGBA()
	return uint8(r32 >> 8), uint8(g32 >> 8), uint8(b32 >> 8)
}

func luma(r, g, b uint8) byte {
	y := (66*int(r)+129*int(g)+25*int(b)+128)>>8 + 16
	return clamp(y)
}

func chroma(r, g, b uint8) (u, v byte) {
	uu := (-38*int(r)-74*int(g)+112*int(b)+128)>>8 + 128
	vv := (112*int(r)-94*int(g)-18*int(b)+128)>>8 + 128
	return clamp(uu), clamp(vv)
}

func clamp(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

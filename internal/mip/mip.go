// Package mip builds mip chains and extracts padded pages for the
// vtexbake tool.
package mip

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	xdraw "golang.org/x/image/draw"

	// Registered decoders for Load.
	_ "image/jpeg"
	_ "image/png"
)

// ErrUnsupportedFormat is returned when an image cannot be decoded.
var ErrUnsupportedFormat = errors.New("mip: unsupported image format")

// Chain holds a source image and its downscaled mip levels.
//
// Level 0 is the full-resolution image; each further level halves both
// dimensions. The chain stops while both dimensions remain whole
// multiples of the page size, mirroring the level range the engine
// addresses.
type Chain struct {
	levels []*image.RGBA
}

// Load reads and decodes an image file into RGBA.
func Load(path string) (*image.RGBA, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("mip: open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnsupportedFormat, path, err)
	}
	return toRGBA(img), nil
}

// toRGBA converts any decoded image to tightly addressable RGBA.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Rect, img, b.Min, xdraw.Src)
	return dst
}

// Generate builds the mip chain for src. The source becomes level 0
// and is not copied. Downsampling uses a Catmull-Rom kernel, which
// keeps coarse levels sharp enough for distant sampling.
//
// maxLevels caps the chain; zero derives the deepest chain whose every
// level is a whole number of pageSize pages.
func Generate(src *image.RGBA, pageSize, maxLevels int) (*Chain, error) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if w < pageSize || h < pageSize || w%pageSize != 0 || h%pageSize != 0 {
		return nil, fmt.Errorf("mip: image %dx%d is not a multiple of page size %d", w, h, pageSize)
	}

	levels := chainDepth(w, h, pageSize)
	if maxLevels > 0 && maxLevels < levels {
		levels = maxLevels
	}

	chain := &Chain{levels: make([]*image.RGBA, levels)}
	chain.levels[0] = src
	for i := 1; i < levels; i++ {
		chain.levels[i] = downsample(chain.levels[i-1])
	}
	return chain, nil
}

// downsample produces a half-size level.
func downsample(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, src.Rect.Dx()/2, src.Rect.Dy()/2))
	xdraw.CatmullRom.Scale(dst, dst.Rect, src, src.Rect, xdraw.Src, nil)
	return dst
}

// chainDepth returns how many levels keep both dimensions whole
// multiples of pageSize.
func chainDepth(width, height, pageSize int) int {
	levels := 1
	for m := 1; ; m++ {
		w, h := width>>m, height>>m
		if w < pageSize || h < pageSize || w%pageSize != 0 || h%pageSize != 0 {
			break
		}
		levels = m + 1
	}
	return levels
}

// Level returns the image at mip level n, or nil when out of range.
func (c *Chain) Level(n int) *image.RGBA {
	if c == nil || n < 0 || n >= len(c.levels) {
		return nil
	}
	return c.levels[n]
}

// NumLevels returns the chain depth.
func (c *Chain) NumLevels() int {
	if c == nil {
		return 0
	}
	return len(c.levels)
}

// ExtractPage copies the padded page (pageX, pageY) out of img as
// tightly packed RGBA bytes with edge length pageSize+2*padding.
// Texels outside the image are clamped to the nearest edge texel, so
// bilinear filtering inside the padding never reads garbage.
func ExtractPage(img *image.RGBA, pageX, pageY, pageSize, padding int) []byte {
	edge := pageSize + 2*padding
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := make([]byte, edge*edge*4)

	for y := 0; y < edge; y++ {
		sy := clamp(pageY*pageSize+y-padding, 0, h-1)
		for x := 0; x < edge; x++ {
			sx := clamp(pageX*pageSize+x-padding, 0, w-1)
			src := img.PixOffset(sx, sy)
			dst := (y*edge + x) * 4
			copy(out[dst:dst+4], img.Pix[src:src+4])
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

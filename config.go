package vtex

import (
	"fmt"
	"math/bits"

	"github.com/gogpu/vtex/gpucore"
)

// Default configuration values.
const (
	// DefaultPageSize is the default page edge length in pixels.
	DefaultPageSize = 128

	// DefaultPagePadding is the default border padding around each page,
	// in pixels per side. Padding allows bilinear filtering across page
	// edges without bleeding from neighboring cache slots.
	DefaultPagePadding = 4

	// DefaultFeedbackWidth is the default feedback buffer width.
	DefaultFeedbackWidth = 160

	// DefaultFeedbackHeight is the default feedback buffer height.
	DefaultFeedbackHeight = 90

	// DefaultMaxUploadsPerFrame bounds how many loaded pages the engine
	// uploads into the atlas per frame.
	DefaultMaxUploadsPerFrame = 16

	// DefaultWorkers is the default number of streaming worker goroutines.
	DefaultWorkers = 2

	// MaxVirtualTextures is the registry capacity. The limit comes from
	// the feedback encoding, which stores the texture index in one byte
	// with zero reserved as the invalid sentinel.
	MaxVirtualTextures = 255
)

// Config describes the engine-wide tiling parameters: the physical
// cache shared by all virtual textures, the page geometry, and the
// feedback buffer dimensions.
//
// Zero-valued fields are filled with defaults by Validate, except the
// physical cache dimensions, which must be set explicitly.
type Config struct {
	// PageSize is the page edge length in pixels, excluding padding.
	PageSize int

	// PagePadding is the border padding in pixels on each side of a page.
	// The cache slot size is PageSize + 2*PagePadding.
	PagePadding int

	// PhysicalCacheWidth and PhysicalCacheHeight are the atlas dimensions
	// in pixels. Both must be integer multiples of the padded page size.
	PhysicalCacheWidth  int
	PhysicalCacheHeight int

	// FeedbackWidth and FeedbackHeight are the dimensions of the
	// low-resolution feedback buffer the renderer writes.
	FeedbackWidth  int
	FeedbackHeight int

	// Format is the pixel format of pages and the cache atlas.
	// Zero means RGBA8.
	Format gpucore.TextureFormat
}

// Validate fills defaults and checks the invariants the rest of the
// engine relies on. It is called by NewEngine; configurations that fail
// validation are rejected at construction, never tolerated silently.
func (c *Config) Validate() error {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.FeedbackWidth == 0 {
		c.FeedbackWidth = DefaultFeedbackWidth
	}
	if c.FeedbackHeight == 0 {
		c.FeedbackHeight = DefaultFeedbackHeight
	}
	if c.Format == 0 {
		c.Format = gpucore.TextureFormatRGBA8Unorm
	}

	if c.PageSize < 1 {
		return fmt.Errorf("%w: page size %d", ErrInvalidConfig, c.PageSize)
	}
	if c.PagePadding < 0 {
		return fmt.Errorf("%w: negative page padding %d", ErrInvalidConfig, c.PagePadding)
	}
	if c.FeedbackWidth < 1 || c.FeedbackHeight < 1 {
		return fmt.Errorf("%w: feedback buffer %dx%d", ErrInvalidConfig, c.FeedbackWidth, c.FeedbackHeight)
	}

	padded := c.PaddedPageSize()
	if c.PhysicalCacheWidth < padded || c.PhysicalCacheHeight < padded {
		return fmt.Errorf("%w: physical cache %dx%d holds no %dpx slot",
			ErrZeroCapacity, c.PhysicalCacheWidth, c.PhysicalCacheHeight, padded)
	}
	if c.PhysicalCacheWidth%padded != 0 || c.PhysicalCacheHeight%padded != 0 {
		return fmt.Errorf("%w: physical cache %dx%d is not a multiple of padded page size %d",
			ErrInvalidConfig, c.PhysicalCacheWidth, c.PhysicalCacheHeight, padded)
	}
	return nil
}

// PaddedPageSize returns the cache slot edge length in pixels.
func (c Config) PaddedPageSize() int {
	return c.PageSize + 2*c.PagePadding
}

// PageDataSize returns the byte size of one page payload:
// (PageSize + 2*PagePadding)^2 * bytesPerPixel.
func (c Config) PageDataSize() int {
	p := c.PaddedPageSize()
	return p * p * c.Format.BytesPerPixel()
}

// PhysicalPagesX returns the number of slot columns in the cache atlas.
func (c Config) PhysicalPagesX() int {
	return c.PhysicalCacheWidth / c.PaddedPageSize()
}

// PhysicalPagesY returns the number of slot rows in the cache atlas.
func (c Config) PhysicalPagesY() int {
	return c.PhysicalCacheHeight / c.PaddedPageSize()
}

// TextureConfig describes one virtual texture: its logical pixel
// dimensions, mip chain depth, and world-space mapping.
type TextureConfig struct {
	// VirtualWidth and VirtualHeight are the logical texture dimensions
	// in pixels. Both must be integer multiples of the engine page size
	// at every used mip level.
	VirtualWidth  int
	VirtualHeight int

	// MaxMipLevels limits the mip chain. Zero derives the deepest chain
	// whose coarsest level is still a whole number of pages.
	MaxMipLevels int

	// WorldOriginX and WorldOriginY anchor the texture in world space.
	WorldOriginX float32
	WorldOriginY float32

	// WorldSizeX and WorldSizeY are the world-space extent the texture
	// covers. Zero means one world unit per texel.
	WorldSizeX float32
	WorldSizeY float32

	// MipBias shifts shader mip selection for this texture; positive
	// values sample coarser.
	MipBias float32
}

// validate checks the texture configuration against the engine config,
// filling derived defaults.
func (tc *TextureConfig) validate(engine *Config) error {
	if tc.VirtualWidth < 1 || tc.VirtualHeight < 1 {
		return fmt.Errorf("%w: virtual size %dx%d", ErrInvalidConfig, tc.VirtualWidth, tc.VirtualHeight)
	}
	if tc.VirtualWidth%engine.PageSize != 0 || tc.VirtualHeight%engine.PageSize != 0 {
		return fmt.Errorf("%w: virtual size %dx%d is not a multiple of page size %d",
			ErrInvalidConfig, tc.VirtualWidth, tc.VirtualHeight, engine.PageSize)
	}

	if tc.MaxMipLevels == 0 {
		tc.MaxMipLevels = maxMipChain(tc.VirtualWidth, tc.VirtualHeight, engine.PageSize)
	}
	if tc.MaxMipLevels < 1 {
		return fmt.Errorf("%w: max mip levels %d", ErrInvalidConfig, tc.MaxMipLevels)
	}

	for mip := 0; mip < tc.MaxMipLevels; mip++ {
		w, h := tc.VirtualWidth>>mip, tc.VirtualHeight>>mip
		if w < engine.PageSize || h < engine.PageSize ||
			w%engine.PageSize != 0 || h%engine.PageSize != 0 {
			return fmt.Errorf("%w: mip %d size %dx%d is not a multiple of page size %d",
				ErrInvalidConfig, mip, w, h, engine.PageSize)
		}
	}

	if tc.WorldSizeX == 0 {
		tc.WorldSizeX = float32(tc.VirtualWidth)
	}
	if tc.WorldSizeY == 0 {
		tc.WorldSizeY = float32(tc.VirtualHeight)
	}
	return nil
}

// PagesAcross returns the page grid width at the given mip.
func (tc *TextureConfig) PagesAcross(pageSize, mip int) int {
	return (tc.VirtualWidth >> mip) / pageSize
}

// PagesDown returns the page grid height at the given mip.
func (tc *TextureConfig) PagesDown(pageSize, mip int) int {
	return (tc.VirtualHeight >> mip) / pageSize
}

// maxMipChain returns the number of mip levels for which both dimensions
// stay whole multiples of pageSize. At least one level always exists for
// valid configurations.
func maxMipChain(width, height, pageSize int) int {
	levels := 1
	for mip := 1; ; mip++ {
		w, h := width>>mip, height>>mip
		if w < pageSize || h < pageSize || w%pageSize != 0 || h%pageSize != 0 {
			break
		}
		levels = mip + 1
	}
	// Cap to the address space of the feedback encoding.
	if limit := bits.Len(uint(width)); levels > limit {
		levels = limit
	}
	return levels
}

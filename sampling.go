package vtex

// SampleParams carries everything a shader needs to resolve a virtual
// texture coordinate: one page table lookup plus border padding
// correction. The engine exposes it per texture so renderers can fill
// a uniform block for the sampling shader (see shaders/vtsample.wgsl).
type SampleParams struct {
	// VirtualWidth and VirtualHeight are the logical texture dimensions
	// in pixels.
	VirtualWidth  int
	VirtualHeight int

	// PageSize is the page edge length in pixels, excluding padding.
	PageSize int

	// PagePadding is the border padding in pixels per slot side.
	PagePadding int

	// PhysicalCacheWidth and PhysicalCacheHeight are the atlas
	// dimensions in pixels.
	PhysicalCacheWidth  int
	PhysicalCacheHeight int

	// MaxMipLevel is the coarsest addressable mip.
	MaxMipLevel int

	// MipBias shifts mip selection; positive values sample coarser.
	MipBias float32

	// WorldOriginX/Y anchor the texture in world space, WorldSizeX/Y is
	// the extent it covers. A world position maps to virtual UV as
	// (pos - origin) / size.
	WorldOriginX float32
	WorldOriginY float32
	WorldSizeX   float32
	WorldSizeY   float32
}

// SampleParams returns the sampling constants for a virtual texture.
func (e *Engine) SampleParams(handle TextureHandle) (SampleParams, error) {
	vt, ok := e.reg.get(handle)
	if !ok {
		return SampleParams{}, ErrTextureNotFound
	}

	tc := vt.config
	return SampleParams{
		VirtualWidth:        tc.VirtualWidth,
		VirtualHeight:       tc.VirtualHeight,
		PageSize:            e.config.PageSize,
		PagePadding:         e.config.PagePadding,
		PhysicalCacheWidth:  e.config.PhysicalCacheWidth,
		PhysicalCacheHeight: e.config.PhysicalCacheHeight,
		MaxMipLevel:         tc.MaxMipLevels - 1,
		MipBias:             tc.MipBias,
		WorldOriginX:        tc.WorldOriginX,
		WorldOriginY:        tc.WorldOriginY,
		WorldSizeX:          tc.WorldSizeX,
		WorldSizeY:          tc.WorldSizeY,
	}, nil
}

package vtex

import "fmt"

// ProceduralProvider generates deterministic RGBA8 debug content: a
// checkerboard in page-local coordinates, tinted per mip level, with
// the page coordinates modulating the base color. Useful for examples
// and for validating the paging pipeline without a tile set on disk.
//
// ProceduralProvider is stateless and safe for concurrent use.
type ProceduralProvider struct {
	paddedSize int
	checker    int
}

// mipTints gives each mip level a distinct hue so streaming the wrong
// mip is immediately visible.
var mipTints = [][3]byte{
	{255, 255, 255},
	{255, 128, 128},
	{128, 255, 128},
	{128, 128, 255},
	{255, 255, 128},
	{255, 128, 255},
	{128, 255, 255},
	{192, 192, 192},
}

// NewProceduralProvider creates a provider emitting paddedSize x
// paddedSize RGBA8 pages (paddedSize = PageSize + 2*PagePadding).
func NewProceduralProvider(paddedSize int) (*ProceduralProvider, error) {
	if paddedSize < 1 {
		return nil, fmt.Errorf("%w: padded page size %d", ErrInvalidConfig, paddedSize)
	}
	checker := paddedSize / 8
	if checker < 1 {
		checker = 1
	}
	return &ProceduralProvider{paddedSize: paddedSize, checker: checker}, nil
}

// LoadPage generates the payload for one page.
func (p *ProceduralProvider) LoadPage(id PageID) ([]byte, error) {
	tint := mipTints[int(id.Mip)%len(mipTints)]
	base := [3]byte{
		byte(37*int(id.X) + 101),
		byte(59*int(id.Y) + 67),
		byte(83 * (int(id.X) ^ int(id.Y))),
	}

	data := make([]byte, p.paddedSize*p.paddedSize*4)
	for y := 0; y < p.paddedSize; y++ {
		for x := 0; x < p.paddedSize; x++ {
			o := (y*p.paddedSize + x) * 4
			shade := byte(255)
			if (x/p.checker+y/p.checker)%2 == 0 {
				shade = 160
			}
			data[o+0] = mul8(mul8(base[0], tint[0]), shade)
			data[o+1] = mul8(mul8(base[1], tint[1]), shade)
			data[o+2] = mul8(mul8(base[2], tint[2]), shade)
			data[o+3] = 255
		}
	}
	return data, nil
}

// mul8 multiplies two 8-bit values treating 255 as 1.0.
func mul8(a, b byte) byte {
	return byte((int(a)*int(b) + 127) / 255)
}

// PageDataSize returns the fixed payload size in bytes.
func (p *ProceduralProvider) PageDataSize() int {
	return p.paddedSize * p.paddedSize * 4
}

// PageExists always reports true; procedural pages are infinite.
func (p *ProceduralProvider) PageExists(PageID) bool { return true }

// Compile-time interface check.
var _ PageProvider = (*ProceduralProvider)(nil)

package gpucore

import (
	"errors"
	"fmt"
	"sync"
)

// Adapter errors shared by implementations.
var (
	// ErrInvalidDimensions is returned when a texture or region has
	// non-positive dimensions.
	ErrInvalidDimensions = errors.New("gpucore: invalid dimensions")

	// ErrUnknownResource is returned when an ID does not resolve to a
	// live resource.
	ErrUnknownResource = errors.New("gpucore: unknown resource id")

	// ErrRegionOutOfBounds is returned when a write region is outside
	// texture bounds.
	ErrRegionOutOfBounds = errors.New("gpucore: region is outside texture bounds")

	// ErrSizeMismatch is returned when data length does not match the
	// destination region.
	ErrSizeMismatch = errors.New("gpucore: data size does not match destination")
)

// StubAdapter is an in-memory GPUAdapter implementation.
//
// Textures and buffers are plain byte slices, and all writes take
// effect immediately. The engine's tests run against it, and it doubles
// as a headless fallback when no GPU is available: the paging logic is
// identical, only sampling is absent.
//
// StubAdapter is safe for concurrent use.
type StubAdapter struct {
	mu       sync.Mutex
	nextID   uint64
	textures map[TextureID]*stubTexture
	buffers  map[BufferID][]byte
	submits  int
}

type stubTexture struct {
	width  int
	height int
	format TextureFormat
	data   []byte
}

// NewStubAdapter creates an empty in-memory adapter.
func NewStubAdapter() *StubAdapter {
	return &StubAdapter{
		nextID:   1,
		textures: make(map[TextureID]*stubTexture),
		buffers:  make(map[BufferID][]byte),
	}
}

// CreateTexture creates an in-memory texture filled with zeroes.
func (a *StubAdapter) CreateTexture(desc *TextureDesc) (TextureID, error) {
	if desc == nil || desc.Width <= 0 || desc.Height <= 0 {
		return InvalidID, ErrInvalidDimensions
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	id := TextureID(a.nextID)
	a.nextID++
	a.textures[id] = &stubTexture{
		width:  desc.Width,
		height: desc.Height,
		format: desc.Format,
		data:   make([]byte, desc.Width*desc.Height*desc.Format.BytesPerPixel()),
	}
	return id, nil
}

// DestroyTexture releases an in-memory texture.
func (a *StubAdapter) DestroyTexture(id TextureID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.textures, id)
}

// WriteTexture replaces the full contents of a texture.
func (a *StubAdapter) WriteTexture(id TextureID, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tex, ok := a.textures[id]
	if !ok {
		return ErrUnknownResource
	}
	if len(data) != len(tex.data) {
		return fmt.Errorf("%w: have %d bytes, want %d", ErrSizeMismatch, len(data), len(tex.data))
	}
	copy(tex.data, data)
	return nil
}

// WriteTextureRegion writes tightly packed pixels into a texture region.
func (a *StubAdapter) WriteTextureRegion(id TextureID, x, y, width, height int, data []byte) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidDimensions
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	tex, ok := a.textures[id]
	if !ok {
		return ErrUnknownResource
	}
	if x < 0 || y < 0 || x+width > tex.width || y+height > tex.height {
		return fmt.Errorf("%w: (%d,%d)+(%dx%d) in %dx%d",
			ErrRegionOutOfBounds, x, y, width, height, tex.width, tex.height)
	}

	bpp := tex.format.BytesPerPixel()
	if len(data) != width*height*bpp {
		return fmt.Errorf("%w: have %d bytes, want %d", ErrSizeMismatch, len(data), width*height*bpp)
	}

	srcStride := width * bpp
	dstStride := tex.width * bpp
	for row := 0; row < height; row++ {
		dstOff := (y+row)*dstStride + x*bpp
		copy(tex.data[dstOff:dstOff+srcStride], data[row*srcStride:(row+1)*srcStride])
	}
	return nil
}

// CreateBuffer creates an in-memory buffer filled with zeroes.
func (a *StubAdapter) CreateBuffer(size int, usage BufferUsage) (BufferID, error) {
	if size <= 0 {
		return InvalidID, ErrInvalidDimensions
	}
	_ = usage // all stub buffers are readable and writable

	a.mu.Lock()
	defer a.mu.Unlock()

	id := BufferID(a.nextID)
	a.nextID++
	a.buffers[id] = make([]byte, size)
	return id, nil
}

// DestroyBuffer releases an in-memory buffer.
func (a *StubAdapter) DestroyBuffer(id BufferID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.buffers, id)
}

// WriteBuffer writes data into a buffer at the given offset.
func (a *StubAdapter) WriteBuffer(id BufferID, offset uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.buffers[id]
	if !ok {
		return ErrUnknownResource
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return fmt.Errorf("%w: write [%d:%d) in %d-byte buffer",
			ErrRegionOutOfBounds, offset, offset+uint64(len(data)), len(buf))
	}
	copy(buf[offset:], data)
	return nil
}

// ReadBuffer returns a copy of size bytes at the given offset.
func (a *StubAdapter) ReadBuffer(id BufferID, offset, size uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.buffers[id]
	if !ok {
		return nil, ErrUnknownResource
	}
	if offset+size > uint64(len(buf)) {
		return nil, fmt.Errorf("%w: read [%d:%d) in %d-byte buffer",
			ErrRegionOutOfBounds, offset, offset+size, len(buf))
	}
	out := make([]byte, size)
	copy(out, buf[offset:offset+size])
	return out, nil
}

// Submit is a no-op; stub writes take effect immediately.
func (a *StubAdapter) Submit() {
	a.mu.Lock()
	a.submits++
	a.mu.Unlock()
}

// WaitIdle is a no-op for the stub adapter.
func (a *StubAdapter) WaitIdle() {}

// TexturePixels returns a copy of a texture's raw pixel data.
// Test helper; returns nil for unknown IDs.
func (a *StubAdapter) TexturePixels(id TextureID) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	tex, ok := a.textures[id]
	if !ok {
		return nil
	}
	out := make([]byte, len(tex.data))
	copy(out, tex.data)
	return out
}

// TextureCount returns the number of live textures.
func (a *StubAdapter) TextureCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.textures)
}

// SubmitCount returns how many times Submit was called.
func (a *StubAdapter) SubmitCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.submits
}

// Compile-time interface check.
var _ GPUAdapter = (*StubAdapter)(nil)

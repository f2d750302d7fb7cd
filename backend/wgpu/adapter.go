package wgpu

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vtex/gpucore"
)

// readbackTimeout bounds the wait for a readback submission to retire.
const readbackTimeout = 5 * time.Second

// haltexture pairs a HAL texture with the metadata queue writes need.
type halTexture struct {
	texture hal.Texture
	width   int
	height  int
	format  gpucore.TextureFormat
}

// Adapter implements gpucore.GPUAdapter over a HAL device and queue.
//
// Texture and buffer handles are opaque IDs mapped to HAL resources;
// the engine never sees HAL types. All operations are safe for
// concurrent use, matching the gpucore contract.
type Adapter struct {
	device hal.Device
	queue  hal.Queue

	mu       sync.RWMutex
	textures map[gpucore.TextureID]*halTexture
	buffers  map[gpucore.BufferID]hal.Buffer

	nextID atomic.Uint64
}

// NewAdapter creates an adapter over an open device.
func NewAdapter(d *Device) *Adapter {
	a := &Adapter{
		device:   d.device,
		queue:    d.queue,
		textures: make(map[gpucore.TextureID]*halTexture),
		buffers:  make(map[gpucore.BufferID]hal.Buffer),
	}
	a.nextID.Store(1)
	return a
}

// newID generates a unique resource ID.
func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// CreateTexture creates a sampled, CPU-uploadable GPU texture.
func (a *Adapter) CreateTexture(desc *gpucore.TextureDesc) (gpucore.TextureID, error) {
	if desc == nil || desc.Width <= 0 || desc.Height <= 0 {
		return gpucore.InvalidID, gpucore.ErrInvalidDimensions
	}

	usage := convertTextureUsage(desc.Usage)
	if desc.Usage == 0 {
		usage = convertTextureUsage(gpucore.DefaultTextureUsage)
	}

	texture, err := a.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        convertTextureFormat(desc.Format),
		Usage:         usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create texture: %w", err)
	}

	id := gpucore.TextureID(a.newID())
	a.mu.Lock()
	a.textures[id] = &halTexture{
		texture: texture,
		width:   desc.Width,
		height:  desc.Height,
		format:  desc.Format,
	}
	a.mu.Unlock()
	return id, nil
}

// DestroyTexture releases a GPU texture. Unknown IDs are ignored.
func (a *Adapter) DestroyTexture(id gpucore.TextureID) {
	a.mu.Lock()
	tex, ok := a.textures[id]
	if ok {
		delete(a.textures, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyTexture(tex.texture)
	}
}

// WriteTexture replaces the full contents of a texture.
func (a *Adapter) WriteTexture(id gpucore.TextureID, data []byte) error {
	a.mu.RLock()
	tex, ok := a.textures[id]
	a.mu.RUnlock()
	if !ok {
		return gpucore.ErrUnknownResource
	}

	bpp := tex.format.BytesPerPixel()
	if len(data) != tex.width*tex.height*bpp {
		return fmt.Errorf("%w: have %d bytes, want %d",
			gpucore.ErrSizeMismatch, len(data), tex.width*tex.height*bpp)
	}
	return a.writeRegion(tex, 0, 0, tex.width, tex.height, data)
}

// WriteTextureRegion writes tightly packed pixels into a texture region.
func (a *Adapter) WriteTextureRegion(id gpucore.TextureID, x, y, width, height int, data []byte) error {
	if width <= 0 || height <= 0 {
		return gpucore.ErrInvalidDimensions
	}

	a.mu.RLock()
	tex, ok := a.textures[id]
	a.mu.RUnlock()
	if !ok {
		return gpucore.ErrUnknownResource
	}
	if x < 0 || y < 0 || x+width > tex.width || y+height > tex.height {
		return fmt.Errorf("%w: (%d,%d)+(%dx%d) in %dx%d",
			gpucore.ErrRegionOutOfBounds, x, y, width, height, tex.width, tex.height)
	}
	if len(data) != width*height*tex.format.BytesPerPixel() {
		return fmt.Errorf("%w: have %d bytes, want %d",
			gpucore.ErrSizeMismatch, len(data), width*height*tex.format.BytesPerPixel())
	}
	return a.writeRegion(tex, x, y, width, height, data)
}

func (a *Adapter) writeRegion(tex *halTexture, x, y, width, height int, data []byte) error {
	dst := &hal.ImageCopyTexture{
		Texture:  tex.texture,
		MipLevel: 0,
		Origin:   hal.Origin3D{X: uint32(x), Y: uint32(y), Z: 0},
		Aspect:   gputypes.TextureAspectAll,
	}
	layout := &hal.ImageDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(width * tex.format.BytesPerPixel()),
		RowsPerImage: uint32(height),
	}
	size := &hal.Extent3D{
		Width:              uint32(width),
		Height:             uint32(height),
		DepthOrArrayLayers: 1,
	}
	if err := a.queue.WriteTexture(dst, data, layout, size); err != nil {
		return fmt.Errorf("wgpu: write texture: %w", err)
	}
	return nil
}

// CreateBuffer creates a GPU buffer.
func (a *Adapter) CreateBuffer(size int, usage gpucore.BufferUsage) (gpucore.BufferID, error) {
	if size <= 0 {
		return gpucore.InvalidID, gpucore.ErrInvalidDimensions
	}

	buffer, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "",
		Size:  uint64(size),
		Usage: convertBufferUsage(usage) | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create buffer: %w", err)
	}

	id := gpucore.BufferID(a.newID())
	a.mu.Lock()
	a.buffers[id] = buffer
	a.mu.Unlock()
	return id, nil
}

// DestroyBuffer releases a GPU buffer. Unknown IDs are ignored.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	buffer, ok := a.buffers[id]
	if ok {
		delete(a.buffers, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyBuffer(buffer)
	}
}

// WriteBuffer writes data into a buffer at the given offset.
func (a *Adapter) WriteBuffer(id gpucore.BufferID, offset uint64, data []byte) error {
	a.mu.RLock()
	buffer, ok := a.buffers[id]
	a.mu.RUnlock()
	if !ok {
		return gpucore.ErrUnknownResource
	}
	if len(data) > 0 {
		if err := a.queue.WriteBuffer(buffer, offset, data); err != nil {
			return fmt.Errorf("wgpu: write buffer: %w", err)
		}
	}
	return nil
}

// ReadBuffer copies size bytes out of a buffer through a mappable
// staging buffer, waiting for the copy submission to retire before
// mapping. This is the feedback readback path and runs once per frame
// at most.
func (a *Adapter) ReadBuffer(id gpucore.BufferID, offset, size uint64) ([]byte, error) {
	a.mu.RLock()
	buffer, ok := a.buffers[id]
	a.mu.RUnlock()
	if !ok {
		return nil, gpucore.ErrUnknownResource
	}

	staging, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "vtex-readback-staging",
		Size:  size,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create staging buffer: %w", err)
	}
	defer a.device.DestroyBuffer(staging)

	encoder, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "vtex-readback",
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("vtex-readback"); err != nil {
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}

	encoder.CopyBufferToBuffer(buffer, staging, []hal.BufferCopy{{
		SrcOffset: offset,
		DstOffset: 0,
		Size:      size,
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer a.device.FreeCommandBuffer(cmdBuf)

	index, err := a.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return nil, fmt.Errorf("wgpu: submit readback: %w", err)
	}
	if err := a.waitSubmission(index); err != nil {
		return nil, err
	}

	mapping, err := a.device.MapBuffer(staging, 0, size)
	if err != nil {
		return nil, fmt.Errorf("wgpu: map staging buffer: %w", err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(mapping.Ptr), size))
	if err := a.device.UnmapBuffer(staging); err != nil {
		return nil, fmt.Errorf("wgpu: unmap staging buffer: %w", err)
	}
	return out, nil
}

// waitSubmission polls the queue until the given submission index has
// retired or readbackTimeout passes.
func (a *Adapter) waitSubmission(index uint64) error {
	deadline := time.Now().Add(readbackTimeout)
	for a.queue.PollCompleted() < index {
		if time.Now().After(deadline) {
			return fmt.Errorf("wgpu: submission %d not complete after %v", index, readbackTimeout)
		}
		time.Sleep(100 * time.Microsecond)
	}
	return nil
}

// Submit flushes pending queue work. Queue writes are submitted as
// they are recorded, so this is a checkpoint rather than a flush.
func (a *Adapter) Submit() {}

// WaitIdle blocks until submitted GPU work completes.
func (a *Adapter) WaitIdle() {
	if err := a.device.WaitIdle(); err != nil {
		slogger().Warn("wgpu: idle wait failed", "error", err)
	}
}

// Close releases every resource still tracked by the adapter.
func (a *Adapter) Close() {
	a.mu.Lock()
	textures := a.textures
	buffers := a.buffers
	a.textures = make(map[gpucore.TextureID]*halTexture)
	a.buffers = make(map[gpucore.BufferID]hal.Buffer)
	a.mu.Unlock()

	for _, tex := range textures {
		a.device.DestroyTexture(tex.texture)
	}
	for _, buf := range buffers {
		a.device.DestroyBuffer(buf)
	}
}

// convertTextureFormat converts gpucore.TextureFormat to gputypes.TextureFormat.
func convertTextureFormat(format gpucore.TextureFormat) gputypes.TextureFormat {
	switch format {
	case gpucore.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm
	case gpucore.TextureFormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm
	case gpucore.TextureFormatR8Unorm:
		return gputypes.TextureFormatR8Unorm
	case gpucore.TextureFormatR16Uint:
		return gputypes.TextureFormatR16Uint
	case gpucore.TextureFormatR32Float:
		return gputypes.TextureFormatR32Float
	case gpucore.TextureFormatRG32Float:
		return gputypes.TextureFormatRG32Float
	case gpucore.TextureFormatRGBA32Float:
		return gputypes.TextureFormatRGBA32Float
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// convertTextureUsage converts gpucore.TextureUsage to gputypes.TextureUsage.
func convertTextureUsage(usage gpucore.TextureUsage) gputypes.TextureUsage {
	var result gputypes.TextureUsage
	if usage&gpucore.TextureUsageCopySrc != 0 {
		result |= gputypes.TextureUsageCopySrc
	}
	if usage&gpucore.TextureUsageCopyDst != 0 {
		result |= gputypes.TextureUsageCopyDst
	}
	if usage&gpucore.TextureUsageTextureBinding != 0 {
		result |= gputypes.TextureUsageTextureBinding
	}
	if usage&gpucore.TextureUsageStorageBinding != 0 {
		result |= gputypes.TextureUsageStorageBinding
	}
	if usage&gpucore.TextureUsageRenderAttachment != 0 {
		result |= gputypes.TextureUsageRenderAttachment
	}
	return result
}

// convertBufferUsage converts gpucore.BufferUsage to gputypes.BufferUsage.
func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage
	if usage&gpucore.BufferUsageMapRead != 0 {
		result |= gputypes.BufferUsageMapRead
	}
	if usage&gpucore.BufferUsageMapWrite != 0 {
		result |= gputypes.BufferUsageMapWrite
	}
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= gputypes.BufferUsageUniform
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}
	return result
}

// Compile-time interface check.
var _ gpucore.GPUAdapter = (*Adapter)(nil)

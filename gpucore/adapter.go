package gpucore

// GPUAdapter abstracts over different GPU backend implementations.
//
// The virtual texture engine mutates GPU state only through this
// interface: the physical cache atlas and the page table mirror are
// written via WriteTextureRegion/WriteTexture, and feedback readback
// goes through ReadBuffer. Implementations must be safe for concurrent
// use; the engine itself serializes all writes on its frame thread.
type GPUAdapter interface {
	// === Texture Management ===

	// CreateTexture creates a GPU texture.
	// Returns the texture ID or an error if allocation fails.
	CreateTexture(desc *TextureDesc) (TextureID, error)

	// DestroyTexture releases a GPU texture.
	// Destroying an invalid ID is a no-op.
	DestroyTexture(id TextureID)

	// WriteTexture replaces the full contents of a texture.
	// len(data) must equal width*height*format.BytesPerPixel().
	WriteTexture(id TextureID, data []byte) error

	// WriteTextureRegion writes data into a rectangular region of a
	// texture. data holds width*height tightly packed pixels in the
	// texture's format. The region must lie inside the texture bounds.
	WriteTextureRegion(id TextureID, x, y, width, height int, data []byte) error

	// === Buffer Management ===

	// CreateBuffer creates a GPU buffer of the given size in bytes.
	CreateBuffer(size int, usage BufferUsage) (BufferID, error)

	// DestroyBuffer releases a GPU buffer.
	// Destroying an invalid ID is a no-op.
	DestroyBuffer(id BufferID)

	// WriteBuffer writes data to a buffer at the given byte offset.
	WriteBuffer(id BufferID, offset uint64, data []byte) error

	// ReadBuffer reads size bytes from a buffer at the given byte offset.
	// This may cause a GPU-CPU synchronization stall.
	ReadBuffer(id BufferID, offset, size uint64) ([]byte, error)

	// === Submission ===

	// Submit flushes recorded copies and uploads to the GPU.
	Submit()

	// WaitIdle waits for all GPU operations to complete.
	// Use sparingly as this causes a full GPU-CPU synchronization.
	WaitIdle()
}

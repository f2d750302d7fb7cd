package vtex

import "errors"

// Configuration errors. These are fatal at construction time and are
// never tolerated silently.
var (
	// ErrInvalidConfig is returned when an engine or texture configuration
	// fails validation.
	ErrInvalidConfig = errors.New("vtex: invalid configuration")

	// ErrZeroCapacity is returned when the physical cache would hold no slots.
	ErrZeroCapacity = errors.New("vtex: physical cache has zero capacity")

	// ErrNilProvider is returned when a virtual texture is created without
	// a page provider.
	ErrNilProvider = errors.New("vtex: page provider is nil")

	// ErrNilAdapter is returned when an engine is created without a GPU adapter.
	ErrNilAdapter = errors.New("vtex: GPU adapter is nil")
)

// Runtime errors.
var (
	// ErrEngineClosed is returned when operating on a closed engine.
	ErrEngineClosed = errors.New("vtex: engine is closed")

	// ErrTextureNotFound is returned when a texture handle does not resolve
	// to a live virtual texture.
	ErrTextureNotFound = errors.New("vtex: virtual texture not found")

	// ErrTextureLimit is returned when the registry cannot hold another
	// virtual texture.
	ErrTextureLimit = errors.New("vtex: virtual texture limit reached")

	// ErrCacheFull is returned when the physical cache has no free slot and
	// no evictable resident.
	ErrCacheFull = errors.New("vtex: physical cache is full")

	// ErrPageNotFound is returned by providers when a page does not exist.
	ErrPageNotFound = errors.New("vtex: page not found")

	// ErrPageSizeMismatch is returned when loaded page data does not match
	// the configured page data size.
	ErrPageSizeMismatch = errors.New("vtex: page data size mismatch")

	// ErrPageCorrupt is returned when a page file fails checksum or codec
	// validation.
	ErrPageCorrupt = errors.New("vtex: page file is corrupt")

	// ErrFeedbackSizeMismatch is returned when a raw feedback buffer does
	// not match the configured feedback dimensions.
	ErrFeedbackSizeMismatch = errors.New("vtex: feedback buffer size mismatch")
)

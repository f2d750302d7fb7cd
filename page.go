package vtex

import "fmt"

// TextureHandle identifies a virtual texture registered with an Engine.
//
// The handle is generational: Index selects the registry slot and is
// what the feedback buffer encodes, Generation distinguishes the
// current occupant of that slot from destroyed predecessors. In-flight
// work carrying a stale generation is dropped instead of touching a
// texture that no longer exists.
type TextureHandle struct {
	Index      uint8
	Generation uint32
}

// IsZero returns true for the zero handle, which never resolves.
func (h TextureHandle) IsZero() bool {
	return h.Generation == 0
}

// String returns a compact representation for logs.
func (h TextureHandle) String() string {
	return fmt.Sprintf("vt%d.%d", h.Index, h.Generation)
}

// PageID identifies one page of one virtual texture at one mip level.
// It is a value type: comparable, hashable, and usable as a map key.
type PageID struct {
	// Texture is the owning virtual texture.
	Texture TextureHandle

	// Mip is the mip level, 0 being the finest.
	Mip uint8

	// X and Y are page coordinates within the mip, in units of pages.
	X uint16
	Y uint16
}

// String returns a compact representation for logs.
func (p PageID) String() string {
	return fmt.Sprintf("%s/mip%d/(%d,%d)", p.Texture, p.Mip, p.X, p.Y)
}

// PageState tracks a page through the streaming pipeline.
type PageState uint8

// Page streaming states. A page not present in the state map is Missing.
const (
	// PageMissing means the page has no outstanding work and is not resident.
	PageMissing PageState = iota

	// PageRequested means the page has outstanding streaming work: it is
	// queued, inside a worker, or loaded but not yet placed. The frame
	// thread cannot observe a worker dequeue, so the sub-phases are
	// indistinguishable on purpose.
	PageRequested

	// PageResident means the page occupies a physical slot and is mapped
	// in the page table.
	PageResident
)

// String returns the state name.
func (s PageState) String() string {
	switch s {
	case PageMissing:
		return "Missing"
	case PageRequested:
		return "Requested"
	case PageResident:
		return "Resident"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

package vtex

import "fmt"

// SlotRef is an index into the physical cache's slot pool.
type SlotRef int

// InvalidSlot is returned when no slot is available.
const InvalidSlot SlotRef = -1

// slot is one fixed-size region of the cache atlas.
type slot struct {
	x, y     int    // pixel origin within the atlas
	page     PageID // current occupant, meaningful only while valid
	lastUsed uint64 // frame number of the most recent reference
	valid    bool
}

// PhysicalCache manages the fixed pool of atlas slots.
//
// Every slot is either on the free list or occupied by exactly one
// page; the two sets partition the pool at all times. Eviction scans
// valid slots for the minimum lastUsed frame, breaking ties by lowest
// slot index so the policy is deterministic. The scan is O(N) but N is
// bounded by the atlas size and eviction is rare relative to frame
// rate.
//
// PhysicalCache is confined to the engine's frame thread and needs no
// locking; streaming workers never touch it.
type PhysicalCache struct {
	slots    []slot
	freeList []SlotRef
	occupied int
	slotSize int // padded page size in pixels
	pagesX   int
}

// NewPhysicalCache creates a cache of pagesX*pagesY slots, each
// slotSize pixels square. A pool that would hold no slots is a
// configuration error.
func NewPhysicalCache(pagesX, pagesY, slotSize int) (*PhysicalCache, error) {
	if pagesX < 1 || pagesY < 1 {
		return nil, fmt.Errorf("%w: %dx%d slots", ErrZeroCapacity, pagesX, pagesY)
	}
	if slotSize < 1 {
		return nil, fmt.Errorf("%w: slot size %d", ErrInvalidConfig, slotSize)
	}

	n := pagesX * pagesY
	c := &PhysicalCache{
		slots:    make([]slot, n),
		freeList: make([]SlotRef, 0, n),
		slotSize: slotSize,
		pagesX:   pagesX,
	}
	for i := range c.slots {
		c.slots[i].x = (i % pagesX) * slotSize
		c.slots[i].y = (i / pagesX) * slotSize
	}
	// Push in reverse so slot 0 is allocated first.
	for i := n - 1; i >= 0; i-- {
		c.freeList = append(c.freeList, SlotRef(i))
	}
	return c, nil
}

// Allocate pops a slot from the free list. It returns InvalidSlot and
// false when the pool is exhausted; the caller must evict first.
func (c *PhysicalCache) Allocate() (SlotRef, bool) {
	n := len(c.freeList)
	if n == 0 {
		return InvalidSlot, false
	}
	ref := c.freeList[n-1]
	c.freeList = c.freeList[:n-1]
	return ref, true
}

// Assign marks a slot as occupied by the given page as of frame.
// The slot must have been obtained from Allocate.
func (c *PhysicalCache) Assign(ref SlotRef, page PageID, frame uint64) {
	s := &c.slots[ref]
	s.page = page
	s.lastUsed = frame
	s.valid = true
	c.occupied++
}

// EvictLRU invalidates the least recently used occupied slot, returns
// its previous occupant, and pushes the slot back onto the free list.
// It returns false when no slot is occupied.
func (c *PhysicalCache) EvictLRU() (PageID, bool) {
	best := InvalidSlot
	for i := range c.slots {
		if !c.slots[i].valid {
			continue
		}
		if best == InvalidSlot || c.slots[i].lastUsed < c.slots[best].lastUsed {
			best = SlotRef(i)
		}
	}
	if best == InvalidSlot {
		return PageID{}, false
	}

	s := &c.slots[best]
	page := s.page
	s.valid = false
	c.occupied--
	c.freeList = append(c.freeList, best)
	return page, true
}

// EvictLRUOlderThan behaves like EvictLRU but refuses to evict a slot
// referenced at or after frame. It returns false when every occupied
// slot is pinned by the current frame, in which case the caller defers
// the upload instead of thrashing pages the renderer is sampling right
// now.
func (c *PhysicalCache) EvictLRUOlderThan(frame uint64) (PageID, bool) {
	best := InvalidSlot
	for i := range c.slots {
		if !c.slots[i].valid || c.slots[i].lastUsed >= frame {
			continue
		}
		if best == InvalidSlot || c.slots[i].lastUsed < c.slots[best].lastUsed {
			best = SlotRef(i)
		}
	}
	if best == InvalidSlot {
		return PageID{}, false
	}

	s := &c.slots[best]
	page := s.page
	s.valid = false
	c.occupied--
	c.freeList = append(c.freeList, best)
	return page, true
}

// Release invalidates one specific slot and returns it to the free
// list. Used when a virtual texture is destroyed. Releasing a free slot
// is a no-op.
func (c *PhysicalCache) Release(ref SlotRef) {
	s := &c.slots[ref]
	if !s.valid {
		return
	}
	s.valid = false
	c.occupied--
	c.freeList = append(c.freeList, ref)
}

// MarkUsed refreshes a slot's last-used frame. Called for every slot
// referenced by the current frame's resolved page table, not only on
// load, so residents that keep getting sampled never age out.
func (c *PhysicalCache) MarkUsed(ref SlotRef, frame uint64) {
	if c.slots[ref].valid {
		c.slots[ref].lastUsed = frame
	}
}

// OccupiedBy returns the page occupying a slot, or false if the slot
// is free.
func (c *PhysicalCache) OccupiedBy(ref SlotRef) (PageID, bool) {
	s := &c.slots[ref]
	if !s.valid {
		return PageID{}, false
	}
	return s.page, true
}

// SlotOrigin returns the pixel origin of a slot within the atlas.
func (c *PhysicalCache) SlotOrigin(ref SlotRef) (x, y int) {
	return c.slots[ref].x, c.slots[ref].y
}

// SlotCoords returns a slot's position in units of slots.
func (c *PhysicalCache) SlotCoords(ref SlotRef) (x, y int) {
	i := int(ref)
	return i % c.pagesX, i / c.pagesX
}

// ResidentOf appends to dst the slots currently occupied by pages of
// the given texture. Used when destroying a virtual texture.
func (c *PhysicalCache) ResidentOf(handle TextureHandle, dst []SlotRef) []SlotRef {
	for i := range c.slots {
		if c.slots[i].valid && c.slots[i].page.Texture == handle {
			dst = append(dst, SlotRef(i))
		}
	}
	return dst
}

// Capacity returns the total number of slots.
func (c *PhysicalCache) Capacity() int { return len(c.slots) }

// Occupied returns the number of occupied slots.
func (c *PhysicalCache) Occupied() int { return c.occupied }

// FreeCount returns the length of the free list.
func (c *PhysicalCache) FreeCount() int { return len(c.freeList) }

// Utilization returns the fraction of occupied slots (0.0 to 1.0).
func (c *PhysicalCache) Utilization() float64 {
	if len(c.slots) == 0 {
		return 0
	}
	return float64(c.occupied) / float64(len(c.slots))
}

package vtex

import "testing"

func handle(index uint8) TextureHandle {
	return TextureHandle{Index: index, Generation: 1}
}

func page(index uint8, mip uint8, x, y uint16) PageID {
	return PageID{Texture: handle(index), Mip: mip, X: x, Y: y}
}

func TestNewPhysicalCache(t *testing.T) {
	c, err := NewPhysicalCache(4, 2, 136)
	if err != nil {
		t.Fatalf("NewPhysicalCache failed: %v", err)
	}
	if c.Capacity() != 8 {
		t.Errorf("expected capacity 8, got %d", c.Capacity())
	}
	if c.Occupied() != 0 {
		t.Errorf("expected empty cache, got %d occupied", c.Occupied())
	}
	if c.FreeCount() != 8 {
		t.Errorf("expected 8 free slots, got %d", c.FreeCount())
	}
}

func TestNewPhysicalCacheZeroCapacity(t *testing.T) {
	if _, err := NewPhysicalCache(0, 4, 136); err == nil {
		t.Error("expected error for zero slot columns")
	}
	if _, err := NewPhysicalCache(4, 0, 136); err == nil {
		t.Error("expected error for zero slot rows")
	}
}

func TestCacheAllocateOrder(t *testing.T) {
	c, _ := NewPhysicalCache(2, 2, 10)

	// Slots come out in index order starting at 0.
	for want := 0; want < 4; want++ {
		ref, ok := c.Allocate()
		if !ok {
			t.Fatalf("Allocate %d failed", want)
		}
		if int(ref) != want {
			t.Errorf("expected slot %d, got %d", want, ref)
		}
	}

	if _, ok := c.Allocate(); ok {
		t.Error("expected exhausted pool to fail Allocate")
	}
}

func TestCacheCapacityInvariant(t *testing.T) {
	c, _ := NewPhysicalCache(4, 4, 10)

	check := func(when string) {
		t.Helper()
		if c.Occupied()+c.FreeCount() != c.Capacity() {
			t.Errorf("%s: occupied %d + free %d != capacity %d",
				when, c.Occupied(), c.FreeCount(), c.Capacity())
		}
	}

	check("initial")
	refs := make([]SlotRef, 0, 16)
	for i := 0; i < 16; i++ {
		ref, _ := c.Allocate()
		c.Assign(ref, page(1, 0, uint16(i), 0), uint64(i))
		refs = append(refs, ref)
		check("after assign")
	}
	for i := 0; i < 5; i++ {
		if _, ok := c.EvictLRU(); !ok {
			t.Fatal("EvictLRU failed on occupied cache")
		}
		check("after evict")
	}
	c.Release(refs[10])
	check("after release")
	c.Release(refs[10]) // releasing a free slot is a no-op
	check("after double release")
}

func TestCacheEvictLRU(t *testing.T) {
	c, _ := NewPhysicalCache(2, 2, 10)

	// Fill with pages A..D touched at increasing frames.
	pages := []PageID{
		page(1, 0, 0, 0),
		page(1, 0, 1, 0),
		page(1, 0, 2, 0),
		page(1, 0, 3, 0),
	}
	for i, p := range pages {
		ref, _ := c.Allocate()
		c.Assign(ref, p, uint64(i+1))
	}

	// A is oldest: it goes first.
	evicted, ok := c.EvictLRU()
	if !ok {
		t.Fatal("EvictLRU failed")
	}
	if evicted != pages[0] {
		t.Errorf("expected %v evicted, got %v", pages[0], evicted)
	}

	// The freed slot accepts page E; B is now oldest.
	ref, ok := c.Allocate()
	if !ok {
		t.Fatal("Allocate after evict failed")
	}
	c.Assign(ref, page(1, 0, 4, 0), 5)

	evicted, _ = c.EvictLRU()
	if evicted != pages[1] {
		t.Errorf("expected %v evicted, got %v", pages[1], evicted)
	}
}

func TestCacheEvictLRUTieBreak(t *testing.T) {
	c, _ := NewPhysicalCache(2, 2, 10)

	// All four slots share the same frame stamp; the lowest slot index
	// must be chosen every time.
	pages := []PageID{
		page(1, 0, 0, 0),
		page(1, 0, 1, 0),
		page(1, 0, 2, 0),
		page(1, 0, 3, 0),
	}
	for _, p := range pages {
		ref, _ := c.Allocate()
		c.Assign(ref, p, 7)
	}

	for i := 0; i < 4; i++ {
		evicted, ok := c.EvictLRU()
		if !ok {
			t.Fatalf("EvictLRU %d failed", i)
		}
		if evicted != pages[i] {
			t.Errorf("eviction %d: expected %v, got %v", i, pages[i], evicted)
		}
	}

	if _, ok := c.EvictLRU(); ok {
		t.Error("expected EvictLRU to fail on empty cache")
	}
}

func TestCacheMarkUsedProtectsFromEviction(t *testing.T) {
	c, _ := NewPhysicalCache(2, 1, 10)

	refA, _ := c.Allocate()
	c.Assign(refA, page(1, 0, 0, 0), 1)
	refB, _ := c.Allocate()
	c.Assign(refB, page(1, 0, 1, 0), 2)

	// Refresh A; B becomes the eviction victim despite older assignment.
	c.MarkUsed(refA, 3)

	evicted, _ := c.EvictLRU()
	if evicted != page(1, 0, 1, 0) {
		t.Errorf("expected refreshed page to survive, evicted %v", evicted)
	}
}

func TestCacheEvictLRUOlderThan(t *testing.T) {
	c, _ := NewPhysicalCache(2, 1, 10)

	refA, _ := c.Allocate()
	c.Assign(refA, page(1, 0, 0, 0), 5)
	refB, _ := c.Allocate()
	c.Assign(refB, page(1, 0, 1, 0), 5)

	// Both residents were touched at frame 5: nothing is evictable.
	if _, ok := c.EvictLRUOlderThan(5); ok {
		t.Error("expected no evictable slot when all are pinned")
	}

	// One frame later both age out; lowest index goes first.
	evicted, ok := c.EvictLRUOlderThan(6)
	if !ok {
		t.Fatal("expected an evictable slot")
	}
	if evicted != page(1, 0, 0, 0) {
		t.Errorf("expected slot 0 occupant evicted, got %v", evicted)
	}
}

func TestCacheSlotGeometry(t *testing.T) {
	c, _ := NewPhysicalCache(4, 2, 136)

	x, y := c.SlotOrigin(0)
	if x != 0 || y != 0 {
		t.Errorf("slot 0 origin: expected (0,0), got (%d,%d)", x, y)
	}
	x, y = c.SlotOrigin(5)
	if x != 136 || y != 136 {
		t.Errorf("slot 5 origin: expected (136,136), got (%d,%d)", x, y)
	}

	sx, sy := c.SlotCoords(5)
	if sx != 1 || sy != 1 {
		t.Errorf("slot 5 coords: expected (1,1), got (%d,%d)", sx, sy)
	}
	sx, sy = c.SlotCoords(7)
	if sx != 3 || sy != 1 {
		t.Errorf("slot 7 coords: expected (3,1), got (%d,%d)", sx, sy)
	}
}

func TestCacheResidentOf(t *testing.T) {
	c, _ := NewPhysicalCache(2, 2, 10)

	ref, _ := c.Allocate()
	c.Assign(ref, page(1, 0, 0, 0), 1)
	ref, _ = c.Allocate()
	c.Assign(ref, page(2, 0, 0, 0), 1)
	ref, _ = c.Allocate()
	c.Assign(ref, page(1, 1, 0, 0), 1)

	refs := c.ResidentOf(handle(1), nil)
	if len(refs) != 2 {
		t.Fatalf("expected 2 slots for texture 1, got %d", len(refs))
	}
	for _, r := range refs {
		p, ok := c.OccupiedBy(r)
		if !ok || p.Texture != handle(1) {
			t.Errorf("slot %d: expected texture 1 occupant, got %v", r, p)
		}
	}

	if refs := c.ResidentOf(handle(9), nil); len(refs) != 0 {
		t.Errorf("expected no slots for unknown texture, got %d", len(refs))
	}
}

func TestCacheUtilization(t *testing.T) {
	c, _ := NewPhysicalCache(2, 2, 10)

	if u := c.Utilization(); u != 0 {
		t.Errorf("expected 0 utilization, got %f", u)
	}
	ref, _ := c.Allocate()
	c.Assign(ref, page(1, 0, 0, 0), 1)
	if u := c.Utilization(); u != 0.25 {
		t.Errorf("expected 0.25 utilization, got %f", u)
	}
}

func BenchmarkCacheEvictLRU(b *testing.B) {
	c, _ := NewPhysicalCache(64, 64, 136)
	for i := 0; i < c.Capacity(); i++ {
		ref, _ := c.Allocate()
		c.Assign(ref, page(1, 0, uint16(i%256), uint16(i/256)), uint64(i))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p, _ := c.EvictLRU()
		ref, _ := c.Allocate()
		c.Assign(ref, p, uint64(c.Capacity()+i))
	}
}

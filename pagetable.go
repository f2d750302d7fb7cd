package vtex

// tableEntry is one virtual->physical mapping.
type tableEntry struct {
	slot  SlotRef
	slotX uint16 // slot column in the atlas, in units of slots
	slotY uint16 // slot row in the atlas, in units of slots
	valid bool
}

// PageTable holds the virtual->physical indirection for one virtual
// texture across its whole mip chain, plus the serialized mip-0 mirror
// uploaded to the GPU.
//
// The table is a flat array per mip indexed by pageY*width+pageX; it
// only ever needs point insert, overwrite, and clear, so no hashing is
// involved at sample time.
//
// PageTable is confined to the engine's frame thread.
type PageTable struct {
	mips    [][]tableEntry
	widths  []int
	heights []int
	mapped  int
	dirty   bool
}

// newPageTable creates an empty table for the given texture geometry.
func newPageTable(tc *TextureConfig, pageSize int) *PageTable {
	t := &PageTable{
		mips:    make([][]tableEntry, tc.MaxMipLevels),
		widths:  make([]int, tc.MaxMipLevels),
		heights: make([]int, tc.MaxMipLevels),
		dirty:   true,
	}
	for mip := 0; mip < tc.MaxMipLevels; mip++ {
		w := tc.PagesAcross(pageSize, mip)
		h := tc.PagesDown(pageSize, mip)
		t.mips[mip] = make([]tableEntry, w*h)
		t.widths[mip] = w
		t.heights[mip] = h
	}
	return t
}

// index returns the flat index for a page, or -1 when the page lies
// outside the table. Out-of-range pages come from garbage feedback
// values and are ignored by the caller.
func (t *PageTable) index(p PageID) int {
	if int(p.Mip) >= len(t.mips) {
		return -1
	}
	w, h := t.widths[p.Mip], t.heights[p.Mip]
	if int(p.X) >= w || int(p.Y) >= h {
		return -1
	}
	return int(p.Y)*w + int(p.X)
}

// Set maps a page to a physical slot, overwriting any stale mapping
// for the same virtual coordinate.
func (t *PageTable) Set(p PageID, ref SlotRef, slotX, slotY int) {
	i := t.index(p)
	if i < 0 {
		return
	}
	e := &t.mips[p.Mip][i]
	if !e.valid {
		t.mapped++
	}
	*e = tableEntry{slot: ref, slotX: uint16(slotX), slotY: uint16(slotY), valid: true}
	t.dirty = true
}

// Clear removes the mapping for a page. It must be called in the same
// transaction as the cache eviction that frees the page's slot, so the
// table never points at a slot that has been reused.
func (t *PageTable) Clear(p PageID) {
	i := t.index(p)
	if i < 0 {
		return
	}
	e := &t.mips[p.Mip][i]
	if e.valid {
		t.mapped--
		e.valid = false
		t.dirty = true
	}
}

// Lookup returns the slot a page is mapped to.
func (t *PageTable) Lookup(p PageID) (SlotRef, bool) {
	i := t.index(p)
	if i < 0 {
		return InvalidSlot, false
	}
	e := &t.mips[p.Mip][i]
	if !e.valid {
		return InvalidSlot, false
	}
	return e.slot, true
}

// Len returns the number of live mappings across all mips.
func (t *PageTable) Len() int { return t.mapped }

// Dirty reports whether the mirror changed since the last Serialize
// call.
func (t *PageTable) Dirty() bool { return t.dirty }

// Serialize writes the GPU mirror into buf as one RGBA8 texel per
// mip-0 page. Each texel resolves to the finest resident page covering
// that coordinate, so the shader falls back to coarser mips with a
// single fetch:
//
//	R = slot column, G = slot row, B = mip of the resolved entry,
//	A = 255; A = 0 when no level covering the texel is resident.
//
// The buffer is reused when it has capacity. Serialize clears the
// dirty flag.
func (t *PageTable) Serialize(buf []byte) []byte {
	w := t.widths[0]
	n := len(t.mips[0]) * 4
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]

	for i := range t.mips[0] {
		x, y := i%w, i/w
		o := i * 4

		resolved := false
		for m := 0; m < len(t.mips) && !resolved; m++ {
			e := &t.mips[m][(y>>m)*t.widths[m]+(x>>m)]
			if e.valid {
				buf[o+0] = byte(e.slotX)
				buf[o+1] = byte(e.slotY)
				buf[o+2] = byte(m)
				buf[o+3] = 0xFF
				resolved = true
			}
		}
		if !resolved {
			buf[o+0] = 0
			buf[o+1] = 0
			buf[o+2] = 0
			buf[o+3] = 0
		}
	}
	t.dirty = false
	return buf
}

// MirrorWidth returns the mip-0 table width in entries.
func (t *PageTable) MirrorWidth() int { return t.widths[0] }

// MirrorHeight returns the mip-0 table height in entries.
func (t *PageTable) MirrorHeight() int { return t.heights[0] }

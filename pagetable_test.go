package vtex

import "testing"

func testTable(t *testing.T, virtualW, virtualH, pageSize, mips int) *PageTable {
	t.Helper()
	tc := TextureConfig{VirtualWidth: virtualW, VirtualHeight: virtualH, MaxMipLevels: mips}
	cfg := Config{PageSize: pageSize}
	if err := tc.validate(&cfg); err != nil {
		t.Fatalf("texture config invalid: %v", err)
	}
	return newPageTable(&tc, pageSize)
}

func TestPageTableSetLookupClear(t *testing.T) {
	table := testTable(t, 512, 512, 128, 2)

	p := page(1, 0, 2, 3)
	if _, ok := table.Lookup(p); ok {
		t.Error("expected empty table to miss")
	}

	table.Set(p, 7, 3, 1)
	ref, ok := table.Lookup(p)
	if !ok {
		t.Fatal("expected mapped page to resolve")
	}
	if ref != 7 {
		t.Errorf("expected slot 7, got %d", ref)
	}
	if table.Len() != 1 {
		t.Errorf("expected 1 mapping, got %d", table.Len())
	}

	// Overwrite keeps the count stable.
	table.Set(p, 9, 1, 2)
	ref, _ = table.Lookup(p)
	if ref != 9 {
		t.Errorf("expected slot 9 after overwrite, got %d", ref)
	}
	if table.Len() != 1 {
		t.Errorf("expected 1 mapping after overwrite, got %d", table.Len())
	}

	table.Clear(p)
	if _, ok := table.Lookup(p); ok {
		t.Error("expected cleared page to miss")
	}
	if table.Len() != 0 {
		t.Errorf("expected 0 mappings, got %d", table.Len())
	}

	// Clearing twice is a no-op.
	table.Clear(p)
	if table.Len() != 0 {
		t.Errorf("expected 0 mappings after double clear, got %d", table.Len())
	}
}

func TestPageTableMipIndependence(t *testing.T) {
	table := testTable(t, 512, 512, 128, 2)

	p0 := page(1, 0, 1, 1)
	p1 := page(1, 1, 1, 1)
	table.Set(p0, 3, 3, 0)
	table.Set(p1, 5, 1, 1)

	r0, _ := table.Lookup(p0)
	r1, _ := table.Lookup(p1)
	if r0 != 3 || r1 != 5 {
		t.Errorf("expected mips mapped independently, got %d and %d", r0, r1)
	}
	if table.Len() != 2 {
		t.Errorf("expected 2 mappings, got %d", table.Len())
	}
}

func TestPageTableOutOfRange(t *testing.T) {
	table := testTable(t, 512, 512, 128, 2)

	cases := []PageID{
		page(1, 0, 4, 0),  // x past mip 0 grid
		page(1, 0, 0, 4),  // y past mip 0 grid
		page(1, 1, 2, 0),  // x past mip 1 grid
		page(1, 5, 0, 0),  // mip past chain
		page(1, 0, 255, 255),
	}
	for _, p := range cases {
		table.Set(p, 1, 0, 0)
		if _, ok := table.Lookup(p); ok {
			t.Errorf("expected out-of-range page %v to be ignored", p)
		}
	}
	if table.Len() != 0 {
		t.Errorf("expected no mappings from out-of-range sets, got %d", table.Len())
	}
}

func TestPageTableSerialize(t *testing.T) {
	table := testTable(t, 512, 512, 128, 1)

	if table.MirrorWidth() != 4 || table.MirrorHeight() != 4 {
		t.Fatalf("expected 4x4 mirror, got %dx%d", table.MirrorWidth(), table.MirrorHeight())
	}
	if !table.Dirty() {
		t.Error("expected fresh table to be dirty")
	}

	table.Set(page(1, 0, 2, 1), 5, 1, 1)
	buf := table.Serialize(nil)
	if len(buf) != 4*4*4 {
		t.Fatalf("expected 64-byte mirror, got %d", len(buf))
	}
	if table.Dirty() {
		t.Error("expected Serialize to clear the dirty flag")
	}

	// Entry (2,1) carries the slot coords, mip 0, full alpha.
	o := (1*4 + 2) * 4
	if buf[o] != 1 || buf[o+1] != 1 || buf[o+2] != 0 || buf[o+3] != 0xFF {
		t.Errorf("mapped texel: expected (1,1,0,255), got (%d,%d,%d,%d)",
			buf[o], buf[o+1], buf[o+2], buf[o+3])
	}

	// Every other texel is fully unmapped.
	for i := 0; i < 16; i++ {
		if i == 1*4+2 {
			continue
		}
		if buf[i*4+3] != 0 {
			t.Errorf("texel %d: expected zero alpha, got %d", i, buf[i*4+3])
		}
	}

	// The buffer is reused when it has capacity.
	buf2 := table.Serialize(buf)
	if &buf2[0] != &buf[0] {
		t.Error("expected Serialize to reuse the provided buffer")
	}
}

func TestPageTableSerializeFallback(t *testing.T) {
	table := testTable(t, 512, 512, 128, 2)

	// Mip 1 page (0,0) covers mip 0 pages (0..1, 0..1).
	table.Set(page(1, 1, 0, 0), 3, 2, 0)
	if !table.Dirty() {
		t.Error("expected coarse mutation to dirty the mirror")
	}
	buf := table.Serialize(nil)

	for _, i := range []int{0, 1, 4, 5} {
		o := i * 4
		if buf[o] != 2 || buf[o+1] != 0 || buf[o+2] != 1 || buf[o+3] != 0xFF {
			t.Errorf("texel %d: expected coarse entry (2,0,1,255), got (%d,%d,%d,%d)",
				i, buf[o], buf[o+1], buf[o+2], buf[o+3])
		}
	}
	// Texels outside the coarse page's footprint stay unmapped.
	if buf[2*4+3] != 0 || buf[10*4+3] != 0 {
		t.Error("expected texels outside the coarse footprint to stay unmapped")
	}

	// A finer page shadows its ancestor within its own footprint.
	table.Set(page(1, 0, 1, 0), 6, 0, 1)
	buf = table.Serialize(buf)
	o := 1 * 4
	if buf[o] != 0 || buf[o+1] != 1 || buf[o+2] != 0 {
		t.Errorf("texel 1: expected fine entry (0,1,0), got (%d,%d,%d)", buf[o], buf[o+1], buf[o+2])
	}
	o = 0
	if buf[o+2] != 1 || buf[o+3] != 0xFF {
		t.Error("expected texel 0 to keep the coarse entry")
	}

	// Evicting the coarse page uncovers only its remaining texels.
	table.Clear(page(1, 1, 0, 0))
	buf = table.Serialize(buf)
	if buf[3] != 0 || buf[4*4+3] != 0 || buf[5*4+3] != 0 {
		t.Error("expected uncovered texels to go unmapped after coarse clear")
	}
	if buf[1*4+2] != 0 || buf[1*4+3] != 0xFF {
		t.Error("expected fine entry to survive coarse clear")
	}
}

func BenchmarkPageTableSerialize(b *testing.B) {
	tc := TextureConfig{VirtualWidth: 8192, VirtualHeight: 8192, MaxMipLevels: 1}
	cfg := Config{PageSize: 128}
	if err := tc.validate(&cfg); err != nil {
		b.Fatalf("texture config invalid: %v", err)
	}
	table := newPageTable(&tc, 128)
	for i := 0; i < 64; i++ {
		table.Set(page(1, 0, uint16(i), uint16(i)), SlotRef(i), i%8, i/8)
	}

	var buf []byte
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf = table.Serialize(buf)
	}
}

package vtex

import (
	"errors"
	"testing"
	"time"
)

// newStreamerFixture wires a registry with one texture whose provider
// is the given function, plus a streamer over it.
func newStreamerFixture(t *testing.T, workers int, load func(PageID) ([]byte, error)) (*streamer, *registry, TextureHandle) {
	t.Helper()

	r := &registry{}
	vt := newTestVT()
	vt.provider = ProviderFunc{Size: 4, Load: load}
	h, err := r.create(vt)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var totals Totals
	s := newStreamer(r, &totals, workers, 16)
	t.Cleanup(s.close)
	return s, r, h
}

// drainUntil pumps drain until n pages were processed or the deadline
// expires. place classifies every page as successfully uploaded unless
// overridden.
func drainUntil(t *testing.T, s *streamer, n int, place func(loadedPage) placeResult) (uploaded, dropped int) {
	t.Helper()
	if place == nil {
		place = func(loadedPage) placeResult { return placeOK }
	}

	deadline := time.Now().Add(5 * time.Second)
	for uploaded+dropped < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: %d uploaded, %d dropped, want %d processed", uploaded, dropped, n)
		}
		u, d, _ := s.drain(n, place)
		uploaded += u
		dropped += d
		if uploaded+dropped < n {
			time.Sleep(time.Millisecond)
		}
	}
	return uploaded, dropped
}

func TestStreamerLoadsPage(t *testing.T) {
	want := []byte{1, 2, 3, 4}
	s, _, h := newStreamerFixture(t, 1, func(PageID) ([]byte, error) {
		return want, nil
	})

	p := PageID{Texture: h, Mip: 0, X: 1, Y: 2}
	if !s.submit(p, 3) {
		t.Fatal("submit rejected a fresh page")
	}
	if s.state(p) != PageRequested {
		t.Errorf("expected Requested after submit, got %v", s.state(p))
	}

	var got []byte
	uploaded, _ := drainUntil(t, s, 1, func(lp loadedPage) placeResult {
		got = lp.data
		return placeOK
	})
	if uploaded != 1 {
		t.Fatalf("expected 1 upload, got %d", uploaded)
	}
	if string(got) != string(want) {
		t.Errorf("expected payload %v, got %v", want, got)
	}
	if s.state(p) != PageResident {
		t.Errorf("expected Resident after placement, got %v", s.state(p))
	}
}

func TestStreamerSubmitDedup(t *testing.T) {
	s, _, h := newStreamerFixture(t, 1, func(PageID) ([]byte, error) {
		return make([]byte, 4), nil
	})

	p := PageID{Texture: h, Mip: 0, X: 0, Y: 0}
	if !s.submit(p, 1) {
		t.Fatal("first submit rejected")
	}
	if s.submit(p, 1) {
		t.Error("expected duplicate submit to be rejected")
	}

	drainUntil(t, s, 1, nil)

	// Resident pages are not re-requested either.
	if s.submit(p, 1) {
		t.Error("expected submit of resident page to be rejected")
	}

	// Once evicted, the page can be requested again.
	s.markEvicted(p)
	if !s.submit(p, 1) {
		t.Error("expected submit after eviction to be accepted")
	}
}

func TestStreamerFailedLoad(t *testing.T) {
	s, _, h := newStreamerFixture(t, 1, func(PageID) ([]byte, error) {
		return nil, errors.New("disk on fire")
	})

	p := PageID{Texture: h, Mip: 0, X: 0, Y: 0}
	s.submit(p, 1)

	_, dropped := drainUntil(t, s, 1, func(loadedPage) placeResult {
		t.Error("place must not run for failed loads")
		return placeDrop
	})
	if dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}
	if s.state(p) != PageMissing {
		t.Errorf("expected failed page back to Missing, got %v", s.state(p))
	}
	// The page is eligible for a retry on the next demand.
	if !s.submit(p, 1) {
		t.Error("expected resubmit after failure to be accepted")
	}
}

func TestStreamerDestroyedTextureDropped(t *testing.T) {
	block := make(chan struct{})
	s, r, h := newStreamerFixture(t, 1, func(PageID) ([]byte, error) {
		<-block
		return make([]byte, 4), nil
	})

	p := PageID{Texture: h, Mip: 0, X: 0, Y: 0}
	s.submit(p, 1)

	// Let the worker pick the request up, then destroy the texture
	// mid-load. The completion must arrive with nil data.
	time.Sleep(10 * time.Millisecond)
	r.destroy(h)
	s.purge(h)
	close(block)

	_, dropped := drainUntil(t, s, 1, func(loadedPage) placeResult {
		t.Error("place must not run for a destroyed texture's load")
		return placeDrop
	})
	if dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", dropped)
	}
	if s.state(p) != PageMissing {
		t.Errorf("expected purged page Missing, got %v", s.state(p))
	}
}

func TestStreamerDrainBudget(t *testing.T) {
	s, _, h := newStreamerFixture(t, 2, func(PageID) ([]byte, error) {
		return make([]byte, 4), nil
	})

	for i := 0; i < 8; i++ {
		s.submit(PageID{Texture: h, Mip: 0, X: uint16(i), Y: 0}, 1)
	}

	// Wait for every load to complete, then drain with a budget of 3:
	// exactly 3 placements, the rest stays queued.
	deadline := time.Now().Add(5 * time.Second)
	for s.queuedLoads() < 8 {
		if time.Now().After(deadline) {
			t.Fatalf("loads did not complete, %d queued", s.queuedLoads())
		}
		time.Sleep(time.Millisecond)
	}

	uploaded, _, deferred := s.drain(3, func(loadedPage) placeResult { return placeOK })
	if uploaded != 3 {
		t.Errorf("expected 3 uploads under budget 3, got %d", uploaded)
	}
	if deferred != 5 {
		t.Errorf("expected 5 deferred, got %d", deferred)
	}

	uploaded, _, _ = s.drain(16, func(loadedPage) placeResult { return placeOK })
	if uploaded != 5 {
		t.Errorf("expected remaining 5 uploads, got %d", uploaded)
	}
}

func TestStreamerDeferKeepsPage(t *testing.T) {
	s, _, h := newStreamerFixture(t, 1, func(PageID) ([]byte, error) {
		return []byte{9, 9, 9, 9}, nil
	})

	p := PageID{Texture: h, Mip: 0, X: 0, Y: 0}
	s.submit(p, 1)

	// First drain defers (no cache room); the page must survive.
	deadline := time.Now().Add(5 * time.Second)
	deferredSeen := false
	for !deferredSeen {
		if time.Now().After(deadline) {
			t.Fatal("load never arrived")
		}
		_, _, deferred := s.drain(4, func(loadedPage) placeResult { return placeDefer })
		deferredSeen = deferred > 0
		if !deferredSeen {
			time.Sleep(time.Millisecond)
		}
	}
	if s.state(p) != PageRequested {
		t.Errorf("expected deferred page to stay Requested, got %v", s.state(p))
	}

	// Next frame has room.
	uploaded, _, _ := s.drain(4, func(lp loadedPage) placeResult {
		if lp.page != p {
			t.Errorf("expected deferred page %v, got %v", p, lp.page)
		}
		return placeOK
	})
	if uploaded != 1 {
		t.Errorf("expected deferred page placed, got %d uploads", uploaded)
	}
}

func TestStreamerQueueFull(t *testing.T) {
	r := &registry{}
	vt := newTestVT()
	h, _ := r.create(vt)

	// No workers: requests pile up in the channel.
	var totals Totals
	s := &streamer{
		requests: make(chan pageRequest, 2),
		loaded:   make(chan loadedPage, 2),
		states:   make(map[PageID]PageState),
		reg:      r,
		totals:   &totals,
		done:     make(chan struct{}),
	}

	if !s.submit(PageID{Texture: h, Mip: 0, X: 0, Y: 0}, 1) {
		t.Fatal("submit 0 rejected")
	}
	if !s.submit(PageID{Texture: h, Mip: 0, X: 1, Y: 0}, 1) {
		t.Fatal("submit 1 rejected")
	}

	// The queue is full: the third page is dropped and stays Missing,
	// so later feedback can retry it.
	p := PageID{Texture: h, Mip: 0, X: 2, Y: 0}
	if s.submit(p, 1) {
		t.Error("expected submit on full queue to be rejected")
	}
	if s.state(p) != PageMissing {
		t.Errorf("expected dropped page Missing, got %v", s.state(p))
	}
}

func TestStreamerPurge(t *testing.T) {
	r := &registry{}
	h1, _ := r.create(newTestVT())
	h2, _ := r.create(newTestVT())

	var totals Totals
	s := &streamer{
		requests: make(chan pageRequest, 8),
		loaded:   make(chan loadedPage, 8),
		states:   make(map[PageID]PageState),
		reg:      r,
		totals:   &totals,
		done:     make(chan struct{}),
	}

	p1 := PageID{Texture: h1, Mip: 0, X: 0, Y: 0}
	p2 := PageID{Texture: h2, Mip: 0, X: 0, Y: 0}
	s.submit(p1, 1)
	s.submit(p2, 1)
	s.pending = append(s.pending, loadedPage{page: p1, data: make([]byte, 4)})

	s.purge(h1)
	if s.state(p1) != PageMissing {
		t.Errorf("expected purged texture's page Missing, got %v", s.state(p1))
	}
	if s.state(p2) != PageRequested {
		t.Errorf("expected other texture untouched, got %v", s.state(p2))
	}
	if len(s.pending) != 0 {
		t.Errorf("expected pending scrubbed, got %d entries", len(s.pending))
	}
}

func TestStreamerCloseIdempotent(t *testing.T) {
	s, _, _ := newStreamerFixture(t, 2, func(PageID) ([]byte, error) {
		return make([]byte, 4), nil
	})
	s.close()
	s.close() // must not panic or deadlock
}

package vtex

import "sync"

// pageRequest is one unit of streaming work.
type pageRequest struct {
	page PageID

	// priority is the demand count from feedback resolution. It is
	// recorded for diagnostics; dispatch order is FIFO.
	priority int
}

// loadedPage is a completed load handed from a worker to the frame
// thread. data is nil when the load failed, so the frame thread can
// return the page to the missing state.
type loadedPage struct {
	page PageID
	data []byte
}

// placeResult describes what the engine did with a loaded page.
type placeResult int

const (
	// placeOK means the page was uploaded and mapped.
	placeOK placeResult = iota

	// placeDrop means the page was discarded (destroyed texture, bad data).
	placeDrop

	// placeDefer means no slot could be freed; the page stays queued for
	// the next frame.
	placeDefer
)

// streamer bridges feedback-driven demand to background page loading.
//
// Requests flow through a bounded channel to worker goroutines; each
// worker resolves the owning texture's provider, loads the page, and
// pushes the result onto the loaded channel. The frame thread drains a
// bounded number of loaded pages per frame. Workers block on channel
// receives when idle, so there is no polling.
//
// The state map is touched only by the frame thread: submit and drain
// are frame-thread methods, and workers communicate exclusively through
// the two channels.
type streamer struct {
	requests chan pageRequest
	loaded   chan loadedPage

	// pending stashes loaded pages that could not be placed this frame
	// (budget or capacity exhausted). Frame thread only. Once loaded, a
	// page is never dropped for capacity reasons.
	pending []loadedPage

	// states tracks outstanding work per page. Absent means Missing.
	// Frame thread only.
	states map[PageID]PageState

	reg    *registry
	totals *Totals

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// newStreamer starts workers background goroutines.
func newStreamer(reg *registry, totals *Totals, workers, queueDepth int) *streamer {
	s := &streamer{
		requests: make(chan pageRequest, queueDepth),
		loaded:   make(chan loadedPage, queueDepth),
		states:   make(map[PageID]PageState, queueDepth),
		reg:      reg,
		totals:   totals,
		done:     make(chan struct{}),
	}

	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

// submit enqueues a request unless the page already has outstanding
// work or is resident. Returns true when a new request was enqueued.
// A full queue drops the request; the page stays missing and future
// feedback retries it.
func (s *streamer) submit(page PageID, priority int) bool {
	if _, outstanding := s.states[page]; outstanding {
		return false
	}

	select {
	case s.requests <- pageRequest{page: page, priority: priority}:
		s.states[page] = PageRequested
		s.totals.requested.Add(1)
		return true
	default:
		Logger().Debug("vtex: request queue full", "page", page.String())
		return false
	}
}

// worker is the background load loop.
func (s *streamer) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case req := <-s.requests:
			s.load(req)
		}
	}
}

// load produces one page and hands the result to the frame thread.
// Failures complete with nil data so the frame thread clears the
// page's outstanding state.
func (s *streamer) load(req pageRequest) {
	result := loadedPage{page: req.page}

	// Re-validate the owning texture before touching its provider; the
	// texture may have been destroyed after the request was queued.
	provider, ok := s.reg.acquire(req.page.Texture)
	if ok {
		data, err := provider.LoadPage(req.page)
		s.reg.release(req.page.Texture)
		switch {
		case err != nil:
			s.totals.failed.Add(1)
			Logger().Debug("vtex: page load failed", "page", req.page.String(), "error", err)
		case !s.reg.alive(req.page.Texture):
			// The texture was destroyed while the load ran. Complete
			// with nil data so the page is never placed.
			s.totals.dropped.Add(1)
			Logger().Debug("vtex: load for destroyed texture dropped", "page", req.page.String())
		default:
			result.data = data
		}
	} else {
		s.totals.dropped.Add(1)
		Logger().Debug("vtex: request for destroyed texture dropped", "page", req.page.String())
	}

	select {
	case s.loaded <- result:
	case <-s.done:
	}
}

// drain processes loaded pages, uploading at most budget of them via
// place. Pages deferred in earlier frames go first. Returns frame
// counters for uploaded, dropped, and deferred pages.
func (s *streamer) drain(budget int, place func(loadedPage) placeResult) (uploaded, dropped, deferred int) {
	for budget > 0 {
		lp, ok := s.next()
		if !ok {
			break
		}

		if lp.data == nil {
			// Failed or cancelled load: back to missing, no budget spent.
			delete(s.states, lp.page)
			dropped++
			continue
		}

		switch place(lp) {
		case placeOK:
			s.states[lp.page] = PageResident
			budget--
			uploaded++
		case placeDrop:
			delete(s.states, lp.page)
			dropped++
		case placeDefer:
			// Cache is pinned solid this frame; keep the page for the
			// next frame and stop draining.
			s.pending = append([]loadedPage{lp}, s.pending...)
			deferred += len(s.pending) + s.queuedLoads()
			return uploaded, dropped, deferred
		}
	}

	if budget == 0 {
		deferred += len(s.pending) + s.queuedLoads()
	}
	return uploaded, dropped, deferred
}

// next pops the oldest completed page: deferred stash first, then the
// loaded channel. Non-blocking.
func (s *streamer) next() (loadedPage, bool) {
	if len(s.pending) > 0 {
		lp := s.pending[0]
		s.pending = s.pending[1:]
		return lp, true
	}

	select {
	case lp := <-s.loaded:
		return lp, true
	default:
		return loadedPage{}, false
	}
}

// queuedLoads returns the number of completed pages still in the
// channel. Approximate; used only for stats.
func (s *streamer) queuedLoads() int {
	return len(s.loaded)
}

// markEvicted returns an evicted resident to the missing state.
func (s *streamer) markEvicted(page PageID) {
	delete(s.states, page)
}

// purge clears outstanding state for every page of a destroyed
// texture. Requests already in flight self-clean: workers drop them on
// the generation check and their completions carry nil data.
func (s *streamer) purge(handle TextureHandle) {
	for page := range s.states {
		if page.Texture == handle {
			delete(s.states, page)
		}
	}

	kept := s.pending[:0]
	for _, lp := range s.pending {
		if lp.page.Texture != handle {
			kept = append(kept, lp)
		}
	}
	s.pending = kept
}

// state reports a page's streaming state.
func (s *streamer) state(page PageID) PageState {
	if st, ok := s.states[page]; ok {
		return st
	}
	return PageMissing
}

// outstanding returns the number of pages with streaming work or
// residency tracked.
func (s *streamer) outstanding() int {
	return len(s.states)
}

// close stops the workers and waits for them to exit. Idempotent.
func (s *streamer) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

package vtex

import (
	"fmt"
	"sort"

	"github.com/gogpu/vtex/gpucore"
)

// Engine is the virtual texture streaming engine.
//
// One Engine owns one physical cache atlas shared by every registered
// virtual texture, the per-texture page tables with their GPU mirrors,
// the feedback channel, and the background streaming workers.
//
// All Engine methods except Close must be called from a single frame
// thread; workers never touch the cache or the page tables. The
// per-frame sequence is:
//
//	engine.BeginFrame()
//	engine.SubmitFeedback(raw) // or CollectFeedback()
//	engine.Update()
//	stats := engine.Stats()
//
// Within a frame, feedback resolution happens before request
// submission, submission before upload draining, draining before page
// table serialization, so the table the GPU samples is consistent with
// everything uploaded this frame.
type Engine struct {
	config  Config
	opts    engineOptions
	adapter gpucore.GPUAdapter

	cache    *PhysicalCache
	reg      *registry
	streamer *streamer
	feedback *feedbackChannel

	atlas       gpucore.TextureID
	feedbackBuf gpucore.BufferID

	frame      uint64
	frameStats FrameStats
	totals     Totals

	rawFeedback  []byte // feedback pending resolution, nil when consumed
	feedbackCopy []byte // reused backing store for rawFeedback
	serializeBuf []byte // reused page table serialization buffer
	demandOrder  []pageRequest

	closed bool
}

// NewEngine creates an engine over the given GPU adapter. The
// configuration is validated eagerly; invalid tiling parameters fail
// here, never later.
func NewEngine(config Config, adapter gpucore.GPUAdapter, opts ...Option) (*Engine, error) {
	if adapter == nil {
		return nil, ErrNilAdapter
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	options := defaultEngineOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.queueDepth == 0 {
		options.queueDepth = options.maxUploadsPerFrame * 4
	}

	cache, err := NewPhysicalCache(config.PhysicalPagesX(), config.PhysicalPagesY(), config.PaddedPageSize())
	if err != nil {
		return nil, err
	}

	atlas, err := adapter.CreateTexture(&gpucore.TextureDesc{
		Label:  "vtex-atlas",
		Width:  config.PhysicalCacheWidth,
		Height: config.PhysicalCacheHeight,
		Format: config.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("vtex: create cache atlas: %w", err)
	}

	feedbackBuf, err := adapter.CreateBuffer(
		config.FeedbackWidth*config.FeedbackHeight*feedbackBytesPerSample,
		gpucore.BufferUsageMapRead|gpucore.BufferUsageCopyDst)
	if err != nil {
		adapter.DestroyTexture(atlas)
		return nil, fmt.Errorf("vtex: create feedback buffer: %w", err)
	}

	e := &Engine{
		config:      config,
		opts:        options,
		adapter:     adapter,
		cache:       cache,
		reg:         &registry{},
		feedback:    newFeedbackChannel(config.FeedbackWidth, config.FeedbackHeight),
		atlas:       atlas,
		feedbackBuf: feedbackBuf,
	}
	e.streamer = newStreamer(e.reg, &e.totals, options.workers, options.queueDepth)

	Logger().Info("vtex: engine created",
		"cacheSlots", cache.Capacity(),
		"pageSize", config.PageSize,
		"padding", config.PagePadding,
		"workers", options.workers)
	return e, nil
}

// Create registers a virtual texture backed by provider and returns
// its handle. The engine takes exclusive ownership of the provider; it
// is released when the texture is destroyed or the engine closes.
func (e *Engine) Create(tc TextureConfig, provider PageProvider) (TextureHandle, error) {
	if e.closed {
		return TextureHandle{}, ErrEngineClosed
	}
	if provider == nil {
		return TextureHandle{}, ErrNilProvider
	}
	if err := tc.validate(&e.config); err != nil {
		return TextureHandle{}, err
	}
	if got, want := provider.PageDataSize(), e.config.PageDataSize(); got != want {
		return TextureHandle{}, fmt.Errorf("%w: provider emits %d bytes, engine needs %d",
			ErrPageSizeMismatch, got, want)
	}

	vt := &VirtualTexture{
		config:   tc,
		provider: provider,
		table:    newPageTable(&tc, e.config.PageSize),
		enabled:  true,
	}

	mirror, err := e.adapter.CreateTexture(&gpucore.TextureDesc{
		Label:  "vtex-page-table",
		Width:  vt.table.MirrorWidth(),
		Height: vt.table.MirrorHeight(),
		Format: gpucore.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		return TextureHandle{}, fmt.Errorf("vtex: create page table mirror: %w", err)
	}
	vt.mirror = mirror

	handle, err := e.reg.create(vt)
	if err != nil {
		e.adapter.DestroyTexture(mirror)
		return TextureHandle{}, err
	}

	// Upload the all-unmapped initial table so samplers fall back from
	// the start instead of reading garbage.
	e.serializeBuf = vt.table.Serialize(e.serializeBuf)
	if err := e.adapter.WriteTexture(mirror, e.serializeBuf); err != nil {
		Logger().Warn("vtex: initial page table upload failed", "texture", handle.String(), "error", err)
	}

	Logger().Info("vtex: virtual texture created",
		"texture", handle.String(),
		"virtual", fmt.Sprintf("%dx%d", tc.VirtualWidth, tc.VirtualHeight),
		"mips", tc.MaxMipLevels)
	return handle, nil
}

// Destroy unregisters a virtual texture: every physical slot it
// occupies is freed, its page table mirror is released, outstanding
// work is discarded, and its provider is closed once no worker holds
// it. Other textures' mappings are untouched. Destroying an unknown
// handle is a no-op.
func (e *Engine) Destroy(handle TextureHandle) {
	vt, ok := e.reg.destroy(handle)
	if !ok {
		return
	}

	// Stale generation already guarantees in-flight work is dropped;
	// what remains is freeing this texture's residents.
	freed := 0
	for _, ref := range e.cache.ResidentOf(handle, nil) {
		if page, ok := e.cache.OccupiedBy(ref); ok {
			e.streamer.markEvicted(page)
		}
		e.cache.Release(ref)
		freed++
	}
	e.streamer.purge(handle)
	e.adapter.DestroyTexture(vt.mirror)

	Logger().Info("vtex: virtual texture destroyed", "texture", handle.String(), "freedSlots", freed)
}

// Get returns a live virtual texture by handle.
func (e *Engine) Get(handle TextureHandle) (*VirtualTexture, bool) {
	return e.reg.get(handle)
}

// TextureCount returns the number of live virtual textures.
func (e *Engine) TextureCount() int { return e.reg.len() }

// BeginFrame advances the frame counter and resets the frame stats.
func (e *Engine) BeginFrame() {
	e.frame++
	e.frameStats = FrameStats{}
}

// Frame returns the current frame number.
func (e *Engine) Frame() uint64 { return e.frame }

// SubmitFeedback hands the engine the raw feedback buffer the GPU
// finished writing for the previous frame. The data is copied; the
// caller may reuse raw immediately. Resolution happens in Update.
func (e *Engine) SubmitFeedback(raw []byte) error {
	if e.closed {
		return ErrEngineClosed
	}
	if len(raw) != e.feedback.byteSize() {
		return fmt.Errorf("%w: have %d bytes, want %d",
			ErrFeedbackSizeMismatch, len(raw), e.feedback.byteSize())
	}

	if cap(e.feedbackCopy) < len(raw) {
		e.feedbackCopy = make([]byte, len(raw))
	}
	e.feedbackCopy = e.feedbackCopy[:len(raw)]
	copy(e.feedbackCopy, raw)
	e.rawFeedback = e.feedbackCopy
	return nil
}

// CollectFeedback reads the feedback readback buffer through the GPU
// adapter and queues it for resolution, for renderers that copy their
// feedback target into FeedbackBuffer each frame.
func (e *Engine) CollectFeedback() error {
	if e.closed {
		return ErrEngineClosed
	}
	raw, err := e.adapter.ReadBuffer(e.feedbackBuf, 0, uint64(e.feedback.byteSize()))
	if err != nil {
		return fmt.Errorf("vtex: feedback readback: %w", err)
	}
	e.feedbackCopy = raw
	e.rawFeedback = raw
	return nil
}

// Update runs one frame of streaming work: resolve pending feedback
// into demand, submit requests for missing pages, drain loaded pages
// into the atlas within the upload budget, and mirror dirty page
// tables to the GPU. Update never blocks on streaming.
func (e *Engine) Update() error {
	if e.closed {
		return ErrEngineClosed
	}

	if e.rawFeedback != nil {
		if err := e.resolveAndSubmit(e.rawFeedback); err != nil {
			return err
		}
		e.rawFeedback = nil
	}

	uploaded, dropped, deferred := e.streamer.drain(e.opts.maxUploadsPerFrame, e.place)
	e.frameStats.Uploaded += uploaded
	e.frameStats.Dropped += dropped
	e.frameStats.Deferred += deferred

	e.mirrorDirtyTables()
	e.adapter.Submit()

	e.frameStats.Utilization = e.cache.Utilization()
	return nil
}

// resolveAndSubmit converts raw feedback into deduplicated requests
// and enqueues them in deterministic order.
func (e *Engine) resolveAndSubmit(raw []byte) error {
	demands, hits, err := e.feedback.resolve(raw, e.classify)
	if err != nil {
		return err
	}
	e.frameStats.Hits += hits
	e.frameStats.Misses += len(demands)

	// Submission order is deterministic: coarsest mips first so a
	// fallback level becomes resident before its refinements, then by
	// texture and page coordinates. Demand counts ride along as
	// priority but do not reorder the queue.
	e.demandOrder = e.demandOrder[:0]
	for page, count := range demands {
		e.demandOrder = append(e.demandOrder, pageRequest{page: page, priority: count})
	}
	sort.Slice(e.demandOrder, func(i, j int) bool {
		a, b := e.demandOrder[i].page, e.demandOrder[j].page
		if a.Mip != b.Mip {
			return a.Mip > b.Mip
		}
		if a.Texture.Index != b.Texture.Index {
			return a.Texture.Index < b.Texture.Index
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})

	for _, req := range e.demandOrder {
		if e.streamer.submit(req.page, req.priority) {
			e.frameStats.Requested++
		}
	}
	return nil
}

// classify maps one decoded feedback tuple to a page and its
// disposition. Resident pages get their slot's LRU stamp refreshed as
// a side effect, so pages that keep being sampled never age out.
func (e *Engine) classify(index, mip uint8, x, y uint16) (PageID, sampleStatus) {
	vt, ok := e.reg.byIndex(index)
	if !ok || !vt.enabled {
		return PageID{}, sampleInvalid
	}
	if int(mip) >= vt.config.MaxMipLevels {
		return PageID{}, sampleInvalid
	}

	id := PageID{Texture: vt.handle, Mip: mip, X: x, Y: y}
	if vt.table.index(id) < 0 {
		return PageID{}, sampleInvalid
	}

	if slot, resident := vt.table.Lookup(id); resident {
		e.cache.MarkUsed(slot, e.frame)
		return id, sampleResident
	}
	return id, sampleMissing
}

// place moves one loaded page into the atlas: allocate a slot (evicting
// the least recently used unpinned resident if needed), copy the
// payload, and update the page table, all in one transaction so the
// table never points at a reused slot.
func (e *Engine) place(lp loadedPage) placeResult {
	vt, ok := e.reg.get(lp.page.Texture)
	if !ok {
		// Loaded after its texture was destroyed: drop, never crash.
		e.totals.dropped.Add(1)
		Logger().Debug("vtex: loaded page for destroyed texture dropped", "page", lp.page.String())
		return placeDrop
	}
	if len(lp.data) != e.config.PageDataSize() {
		e.totals.failed.Add(1)
		Logger().Warn("vtex: loaded page has wrong size",
			"page", lp.page.String(), "have", len(lp.data), "want", e.config.PageDataSize())
		return placeDrop
	}

	slot, ok := e.cache.Allocate()
	if !ok {
		evicted, evictable := e.cache.EvictLRUOlderThan(e.frame)
		if !evictable {
			// Every resident was sampled this frame; uploading would
			// thrash. Keep the page queued for the next frame.
			return placeDefer
		}
		if owner, live := e.reg.get(evicted.Texture); live {
			owner.table.Clear(evicted)
		}
		e.streamer.markEvicted(evicted)
		e.frameStats.Evicted++
		e.totals.evicted.Add(1)

		slot, ok = e.cache.Allocate()
		if !ok {
			return placeDefer
		}
	}

	px, py := e.cache.SlotOrigin(slot)
	padded := e.config.PaddedPageSize()
	if err := e.adapter.WriteTextureRegion(e.atlas, px, py, padded, padded, lp.data); err != nil {
		Logger().Warn("vtex: atlas upload failed", "page", lp.page.String(), "error", err)
		e.cache.Release(slot)
		e.totals.failed.Add(1)
		return placeDrop
	}

	e.cache.Assign(slot, lp.page, e.frame)
	sx, sy := e.cache.SlotCoords(slot)
	vt.table.Set(lp.page, slot, sx, sy)
	e.totals.uploaded.Add(1)
	return placeOK
}

// mirrorDirtyTables serializes and uploads every page table whose
// mapping changed this frame.
func (e *Engine) mirrorDirtyTables() {
	e.reg.forEach(func(vt *VirtualTexture) {
		if !vt.table.Dirty() {
			return
		}
		e.serializeBuf = vt.table.Serialize(e.serializeBuf)
		if err := e.adapter.WriteTexture(vt.mirror, e.serializeBuf); err != nil {
			Logger().Warn("vtex: page table upload failed",
				"texture", vt.handle.String(), "error", err)
		}
	})
}

// Stats returns the streaming counters for the frame finished by the
// last Update call.
func (e *Engine) Stats() FrameStats { return e.frameStats }

// Totals returns a snapshot of the lifetime counters.
func (e *Engine) Totals() TotalsSnapshot { return e.totals.Snapshot() }

// PageState reports a page's streaming state.
func (e *Engine) PageState(page PageID) PageState { return e.streamer.state(page) }

// ResidentCount returns the number of occupied cache slots.
func (e *Engine) ResidentCount() int { return e.cache.Occupied() }

// AtlasTexture returns the GPU texture ID of the physical cache atlas.
func (e *Engine) AtlasTexture() gpucore.TextureID { return e.atlas }

// PageTableTexture returns the GPU texture ID of a texture's page
// table mirror.
func (e *Engine) PageTableTexture(handle TextureHandle) (gpucore.TextureID, error) {
	vt, ok := e.reg.get(handle)
	if !ok {
		return gpucore.InvalidID, ErrTextureNotFound
	}
	return vt.mirror, nil
}

// FeedbackBuffer returns the GPU buffer the renderer copies its
// feedback target into for CollectFeedback.
func (e *Engine) FeedbackBuffer() gpucore.BufferID { return e.feedbackBuf }

// Config returns the engine configuration after default filling.
func (e *Engine) Config() Config { return e.config }

// Close stops the streaming workers and releases every GPU resource
// the engine owns. Close is idempotent; the engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true

	e.streamer.close()

	e.reg.forEach(func(vt *VirtualTexture) {
		e.Destroy(vt.handle)
	})

	e.adapter.DestroyTexture(e.atlas)
	e.adapter.DestroyBuffer(e.feedbackBuf)
	Logger().Info("vtex: engine closed")
}

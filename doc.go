// Package vtex implements a virtual texture streaming engine.
//
// A virtual texture is a logical texture too large to keep resident in
// GPU memory. vtex splits it into fixed-size tiles ("pages") and keeps
// only the pages the renderer actually sampled in a fixed-size physical
// cache atlas. An indirection table (the page table) maps virtual page
// coordinates to physical slot coordinates so shaders can resolve a
// virtual UV with a single extra lookup.
//
// The engine is demand driven: each frame the renderer writes a
// low-resolution feedback buffer recording which pages it sampled. The
// engine decodes that buffer, requests the missing pages from a
// pluggable PageProvider on background workers, and uploads a bounded
// number of completed pages per frame, evicting the least recently used
// residents when the cache is full.
//
// Typical usage:
//
//	adapter := gpucore.NewStubAdapter() // or a backend/wgpu adapter
//	engine, err := vtex.NewEngine(vtex.Config{
//	    PageSize:            128,
//	    PagePadding:         4,
//	    PhysicalCacheWidth:  2176,
//	    PhysicalCacheHeight: 2176,
//	    FeedbackWidth:       160,
//	    FeedbackHeight:      90,
//	}, adapter)
//	if err != nil {
//	    ...
//	}
//	defer engine.Close()
//
//	id, err := engine.Create(vtex.TextureConfig{
//	    VirtualWidth:  16384,
//	    VirtualHeight: 16384,
//	}, provider)
//
//	// Per frame:
//	engine.BeginFrame()
//	engine.SubmitFeedback(rawFeedback)
//	engine.Update()
//
// By default vtex produces no log output. Call SetLogger to enable
// structured logging via log/slog.
package vtex

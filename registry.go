package vtex

import (
	"io"
	"sync"

	"github.com/gogpu/vtex/gpucore"
)

// VirtualTexture is one registered virtual texture: its configuration,
// its exclusively owned page provider, its page table, and its GPU
// page table mirror.
type VirtualTexture struct {
	handle   TextureHandle
	config   TextureConfig
	provider PageProvider
	table    *PageTable
	mirror   gpucore.TextureID
	enabled  bool
}

// Handle returns the texture's generational handle.
func (vt *VirtualTexture) Handle() TextureHandle { return vt.handle }

// Config returns the texture configuration.
func (vt *VirtualTexture) Config() TextureConfig { return vt.config }

// Enabled reports whether feedback for this texture is honored.
func (vt *VirtualTexture) Enabled() bool { return vt.enabled }

// SetEnabled toggles streaming for this texture. Disabled textures keep
// their resident pages but generate no new requests.
func (vt *VirtualTexture) SetEnabled(enabled bool) { vt.enabled = enabled }

// registryEntry is one arena slot. Generation bumps on every create so
// stale handles and in-flight work for destroyed occupants never
// resolve.
type registryEntry struct {
	gen      uint32
	vt       *VirtualTexture
	inFlight int  // workers currently inside the provider
	dying    bool // destroyed while workers were in flight
	provider PageProvider
}

// registry is the arena of virtual textures. The frame thread creates
// and destroys entries; streaming workers only acquire and release
// providers, so a single RWMutex suffices.
type registry struct {
	mu      sync.RWMutex
	entries [MaxVirtualTextures]registryEntry
	count   int
}

// create claims a free slot for a new virtual texture and returns its
// handle. The caller fills in the VirtualTexture before first use.
func (r *registry) create(vt *VirtualTexture) (TextureHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.entries {
		e := &r.entries[i]
		if e.vt != nil || e.dying {
			continue
		}
		e.gen++
		e.vt = vt
		e.provider = vt.provider
		vt.handle = TextureHandle{Index: uint8(i), Generation: e.gen}
		r.count++
		return vt.handle, nil
	}
	return TextureHandle{}, ErrTextureLimit
}

// get resolves a handle to its live texture.
func (r *registry) get(h TextureHandle) (*VirtualTexture, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e := &r.entries[h.Index]
	if e.vt == nil || e.gen != h.Generation {
		return nil, false
	}
	return e.vt, true
}

// byIndex resolves a bare feedback index to the current live texture.
func (r *registry) byIndex(index uint8) (*VirtualTexture, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e := &r.entries[index]
	if e.vt == nil {
		return nil, false
	}
	return e.vt, true
}

// alive reports whether a handle still resolves.
func (r *registry) alive(h TextureHandle) bool {
	_, ok := r.get(h)
	return ok
}

// acquire hands a worker the provider for h, pinning it against
// concurrent destruction. Every successful acquire must be paired with
// a release.
func (r *registry) acquire(h TextureHandle) (PageProvider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &r.entries[h.Index]
	if e.vt == nil || e.gen != h.Generation {
		return nil, false
	}
	e.inFlight++
	return e.provider, true
}

// release unpins a provider acquired by a worker. If the texture was
// destroyed while the worker was inside the provider, the last release
// performs the deferred close.
func (r *registry) release(h TextureHandle) {
	r.mu.Lock()
	var toClose PageProvider
	e := &r.entries[h.Index]
	if e.gen == h.Generation && e.inFlight > 0 {
		e.inFlight--
		if e.dying && e.inFlight == 0 {
			toClose = e.provider
			e.provider = nil
			e.dying = false
		}
	}
	r.mu.Unlock()

	closeProvider(toClose)
}

// destroy removes a texture from the arena and returns it for cleanup.
// The provider is closed immediately when no worker holds it, and on
// the last release otherwise; either way the entry's generation is
// already stale, so late-arriving work is dropped.
func (r *registry) destroy(h TextureHandle) (*VirtualTexture, bool) {
	r.mu.Lock()
	e := &r.entries[h.Index]
	if e.vt == nil || e.gen != h.Generation {
		r.mu.Unlock()
		return nil, false
	}

	vt := e.vt
	e.vt = nil
	r.count--

	var toClose PageProvider
	if e.inFlight == 0 {
		toClose = e.provider
		e.provider = nil
	} else {
		e.dying = true
	}
	r.mu.Unlock()

	closeProvider(toClose)
	return vt, true
}

// forEach visits every live texture. Called from the frame thread.
func (r *registry) forEach(fn func(*VirtualTexture)) {
	r.mu.RLock()
	textures := make([]*VirtualTexture, 0, r.count)
	for i := range r.entries {
		if r.entries[i].vt != nil {
			textures = append(textures, r.entries[i].vt)
		}
	}
	r.mu.RUnlock()

	for _, vt := range textures {
		fn(vt)
	}
}

// len returns the number of live textures.
func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// closeProvider closes providers that hold resources.
func closeProvider(p PageProvider) {
	if p == nil {
		return
	}
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			Logger().Warn("vtex: provider close failed", "error", err)
		}
	}
}

package vtex

// PageProvider produces raw page payloads, either from storage or
// procedurally.
//
// LoadPage is called from streaming worker goroutines, so
// implementations must be safe for concurrent use. Every successful
// load must return exactly PageDataSize bytes: the padded page
// (PageSize + 2*PagePadding per edge) in the engine's pixel format.
//
// Providers that hold resources may implement io.Closer; the engine
// closes the provider once the owning virtual texture is destroyed and
// no worker still holds it.
type PageProvider interface {
	// LoadPage returns the payload for one page. A missing page is an
	// error (conventionally wrapping ErrPageNotFound), never a panic;
	// the engine drops failed requests and the page stays missing until
	// feedback requests it again.
	LoadPage(id PageID) ([]byte, error)

	// PageDataSize returns the fixed payload size in bytes.
	PageDataSize() int

	// PageExists reports whether a page can be produced without
	// attempting the full load.
	PageExists(id PageID) bool
}

// ProviderFunc adapts a plain function to the PageProvider interface
// for custom page sources.
//
//	provider := vtex.ProviderFunc{
//	    Size: cfg.PageDataSize(),
//	    Load: func(id vtex.PageID) ([]byte, error) { ... },
//	}
type ProviderFunc struct {
	// Load produces the payload for one page. Required.
	Load func(id PageID) ([]byte, error)

	// Size is the fixed payload size in bytes. Required.
	Size int

	// Exists reports page availability. Optional; nil means every page
	// within range exists.
	Exists func(id PageID) bool
}

// LoadPage calls Load.
func (p ProviderFunc) LoadPage(id PageID) ([]byte, error) { return p.Load(id) }

// PageDataSize returns Size.
func (p ProviderFunc) PageDataSize() int { return p.Size }

// PageExists calls Exists when set, and reports true otherwise.
func (p ProviderFunc) PageExists(id PageID) bool {
	if p.Exists == nil {
		return true
	}
	return p.Exists(id)
}

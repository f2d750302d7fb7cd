package vtex

// Option configures an Engine during creation.
//
// Example:
//
//	engine, err := vtex.NewEngine(cfg, adapter,
//	    vtex.WithWorkers(4),
//	    vtex.WithMaxUploadsPerFrame(32))
type Option func(*engineOptions)

// engineOptions holds optional configuration for Engine creation.
type engineOptions struct {
	workers            int
	maxUploadsPerFrame int
	queueDepth         int
}

// defaultEngineOptions returns the default engine options.
func defaultEngineOptions() engineOptions {
	return engineOptions{
		workers:            DefaultWorkers,
		maxUploadsPerFrame: DefaultMaxUploadsPerFrame,
		queueDepth:         0, // derived from maxUploadsPerFrame when zero
	}
}

// WithWorkers sets the number of background streaming workers.
// Values below 1 are ignored.
func WithWorkers(n int) Option {
	return func(o *engineOptions) {
		if n >= 1 {
			o.workers = n
		}
	}
}

// WithMaxUploadsPerFrame bounds how many loaded pages Update copies
// into the atlas per frame. The bound is a backpressure valve: it keeps
// a burst of IO completions from swamping a single frame. Values below
// 1 are ignored.
func WithMaxUploadsPerFrame(n int) Option {
	return func(o *engineOptions) {
		if n >= 1 {
			o.maxUploadsPerFrame = n
		}
	}
}

// WithQueueDepth sets the capacity of the request and loaded-page
// queues. The default is four times the upload budget. Values below 1
// are ignored.
func WithQueueDepth(n int) Option {
	return func(o *engineOptions) {
		if n >= 1 {
			o.queueDepth = n
		}
	}
}

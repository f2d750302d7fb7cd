package vtex

import _ "embed"

// Embedded WGSL shader sources.
//
// The sampling shader resolves virtual texture coordinates through the
// page table mirror into the physical cache atlas. The feedback shader
// writes the page demand buffer the engine consumes each frame. Both
// are provided as source so renderers can compile them for whatever
// pipeline layout they use; the uniform blocks must match SampleParams.

//go:embed shaders/vtsample.wgsl
var sampleShaderWGSL string

//go:embed shaders/feedback.wgsl
var feedbackShaderWGSL string

// SampleShaderSource returns the WGSL source of the virtual texture
// sampling shader.
func SampleShaderSource() string { return sampleShaderWGSL }

// FeedbackShaderSource returns the WGSL source of the feedback pass
// shader.
func FeedbackShaderSource() string { return feedbackShaderWGSL }

package vtex

import "fmt"

// Feedback encoding: the renderer writes one RGBA8 texel per feedback
// sample, recording which virtual page that screen region sampled.
//
//	R = page X
//	G = page Y
//	B = mip level
//	A = texture index + 1, 0 meaning "no virtual texture sampled"
//
// The alpha sentinel lets a cleared feedback target decode to nothing.
const feedbackBytesPerSample = 4

// sampleStatus classifies one decoded feedback sample.
type sampleStatus uint8

const (
	// sampleInvalid marks sentinel or out-of-range tuples.
	sampleInvalid sampleStatus = iota

	// sampleResident marks pages already mapped in a page table.
	sampleResident

	// sampleMissing marks pages that need streaming.
	sampleMissing
)

// feedbackChannel converts a rendered low-resolution feedback buffer
// into deduplicated per-page demand counts.
//
// Resolution runs once per frame on the frame thread, over the buffer
// the GPU finished writing for the previous frame; the one-frame
// latency is expected, visible pages lag camera motion by at most one
// frame.
type feedbackChannel struct {
	width   int
	height  int
	demands map[PageID]int // reused across frames
}

func newFeedbackChannel(width, height int) *feedbackChannel {
	return &feedbackChannel{
		width:   width,
		height:  height,
		demands: make(map[PageID]int, 64),
	}
}

// byteSize returns the expected raw buffer size.
func (f *feedbackChannel) byteSize() int {
	return f.width * f.height * feedbackBytesPerSample
}

// resolve decodes raw and aggregates demand counts per missing page.
// classify maps a decoded tuple to a PageID and its disposition;
// samples classified resident or invalid produce no demand. The
// returned map is reused by the next resolve call.
func (f *feedbackChannel) resolve(raw []byte, classify func(index, mip uint8, x, y uint16) (PageID, sampleStatus)) (map[PageID]int, int, error) {
	if len(raw) != f.byteSize() {
		return nil, 0, fmt.Errorf("%w: have %d bytes, want %d",
			ErrFeedbackSizeMismatch, len(raw), f.byteSize())
	}

	clear(f.demands)
	hits := 0

	for o := 0; o < len(raw); o += feedbackBytesPerSample {
		a := raw[o+3]
		if a == 0 {
			continue // sentinel: no virtual texture sampled here
		}

		id, status := classify(a-1, raw[o+2], uint16(raw[o]), uint16(raw[o+1]))
		switch status {
		case sampleResident:
			hits++
		case sampleMissing:
			f.demands[id]++
		}
	}
	return f.demands, hits, nil
}

// EncodeFeedbackSample packs one feedback tuple the way the feedback
// shader does. Renderers running the CPU path (and tests) use it to
// fill raw feedback buffers.
func EncodeFeedbackSample(dst []byte, texture uint8, mip uint8, x, y uint16) {
	dst[0] = byte(x)
	dst[1] = byte(y)
	dst[2] = mip
	dst[3] = texture + 1
}

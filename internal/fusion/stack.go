package fusion

import (
	"fmt"
	"time"
)

// Frame is one decoded, registered exposure: a dense row-major float32
// matrix. Decoding (FITS, PNG, whatever the caller uses) happens outside
// this package.
type Frame struct {
	Width  int
	Height int
	// Pixels is row-major, len = Width*Height.
	Pixels []float32
}

// NewFrame allocates a zeroed frame of the given dimensions.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pixels: make([]float32, width*height),
	}
}

// Idx converts pixel coordinates to the flat index.
func (f *Frame) Idx(x, y int) int { return y*f.Width + x }

// At returns the pixel value at (x, y).
func (f *Frame) At(x, y int) float32 { return f.Pixels[y*f.Width+x] }

// Set writes the pixel value at (x, y).
func (f *Frame) Set(x, y int, v float32) { f.Pixels[y*f.Width+x] = v }

// FrameMetadata carries per-frame quality hints supplied by the caller.
// Only quality-aware fusion (lucky imaging) consumes it; the accumulator
// never does.
type FrameMetadata struct {
	// SeeingFWHM estimates atmospheric blur for the exposure, in pixels.
	// Lower is sharper. Non-positive values mean "unknown" and exclude the
	// frame from seeing-based selection.
	SeeingFWHM float32
	// Background is the estimated sky background level.
	Background float32
	// NoiseEstimate is the per-pixel noise sigma estimate.
	NoiseEstimate float32
	// QualityWeight is an externally supplied relative weight.
	QualityWeight float32
	// Timestamp is the exposure midpoint.
	Timestamp time.Time
}

// ImageStack is the ordered input to a fusion run: equal-dimension frames
// and, optionally, a parallel metadata sequence.
type ImageStack struct {
	Frames   []*Frame
	Metadata []FrameMetadata
}

// Width returns the stack's frame width (0 for an empty stack).
func (s *ImageStack) Width() int {
	if len(s.Frames) == 0 {
		return 0
	}
	return s.Frames[0].Width
}

// Height returns the stack's frame height (0 for an empty stack).
func (s *ImageStack) Height() int {
	if len(s.Frames) == 0 {
		return 0
	}
	return s.Frames[0].Height
}

// Validate checks the stack invariants. Validation errors are fatal and must
// surface before any accumulation starts; a stack that fails here is never
// partially processed.
func (s *ImageStack) Validate() error {
	if len(s.Frames) == 0 {
		return fmt.Errorf("image stack is empty")
	}
	if len(s.Frames) > MaxStackFrames {
		return fmt.Errorf("image stack has %d frames, limit is %d", len(s.Frames), MaxStackFrames)
	}

	w, h := s.Frames[0].Width, s.Frames[0].Height
	if w <= 0 || h <= 0 {
		return fmt.Errorf("frame 0 has invalid dimensions %dx%d", w, h)
	}
	for i, f := range s.Frames {
		if f == nil {
			return fmt.Errorf("frame %d is nil", i)
		}
		if f.Width != w || f.Height != h {
			return fmt.Errorf("frame %d dimensions %dx%d do not match stack dimensions %dx%d",
				i, f.Width, f.Height, w, h)
		}
		if len(f.Pixels) != w*h {
			return fmt.Errorf("frame %d has %d pixels, expected %d", i, len(f.Pixels), w*h)
		}
	}

	if len(s.Metadata) > 0 && len(s.Metadata) != len(s.Frames) {
		return fmt.Errorf("metadata count %d does not match frame count %d",
			len(s.Metadata), len(s.Frames))
	}
	return nil
}

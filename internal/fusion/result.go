package fusion

import "math"

// PixelResult is the finalized output for a single pixel.
type PixelResult struct {
	Value            float64
	Confidence       float64
	VarianceEstimate float64
	Classification   DistributionType
}

// FusionResult holds the output matrices of a completed run. All matrices
// are row-major with the input stack's dimensions. A result is only handed
// to the caller once both phases are complete; aborted runs never expose
// partial matrices.
type FusionResult struct {
	Width  int
	Height int

	// Fused is the combined value per pixel.
	Fused []float32
	// Confidence is the per-pixel reliability score in [0,1].
	Confidence []float32
	// Variance is the per-pixel sample-variance estimate.
	Variance []float32
	// Classification is the per-pixel DistributionType. Optional: nil unless
	// the run requested it.
	Classification []DistributionType

	rangeKnown bool
	fusedLo    float32
	fusedHi    float32
}

// NewFusionResult allocates result matrices for the given dimensions.
func NewFusionResult(width, height int, withClassification bool) *FusionResult {
	r := &FusionResult{
		Width:      width,
		Height:     height,
		Fused:      make([]float32, width*height),
		Confidence: make([]float32, width*height),
		Variance:   make([]float32, width*height),
	}
	if withClassification {
		r.Classification = make([]DistributionType, width*height)
	}
	return r
}

// At returns the finalized result for pixel (x, y).
func (r *FusionResult) At(x, y int) PixelResult {
	i := y*r.Width + x
	pr := PixelResult{
		Value:            float64(r.Fused[i]),
		Confidence:       float64(r.Confidence[i]),
		VarianceEstimate: float64(r.Variance[i]),
	}
	if r.Classification != nil {
		pr.Classification = r.Classification[i]
	}
	return pr
}

// SetFusedRange records a precomputed global range, as produced by the
// device reduction kernel. FusedRange returns it instead of rescanning.
func (r *FusionResult) SetFusedRange(lo, hi float32) {
	r.fusedLo, r.fusedHi = lo, hi
	r.rangeKnown = true
}

// FusedRange reports the fused matrix's global minimum and maximum, used by
// auto-stretch display scaling. The device backend records the range during
// finalization; otherwise the matrix is scanned. Empty results report (0, 0).
func (r *FusionResult) FusedRange() (lo, hi float32) {
	if r.rangeKnown {
		return r.fusedLo, r.fusedHi
	}
	if len(r.Fused) == 0 {
		return 0, 0
	}
	lo = float32(math.Inf(1))
	hi = float32(math.Inf(-1))
	for _, v := range r.Fused {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Stretch linearly rescales the fused matrix into [0,1] against the given
// range, clamping outside values. A degenerate range maps everything to 0.
func (r *FusionResult) Stretch(lo, hi float32) []float32 {
	out := make([]float32, len(r.Fused))
	span := hi - lo
	if span <= 0 {
		return out
	}
	for i, v := range r.Fused {
		s := (v - lo) / span
		if s < 0 {
			s = 0
		}
		if s > 1 {
			s = 1
		}
		out[i] = s
	}
	return out
}

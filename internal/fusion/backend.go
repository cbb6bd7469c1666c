package fusion

// Backend drives per-pixel accumulation and finalization over a whole stack.
// The two implementations (host worker pool here, GPU compute in the device
// subpackage) share one numerical contract: identical classification,
// confidence and fused outputs within floating-point tolerance for the same
// frame order.
//
// A backend is selected once, at scheduler construction. It is not reentrant:
// Begin/AccumulateFrame.../Finalize run a single stack, then Close releases
// whatever the backend owns.
type Backend interface {
	// Name identifies the backend in logs and run records.
	Name() string
	// Begin allocates per-pixel state for a stack of the given dimensions.
	Begin(width, height int) error
	// AccumulateFrame folds one frame into the per-pixel state. Frames
	// arrive in stack order; the backend must preserve that order within
	// each pixel.
	AccumulateFrame(f *Frame) error
	// Finalize runs classification, confidence scoring and fusion once per
	// pixel, populating the result matrices. The stack is available for
	// strategies that need per-frame values. Implementations must not be
	// called again after Finalize returns.
	Finalize(stack *ImageStack, cfg *ProcessingConfig, out *FusionResult) error
	// Distribution returns a copy of the accumulated state for one pixel,
	// for diagnostics and tests.
	Distribution(x, y int) PixelDistribution
	// Close releases backend resources. Safe to call more than once.
	Close()
}

// finalizePixel is the shared per-pixel finalization contract: every backend
// must produce these values (the device path computes the same quantities in
// its finalize kernel). idx is the flat pixel index into the stack's frames;
// bestFrame is the stack-wide winner from bestFrameIndex, computed once per
// run because it is constant across pixels.
func finalizePixel(d *PixelDistribution, idx, bestFrame int, stack *ImageStack, cfg *ProcessingConfig) (value, confidence, variance float64, class DistributionType) {
	class = Classify(d)
	confidence = Confidence(d)
	if cfg.Uncorrected {
		variance = d.PopulationVariance()
	} else {
		variance = d.Variance()
	}

	switch cfg.Strategy {
	case StrategyMLE:
		value = FuseMLE(d)
	case StrategyConfidenceWeighted:
		value = fuseConfidenceWeightedPixel(d, idx, stack, cfg.OutlierSigma)
	case StrategyLucky:
		value = float64(stack.Frames[bestFrame].Pixels[idx])
	case StrategyMultiScale:
		value = FuseMultiScale(d, cfg.Band)
	default:
		value = FuseMLE(d)
	}
	return value, confidence, variance, class
}

// fuseConfidenceWeightedPixel applies confidence weighting within a single
// pixel's frame history. All frame values share the one accumulated source
// distribution, so the general multi-source weighting collapses to outlier
// rejection: frames beyond outlierSigma standard deviations of the pixel
// mean are dropped, the rest average. A pixel where every frame is an
// outlier (or with no usable spread) degrades to the plain mean.
func fuseConfidenceWeightedPixel(d *PixelDistribution, idx int, stack *ImageStack, outlierSigma float64) float64 {
	if d.N == 0 {
		return 0
	}
	stddev := d.StdDev()
	if stddev <= 0 {
		return d.Mean
	}

	limit := outlierSigma * stddev
	var sum float64
	var kept int
	for _, f := range stack.Frames {
		v := float64(f.Pixels[idx])
		if abs64(v-d.Mean) <= limit {
			sum += v
			kept++
		}
	}
	if kept == 0 {
		return d.Mean
	}
	return sum / float64(kept)
}

// bestFrameIndex returns the index of the stack's best frame: the lowest
// positive seeing FWHM, falling back to the highest explicit quality weight,
// falling back to frame 0.
func bestFrameIndex(stack *ImageStack) int {
	if len(stack.Metadata) == 0 {
		return 0
	}

	best := -1
	for i := range stack.Frames {
		if i >= len(stack.Metadata) {
			break
		}
		if stack.Metadata[i].SeeingFWHM <= 0 {
			continue
		}
		if best < 0 || stack.Metadata[i].SeeingFWHM < stack.Metadata[best].SeeingFWHM {
			best = i
		}
	}
	if best >= 0 {
		return best
	}

	best = 0
	for i := 1; i < len(stack.Frames) && i < len(stack.Metadata); i++ {
		if stack.Metadata[i].QualityWeight > stack.Metadata[best].QualityWeight {
			best = i
		}
	}
	return best
}

package fusion

// FusionStrategy selects how per-pixel statistics (and, for lucky imaging,
// per-frame values) collapse to the output value.
type FusionStrategy uint8

const (
	// StrategyMLE uses the sample mean, the maximum-likelihood estimate
	// under the Gaussian/Poisson assumption.
	StrategyMLE FusionStrategy = iota
	// StrategyConfidenceWeighted blends observations by confidence-scaled
	// inverse variance.
	StrategyConfidenceWeighted
	// StrategyLucky picks the single best-quality frame's value.
	StrategyLucky
	// StrategyMultiScale dispatches by spatial-frequency band.
	StrategyMultiScale
)

// String returns the strategy name as used in CLI flags and run records.
func (s FusionStrategy) String() string {
	switch s {
	case StrategyMLE:
		return "mle"
	case StrategyConfidenceWeighted:
		return "confidence_weighted"
	case StrategyLucky:
		return "lucky"
	case StrategyMultiScale:
		return "multiscale"
	default:
		return "invalid"
	}
}

// Valid reports whether s is a defined strategy.
func (s FusionStrategy) Valid() bool { return s <= StrategyMultiScale }

// ParseStrategy resolves a strategy name. Unknown names report false.
func ParseStrategy(name string) (FusionStrategy, bool) {
	switch name {
	case "mle":
		return StrategyMLE, true
	case "confidence_weighted", "confidence-weighted":
		return StrategyConfidenceWeighted, true
	case "lucky":
		return StrategyLucky, true
	case "multiscale":
		return StrategyMultiScale, true
	}
	return StrategyMLE, false
}

// FrequencyBand is the declared spatial-frequency band for MultiScale
// fusion.
type FrequencyBand uint8

const (
	// BandLow maximizes SNR: large-scale structure, averaged.
	BandLow FrequencyBand = iota
	// BandMid is the default detail band.
	BandMid
	// BandHigh is intended to preserve fine detail. With only accumulated
	// moments available at finalization it currently degenerates to the
	// mean; genuine band-split fusion would need per-frame values retained
	// per band.
	BandHigh
)

// FuseMLE returns the maximum-likelihood estimate for the pixel: the sample
// mean, or 0 for a pixel that never received an observation.
func FuseMLE(d *PixelDistribution) float64 {
	if d.N == 0 {
		return 0
	}
	return d.Mean
}

// FuseConfidenceWeighted combines parallel observations, weighting each by
// the confidence weight of its source distribution. A zero total weight
// (all sources unconfident) degrades to the plain arithmetic mean.
func FuseConfidenceWeighted(values []float32, dists []*PixelDistribution) float64 {
	if len(values) == 0 {
		return 0
	}

	var weightedSum, totalWeight float64
	for i, v := range values {
		if i >= len(dists) || dists[i] == nil {
			continue
		}
		w := ConfidenceWeight(dists[i])
		weightedSum += w * float64(v)
		totalWeight += w
	}
	if totalWeight > 0 {
		return weightedSum / totalWeight
	}

	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum / float64(len(values))
}

// FuseLucky selects the value from the frame with the highest quality score.
// Ties keep the earliest frame. Empty input returns 0.
func FuseLucky(values []float32, qualityScores []float64) float64 {
	if len(values) == 0 || len(qualityScores) == 0 {
		return 0
	}
	best := 0
	for i := 1; i < len(values) && i < len(qualityScores); i++ {
		if qualityScores[i] > qualityScores[best] {
			best = i
		}
	}
	return float64(values[best])
}

// FuseLuckyMetadata selects the value from the frame with the sharpest
// seeing (lowest positive FWHM). Frames without a usable seeing estimate are
// skipped; if no frame has one, the first value wins.
func FuseLuckyMetadata(values []float32, meta []FrameMetadata) float64 {
	if len(values) == 0 {
		return 0
	}
	best := -1
	for i := 0; i < len(values) && i < len(meta); i++ {
		if meta[i].SeeingFWHM <= 0 {
			continue
		}
		if best < 0 || meta[i].SeeingFWHM < meta[best].SeeingFWHM {
			best = i
		}
	}
	if best < 0 {
		return float64(values[0])
	}
	return float64(values[best])
}

// FuseMultiScale dispatches on the declared frequency band. Low maximizes
// SNR via the mean, mid uses the MLE. High is documented as degenerating to
// the mean: frequency-split lucky selection would need per-frame band data
// that finalization no longer has.
func FuseMultiScale(d *PixelDistribution, band FrequencyBand) float64 {
	switch band {
	case BandLow:
		return FuseMLE(d)
	case BandMid:
		return FuseMLE(d)
	default:
		return FuseMLE(d)
	}
}

// SelectFusionStrategy maps a pixel classification to the default fusion
// policy: trust the MLE for well-behaved pixels, pick the lucky frame for
// bimodal ones, and fall back to confidence weighting for everything
// suspicious.
func SelectFusionStrategy(t DistributionType) FusionStrategy {
	switch {
	case t.IsReliable():
		return StrategyMLE
	case t == DistBimodal:
		return StrategyLucky
	default:
		return StrategyConfidenceWeighted
	}
}

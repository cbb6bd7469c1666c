package fusion

// DistributionType labels a pixel's cross-frame behaviour as inferred from
// its accumulated moments.
type DistributionType uint8

const (
	// DistUnknown means there is not enough data, or the moments match no
	// recognised shape.
	DistUnknown DistributionType = iota
	// DistGaussian indicates symmetric, mesokurtic behaviour: well-behaved
	// sky or target signal.
	DistGaussian
	// DistPoisson indicates shot-noise behaviour where variance tracks the
	// mean, typical for photon-limited pixels.
	DistPoisson
	// DistBimodal indicates two value populations (platykurtic), commonly a
	// star drifting across the pixel or intermittent obstruction.
	DistBimodal
	// DistSkewedRight indicates a positive-tail asymmetry, commonly cosmic
	// ray hits or satellite trails.
	DistSkewedRight
	// DistSkewedLeft indicates a negative-tail asymmetry, commonly transient
	// dropouts.
	DistSkewedLeft
	// DistUniform indicates near-zero spread relative to range: saturated or
	// dead pixels.
	DistUniform
)

// String returns the canonical name used in reports and stored histograms.
func (t DistributionType) String() string {
	switch t {
	case DistGaussian:
		return "gaussian"
	case DistPoisson:
		return "poisson"
	case DistBimodal:
		return "bimodal"
	case DistSkewedRight:
		return "skewed_right"
	case DistSkewedLeft:
		return "skewed_left"
	case DistUniform:
		return "uniform"
	default:
		return "unknown"
	}
}

// DistributionTypeCount is the number of DistributionType values; handy for
// histogram arrays.
const DistributionTypeCount = 7

// Classification thresholds (tuned against synthetic stacks; keep in sync
// with the finalize kernel in the device subpackage).
const (
	// ClassifyMinSamples is the observation count below which no
	// classification is attempted.
	ClassifyMinSamples = 5
	// VarianceRatioThreshold bounds variance/range² for the uniform
	// (saturated/dead pixel) test.
	VarianceRatioThreshold = 0.1
	// PoissonMeanTolerance bounds |variance-mean|/mean for shot-noise
	// detection.
	PoissonMeanTolerance = 0.3
	// KurtosisLowThreshold marks platykurtic (bimodal) behaviour.
	KurtosisLowThreshold = -0.5
	// SkewnessThreshold marks significant asymmetry.
	SkewnessThreshold = 0.5
	// KurtosisHighThreshold bounds |kurtosis| for the Gaussian test.
	KurtosisHighThreshold = 1.0
)

// Classify maps accumulated moments to a DistributionType. The tests form an
// ordered decision chain; the first match wins, so the uniform test shadows
// the Poisson test for near-constant pixels, and so on.
func Classify(d *PixelDistribution) DistributionType {
	if d.N < ClassifyMinSamples {
		return DistUnknown
	}

	variance := d.Variance()
	valueRange := d.Range()

	if valueRange > 0 && variance/(valueRange*valueRange) < VarianceRatioThreshold {
		return DistUniform
	}

	skew := d.Skewness()
	kurt := d.Kurtosis()
	mean := d.Mean

	if mean > 0 && abs64(variance-mean)/mean < PoissonMeanTolerance && skew > 0 {
		return DistPoisson
	}
	if kurt < KurtosisLowThreshold {
		return DistBimodal
	}
	if abs64(skew) > SkewnessThreshold {
		if skew > 0 {
			return DistSkewedRight
		}
		return DistSkewedLeft
	}
	if abs64(skew) <= SkewnessThreshold && abs64(kurt) <= KurtosisHighThreshold {
		return DistGaussian
	}
	return DistUnknown
}

// IsArtifactCandidate reports whether the classification points at frame
// artifacts (trails, hot/dead pixels) rather than genuine signal statistics.
func (t DistributionType) IsArtifactCandidate() bool {
	return t == DistSkewedRight || t == DistSkewedLeft || t == DistUniform
}

// IsReliable reports whether the classification supports a straight
// maximum-likelihood fuse.
func (t DistributionType) IsReliable() bool {
	return t == DistGaussian || t == DistPoisson
}

func abs64(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

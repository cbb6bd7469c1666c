package fusion

// Confidence scoring constants. The four factor weights sum to 1 so the raw
// score lands in [0,1] before clamping.
const (
	// RefSampleCount is the frame count at which the sample factor saturates.
	RefSampleCount = 100
	// RefVariance is the variance scale for the noise factor.
	RefVariance = 100.0

	sampleFactorWeight       = 0.2
	varianceFactorWeight     = 0.3
	distributionFactorWeight = 0.3
	outlierFactorWeight      = 0.2

	// zeroVarianceWeightBoost stands in for an infinite confidence weight on
	// noiseless pixels.
	zeroVarianceWeightBoost = 1000.0
)

// distributionFactor scores how much a classification should be trusted for
// fusion purposes.
func distributionFactor(t DistributionType) float64 {
	switch t {
	case DistGaussian:
		return 1.0
	case DistPoisson:
		return 0.9
	case DistBimodal:
		return 0.5
	case DistSkewedRight, DistSkewedLeft:
		return 0.3
	case DistUniform:
		return 0.2
	default:
		return 0.5
	}
}

// Confidence scores the reliability of a pixel's accumulated statistics in
// [0,1]. Pixels with fewer than two observations score exactly 0; everything
// else is a weighted blend of sample depth, noise level, distribution shape
// and outlier pressure.
func Confidence(d *PixelDistribution) float64 {
	if d.N < 2 {
		return 0
	}

	sampleFactor := float64(d.N) / RefSampleCount
	if sampleFactor > 1 {
		sampleFactor = 1
	}

	variance := d.Variance()
	varianceFactor := 1.0
	if variance > 0 {
		varianceFactor = 1.0 / (1.0 + variance/RefVariance)
	}

	distFactor := distributionFactor(Classify(d))

	outlierFactor := 1.0 / (1.0 + 0.5*abs64(d.Skewness()) + 0.2*abs64(d.Kurtosis()))

	score := sampleFactorWeight*sampleFactor +
		varianceFactorWeight*varianceFactor +
		distributionFactorWeight*distFactor +
		outlierFactorWeight*outlierFactor

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ConfidenceWeight converts a confidence score into a fusion weight:
// inverse-variance weighting scaled by confidence, with a large finite boost
// for zero-variance pixels so they dominate without producing infinities.
func ConfidenceWeight(d *PixelDistribution) float64 {
	c := Confidence(d)
	variance := d.Variance()
	if variance > 0 {
		return c / variance
	}
	return c * zeroVarianceWeightBoost
}

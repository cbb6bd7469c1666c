package device

import "math"

// fltMax mirrors the FLT_MAX sentinel in fusion.wgsl.
const fltMax = float32(math.MaxFloat32)

// varEpsilon mirrors VAR_EPSILON in fusion.wgsl.
const varEpsilon = float32(1e-12)

// pixelState is the CPU mirror of the PixelState shader struct. The device
// buffer layout is this struct plus one pad float per pixel.
type pixelState struct {
	n    float32
	mean float32
	m2   float32
	m3   float32
	m4   float32
	minV float32
	maxV float32
}

// pixelOut is the CPU mirror of the PixelOut shader struct.
type pixelOut struct {
	fused      float32
	confidence float32
	variance   float32
	class      uint32
}

// resetState mirrors cs_reset.
func resetState(s *pixelState) {
	*s = pixelState{minV: fltMax, maxV: -fltMax}
}

// accumulateState mirrors cs_accumulate. The m4/m3/m2/mean order matches the
// shader and the float64 host accumulator: each moment update reads the lower
// moments before they change.
func accumulateState(s *pixelState, v float32) {
	n1 := s.n
	n := n1 + 1
	delta := v - s.mean
	deltaN := delta / n
	deltaN2 := deltaN * deltaN
	term1 := delta * deltaN * n1

	s.m4 += term1*deltaN2*(n*n-3*n+3) + 6*deltaN2*s.m2 - 4*deltaN*s.m3
	s.m3 += term1*deltaN*(n-2) - 3*deltaN*s.m2
	s.m2 += term1
	s.mean += deltaN
	s.n = n
	if v < s.minV {
		s.minV = v
	}
	if v > s.maxV {
		s.maxV = v
	}
}

func sampleVariance(s *pixelState) float32 {
	if s.n < 2 {
		return 0
	}
	return s.m2 / (s.n - 1)
}

func stateSkewness(s *pixelState) float32 {
	if s.n < 3 || s.m2 <= varEpsilon {
		return 0
	}
	return sqrt32(s.n) * s.m3 / pow32(s.m2, 1.5)
}

func stateKurtosis(s *pixelState) float32 {
	if s.n < 4 || s.m2 <= varEpsilon {
		return 0
	}
	return s.n*s.m4/(s.m2*s.m2) - 3
}

// classifyState mirrors the classify shader function. Class ordinals match
// fusion.DistributionType.
func classifyState(s *pixelState) uint32 {
	if s.n < 5 {
		return 0
	}
	variance := sampleVariance(s)
	rangeV := s.maxV - s.minV
	if rangeV > 0 && variance/(rangeV*rangeV) < 0.1 {
		return 6
	}
	skew := stateSkewness(s)
	kurt := stateKurtosis(s)
	if s.mean > 0 && abs32(variance-s.mean)/s.mean < 0.3 && skew > 0 {
		return 2
	}
	if kurt < -0.5 {
		return 3
	}
	if abs32(skew) > 0.5 {
		if skew > 0 {
			return 4
		}
		return 5
	}
	if abs32(kurt) <= 1 {
		return 1
	}
	return 0
}

func stateDistributionFactor(class uint32) float32 {
	switch class {
	case 1:
		return 1.0
	case 2:
		return 0.9
	case 3:
		return 0.5
	case 4, 5:
		return 0.3
	case 6:
		return 0.2
	default:
		return 0.5
	}
}

// stateConfidence mirrors the confidence shader function.
func stateConfidence(s *pixelState, class uint32) float32 {
	if s.n < 2 {
		return 0
	}
	sampleFactor := s.n / 100
	if sampleFactor > 1 {
		sampleFactor = 1
	}
	variance := sampleVariance(s)
	varianceFactor := float32(1)
	if variance > 0 {
		varianceFactor = 1 / (1 + variance/100)
	}
	distFactor := stateDistributionFactor(class)
	outlierFactor := 1 / (1 + 0.5*abs32(stateSkewness(s)) + 0.2*abs32(stateKurtosis(s)))

	score := 0.2*sampleFactor + 0.3*varianceFactor + 0.3*distFactor + 0.2*outlierFactor
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// finalizeState mirrors cs_finalize.
func finalizeState(s *pixelState, uncorrected bool) pixelOut {
	class := classifyState(s)
	conf := stateConfidence(s, class)

	var variance float32
	if uncorrected {
		if s.n > 0 {
			variance = s.m2 / s.n
		}
	} else {
		variance = sampleVariance(s)
	}

	var fused float32
	if s.n > 0 {
		fused = s.mean
	}
	return pixelOut{fused: fused, confidence: conf, variance: variance, class: class}
}

// rangePartial is one workgroup's contribution from cs_minmax.
type rangePartial struct {
	lo float32
	hi float32
}

// rangePartials mirrors cs_minmax: one (min, max) pair per 64-wide workgroup,
// with identity values for lanes past the end of the fused matrix.
func rangePartials(fused []float32) []rangePartial {
	groups := (len(fused) + workgroupSize - 1) / workgroupSize
	parts := make([]rangePartial, groups)
	for g := range parts {
		p := rangePartial{lo: fltMax, hi: -fltMax}
		for l := 0; l < workgroupSize; l++ {
			i := g*workgroupSize + l
			if i >= len(fused) {
				break
			}
			v := fused[i]
			if v < p.lo {
				p.lo = v
			}
			if v > p.hi {
				p.hi = v
			}
		}
		parts[g] = p
	}
	return parts
}

// foldRange reduces workgroup partials to the global fused range.
func foldRange(parts []rangePartial) (lo, hi float32) {
	lo, hi = fltMax, -fltMax
	for _, p := range parts {
		if p.lo < lo {
			lo = p.lo
		}
		if p.hi > hi {
			hi = p.hi
		}
	}
	return lo, hi
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func sqrt32(v float32) float32 { return float32(math.Sqrt(float64(v))) }

func pow32(v, p float32) float32 { return float32(math.Pow(float64(v), float64(p))) }

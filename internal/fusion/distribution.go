package fusion

import (
	"math"
)

// MaxStackFrames bounds the per-pixel observation count. Distribution state
// keeps counts small so planar device buffers stay compact; integration runs
// beyond this many frames are rejected at stack validation.
const MaxStackFrames = 65535

// zeroVarianceEpsilon is the m2 level below which a pixel is treated as
// constant-valued. Skewness and kurtosis are undefined there and return 0.
const zeroVarianceEpsilon = 1e-12

// PixelDistribution is the accumulated statistical state of one pixel across
// the frames of a stack: observation count, running mean, second through
// fourth central-moment accumulators, and the observed value range.
//
// State is built incrementally via Accumulate (one call per frame, in stack
// order), optionally combined across disjoint partitions via Merge, and read
// out once through the derived accessors during finalization.
type PixelDistribution struct {
	N    uint32
	Mean float64
	M2   float64
	M3   float64
	M4   float64
	Min  float32
	Max  float32
}

// NewPixelDistribution returns an empty distribution. Min/Max start at
// +Inf/-Inf so the first accumulated value establishes the range; Mean is 0
// by convention and meaningless until N > 0.
func NewPixelDistribution() PixelDistribution {
	return PixelDistribution{
		Min: float32(math.Inf(1)),
		Max: float32(math.Inf(-1)),
	}
}

// Reset restores the initial empty state.
func (d *PixelDistribution) Reset() {
	*d = NewPixelDistribution()
}

// Accumulate folds one observation into the distribution using the
// single-pass higher-moment update (Pébay's extension of Welford's
// algorithm). The m4, m3, m2, mean update order is load-bearing: the m4 and
// m3 formulas consume the pre-update m2 and m3.
func (d *PixelDistribution) Accumulate(value float32) {
	v := float64(value)
	n1 := float64(d.N)
	d.N++
	n := float64(d.N)

	delta := v - d.Mean
	deltaN := delta / n
	deltaN2 := deltaN * deltaN
	term1 := delta * deltaN * n1

	d.M4 += term1*deltaN2*(n*n-3*n+3) + 6*deltaN2*d.M2 - 4*deltaN*d.M3
	d.M3 += term1*deltaN*(n-2) - 3*deltaN*d.M2
	d.M2 += term1
	d.Mean += deltaN

	if value < d.Min {
		d.Min = value
	}
	if value > d.Max {
		d.Max = value
	}
}

// AccumulateBatch applies Accumulate to each value in order.
func (d *PixelDistribution) AccumulateBatch(values []float32) {
	for _, v := range values {
		d.Accumulate(v)
	}
}

// Merge combines two independently accumulated distributions into one, as if
// every observation had been accumulated into a single distribution. Within
// floating-point rounding the operation is commutative and associative, which
// is what lets worker and tile partitions accumulate independently.
//
// The pairwise combination formulas follow Chan/Pébay; they must not be
// approximated, or the host and device backends stop agreeing.
func Merge(a, b PixelDistribution) PixelDistribution {
	if a.N == 0 {
		return b
	}
	if b.N == 0 {
		return a
	}

	n1 := float64(a.N)
	n2 := float64(b.N)
	n := n1 + n2
	delta := b.Mean - a.Mean
	delta2 := delta * delta

	out := PixelDistribution{N: a.N + b.N}
	out.Mean = (n1*a.Mean + n2*b.Mean) / n
	out.M2 = a.M2 + b.M2 + delta2*n1*n2/n
	out.M3 = a.M3 + b.M3 +
		delta*delta2*n1*n2*(n1-n2)/(n*n) +
		3*delta*(n1*b.M2-n2*a.M2)/n
	out.M4 = a.M4 + b.M4 +
		delta2*delta2*n1*n2*(n1*n1-n1*n2+n2*n2)/(n*n*n) +
		6*delta2*(n1*n1*b.M2+n2*n2*a.M2)/(n*n) +
		4*delta*(n1*b.M3-n2*a.M3)/n

	out.Min = a.Min
	if b.Min < out.Min {
		out.Min = b.Min
	}
	out.Max = a.Max
	if b.Max > out.Max {
		out.Max = b.Max
	}
	return out
}

// Variance returns the Bessel-corrected sample variance m2/(n-1), or 0 when
// fewer than two observations have been accumulated.
func (d *PixelDistribution) Variance() float64 {
	if d.N < 2 {
		return 0
	}
	return d.M2 / float64(d.N-1)
}

// PopulationVariance returns the uncorrected variance m2/n, or 0 when empty.
func (d *PixelDistribution) PopulationVariance() float64 {
	if d.N == 0 {
		return 0
	}
	return d.M2 / float64(d.N)
}

// StdDev returns the sample standard deviation.
func (d *PixelDistribution) StdDev() float64 {
	return math.Sqrt(d.Variance())
}

// Skewness returns the third standardized moment sqrt(n)*m3/m2^1.5. It is 0
// below three observations and 0 for effectively constant pixels.
func (d *PixelDistribution) Skewness() float64 {
	if d.N < 3 || d.M2 < zeroVarianceEpsilon {
		return 0
	}
	n := float64(d.N)
	return math.Sqrt(n) * d.M3 / math.Pow(d.M2, 1.5)
}

// Kurtosis returns the excess kurtosis n*m4/m2^2 - 3, so a Gaussian pixel
// reads 0. It is 0 below four observations and 0 for constant pixels.
func (d *PixelDistribution) Kurtosis() float64 {
	if d.N < 4 || d.M2 < zeroVarianceEpsilon {
		return 0
	}
	n := float64(d.N)
	return n*d.M4/(d.M2*d.M2) - 3
}

// Range returns max-min, or 0 while the distribution is empty.
func (d *PixelDistribution) Range() float64 {
	if d.N == 0 {
		return 0
	}
	return float64(d.Max) - float64(d.Min)
}

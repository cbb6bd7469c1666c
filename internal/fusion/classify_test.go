package fusion

import (
	"math"
	"testing"
)

func distFromSamples(values []float32) *PixelDistribution {
	d := NewPixelDistribution()
	d.AccumulateBatch(values)
	return &d
}

// distFromMoments builds a PixelDistribution with exactly the requested
// summary statistics, so each classifier rule can be hit without hunting for
// sample sets that dodge every earlier rule in the chain.
func distFromMoments(n uint32, mean, variance, skew, kurt float64, min, max float32) *PixelDistribution {
	m2 := variance * float64(n-1)
	return &PixelDistribution{
		N:    n,
		Mean: mean,
		M2:   m2,
		M3:   skew * math.Pow(m2, 1.5) / math.Sqrt(float64(n)),
		M4:   (kurt + 3) * m2 * m2 / float64(n),
		Min:  min,
		Max:  max,
	}
}

func TestClassifyInsufficientSamples(t *testing.T) {
	d := distFromSamples([]float32{1, 2, 3, 4})
	if got := Classify(d); got != DistUnknown {
		t.Fatalf("n=4 must classify unknown, got %s", got)
	}
}

func TestClassifyUniformSaturatedPixel(t *testing.T) {
	// Near-constant values with one tiny excursion: variance is negligible
	// against the squared range.
	values := []float32{100, 100, 100, 100, 100, 100, 100, 101}
	d := distFromSamples(values)
	if got := Classify(d); got != DistUniform {
		t.Fatalf("saturated pixel must classify uniform, got %s", got)
	}
}

func TestClassifyUniformShadowsPoisson(t *testing.T) {
	// Shot-noise moments, but the observed range dwarfs the variance: the
	// uniform rule runs first and wins.
	d := distFromMoments(200, 100, 100, 0.3, 0.1, 0, 1000)
	if got := Classify(d); got != DistUniform {
		t.Fatalf("wide-range pixel must classify uniform, got %s", got)
	}
}

func TestClassifyGaussian(t *testing.T) {
	d := distFromMoments(100, 1000, 2500, 0, 0, 925, 1075)
	got := Classify(d)
	if got != DistGaussian {
		t.Fatalf("symmetric mesokurtic moments classified %s", got)
	}
	if !got.IsReliable() {
		t.Fatalf("gaussian must be reliable")
	}
}

func TestClassifyPoisson(t *testing.T) {
	// Variance tracking the mean with positive skew, typical shot noise.
	d := distFromMoments(500, 100, 95, 0.2, 0.05, 88, 112)
	if got := Classify(d); got != DistPoisson {
		t.Fatalf("shot-noise moments classified %s", got)
	}
}

func TestClassifyPoissonRequiresPositiveSkew(t *testing.T) {
	d := distFromMoments(500, 100, 95, -0.1, 0.05, 88, 112)
	if got := Classify(d); got == DistPoisson {
		t.Fatalf("negative skew must not classify poisson")
	}
}

func TestClassifyBimodal(t *testing.T) {
	// Two tight populations far apart: strongly platykurtic.
	values := make([]float32, 0, 200)
	for i := 0; i < 100; i++ {
		values = append(values, 10+float32(i%3))
		values = append(values, 1000+float32(i%3))
	}
	d := distFromSamples(values)
	got := Classify(d)
	if got != DistBimodal {
		t.Fatalf("bimodal samples classified %s (kurt=%v)", got, d.Kurtosis())
	}
	if got.IsReliable() || got.IsArtifactCandidate() {
		t.Fatalf("bimodal is neither reliable nor an artifact candidate")
	}
}

func TestClassifySkewedRight(t *testing.T) {
	d := distFromMoments(100, 1000, 2500, 0.9, 0.3, 900, 1055)
	got := Classify(d)
	if got != DistSkewedRight {
		t.Fatalf("positive-tail moments classified %s", got)
	}
	if !got.IsArtifactCandidate() {
		t.Fatalf("skewed_right must be an artifact candidate")
	}
}

func TestClassifySkewedLeft(t *testing.T) {
	d := distFromMoments(100, 1000, 2500, -0.9, 0.3, 945, 1100)
	if got := Classify(d); got != DistSkewedLeft {
		t.Fatalf("negative-tail moments classified %s", got)
	}
}

func TestClassifyLeptokurticUnknown(t *testing.T) {
	// Symmetric but heavily peaked: fails the gaussian kurtosis bound and
	// falls through the whole chain.
	d := distFromMoments(100, 1000, 2500, 0, 4, 925, 1075)
	if got := Classify(d); got != DistUnknown {
		t.Fatalf("leptokurtic moments classified %s", got)
	}
}

func TestDistributionTypeNames(t *testing.T) {
	want := map[DistributionType]string{
		DistUnknown:     "unknown",
		DistGaussian:    "gaussian",
		DistPoisson:     "poisson",
		DistBimodal:     "bimodal",
		DistSkewedRight: "skewed_right",
		DistSkewedLeft:  "skewed_left",
		DistUniform:     "uniform",
	}
	if len(want) != DistributionTypeCount {
		t.Fatalf("name table covers %d types, want %d", len(want), DistributionTypeCount)
	}
	for typ, name := range want {
		if typ.String() != name {
			t.Fatalf("type %d: got %q, want %q", typ, typ.String(), name)
		}
	}
}

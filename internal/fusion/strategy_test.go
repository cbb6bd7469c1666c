package fusion

import (
	"math"
	"testing"
)

func TestFuseMLE(t *testing.T) {
	empty := NewPixelDistribution()
	if got := FuseMLE(&empty); got != 0 {
		t.Fatalf("empty pixel MLE = %v, want 0", got)
	}
	d := distFromSamples([]float32{2, 4, 4, 4, 5, 5, 7, 9})
	if got := FuseMLE(d); math.Abs(got-5) > 1e-12 {
		t.Fatalf("MLE = %v, want 5", got)
	}
}

func TestFuseLuckyPicksHighestScore(t *testing.T) {
	values := []float32{10, 20, 30, 15, 25}
	scores := []float64{0.5, 0.9, 0.3, 0.7, 0.8}
	if got := FuseLucky(values, scores); got != 20 {
		t.Fatalf("lucky fuse = %v, want 20", got)
	}
}

func TestFuseLuckyTieKeepsEarliest(t *testing.T) {
	values := []float32{10, 20, 30}
	scores := []float64{0.9, 0.9, 0.9}
	if got := FuseLucky(values, scores); got != 10 {
		t.Fatalf("tied lucky fuse = %v, want earliest frame's 10", got)
	}
}

func TestFuseLuckyEmpty(t *testing.T) {
	if got := FuseLucky(nil, nil); got != 0 {
		t.Fatalf("empty lucky fuse = %v, want 0", got)
	}
}

func TestFuseLuckyMetadataSharpestSeeing(t *testing.T) {
	values := []float32{10, 20, 30, 40}
	meta := []FrameMetadata{
		{SeeingFWHM: 2.5},
		{SeeingFWHM: 0}, // no estimate, skipped
		{SeeingFWHM: 1.8},
		{SeeingFWHM: 3.1},
	}
	if got := FuseLuckyMetadata(values, meta); got != 30 {
		t.Fatalf("metadata lucky fuse = %v, want 30", got)
	}
}

func TestFuseLuckyMetadataNoSeeingFallsBackToFirst(t *testing.T) {
	values := []float32{10, 20}
	meta := []FrameMetadata{{}, {}}
	if got := FuseLuckyMetadata(values, meta); got != 10 {
		t.Fatalf("fallback lucky fuse = %v, want first frame's 10", got)
	}
}

func TestFuseConfidenceWeightedPrefersLowerVariance(t *testing.T) {
	// Two observers agree on depth but not on noise; the quiet one should
	// pull the blend toward its value.
	quiet := distFromMoments(50, 100, 25, 0, 0, 85, 115)
	noisy := distFromMoments(50, 200, 2500, 0, 0, 50, 350)
	got := FuseConfidenceWeighted([]float32{100, 200}, []*PixelDistribution{quiet, noisy})
	if math.Abs(got-150) < 10 {
		t.Fatalf("blend %v is not pulled toward the low-variance observation", got)
	}
	if got <= 100 || got >= 150 {
		t.Fatalf("blend %v outside (100,150)", got)
	}
}

func TestFuseConfidenceWeightedZeroWeightFallsBackToMean(t *testing.T) {
	// Single-sample distributions carry zero confidence, so the total weight
	// collapses and the plain mean takes over.
	a := distFromSamples([]float32{10})
	b := distFromSamples([]float32{30})
	got := FuseConfidenceWeighted([]float32{10, 30}, []*PixelDistribution{a, b})
	if math.Abs(got-20) > 1e-12 {
		t.Fatalf("zero-weight fallback = %v, want mean 20", got)
	}
}

func TestFuseConfidenceWeightedEmpty(t *testing.T) {
	if got := FuseConfidenceWeighted(nil, nil); got != 0 {
		t.Fatalf("empty fuse = %v, want 0", got)
	}
}

func TestFuseMultiScaleAllBandsMatchMLE(t *testing.T) {
	d := distFromSamples([]float32{2, 4, 4, 4, 5, 5, 7, 9})
	for _, band := range []FrequencyBand{BandLow, BandMid, BandHigh} {
		if got := FuseMultiScale(d, band); got != FuseMLE(d) {
			t.Fatalf("band %d fuse = %v, want MLE %v", band, got, FuseMLE(d))
		}
	}
}

func TestSelectFusionStrategy(t *testing.T) {
	cases := []struct {
		class DistributionType
		want  FusionStrategy
	}{
		{DistGaussian, StrategyMLE},
		{DistPoisson, StrategyMLE},
		{DistBimodal, StrategyLucky},
		{DistSkewedRight, StrategyConfidenceWeighted},
		{DistSkewedLeft, StrategyConfidenceWeighted},
		{DistUniform, StrategyConfidenceWeighted},
		{DistUnknown, StrategyConfidenceWeighted},
	}
	for _, c := range cases {
		if got := SelectFusionStrategy(c.class); got != c.want {
			t.Fatalf("%s: strategy %s, want %s", c.class, got, c.want)
		}
	}
}

func TestParseStrategyRoundTrip(t *testing.T) {
	for _, s := range []FusionStrategy{StrategyMLE, StrategyConfidenceWeighted, StrategyLucky, StrategyMultiScale} {
		got, ok := ParseStrategy(s.String())
		if !ok || got != s {
			t.Fatalf("ParseStrategy(%q) = %v, %v", s.String(), got, ok)
		}
	}
	if _, ok := ParseStrategy("median"); ok {
		t.Fatalf("unknown strategy name must not parse")
	}
}

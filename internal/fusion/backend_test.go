package fusion

import "testing"

func TestBestFrameIndexPrefersSeeing(t *testing.T) {
	stack := testStack(4, 2, 2, func(f, i int) float32 { return float32(f) })
	stack.Metadata = []FrameMetadata{
		{SeeingFWHM: 2.0, QualityWeight: 0.1},
		{SeeingFWHM: 1.1, QualityWeight: 0.2},
		{SeeingFWHM: 0, QualityWeight: 9.9},
		{SeeingFWHM: 1.8, QualityWeight: 0.3},
	}
	if got := bestFrameIndex(stack); got != 1 {
		t.Fatalf("bestFrameIndex = %d, want 1 (sharpest seeing)", got)
	}
}

func TestBestFrameIndexFallsBackToWeights(t *testing.T) {
	stack := testStack(3, 2, 2, func(f, i int) float32 { return float32(f) })
	stack.Metadata = []FrameMetadata{
		{QualityWeight: 0.4},
		{QualityWeight: 0.9},
		{QualityWeight: 0.7},
	}
	if got := bestFrameIndex(stack); got != 1 {
		t.Fatalf("bestFrameIndex = %d, want 1 (highest weight)", got)
	}
}

func TestBestFrameIndexWithoutMetadata(t *testing.T) {
	stack := testStack(3, 2, 2, func(f, i int) float32 { return float32(f) })
	if got := bestFrameIndex(stack); got != 0 {
		t.Fatalf("bestFrameIndex = %d, want 0", got)
	}
}

// Lucky fusion resolves the winning frame once for the whole run, so every
// pixel must come from the same frame even when per-pixel values would argue
// otherwise.
func TestLuckyFusionUsesOneFrameForAllPixels(t *testing.T) {
	stack := testStack(3, 2, 2, func(f, i int) float32 {
		return float32(f*100 + i)
	})
	stack.Metadata = []FrameMetadata{
		{SeeingFWHM: 3.0},
		{SeeingFWHM: 1.0},
		{SeeingFWHM: 2.0},
	}

	cfg := DefaultConfig()
	cfg.UseDevice = false
	cfg.Strategy = StrategyLucky
	s, err := NewScheduler(cfg, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	res, err := s.Run(stack, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := range res.Fused {
		want := float32(100 + i)
		if res.Fused[i] != want {
			t.Fatalf("pixel %d = %v, want frame 1's %v", i, res.Fused[i], want)
		}
	}
}

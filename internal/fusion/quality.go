package fusion

// RunStatistics holds aggregate quality metrics for a completed fusion run.
// The CLI prints the mean confidence, and the run store persists the whole
// record for later comparison between runs.
type RunStatistics struct {
	// Confidence summary
	MeanConfidence        float64 `json:"mean_confidence"`
	MinConfidence         float64 `json:"min_confidence"`
	LowConfidenceFraction float64 `json:"low_confidence_fraction"`

	// Classification distribution
	ClassCounts      map[string]int `json:"class_counts"`
	ReliableFraction float64        `json:"reliable_fraction"`
	ArtifactFraction float64        `json:"artifact_fraction"`

	// Output value summary (pre-stretch)
	FusedMin float64 `json:"fused_min"`
	FusedMax float64 `json:"fused_max"`

	PixelCount int `json:"pixel_count"`
	FrameCount int `json:"frame_count"`
}

// ComputeRunStatistics aggregates a result into per-run quality metrics.
// The low-confidence fraction counts pixels scoring strictly below the
// configured threshold. frameCount is carried through for reporting.
func ComputeRunStatistics(r *FusionResult, confidenceThreshold float64, frameCount int) *RunStatistics {
	stats := &RunStatistics{
		ClassCounts: make(map[string]int),
		PixelCount:  len(r.Fused),
		FrameCount:  frameCount,
	}
	if stats.PixelCount == 0 {
		return stats
	}

	var confSum float64
	minConf := 1.0
	var lowConf int
	for _, c := range r.Confidence {
		cf := float64(c)
		confSum += cf
		if cf < minConf {
			minConf = cf
		}
		if cf < confidenceThreshold {
			lowConf++
		}
	}
	n := float64(stats.PixelCount)
	stats.MeanConfidence = confSum / n
	stats.MinConfidence = minConf
	stats.LowConfidenceFraction = float64(lowConf) / n

	if r.Classification != nil {
		var reliable, artifact int
		for _, t := range r.Classification {
			stats.ClassCounts[t.String()]++
			if t.IsReliable() {
				reliable++
			}
			if t.IsArtifactCandidate() {
				artifact++
			}
		}
		stats.ReliableFraction = float64(reliable) / n
		stats.ArtifactFraction = float64(artifact) / n
	}

	lo, hi := r.FusedRange()
	stats.FusedMin = float64(lo)
	stats.FusedMax = float64(hi)
	return stats
}

package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepsky-data/starfuse/internal/fusion"
)

func testResult() *fusion.FusionResult {
	r := fusion.NewFusionResult(2, 2, true)
	copy(r.Fused, []float32{1, 2, 3, 4})
	copy(r.Confidence, []float32{0.9, 0.05, 0.6, 0.8})
	copy(r.Variance, []float32{1, 1, 1, 1})
	copy(r.Classification, []fusion.DistributionType{
		fusion.DistGaussian, fusion.DistUnknown, fusion.DistPoisson, fusion.DistBimodal,
	})
	return r
}

func TestRenderProducesHTML(t *testing.T) {
	result := testResult()
	stats := fusion.ComputeRunStatistics(result, 0.1, 16)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, result, stats, "host"))

	out := buf.String()
	require.Contains(t, out, "<html")
	assert.Contains(t, out, "Pixel Classification")
	assert.Contains(t, out, "Confidence Distribution")
	assert.Contains(t, out, "gaussian")
	assert.Contains(t, out, "bimodal")
	assert.Contains(t, out, "backend=host")
}

func TestRenderWithoutClassification(t *testing.T) {
	// A run without per-pixel classification still renders; every pixel
	// lands in the unknown bucket.
	result := fusion.NewFusionResult(2, 1, false)
	stats := fusion.ComputeRunStatistics(result, 0.1, 4)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, result, stats, "gpu"))
	assert.Contains(t, buf.String(), "Pixel Classification")
}

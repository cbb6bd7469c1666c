// Package report renders a fusion run summary as a self-contained HTML
// page of ECharts visualisations: the per-pixel classification histogram
// and the confidence score distribution.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/deepsky-data/starfuse/internal/fusion"
)

// confidenceBins is the bucket count for the confidence histogram. Scores
// live in [0,1] so each bucket spans 0.05.
const confidenceBins = 20

// Render writes the HTML report for a completed run to w.
func Render(w io.Writer, result *fusion.FusionResult, stats *fusion.RunStatistics, backendName string) error {
	page := components.NewPage()
	page.PageTitle = "Fusion Run Report"

	page.AddCharts(
		classificationChart(result, stats, backendName),
		confidenceChart(result, stats),
	)

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// classificationChart builds a bar chart of pixel counts per distribution
// class, in declaration order so the layout is stable across runs.
func classificationChart(result *fusion.FusionResult, stats *fusion.RunStatistics, backendName string) *charts.Bar {
	var counts [fusion.DistributionTypeCount]int
	for _, c := range result.Classification {
		counts[c]++
	}

	x := make([]string, 0, fusion.DistributionTypeCount)
	y := make([]opts.BarData, 0, fusion.DistributionTypeCount)
	for t := 0; t < fusion.DistributionTypeCount; t++ {
		x = append(x, fusion.DistributionType(t).String())
		y = append(y, opts.BarData{Value: counts[t]})
	}

	subtitle := fmt.Sprintf("backend=%s frames=%d pixels=%d reliable=%.1f%% artifact=%.1f%%",
		backendName, stats.FrameCount, stats.PixelCount,
		stats.ReliableFraction*100, stats.ArtifactFraction*100)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Pixel Classification", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("pixels", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// confidenceChart builds a histogram of per-pixel confidence scores.
func confidenceChart(result *fusion.FusionResult, stats *fusion.RunStatistics) *charts.Bar {
	var bins [confidenceBins]int
	for _, c := range result.Confidence {
		i := int(c * confidenceBins)
		if i >= confidenceBins {
			i = confidenceBins - 1
		}
		if i < 0 {
			i = 0
		}
		bins[i]++
	}

	x := make([]string, 0, confidenceBins)
	y := make([]opts.BarData, 0, confidenceBins)
	for i := 0; i < confidenceBins; i++ {
		lo := float64(i) / confidenceBins
		hi := float64(i+1) / confidenceBins
		x = append(x, fmt.Sprintf("%.2f-%.2f", lo, hi))
		y = append(y, opts.BarData{Value: bins[i]})
	}

	subtitle := fmt.Sprintf("mean=%.3f min=%.3f below-threshold=%.1f%%",
		stats.MeanConfidence, stats.MinConfidence, stats.LowConfidenceFraction*100)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Confidence Distribution", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("pixels", y)
	return bar
}

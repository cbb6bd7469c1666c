package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/deepsky-data/starfuse/internal/fusion"
)

// SaveProfilePlots writes PNG line plots of the fused values and confidence
// scores along a handful of image rows. The row profiles are the quickest way
// to eyeball stacking artifacts without opening the full image.
func SaveProfilePlots(outputDir string, result *fusion.FusionResult, rows []int) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if len(rows) == 0 {
		rows = defaultProfileRows(result.Height)
	}

	pFused := plot.New()
	pFused.Title.Text = "Fused Value Row Profiles"
	pFused.X.Label.Text = "Column"
	pFused.Y.Label.Text = "Fused value"

	pConf := plot.New()
	pConf.Title.Text = "Confidence Row Profiles"
	pConf.X.Label.Text = "Column"
	pConf.Y.Label.Text = "Confidence"
	pConf.Y.Min = 0
	pConf.Y.Max = 1

	colors := profileColors(len(rows))

	for i, row := range rows {
		if row < 0 || row >= result.Height {
			continue
		}

		fusedPts := make(plotter.XYs, result.Width)
		confPts := make(plotter.XYs, result.Width)
		for x := 0; x < result.Width; x++ {
			idx := row*result.Width + x
			fusedPts[x] = plotter.XY{X: float64(x), Y: float64(result.Fused[idx])}
			confPts[x] = plotter.XY{X: float64(x), Y: float64(result.Confidence[idx])}
		}

		label := fmt.Sprintf("row %d", row)

		fusedLine, err := plotter.NewLine(fusedPts)
		if err != nil {
			return err
		}
		fusedLine.Color = colors[i]
		fusedLine.Width = vg.Points(1)
		pFused.Add(fusedLine)
		pFused.Legend.Add(label, fusedLine)

		confLine, err := plotter.NewLine(confPts)
		if err != nil {
			return err
		}
		confLine.Color = colors[i]
		confLine.Width = vg.Points(1)
		pConf.Add(confLine)
		pConf.Legend.Add(label, confLine)
	}

	pFused.Legend.Top = true
	pFused.Legend.XOffs = -10
	pFused.Legend.YOffs = -10
	pConf.Legend.Top = true
	pConf.Legend.XOffs = -10
	pConf.Legend.YOffs = -10

	fusedFile := filepath.Join(outputDir, "fused_profiles.png")
	if err := pFused.Save(14*vg.Inch, 6*vg.Inch, fusedFile); err != nil {
		return fmt.Errorf("save fused profile plot: %w", err)
	}
	confFile := filepath.Join(outputDir, "confidence_profiles.png")
	if err := pConf.Save(14*vg.Inch, 6*vg.Inch, confFile); err != nil {
		return fmt.Errorf("save confidence profile plot: %w", err)
	}
	return nil
}

// defaultProfileRows samples up to five evenly spaced rows.
func defaultProfileRows(height int) []int {
	if height <= 0 {
		return nil
	}
	n := 5
	if height < n {
		n = height
	}
	rows := make([]int, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, i*height/n)
	}
	return rows
}

// profileColors creates a palette of distinct colors for row lines.
func profileColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

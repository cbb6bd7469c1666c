// Package imageio decodes registered exposures from PNG files and encodes
// fused output matrices back to PNG. Values map to 16-bit grayscale; FITS or
// raw sensor formats are out of scope and should be converted upstream.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/deepsky-data/starfuse/internal/fusion"
)

// LoadFrame decodes one PNG file into a frame. Color images collapse to
// luminance via the standard Gray16 conversion.
func LoadFrame(path string) (*fusion.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fh.Close()

	img, err := png.Decode(fh)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	bounds := img.Bounds()
	frame := fusion.NewFrame(bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			frame.Set(x-bounds.Min.X, y-bounds.Min.Y, float32(g.Y))
		}
	}
	return frame, nil
}

// LoadStack decodes every PNG matching the glob pattern, in lexical order,
// into an image stack. Dimension mismatches surface later via
// ImageStack.Validate.
func LoadStack(pattern string) (*fusion.ImageStack, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad glob %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files match %q", pattern)
	}
	sort.Strings(paths)

	stack := &fusion.ImageStack{Frames: make([]*fusion.Frame, 0, len(paths))}
	for _, p := range paths {
		f, err := LoadFrame(p)
		if err != nil {
			return nil, err
		}
		stack.Frames = append(stack.Frames, f)
	}
	return stack, nil
}

// SaveStretched writes normalized [0,1] values as a 16-bit grayscale PNG.
func SaveStretched(path string, stretched []float32, width, height int) error {
	if len(stretched) != width*height {
		return fmt.Errorf("pixel count %d does not match %dx%d", len(stretched), width, height)
	}

	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := stretched[y*width+x]
			img.SetGray16(x, y, color.Gray16{Y: uint16(v*65535 + 0.5)})
		}
	}

	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer fh.Close()

	if err := png.Encode(fh, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

// SaveFused auto-stretches the fused matrix against its own range and writes
// it as PNG.
func SaveFused(path string, result *fusion.FusionResult) error {
	lo, hi := result.FusedRange()
	return SaveStretched(path, result.Stretch(lo, hi), result.Width, result.Height)
}

// SaveConfidence writes the confidence matrix as PNG; scores are already in
// [0,1] so no stretch is applied.
func SaveConfidence(path string, result *fusion.FusionResult) error {
	return SaveStretched(path, result.Confidence, result.Width, result.Height)
}

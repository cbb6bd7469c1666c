package imageio

import (
	"path/filepath"
	"testing"

	"github.com/deepsky-data/starfuse/internal/fusion"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.png")

	// Values on exact 16-bit steps so the round trip is lossless.
	width, height := 4, 3
	stretched := make([]float32, width*height)
	for i := range stretched {
		stretched[i] = float32(i*5000) / 65535
	}
	if err := SaveStretched(path, stretched, width, height); err != nil {
		t.Fatalf("save: %v", err)
	}

	frame, err := LoadFrame(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if frame.Width != width || frame.Height != height {
		t.Fatalf("dimensions %dx%d, want %dx%d", frame.Width, frame.Height, width, height)
	}
	for i, want := range stretched {
		got := frame.Pixels[i] / 65535
		if diff := got - want; diff > 1.0/65535 || diff < -1.0/65535 {
			t.Fatalf("pixel %d = %f, want %f", i, got, want)
		}
	}
}

func TestSaveStretchedRejectsBadDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	if err := SaveStretched(path, make([]float32, 5), 2, 2); err == nil {
		t.Fatalf("expected dimension mismatch error")
	}
}

func TestLoadStack(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"a.png", "b.png", "c.png"} {
		stretched := make([]float32, 4)
		for j := range stretched {
			stretched[j] = float32(i) / 4
		}
		if err := SaveStretched(filepath.Join(dir, name), stretched, 2, 2); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	stack, err := LoadStack(filepath.Join(dir, "*.png"))
	if err != nil {
		t.Fatalf("load stack: %v", err)
	}
	if len(stack.Frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(stack.Frames))
	}
	if err := stack.Validate(); err != nil {
		t.Fatalf("loaded stack invalid: %v", err)
	}
	// Lexical order: a < b < c, values increase per file.
	if stack.Frames[0].Pixels[0] >= stack.Frames[2].Pixels[0] {
		t.Fatalf("frames not in lexical order")
	}
}

func TestLoadStackNoMatches(t *testing.T) {
	if _, err := LoadStack(filepath.Join(t.TempDir(), "*.png")); err == nil {
		t.Fatalf("expected error for empty glob")
	}
}

func TestSaveFusedAutoStretch(t *testing.T) {
	result := fusion.NewFusionResult(2, 2, false)
	copy(result.Fused, []float32{100, 200, 300, 400})
	path := filepath.Join(t.TempDir(), "fused.png")
	if err := SaveFused(path, result); err != nil {
		t.Fatalf("save fused: %v", err)
	}

	frame, err := LoadFrame(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if frame.Pixels[0] != 0 {
		t.Errorf("minimum pixel should stretch to 0, got %f", frame.Pixels[0])
	}
	if frame.Pixels[3] != 65535 {
		t.Errorf("maximum pixel should stretch to full scale, got %f", frame.Pixels[3])
	}
}

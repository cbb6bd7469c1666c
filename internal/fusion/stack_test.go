package fusion

import (
	"strings"
	"testing"
)

func testStack(frames int, width, height int, fill func(frame, idx int) float32) *ImageStack {
	s := &ImageStack{}
	for f := 0; f < frames; f++ {
		fr := NewFrame(width, height)
		for i := range fr.Pixels {
			fr.Pixels[i] = fill(f, i)
		}
		s.Frames = append(s.Frames, fr)
	}
	return s
}

func TestStackValidateEmpty(t *testing.T) {
	s := &ImageStack{}
	if err := s.Validate(); err == nil {
		t.Fatalf("empty stack must fail validation")
	}
}

func TestStackValidateDimensionMismatch(t *testing.T) {
	s := &ImageStack{Frames: []*Frame{NewFrame(4, 4), NewFrame(4, 5)}}
	err := s.Validate()
	if err == nil {
		t.Fatalf("mismatched frame dimensions must fail validation")
	}
	if !strings.Contains(err.Error(), "frame 1") {
		t.Fatalf("error should name the offending frame: %v", err)
	}
}

func TestStackValidateNilFrame(t *testing.T) {
	s := &ImageStack{Frames: []*Frame{NewFrame(4, 4), nil}}
	if err := s.Validate(); err == nil {
		t.Fatalf("nil frame must fail validation")
	}
}

func TestStackValidateShortPixelBuffer(t *testing.T) {
	f := NewFrame(4, 4)
	f.Pixels = f.Pixels[:10]
	s := &ImageStack{Frames: []*Frame{f}}
	if err := s.Validate(); err == nil {
		t.Fatalf("short pixel buffer must fail validation")
	}
}

func TestStackValidateMetadataCount(t *testing.T) {
	s := testStack(3, 4, 4, func(int, int) float32 { return 1 })
	s.Metadata = []FrameMetadata{{}, {}}
	if err := s.Validate(); err == nil {
		t.Fatalf("metadata/frame count mismatch must fail validation")
	}
	s.Metadata = []FrameMetadata{{}, {}, {}}
	if err := s.Validate(); err != nil {
		t.Fatalf("matching metadata must validate: %v", err)
	}
	s.Metadata = nil
	if err := s.Validate(); err != nil {
		t.Fatalf("absent metadata must validate: %v", err)
	}
}

func TestStackValidateFrameLimit(t *testing.T) {
	f := NewFrame(1, 1)
	s := &ImageStack{Frames: make([]*Frame, MaxStackFrames+1)}
	for i := range s.Frames {
		s.Frames[i] = f
	}
	if err := s.Validate(); err == nil {
		t.Fatalf("stack above the frame limit must fail validation")
	}
}

func TestFrameIndexing(t *testing.T) {
	f := NewFrame(5, 3)
	f.Set(3, 2, 7.5)
	if f.At(3, 2) != 7.5 {
		t.Fatalf("At(3,2) = %v, want 7.5", f.At(3, 2))
	}
	if f.Idx(3, 2) != 13 {
		t.Fatalf("Idx(3,2) = %d, want 13", f.Idx(3, 2))
	}
}

func TestStackDimensions(t *testing.T) {
	s := testStack(2, 8, 6, func(int, int) float32 { return 0 })
	if s.Width() != 8 || s.Height() != 6 {
		t.Fatalf("stack reports %dx%d, want 8x6", s.Width(), s.Height())
	}
	empty := &ImageStack{}
	if empty.Width() != 0 || empty.Height() != 0 {
		t.Fatalf("empty stack must report 0x0")
	}
}

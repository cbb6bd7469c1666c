package fusion

import (
	"fmt"
	"runtime"
	"sync"
)

// pixelSpan is a half-open range of flat pixel indices owned by one worker.
type pixelSpan struct {
	start int
	end   int
}

// HostBackend accumulates struct-per-pixel distributions with a fixed pool
// of workers. The pixel grid is statically partitioned into disjoint spans
// before accumulation starts, so no pixel is ever touched by two workers and
// no locking is needed during a phase; a WaitGroup barrier separates frames
// and phases.
type HostBackend struct {
	workers int

	width  int
	height int
	dists  []PixelDistribution
	spans  []pixelSpan
}

// NewHostBackend creates the CPU execution backend. workers <= 0 selects one
// worker per CPU.
func NewHostBackend(workers int) *HostBackend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &HostBackend{workers: workers}
}

// Name implements Backend.
func (h *HostBackend) Name() string { return "host" }

// Begin implements Backend: it allocates per-pixel state and carves the
// static worker partition.
func (h *HostBackend) Begin(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("host backend: invalid dimensions %dx%d", width, height)
	}
	total := width * height
	h.width = width
	h.height = height
	h.dists = make([]PixelDistribution, total)
	for i := range h.dists {
		h.dists[i] = NewPixelDistribution()
	}

	workers := h.workers
	if workers > total {
		workers = total
	}
	h.spans = h.spans[:0]
	chunk := (total + workers - 1) / workers
	for start := 0; start < total; start += chunk {
		end := start + chunk
		if end > total {
			end = total
		}
		h.spans = append(h.spans, pixelSpan{start: start, end: end})
	}
	return nil
}

// AccumulateFrame implements Backend. Each worker folds the frame into its
// own span; the WaitGroup barrier guarantees the next frame only starts once
// every pixel has consumed this one, preserving per-pixel frame order.
func (h *HostBackend) AccumulateFrame(f *Frame) error {
	if h.dists == nil {
		return fmt.Errorf("host backend: AccumulateFrame before Begin")
	}
	if f.Width != h.width || f.Height != h.height {
		return fmt.Errorf("host backend: frame dimensions %dx%d do not match %dx%d",
			f.Width, f.Height, h.width, h.height)
	}

	var wg sync.WaitGroup
	for _, sp := range h.spans {
		wg.Add(1)
		go func(sp pixelSpan) {
			defer wg.Done()
			for i := sp.start; i < sp.end; i++ {
				h.dists[i].Accumulate(f.Pixels[i])
			}
		}(sp)
	}
	wg.Wait()
	return nil
}

// Finalize implements Backend: classification, confidence and fusion run
// once per pixel over the same disjoint spans.
func (h *HostBackend) Finalize(stack *ImageStack, cfg *ProcessingConfig, out *FusionResult) error {
	if h.dists == nil {
		return fmt.Errorf("host backend: Finalize before Begin")
	}
	if out.Width != h.width || out.Height != h.height {
		return fmt.Errorf("host backend: result dimensions %dx%d do not match %dx%d",
			out.Width, out.Height, h.width, h.height)
	}

	// Frame quality is a stack-wide property (seeing first, explicit weights
	// second); resolve the winner once instead of per pixel.
	bestFrame := bestFrameIndex(stack)

	var wg sync.WaitGroup
	for _, sp := range h.spans {
		wg.Add(1)
		go func(sp pixelSpan) {
			defer wg.Done()
			for i := sp.start; i < sp.end; i++ {
				value, confidence, variance, class := finalizePixel(&h.dists[i], i, bestFrame, stack, cfg)
				out.Fused[i] = float32(value)
				out.Confidence[i] = float32(confidence)
				out.Variance[i] = float32(variance)
				if out.Classification != nil {
					out.Classification[i] = class
				}
			}
		}(sp)
	}
	wg.Wait()
	return nil
}

// Distribution implements Backend.
func (h *HostBackend) Distribution(x, y int) PixelDistribution {
	return h.dists[y*h.width+x]
}

// Close implements Backend.
func (h *HostBackend) Close() {
	h.dists = nil
	h.spans = nil
}

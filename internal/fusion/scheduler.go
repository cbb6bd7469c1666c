package fusion

import (
	"fmt"
	"time"

	"github.com/deepsky-data/starfuse/internal/monitoring"
)

// Phase tracks scheduler progress through a run.
type Phase uint8

const (
	// PhaseIdle means no stack has been processed yet.
	PhaseIdle Phase = iota
	// PhaseAccumulating means frames are being folded into per-pixel state.
	PhaseAccumulating
	// PhaseFinalizing means per-pixel classification/confidence/fusion is
	// running. There is no transition back to accumulating.
	PhaseFinalizing
	// PhaseDone means the output matrices are complete.
	PhaseDone
)

// String returns the phase name for logs.
func (p Phase) String() string {
	switch p {
	case PhaseAccumulating:
		return "accumulating"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseDone:
		return "done"
	default:
		return "idle"
	}
}

// ProgressFunc receives coarse progress at phase and frame boundaries. There
// is no contract on call frequency or duplicate suppression; percent is in
// [0,100] and monotonic within a run.
type ProgressFunc func(percent int, message string)

// Scheduler runs the two-phase fusion pipeline over an image stack on a
// backend chosen once at construction. A scheduler processes one stack and
// is not reentrant; build a fresh one per run.
type Scheduler struct {
	cfg     ProcessingConfig
	backend Backend
	phase   Phase

	// withClassification requests the optional classification matrix.
	withClassification bool
}

// deviceCapableStrategy reports whether the device finalize kernel covers
// the strategy. Lucky and confidence-weighted fusion read per-frame values
// at finalization, which the device path does not retain.
func deviceCapableStrategy(s FusionStrategy) bool {
	return s == StrategyMLE || s == StrategyMultiScale
}

// NewScheduler builds a scheduler for the given configuration. device may be
// nil; when present it is used only if the configuration asks for device
// acceleration and the strategy is device-capable, otherwise the host
// backend runs and the substitution is logged. Device acquisition is the
// caller's concern (see the device subpackage's Probe) and is attempted at
// most once per run.
func NewScheduler(cfg ProcessingConfig, device Backend) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid processing config: %w", err)
	}

	var backend Backend
	switch {
	case device != nil && cfg.UseDevice && deviceCapableStrategy(cfg.Strategy):
		backend = device
	case device != nil && cfg.UseDevice:
		monitoring.Logf("fusion: strategy %s needs per-frame values at finalization; using host backend instead of %s",
			cfg.Strategy, device.Name())
		backend = NewHostBackend(cfg.Workers)
	default:
		backend = NewHostBackend(cfg.Workers)
	}

	return &Scheduler{cfg: cfg, backend: backend}, nil
}

// WithClassificationMap requests the optional classification matrix in the
// result.
func (s *Scheduler) WithClassificationMap() *Scheduler {
	s.withClassification = true
	return s
}

// Phase returns the scheduler's current phase.
func (s *Scheduler) Phase() Phase { return s.phase }

// Backend returns the backend the scheduler settled on.
func (s *Scheduler) Backend() Backend { return s.backend }

// Run executes both phases over the stack and returns the completed result.
// Validation failures surface before any accumulation; if the chosen backend
// fails to start (device context unavailable), the run falls back to the
// host backend and still completes. progress may be nil.
func (s *Scheduler) Run(stack *ImageStack, progress ProgressFunc) (*FusionResult, error) {
	if s.phase != PhaseIdle {
		return nil, fmt.Errorf("scheduler already ran (phase %s); build a new one per stack", s.phase)
	}
	if err := stack.Validate(); err != nil {
		return nil, fmt.Errorf("invalid image stack: %w", err)
	}
	if progress == nil {
		progress = func(int, string) {}
	}

	width, height := stack.Width(), stack.Height()
	started := time.Now()

	if err := s.backend.Begin(width, height); err != nil {
		// Resource acquisition failure is recoverable: fall back to the host
		// path, attempted exactly once. Anything the host backend refuses is
		// a real error.
		if _, alreadyHost := s.backend.(*HostBackend); alreadyHost {
			return nil, fmt.Errorf("backend start failed: %w", err)
		}
		monitoring.Logf("fusion: %s backend unavailable (%v); falling back to host path", s.backend.Name(), err)
		s.backend.Close()
		s.backend = NewHostBackend(s.cfg.Workers)
		if err := s.backend.Begin(width, height); err != nil {
			return nil, fmt.Errorf("host fallback start failed: %w", err)
		}
	}
	defer s.backend.Close()

	s.phase = PhaseAccumulating
	nFrames := len(stack.Frames)
	progress(0, fmt.Sprintf("Accumulating %d frames (%dx%d, %s backend)...",
		nFrames, width, height, s.backend.Name()))

	// Accumulation owns 0-80% of the progress scale, finalization the rest.
	for i, f := range stack.Frames {
		if err := s.backend.AccumulateFrame(f); err != nil {
			return nil, fmt.Errorf("accumulating frame %d: %w", i, err)
		}
		progress((i+1)*80/nFrames, fmt.Sprintf("Frame %d/%d", i+1, nFrames))
	}

	s.phase = PhaseFinalizing
	progress(80, "Finalizing pixel statistics...")

	out := NewFusionResult(width, height, s.withClassification)
	if err := s.backend.Finalize(stack, &s.cfg, out); err != nil {
		return nil, fmt.Errorf("finalizing: %w", err)
	}

	s.phase = PhaseDone
	progress(100, fmt.Sprintf("Fused %d frames in %s", nFrames, time.Since(started).Round(time.Millisecond)))
	return out, nil
}

package fusion

import "fmt"

// Default processing parameters. The sigma and threshold bounds follow the
// original process parameter definitions.
const (
	DefaultOutlierSigma        = 3.0
	MinOutlierSigma            = 0.5
	MaxOutlierSigma            = 10.0
	DefaultConfidenceThreshold = 0.1
	DefaultTileWidth           = 256
	DefaultTileHeight          = 256
)

// ProcessingConfig is the caller-supplied, per-run configuration. It is
// treated as immutable once a scheduler has been constructed from it.
type ProcessingConfig struct {
	// Strategy selects how accumulated statistics collapse to a fused value.
	Strategy FusionStrategy
	// OutlierSigma is the sigma distance at which a frame value counts as an
	// outlier for quality accounting, in [MinOutlierSigma, MaxOutlierSigma].
	OutlierSigma float64
	// ConfidenceThreshold is the score below which a pixel is reported as
	// low-confidence in the run summary, in [0,1].
	ConfidenceThreshold float64
	// TileWidth and TileHeight bound device-side working-set size.
	TileWidth  int
	TileHeight int
	// UseDevice requests the GPU backend. Device acquisition failure is not
	// an error; the run falls back to the host backend.
	UseDevice bool
	// Workers caps host-backend parallelism. Zero means one worker per CPU.
	Workers int
	// Uncorrected switches variance readout to the population form m2/n.
	Uncorrected bool
	// Band selects the spatial-frequency band for the MultiScale strategy.
	Band FrequencyBand
}

// DefaultConfig returns the configuration matching the original process
// defaults: MLE fusion, 3-sigma outliers, 0.1 confidence threshold, device
// acceleration on.
func DefaultConfig() ProcessingConfig {
	return ProcessingConfig{
		Strategy:            StrategyMLE,
		OutlierSigma:        DefaultOutlierSigma,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		TileWidth:           DefaultTileWidth,
		TileHeight:          DefaultTileHeight,
		UseDevice:           true,
		Band:                BandMid,
	}
}

// Validate checks parameter ranges. Like stack validation this is fatal and
// runs before any accumulation.
func (c *ProcessingConfig) Validate() error {
	if !c.Strategy.Valid() {
		return fmt.Errorf("unknown fusion strategy %d", c.Strategy)
	}
	if c.OutlierSigma < MinOutlierSigma || c.OutlierSigma > MaxOutlierSigma {
		return fmt.Errorf("outlier sigma %.2f outside [%.1f, %.1f]",
			c.OutlierSigma, MinOutlierSigma, MaxOutlierSigma)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %.2f outside [0, 1]", c.ConfidenceThreshold)
	}
	if c.TileWidth <= 0 || c.TileHeight <= 0 {
		return fmt.Errorf("tile dimensions %dx%d must be positive", c.TileWidth, c.TileHeight)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

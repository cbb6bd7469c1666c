package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deepsky-data/starfuse/internal/fusion"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for fusion tuning
// parameters. All fields are pointers so a partial JSON file overrides
// only the values it names; everything else keeps its default.
type TuningConfig struct {
	// Fusion params
	Strategy            *string  `json:"strategy,omitempty"` // mle, confidence_weighted, lucky, multiscale
	OutlierSigma        *float64 `json:"outlier_sigma,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	Band                *string  `json:"band,omitempty"` // low, mid, high
	Uncorrected         *bool    `json:"uncorrected,omitempty"`

	// Execution params
	UseDevice  *bool `json:"use_device,omitempty"`
	Workers    *int  `json:"workers,omitempty"`
	TileWidth  *int  `json:"tile_width,omitempty"`
	TileHeight *int  `json:"tile_height,omitempty"`

	// Output params
	OutputPrefix *string `json:"output_prefix,omitempty"`
	StoreRuns    *bool   `json:"store_runs,omitempty"`
	DBPath       *string `json:"db_path,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultTuningConfig returns a TuningConfig with every field set to its
// default value.
func DefaultTuningConfig() *TuningConfig {
	base := fusion.DefaultConfig()
	return &TuningConfig{
		Strategy:            ptrString(base.Strategy.String()),
		OutlierSigma:        ptrFloat64(base.OutlierSigma),
		ConfidenceThreshold: ptrFloat64(base.ConfidenceThreshold),
		Band:                ptrString("mid"),
		Uncorrected:         ptrBool(false),
		UseDevice:           ptrBool(base.UseDevice),
		Workers:             ptrInt(0),
		TileWidth:           ptrInt(base.TileWidth),
		TileHeight:          ptrInt(base.TileHeight),
		OutputPrefix:        ptrString("bayesian"),
		StoreRuns:           ptrBool(false),
		DBPath:              ptrString("starfuse.db"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods and Processing()
	// provide fallback defaults for any fields not specified in the JSON.
	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.Strategy != nil {
		if _, ok := fusion.ParseStrategy(*c.Strategy); !ok {
			return fmt.Errorf("unknown strategy %q", *c.Strategy)
		}
	}

	if c.Band != nil {
		if _, ok := parseBand(*c.Band); !ok {
			return fmt.Errorf("unknown band %q (want low, mid, or high)", *c.Band)
		}
	}

	if c.OutlierSigma != nil {
		if *c.OutlierSigma < fusion.MinOutlierSigma || *c.OutlierSigma > fusion.MaxOutlierSigma {
			return fmt.Errorf("outlier_sigma must be between %.1f and %.1f, got %f",
				fusion.MinOutlierSigma, fusion.MaxOutlierSigma, *c.OutlierSigma)
		}
	}

	if c.ConfidenceThreshold != nil {
		if *c.ConfidenceThreshold < 0 || *c.ConfidenceThreshold > 1 {
			return fmt.Errorf("confidence_threshold must be between 0 and 1, got %f", *c.ConfidenceThreshold)
		}
	}

	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}

	if c.TileWidth != nil && *c.TileWidth <= 0 {
		return fmt.Errorf("tile_width must be positive, got %d", *c.TileWidth)
	}
	if c.TileHeight != nil && *c.TileHeight <= 0 {
		return fmt.Errorf("tile_height must be positive, got %d", *c.TileHeight)
	}

	return nil
}

func parseBand(name string) (fusion.FrequencyBand, bool) {
	switch name {
	case "low":
		return fusion.BandLow, true
	case "mid":
		return fusion.BandMid, true
	case "high":
		return fusion.BandHigh, true
	}
	return fusion.BandMid, false
}

// Processing materializes the tuning overlay into a fusion.ProcessingConfig,
// filling unset fields from fusion.DefaultConfig.
func (c *TuningConfig) Processing() fusion.ProcessingConfig {
	cfg := fusion.DefaultConfig()
	if c.Strategy != nil {
		if s, ok := fusion.ParseStrategy(*c.Strategy); ok {
			cfg.Strategy = s
		}
	}
	if c.Band != nil {
		if b, ok := parseBand(*c.Band); ok {
			cfg.Band = b
		}
	}
	if c.OutlierSigma != nil {
		cfg.OutlierSigma = *c.OutlierSigma
	}
	if c.ConfidenceThreshold != nil {
		cfg.ConfidenceThreshold = *c.ConfidenceThreshold
	}
	if c.Uncorrected != nil {
		cfg.Uncorrected = *c.Uncorrected
	}
	if c.UseDevice != nil {
		cfg.UseDevice = *c.UseDevice
	}
	if c.Workers != nil {
		cfg.Workers = *c.Workers
	}
	if c.TileWidth != nil {
		cfg.TileWidth = *c.TileWidth
	}
	if c.TileHeight != nil {
		cfg.TileHeight = *c.TileHeight
	}
	return cfg
}

// GetStrategy returns the strategy name or the default.
func (c *TuningConfig) GetStrategy() string {
	if c.Strategy == nil {
		return "mle"
	}
	return *c.Strategy
}

// GetOutlierSigma returns the outlier_sigma value or the default.
func (c *TuningConfig) GetOutlierSigma() float64 {
	if c.OutlierSigma == nil {
		return fusion.DefaultOutlierSigma
	}
	return *c.OutlierSigma
}

// GetConfidenceThreshold returns the confidence_threshold value or the default.
func (c *TuningConfig) GetConfidenceThreshold() float64 {
	if c.ConfidenceThreshold == nil {
		return fusion.DefaultConfidenceThreshold
	}
	return *c.ConfidenceThreshold
}

// GetUseDevice returns the use_device value or the default.
func (c *TuningConfig) GetUseDevice() bool {
	if c.UseDevice == nil {
		return true
	}
	return *c.UseDevice
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetOutputPrefix returns the output_prefix value or the default.
func (c *TuningConfig) GetOutputPrefix() string {
	if c.OutputPrefix == nil || *c.OutputPrefix == "" {
		return "bayesian"
	}
	return *c.OutputPrefix
}

// GetStoreRuns returns the store_runs value or the default.
func (c *TuningConfig) GetStoreRuns() bool {
	if c.StoreRuns == nil {
		return false
	}
	return *c.StoreRuns
}

// GetDBPath returns the db_path value or the default.
func (c *TuningConfig) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return "starfuse.db"
	}
	return *c.DBPath
}

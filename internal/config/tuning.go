package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// The Get* fallbacks below and this file must agree.
const DefaultConfigPath = "config/tuning.defaults.json"

// ZoneConfig is a rectangle in normalised 0-1 frame coordinates.
// X/Y is the top-left corner; W/H the extent.
type ZoneConfig struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// TuningConfig represents the root configuration for the crowd pipeline.
// Every field is optional; nil means "use the default".
type TuningConfig struct {
	// Decoder params
	ConfidenceFloor *float64 `json:"confidence_floor,omitempty"`
	ModelInputSize  *int     `json:"model_input_size,omitempty"`
	OutputScale     *float64 `json:"output_scale,omitempty"`
	AllowedLabels   []string `json:"allowed_labels,omitempty"`
	SeedOnEmpty     *bool    `json:"seed_on_empty,omitempty"`

	// Suppressor params
	IoUThreshold  *float64 `json:"iou_threshold,omitempty"`
	MaxDetections *int     `json:"max_detections,omitempty"`

	// Tracker params
	MatchDistance          *float64 `json:"match_distance,omitempty"`
	AgitationNormalization *float64 `json:"agitation_normalization,omitempty"`
	CounterFlowAngleFactor *float64 `json:"counter_flow_angle_factor,omitempty"` // multiplied by π
	MinCounterFlowVectors  *int     `json:"min_counter_flow_vectors,omitempty"`

	// Aggregator params
	DensityDivisor *float64    `json:"density_divisor,omitempty"`
	RestrictedZone *ZoneConfig `json:"restricted_zone,omitempty"`
	WeaponLabels   []string    `json:"weapon_labels,omitempty"`

	// Scheduling params
	TickInterval *string `json:"tick_interval,omitempty"` // duration string like "150ms"
	HistorySize  *int    `json:"history_size,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultAllowedLabels is the safety-relevant subset of the COCO vocabulary.
var DefaultAllowedLabels = []string{
	"person", "backpack", "handbag", "suitcase", "cell phone", "baseball bat", "knife", "bottle",
}

// DefaultWeaponLabels are the labels that force a CRITICAL risk level.
var DefaultWeaponLabels = []string{"knife", "baseball bat"}

// DefaultRestrictedZone is the top-right restricted rectangle.
var DefaultRestrictedZone = ZoneConfig{X: 0.6, Y: 0.0, W: 0.4, H: 0.3}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// with its default value.
func DefaultTuningConfig() *TuningConfig {
	zone := DefaultRestrictedZone
	return &TuningConfig{
		ConfidenceFloor:        ptrFloat64(0.4),
		ModelInputSize:         ptrInt(640),
		OutputScale:            ptrFloat64(1000),
		AllowedLabels:          append([]string(nil), DefaultAllowedLabels...),
		SeedOnEmpty:            ptrBool(false),
		IoUThreshold:           ptrFloat64(0.5),
		MaxDetections:          ptrInt(50),
		MatchDistance:          ptrFloat64(100),
		AgitationNormalization: ptrFloat64(20),
		CounterFlowAngleFactor: ptrFloat64(0.66),
		MinCounterFlowVectors:  ptrInt(3),
		DensityDivisor:         ptrFloat64(35),
		RestrictedZone:         &zone,
		WeaponLabels:           append([]string(nil), DefaultWeaponLabels...),
		TickInterval:           ptrString("150ms"),
		HistorySize:            ptrInt(100),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
// Fields omitted from the JSON file fall back to defaults via the Get*
// methods, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repository root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/crowd/pipeline/
		"../../../../" + DefaultConfigPath, // from internal/crowd/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ConfidenceFloor != nil {
		if *c.ConfidenceFloor < 0 || *c.ConfidenceFloor > 1 {
			return fmt.Errorf("confidence_floor must be between 0 and 1, got %f", *c.ConfidenceFloor)
		}
	}
	if c.IoUThreshold != nil {
		if *c.IoUThreshold < 0 || *c.IoUThreshold > 1 {
			return fmt.Errorf("iou_threshold must be between 0 and 1, got %f", *c.IoUThreshold)
		}
	}
	if c.ModelInputSize != nil && *c.ModelInputSize <= 0 {
		return fmt.Errorf("model_input_size must be positive, got %d", *c.ModelInputSize)
	}
	if c.OutputScale != nil && *c.OutputScale <= 0 {
		return fmt.Errorf("output_scale must be positive, got %f", *c.OutputScale)
	}
	if c.MaxDetections != nil && *c.MaxDetections <= 0 {
		return fmt.Errorf("max_detections must be positive, got %d", *c.MaxDetections)
	}
	if c.MatchDistance != nil && *c.MatchDistance <= 0 {
		return fmt.Errorf("match_distance must be positive, got %f", *c.MatchDistance)
	}
	if c.AgitationNormalization != nil && *c.AgitationNormalization <= 0 {
		return fmt.Errorf("agitation_normalization must be positive, got %f", *c.AgitationNormalization)
	}
	if c.CounterFlowAngleFactor != nil {
		if *c.CounterFlowAngleFactor <= 0 || *c.CounterFlowAngleFactor > 2 {
			return fmt.Errorf("counter_flow_angle_factor must be in (0, 2], got %f", *c.CounterFlowAngleFactor)
		}
	}
	if c.MinCounterFlowVectors != nil && *c.MinCounterFlowVectors < 1 {
		return fmt.Errorf("min_counter_flow_vectors must be at least 1, got %d", *c.MinCounterFlowVectors)
	}
	if c.DensityDivisor != nil && *c.DensityDivisor <= 0 {
		return fmt.Errorf("density_divisor must be positive, got %f", *c.DensityDivisor)
	}
	if z := c.RestrictedZone; z != nil {
		if z.X < 0 || z.Y < 0 || z.W < 0 || z.H < 0 || z.X+z.W > 1 || z.Y+z.H > 1 {
			return fmt.Errorf("restricted_zone must lie within [0,1], got %+v", *z)
		}
	}
	if c.TickInterval != nil && *c.TickInterval != "" {
		d, err := time.ParseDuration(*c.TickInterval)
		if err != nil {
			return fmt.Errorf("invalid tick_interval '%s': %w", *c.TickInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("tick_interval must be positive, got %s", d)
		}
	}
	if c.HistorySize != nil && *c.HistorySize < 0 {
		return fmt.Errorf("history_size must be non-negative, got %d", *c.HistorySize)
	}
	return nil
}

// GetConfidenceFloor returns the confidence_floor value or the default.
func (c *TuningConfig) GetConfidenceFloor() float64 {
	if c.ConfidenceFloor == nil {
		return 0.4
	}
	return *c.ConfidenceFloor
}

// GetModelInputSize returns the model_input_size value or the default.
func (c *TuningConfig) GetModelInputSize() int {
	if c.ModelInputSize == nil {
		return 640
	}
	return *c.ModelInputSize
}

// GetOutputScale returns the output_scale value or the default.
func (c *TuningConfig) GetOutputScale() float64 {
	if c.OutputScale == nil {
		return 1000
	}
	return *c.OutputScale
}

// GetAllowedLabels returns the allowed_labels value or the default.
func (c *TuningConfig) GetAllowedLabels() []string {
	if len(c.AllowedLabels) == 0 {
		return append([]string(nil), DefaultAllowedLabels...)
	}
	return append([]string(nil), c.AllowedLabels...)
}

// GetSeedOnEmpty returns the seed_on_empty value or the default.
func (c *TuningConfig) GetSeedOnEmpty() bool {
	if c.SeedOnEmpty == nil {
		return false
	}
	return *c.SeedOnEmpty
}

// GetIoUThreshold returns the iou_threshold value or the default.
func (c *TuningConfig) GetIoUThreshold() float64 {
	if c.IoUThreshold == nil {
		return 0.5
	}
	return *c.IoUThreshold
}

// GetMaxDetections returns the max_detections value or the default.
func (c *TuningConfig) GetMaxDetections() int {
	if c.MaxDetections == nil {
		return 50
	}
	return *c.MaxDetections
}

// GetMatchDistance returns the match_distance value or the default.
func (c *TuningConfig) GetMatchDistance() float64 {
	if c.MatchDistance == nil {
		return 100
	}
	return *c.MatchDistance
}

// GetAgitationNormalization returns the agitation_normalization value or the default.
func (c *TuningConfig) GetAgitationNormalization() float64 {
	if c.AgitationNormalization == nil {
		return 20
	}
	return *c.AgitationNormalization
}

// GetCounterFlowAngleFactor returns the counter_flow_angle_factor value or the default.
func (c *TuningConfig) GetCounterFlowAngleFactor() float64 {
	if c.CounterFlowAngleFactor == nil {
		return 0.66
	}
	return *c.CounterFlowAngleFactor
}

// GetMinCounterFlowVectors returns the min_counter_flow_vectors value or the default.
func (c *TuningConfig) GetMinCounterFlowVectors() int {
	if c.MinCounterFlowVectors == nil {
		return 3
	}
	return *c.MinCounterFlowVectors
}

// GetDensityDivisor returns the density_divisor value or the default.
func (c *TuningConfig) GetDensityDivisor() float64 {
	if c.DensityDivisor == nil {
		return 35
	}
	return *c.DensityDivisor
}

// GetRestrictedZone returns the restricted_zone value or the default.
func (c *TuningConfig) GetRestrictedZone() ZoneConfig {
	if c.RestrictedZone == nil {
		return DefaultRestrictedZone
	}
	return *c.RestrictedZone
}

// GetWeaponLabels returns the weapon_labels value or the default.
func (c *TuningConfig) GetWeaponLabels() []string {
	if len(c.WeaponLabels) == 0 {
		return append([]string(nil), DefaultWeaponLabels...)
	}
	return append([]string(nil), c.WeaponLabels...)
}

// GetTickInterval parses and returns the TickInterval as a time.Duration.
func (c *TuningConfig) GetTickInterval() time.Duration {
	if c.TickInterval == nil || *c.TickInterval == "" {
		return 150 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.TickInterval)
	if err != nil || d <= 0 {
		return 150 * time.Millisecond // default on parse error
	}
	return d
}

// GetHistorySize returns the history_size value or the default.
func (c *TuningConfig) GetHistorySize() int {
	if c.HistorySize == nil {
		return 100
	}
	return *c.HistorySize
}

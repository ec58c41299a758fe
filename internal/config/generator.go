package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/kinegen/internal/kine"
)

// DefaultConfigPath is the path to the canonical generator defaults file.
const DefaultConfigPath = "config/kinegen.defaults.json"

// GeneratorConfig is the JSON form of the kinematics generator settings.
// Every field is optional; the Get* accessors supply defaults for fields
// omitted from the file.
type GeneratorConfig struct {
	// Rejection bound and cache
	MaxRateSafetyFactor  *float64 `json:"max_rate_safety_factor,omitempty"`
	CacheMinEnergy       *float64 `json:"cache_min_energy,omitempty"`
	MaxRateDiffTolerance *float64 `json:"max_rate_diff_tolerance,omitempty"`
	CacheSplineMinPoints *int     `json:"cache_spline_min_points,omitempty"`

	// Sampling
	UniformOverPhaseSpace *bool    `json:"uniform_over_phase_space,omitempty"`
	MinAngleEMDeg         *float64 `json:"min_angle_em_deg,omitempty"`
	HitNucleonBindingMode *string  `json:"hit_nucleon_binding_mode,omitempty"`
	MaxIterations         *int     `json:"max_iterations,omitempty"`

	// Maximum search
	MaxRateNucleonThrows     *int     `json:"max_rate_nucleon_throws,omitempty"`
	SearchGridTheta          *int     `json:"search_grid_theta,omitempty"`
	SearchGridPhi            *int     `json:"search_grid_phi,omitempty"`
	SearchMaxLayers          *int     `json:"search_max_layers,omitempty"`
	SearchAcceptableFraction *float64 `json:"search_acceptable_fraction,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyGeneratorConfig returns a GeneratorConfig with all fields set to nil.
func EmptyGeneratorConfig() *GeneratorConfig {
	return &GeneratorConfig{}
}

// DefaultGeneratorConfig returns a GeneratorConfig with every field set to
// its default.
func DefaultGeneratorConfig() *GeneratorConfig {
	d := kine.DefaultConfig()
	return &GeneratorConfig{
		MaxRateSafetyFactor:      ptrFloat64(d.SafetyFactor),
		CacheMinEnergy:           ptrFloat64(d.CacheMinEnergy),
		MaxRateDiffTolerance:     ptrFloat64(d.MaxRateDiffTolerance),
		CacheSplineMinPoints:     ptrInt(d.CacheSplineMinPoints),
		UniformOverPhaseSpace:    ptrBool(d.UniformOverPhaseSpace),
		MinAngleEMDeg:            ptrFloat64(d.MinAngleEMDeg),
		HitNucleonBindingMode:    ptrString(d.BindingMode.String()),
		MaxIterations:            ptrInt(d.MaxIterations),
		MaxRateNucleonThrows:     ptrInt(d.NucleonThrows),
		SearchGridTheta:          ptrInt(d.SearchGridTheta),
		SearchGridPhi:            ptrInt(d.SearchGridPhi),
		SearchMaxLayers:          ptrInt(d.SearchMaxLayers),
		SearchAcceptableFraction: ptrFloat64(d.SearchAcceptableFraction),
	}
}

// LoadConfig loads a GeneratorConfig from a JSON file.
// The file must have a .json extension and be at most 1 MiB. Fields
// omitted from the file keep their defaults, so partial configs are safe.
func LoadConfig(path string) (*GeneratorConfig, error) {
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

	cfg := EmptyGeneratorConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repository
// root. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *GeneratorConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the fields that are set. The combined settings are
// checked again by kine.Config.Validate.
func (c *GeneratorConfig) Validate() error {
	if c.MaxRateSafetyFactor != nil && *c.MaxRateSafetyFactor < 1 {
		return fmt.Errorf("max_rate_safety_factor must be >= 1, got %f", *c.MaxRateSafetyFactor)
	}
	if c.MaxRateDiffTolerance != nil && *c.MaxRateDiffTolerance < 0 {
		return fmt.Errorf("max_rate_diff_tolerance must be non-negative, got %f", *c.MaxRateDiffTolerance)
	}
	if c.MinAngleEMDeg != nil && (*c.MinAngleEMDeg < 0 || *c.MinAngleEMDeg > 180) {
		return fmt.Errorf("min_angle_em_deg must be between 0 and 180, got %f", *c.MinAngleEMDeg)
	}
	if c.HitNucleonBindingMode != nil {
		if _, err := kine.ParseBindingMode(*c.HitNucleonBindingMode); err != nil {
			return fmt.Errorf("invalid hit_nucleon_binding_mode: %w", err)
		}
	}
	for name, v := range map[string]*int{
		"max_iterations":          c.MaxIterations,
		"max_rate_nucleon_throws": c.MaxRateNucleonThrows,
		"search_grid_theta":       c.SearchGridTheta,
		"search_grid_phi":         c.SearchGridPhi,
		"search_max_layers":       c.SearchMaxLayers,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	if c.SearchAcceptableFraction != nil && *c.SearchAcceptableFraction < 0 {
		return fmt.Errorf("search_acceptable_fraction must be non-negative, got %f", *c.SearchAcceptableFraction)
	}
	if c.CacheSplineMinPoints != nil && *c.CacheSplineMinPoints < 2 {
		return fmt.Errorf("cache_spline_min_points must be at least 2, got %d", *c.CacheSplineMinPoints)
	}
	return nil
}

// KineConfig converts c to the engine configuration, filling defaults.
func (c *GeneratorConfig) KineConfig() (kine.Config, error) {
	mode, err := kine.ParseBindingMode(c.GetHitNucleonBindingMode())
	if err != nil {
		return kine.Config{}, err
	}
	cfg := kine.Config{
		SafetyFactor:             c.GetMaxRateSafetyFactor(),
		CacheMinEnergy:           c.GetCacheMinEnergy(),
		MaxRateDiffTolerance:     c.GetMaxRateDiffTolerance(),
		UniformOverPhaseSpace:    c.GetUniformOverPhaseSpace(),
		MinAngleEMDeg:            c.GetMinAngleEMDeg(),
		BindingMode:              mode,
		NucleonThrows:            c.GetMaxRateNucleonThrows(),
		MaxIterations:            c.GetMaxIterations(),
		SearchGridTheta:          c.GetSearchGridTheta(),
		SearchGridPhi:            c.GetSearchGridPhi(),
		SearchMaxLayers:          c.GetSearchMaxLayers(),
		SearchAcceptableFraction: c.GetSearchAcceptableFraction(),
		CacheSplineMinPoints:     c.GetCacheSplineMinPoints(),
	}
	return cfg, cfg.Validate()
}

// GetMaxRateSafetyFactor returns the max_rate_safety_factor value or the default.
func (c *GeneratorConfig) GetMaxRateSafetyFactor() float64 {
	if c.MaxRateSafetyFactor == nil {
		return 1.6 // default
	}
	return *c.MaxRateSafetyFactor
}

// GetCacheMinEnergy returns the cache_min_energy value or the default.
func (c *GeneratorConfig) GetCacheMinEnergy() float64 {
	if c.CacheMinEnergy == nil {
		return 1.0 // default
	}
	return *c.CacheMinEnergy
}

// GetMaxRateDiffTolerance returns the max_rate_diff_tolerance value or the default.
func (c *GeneratorConfig) GetMaxRateDiffTolerance() float64 {
	if c.MaxRateDiffTolerance == nil {
		return 999999 // default
	}
	return *c.MaxRateDiffTolerance
}

// GetCacheSplineMinPoints returns the cache_spline_min_points value or the default.
func (c *GeneratorConfig) GetCacheSplineMinPoints() int {
	if c.CacheSplineMinPoints == nil {
		return 40 // default
	}
	return *c.CacheSplineMinPoints
}

// GetUniformOverPhaseSpace returns the uniform_over_phase_space value or the default.
func (c *GeneratorConfig) GetUniformOverPhaseSpace() bool {
	if c.UniformOverPhaseSpace == nil {
		return false // default
	}
	return *c.UniformOverPhaseSpace
}

// GetMinAngleEMDeg returns the min_angle_em_deg value or the default.
func (c *GeneratorConfig) GetMinAngleEMDeg() float64 {
	if c.MinAngleEMDeg == nil {
		return 0 // default
	}
	return *c.MinAngleEMDeg
}

// GetHitNucleonBindingMode returns the hit_nucleon_binding_mode value or the default.
func (c *GeneratorConfig) GetHitNucleonBindingMode() string {
	if c.HitNucleonBindingMode == nil || *c.HitNucleonBindingMode == "" {
		return kine.BindingUseNuclearModel.String() // default
	}
	return *c.HitNucleonBindingMode
}

// GetMaxIterations returns the max_iterations value or the default.
func (c *GeneratorConfig) GetMaxIterations() int {
	if c.MaxIterations == nil {
		return 1000 // default
	}
	return *c.MaxIterations
}

// GetMaxRateNucleonThrows returns the max_rate_nucleon_throws value or the default.
func (c *GeneratorConfig) GetMaxRateNucleonThrows() int {
	if c.MaxRateNucleonThrows == nil {
		return 800 // default
	}
	return *c.MaxRateNucleonThrows
}

// GetSearchGridTheta returns the search_grid_theta value or the default.
func (c *GeneratorConfig) GetSearchGridTheta() int {
	if c.SearchGridTheta == nil {
		return 10 // default
	}
	return *c.SearchGridTheta
}

// GetSearchGridPhi returns the search_grid_phi value or the default.
func (c *GeneratorConfig) GetSearchGridPhi() int {
	if c.SearchGridPhi == nil {
		return 10 // default
	}
	return *c.SearchGridPhi
}

// GetSearchMaxLayers returns the search_max_layers value or the default.
func (c *GeneratorConfig) GetSearchMaxLayers() int {
	if c.SearchMaxLayers == nil {
		return 100 // default
	}
	return *c.SearchMaxLayers
}

// GetSearchAcceptableFraction returns the search_acceptable_fraction value or the default.
func (c *GeneratorConfig) GetSearchAcceptableFraction() float64 {
	if c.SearchAcceptableFraction == nil {
		return 0.2 // default
	}
	return *c.SearchAcceptableFraction
}

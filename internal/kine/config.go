package kine

import "fmt"

// Config holds the generator settings. DefaultConfig supplies the values
// used when a setting is not configured.
type Config struct {
	// SafetyFactor scales cached maxima into rejection bounds.
	SafetyFactor float64
	// CacheMinEnergy is the probe energy below which maxima are always
	// computed fresh and never cached.
	CacheMinEnergy float64
	// MaxRateDiffTolerance is the largest fractional excess of a rate over
	// its bound tolerated before the cache entry is invalidated.
	MaxRateDiffTolerance float64
	// UniformOverPhaseSpace accepts every non-degenerate draw and reports a
	// weight instead of running the rejection test.
	UniformOverPhaseSpace bool
	// MinAngleEMDeg is the minimum lab lepton angle for EM processes.
	MinAngleEMDeg float64
	BindingMode   BindingMode
	// NucleonThrows is the number of hit nucleon throws that seed the
	// maximum search.
	NucleonThrows int
	// MaxIterations bounds the rejection loop of one event.
	MaxIterations int

	SearchGridTheta          int
	SearchGridPhi            int
	SearchMaxLayers          int
	SearchAcceptableFraction float64

	// CacheSplineMinPoints is the number of energy knots a cache entry
	// needs before energies between knots are interpolated.
	CacheSplineMinPoints int
}

// DefaultConfig returns the default generator settings.
func DefaultConfig() Config {
	return Config{
		SafetyFactor:             1.6,
		CacheMinEnergy:           1.0,
		MaxRateDiffTolerance:     999999,
		UniformOverPhaseSpace:    false,
		MinAngleEMDeg:            0,
		BindingMode:              BindingUseNuclearModel,
		NucleonThrows:            800,
		MaxIterations:            1000,
		SearchGridTheta:          10,
		SearchGridPhi:            10,
		SearchMaxLayers:          100,
		SearchAcceptableFraction: 0.2,
		CacheSplineMinPoints:     40,
	}
}

// Validate checks that c can drive a Generator.
func (c Config) Validate() error {
	if c.SafetyFactor < 1 {
		return fmt.Errorf("%w: safety factor must be >= 1, got %g", ErrInvalidConfig, c.SafetyFactor)
	}
	if c.MaxRateDiffTolerance < 0 {
		return fmt.Errorf("%w: max rate diff tolerance must be >= 0, got %g", ErrInvalidConfig, c.MaxRateDiffTolerance)
	}
	if c.MinAngleEMDeg < 0 || c.MinAngleEMDeg > 180 {
		return fmt.Errorf("%w: min EM angle must be in [0, 180], got %g", ErrInvalidConfig, c.MinAngleEMDeg)
	}
	switch c.BindingMode {
	case BindingUseNuclearModel, BindingOnShell, BindingOnShellWithCorrection:
	default:
		return fmt.Errorf("%w: unknown binding mode %v", ErrInvalidConfig, c.BindingMode)
	}
	if c.NucleonThrows <= 0 {
		return fmt.Errorf("%w: nucleon throws must be positive, got %d", ErrInvalidConfig, c.NucleonThrows)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w: max iterations must be positive, got %d", ErrInvalidConfig, c.MaxIterations)
	}
	if c.SearchGridTheta <= 0 || c.SearchGridPhi <= 0 {
		return fmt.Errorf("%w: search grid must be positive, got %dx%d", ErrInvalidConfig, c.SearchGridTheta, c.SearchGridPhi)
	}
	if c.SearchMaxLayers <= 0 {
		return fmt.Errorf("%w: search max layers must be positive, got %d", ErrInvalidConfig, c.SearchMaxLayers)
	}
	if c.SearchAcceptableFraction < 0 {
		return fmt.Errorf("%w: search acceptable fraction must be >= 0, got %g", ErrInvalidConfig, c.SearchAcceptableFraction)
	}
	if c.CacheSplineMinPoints < 2 {
		return fmt.Errorf("%w: cache spline needs at least 2 points, got %d", ErrInvalidConfig, c.CacheSplineMinPoints)
	}
	return nil
}

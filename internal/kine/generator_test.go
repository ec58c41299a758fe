package kine

import (
	"errors"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kinegen/internal/testutil"
)

// seededCache returns a cache holding a raw maximum for in.
func seededCache(cfg Config, in *Interaction, raw float64) *MaxRateCache {
	c := NewMaxRateCache(cfg, nil)
	c.Put(CacheKnot{Fingerprint: in.Fingerprint(), Energy: in.ProbeEnergy, MaxRate: raw})
	return c
}

func TestNewGenerator_MissingCollaborators(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	rate := constantRate(1)
	nuclear := &fixedSampler{}
	cache := NewMaxRateCache(cfg, nil)
	rng := NewRand(1)

	correcting := cfg
	correcting.BindingMode = BindingOnShellWithCorrection

	tests := []struct {
		name  string
		cfg   Config
		deps  Collaborators
		cache *MaxRateCache
		rng   Uniform
	}{
		{"no rate model", cfg, Collaborators{Nuclear: nuclear}, cache, rng},
		{"no nuclear model", cfg, Collaborators{Rate: rate}, cache, rng},
		{"no exclusion check when correcting", correcting, Collaborators{Rate: rate, Nuclear: nuclear}, cache, rng},
		{"no cache", cfg, Collaborators{Rate: rate, Nuclear: nuclear}, nil, rng},
		{"no random source", cfg, Collaborators{Rate: rate, Nuclear: nuclear}, cache, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGenerator(tt.cfg, tt.deps, tt.cache, tt.rng, nil)
			assert.ErrorIs(t, err, ErrMissingCollaborator)
		})
	}

	// The exclusion check is optional outside correction mode.
	_, err := NewGenerator(cfg, Collaborators{Rate: rate, Nuclear: nuclear}, cache, rng, nil)
	assert.NoError(t, err)

	bad := cfg
	bad.SafetyFactor = 0.5
	_, err = NewGenerator(bad, Collaborators{Rate: rate, Nuclear: nuclear}, cache, rng, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGenerate_ConstantRateAcceptsFirstDraw(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SafetyFactor = 1.0
	in := freeNeutronCC(t, 1.0)

	g := newTestGenerator(t, cfg, Collaborators{Rate: constantRate(1), Nuclear: &fixedSampler{}}, NewMaxRateCache(cfg, nil), NewRand(7))
	ak, err := g.Generate(in)
	require.NoError(t, err)
	assert.Equal(t, 1, ak.Iterations)
	assert.Equal(t, 1.0, ak.Rate)
	assert.Equal(t, 1.0, ak.Weight)
	assert.False(t, ak.Corrected)
}

func TestGenerate_ZeroRateExhaustsBudget(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxIterations = 250
	in := freeNeutronCC(t, 1.0)
	rate := &countingRate{fn: constantRate(0)}
	m := NewMetrics(prometheus.NewRegistry())

	g, err := NewGenerator(cfg, Collaborators{Rate: rate, Nuclear: &fixedSampler{}}, seededCache(cfg, in, 1), NewRand(7), m)
	require.NoError(t, err)

	ak, err := g.Generate(in)
	assert.Nil(t, ak)
	require.ErrorIs(t, err, ErrKineGen)

	var kerr *KineGenError
	require.True(t, errors.As(err, &kerr))
	assert.Equal(t, ReasonExhausted, kerr.Reason)
	assert.Equal(t, 250, kerr.Iterations)
	assert.Equal(t, 250, rate.calls)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.Events.WithLabelValues("exhausted")))
	assert.Equal(t, 250.0, promtest.ToFloat64(m.Iterations))
}

func TestGenerate_NoPhaseSpace(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	in := freeNeutronCC(t, 1.0)
	rng := testutil.NewScriptedUniform(0.3)

	g := newTestGenerator(t, cfg, Collaborators{Rate: constantRate(0), Nuclear: &fixedSampler{}}, NewMaxRateCache(cfg, nil), rng)
	_, err := g.Generate(in)

	var kerr *KineGenError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, ReasonNoPhaseSpace, kerr.Reason)
	assert.Zero(t, kerr.Iterations)
	assert.Zero(t, rng.Draws())
}

func TestGenerate_DegenerateDrawsAreSkipped(t *testing.T) {
	t.Parallel()

	t.Run("uniform mode below threshold", func(t *testing.T) {
		cfg := testConfig()
		cfg.UniformOverPhaseSpace = true
		cfg.MaxIterations = 40
		in := freeNeutronCC(t, 0.05)
		rate := &countingRate{fn: constantRate(1)}
		rng := testutil.NewScriptedUniform(0.3)

		g := newTestGenerator(t, cfg, Collaborators{Rate: rate, Nuclear: &fixedSampler{}}, NewMaxRateCache(cfg, nil), rng)
		_, err := g.Generate(in)

		var kerr *KineGenError
		require.ErrorAs(t, err, &kerr)
		assert.Equal(t, ReasonExhausted, kerr.Reason)
		assert.Equal(t, 40, kerr.Iterations)
		assert.Zero(t, rate.calls)
		assert.Zero(t, rng.Draws(), "no angles drawn for degenerate samples")
	})

	t.Run("bound target with seeded bound", func(t *testing.T) {
		cfg := testConfig()
		cfg.CacheMinEnergy = 0
		cfg.MaxIterations = 30
		in := carbonCC(t, 0.05)
		rate := &countingRate{fn: constantRate(1)}
		sampler := &fixedSampler{sample: BoundParticleSample{RemovalEnergy: 0.025}}
		m := NewMetrics(prometheus.NewRegistry())

		g, err := NewGenerator(cfg, Collaborators{Rate: rate, Nuclear: sampler}, seededCache(cfg, in, 1), testutil.NewScriptedUniform(0.3), m)
		require.NoError(t, err)
		_, err = g.Generate(in)

		assert.ErrorIs(t, err, ErrKineGen)
		assert.Equal(t, 30, sampler.draws)
		assert.Zero(t, rate.calls)
		assert.Equal(t, 30.0, promtest.ToFloat64(m.DegenerateDraws))
	})
}

func TestGenerate_Q2WithinLimits(t *testing.T) {
	t.Parallel()

	rate := RateFunc(func(c *Candidate) float64 {
		return 1 / math.Pow(1+c.Final.Q2, 2)
	})

	for _, mode := range []BindingMode{BindingUseNuclearModel, BindingOnShell, BindingOnShellWithCorrection} {
		t.Run(mode.String(), func(t *testing.T) {
			cfg := testConfig()
			cfg.BindingMode = mode
			in := carbonCC(t, 1.0)
			deps := Collaborators{
				Rate:      rate,
				Nuclear:   &shellSampler{momentum: 0.2, removal: 0.025},
				Exclusion: fixedExclusion{kF: 0.221},
			}
			g := newTestGenerator(t, cfg, deps, NewMaxRateCache(cfg, nil), NewRand(11))

			for i := 0; i < 100; i++ {
				ak, err := g.Generate(in)
				require.NoError(t, err)
				lo, hi := Q2Limits(in, ak.HitNucleon)
				assert.GreaterOrEqual(t, ak.Q2, lo-1e-9)
				assert.LessOrEqual(t, ak.Q2, hi+1e-9)
				assert.InDelta(t, ak.Q2, -ak.Transfer.M2(), 1e-9)
				assert.Equal(t, mode == BindingOnShellWithCorrection, ak.Corrected)
				assert.GreaterOrEqual(t, ak.Iterations, 1)
			}
		})
	}
}

func TestGenerate_CorrectionUsesRemovalEnergy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.BindingMode = BindingOnShellWithCorrection
	in := carbonCC(t, 1.0)
	deps := Collaborators{
		Rate:      constantRate(1),
		Nuclear:   &fixedSampler{sample: BoundParticleSample{RemovalEnergy: 0.025}},
		Exclusion: fixedExclusion{kF: 0.221},
	}
	g := newTestGenerator(t, cfg, deps, seededCache(cfg, in, 1), NewRand(5))

	ak, err := g.Generate(in)
	require.NoError(t, err)
	assert.True(t, ak.Corrected)
	assert.Equal(t, 0.025, ak.RemovalEnergy)
	assert.InDelta(t, in.HitNucleonMass-0.025, ak.HitNucleon.E(), 1e-12)
	assert.InDelta(t, in.RecoilMass, ak.W, 1e-9)
}

func TestGenerate_CorrectorRejectionsExhaustBudget(t *testing.T) {
	t.Parallel()

	// At 0.12 GeV the on-shell draw is above threshold but the corrected
	// one, with 25 MeV removal energy, is not.
	cfg := testConfig()
	cfg.BindingMode = BindingOnShellWithCorrection
	cfg.SafetyFactor = 1.0
	cfg.CacheMinEnergy = 0
	cfg.MaxIterations = 37
	in := carbonCC(t, 0.12)
	rate := &countingRate{fn: constantRate(1)}
	deps := Collaborators{
		Rate:      rate,
		Nuclear:   &fixedSampler{sample: BoundParticleSample{RemovalEnergy: 0.025}},
		Exclusion: fixedExclusion{kF: 0.221},
	}
	m := NewMetrics(prometheus.NewRegistry())

	g, err := NewGenerator(cfg, deps, seededCache(cfg, in, 1), NewRand(9), m)
	require.NoError(t, err)
	ak, err := g.Generate(in)
	assert.Nil(t, ak)

	var kerr *KineGenError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, ReasonExhausted, kerr.Reason)
	assert.Equal(t, cfg.MaxIterations, kerr.Iterations)
	assert.Equal(t, cfg.MaxIterations, rate.calls)
	assert.Equal(t, float64(cfg.MaxIterations), promtest.ToFloat64(m.CorrectorRejections.WithLabelValues(rejectBelowThreshold)))
	assert.Zero(t, promtest.ToFloat64(m.DegenerateDraws))
}

func TestGenerate_PassesHitNucleonRadius(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.BindingMode = BindingOnShellWithCorrection
	in := carbonCC(t, 1.0)
	in.HitNucleonRadius = 2.5
	sampler := &fixedSampler{sample: BoundParticleSample{RemovalEnergy: 0.025}}
	var thresholdRadii []float64
	deps := Collaborators{
		Rate:      constantRate(1),
		Nuclear:   sampler,
		Exclusion: radiusExclusion{fixedExclusion: fixedExclusion{kF: 0.221}, radii: &thresholdRadii},
	}
	g := newTestGenerator(t, cfg, deps, seededCache(cfg, in, 1), NewRand(5))

	_, err := g.Generate(in)
	require.NoError(t, err)
	require.NotEmpty(t, sampler.radii)
	require.NotEmpty(t, thresholdRadii)
	for _, r := range append(sampler.radii, thresholdRadii...) {
		assert.Equal(t, 2.5, r)
	}
}

func TestGenerate_UniformWeights(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.UniformOverPhaseSpace = true
	in := freeNeutronCC(t, 1.0)
	cache := NewMaxRateCache(cfg, nil)

	g := newTestGenerator(t, cfg, Collaborators{Rate: constantRate(2), Nuclear: &fixedSampler{}}, cache, NewRand(3))
	ak, err := g.Generate(in)
	require.NoError(t, err)

	hit, _ := BindHitNucleon(in, BoundParticleSample{}, cfg.BindingMode)
	cmax := math.Min(1, CosTheta0Max(in, hit))
	assert.Equal(t, 1, ak.Iterations)
	assert.InDelta(t, 2*(cmax+1)*2*math.Pi, ak.Weight, 1e-12)
	assert.Zero(t, cache.Len(), "uniform mode needs no bound")
}

func TestGenerate_BoundViolationInvalidatesEntry(t *testing.T) {
	cfg := testConfig()
	cfg.SafetyFactor = 1.0
	cfg.MaxRateDiffTolerance = 0.5
	in := freeNeutronCC(t, 1.0)
	cache := seededCache(cfg, in, 0.5)
	m := NewMetrics(prometheus.NewRegistry())

	var ops testutil.SyncBuffer
	SetLogWriters(&ops, nil, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil, nil) })

	g, err := NewGenerator(cfg, Collaborators{Rate: constantRate(1), Nuclear: &fixedSampler{}}, cache, NewRand(9), m)
	require.NoError(t, err)

	ak, err := g.Generate(in)
	require.NoError(t, err, "the draw is honoured")
	assert.Equal(t, 1, ak.Iterations)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.BoundViolations))
	assert.Zero(t, cache.Len())
	assert.Contains(t, ops.String(), "exceeds max rate bound")
}

func TestGenerate_BoundViolationWithinTolerance(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SafetyFactor = 1.0
	in := freeNeutronCC(t, 1.0)
	cache := seededCache(cfg, in, 0.5)

	g := newTestGenerator(t, cfg, Collaborators{Rate: constantRate(1), Nuclear: &fixedSampler{}}, cache, NewRand(9))
	_, err := g.Generate(in)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}

func TestGenerate_SafetyFactorMonotonicity(t *testing.T) {
	t.Parallel()

	in := freeNeutronCC(t, 1.0)
	iterations := func(sf float64, seed uint64) int {
		cfg := testConfig()
		cfg.SafetyFactor = sf
		g := newTestGenerator(t, cfg, Collaborators{Rate: constantRate(1), Nuclear: &fixedSampler{}}, seededCache(cfg, in, 1), NewRand(seed))
		ak, err := g.Generate(in)
		if err != nil {
			return cfg.MaxIterations + 1
		}
		return ak.Iterations
	}

	totalLow, totalHigh := 0, 0
	for seed := uint64(1); seed <= 50; seed++ {
		low, high := iterations(1.2, seed), iterations(2.5, seed)
		assert.LessOrEqual(t, low, high, "seed %d", seed)
		totalLow += low
		totalHigh += high
	}
	assert.Less(t, totalLow, totalHigh)
}

func TestGenerate_LayerObserver(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	in := freeNeutronCC(t, 1.0)
	g := newTestGenerator(t, cfg, Collaborators{Rate: peakedRate(0.3), Nuclear: &fixedSampler{}}, NewMaxRateCache(cfg, nil), NewRand(2))

	layers := 0
	g.SetLayerObserver(func(int, float64) { layers++ })
	_, err := g.Generate(in)
	require.NoError(t, err)
	assert.Greater(t, layers, 0)

	// Second event hits the cache: no new search.
	before := layers
	_, err = g.Generate(in)
	require.NoError(t, err)
	assert.Equal(t, before, layers)
}

func TestGenerate_NilInteraction(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	g := newTestGenerator(t, cfg, Collaborators{Rate: constantRate(1), Nuclear: &fixedSampler{}}, NewMaxRateCache(cfg, nil), NewRand(1))
	_, err := g.Generate(nil)
	assert.ErrorIs(t, err, ErrInvalidInteraction)
}

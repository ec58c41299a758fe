package kine

import (
	"fmt"
	"math"
)

// Collaborators are the external models a Generator consumes.
// Exclusion is only required for BindingOnShellWithCorrection.
type Collaborators struct {
	Rate      RateModel
	Nuclear   ConfigurationSampler
	Exclusion ExclusionCheck
}

// Generator selects quasi-elastic-like kinematics by rejection sampling.
//
// A Generator owns its random source and is used by one goroutine at a
// time. Generators running in parallel share a MaxRateCache.
type Generator struct {
	cfg     Config
	deps    Collaborators
	cache   *MaxRateCache
	rng     Uniform
	search  *MaximumSearch
	eval    evaluator
	fix     corrector
	metrics *Metrics
}

// NewGenerator validates cfg and the collaborators. Every returned error is
// fatal for the run.
func NewGenerator(cfg Config, deps Collaborators, cache *MaxRateCache, rng Uniform, m *Metrics) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Rate == nil:
		return nil, fmt.Errorf("%w: rate model", ErrMissingCollaborator)
	case deps.Nuclear == nil:
		return nil, fmt.Errorf("%w: nuclear model", ErrMissingCollaborator)
	case deps.Exclusion == nil && cfg.BindingMode == BindingOnShellWithCorrection:
		return nil, fmt.Errorf("%w: exclusion check required by %v", ErrMissingCollaborator, cfg.BindingMode)
	case cache == nil:
		return nil, fmt.Errorf("%w: max rate cache", ErrMissingCollaborator)
	case rng == nil:
		return nil, fmt.Errorf("%w: random source", ErrMissingCollaborator)
	}

	return &Generator{
		cfg:     cfg,
		deps:    deps,
		cache:   cache,
		rng:     rng,
		search:  NewMaximumSearch(cfg, deps.Rate, deps.Nuclear, rng, m),
		eval:    evaluator{model: deps.Rate, minAngleEMDeg: cfg.MinAngleEMDeg},
		fix:     corrector{exclusion: deps.Exclusion, minAngleEMDeg: cfg.MinAngleEMDeg},
		metrics: m,
	}, nil
}

// SetLayerObserver installs fn as the maximum search layer callback.
func (g *Generator) SetLayerObserver(fn func(layer int, best float64)) {
	g.search.OnLayer = fn
}

// Generate selects the kinematics of one event for in.
//
// A *KineGenError (matching ErrKineGen) reports that the event must be
// abandoned, either because no physical phase space exists or because the
// iteration budget ran out. Generation may continue with the next event.
func (g *Generator) Generate(in *Interaction) (*AcceptedKinematics, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil interaction", ErrInvalidInteraction)
	}
	fp := in.Fingerprint()

	var bound float64
	if !g.cfg.UniformOverPhaseSpace {
		bound = g.cache.Get(in, g.search)
		if bound <= 0 {
			g.metrics.IncrementEvent("no_phase_space")
			diagf("no phase space for %s at E=%g", fp, in.ProbeEnergy)
			return nil, &KineGenError{Reason: ReasonNoPhaseSpace, Fingerprint: fp}
		}
	}

	state := StateSampling
	var ak *AcceptedKinematics
	iter := 0
	for state == StateSampling {
		if iter >= g.cfg.MaxIterations {
			state = StateExhausted
			break
		}
		iter++
		ak, state = g.step(in, bound)
	}
	g.metrics.AddIterations(iter)

	if state == StateExhausted {
		g.metrics.IncrementEvent("exhausted")
		opsf("no kinematics accepted after %d iterations for %s at E=%g", iter, fp, in.ProbeEnergy)
		return nil, &KineGenError{Reason: ReasonExhausted, Fingerprint: fp, Iterations: iter}
	}

	ak.Iterations = iter
	g.metrics.IncrementEvent("accepted")
	tracef("accepted %s at E=%g after %d iterations: Q2=%g", fp, in.ProbeEnergy, iter, ak.Q2)
	return ak, nil
}

// step runs one iteration of the sampling loop and returns the next state.
func (g *Generator) step(in *Interaction, bound float64) (*AcceptedKinematics, State) {
	var sample BoundParticleSample
	if in.IsBound() {
		sample = g.deps.Nuclear.Draw(in, in.HitNucleonRadius, g.rng)
	}
	hit, eb := BindHitNucleon(in, sample, g.cfg.BindingMode)

	cmax := math.Min(1, CosTheta0Max(in, hit))
	if cmax <= -1 {
		g.metrics.IncrementDegenerate()
		tracef("degenerate draw: p=%v Eb=%g", sample.Momentum, sample.RemovalEnergy)
		return nil, StateSampling
	}

	pt := KinematicPoint{
		CosTheta: uniformIn(g.rng, -1, cmax),
		Phi:      uniformIn(g.rng, 0, 2*math.Pi),
	}
	rate, fs := g.eval.rate(in, sample, hit, pt)

	weight := 1.0
	if g.cfg.UniformOverPhaseSpace {
		weight = rate * (cmax + 1) * 2 * math.Pi
	} else {
		g.checkBound(in, rate, bound)
		t := bound * g.rng.Float64()
		tracef("rate=%g bound=%g t=%g", rate, bound, t)
		if !(t < rate) {
			return nil, StateSampling
		}
	}

	corrected, skip := false, false
	if in.IsBound() && g.cfg.BindingMode == BindingOnShellWithCorrection {
		c, reason := g.fix.correct(in, sample, pt, fs)
		if reason != "" {
			g.metrics.IncrementCorrectorRejection(reason)
			tracef("correction rejected draw: %s", reason)
			return nil, StateSampling
		}
		fs, eb = c.final, c.removalEnergy
		corrected, skip = true, c.skipExclusion
	}

	ak := g.finish(in, fs, eb, pt)
	ak.Rate = rate
	ak.Weight = weight
	ak.Corrected = corrected
	ak.SkipExclusionCheck = skip
	return ak, StateAccepted
}

// checkBound reports a rate above the rejection bound. The draw is still
// honoured. An excess beyond MaxRateDiffTolerance drops the cache entry so
// the next event re-estimates the maximum.
func (g *Generator) checkBound(in *Interaction, rate, bound float64) {
	if rate <= bound {
		return
	}
	g.metrics.IncrementBoundViolation()
	excess := (rate - bound) / bound
	opsf("warning: rate %g exceeds max rate bound %g by %.3g%% for %s at E=%g",
		rate, bound, 100*excess, in.Fingerprint(), in.ProbeEnergy)
	if excess > g.cfg.MaxRateDiffTolerance {
		g.cache.Invalidate(in.Fingerprint())
	}
}

// finish derives the selected kinematic variables from a solved final state.
func (g *Generator) finish(in *Interaction, fs FinalState, eb float64, pt KinematicPoint) *AcceptedKinematics {
	q := subP4(fs.Probe, fs.Lepton)
	w := math.Sqrt(math.Max(0, fs.Recoil.M2()))
	ev := probeEnergyInRest(&fs.Probe, &fs.HitNucleon)
	x, y := WQ2toXY(ev, in.HitNucleonMass, w, fs.Q2)

	return &AcceptedKinematics{
		Lepton:        fs.Lepton,
		Recoil:        fs.Recoil,
		HitNucleon:    fs.HitNucleon,
		Transfer:      q,
		RemovalEnergy: eb,
		Q2:            fs.Q2,
		W:             w,
		X:             x,
		Y:             y,
		Omega:         q.E(),
		Q3:            q.P(),
		CosTheta:      pt.CosTheta,
		Phi:           pt.Phi,
	}
}

package kine

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/interp"
)

// Estimator computes a raw maximum rate for an interaction.
// *MaximumSearch satisfies it.
type Estimator interface {
	Estimate(in *Interaction, numSamples int) float64
}

// CacheKnot is one stored maximum: the raw estimate for a fingerprint at a
// probe energy, together with the safety factor in force when it was made.
type CacheKnot struct {
	Fingerprint  string
	Energy       float64
	MaxRate      float64
	SafetyFactor float64
}

// cacheEntry holds the knots of one fingerprint, sorted by energy.
type cacheEntry struct {
	energies []float64
	maxima   []float64
	spline   *interp.PiecewiseLinear
}

// lookup returns the raw maximum at energy if the entry covers it: either
// an exact knot, or any energy inside the knot range once the entry has
// enough knots to interpolate.
func (e *cacheEntry) lookup(energy float64) (float64, bool) {
	i := sort.SearchFloat64s(e.energies, energy)
	if i < len(e.energies) && e.energies[i] == energy {
		return e.maxima[i], true
	}
	if e.spline == nil || len(e.energies) == 0 {
		return 0, false
	}
	if energy < e.energies[0] || energy > e.energies[len(e.energies)-1] {
		return 0, false
	}
	return e.spline.Predict(energy), true
}

// insert adds a knot. A repeated energy keeps the larger maximum.
func (e *cacheEntry) insert(energy, maxRate float64, splineMin int) {
	i := sort.SearchFloat64s(e.energies, energy)
	if i < len(e.energies) && e.energies[i] == energy {
		e.maxima[i] = math.Max(e.maxima[i], maxRate)
	} else {
		e.energies = append(e.energies, 0)
		e.maxima = append(e.maxima, 0)
		copy(e.energies[i+1:], e.energies[i:])
		copy(e.maxima[i+1:], e.maxima[i:])
		e.energies[i] = energy
		e.maxima[i] = maxRate
	}

	e.spline = nil
	if len(e.energies) >= splineMin {
		pl := &interp.PiecewiseLinear{}
		if err := pl.Fit(e.energies, e.maxima); err != nil {
			opsf("max rate spline fit failed with %d knots: %v", len(e.energies), err)
			return
		}
		e.spline = pl
	}
}

// MaxRateCache remembers estimated maxima per interaction fingerprint and
// probe energy. It is shared by all generators of a run and is safe for
// concurrent use. Concurrent misses on the same key are collapsed into a
// single estimate.
type MaxRateCache struct {
	mu          sync.RWMutex
	entries     map[string]*cacheEntry
	invalidated map[string]struct{}

	group   singleflight.Group
	cfg     Config
	metrics *Metrics
}

// NewMaxRateCache creates an empty cache using the safety factor, minimum
// energy and spline settings of cfg.
func NewMaxRateCache(cfg Config, m *Metrics) *MaxRateCache {
	return &MaxRateCache{
		entries:     make(map[string]*cacheEntry),
		invalidated: make(map[string]struct{}),
		cfg:         cfg,
		metrics:     m,
	}
}

// Get returns the rejection bound for in: the raw maximum times the safety
// factor. Below CacheMinEnergy the maximum is always estimated fresh and
// not stored. A result of 0 means no physical phase space; zero maxima are
// never stored, so the next lookup estimates again.
func (c *MaxRateCache) Get(in *Interaction, est Estimator) float64 {
	if in.ProbeEnergy < c.cfg.CacheMinEnergy {
		c.metrics.IncrementCacheLookup("bypass")
		return c.scale(est.Estimate(in, c.cfg.NucleonThrows))
	}

	fp := in.Fingerprint()
	if raw, ok := c.lookup(fp, in.ProbeEnergy); ok {
		c.metrics.IncrementCacheLookup("hit")
		return c.scale(raw)
	}
	c.metrics.IncrementCacheLookup("miss")

	key := fp + "@" + strconv.FormatFloat(in.ProbeEnergy, 'g', -1, 64)
	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		if raw, ok := c.lookup(fp, in.ProbeEnergy); ok {
			return raw, nil
		}
		raw := est.Estimate(in, c.cfg.NucleonThrows)
		if raw > 0 {
			c.Put(CacheKnot{
				Fingerprint:  fp,
				Energy:       in.ProbeEnergy,
				MaxRate:      raw,
				SafetyFactor: c.cfg.SafetyFactor,
			})
		}
		return raw, nil
	})
	return c.scale(v.(float64))
}

func (c *MaxRateCache) scale(raw float64) float64 {
	if !(raw > 0) {
		return 0
	}
	return raw * c.cfg.SafetyFactor
}

func (c *MaxRateCache) lookup(fp string, energy float64) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[fp]
	if !ok {
		return 0, false
	}
	raw, ok := e.lookup(energy)
	if !ok || !(raw > 0) {
		return 0, false
	}
	return raw, true
}

// Put stores a knot. Knots with a non-positive maximum are ignored.
func (c *MaxRateCache) Put(k CacheKnot) {
	if !(k.MaxRate > 0) || math.IsInf(k.MaxRate, 0) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k.Fingerprint]
	if !ok {
		e = &cacheEntry{}
		c.entries[k.Fingerprint] = e
	}
	e.insert(k.Energy, k.MaxRate, c.cfg.CacheSplineMinPoints)
	diagf("cached max rate %g for %s at E=%g (%d knots)", k.MaxRate, k.Fingerprint, k.Energy, len(e.energies))
}

// Invalidate drops every knot stored for fingerprint.
func (c *MaxRateCache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[fingerprint]; ok {
		delete(c.entries, fingerprint)
		c.invalidated[fingerprint] = struct{}{}
		c.metrics.IncrementCacheLookup("invalidated")
		opsf("invalidated max rate cache entry %s", fingerprint)
	}
}

// Invalidated returns the fingerprints dropped by Invalidate since the
// cache was created, sorted. Persisted copies of their knots are stale.
func (c *MaxRateCache) Invalidated() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.invalidated))
	for fp := range c.invalidated {
		out = append(out, fp)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of stored knots.
func (c *MaxRateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.entries {
		n += len(e.energies)
	}
	return n
}

// Snapshot returns a copy of every stored knot, ordered by fingerprint and
// then energy.
func (c *MaxRateCache) Snapshot() []CacheKnot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fps := make([]string, 0, len(c.entries))
	for fp := range c.entries {
		fps = append(fps, fp)
	}
	sort.Strings(fps)

	var out []CacheKnot
	for _, fp := range fps {
		e := c.entries[fp]
		for i := range e.energies {
			out = append(out, CacheKnot{
				Fingerprint:  fp,
				Energy:       e.energies[i],
				MaxRate:      e.maxima[i],
				SafetyFactor: c.cfg.SafetyFactor,
			})
		}
	}
	return out
}

// Restore loads previously saved knots. Knots saved under a different
// safety factor are still usable because only raw maxima are stored.
func (c *MaxRateCache) Restore(knots []CacheKnot) error {
	for _, k := range knots {
		if k.Fingerprint == "" {
			return fmt.Errorf("restoring max rate cache: knot at E=%g has no fingerprint", k.Energy)
		}
		c.Put(k)
	}
	return nil
}

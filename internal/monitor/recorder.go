// Package monitor records accepted kinematics and maximum search
// convergence during a run and renders them as diagnostic plots.
package monitor

import (
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/kinegen/internal/kine"
)

// Event outcomes tracked by the Recorder.
const (
	OutcomeAccepted  = "accepted"
	OutcomeExhausted = "exhausted"
	OutcomeBlocked   = "blocked"
)

// Recorder accumulates per-event samples. It is safe for concurrent use by
// all workers of a run.
type Recorder struct {
	mu sync.Mutex

	q2         []float64
	w          []float64
	cosTheta   []float64
	omega      []float64
	iterations []float64
	weights    []float64

	outcomes map[string]int

	// searches holds the best rate after each layer, one slice per
	// maximum search.
	searches [][]float64
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{outcomes: make(map[string]int)}
}

// Observe records an accepted event.
func (r *Recorder) Observe(ak *kine.AcceptedKinematics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.q2 = append(r.q2, ak.Q2)
	r.w = append(r.w, ak.W)
	r.cosTheta = append(r.cosTheta, ak.CosTheta)
	r.omega = append(r.omega, ak.Omega)
	r.iterations = append(r.iterations, float64(ak.Iterations))
	r.weights = append(r.weights, ak.Weight)
}

// ObserveOutcome counts an event outcome.
func (r *Recorder) ObserveOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

// LayerObserver returns a callback for kine.Generator.SetLayerObserver.
// Each worker needs its own callback: layer 0 starts a new search trace.
func (r *Recorder) LayerObserver() func(layer int, best float64) {
	current := -1
	return func(layer int, best float64) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if layer == 0 || current < 0 {
			r.searches = append(r.searches, nil)
			current = len(r.searches) - 1
		}
		r.searches[current] = append(r.searches[current], best)
	}
}

// Summary is the run-level digest logged at the end of a run.
type Summary struct {
	Accepted  int `json:"accepted"`
	Exhausted int `json:"exhausted"`
	Blocked   int `json:"blocked"`

	MeanIterations float64 `json:"mean_iterations"`
	StdIterations  float64 `json:"std_iterations"`
	MeanQ2         float64 `json:"mean_q2"`
	Searches       int     `json:"searches"`
}

// Summary computes the run digest from the recorded samples.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{
		Accepted:  r.outcomes[OutcomeAccepted],
		Exhausted: r.outcomes[OutcomeExhausted],
		Blocked:   r.outcomes[OutcomeBlocked],
		Searches:  len(r.searches),
	}
	if len(r.iterations) > 0 {
		s.MeanIterations, s.StdIterations = stat.MeanStdDev(r.iterations, nil)
		s.MeanQ2 = stat.Mean(r.q2, nil)
	}
	if len(r.iterations) == 1 {
		s.StdIterations = 0
	}
	return s
}

// snapshot copies the recorded data for rendering outside the lock.
func (r *Recorder) snapshot() recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := recorded{
		q2:       append([]float64(nil), r.q2...),
		w:        append([]float64(nil), r.w...),
		cosTheta: append([]float64(nil), r.cosTheta...),
		omega:    append([]float64(nil), r.omega...),
		outcomes: make(map[string]int, len(r.outcomes)),
	}
	for k, v := range r.outcomes {
		out.outcomes[k] = v
	}
	for _, s := range r.searches {
		out.searches = append(out.searches, append([]float64(nil), s...))
	}
	return out
}

type recorded struct {
	q2, w, cosTheta, omega []float64
	outcomes               map[string]int
	searches               [][]float64
}

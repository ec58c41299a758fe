package monitor

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/kinegen/internal/kine"
)

func sampleRecorder() *Recorder {
	r := NewRecorder()
	for i := 1; i <= 20; i++ {
		r.Observe(&kine.AcceptedKinematics{
			Q2:         0.05 * float64(i),
			W:          0.9 + 0.002*float64(i),
			CosTheta:   -1 + 0.1*float64(i),
			Omega:      0.02 * float64(i),
			Iterations: i,
			Weight:     1,
		})
		r.ObserveOutcome(OutcomeAccepted)
	}
	r.ObserveOutcome(OutcomeExhausted)
	r.ObserveOutcome(OutcomeBlocked)
	r.ObserveOutcome(OutcomeBlocked)
	return r
}

func TestRecorder_Summary(t *testing.T) {
	s := sampleRecorder().Summary()
	assert.Equal(t, 20, s.Accepted)
	assert.Equal(t, 1, s.Exhausted)
	assert.Equal(t, 2, s.Blocked)
	assert.InDelta(t, 10.5, s.MeanIterations, 1e-12)
	assert.InDelta(t, 5.916, s.StdIterations, 1e-3)
	assert.InDelta(t, 0.525, s.MeanQ2, 1e-12)
}

func TestRecorder_SummarySingleEvent(t *testing.T) {
	r := NewRecorder()
	r.Observe(&kine.AcceptedKinematics{Iterations: 4})
	s := r.Summary()
	assert.Equal(t, 4.0, s.MeanIterations)
	assert.Zero(t, s.StdIterations)
}

func TestRecorder_LayerObserverPerWorker(t *testing.T) {
	r := NewRecorder()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obs := r.LayerObserver()
			for search := 0; search < 3; search++ {
				for layer := 0; layer < 5; layer++ {
					obs(layer, float64(layer))
				}
			}
		}()
	}
	wg.Wait()

	data := r.snapshot()
	require.Len(t, data.searches, 12)
	for _, s := range data.searches {
		assert.Equal(t, []float64{0, 1, 2, 3, 4}, s)
	}
	assert.Equal(t, 12, r.Summary().Searches)
}

func TestWritePlots(t *testing.T) {
	r := sampleRecorder()
	obs := r.LayerObserver()
	for layer, best := range []float64{0.4, 0.9, 0.97} {
		obs(layer, best)
	}

	dir := filepath.Join(t.TempDir(), "plots")
	files, err := r.WritePlots(dir)
	require.NoError(t, err)
	assert.Len(t, files, 5)
	for _, f := range files {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestWritePlots_Empty(t *testing.T) {
	files, err := NewRecorder().WritePlots(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleRecorder().WriteReport(&buf, "numu CC on Ar40"))
	html := buf.String()
	assert.Contains(t, html, "Event outcomes")
	assert.Contains(t, html, "numu CC on Ar40")
}

func TestBinValues(t *testing.T) {
	labels, counts := binValues([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 10}, 5)
	assert.Len(t, labels, 5)
	assert.Equal(t, []int{2, 2, 2, 2, 2}, counts)

	labels, counts = binValues([]float64{3, 3, 3}, 4)
	assert.Equal(t, []string{"3.000"}, labels)
	assert.Equal(t, []int{3}, counts)

	labels, counts = binValues(nil, 4)
	assert.Empty(t, labels)
	assert.Empty(t, counts)
}

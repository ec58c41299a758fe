package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/kinegen/internal/cachestore"
	"github.com/banshee-data/kinegen/internal/httputil"
	"github.com/banshee-data/kinegen/internal/kine"
	"github.com/banshee-data/kinegen/internal/monitor"
	"github.com/banshee-data/kinegen/internal/monitoring"
	"github.com/banshee-data/kinegen/internal/nuclear"
	"github.com/banshee-data/kinegen/internal/xsec"
)

// options is the resolved command line of one run.
type options struct {
	Config      kine.Config
	Interaction *kine.Interaction
	Events      int
	Workers     int
	Seed        uint64

	CacheDB     string
	PlotsDir    string
	MetricsAddr string

	// Registerer receives the kine metrics. A fresh registry is used when nil.
	Registerer prometheus.Registerer
}

// result is one finished event on its way to the CSV writer.
type result struct {
	event   int
	worker  int
	outcome string
	iters   int
	ak      *kine.AcceptedKinematics
}

var csvHeader = []string{
	"run_id", "event", "worker", "outcome", "iterations",
	"q2", "w", "x", "y", "omega", "q3", "cos_theta", "phi",
	"lepton_px", "lepton_py", "lepton_pz", "lepton_e",
	"recoil_px", "recoil_py", "recoil_pz", "recoil_e",
	"removal_energy", "rate", "weight", "corrected",
}

// run generates opts.Events events on opts.Workers goroutines sharing one
// MaxRateCache and writes them to out as CSV.
func run(ctx context.Context, opts options, out io.Writer) (monitor.Summary, error) {
	if opts.Events < 0 {
		return monitor.Summary{}, fmt.Errorf("event count must be >= 0, got %d", opts.Events)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	in := opts.Interaction
	if in == nil {
		return monitor.Summary{}, fmt.Errorf("%w: no interaction configured", kine.ErrInvalidInteraction)
	}
	rate, err := xsec.NewDipoleModel(xsec.DefaultAxialMass)
	if err != nil {
		return monitor.Summary{}, err
	}
	deps := kine.Collaborators{Rate: rate, Nuclear: nuclear.FreeNucleon{}, Exclusion: nuclear.PauliBlocker{}}
	if in.IsBound() {
		deps.Nuclear = nuclear.FermiGas{}
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics := kine.NewMetrics(reg)
	rec := monitor.NewRecorder()
	if gatherer, ok := reg.(prometheus.Gatherer); ok && opts.MetricsAddr != "" {
		srv := &http.Server{Addr: opts.MetricsAddr, Handler: statusMux(gatherer, rec)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				monitoring.Logf("metrics server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	cache := kine.NewMaxRateCache(opts.Config, metrics)
	var store *cachestore.Store
	if opts.CacheDB != "" {
		if store, err = cachestore.Open(opts.CacheDB); err != nil {
			return monitor.Summary{}, err
		}
		defer store.Close()
		knots, err := store.Load()
		if err != nil {
			return monitor.Summary{}, err
		}
		if err := cache.Restore(knots); err != nil {
			return monitor.Summary{}, err
		}
		monitoring.Logf("restored %d max rate knots from %s", len(knots), opts.CacheDB)
	}

	runID := uuid.New().String()

	gens := make([]*kine.Generator, opts.Workers)
	for w := range gens {
		if gens[w], err = kine.NewGenerator(opts.Config, deps, cache, kine.NewRand(opts.Seed+uint64(w)), metrics); err != nil {
			return monitor.Summary{}, err
		}
		gens[w].SetLayerObserver(rec.LayerObserver())
	}

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan int)
	results := make(chan result, opts.Workers)

	g.Go(func() error {
		defer close(jobs)
		for i := 0; i < opts.Events; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	for w, gen := range gens {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			return generateEvents(ctx, w, gen, in, deps.Exclusion, rec, jobs, results)
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	g.Go(func() error {
		return writeResults(out, runID, results)
	})

	if err := g.Wait(); err != nil {
		return monitor.Summary{}, err
	}

	if store != nil {
		for _, fp := range cache.Invalidated() {
			if _, err := store.Invalidate(fp); err != nil {
				return monitor.Summary{}, err
			}
		}
		if _, err := store.Save(runID, cache.Snapshot()); err != nil {
			return monitor.Summary{}, err
		}
	}

	if opts.PlotsDir != "" {
		if err := writeDiagnostics(rec, opts.PlotsDir, in); err != nil {
			return monitor.Summary{}, err
		}
	}
	return rec.Summary(), nil
}

// generateEvents is one worker: it pulls event numbers from jobs until the
// channel closes. Per-event failures are recorded; anything else stops the run.
func generateEvents(ctx context.Context, worker int, gen *kine.Generator, in *kine.Interaction,
	excl kine.ExclusionCheck, rec *monitor.Recorder, jobs <-chan int, results chan<- result) error {
	for ev := range jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		res := result{event: ev, worker: worker}
		ak, err := gen.Generate(in)
		var kerr *kine.KineGenError
		switch {
		case errors.As(err, &kerr):
			res.outcome = monitor.OutcomeExhausted
			res.iters = kerr.Iterations
		case err != nil:
			return err
		case excl.IsExcluded(in, ak.Recoil.P(), in.HitNucleonRadius, ak.SkipExclusionCheck):
			res.outcome = monitor.OutcomeBlocked
			res.iters = ak.Iterations
			res.ak = ak
		default:
			res.outcome = monitor.OutcomeAccepted
			res.iters = ak.Iterations
			res.ak = ak
			rec.Observe(ak)
		}
		rec.ObserveOutcome(res.outcome)

		select {
		case results <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// writeResults drains results into a CSV stream. Rows without kinematics
// carry only the outcome and iteration count.
func writeResults(out io.Writer, runID string, results <-chan result) error {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for r := range results {
		if err := w.Write(formatRow(runID, r)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatRow(runID string, r result) []string {
	row := make([]string, 0, len(csvHeader))
	row = append(row, runID, strconv.Itoa(r.event), strconv.Itoa(r.worker), r.outcome, strconv.Itoa(r.iters))
	if r.ak == nil {
		for len(row) < len(csvHeader) {
			row = append(row, "")
		}
		return row
	}
	ak := r.ak
	for _, v := range []float64{
		ak.Q2, ak.W, ak.X, ak.Y, ak.Omega, ak.Q3, ak.CosTheta, ak.Phi,
		ak.Lepton.Px(), ak.Lepton.Py(), ak.Lepton.Pz(), ak.Lepton.E(),
		ak.Recoil.Px(), ak.Recoil.Py(), ak.Recoil.Pz(), ak.Recoil.E(),
		ak.RemovalEnergy, ak.Rate, ak.Weight,
	} {
		row = append(row, strconv.FormatFloat(v, 'g', 8, 64))
	}
	return append(row, strconv.FormatBool(ak.Corrected))
}

// statusMux serves Prometheus metrics and the live run summary.
func statusMux(g prometheus.Gatherer, rec *monitor.Recorder) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, rec.Summary())
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

func writeDiagnostics(rec *monitor.Recorder, dir string, in *kine.Interaction) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files, err := rec.WritePlots(dir)
	if err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "report.html"))
	if err != nil {
		return err
	}
	defer f.Close()
	title := fmt.Sprintf("%s at E=%g GeV", in.Fingerprint(), in.ProbeEnergy)
	if err := rec.WriteReport(f, title); err != nil {
		return err
	}
	monitoring.Logf("wrote %d plots and report.html to %s", len(files), dir)
	return nil
}

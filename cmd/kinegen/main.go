// Command kinegen generates quasi-elastic-like event kinematics for a fixed
// probe, target and process, writing one CSV row per event.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/banshee-data/kinegen/internal/config"
	"github.com/banshee-data/kinegen/internal/fsutil"
	"github.com/banshee-data/kinegen/internal/kine"
	"github.com/banshee-data/kinegen/internal/monitor"
	"github.com/banshee-data/kinegen/internal/monitoring"
	"github.com/banshee-data/kinegen/internal/pdg"
	"github.com/banshee-data/kinegen/internal/version"
)

func main() {
	configPath := flag.String("config", "", "Generator config JSON (defaults built in when empty)")
	nevts := flag.Int("nevts", 1000, "Number of events to generate")
	nprocs := flag.Int("nprocs", runtime.NumCPU(), "Number of parallel workers")
	seed := flag.Uint64("seed", 1, "Base random seed; worker i uses seed+i")
	energy := flag.Float64("energy", 1.0, "Probe energy in GeV")
	probe := flag.Int("probe", pdg.NuMu, "Probe PDG code")
	target := flag.Int("target", pdg.IonCode(12, 6), "Target PDG code")
	hit := flag.Int("hit", pdg.Neutron, "Hit nucleon PDG code")
	process := flag.String("process", "CC", "Process: CC, NC or EM")
	radius := flag.Float64("radius", 0, "Hit nucleon position in the nucleus (fm)")
	output := flag.String("o", "", "Output CSV filename (defaults to kinegen-<fingerprint>-<timestamp>.csv)")
	cacheDB := flag.String("cache-db", "", "SQLite file holding max rate cache knots between runs")
	plotsDir := flag.String("plots", "", "Directory for diagnostic plots and report.html")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus /metrics on this address (e.g. :9090)")
	verbose := flag.Bool("verbose", false, "Enable the kine diagnostic log stream")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	var diag io.Writer
	if *verbose {
		diag = os.Stderr
	}
	kine.SetLogWriters(os.Stderr, diag, nil)

	cfg := config.DefaultGeneratorConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("loading config: %v", err)
		}
	}
	kcfg, err := cfg.KineConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	proc, err := kine.ParseProcessType(*process)
	if err != nil {
		log.Fatalf("process: %v", err)
	}
	in, err := kine.NewInteraction(*probe, *energy, *target, *hit, proc)
	if err != nil {
		log.Fatalf("interaction: %v", err)
	}
	if *radius < 0 {
		log.Fatalf("radius must be >= 0, got %g", *radius)
	}
	in.HitNucleonRadius = *radius

	outPath := *output
	if outPath == "" {
		outPath = defaultOutputPath(in, time.Now())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitoring.Logf("%s starting: %d events of %s at E=%g on %d workers", version.String(), *nevts, in.Fingerprint(), *energy, *nprocs)
	start := time.Now()
	sum, err := runToFile(ctx, options{
		Config:      kcfg,
		Interaction: in,
		Events:      *nevts,
		Workers:     *nprocs,
		Seed:        *seed,
		CacheDB:     *cacheDB,
		PlotsDir:    *plotsDir,
		MetricsAddr: *metricsAddr,
	}, outPath)
	if err != nil {
		log.Fatalf("kinegen: %v", err)
	}
	monitoring.LogDuration("generation", start)
	monitoring.Logf("wrote %s: accepted=%d exhausted=%d blocked=%d iterations/event=%.2f±%.2f mean Q2=%.4f searches=%d",
		outPath, sum.Accepted, sum.Exhausted, sum.Blocked, sum.MeanIterations, sum.StdIterations, sum.MeanQ2, sum.Searches)
}

// defaultOutputPath names the CSV after the interaction and start time.
func defaultOutputPath(in *kine.Interaction, now time.Time) string {
	return fmt.Sprintf("kinegen-%s-%s.csv", fsutil.SanitizeFilename(in.Fingerprint()), now.Format("20060102-150405"))
}

// runToFile runs opts into a new CSV file at path. A failed close is
// reported when the run itself succeeded.
func runToFile(ctx context.Context, opts options, path string) (monitor.Summary, error) {
	f, err := os.Create(path)
	if err != nil {
		return monitor.Summary{}, fmt.Errorf("creating output: %w", err)
	}
	sum, err := run(ctx, opts, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing %s: %w", path, cerr)
	}
	return sum, err
}

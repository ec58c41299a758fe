package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// maxSearchTraces caps the convergence lines drawn in one plot.
const maxSearchTraces = 24

// WritePlots writes PNG histograms of the accepted kinematics and a plot of
// maximum search convergence into dir, returning the files written.
// Histograms with no samples or no spread (W is constant for
// quasi-elastic events) are skipped.
func (r *Recorder) WritePlots(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}
	data := r.snapshot()

	hists := []struct {
		file, title, xlabel string
		values              []float64
	}{
		{"q2.png", "Accepted Q²", "Q² (GeV²)", data.q2},
		{"w.png", "Hadronic invariant mass", "W (GeV)", data.w},
		{"costheta.png", "COM lepton angle", "cos θ₀", data.cosTheta},
		{"omega.png", "Energy transfer", "ω (GeV)", data.omega},
	}

	var written []string
	for _, h := range hists {
		if len(h.values) == 0 || floats.Max(h.values)-floats.Min(h.values) < 1e-9 {
			continue
		}
		path := filepath.Join(dir, h.file)
		if err := saveHistogram(path, h.title, h.xlabel, h.values); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if len(data.searches) > 0 {
		path := filepath.Join(dir, "search_convergence.png")
		if err := saveConvergence(path, data.searches); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func saveHistogram(path, title, xlabel string, values []float64) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "Events"

	bins := 40
	if len(values) < bins {
		bins = len(values)
	}
	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return fmt.Errorf("failed to build histogram %s: %w", filepath.Base(path), err)
	}
	h.FillColor = color.RGBA{R: 49, G: 104, B: 142, A: 255}
	p.Add(h)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func saveConvergence(path string, searches [][]float64) error {
	p := plot.New()
	p.Title.Text = "Max rate search convergence"
	p.X.Label.Text = "Layer"
	p.Y.Label.Text = "Best rate"

	if len(searches) > maxSearchTraces {
		searches = searches[:maxSearchTraces]
	}
	colors := generateColors(len(searches))
	for i, s := range searches {
		pts := make(plotter.XYs, len(s))
		for layer, best := range s {
			pts[layer] = plotter.XY{X: float64(layer), Y: best}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to build convergence line: %w", err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
	}

	if err := p.Save(8*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// generateColors creates a palette of n distinct colors.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := range colors {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

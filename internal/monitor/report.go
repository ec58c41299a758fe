package monitor

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
)

// reportBins is the number of Q² bins in the HTML report.
const reportBins = 30

// WriteReport renders an HTML page with the event outcomes and the
// accepted Q² distribution.
func (r *Recorder) WriteReport(w io.Writer, title string) error {
	data := r.snapshot()

	page := components.NewPage()
	page.AddCharts(outcomeChart(title, data.outcomes), q2Chart(data.q2))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}

func outcomeChart(title string, outcomes map[string]int) *charts.Bar {
	names := make([]string, 0, len(outcomes))
	for k := range outcomes {
		names = append(names, k)
	}
	sort.Strings(names)

	y := make([]opts.BarData, len(names))
	for i, n := range names {
		y[i] = opts.BarData{Value: outcomes[n]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Event outcomes", Subtitle: title}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries("events", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func q2Chart(q2 []float64) *charts.Bar {
	labels, counts := binValues(q2, reportBins)
	y := make([]opts.BarData, len(counts))
	for i, c := range counts {
		y[i] = opts.BarData{Value: c}
	}

	subtitle := "no accepted events"
	if len(q2) > 0 {
		mean, std := stat.MeanStdDev(q2, nil)
		subtitle = fmt.Sprintf("n=%d mean=%.3f std=%.3f GeV²", len(q2), mean, std)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Accepted Q²", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Q² (GeV²)", NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(labels).AddSeries("Q²", y)
	return bar
}

// binValues histograms values into n equal bins between their extremes and
// returns bin centre labels with counts.
func binValues(values []float64, n int) ([]string, []int) {
	if len(values) == 0 || n <= 0 {
		return []string{}, []int{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if hi == lo {
		return []string{fmt.Sprintf("%.3f", lo)}, []int{len(values)}
	}

	dividers := make([]float64, n+1)
	step := (hi - lo) / float64(n)
	for i := range dividers {
		dividers[i] = lo + step*float64(i)
	}
	// Histogram needs the top divider strictly above the maximum.
	dividers[n] = hi + step*1e-9

	weights := stat.Histogram(nil, dividers, sorted, nil)
	labels := make([]string, n)
	counts := make([]int, n)
	for i := range counts {
		labels[i] = fmt.Sprintf("%.3f", lo+step*(float64(i)+0.5))
		counts[i] = int(weights[i])
	}
	return labels, counts
}

package charts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vicanso/go-charts/v2"

	"fundfolio/internal/api"
)

// Chart kinds.
const (
	KindWeights = "weights"
	KindValue   = "value"
	KindUsage   = "usage"

	// drawn upstream and fetched as PNG
	KindFrontier = "frontier"
	KindTree     = "tree"
)

// drawer turns prepared series into PNG bytes.
type drawer interface {
	bar(title string, labels []string, values []float64) ([]byte, error)
	line(title, subtitle string, labels []string, values []float64, yMin, yMax float64) ([]byte, error)
	pie(title string, labels []string, values []float64) ([]byte, error)
}

// Renderer draws charts and installs them into a Registry.
type Renderer struct {
	reg   *Registry
	cache *imageCache
	draw  drawer
}

func NewRenderer(reg *Registry) *Renderer {
	return &Renderer{reg: reg, cache: newImageCache(), draw: goCharts{}}
}

// Registry returns the registry charts are installed into.
func (r *Renderer) Registry() *Registry { return r.reg }

// install wraps img in a fresh chart and replaces whatever canvas held.
func (r *Renderer) install(canvas, kind string, img []byte) *Chart {
	c := newChart(kind, img)
	r.reg.Replace(canvas, c)
	return c
}

// Adopt installs an image drawn elsewhere onto canvas.
func (r *Renderer) Adopt(canvas, kind string, img []byte) *Chart {
	return r.install(canvas, kind, img)
}

// RenderWeights draws one bar per fund code onto canvas.
func (r *Renderer) RenderWeights(canvas string, w api.Weights) (*Chart, error) {
	if len(w) == 0 {
		return nil, errors.New("no weights to chart")
	}
	labels := make([]string, len(w))
	values := make([]float64, len(w))
	for i, e := range w {
		labels[i] = e.Key
		values[i] = e.Value * 100
	}
	key := cacheKey(KindWeights, labels, values)
	img, ok := r.cache.get(key)
	if !ok {
		var err error
		img, err = r.draw.bar("Portfolio Weights (%)", labels, values)
		if err != nil {
			return nil, fmt.Errorf("failed to render weights chart: %w", err)
		}
		r.cache.set(key, img)
	}
	return r.install(canvas, KindWeights, img), nil
}

// RenderValue draws the portfolio value line onto canvas. The series is
// cleaned and thinned to every SampleStep-th sample first.
func (r *Renderer) RenderValue(canvas string, series api.ValueSeries) (*Chart, *SeriesStats, error) {
	clean := filterValid(series)
	if len(clean) == 0 {
		return nil, nil, errors.New("no portfolio values to chart")
	}
	stats, err := CalculateStats(clean)
	subtitle := ""
	if err == nil {
		subtitle = stats.String()
	} else {
		stats = nil
	}

	sampled := Downsample(clean, SampleStep)
	labels := dateLabels(sampled)
	values := make([]float64, len(sampled))
	for i, s := range sampled {
		values[i] = s.Value
	}
	yMin, yMax := paddedRange(values)

	const title = "Portfolio Value"
	key := cacheKey(KindValue, title, subtitle, labels, values)
	img, ok := r.cache.get(key)
	if !ok {
		img, err = r.draw.line(title, subtitle, labels, values, yMin, yMax)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to render value chart: %w", err)
		}
		r.cache.set(key, img)
	}
	return r.install(canvas, KindValue, img), stats, nil
}

// dateLabels formats sample dates for the x axis; unparseable dates are kept verbatim.
func dateLabels(series api.ValueSeries) []string {
	layout := "Jan 02"
	if len(series) > 60 {
		layout = "Jan '06"
	}
	labels := make([]string, len(series))
	for i, s := range series {
		if t, ok := parseDate(s.Date); ok {
			labels[i] = t.Format(layout)
		} else {
			labels[i] = s.Date
		}
	}
	return labels
}

// paddedRange returns the y-axis bounds with 5% padding.
func paddedRange(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = hi * 0.05
	}
	if pad == 0 {
		pad = 1
	}
	lo -= pad
	if lo < 0 {
		lo = 0
	}
	return lo, hi + pad
}

// goCharts draws with vicanso/go-charts.
type goCharts struct{}

func (goCharts) bar(title string, labels []string, values []float64) ([]byte, error) {
	p, err := charts.BarRender(
		[][]float64{values},
		charts.PNGTypeOption(),
		charts.TitleTextOptionFunc(title),
		charts.XAxisDataOptionFunc(labels),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, err
	}
	return p.Bytes()
}

func (goCharts) line(title, subtitle string, labels []string, values []float64, yMin, yMax float64) ([]byte, error) {
	splitNum := 6
	if len(labels) <= 30 {
		splitNum = max(len(labels)/3, 3)
	}
	if subtitle != "" {
		title = strings.Join([]string{title, subtitle}, "\n")
	}
	p, err := charts.LineRender(
		[][]float64{values},
		charts.PNGTypeOption(),
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			SplitNumber: splitNum,
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, err
	}
	return p.Bytes()
}

func (goCharts) pie(title string, labels []string, values []float64) ([]byte, error) {
	p, err := charts.PieRender(
		values,
		charts.PNGTypeOption(),
		charts.TitleTextOptionFunc(title),
		charts.LegendOptionFunc(charts.LegendOption{
			Data: labels,
			Top:  charts.PositionTop,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(800),
		charts.HeightOptionFunc(600),
	)
	if err != nil {
		return nil, err
	}
	return p.Bytes()
}

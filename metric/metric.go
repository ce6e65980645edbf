// Package metric collects scalar and distribution measurements produced by the
// reconstruction pipeline and serializes them for inspection. Metrics are kept
// in named, insertion-ordered groups so that saved files and rendered reports
// are deterministic across runs.
package metric

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// PlotHint says how a metric is best visualized in a report.
type PlotHint string

const (
	// PlotBar is for single scalar values.
	PlotBar = PlotHint("bar")
	// PlotBox is for 1-D distributions.
	PlotBox = PlotHint("box")
)

// Summary holds the reduced statistics of a distribution metric. Non-finite
// samples are excluded before computing it.
type Summary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Metric is a named measurement, either a single scalar or a 1-D distribution.
type Metric struct {
	name   string
	scalar *float64
	data   []float64
}

// NewScalar returns a scalar metric.
func NewScalar(name string, value float64) *Metric {
	v := value
	return &Metric{name: name, scalar: &v}
}

// NewDistribution returns a distribution metric over the given samples. The
// samples are copied; NaN entries are kept in the full data but excluded from
// summary statistics.
func NewDistribution(name string, data []float64) *Metric {
	cp := make([]float64, len(data))
	copy(cp, data)
	return &Metric{name: name, data: cp}
}

// Name returns the metric's name.
func (m *Metric) Name() string { return m.name }

// IsScalar reports whether the metric is a single value rather than a
// distribution.
func (m *Metric) IsScalar() bool { return m.scalar != nil }

// Scalar returns the scalar value. It panics if the metric is a distribution.
func (m *Metric) Scalar() float64 {
	if m.scalar == nil {
		panic(errors.Errorf("metric %q is not a scalar", m.name))
	}
	return *m.scalar
}

// Data returns a copy of the distribution samples. It is empty for scalars.
func (m *Metric) Data() []float64 {
	cp := make([]float64, len(m.data))
	copy(cp, m.data)
	return cp
}

// Hint returns how this metric should be plotted.
func (m *Metric) Hint() PlotHint {
	if m.IsScalar() {
		return PlotBar
	}
	return PlotBox
}

// Summary computes the reduced statistics of a distribution metric. The second
// return is false when no finite samples exist (or for scalars).
func (m *Metric) Summary() (Summary, bool) {
	if m.IsScalar() {
		return Summary{}, false
	}
	finite := finiteSamples(m.data)
	if len(finite) == 0 {
		return Summary{}, false
	}
	sort.Float64s(finite)
	return Summary{
		Min:    finite[0],
		Max:    finite[len(finite)-1],
		Mean:   stat.Mean(finite, nil),
		Median: stat.Quantile(0.5, stat.Empirical, finite, nil),
	}, true
}

// quartiles returns (q1, median, q3) of the finite samples, for box plots.
func (m *Metric) quartiles() (float64, float64, float64, bool) {
	finite := finiteSamples(m.data)
	if len(finite) == 0 {
		return 0, 0, 0, false
	}
	sort.Float64s(finite)
	q1 := stat.Quantile(0.25, stat.Empirical, finite, nil)
	med := stat.Quantile(0.5, stat.Empirical, finite, nil)
	q3 := stat.Quantile(0.75, stat.Empirical, finite, nil)
	return q1, med, q3, true
}

func finiteSamples(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Group is a named, ordered collection of metrics produced by one pipeline
// stage. Adding a metric with a name already present replaces it in place.
type Group struct {
	name    string
	metrics []*Metric
}

// NewGroup returns a group with the given metrics, keeping their order.
func NewGroup(name string, metrics ...*Metric) *Group {
	g := &Group{name: name}
	for _, m := range metrics {
		g.Add(m)
	}
	return g
}

// Name returns the group's name.
func (g *Group) Name() string { return g.name }

// Add appends a metric, replacing any existing metric of the same name.
func (g *Group) Add(m *Metric) {
	for i, existing := range g.metrics {
		if existing.name == m.name {
			g.metrics[i] = m
			return
		}
	}
	g.metrics = append(g.metrics, m)
}

// Metrics returns the group's metrics in insertion order.
func (g *Group) Metrics() []*Metric {
	out := make([]*Metric, len(g.metrics))
	copy(out, g.metrics)
	return out
}

// Len returns the number of metrics in the group.
func (g *Group) Len() int { return len(g.metrics) }

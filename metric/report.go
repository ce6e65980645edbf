package metric

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// WriteReportHTML renders all groups into a single self-contained HTML page at
// the given path. Each group contributes one bar chart over its scalar metrics
// and one box plot per distribution metric. Chart IDs are derived from group
// and metric names so repeated renders produce identical documents.
func WriteReportHTML(path string, groups []*Group) (err error) {
	page := components.NewPage()
	page.PageTitle = "Reconstruction Metrics"

	for _, g := range groups {
		if bar := scalarBarChart(g); bar != nil {
			page.AddCharts(bar)
		}
		for _, m := range g.Metrics() {
			if m.IsScalar() {
				continue
			}
			if box := distributionBoxPlot(g.Name(), m); box != nil {
				page.AddCharts(box)
			}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create metrics report")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	if err := page.Render(f); err != nil {
		return errors.Wrap(err, "failed to render metrics report")
	}
	return nil
}

func scalarBarChart(g *Group) *charts.Bar {
	var names []string
	var values []opts.BarData
	for _, m := range g.Metrics() {
		if !m.IsScalar() {
			continue
		}
		names = append(names, m.Name())
		values = append(values, opts.BarData{Value: m.Scalar()})
	}
	if len(names) == 0 {
		return nil
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			ChartID: chartID(g.Name(), "scalars"),
			Width:   "900px",
			Height:  "500px",
		}),
		charts.WithTitleOpts(opts.Title{Title: g.Name(), Subtitle: "scalar metrics"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names).
		AddSeries(g.Name(), values,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func distributionBoxPlot(groupName string, m *Metric) *charts.BoxPlot {
	summary, ok := m.Summary()
	if !ok {
		return nil
	}
	q1, med, q3, _ := m.quartiles()

	box := charts.NewBoxPlot()
	box.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			ChartID: chartID(groupName, m.Name()),
			Width:   "900px",
			Height:  "500px",
		}),
		charts.WithTitleOpts(opts.Title{Title: m.Name(), Subtitle: groupName}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	box.SetXAxis([]string{m.Name()}).
		AddSeries(m.Name(), []opts.BoxPlotData{
			{Value: []interface{}{summary.Min, q1, med, q3, summary.Max}},
		})
	return box
}

func chartID(groupName, metricName string) string {
	return fmt.Sprintf("%s__%s", sanitizeID(groupName), sanitizeID(metricName))
}

// sanitizeID keeps chart element IDs valid for HTML and stable across runs.
func sanitizeID(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

package metric

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestScalarMetric(t *testing.T) {
	m := NewScalar("total_runtime_sec", 12.5)
	test.That(t, m.Name(), test.ShouldEqual, "total_runtime_sec")
	test.That(t, m.IsScalar(), test.ShouldBeTrue)
	test.That(t, m.Scalar(), test.ShouldEqual, 12.5)
	test.That(t, m.Hint(), test.ShouldEqual, PlotBar)

	_, ok := m.Summary()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestDistributionSummary(t *testing.T) {
	m := NewDistribution("rotation_errors_deg", []float64{3, 1, 2, 5, 4})
	test.That(t, m.IsScalar(), test.ShouldBeFalse)
	test.That(t, m.Hint(), test.ShouldEqual, PlotBox)

	summary, ok := m.Summary()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, summary.Min, test.ShouldEqual, 1)
	test.That(t, summary.Max, test.ShouldEqual, 5)
	test.That(t, summary.Mean, test.ShouldAlmostEqual, 3)
	test.That(t, summary.Median, test.ShouldAlmostEqual, 3)
}

func TestSummarySkipsNonFinite(t *testing.T) {
	m := NewDistribution("errors", []float64{math.NaN(), 2, math.Inf(1), 4, 6})
	summary, ok := m.Summary()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, summary.Min, test.ShouldEqual, 2)
	test.That(t, summary.Max, test.ShouldEqual, 6)
	test.That(t, summary.Mean, test.ShouldAlmostEqual, 4)

	empty := NewDistribution("empty", nil)
	_, ok = empty.Summary()
	test.That(t, ok, test.ShouldBeFalse)

	allNaN := NewDistribution("all_nan", []float64{math.NaN(), math.NaN()})
	_, ok = allNaN.Summary()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestGroupOrderAndReplace(t *testing.T) {
	g := NewGroup("verifier",
		NewScalar("a", 1),
		NewScalar("b", 2),
		NewScalar("c", 3),
	)
	g.Add(NewScalar("b", 20))
	g.Add(NewScalar("d", 4))

	metrics := g.Metrics()
	test.That(t, g.Len(), test.ShouldEqual, 4)
	names := make([]string, 0, len(metrics))
	for _, m := range metrics {
		names = append(names, m.Name())
	}
	test.That(t, names, test.ShouldResemble, []string{"a", "b", "c", "d"})
	test.That(t, metrics[1].Scalar(), test.ShouldEqual, 20)
}

func TestGroupJSON(t *testing.T) {
	g := NewGroup("g",
		NewScalar("a", 1.5),
		NewDistribution("d", []float64{1, 2, 3}),
	)
	b, err := g.MarshalJSON()
	test.That(t, err, test.ShouldBeNil)
	want := `{"g":{"a":1.5,"d":{"summary":{"min":1,"max":3,"mean":2,"median":2},"full_data":[1,2,3]}}}`
	test.That(t, string(b), test.ShouldEqual, want)
}

func TestGroupJSONNonFinite(t *testing.T) {
	g := NewGroup("g", NewDistribution("d", []float64{1, math.NaN(), 3}))
	b, err := g.MarshalJSON()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(b), test.ShouldContainSubstring, `"full_data":[1,null,3]`)
}

func TestParseGroupRoundTrip(t *testing.T) {
	g := NewGroup("two_view",
		NewScalar("num_valid_pairs", 42),
		NewDistribution("rotation_errors_deg", []float64{0.5, math.NaN(), 2.5}),
		NewScalar("fraction_correct", 0.75),
	)
	b, err := g.MarshalJSON()
	test.That(t, err, test.ShouldBeNil)

	parsed, err := ParseGroup(b)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed.Name(), test.ShouldEqual, "two_view")
	test.That(t, parsed.Len(), test.ShouldEqual, 3)

	metrics := parsed.Metrics()
	test.That(t, metrics[0].Name(), test.ShouldEqual, "num_valid_pairs")
	test.That(t, metrics[0].Scalar(), test.ShouldEqual, 42)
	test.That(t, metrics[1].Name(), test.ShouldEqual, "rotation_errors_deg")
	data := metrics[1].Data()
	test.That(t, len(data), test.ShouldEqual, 3)
	test.That(t, data[0], test.ShouldEqual, 0.5)
	test.That(t, math.IsNaN(data[1]), test.ShouldBeTrue)
	test.That(t, data[2], test.ShouldEqual, 2.5)
	test.That(t, metrics[2].Name(), test.ShouldEqual, "fraction_correct")
	test.That(t, metrics[2].Scalar(), test.ShouldEqual, 0.75)
}

func TestParseGroupMalformed(t *testing.T) {
	_, err := ParseGroup([]byte(`[]`))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = ParseGroup([]byte(`{"g": 7}`))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestSaveGroupsDeterministic(t *testing.T) {
	dir := t.TempDir()
	groups := []*Group{
		NewGroup("first", NewScalar("x", 1)),
		NewGroup("second", NewDistribution("y", []float64{1, 2, 3})),
	}

	test.That(t, SaveGroups(dir, groups), test.ShouldBeNil)
	firstBytes, err := os.ReadFile(filepath.Join(dir, "first.json"))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, SaveGroups(dir, groups), test.ShouldBeNil)
	again, err := os.ReadFile(filepath.Join(dir, "first.json"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(again), test.ShouldEqual, string(firstBytes))

	parsed, err := ParseGroupFile(filepath.Join(dir, "second.json"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, parsed.Name(), test.ShouldEqual, "second")
}

func TestWriteReportHTML(t *testing.T) {
	dir := t.TempDir()
	groups := []*Group{
		NewGroup("averaging",
			NewScalar("num_cameras", 12),
			NewScalar("runtime_sec", 3.5),
			NewDistribution("errors_deg", []float64{0.1, 0.2, 0.3, 5.0}),
		),
	}

	path := filepath.Join(dir, "report.html")
	test.That(t, WriteReportHTML(path, groups), test.ShouldBeNil)
	first, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(first), test.ShouldContainSubstring, "averaging__scalars")
	test.That(t, string(first), test.ShouldContainSubstring, "averaging__errors_deg")

	test.That(t, WriteReportHTML(path, groups), test.ShouldBeNil)
	second, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(second), test.ShouldResemble, string(first))
}

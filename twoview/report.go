// Package twoview holds the per-pair diagnostic records produced by relative
// pose verification, a baseline epipolar verifier, and the report aggregation
// and persistence used by the pipeline frontend.
package twoview

import (
	"encoding/json"
	"math"
	"os"
	"sort"

	"github.com/pkg/errors"

	"go.viam.com/sfm/metric"
	"go.viam.com/sfm/viewgraph"
)

// ReportTag names a lifecycle checkpoint at which a two-view report was taken.
type ReportTag string

const (
	// TagPreBA is the report on the initial verified estimate.
	TagPreBA = ReportTag("pre_ba")
	// TagPostBA is the report after pairwise pose refinement.
	TagPostBA = ReportTag("post_ba")
	// TagPostISP is the report after inlier-support pruning.
	TagPostISP = ReportTag("post_isp")
	// TagViewGraph is the report for edges surviving view-graph pruning.
	TagViewGraph = ReportTag("view_graph")
)

// Report is the diagnostic record for one image pair at one checkpoint.
// Pointer fields are nil when ground truth or the estimated model was
// unavailable for the pair.
type Report struct {
	// Angular errors of the estimated relative rotation and unit translation
	// direction against ground truth, in degrees.
	RotationAngularErrorDeg    *float64
	TranslationAngularErrorDeg *float64

	// Inlier statistics of the putative correspondences under the
	// ground-truth epipolar geometry.
	NumInliersGTModel          *int
	InlierRatioGTModel         *float64
	InlierAvgEpipolarErrGT     *float64
	OutlierAvgEpipolarErrGT    *float64

	// Inlier statistics under the estimated model.
	NumInliersEstModel  int
	InlierRatioEstModel *float64

	NumMatches int
}

// pairRecord is the persisted per-pair JSON shape consumed by the frontend.
type pairRecord struct {
	I1                          int      `json:"i1"`
	I2                          int      `json:"i2"`
	I1Filename                  string   `json:"i1_filename"`
	I2Filename                  string   `json:"i2_filename"`
	RotationAngularError        *float64 `json:"rotation_angular_error"`
	TranslationAngularError     *float64 `json:"translation_angular_error"`
	NumInliersGTModel           *int     `json:"num_inliers_gt_model"`
	InlierRatioGTModel          *float64 `json:"inlier_ratio_gt_model"`
	InlierAvgReprojErrorGTModel *float64 `json:"inlier_avg_reproj_error_gt_model"`
	OutlierAvgReprojErrGTModel  *float64 `json:"outlier_avg_reproj_error_gt_model"`
	InlierRatioEstModel         *float64 `json:"inlier_ratio_est_model"`
	NumInliersEstModel          int      `json:"num_inliers_est_model"`
}

// reportSigFigs is the precision of numeric fields in the persisted report.
const reportSigFigs = 2

// SavePairReports writes the per-pair reports as a JSON array sorted by pair
// key. fileNames maps image index to source file name; indices outside it get
// empty names. Float fields are rounded to two significant figures; nil
// fields persist as null.
func SavePairReports(path string, reports map[viewgraph.PairKey]*Report, fileNames []string) error {
	keys := make([]viewgraph.PairKey, 0, len(reports))
	for k, r := range reports {
		if r == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].I1 != keys[j].I1 {
			return keys[i].I1 < keys[j].I1
		}
		return keys[i].I2 < keys[j].I2
	})

	records := make([]pairRecord, 0, len(keys))
	for _, k := range keys {
		r := reports[k]
		records = append(records, pairRecord{
			I1:                          k.I1,
			I2:                          k.I2,
			I1Filename:                  fileNameAt(fileNames, k.I1),
			I2Filename:                  fileNameAt(fileNames, k.I2),
			RotationAngularError:        roundedPtr(r.RotationAngularErrorDeg),
			TranslationAngularError:     roundedPtr(r.TranslationAngularErrorDeg),
			NumInliersGTModel:           r.NumInliersGTModel,
			InlierRatioGTModel:          roundedPtr(r.InlierRatioGTModel),
			InlierAvgReprojErrorGTModel: roundedPtr(r.InlierAvgEpipolarErrGT),
			OutlierAvgReprojErrGTModel:  roundedPtr(r.OutlierAvgEpipolarErrGT),
			InlierRatioEstModel:         roundedPtr(r.InlierRatioEstModel),
			NumInliersEstModel:          r.NumInliersEstModel,
		})
	}

	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode pair reports")
	}
	if err := os.WriteFile(path, b, 0o640); err != nil {
		return errors.Wrap(err, "failed to write pair reports")
	}
	return nil
}

func fileNameAt(fileNames []string, i int) string {
	if i < 0 || i >= len(fileNames) {
		return ""
	}
	return fileNames[i]
}

func roundedPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := RoundToSigFigs(*v, reportSigFigs)
	return &r
}

// RoundToSigFigs rounds v to the given number of significant figures.
// Non-finite values and zero pass through unchanged.
func RoundToSigFigs(v float64, sigFigs int) float64 {
	if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	magnitude := math.Floor(math.Log10(math.Abs(v)))
	factor := math.Pow(10, float64(sigFigs-1)-magnitude)
	return math.Round(v*factor) / factor
}

// AggregateReports reduces one checkpoint's reports into a summary metric
// group. A pair is counted correct when ground truth was available and both
// its rotation and translation-direction errors are at or under
// angularThreshDeg.
func AggregateReports(name string, reports map[viewgraph.PairKey]*Report, angularThreshDeg float64) *metric.Group {
	var rotErrors, transErrors []float64
	numValid := 0
	numCorrect := 0
	for _, r := range reports {
		if r == nil {
			continue
		}
		if r.RotationAngularErrorDeg != nil {
			rotErrors = append(rotErrors, *r.RotationAngularErrorDeg)
		}
		if r.TranslationAngularErrorDeg != nil {
			transErrors = append(transErrors, *r.TranslationAngularErrorDeg)
		}
		if r.RotationAngularErrorDeg == nil || r.TranslationAngularErrorDeg == nil {
			continue
		}
		numValid++
		if *r.RotationAngularErrorDeg <= angularThreshDeg && *r.TranslationAngularErrorDeg <= angularThreshDeg {
			numCorrect++
		}
	}
	sort.Float64s(rotErrors)
	sort.Float64s(transErrors)

	fractionCorrect := 0.0
	if numValid > 0 {
		fractionCorrect = float64(numCorrect) / float64(numValid)
	}
	return metric.NewGroup(name,
		metric.NewScalar("angular_error_threshold_deg", angularThreshDeg),
		metric.NewScalar("num_total_image_pairs", float64(len(reports))),
		metric.NewScalar("num_valid_image_pairs", float64(numValid)),
		metric.NewScalar("num_correct_image_pairs", float64(numCorrect)),
		metric.NewScalar("fraction_correct_image_pairs", fractionCorrect),
		metric.NewDistribution("rotation_angular_errors_deg", rotErrors),
		metric.NewDistribution("translation_angular_errors_deg", transErrors),
	)
}

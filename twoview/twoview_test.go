package twoview

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"go.viam.com/sfm/camera"
	"go.viam.com/sfm/keypoints"
	"go.viam.com/sfm/spatialmath"
	"go.viam.com/sfm/viewgraph"
)

var testIntrinsics = camera.PinholeIntrinsics{
	Width: 640, Height: 480,
	Fx: 500, Fy: 500, Ppx: 320, Ppy: 240,
}

// syntheticPair projects a fixed 3D point cloud into two cameras with a known
// relative pose and returns the verifier input plus the expected relative
// rotation and translation direction.
func syntheticPair(t *testing.T) (PairInput, *spatialmath.Rotation, r3.Vector) {
	t.Helper()

	points := []r3.Vector{
		{X: -1.2, Y: -0.8, Z: 5.0},
		{X: 1.1, Y: -0.4, Z: 6.2},
		{X: 0.3, Y: 0.9, Z: 4.4},
		{X: -0.7, Y: 0.5, Z: 7.1},
		{X: 1.4, Y: 1.2, Z: 5.6},
		{X: -1.5, Y: 1.0, Z: 6.8},
		{X: 0.8, Y: -1.1, Z: 4.9},
		{X: -0.2, Y: 0.1, Z: 5.3},
		{X: 0.6, Y: 0.7, Z: 6.5},
		{X: -0.9, Y: -0.3, Z: 4.2},
		{X: 1.0, Y: 0.2, Z: 7.4},
		{X: -0.4, Y: -1.3, Z: 5.8},
		{X: 0.2, Y: 1.4, Z: 6.1},
		{X: -1.1, Y: 0.8, Z: 4.6},
		{X: 0.9, Y: -0.6, Z: 6.9},
		{X: -0.6, Y: 0.3, Z: 5.1},
	}

	gtPose1 := spatialmath.NewZeroPose()
	rot2 := spatialmath.NewRotationFromAxisAngle(r3.Vector{Y: 1}, 5*math.Pi/180)
	gtPose2 := spatialmath.NewPose(r3.Vector{X: 0.6, Y: 0.1, Z: 0}, rot2)

	cam1 := camera.NewCamera(gtPose1, &testIntrinsics)
	cam2 := camera.NewCamera(gtPose2, &testIntrinsics)

	kps1 := make(keypoints.KeyPoints, 0, len(points))
	kps2 := make(keypoints.KeyPoints, 0, len(points))
	descs1 := make(keypoints.Descriptors, 0, len(points))
	descs2 := make(keypoints.Descriptors, 0, len(points))
	for i, pt := range points {
		px1, err := cam1.Project(pt)
		test.That(t, err, test.ShouldBeNil)
		px2, err := cam2.Project(pt)
		test.That(t, err, test.ShouldBeNil)
		kps1 = append(kps1, px1)
		kps2 = append(kps2, px2)
		desc := keypoints.Descriptor{uint64(1) << uint(i)}
		descs1 = append(descs1, desc)
		descs2 = append(descs2, desc)
	}

	in := PairInput{
		KeyPointsI1:   kps1,
		KeyPointsI2:   kps2,
		DescriptorsI1: descs1,
		DescriptorsI2: descs2,
		IntrinsicsI1:  testIntrinsics,
		IntrinsicsI2:  testIntrinsics,
		ShapeI1:       [2]int{480, 640},
		ShapeI2:       [2]int{480, 640},
		GTPoseI1:      gtPose1,
		GTPoseI2:      gtPose2,
	}
	gtRel := spatialmath.PoseBetween(gtPose2, gtPose1)
	wantDir := gtRel.Translation().Normalize()
	return in, gtRel.Rotation(), wantDir
}

func TestEpipolarVerifierRecoversPose(t *testing.T) {
	logger := golog.NewTestLogger(t)
	in, wantRot, wantDir := syntheticPair(t)

	verifier := NewEpipolarVerifier(keypoints.MatchingConfig{DoCrossCheck: true, MaxDist: 10}, 2.0, logger)
	res, err := verifier.Verify(context.Background(), in)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, res.Rotation, test.ShouldNotBeNil)
	test.That(t, res.TranslationDir, test.ShouldNotBeNil)
	test.That(t, spatialmath.RadToDeg(res.Rotation.AngleTo(wantRot)), test.ShouldBeLessThan, 0.5)
	test.That(t, spatialmath.RadToDeg(spatialmath.AngleBetweenVectors(*res.TranslationDir, wantDir)), test.ShouldBeLessThan, 1.0)

	test.That(t, len(res.VerifiedCorrespondences), test.ShouldEqual, len(in.KeyPointsI1))

	preBA := res.Reports[TagPreBA]
	test.That(t, preBA, test.ShouldNotBeNil)
	test.That(t, preBA.NumMatches, test.ShouldEqual, len(in.KeyPointsI1))
	test.That(t, *preBA.InlierRatioEstModel, test.ShouldAlmostEqual, 1.0)
	test.That(t, preBA.RotationAngularErrorDeg, test.ShouldNotBeNil)
	test.That(t, *preBA.RotationAngularErrorDeg, test.ShouldBeLessThan, 0.5)
	test.That(t, preBA.TranslationAngularErrorDeg, test.ShouldNotBeNil)
	test.That(t, *preBA.TranslationAngularErrorDeg, test.ShouldBeLessThan, 1.0)
	test.That(t, preBA.NumInliersGTModel, test.ShouldNotBeNil)
	test.That(t, *preBA.NumInliersGTModel, test.ShouldEqual, len(in.KeyPointsI1))

	postISP := res.Reports[TagPostISP]
	test.That(t, postISP, test.ShouldNotBeNil)
	test.That(t, postISP.NumMatches, test.ShouldEqual, len(res.VerifiedCorrespondences))
}

func TestEpipolarVerifierTooFewMatches(t *testing.T) {
	logger := golog.NewTestLogger(t)
	in, _, _ := syntheticPair(t)
	in.KeyPointsI1 = in.KeyPointsI1[:3]
	in.DescriptorsI1 = in.DescriptorsI1[:3]

	verifier := NewEpipolarVerifier(keypoints.MatchingConfig{DoCrossCheck: true, MaxDist: 10}, 2.0, logger)
	res, err := verifier.Verify(context.Background(), in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Rotation, test.ShouldBeNil)
	test.That(t, res.TranslationDir, test.ShouldBeNil)
	test.That(t, len(res.VerifiedCorrespondences), test.ShouldEqual, 0)
	test.That(t, res.Reports[TagPreBA], test.ShouldNotBeNil)
	test.That(t, res.Reports[TagPreBA].RotationAngularErrorDeg, test.ShouldBeNil)
}

func TestEpipolarVerifierNoGroundTruth(t *testing.T) {
	logger := golog.NewTestLogger(t)
	in, _, _ := syntheticPair(t)
	in.GTPoseI1 = nil
	in.GTPoseI2 = nil

	verifier := NewEpipolarVerifier(keypoints.MatchingConfig{DoCrossCheck: true, MaxDist: 10}, 2.0, logger)
	res, err := verifier.Verify(context.Background(), in)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Rotation, test.ShouldNotBeNil)

	preBA := res.Reports[TagPreBA]
	test.That(t, preBA.RotationAngularErrorDeg, test.ShouldBeNil)
	test.That(t, preBA.TranslationAngularErrorDeg, test.ShouldBeNil)
	test.That(t, preBA.NumInliersGTModel, test.ShouldBeNil)
	test.That(t, preBA.InlierRatioEstModel, test.ShouldNotBeNil)
}

func TestEpipolarDistanceOnExactGeometry(t *testing.T) {
	in, wantRot, _ := syntheticPair(t)
	gtRel := spatialmath.PoseBetween(in.GTPoseI2, in.GTPoseI1)
	f, err := fundamentalFromPose(&in.IntrinsicsI1, &in.IntrinsicsI2, wantRot, gtRel.Translation())
	test.That(t, err, test.ShouldBeNil)
	for i := range in.KeyPointsI1 {
		d := epipolarDistance(f, in.KeyPointsI1[i], in.KeyPointsI2[i])
		test.That(t, d, test.ShouldBeLessThan, 1e-6)
	}
}

func TestRoundToSigFigs(t *testing.T) {
	test.That(t, RoundToSigFigs(0.12345, 2), test.ShouldAlmostEqual, 0.12)
	test.That(t, RoundToSigFigs(1234.5, 2), test.ShouldAlmostEqual, 1200)
	test.That(t, RoundToSigFigs(-0.0567, 2), test.ShouldAlmostEqual, -0.057)
	test.That(t, RoundToSigFigs(0, 2), test.ShouldEqual, 0)
	test.That(t, math.IsNaN(RoundToSigFigs(math.NaN(), 2)), test.ShouldBeTrue)
}

func TestSavePairReports(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reports.json")

	rotErr := 1.2345
	transErr := 8.88
	gtInliers := 10
	gtRatio := 0.8333
	reports := map[viewgraph.PairKey]*Report{
		viewgraph.NewPairKey(1, 2): {
			RotationAngularErrorDeg:    &rotErr,
			TranslationAngularErrorDeg: &transErr,
			NumInliersGTModel:          &gtInliers,
			InlierRatioGTModel:         &gtRatio,
			NumInliersEstModel:         12,
			NumMatches:                 12,
		},
		viewgraph.NewPairKey(0, 1): {
			NumInliersEstModel: 4,
			NumMatches:         9,
		},
	}
	fileNames := []string{"a.jpg", "b.jpg", "c.jpg"}
	test.That(t, SavePairReports(path, reports, fileNames), test.ShouldBeNil)

	b, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	var records []map[string]interface{}
	test.That(t, json.Unmarshal(b, &records), test.ShouldBeNil)
	test.That(t, len(records), test.ShouldEqual, 2)

	// sorted by pair key
	test.That(t, records[0]["i1"], test.ShouldEqual, 0)
	test.That(t, records[0]["i2"], test.ShouldEqual, 1)
	test.That(t, records[0]["i1_filename"], test.ShouldEqual, "a.jpg")
	test.That(t, records[0]["i2_filename"], test.ShouldEqual, "b.jpg")
	test.That(t, records[0]["rotation_angular_error"], test.ShouldBeNil)
	test.That(t, records[0]["num_inliers_gt_model"], test.ShouldBeNil)
	test.That(t, records[0]["num_inliers_est_model"], test.ShouldEqual, 4)

	test.That(t, records[1]["i1"], test.ShouldEqual, 1)
	test.That(t, records[1]["i2"], test.ShouldEqual, 2)
	test.That(t, records[1]["rotation_angular_error"], test.ShouldEqual, 1.2)
	test.That(t, records[1]["translation_angular_error"], test.ShouldEqual, 8.9)
	test.That(t, records[1]["inlier_ratio_gt_model"], test.ShouldEqual, 0.83)
	test.That(t, records[1]["num_inliers_gt_model"], test.ShouldEqual, 10)
}

func TestAggregateReports(t *testing.T) {
	mk := func(rotDeg, transDeg float64) *Report {
		r, tr := rotDeg, transDeg
		return &Report{RotationAngularErrorDeg: &r, TranslationAngularErrorDeg: &tr}
	}
	reports := map[viewgraph.PairKey]*Report{
		viewgraph.NewPairKey(0, 1): mk(1, 1),
		viewgraph.NewPairKey(0, 2): mk(2, 9),
		viewgraph.NewPairKey(1, 2): mk(9, 1),
		viewgraph.NewPairKey(2, 3): {NumMatches: 5}, // no ground truth
	}

	g := AggregateReports("verifier_summary_pre_ba", reports, 5)
	test.That(t, g.Name(), test.ShouldEqual, "verifier_summary_pre_ba")

	byName := map[string]float64{}
	for _, m := range g.Metrics() {
		if m.IsScalar() {
			byName[m.Name()] = m.Scalar()
		}
	}
	test.That(t, byName["num_total_image_pairs"], test.ShouldEqual, 4)
	test.That(t, byName["num_valid_image_pairs"], test.ShouldEqual, 3)
	test.That(t, byName["num_correct_image_pairs"], test.ShouldEqual, 1)
	test.That(t, byName["fraction_correct_image_pairs"], test.ShouldAlmostEqual, 1.0/3.0)
	test.That(t, byName["angular_error_threshold_deg"], test.ShouldEqual, 5)

	var rotDist *float64
	for _, m := range g.Metrics() {
		if m.Name() == "rotation_angular_errors_deg" {
			data := m.Data()
			test.That(t, data, test.ShouldResemble, []float64{1, 2, 9})
			v := data[0]
			rotDist = &v
		}
	}
	test.That(t, rotDist, test.ShouldNotBeNil)
}

func TestAggregateReportsEmpty(t *testing.T) {
	g := AggregateReports("empty", map[viewgraph.PairKey]*Report{}, 5)
	byName := map[string]float64{}
	for _, m := range g.Metrics() {
		if m.IsScalar() {
			byName[m.Name()] = m.Scalar()
		}
	}
	test.That(t, byName["num_total_image_pairs"], test.ShouldEqual, 0)
	test.That(t, byName["fraction_correct_image_pairs"], test.ShouldEqual, 0)
}

package sfm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"go.viam.com/sfm/camera"
	"go.viam.com/sfm/flow"
	"go.viam.com/sfm/keypoints"
	"go.viam.com/sfm/metric"
	"go.viam.com/sfm/spatialmath"
	"go.viam.com/sfm/twoview"
	"go.viam.com/sfm/viewgraph"
)

// Options configures the scene optimizer's side outputs and evaluation
// thresholds.
type Options struct {
	// SaveTwoViewCorrespondences persists each pair's verified matches.
	SaveTwoViewCorrespondences bool `json:"save_two_view_correspondences"`
	// SaveSceneData persists the refined scene estimate as JSON.
	SaveSceneData bool `json:"save_scene_data"`
	// PoseAngularErrorThreshDeg is the angular threshold under which a
	// pair's rotation and translation-direction errors count as correct.
	PoseAngularErrorThreshDeg float64 `json:"pose_angular_error_thresh_deg"`
	// OutputDir receives metrics, reports, and other artifacts.
	OutputDir string `json:"output_dir"`
}

// SceneInput is everything a reconstruction run consumes. Ground-truth fields
// are optional and feed evaluation only.
type SceneInput struct {
	Images     []*Image
	Intrinsics []*camera.PinholeIntrinsics
	Pairs      []viewgraph.PairKey

	RelPosePriors map[viewgraph.PairKey]*viewgraph.PosePrior
	AbsPosePriors []*viewgraph.PosePrior

	GTPoses []*spatialmath.Pose
	GTMesh  *twoview.Mesh
}

// Pipeline is the deferred output of a reconstruction graph. Result carries
// the refined scene and is joined with every side-effect node, so persistence
// and metrics are guaranteed to have run once it materializes.
type Pipeline struct {
	BAInput *flow.Future[*SceneData]
	Result  *flow.Future[*SceneData]
	Metrics *flow.Future[[]*metric.Group]
}

// SceneOptimizer builds the full reconstruction computation graph. It wires
// dependencies only; nothing runs until the graph is materialized.
type SceneOptimizer struct {
	featureExtractor FeatureExtractor
	verifier         twoview.Verifier
	multiview        *MultiViewOptimizer
	dense            DenseReconstructor
	opts             Options
	logger           golog.Logger
}

// NewSceneOptimizer returns a scene optimizer. dense may be nil to skip the
// dense reconstruction stage.
func NewSceneOptimizer(
	featureExtractor FeatureExtractor,
	verifier twoview.Verifier,
	multiview *MultiViewOptimizer,
	dense DenseReconstructor,
	opts Options,
	logger golog.Logger,
) *SceneOptimizer {
	return &SceneOptimizer{
		featureExtractor: featureExtractor,
		verifier:         verifier,
		multiview:        multiview,
		dense:            dense,
		opts:             opts,
		logger:           logger,
	}
}

type imageFeatures struct {
	kps   keypoints.KeyPoints
	descs keypoints.Descriptors
}

type denseResult struct {
	points []r3.Vector
	group  *metric.Group
}

// CreateComputationGraph adds the whole pipeline to g and returns its
// deferred outputs. A failed pair verification removes that edge silently;
// failures in feature extraction or any global stage are fatal to the run.
func (s *SceneOptimizer) CreateComputationGraph(g *flow.Graph, in SceneInput) Pipeline {
	numImages := len(in.Images)
	images := flow.Immediate(g, "images", in.Images)

	features := make([]*flow.Future[imageFeatures], numImages)
	for i := range in.Images {
		img := in.Images[i]
		features[i] = flow.Defer(g, fmt.Sprintf("features %d", i), nil, func(ctx context.Context) (imageFeatures, error) {
			kps, descs, err := s.featureExtractor.Extract(ctx, img)
			if err != nil {
				return imageFeatures{}, err
			}
			return imageFeatures{kps: kps, descs: descs}, nil
		})
	}

	verifications := make(map[viewgraph.PairKey]*flow.Future[twoview.Result], len(in.Pairs))
	var sideNodes []flow.Handle
	for _, pair := range in.Pairs {
		pair := viewgraph.NewPairKey(pair.I1, pair.I2)
		if pair.I1 < 0 || pair.I2 >= numImages {
			s.logger.Warnw("dropping pair with out-of-range image index", "pair", pair.String())
			continue
		}
		if _, ok := verifications[pair]; ok {
			continue
		}
		f1, f2 := features[pair.I1], features[pair.I2]
		verifyF := flow.Defer(g, fmt.Sprintf("verify %s", pair), []flow.Handle{f1, f2}, func(ctx context.Context) (twoview.Result, error) {
			res, err := s.verifier.Verify(ctx, s.pairInput(in, pair, f1.Value(), f2.Value()))
			if err != nil {
				// per-edge failure: drop the edge, keep the run alive
				s.logger.Warnw("pair verification failed", "pair", pair.String(), "error", err)
				return twoview.Result{}, nil
			}
			return res, nil
		})
		verifications[pair] = verifyF

		if s.opts.SaveTwoViewCorrespondences {
			pair := pair
			side := flow.Defer(g, fmt.Sprintf("save correspondences %s", pair), []flow.Handle{verifyF}, func(ctx context.Context) (struct{}, error) {
				path := filepath.Join(s.opts.OutputDir, "correspondences", fmt.Sprintf("%d_%d.json", pair.I1, pair.I2))
				return struct{}{}, saveCorrespondences(path, pair, verifyF.Value().VerifiedCorrespondences)
			})
			sideNodes = append(sideNodes, side)
		}
	}

	collectDeps := make([]flow.Handle, 0, len(verifications)+len(features))
	for _, f := range features {
		collectDeps = append(collectDeps, f)
	}
	pairs := make([]viewgraph.PairKey, 0, len(verifications))
	for pair, f := range verifications {
		pairs = append(pairs, pair)
		collectDeps = append(collectDeps, f)
	}
	collected := flow.Defer(g, "collect pair estimates", collectDeps, func(ctx context.Context) (pairEstimates, error) {
		return s.collectEstimates(features, pairs, verifications), nil
	})
	pairData := flow.After(g, "pair estimates", collected, sideNodes...)

	mv := s.multiview.createComputationGraph(
		g, numImages, pairData, images, in.Intrinsics, in.AbsPosePriors, in.RelPosePriors, in.GTPoses)

	metricsDeps := []flow.Handle{pairData, mv.poses, mv.baInput, mv.baOutput, mv.pruned}
	var denseF *flow.Future[denseResult]
	var resultSides []flow.Handle
	if s.dense != nil {
		denseF = flow.Defer(g, "dense reconstruction", []flow.Handle{mv.baOutput, images}, func(ctx context.Context) (denseResult, error) {
			pts, group, err := s.dense.Densify(ctx, images.Value(), mv.baOutput.Value().scene)
			if err != nil {
				return denseResult{}, err
			}
			return denseResult{points: pts, group: group}, nil
		})
		metricsDeps = append(metricsDeps, denseF)

		saveDense := flow.Defer(g, "save dense points", []flow.Handle{denseF}, func(ctx context.Context) (struct{}, error) {
			path := filepath.Join(s.opts.OutputDir, "dense_points.ply")
			return struct{}{}, savePointCloudPLY(path, denseF.Value().points)
		})
		resultSides = append(resultSides, saveDense)
	}

	metrics := flow.Defer(g, "aggregate metrics", metricsDeps, func(ctx context.Context) ([]*metric.Group, error) {
		return s.aggregateMetrics(in, pairData.Value(), mv, denseF), nil
	})

	saveMetrics := flow.Defer(g, "save metrics", []flow.Handle{metrics}, func(ctx context.Context) (struct{}, error) {
		dir := filepath.Join(s.opts.OutputDir, "result_metrics")
		return struct{}{}, metric.SaveGroups(dir, metrics.Value())
	})
	resultSides = append(resultSides, saveMetrics)

	saveReports := flow.Defer(g, "save two-view reports", []flow.Handle{pairData, mv.pruned}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.savePairReports(in, pairData.Value(), mv.pruned.Value())
	})
	resultSides = append(resultSides, saveReports)

	result := flow.Defer(g, "refined scene", []flow.Handle{mv.baOutput}, func(ctx context.Context) (*SceneData, error) {
		return mv.baOutput.Value().scene, nil
	})
	if s.opts.SaveSceneData {
		saveScene := flow.Defer(g, "save scene data", []flow.Handle{result}, func(ctx context.Context) (struct{}, error) {
			path := filepath.Join(s.opts.OutputDir, "scene_data.json")
			return struct{}{}, saveSceneJSON(path, result.Value())
		})
		resultSides = append(resultSides, saveScene)
	}

	baInput := flow.Defer(g, "initial scene", []flow.Handle{mv.baInput}, func(ctx context.Context) (*SceneData, error) {
		return mv.baInput.Value().scene, nil
	})

	return Pipeline{
		BAInput: baInput,
		Result:  flow.After(g, "scene result", result, resultSides...),
		Metrics: metrics,
	}
}

func (s *SceneOptimizer) pairInput(in SceneInput, pair viewgraph.PairKey, f1, f2 imageFeatures) twoview.PairInput {
	input := twoview.PairInput{
		KeyPointsI1:       f1.kps,
		KeyPointsI2:       f2.kps,
		DescriptorsI1:     f1.descs,
		DescriptorsI2:     f2.descs,
		ShapeI1:           in.Images[pair.I1].Shape,
		ShapeI2:           in.Images[pair.I2].Shape,
		RelativePosePrior: in.RelPosePriors[pair],
		GTMesh:            in.GTMesh,
	}
	if pair.I1 < len(in.Intrinsics) && in.Intrinsics[pair.I1] != nil {
		input.IntrinsicsI1 = *in.Intrinsics[pair.I1]
	}
	if pair.I2 < len(in.Intrinsics) && in.Intrinsics[pair.I2] != nil {
		input.IntrinsicsI2 = *in.Intrinsics[pair.I2]
	}
	if pair.I1 < len(in.GTPoses) {
		input.GTPoseI1 = in.GTPoses[pair.I1]
	}
	if pair.I2 < len(in.GTPoses) {
		input.GTPoseI2 = in.GTPoses[pair.I2]
	}
	return input
}

func (s *SceneOptimizer) collectEstimates(
	features []*flow.Future[imageFeatures],
	pairs []viewgraph.PairKey,
	verifications map[viewgraph.PairKey]*flow.Future[twoview.Result],
) pairEstimates {
	est := pairEstimates{
		rotations:       make(map[viewgraph.PairKey]*spatialmath.Rotation, len(pairs)),
		directions:      make(map[viewgraph.PairKey]*r3.Vector, len(pairs)),
		correspondences: make(map[viewgraph.PairKey]keypoints.CorrespondenceIndices, len(pairs)),
		kps:             make([]keypoints.KeyPoints, len(features)),
		reports:         make(map[twoview.ReportTag]map[viewgraph.PairKey]*twoview.Report),
	}
	for i, f := range features {
		est.kps[i] = f.Value().kps
	}
	for _, pair := range pairs {
		res := verifications[pair].Value()
		est.rotations[pair] = res.Rotation
		est.directions[pair] = res.TranslationDir
		est.correspondences[pair] = res.VerifiedCorrespondences
		for tag, report := range res.Reports {
			if est.reports[tag] == nil {
				est.reports[tag] = make(map[viewgraph.PairKey]*twoview.Report, len(pairs))
			}
			est.reports[tag][pair] = report
		}
	}
	return est
}

// checkpointOrder fixes the report aggregation order in saved metrics.
var checkpointOrder = []twoview.ReportTag{twoview.TagPreBA, twoview.TagPostBA, twoview.TagPostISP}

func (s *SceneOptimizer) aggregateMetrics(
	in SceneInput,
	data pairEstimates,
	mv multiViewResult,
	denseF *flow.Future[denseResult],
) []*metric.Group {
	var groups []*metric.Group
	for _, tag := range checkpointOrder {
		reports := data.reports[tag]
		if len(reports) == 0 {
			continue
		}
		groups = append(groups, twoview.AggregateReports(
			fmt.Sprintf("verifier_summary_%s", tag), reports, s.opts.PoseAngularErrorThreshDeg))
	}
	groups = append(groups, twoview.AggregateReports(
		fmt.Sprintf("verifier_summary_%s", twoview.TagViewGraph), mv.pruned.Value().reports, s.opts.PoseAngularErrorThreshDeg))

	for _, g := range mv.poses.Value().groups {
		if g != nil {
			groups = append(groups, g)
		}
	}
	if g := mv.baInput.Value().group; g != nil {
		groups = append(groups, g)
	}
	if g := mv.baOutput.Value().group; g != nil {
		groups = append(groups, g)
	}

	if len(in.GTPoses) > 0 {
		groups = append(groups,
			poseErrorMetrics("ba_input_pose_errors", in.GTPoses, mv.baInput.Value().scene.PoseList()),
			poseErrorMetrics("ba_output_pose_errors", in.GTPoses, mv.baOutput.Value().scene.PoseList()),
		)
	}
	if denseF != nil {
		if g := denseF.Value().group; g != nil {
			groups = append(groups, g)
		}
	}
	return groups
}

func (s *SceneOptimizer) savePairReports(in SceneInput, data pairEstimates, pruned prunedData) error {
	if err := os.MkdirAll(s.opts.OutputDir, 0o750); err != nil {
		return err
	}
	fileNames := make([]string, len(in.Images))
	for i, img := range in.Images {
		fileNames[i] = img.FileName
	}
	for _, tag := range checkpointOrder {
		reports := data.reports[tag]
		if len(reports) == 0 {
			continue
		}
		path := filepath.Join(s.opts.OutputDir, fmt.Sprintf("two_view_report_%s.json", tag))
		if err := twoview.SavePairReports(path, reports, fileNames); err != nil {
			return err
		}
	}
	path := filepath.Join(s.opts.OutputDir, fmt.Sprintf("two_view_report_%s.json", twoview.TagViewGraph))
	return twoview.SavePairReports(path, pruned.reports, fileNames)
}

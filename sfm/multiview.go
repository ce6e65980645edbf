package sfm

import (
	"context"

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

// pairEstimates is the collected output of all per-pair verifications.
type pairEstimates struct {
	rotations       map[viewgraph.PairKey]*spatialmath.Rotation
	directions      map[viewgraph.PairKey]*r3.Vector
	correspondences map[viewgraph.PairKey]keypoints.CorrespondenceIndices
	kps             []keypoints.KeyPoints
	reports         map[twoview.ReportTag]map[viewgraph.PairKey]*twoview.Report
}

type prunedData struct {
	rotations  map[viewgraph.PairKey]*spatialmath.Rotation
	directions map[viewgraph.PairKey]*r3.Vector
	reports    map[viewgraph.PairKey]*twoview.Report
}

type posesResult struct {
	poses  []*spatialmath.Pose
	groups []*metric.Group
}

type sceneResult struct {
	scene *SceneData
	group *metric.Group
}

// MultiViewOptimizer wires the global stages of the pipeline: view-graph
// pruning, global pose initialization (rotation+translation averaging or
// pose-graph initialization), camera instantiation, data association, and
// bundle adjustment.
type MultiViewOptimizer struct {
	rotAverager    RotationAverager
	transAverager  TranslationAverager
	pgInitializer  PoseGraphInitializer
	dataAssociator DataAssociator
	bundleAdjuster BundleAdjuster
	logger         golog.Logger
}

// NewMultiViewOptimizer returns an optimizer initializing global poses via
// rotation then translation averaging.
func NewMultiViewOptimizer(
	rotAverager RotationAverager,
	transAverager TranslationAverager,
	dataAssociator DataAssociator,
	bundleAdjuster BundleAdjuster,
	logger golog.Logger,
) *MultiViewOptimizer {
	return &MultiViewOptimizer{
		rotAverager:    rotAverager,
		transAverager:  transAverager,
		dataAssociator: dataAssociator,
		bundleAdjuster: bundleAdjuster,
		logger:         logger,
	}
}

// NewMultiViewOptimizerWithPoseGraph returns an optimizer initializing global
// poses jointly from relative pose priors instead of averaging.
func NewMultiViewOptimizerWithPoseGraph(
	pgInitializer PoseGraphInitializer,
	dataAssociator DataAssociator,
	bundleAdjuster BundleAdjuster,
	logger golog.Logger,
) *MultiViewOptimizer {
	return &MultiViewOptimizer{
		pgInitializer:  pgInitializer,
		dataAssociator: dataAssociator,
		bundleAdjuster: bundleAdjuster,
		logger:         logger,
	}
}

// multiViewResult exposes the futures the scene-level graph builds on.
type multiViewResult struct {
	baInput  *flow.Future[sceneResult]
	baOutput *flow.Future[sceneResult]
	poses    *flow.Future[posesResult]
	pruned   *flow.Future[prunedData]
}

// createComputationGraph adds the global pipeline stages to g, consuming the
// collected per-pair estimates. Stage failures here are whole-graph fatal.
func (m *MultiViewOptimizer) createComputationGraph(
	g *flow.Graph,
	numImages int,
	pairData *flow.Future[pairEstimates],
	images *flow.Future[[]*Image],
	intrinsics []*camera.PinholeIntrinsics,
	absPriors []*viewgraph.PosePrior,
	relPriors map[viewgraph.PairKey]*viewgraph.PosePrior,
	gtPoses []*spatialmath.Pose,
) multiViewResult {
	pruned := flow.Defer(g, "view-graph pruning", []flow.Handle{pairData}, func(ctx context.Context) (prunedData, error) {
		data := pairData.Value()
		keptRot, keptDir := viewgraph.Prune(data.rotations, data.directions, relPriors)
		m.logger.Debugw("pruned view graph",
			"input_edges", len(data.rotations),
			"kept_edges", len(keptRot),
		)
		return prunedData{
			rotations:  keptRot,
			directions: keptDir,
			reports:    keptEdgeReports(data.reports, keptRot, keptDir),
		}, nil
	})

	poses := m.globalPoseNodes(g, numImages, pruned, absPriors, relPriors, gtPoses)

	cameras := flow.Defer(g, "camera instantiation", []flow.Handle{poses}, func(ctx context.Context) (map[int]*camera.Camera, error) {
		return initCameras(poses.Value().poses, intrinsics), nil
	})

	gtCameras := gtCamerasFromPoses(gtPoses, intrinsics)

	baInput := flow.Defer(g, "data association", []flow.Handle{cameras, pairData, images}, func(ctx context.Context) (sceneResult, error) {
		data := pairData.Value()
		scene, group, err := m.dataAssociator.Associate(
			ctx, numImages, cameras.Value(), data.correspondences, data.kps, gtCameras, relPriors, images.Value())
		if err != nil {
			return sceneResult{}, err
		}
		return sceneResult{scene: scene, group: group}, nil
	})

	baOutput := flow.Defer(g, "bundle adjustment", []flow.Handle{baInput}, func(ctx context.Context) (sceneResult, error) {
		scene, group, err := m.bundleAdjuster.Adjust(ctx, baInput.Value().scene, absPriors, relPriors, gtCameras)
		if err != nil {
			return sceneResult{}, err
		}
		return sceneResult{scene: scene, group: group}, nil
	})

	return multiViewResult{baInput: baInput, baOutput: baOutput, poses: poses, pruned: pruned}
}

// globalPoseNodes schedules exactly one initialization path: pose-graph
// initialization when configured, otherwise rotation then translation
// averaging.
func (m *MultiViewOptimizer) globalPoseNodes(
	g *flow.Graph,
	numImages int,
	pruned *flow.Future[prunedData],
	absPriors []*viewgraph.PosePrior,
	relPriors map[viewgraph.PairKey]*viewgraph.PosePrior,
	gtPoses []*spatialmath.Pose,
) *flow.Future[posesResult] {
	if m.pgInitializer != nil {
		return flow.Defer(g, "pose-graph initialization", []flow.Handle{pruned}, func(ctx context.Context) (posesResult, error) {
			poses, group, err := m.pgInitializer.InitializePoses(ctx, numImages, relPriors, gtPoses)
			if err != nil {
				return posesResult{}, err
			}
			return posesResult{poses: poses, groups: []*metric.Group{group}}, nil
		})
	}

	rotations := flow.Defer(g, "rotation averaging", []flow.Handle{pruned}, func(ctx context.Context) (posesResult, error) {
		rots, group, err := m.rotAverager.AverageRotations(ctx, numImages, pruned.Value().rotations, relPriors, gtPoses)
		if err != nil {
			return posesResult{}, err
		}
		// carry rotations as rotation-only poses to the next stage
		poses := make([]*spatialmath.Pose, len(rots))
		for i, rot := range rots {
			if rot == nil {
				continue
			}
			poses[i] = spatialmath.NewPose(r3.Vector{}, rot)
		}
		return posesResult{poses: poses, groups: []*metric.Group{group}}, nil
	})

	return flow.Defer(g, "translation averaging", []flow.Handle{rotations, pruned}, func(ctx context.Context) (posesResult, error) {
		rotResult := rotations.Value()
		rots := make([]*spatialmath.Rotation, len(rotResult.poses))
		for i, p := range rotResult.poses {
			if p == nil {
				continue
			}
			rots[i] = p.Rotation()
		}
		poses, group, err := m.transAverager.AverageTranslations(
			ctx, numImages, pruned.Value().directions, rots, absPriors, relPriors, gtPoses)
		if err != nil {
			return posesResult{}, err
		}
		groups := append(append([]*metric.Group{}, rotResult.groups...), group)
		return posesResult{poses: poses, groups: groups}, nil
	})
}

// keptEdgeReports restricts the latest available checkpoint reports to edges
// surviving the prune, preferring post-inlier-pruning reports.
func keptEdgeReports(
	reports map[twoview.ReportTag]map[viewgraph.PairKey]*twoview.Report,
	keptRot map[viewgraph.PairKey]*spatialmath.Rotation,
	keptDir map[viewgraph.PairKey]*r3.Vector,
) map[viewgraph.PairKey]*twoview.Report {
	kept := make(map[viewgraph.PairKey]struct{}, len(keptRot)+len(keptDir))
	for k := range keptRot {
		kept[k] = struct{}{}
	}
	for k := range keptDir {
		kept[k] = struct{}{}
	}

	out := make(map[viewgraph.PairKey]*twoview.Report, len(kept))
	for k := range kept {
		if r := reports[twoview.TagPostISP][k]; r != nil {
			out[k] = r
			continue
		}
		if r := reports[twoview.TagPreBA][k]; r != nil {
			out[k] = r
		}
	}
	return out
}

package sfm

import (
	"context"

	"github.com/golang/geo/r3"

	"go.viam.com/sfm/camera"
	"go.viam.com/sfm/keypoints"
	"go.viam.com/sfm/metric"
	"go.viam.com/sfm/spatialmath"
	"go.viam.com/sfm/viewgraph"
)

// FeatureExtractor detects keypoints and computes their descriptors for one
// image.
type FeatureExtractor interface {
	Extract(ctx context.Context, img *Image) (keypoints.KeyPoints, keypoints.Descriptors, error)
}

// RotationAverager estimates one global rotation per image from pruned
// relative rotations. Unrecoverable images yield nil entries. gtPoses is for
// metric computation only and may be nil.
type RotationAverager interface {
	AverageRotations(
		ctx context.Context,
		numImages int,
		relRotations map[viewgraph.PairKey]*spatialmath.Rotation,
		relPriors map[viewgraph.PairKey]*viewgraph.PosePrior,
		gtPoses []*spatialmath.Pose,
	) ([]*spatialmath.Rotation, *metric.Group, error)
}

// TranslationAverager estimates global poses from pruned relative translation
// directions and previously averaged global rotations.
type TranslationAverager interface {
	AverageTranslations(
		ctx context.Context,
		numImages int,
		relDirections map[viewgraph.PairKey]*r3.Vector,
		globalRotations []*spatialmath.Rotation,
		absPriors []*viewgraph.PosePrior,
		relPriors map[viewgraph.PairKey]*viewgraph.PosePrior,
		gtPoses []*spatialmath.Pose,
	) ([]*spatialmath.Pose, *metric.Group, error)
}

// PoseGraphInitializer jointly estimates global poses directly from relative
// pose priors, the alternate initialization path to the two averaging stages.
type PoseGraphInitializer interface {
	InitializePoses(
		ctx context.Context,
		numImages int,
		relPriors map[viewgraph.PairKey]*viewgraph.PosePrior,
		gtPoses []*spatialmath.Pose,
	) ([]*spatialmath.Pose, *metric.Group, error)
}

// DataAssociator builds an initial scene estimate from cameras and verified
// correspondences. It must tolerate cameras missing for unrecoverable image
// indices.
type DataAssociator interface {
	Associate(
		ctx context.Context,
		numImages int,
		cameras map[int]*camera.Camera,
		correspondences map[viewgraph.PairKey]keypoints.CorrespondenceIndices,
		kps []keypoints.KeyPoints,
		gtCameras map[int]*camera.Camera,
		relPriors map[viewgraph.PairKey]*viewgraph.PosePrior,
		images []*Image,
	) (*SceneData, *metric.Group, error)
}

// BundleAdjuster refines a scene estimate. gtCameras is for evaluation
// metrics only and must never feed the optimization objective.
type BundleAdjuster interface {
	Adjust(
		ctx context.Context,
		scene *SceneData,
		absPriors []*viewgraph.PosePrior,
		relPriors map[viewgraph.PairKey]*viewgraph.PosePrior,
		gtCameras map[int]*camera.Camera,
	) (*SceneData, *metric.Group, error)
}

// DenseReconstructor produces a dense point cloud from the refined scene and
// the source images.
type DenseReconstructor interface {
	Densify(ctx context.Context, images []*Image, scene *SceneData) ([]r3.Vector, *metric.Group, error)
}

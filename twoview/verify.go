package twoview

import (
	"context"

	"github.com/golang/geo/r3"

	"go.viam.com/sfm/camera"
	"go.viam.com/sfm/keypoints"
	"go.viam.com/sfm/spatialmath"
	"go.viam.com/sfm/viewgraph"
)

// Mesh is ground-truth scene geometry some verifiers use for visibility
// checks. The baseline verifier ignores it.
type Mesh struct {
	Vertices []r3.Vector
	Faces    [][3]int
}

// PairInput bundles everything a verifier may consume for one image pair.
// Pointer fields are nil when the corresponding data is unavailable.
type PairInput struct {
	KeyPointsI1   keypoints.KeyPoints
	KeyPointsI2   keypoints.KeyPoints
	DescriptorsI1 keypoints.Descriptors
	DescriptorsI2 keypoints.Descriptors

	IntrinsicsI1 camera.PinholeIntrinsics
	IntrinsicsI2 camera.PinholeIntrinsics

	// Image shapes as (height, width) in pixels.
	ShapeI1 [2]int
	ShapeI2 [2]int

	RelativePosePrior *viewgraph.PosePrior

	// Ground truth, for evaluation only.
	GTPoseI1 *spatialmath.Pose
	GTPoseI2 *spatialmath.Pose
	GTMesh   *Mesh
}

// Result is the outcome of verifying one image pair. Rotation and
// TranslationDir are nil when no relative pose could be recovered; the pair
// then contributes no edge downstream. Rotation maps coordinates in view i1's
// frame to view i2's frame and TranslationDir is the unit direction of view
// i1's origin seen from view i2.
type Result struct {
	Rotation                *spatialmath.Rotation
	TranslationDir          *r3.Vector
	VerifiedCorrespondences keypoints.CorrespondenceIndices
	Reports                 map[ReportTag]*Report
}

// Verifier estimates the relative pose of an image pair from its features. A
// returned error is a verifier malfunction; an unrecoverable pair is reported
// through nil estimate fields instead.
type Verifier interface {
	Verify(ctx context.Context, in PairInput) (Result, error)
}

// Package alignment aligns and compares sets of camera rotations and poses
// under the origin and scale ambiguity inherent to monocular reconstruction.
package alignment

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sfm/spatialmath"
)

// AlignRotations removes the origin ambiguity in a set of rotations by
// composing each input rotation with the single corrective rotation
// ref[0] * inverse(input[0]). Order and length are preserved.
func AlignRotations(input, ref []*spatialmath.Rotation) ([]*spatialmath.Rotation, error) {
	if len(input) == 0 || len(ref) == 0 {
		return nil, errors.New("cannot align empty rotation lists")
	}
	if input[0] == nil || ref[0] == nil {
		return nil, errors.New("cannot align rotation lists whose first entry is absent")
	}
	correction := ref[0].Compose(input[0].Invert())
	aligned := make([]*spatialmath.Rotation, len(input))
	for i, r := range input {
		if r == nil {
			continue
		}
		aligned[i] = correction.Compose(r)
	}
	return aligned, nil
}

// EstimateSim3 fits the similarity transform mapping the input poses onto the
// reference poses. It needs at least 2 corresponding, non-nil pose pairs; an
// SE(3) fit would not do since monocular trajectories carry unknown scale.
//
// The rotation is the chordal mean of the per-pair relative rotations; scale
// and translation follow from a least-squares fit of the pose centers.
func EstimateSim3(ref, input []*spatialmath.Pose) (*spatialmath.Similarity, error) {
	if len(ref) != len(input) {
		return nil, errors.Errorf("pose list lengths differ: %d vs %d", len(ref), len(input))
	}
	if len(ref) < 2 {
		return nil, errors.Errorf("similarity alignment needs at least 2 pose pairs, got %d", len(ref))
	}
	for i := range ref {
		if ref[i] == nil || input[i] == nil {
			return nil, errors.Errorf("pose pair %d has an absent pose", i)
		}
	}

	// chordal mean of ref_i * inverse(input_i), projected back onto SO(3)
	sum := mat.NewDense(3, 3, nil)
	for i := range ref {
		rel := ref[i].Rotation().Compose(input[i].Rotation().Invert())
		sum.Add(sum, rel.Matrix())
	}
	rot, err := projectToRotation(sum)
	if err != nil {
		return nil, err
	}

	var muRef, muIn r3.Vector
	n := float64(len(ref))
	for i := range ref {
		muRef = muRef.Add(ref[i].Translation())
		muIn = muIn.Add(input[i].Translation())
	}
	muRef = muRef.Mul(1 / n)
	muIn = muIn.Mul(1 / n)

	var num, denom float64
	for i := range ref {
		da := ref[i].Translation().Sub(muRef)
		db := rot.RotatePoint(input[i].Translation().Sub(muIn))
		num += da.Dot(db)
		denom += db.Norm2()
	}
	if denom < 1e-12 {
		return nil, errors.New("similarity alignment is degenerate: input pose centers coincide")
	}
	scale := num / denom
	if scale <= 0 {
		return nil, errors.Errorf("similarity alignment produced non-positive scale %g", scale)
	}

	translation := muRef.Sub(rot.RotatePoint(muIn).Mul(scale))
	return spatialmath.NewSimilarity(scale, rot, translation)
}

// AlignPosesSim3 estimates the similarity transform from the input trajectory
// onto the reference and applies it to every input pose. Both lists must have
// the same length with at least 2 entries.
func AlignPosesSim3(ref, input []*spatialmath.Pose) ([]*spatialmath.Pose, *spatialmath.Similarity, error) {
	sim, err := EstimateSim3(ref, input)
	if err != nil {
		return nil, nil, err
	}
	aligned := make([]*spatialmath.Pose, len(input))
	for i, p := range input {
		aligned[i] = sim.TransformPose(p)
	}
	return aligned, sim, nil
}

// projectToRotation maps an arbitrary 3x3 matrix onto the nearest rotation
// matrix via SVD, flipping the last singular direction when the determinant
// would be negative.
func projectToRotation(m *mat.Dense) (*spatialmath.Rotation, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize rotation mean")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		d := mat.NewDiagDense(3, []float64{1, 1, -1})
		var tmp mat.Dense
		tmp.Mul(&u, d)
		r.Mul(&tmp, v.T())
	}
	return spatialmath.NewRotationFromMatrix(&r)
}

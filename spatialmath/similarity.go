package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Similarity is a Sim(3) transform: a rotation, a translation, and a uniform
// positive scale. It maps one pose trajectory onto another when the two differ
// by an unknown rigid motion and scale.
type Similarity struct {
	scale float64
	r     Rotation
	t     r3.Vector
}

// NewSimilarity returns a similarity transform with the given scale, rotation
// and translation. The scale must be positive.
func NewSimilarity(scale float64, r *Rotation, t r3.Vector) (*Similarity, error) {
	if scale <= 0 {
		return nil, errors.Errorf("similarity scale must be positive, got %g", scale)
	}
	return &Similarity{scale: scale, r: *r, t: t}, nil
}

// NewZeroSimilarity returns the identity similarity transform.
func NewZeroSimilarity() *Similarity {
	return &Similarity{scale: 1, r: *NewZeroRotation()}
}

// Scale returns the uniform scale of the transform.
func (s *Similarity) Scale() float64 {
	return s.scale
}

// Rotation returns the rotation component of the transform.
func (s *Similarity) Rotation() *Rotation {
	r := s.r
	return &r
}

// Translation returns the translation component of the transform.
func (s *Similarity) Translation() r3.Vector {
	return s.t
}

// TransformPoint applies the similarity to a 3D point: scale*R*p + t.
func (s *Similarity) TransformPoint(pt r3.Vector) r3.Vector {
	return s.r.RotatePoint(pt).Mul(s.scale).Add(s.t)
}

// TransformPose applies the similarity to a pose. The resulting pose has
// rotation R_s * R_p and translation scale*R_s*t_p + t_s, so a trajectory of
// poses moves rigidly with the transform.
func (s *Similarity) TransformPose(p *Pose) *Pose {
	return &Pose{
		r: *s.r.Compose(&p.r),
		t: s.TransformPoint(p.t),
	}
}

// SimilarityAlmostEqual returns whether two similarity transforms agree within
// the given tolerances on scale and translation and an angular tolerance
// (radians) on rotation.
func SimilarityAlmostEqual(a, b *Similarity, scaleTol, rotTolRad, transTol float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	if diff := a.scale - b.scale; diff > scaleTol || diff < -scaleTol {
		return false
	}
	return a.r.AngleTo(&b.r) <= rotTolRad && a.t.Sub(b.t).Norm() <= transTol
}

package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// Pose is a rigid transform: a rotation followed by a translation. A nil *Pose
// denotes an absent pose, e.g. an image whose global pose was unrecoverable.
// Poses are immutable; all operations return new values.
type Pose struct {
	r Rotation
	t r3.Vector
}

// NewPose returns a pose with the given translation and rotation.
func NewPose(t r3.Vector, r *Rotation) *Pose {
	return &Pose{r: *r, t: t}
}

// NewZeroPose returns the identity pose.
func NewZeroPose() *Pose {
	return &Pose{r: *NewZeroRotation()}
}

// NewPoseFromPoint returns a pose with the given translation and no rotation.
func NewPoseFromPoint(t r3.Vector) *Pose {
	return &Pose{r: *NewZeroRotation(), t: t}
}

// Rotation returns the rotation component of the pose.
func (p *Pose) Rotation() *Rotation {
	r := p.r
	return &r
}

// Translation returns the translation component of the pose.
func (p *Pose) Translation() r3.Vector {
	return p.t
}

// Compose returns the pose equal to applying b first, then a.
func Compose(a, b *Pose) *Pose {
	return &Pose{
		r: *a.r.Compose(&b.r),
		t: a.t.Add(a.r.RotatePoint(b.t)),
	}
}

// PoseInverse returns the inverse transform of the given pose.
func PoseInverse(p *Pose) *Pose {
	inv := p.r.Invert()
	return &Pose{
		r: *inv,
		t: inv.RotatePoint(p.t).Mul(-1),
	}
}

// PoseBetween returns the pose of b relative to a, i.e. inverse(a) composed with b.
func PoseBetween(a, b *Pose) *Pose {
	return Compose(PoseInverse(a), b)
}

// TransformPoint applies the pose to a 3D point.
func (p *Pose) TransformPoint(pt r3.Vector) r3.Vector {
	return p.r.RotatePoint(pt).Add(p.t)
}

// PoseAlmostEqual returns whether two poses agree within an angular tolerance
// (radians) on rotation and an absolute tolerance on translation.
func PoseAlmostEqual(a, b *Pose, rotTolRad, transTol float64) bool {
	return a.r.AngleTo(&b.r) <= rotTolRad && a.t.Sub(b.t).Norm() <= transTol
}

func (p *Pose) String() string {
	q := p.r.Quaternion()
	return fmt.Sprintf("pose(t=(%.4g, %.4g, %.4g), q=(%.4g, %.4g, %.4g, %.4g))",
		p.t.X, p.t.Y, p.t.Z, q.Real, q.Imag, q.Jmag, q.Kmag)
}

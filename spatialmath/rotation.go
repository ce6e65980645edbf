// Package spatialmath defines the spatial mathematical operations needed to
// work with camera poses: rotations, rigid transforms, and similarity transforms.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

const radToDeg = 180 / math.Pi

// RadToDeg converts radians to degrees.
func RadToDeg(rad float64) float64 {
	return rad * radToDeg
}

// Rotation is a 3D rotation represented as a unit quaternion. A nil *Rotation
// denotes an absent rotation, e.g. a failed relative pose estimate.
type Rotation struct {
	q quat.Number
}

// NewRotation returns a Rotation from the given quaternion, normalized to a
// unit quaternion.
func NewRotation(q quat.Number) *Rotation {
	return &Rotation{Normalize(q)}
}

// NewZeroRotation returns a rotation representing no rotation.
func NewZeroRotation() *Rotation {
	return &Rotation{quat.Number{Real: 1}}
}

// NewRotationFromAxisAngle returns the rotation of angle theta (radians)
// around the given axis.
func NewRotationFromAxisAngle(axis r3.Vector, theta float64) *Rotation {
	if axis.Norm() == 0 {
		return NewZeroRotation()
	}
	axis = axis.Normalize()
	s := math.Sin(theta / 2)
	return &Rotation{quat.Number{
		Real: math.Cos(theta / 2),
		Imag: s * axis.X,
		Jmag: s * axis.Y,
		Kmag: s * axis.Z,
	}}
}

// NewRotationFromMatrix converts a 3x3 rotation matrix to a Rotation.
func NewRotationFromMatrix(m *mat.Dense) (*Rotation, error) {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return nil, errors.Errorf("rotation matrix must be 3x3, got %dx%d", r, c)
	}
	return NewRotation(matToQuat(m)), nil
}

// Quaternion returns the unit quaternion underlying the rotation.
func (r *Rotation) Quaternion() quat.Number {
	return r.q
}

// Compose returns the rotation equal to applying o first, then r.
func (r *Rotation) Compose(o *Rotation) *Rotation {
	return &Rotation{quat.Mul(r.q, o.q)}
}

// Invert returns the inverse rotation.
func (r *Rotation) Invert() *Rotation {
	return &Rotation{quat.Conj(r.q)}
}

// RotatePoint applies the rotation to a 3D point.
func (r *Rotation) RotatePoint(pt r3.Vector) r3.Vector {
	p := quat.Number{Imag: pt.X, Jmag: pt.Y, Kmag: pt.Z}
	rotated := quat.Mul(quat.Mul(r.q, p), quat.Conj(r.q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}

// Angle returns the magnitude of the rotation angle in radians, in [0, pi].
func (r *Rotation) Angle() float64 {
	return math.Abs(QuatAngle(r.q))
}

// AngleTo returns the geodesic angle in radians between this rotation and another.
func (r *Rotation) AngleTo(o *Rotation) float64 {
	return r.Invert().Compose(o).Angle()
}

// Matrix returns the rotation as a 3x3 matrix.
func (r *Rotation) Matrix() *mat.Dense {
	w, x, y, z := r.q.Real, r.q.Imag, r.q.Jmag, r.q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// RotationAlmostEqual returns whether two rotations are within an angular
// tolerance (radians) of each other.
func RotationAlmostEqual(a, b *Rotation, tolRad float64) bool {
	return a.AngleTo(b) <= tolRad
}

// Norm returns the norm of the imaginary part of the quaternion.
func Norm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// Normalize scales a quaternion to unit length.
func Normalize(q quat.Number) quat.Number {
	length := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if math.Abs(length-1.0) < 1e-10 {
		return q
	}
	if length == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/length, q)
}

// Flip multiplies a quaternion by -1, giving a quaternion representing the
// same orientation in the opposing octant.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

// QuatAngle returns the rotation angle of a quaternion in the same way the
// C++ Eigen library does.
// https://eigen.tuxfamily.org/dox/AngleAxis_8h_source.html
func QuatAngle(q quat.Number) float64 {
	denom := Norm(q)
	angle := 2 * math.Atan2(denom, math.Abs(q.Real))
	if q.Real < 0 {
		angle *= -1
	}
	return angle
}

// QuaternionAlmostEqual returns whether two quaternions represent nearly the
// same orientation, accounting for the double cover.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	diff := quat.Mul(a, quat.Conj(b))
	return math.Abs(QuatAngle(diff)) <= tol
}

// AngleBetweenVectors returns the angle in radians between two nonzero vectors.
func AngleBetweenVectors(a, b r3.Vector) float64 {
	dot := a.Normalize().Dot(b.Normalize())
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return math.Acos(dot)
}

// matToQuat converts a rotation matrix to a quaternion using Shepperd's method,
// branching on the largest diagonal element for numerical stability.
func matToQuat(m *mat.Dense) quat.Number {
	tr := m.At(0, 0) + m.At(1, 1) + m.At(2, 2)
	var q quat.Number
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1.0) * 2
		q = quat.Number{
			Real: 0.25 * s,
			Imag: (m.At(2, 1) - m.At(1, 2)) / s,
			Jmag: (m.At(0, 2) - m.At(2, 0)) / s,
			Kmag: (m.At(1, 0) - m.At(0, 1)) / s,
		}
	case m.At(0, 0) > m.At(1, 1) && m.At(0, 0) > m.At(2, 2):
		s := math.Sqrt(1.0+m.At(0, 0)-m.At(1, 1)-m.At(2, 2)) * 2
		q = quat.Number{
			Real: (m.At(2, 1) - m.At(1, 2)) / s,
			Imag: 0.25 * s,
			Jmag: (m.At(0, 1) + m.At(1, 0)) / s,
			Kmag: (m.At(0, 2) + m.At(2, 0)) / s,
		}
	case m.At(1, 1) > m.At(2, 2):
		s := math.Sqrt(1.0+m.At(1, 1)-m.At(0, 0)-m.At(2, 2)) * 2
		q = quat.Number{
			Real: (m.At(0, 2) - m.At(2, 0)) / s,
			Imag: (m.At(0, 1) + m.At(1, 0)) / s,
			Jmag: 0.25 * s,
			Kmag: (m.At(1, 2) + m.At(2, 1)) / s,
		}
	default:
		s := math.Sqrt(1.0+m.At(2, 2)-m.At(0, 0)-m.At(1, 1)) * 2
		q = quat.Number{
			Real: (m.At(1, 0) - m.At(0, 1)) / s,
			Imag: (m.At(0, 2) + m.At(2, 0)) / s,
			Jmag: (m.At(1, 2) + m.At(2, 1)) / s,
			Kmag: 0.25 * s,
		}
	}
	return q
}

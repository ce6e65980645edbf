package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestRotationRoundTrips(t *testing.T) {
	rot := NewRotationFromAxisAngle(r3.Vector{X: 0, Y: 0, Z: 1}, math.Pi/4)
	back, err := NewRotationFromMatrix(rot.Matrix())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, RotationAlmostEqual(rot, back, 1e-10), test.ShouldBeTrue)

	// random-ish axis
	rot = NewRotationFromAxisAngle(r3.Vector{X: 1, Y: -2, Z: 0.5}, 2.1)
	back, err = NewRotationFromMatrix(rot.Matrix())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, RotationAlmostEqual(rot, back, 1e-10), test.ShouldBeTrue)
}

func TestRotationAngles(t *testing.T) {
	r1 := NewRotationFromAxisAngle(r3.Vector{Z: 1}, math.Pi/3)
	r2 := NewRotationFromAxisAngle(r3.Vector{Z: 1}, math.Pi/6)
	test.That(t, r1.AngleTo(r2), test.ShouldAlmostEqual, math.Pi/6, 1e-10)
	test.That(t, r1.Angle(), test.ShouldAlmostEqual, math.Pi/3, 1e-10)
	test.That(t, NewZeroRotation().Angle(), test.ShouldAlmostEqual, 0)
}

func TestQuaternionAlmostEqualDoubleCover(t *testing.T) {
	q := NewRotationFromAxisAngle(r3.Vector{X: 1}, 1.0).Quaternion()
	test.That(t, QuaternionAlmostEqual(q, Flip(q), 1e-10), test.ShouldBeTrue)
}

func TestPoseComposeInverse(t *testing.T) {
	p1 := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, NewRotationFromAxisAngle(r3.Vector{Z: 1}, math.Pi/2))
	p2 := NewPose(r3.Vector{X: -1, Y: 0, Z: 2}, NewRotationFromAxisAngle(r3.Vector{X: 1}, math.Pi/3))

	composed := Compose(p1, p2)
	back := Compose(composed, PoseInverse(p2))
	test.That(t, PoseAlmostEqual(back, p1, 1e-10, 1e-10), test.ShouldBeTrue)

	between := PoseBetween(p1, composed)
	test.That(t, PoseAlmostEqual(between, p2, 1e-10, 1e-10), test.ShouldBeTrue)
}

func TestPoseTransformPoint(t *testing.T) {
	p := NewPose(r3.Vector{X: 1}, NewRotationFromAxisAngle(r3.Vector{Z: 1}, math.Pi/2))
	got := p.TransformPoint(r3.Vector{X: 1})
	test.That(t, got.X, test.ShouldAlmostEqual, 1, 1e-10)
	test.That(t, got.Y, test.ShouldAlmostEqual, 1, 1e-10)
	test.That(t, got.Z, test.ShouldAlmostEqual, 0, 1e-10)
}

func TestSimilarityTransformPose(t *testing.T) {
	sim, err := NewSimilarity(2.0, NewRotationFromAxisAngle(r3.Vector{Z: 1}, math.Pi/2), r3.Vector{X: 1})
	test.That(t, err, test.ShouldBeNil)

	p := NewPoseFromPoint(r3.Vector{X: 1})
	got := sim.TransformPose(p)
	test.That(t, got.Translation().X, test.ShouldAlmostEqual, 1, 1e-10)
	test.That(t, got.Translation().Y, test.ShouldAlmostEqual, 2, 1e-10)

	_, err = NewSimilarity(0, NewZeroRotation(), r3.Vector{})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewSimilarity(-1, NewZeroRotation(), r3.Vector{})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestZeroSimilarityIsIdentity(t *testing.T) {
	sim := NewZeroSimilarity()
	p := NewPose(r3.Vector{X: 4, Y: -2, Z: 9}, NewRotationFromAxisAngle(r3.Vector{Y: 1}, 0.7))
	test.That(t, PoseAlmostEqual(sim.TransformPose(p), p, 1e-12, 1e-12), test.ShouldBeTrue)
}

func TestAngleBetweenVectors(t *testing.T) {
	test.That(t, AngleBetweenVectors(r3.Vector{X: 1}, r3.Vector{Y: 1}), test.ShouldAlmostEqual, math.Pi/2, 1e-12)
	test.That(t, AngleBetweenVectors(r3.Vector{X: 2}, r3.Vector{X: 5}), test.ShouldAlmostEqual, 0, 1e-12)
}

func TestNormalize(t *testing.T) {
	q := Normalize(quat.Number{Real: 2})
	test.That(t, q.Real, test.ShouldAlmostEqual, 1)
	q = Normalize(quat.Number{})
	test.That(t, q.Real, test.ShouldAlmostEqual, 1)
}

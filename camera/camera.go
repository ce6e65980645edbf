package camera

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/sfm/spatialmath"
)

// Camera owns a global pose and pinhole intrinsics. Cameras are immutable:
// refinement stages replace them wholesale rather than mutating in place.
type Camera struct {
	pose       spatialmath.Pose
	intrinsics PinholeIntrinsics
}

// NewCamera returns a camera at the given world pose with the given intrinsics.
func NewCamera(pose *spatialmath.Pose, intrinsics *PinholeIntrinsics) *Camera {
	return &Camera{pose: *pose, intrinsics: *intrinsics}
}

// Pose returns the camera's pose in the world frame.
func (c *Camera) Pose() *spatialmath.Pose {
	p := c.pose
	return &p
}

// Intrinsics returns the camera's pinhole intrinsics.
func (c *Camera) Intrinsics() *PinholeIntrinsics {
	i := c.intrinsics
	return &i
}

// Project projects a world point into the camera's image plane. It errors when
// the point lies behind the camera.
func (c *Camera) Project(worldPt r3.Vector) (r2.Point, error) {
	camPt := spatialmath.PoseInverse(&c.pose).TransformPoint(worldPt)
	if camPt.Z <= 0 {
		return r2.Point{}, errors.Errorf("point %v is behind the camera", worldPt)
	}
	x, y := c.intrinsics.PointToPixel(camPt.X, camPt.Y, camPt.Z)
	return r2.Point{X: x, Y: y}, nil
}

// ReprojectionError returns the pixel distance between the projection of a
// world point and an observed pixel measurement.
func (c *Camera) ReprojectionError(worldPt r3.Vector, observed r2.Point) (float64, error) {
	projected, err := c.Project(worldPt)
	if err != nil {
		return 0, err
	}
	return projected.Sub(observed).Norm(), nil
}

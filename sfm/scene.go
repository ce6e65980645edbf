// Package sfm orchestrates a structure-from-motion reconstruction as a
// deferred computation graph: per-image feature extraction, per-pair relative
// pose verification, view-graph pruning, global pose initialization, data
// association, and bundle adjustment, with metrics and persistence joined in
// as side effects.
package sfm

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"go.viam.com/sfm/alignment"
	"go.viam.com/sfm/camera"
	"go.viam.com/sfm/spatialmath"
)

// Image is one input frame. Gray is the row-major 8-bit intensity buffer;
// Shape is (height, width) in pixels.
type Image struct {
	FileName string
	Shape    [2]int
	Gray     []uint8
}

// Measurement is one 2D observation of a track in a camera.
type Measurement struct {
	CamIdx int
	Px     r2.Point
}

// Track is a triangulated 3D point with the image measurements supporting it.
type Track struct {
	Point        r3.Vector
	Measurements []Measurement
}

// SceneData is a reconstruction estimate: cameras for the recoverable image
// indices plus triangulated tracks. Values are immutable; each pipeline stage
// produces a new SceneData rather than mutating its input.
type SceneData struct {
	numImages int
	cameras   map[int]*camera.Camera
	tracks    []Track
}

// NewSceneData returns a scene over numImages image indices. Indices missing
// from cameras are unrecoverable images.
func NewSceneData(numImages int, cameras map[int]*camera.Camera, tracks []Track) *SceneData {
	cams := make(map[int]*camera.Camera, len(cameras))
	for i, c := range cameras {
		if c == nil {
			continue
		}
		cams[i] = c
	}
	trks := make([]Track, len(tracks))
	copy(trks, tracks)
	return &SceneData{numImages: numImages, cameras: cams, tracks: trks}
}

// NumImages returns the number of image indices the scene spans.
func (s *SceneData) NumImages() int { return s.numImages }

// NumTracks returns the number of triangulated tracks.
func (s *SceneData) NumTracks() int { return len(s.tracks) }

// Camera returns the camera at an image index, or nil when the image was
// unrecoverable.
func (s *SceneData) Camera(i int) *camera.Camera { return s.cameras[i] }

// Cameras returns a copy of the index-to-camera mapping.
func (s *SceneData) Cameras() map[int]*camera.Camera {
	out := make(map[int]*camera.Camera, len(s.cameras))
	for i, c := range s.cameras {
		out[i] = c
	}
	return out
}

// Tracks returns a copy of the scene's tracks.
func (s *SceneData) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// PoseList returns the per-index global poses, nil where no camera exists.
func (s *SceneData) PoseList() []*spatialmath.Pose {
	out := make([]*spatialmath.Pose, s.numImages)
	for i, c := range s.cameras {
		if i < 0 || i >= s.numImages {
			continue
		}
		out[i] = c.Pose()
	}
	return out
}

// AlignViaSim3ToPoses returns a new scene whose cameras and tracks are mapped
// by the similarity transform that best aligns this scene's poses onto
// refPoses. When fewer than 2 indices carry a pose in both lists, the scene
// is returned unchanged.
func (s *SceneData) AlignViaSim3ToPoses(refPoses []*spatialmath.Pose) *SceneData {
	estPoses := s.PoseList()
	var refKept, estKept []*spatialmath.Pose
	for i := range estPoses {
		if i >= len(refPoses) || refPoses[i] == nil || estPoses[i] == nil {
			continue
		}
		refKept = append(refKept, refPoses[i])
		estKept = append(estKept, estPoses[i])
	}
	if len(refKept) < 2 {
		return s
	}
	sim, err := alignment.EstimateSim3(refKept, estKept)
	if err != nil {
		return s
	}

	cams := make(map[int]*camera.Camera, len(s.cameras))
	for i, c := range s.cameras {
		cams[i] = camera.NewCamera(sim.TransformPose(c.Pose()), c.Intrinsics())
	}
	trks := make([]Track, len(s.tracks))
	for i, trk := range s.tracks {
		moved := trk
		moved.Point = sim.TransformPoint(trk.Point)
		trks[i] = moved
	}
	return &SceneData{numImages: s.numImages, cameras: cams, tracks: trks}
}

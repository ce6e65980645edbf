package sfm

import (
	"go.viam.com/sfm/alignment"
	"go.viam.com/sfm/camera"
	"go.viam.com/sfm/metric"
	"go.viam.com/sfm/spatialmath"
)

// initCameras instantiates a camera for every image index with a recovered
// global pose. Indices with nil poses or missing intrinsics get no camera.
func initCameras(poses []*spatialmath.Pose, intrinsics []*camera.PinholeIntrinsics) map[int]*camera.Camera {
	cams := make(map[int]*camera.Camera)
	for i, pose := range poses {
		if pose == nil || i >= len(intrinsics) || intrinsics[i] == nil {
			continue
		}
		cams[i] = camera.NewCamera(pose, intrinsics[i])
	}
	return cams
}

// gtCamerasFromPoses builds ground-truth cameras for images with a known pose.
func gtCamerasFromPoses(gtPoses []*spatialmath.Pose, intrinsics []*camera.PinholeIntrinsics) map[int]*camera.Camera {
	return initCameras(gtPoses, intrinsics)
}

// poseErrorMetrics evaluates estimated poses against ground truth after a
// similarity alignment, producing per-camera angular and translation error
// distributions. Alignment is evaluation-only; estimates are not modified.
func poseErrorMetrics(name string, gtPoses, estPoses []*spatialmath.Pose) *metric.Group {
	var gtKept, estKept []*spatialmath.Pose
	for i := range estPoses {
		if i >= len(gtPoses) || gtPoses[i] == nil || estPoses[i] == nil {
			continue
		}
		gtKept = append(gtKept, gtPoses[i])
		estKept = append(estKept, estPoses[i])
	}

	g := metric.NewGroup(name,
		metric.NewScalar("num_estimated_poses", float64(countPoses(estPoses))),
		metric.NewScalar("num_poses_compared", float64(len(estKept))),
	)
	if len(estKept) < 2 {
		return g
	}
	aligned, _, err := alignment.AlignPosesSim3(gtKept, estKept)
	if err != nil {
		return g
	}

	rotErrors := make([]float64, 0, len(aligned))
	transErrors := make([]float64, 0, len(aligned))
	for i := range aligned {
		if aligned[i] == nil {
			continue
		}
		rotErrors = append(rotErrors, spatialmath.RadToDeg(aligned[i].Rotation().AngleTo(gtKept[i].Rotation())))
		transErrors = append(transErrors, aligned[i].Translation().Sub(gtKept[i].Translation()).Norm())
	}
	g.Add(metric.NewDistribution("rotation_errors_deg", rotErrors))
	g.Add(metric.NewDistribution("translation_errors", transErrors))
	return g
}

func countPoses(poses []*spatialmath.Pose) int {
	n := 0
	for _, p := range poses {
		if p != nil {
			n++
		}
	}
	return n
}

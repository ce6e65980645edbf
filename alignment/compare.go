package alignment

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/sfm/spatialmath"
)

// rotationCompareTol is the fixed angular tolerance (radians) for
// CompareRotations. Looser than pose comparison since no scale or
// translation is involved.
const rotationCompareTol = 0.1

// relCloseAtol guards the relative translation check against zero components.
const relCloseAtol = 1e-8

// ComparePoses compares two equal-length global pose lists under origin and
// scale ambiguity. The first list is the reference: the second is brought
// onto its frame with a Sim(3) alignment, then every retained index must
// agree within rotThresh (radians, geodesic) on rotation and within the
// relative tolerance transThresh on translation.
//
// Both lists must have nil entries at exactly the same indices and at least 2
// non-nil entries; otherwise the comparison fails without raising.
func ComparePoses(ref, other []*spatialmath.Pose, rotThresh, transThresh float64) bool {
	if len(ref) != len(other) {
		return false
	}
	refValid := validIndices(ref)
	otherValid := validIndices(other)
	if !sameSupport(refValid, otherValid) {
		return false
	}
	if len(refValid) < 2 {
		// too few entries for a meaningful comparison
		return false
	}

	refKept := make([]*spatialmath.Pose, 0, len(refValid))
	otherKept := make([]*spatialmath.Pose, 0, len(refValid))
	for _, i := range refValid {
		refKept = append(refKept, ref[i])
		otherKept = append(otherKept, other[i])
	}

	aligned, _, err := AlignPosesSim3(refKept, otherKept)
	if err != nil {
		return false
	}

	for i := range refKept {
		if refKept[i].Rotation().AngleTo(aligned[i].Rotation()) > rotThresh {
			return false
		}
		if !translationsRelClose(refKept[i].Translation(), aligned[i].Translation(), transThresh) {
			return false
		}
	}
	return true
}

// CompareRotations compares two equal-length global rotation lists considering
// the origin ambiguous, with the same support-matching discipline as
// ComparePoses. The first list is aligned to the second and agreement is
// checked within a fixed angular tolerance.
func CompareRotations(a, b []*spatialmath.Rotation) bool {
	if len(a) != len(b) {
		return false
	}
	aValid := validRotationIndices(a)
	bValid := validRotationIndices(b)
	if !sameSupport(aValid, bValid) {
		return false
	}
	if len(aValid) < 2 {
		return false
	}

	aKept := make([]*spatialmath.Rotation, 0, len(aValid))
	bKept := make([]*spatialmath.Rotation, 0, len(aValid))
	for _, i := range aValid {
		aKept = append(aKept, a[i])
		bKept = append(bKept, b[i])
	}

	aligned, err := AlignRotations(aKept, bKept)
	if err != nil {
		return false
	}
	for i := range aligned {
		if aligned[i].AngleTo(bKept[i]) > rotationCompareTol {
			return false
		}
	}
	return true
}

// RelativeRotationAngleDeg returns the geodesic angle in degrees between two
// rotations, or nil when either is absent.
func RelativeRotationAngleDeg(a, b *spatialmath.Rotation) *float64 {
	if a == nil || b == nil {
		return nil
	}
	deg := spatialmath.RadToDeg(a.AngleTo(b))
	return &deg
}

// RelativeDirectionAngleDeg returns the angle in degrees between two unit
// translation directions, or nil when either is absent.
func RelativeDirectionAngleDeg(u1, u2 *r3.Vector) *float64 {
	if u1 == nil || u2 == nil {
		return nil
	}
	deg := spatialmath.RadToDeg(spatialmath.AngleBetweenVectors(*u1, *u2))
	return &deg
}

// TranslationToDirectionAngleDeg returns the angle in degrees between a
// measured unit translation direction from pose2 to pose1 and the direction
// implied by the two global poses, or nil when any input is absent.
func TranslationToDirectionAngleDeg(dir *r3.Vector, pose2, pose1 *spatialmath.Pose) *float64 {
	if dir == nil || pose2 == nil || pose1 == nil {
		return nil
	}
	rel := spatialmath.PoseBetween(pose2, pose1)
	t := rel.Translation()
	if t.Norm() == 0 {
		return nil
	}
	return RelativeDirectionAngleDeg(dir, &t)
}

func validIndices(poses []*spatialmath.Pose) []int {
	var idx []int
	for i, p := range poses {
		if p != nil {
			idx = append(idx, i)
		}
	}
	return idx
}

func validRotationIndices(rotations []*spatialmath.Rotation) []int {
	var idx []int
	for i, r := range rotations {
		if r != nil {
			idx = append(idx, i)
		}
	}
	return idx
}

func sameSupport(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func translationsRelClose(a, b r3.Vector, rtol float64) bool {
	for _, pair := range [][2]float64{{a.X, b.X}, {a.Y, b.Y}, {a.Z, b.Z}} {
		if math.Abs(pair[0]-pair[1]) > relCloseAtol+rtol*math.Abs(pair[1]) {
			return false
		}
	}
	return true
}

// Package keypoints holds the image feature types flowing between feature
// extraction and two-view verification: keypoint locations, binary
// descriptors, and matched correspondence indices.
package keypoints

import (
	"math/bits"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

type (
	// KeyPoint is the subpixel image location of a detected feature.
	KeyPoint = r2.Point
	// KeyPoints is a set of keypoint locations for one image.
	KeyPoints []r2.Point
)

// Descriptor is a binary feature descriptor packed into 64-bit words.
type Descriptor []uint64

// Descriptors is a set of descriptors, parallel to a KeyPoints slice.
type Descriptors []Descriptor

// CorrespondenceIndices are matched keypoint index pairs between two images;
// entry k pairs keypoint [k][0] of the first image with [k][1] of the second.
type CorrespondenceIndices [][2]int

// HammingDistance returns the number of differing bits between two descriptors
// of equal length.
func HammingDistance(d1, d2 Descriptor) (int, error) {
	if len(d1) != len(d2) {
		return 0, errors.Errorf("descriptor lengths differ: %d vs %d", len(d1), len(d2))
	}
	dist := 0
	for i := range d1 {
		dist += bits.OnesCount64(d1[i] ^ d2[i])
	}
	return dist, nil
}

// GetMatchingKeyPoints resolves correspondence indices into the two matched
// keypoint location slices.
func GetMatchingKeyPoints(corr CorrespondenceIndices, kps1, kps2 KeyPoints) (KeyPoints, KeyPoints, error) {
	matched1 := make(KeyPoints, len(corr))
	matched2 := make(KeyPoints, len(corr))
	for i, pair := range corr {
		if pair[0] < 0 || pair[0] >= len(kps1) {
			return nil, nil, errors.Errorf("match %d references keypoint %d outside first set of size %d", i, pair[0], len(kps1))
		}
		if pair[1] < 0 || pair[1] >= len(kps2) {
			return nil, nil, errors.Errorf("match %d references keypoint %d outside second set of size %d", i, pair[1], len(kps2))
		}
		matched1[i] = kps1[pair[0]]
		matched2[i] = kps2[pair[1]]
	}
	return matched1, matched2, nil
}

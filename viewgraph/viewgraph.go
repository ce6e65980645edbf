// Package viewgraph models the undirected graph of image pairs with relative
// pose information, and prunes it to the subset safe to feed into global pose
// averaging.
package viewgraph

import (
	"fmt"

	"go.viam.com/sfm/spatialmath"
)

// PairKey identifies the relationship between two images by index, with I1 < I2.
type PairKey struct {
	I1 int
	I2 int
}

// NewPairKey returns the pair key for two image indices, ordering them so the
// smaller index comes first.
func NewPairKey(i1, i2 int) PairKey {
	if i2 < i1 {
		i1, i2 = i2, i1
	}
	return PairKey{I1: i1, I2: i2}
}

func (k PairKey) String() string {
	return fmt.Sprintf("(%d, %d)", k.I1, k.I2)
}

// PosePriorType says how strongly a pose prior constrains the estimate.
type PosePriorType int

const (
	// SoftConstraint priors guide the optimization but may be overruled.
	SoftConstraint PosePriorType = iota
	// HardConstraint priors are externally known to be exact.
	HardConstraint
)

// PosePrior is an externally supplied constraint on a pose, absolute or
// relative depending on where it is used.
type PosePrior struct {
	Type  PosePriorType
	Value *spatialmath.Pose
	// Covariance holds the diagonal of the 6-DOF uncertainty, rotation first.
	Covariance [6]float64
}

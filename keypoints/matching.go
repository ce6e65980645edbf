package keypoints

import (
	"github.com/edaniels/golog"
)

// MatchingConfig contains the parameters for matching descriptors.
type MatchingConfig struct {
	DoCrossCheck bool `json:"do_cross_check"`
	MaxDist      int  `json:"max_dist"`
}

// MatchDescriptors matches two descriptor sets by smallest Hamming distance,
// optionally cross-checked, returning correspondence indices into the two
// sets. Pairs whose distance exceeds MaxDist (when positive) are discarded.
func MatchDescriptors(desc1, desc2 Descriptors, cfg *MatchingConfig, logger golog.Logger) CorrespondenceIndices {
	if len(desc1) == 0 || len(desc2) == 0 {
		return nil
	}
	best12, dist12 := nearestNeighbors(desc1, desc2, logger)
	if best12 == nil {
		return nil
	}
	var best21 []int
	if cfg.DoCrossCheck {
		best21, _ = nearestNeighbors(desc2, desc1, logger)
		if best21 == nil {
			return nil
		}
	}

	corr := make(CorrespondenceIndices, 0, len(desc1))
	for i1, i2 := range best12 {
		if cfg.DoCrossCheck && best21[i2] != i1 {
			continue
		}
		if cfg.MaxDist > 0 && dist12[i1] >= cfg.MaxDist {
			continue
		}
		corr = append(corr, [2]int{i1, i2})
	}
	return corr
}

// nearestNeighbors returns, for each descriptor in from, the index of its
// closest descriptor in to, along with the distances.
func nearestNeighbors(from, to Descriptors, logger golog.Logger) ([]int, []int) {
	best := make([]int, len(from))
	dists := make([]int, len(from))
	for i, d1 := range from {
		minDist, minIdx := -1, -1
		for j, d2 := range to {
			dist, err := HammingDistance(d1, d2)
			if err != nil {
				logger.Debugw("skipping descriptor pair", "error", err)
				continue
			}
			if minIdx == -1 || dist < minDist {
				minDist, minIdx = dist, j
			}
		}
		if minIdx == -1 {
			return nil, nil
		}
		best[i] = minIdx
		dists[i] = minDist
	}
	return best, dists
}

package keypoints

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"go.viam.com/test"
)

func TestHammingDistance(t *testing.T) {
	d1 := Descriptor{0b1010, 0}
	d2 := Descriptor{0b1001, 1}
	dist, err := HammingDistance(d1, d2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldEqual, 3)

	_, err = HammingDistance(d1, Descriptor{0})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMatchDescriptors(t *testing.T) {
	logger := golog.NewTestLogger(t)
	desc1 := Descriptors{{0b1111}, {0b0000}, {0b1100}}
	// same descriptors, permuted
	desc2 := Descriptors{{0b0000}, {0b1100}, {0b1111}}

	corr := MatchDescriptors(desc1, desc2, &MatchingConfig{DoCrossCheck: true}, logger)
	test.That(t, corr, test.ShouldResemble, CorrespondenceIndices{{0, 2}, {1, 0}, {2, 1}})

	// max distance gate removes everything when descriptors are far apart
	far := Descriptors{{0xFFFFFFFFFFFFFFFF}}
	corr = MatchDescriptors(far, Descriptors{{0}}, &MatchingConfig{MaxDist: 8}, logger)
	test.That(t, corr, test.ShouldHaveLength, 0)

	corr = MatchDescriptors(nil, desc2, &MatchingConfig{}, logger)
	test.That(t, corr, test.ShouldBeNil)
}

func TestMatchDescriptorsCrossCheck(t *testing.T) {
	logger := golog.NewTestLogger(t)
	// two descriptors in the first set both closest to the same one in the
	// second; cross-checking keeps only the mutual best.
	desc1 := Descriptors{{0b1111}, {0b1110}}
	desc2 := Descriptors{{0b1111}}

	corr := MatchDescriptors(desc1, desc2, &MatchingConfig{DoCrossCheck: true}, logger)
	test.That(t, corr, test.ShouldResemble, CorrespondenceIndices{{0, 0}})

	corr = MatchDescriptors(desc1, desc2, &MatchingConfig{}, logger)
	test.That(t, corr, test.ShouldHaveLength, 2)
}

func TestGetMatchingKeyPoints(t *testing.T) {
	kps1 := KeyPoints{{X: 1, Y: 2}, {X: 3, Y: 4}}
	kps2 := KeyPoints{{X: 5, Y: 6}}
	corr := CorrespondenceIndices{{1, 0}}

	m1, m2, err := GetMatchingKeyPoints(corr, kps1, kps2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m1, test.ShouldResemble, KeyPoints{r2.Point{X: 3, Y: 4}})
	test.That(t, m2, test.ShouldResemble, KeyPoints{r2.Point{X: 5, Y: 6}})

	_, _, err = GetMatchingKeyPoints(CorrespondenceIndices{{2, 0}}, kps1, kps2)
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = GetMatchingKeyPoints(CorrespondenceIndices{{0, 3}}, kps1, kps2)
	test.That(t, err, test.ShouldNotBeNil)
}

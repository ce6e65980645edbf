package twoview

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/sfm/alignment"
	"go.viam.com/sfm/camera"
	"go.viam.com/sfm/keypoints"
	"go.viam.com/sfm/spatialmath"
)

// minFundamentalMatches is the smallest correspondence set the 8-point
// algorithm accepts.
const minFundamentalMatches = 8

// EpipolarVerifier recovers a relative pose from descriptor matches with the
// normalized 8-point algorithm: fundamental matrix, essential matrix, and
// cheirality disambiguation of the four decomposition candidates. Inliers are
// classified by symmetric epipolar distance in pixels.
type EpipolarVerifier struct {
	matchCfg         keypoints.MatchingConfig
	epipolarThreshPx float64
	logger           golog.Logger
}

// NewEpipolarVerifier returns a verifier classifying inliers at the given
// epipolar distance threshold in pixels.
func NewEpipolarVerifier(matchCfg keypoints.MatchingConfig, epipolarThreshPx float64, logger golog.Logger) *EpipolarVerifier {
	return &EpipolarVerifier{
		matchCfg:         matchCfg,
		epipolarThreshPx: epipolarThreshPx,
		logger:           logger,
	}
}

// Verify implements Verifier. A pair whose geometry cannot be recovered
// yields nil estimates and a report recording the failure, not an error.
func (v *EpipolarVerifier) Verify(ctx context.Context, in PairInput) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	matches := keypoints.MatchDescriptors(in.DescriptorsI1, in.DescriptorsI2, &v.matchCfg, v.logger)
	pts1, pts2, err := keypoints.GetMatchingKeyPoints(matches, in.KeyPointsI1, in.KeyPointsI2)
	if err != nil {
		return Result{}, errors.Wrap(err, "matches reference out-of-range keypoints")
	}
	if len(matches) < minFundamentalMatches {
		v.logger.Debugw("too few matches for pose recovery", "num_matches", len(matches))
		return v.unrecoverable(in, len(matches)), nil
	}

	f, err := fundamentalFromMatches(pts1, pts2)
	if err != nil {
		v.logger.Debugw("fundamental matrix estimation failed", "error", err)
		return v.unrecoverable(in, len(matches)), nil
	}
	e, err := essentialFromFundamental(&in.IntrinsicsI1, &in.IntrinsicsI2, f)
	if err != nil {
		v.logger.Debugw("essential matrix computation failed", "error", err)
		return v.unrecoverable(in, len(matches)), nil
	}

	rays1 := normalizedRays(&in.IntrinsicsI1, pts1)
	rays2 := normalizedRays(&in.IntrinsicsI2, pts2)
	rot, dir, err := recoverPose(e, rays1, rays2)
	if err != nil {
		v.logger.Debugw("cheirality disambiguation failed", "error", err)
		return v.unrecoverable(in, len(matches)), nil
	}

	inlierIdx := make([]int, 0, len(matches))
	verified := make(keypoints.CorrespondenceIndices, 0, len(matches))
	for i := range matches {
		if epipolarDistance(f, pts1[i], pts2[i]) <= v.epipolarThreshPx {
			inlierIdx = append(inlierIdx, i)
			verified = append(verified, matches[i])
		}
	}

	allIdx := make([]int, len(matches))
	for i := range allIdx {
		allIdx[i] = i
	}
	preBA := v.buildReport(in, pts1, pts2, allIdx, len(inlierIdx), rot, dir)
	postISP := v.buildReport(in, pts1, pts2, inlierIdx, len(inlierIdx), rot, dir)
	postISP.NumMatches = len(inlierIdx)

	return Result{
		Rotation:                rot,
		TranslationDir:          dir,
		VerifiedCorrespondences: verified,
		Reports: map[ReportTag]*Report{
			TagPreBA:   preBA,
			TagPostISP: postISP,
		},
	}, nil
}

// unrecoverable reports a pair with no usable relative pose estimate.
func (v *EpipolarVerifier) unrecoverable(in PairInput, numMatches int) Result {
	return Result{
		VerifiedCorrespondences: keypoints.CorrespondenceIndices{},
		Reports: map[ReportTag]*Report{
			TagPreBA: {NumMatches: numMatches},
		},
	}
}

func (v *EpipolarVerifier) buildReport(
	in PairInput,
	pts1, pts2 keypoints.KeyPoints,
	subset []int,
	numEstInliers int,
	rot *spatialmath.Rotation,
	dir *r3.Vector,
) *Report {
	report := &Report{
		NumMatches:         len(pts1),
		NumInliersEstModel: numEstInliers,
	}
	if len(pts1) > 0 {
		ratio := float64(numEstInliers) / float64(len(pts1))
		report.InlierRatioEstModel = &ratio
	}
	if in.GTPoseI1 == nil || in.GTPoseI2 == nil {
		return report
	}

	// Ground-truth relative pose of view i1 expressed in view i2's frame.
	gtRel := spatialmath.PoseBetween(in.GTPoseI2, in.GTPoseI1)
	gtRot := gtRel.Rotation()
	gtTrans := gtRel.Translation()

	report.RotationAngularErrorDeg = alignment.RelativeRotationAngleDeg(rot, gtRot)
	if dir != nil && gtTrans.Norm() > 0 {
		gtDir := gtTrans.Normalize()
		report.TranslationAngularErrorDeg = alignment.RelativeDirectionAngleDeg(dir, &gtDir)
	}

	gtF, err := fundamentalFromPose(&in.IntrinsicsI1, &in.IntrinsicsI2, gtRot, gtTrans)
	if err != nil {
		v.logger.Debugw("ground-truth fundamental matrix unavailable", "error", err)
		return report
	}
	numGTInliers := 0
	inlierErrSum, outlierErrSum := 0.0, 0.0
	for _, i := range subset {
		d := epipolarDistance(gtF, pts1[i], pts2[i])
		if d <= v.epipolarThreshPx {
			numGTInliers++
			inlierErrSum += d
		} else {
			outlierErrSum += d
		}
	}
	report.NumInliersGTModel = &numGTInliers
	if len(subset) > 0 {
		ratio := float64(numGTInliers) / float64(len(subset))
		report.InlierRatioGTModel = &ratio
	}
	if numGTInliers > 0 {
		avg := inlierErrSum / float64(numGTInliers)
		report.InlierAvgEpipolarErrGT = &avg
	}
	if numOutliers := len(subset) - numGTInliers; numOutliers > 0 {
		avg := outlierErrSum / float64(numOutliers)
		report.OutlierAvgEpipolarErrGT = &avg
	}
	return report
}

// fundamentalFromMatches estimates the fundamental matrix with the normalized
// 8-point algorithm (Multiple View Geometry, Alg 11.1).
func fundamentalFromMatches(pts1, pts2 keypoints.KeyPoints) (*mat.Dense, error) {
	if len(pts1) != len(pts2) {
		return nil, errors.New("point sets must have the same number of elements")
	}
	if len(pts1) < minFundamentalMatches {
		return nil, errors.Errorf("need at least %d correspondences", minFundamentalMatches)
	}
	norm1, t1, err := normalizePoints(pts1)
	if err != nil {
		return nil, err
	}
	norm2, t2, err := normalizePoints(pts2)
	if err != nil {
		return nil, err
	}

	a := mat.NewDense(len(norm1), 9, nil)
	for i := range norm1 {
		p1, p2 := norm1[i], norm2[i]
		a.SetRow(i, []float64{
			p2.X * p1.X, p2.X * p1.Y, p2.X,
			p2.Y * p1.X, p2.Y * p1.Y, p2.Y,
			p1.X, p1.Y, 1,
		})
	}

	svd, err := factorizeSVD(a)
	if err != nil {
		return nil, err
	}
	var vMat mat.Dense
	svd.VTo(&vMat)
	last := vMat.ColView(8)
	fData := make([]float64, 9)
	for i := range fData {
		fData[i] = last.AtVec(i)
	}
	f := mat.NewDense(3, 3, fData)

	f, err = enforceRankTwo(f)
	if err != nil {
		return nil, err
	}

	// undo normalization: T2^T F T1
	var out mat.Dense
	out.Mul(t2.T(), f)
	out.Mul(mat.DenseCopyOf(&out), t1)
	if scale := out.At(2, 2); scale != 0 {
		out.Scale(1/scale, &out)
	}
	return &out, nil
}

// normalizePoints translates points to their centroid and scales so the mean
// distance from it is sqrt(2), returning the transformed points and the 3x3
// transform applied.
func normalizePoints(pts keypoints.KeyPoints) (keypoints.KeyPoints, *mat.Dense, error) {
	n := float64(len(pts))
	var mu r2.Point
	for _, pt := range pts {
		mu.X += pt.X
		mu.Y += pt.Y
	}
	mu = mu.Mul(1 / n)
	d := 0.0
	for _, pt := range pts {
		d += math.Hypot(pt.X-mu.X, pt.Y-mu.Y) / n
	}
	if d == 0 {
		return nil, nil, errors.New("degenerate point set: all points coincide")
	}
	scale := math.Sqrt2 / d

	t := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	out := make(keypoints.KeyPoints, len(pts))
	for i, pt := range pts {
		out[i] = r2.Point{X: scale * (pt.X - mu.X), Y: scale * (pt.Y - mu.Y)}
	}
	return out, t, nil
}

// essentialFromFundamental lifts F to the essential matrix K2^T F K1 and
// enforces its rank-2 constraint.
func essentialFromFundamental(k1, k2 *camera.PinholeIntrinsics, f *mat.Dense) (*mat.Dense, error) {
	var e mat.Dense
	e.Mul(k2.CameraMatrix().T(), f)
	e.Mul(mat.DenseCopyOf(&e), k1.CameraMatrix())
	return enforceRankTwo(&e)
}

// fundamentalFromPose builds the fundamental matrix implied by a known
// relative pose: K2^{-T} [t]x R K1^{-1}.
func fundamentalFromPose(k1, k2 *camera.PinholeIntrinsics, rot *spatialmath.Rotation, trans r3.Vector) (*mat.Dense, error) {
	var e mat.Dense
	e.Mul(crossProductMatrix(trans), rot.Matrix())

	var k1Inv, k2Inv mat.Dense
	if err := k1Inv.Inverse(k1.CameraMatrix()); err != nil {
		return nil, errors.Wrap(err, "singular intrinsics for first view")
	}
	if err := k2Inv.Inverse(k2.CameraMatrix()); err != nil {
		return nil, errors.Wrap(err, "singular intrinsics for second view")
	}
	var f mat.Dense
	f.Mul(k2Inv.T(), &e)
	f.Mul(mat.DenseCopyOf(&f), &k1Inv)
	return &f, nil
}

// recoverPose decomposes the essential matrix into its four candidate
// (rotation, translation) pairs and picks the one placing the most
// triangulated points in front of both cameras. rays are unit-plane
// homogeneous coordinates of the matched points.
func recoverPose(e *mat.Dense, rays1, rays2 []r3.Vector) (*spatialmath.Rotation, *r3.Vector, error) {
	svd, err := factorizeSVD(e)
	if err != nil {
		return nil, nil, err
	}
	var u, vt mat.Dense
	svd.UTo(&u)
	var vv mat.Dense
	svd.VTo(&vv)
	vt.CloneFrom(vv.T())

	if mat.Det(&u) < 0 {
		u.Scale(-1, &u)
	}
	if mat.Det(&vt) < 0 {
		vt.Scale(-1, &vt)
	}

	w := mat.NewDense(3, 3, []float64{
		0, 1, 0,
		-1, 0, 0,
		0, 0, 1,
	})
	var r1, r2Mat mat.Dense
	r1.Mul(&u, w)
	r1.Mul(mat.DenseCopyOf(&r1), &vt)
	r2Mat.Mul(&u, w.T())
	r2Mat.Mul(mat.DenseCopyOf(&r2Mat), &vt)

	t := r3.Vector{X: u.At(0, 2), Y: u.At(1, 2), Z: u.At(2, 2)}
	if n := t.Norm(); n > 0 {
		t = t.Mul(1 / n)
	}

	rotA, err := spatialmath.NewRotationFromMatrix(&r1)
	if err != nil {
		return nil, nil, err
	}
	rotB, err := spatialmath.NewRotationFromMatrix(&r2Mat)
	if err != nil {
		return nil, nil, err
	}

	type candidate struct {
		rot *spatialmath.Rotation
		t   r3.Vector
	}
	candidates := []candidate{
		{rotA, t}, {rotA, t.Mul(-1)},
		{rotB, t}, {rotB, t.Mul(-1)},
	}

	best := -1
	bestSupport := 0
	for i, c := range candidates {
		support := positiveDepthCount(c.rot, c.t, rays1, rays2)
		if support > bestSupport {
			bestSupport = support
			best = i
		}
	}
	if best < 0 {
		return nil, nil, errors.New("no pose candidate places points in front of both cameras")
	}
	chosen := candidates[best]
	dir := chosen.t
	return chosen.rot, &dir, nil
}

// positiveDepthCount triangulates each correspondence against cameras
// [I|0] and [R|t] and counts points with positive depth in both views.
func positiveDepthCount(rot *spatialmath.Rotation, t r3.Vector, rays1, rays2 []r3.Vector) int {
	p2 := poseProjectionMatrix(rot, t)
	count := 0
	for i := range rays1 {
		pt, err := triangulateLinear(p2, rays1[i], rays2[i])
		if err != nil {
			continue
		}
		if pt.Z <= 0 {
			continue
		}
		if rot.RotatePoint(pt).Add(t).Z > 0 {
			count++
		}
	}
	return count
}

func poseProjectionMatrix(rot *spatialmath.Rotation, t r3.Vector) *mat.Dense {
	var p mat.Dense
	p.Augment(rot.Matrix(), mat.NewDense(3, 1, []float64{t.X, t.Y, t.Z}))
	return mat.DenseCopyOf(&p)
}

// triangulateLinear solves the homogeneous linear system from the two
// cross-product constraints ray x (P X) = 0 and dehomogenizes.
func triangulateLinear(p2 *mat.Dense, ray1, ray2 r3.Vector) (r3.Vector, error) {
	p1 := mat.NewDense(3, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	})
	var c1, c2 mat.Dense
	c1.Mul(crossProductMatrix(ray1), p1)
	c2.Mul(crossProductMatrix(ray2), p2)
	var a mat.Dense
	a.Stack(&c1, &c2)

	svd, err := factorizeSVD(&a)
	if err != nil {
		return r3.Vector{}, err
	}
	var v mat.Dense
	svd.VTo(&v)
	sol := v.ColView(3)
	wCoord := sol.AtVec(3)
	if wCoord == 0 {
		return r3.Vector{}, errors.New("triangulated point at infinity")
	}
	return r3.Vector{
		X: sol.AtVec(0) / wCoord,
		Y: sol.AtVec(1) / wCoord,
		Z: sol.AtVec(2) / wCoord,
	}, nil
}

// epipolarDistance is the symmetric point-to-epipolar-line distance of a
// correspondence under F, in pixels.
func epipolarDistance(f *mat.Dense, p1, p2 r2.Point) float64 {
	x1 := mat.NewVecDense(3, []float64{p1.X, p1.Y, 1})
	x2 := mat.NewVecDense(3, []float64{p2.X, p2.Y, 1})

	var l2, l1 mat.VecDense
	l2.MulVec(f, x1)
	l1.MulVec(f.T(), x2)

	num := math.Abs(mat.Dot(x2, &l2))
	d2 := math.Hypot(l2.AtVec(0), l2.AtVec(1))
	d1 := math.Hypot(l1.AtVec(0), l1.AtVec(1))
	if d1 == 0 || d2 == 0 {
		return math.Inf(1)
	}
	return (num/d2 + num/d1) / 2
}

func normalizedRays(intrinsics *camera.PinholeIntrinsics, pts keypoints.KeyPoints) []r3.Vector {
	rays := make([]r3.Vector, len(pts))
	for i, pt := range pts {
		x, y := intrinsics.PixelToRay(pt.X, pt.Y)
		rays[i] = r3.Vector{X: x, Y: y, Z: 1}
	}
	return rays
}

func crossProductMatrix(p r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -p.Z, p.Y,
		p.Z, 0, -p.X,
		-p.Y, p.X, 0,
	})
}

// enforceRankTwo zeroes the smallest singular value of a 3x3 matrix.
func enforceRankTwo(m *mat.Dense) (*mat.Dense, error) {
	svd, err := factorizeSVD(m)
	if err != nil {
		return nil, err
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	vals := svd.Values(nil)
	vals[2] = 0
	s := mat.NewDiagDense(3, vals)

	var out mat.Dense
	out.Mul(&u, s)
	out.Mul(mat.DenseCopyOf(&out), v.T())
	return &out, nil
}

func factorizeSVD(m *mat.Dense) (*mat.SVD, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, errors.New("SVD factorization failed")
	}
	return &svd, nil
}

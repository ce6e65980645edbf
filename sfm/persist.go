package sfm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/sfm/viewgraph"
)

type correspondenceFile struct {
	I1      int      `json:"i1"`
	I2      int      `json:"i2"`
	Matches [][2]int `json:"matches"`
}

// saveCorrespondences persists one pair's verified matches as JSON.
func saveCorrespondences(path string, pair viewgraph.PairKey, matches [][2]int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrap(err, "failed to create correspondences directory")
	}
	doc := correspondenceFile{I1: pair.I1, I2: pair.I2, Matches: matches}
	if doc.Matches == nil {
		doc.Matches = [][2]int{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode correspondences")
	}
	return os.WriteFile(path, b, 0o640)
}

type sceneCameraRecord struct {
	Translation [3]float64 `json:"translation"`
	Quaternion  [4]float64 `json:"quaternion"`
	Fx          float64    `json:"fx"`
	Fy          float64    `json:"fy"`
	Ppx         float64    `json:"ppx"`
	Ppy         float64    `json:"ppy"`
}

type sceneTrackRecord struct {
	Point        [3]float64  `json:"point"`
	Measurements [][3]float64 `json:"measurements"`
}

type sceneFile struct {
	NumImages int                          `json:"num_images"`
	Cameras   map[string]sceneCameraRecord `json:"cameras"`
	NumTracks int                          `json:"num_tracks"`
	Tracks    []sceneTrackRecord           `json:"tracks"`
}

// saveSceneJSON persists a scene estimate. Camera keys are stringified image
// indices; encoding/json sorts them, so output is deterministic.
func saveSceneJSON(path string, scene *SceneData) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrap(err, "failed to create scene output directory")
	}
	doc := sceneFile{
		NumImages: scene.NumImages(),
		Cameras:   make(map[string]sceneCameraRecord, len(scene.Cameras())),
		NumTracks: scene.NumTracks(),
		Tracks:    make([]sceneTrackRecord, 0, scene.NumTracks()),
	}
	for i, cam := range scene.Cameras() {
		pose := cam.Pose()
		t := pose.Translation()
		q := pose.Rotation().Quaternion()
		intr := cam.Intrinsics()
		doc.Cameras[strconv.Itoa(i)] = sceneCameraRecord{
			Translation: [3]float64{t.X, t.Y, t.Z},
			Quaternion:  [4]float64{q.Real, q.Imag, q.Jmag, q.Kmag},
			Fx:          intr.Fx,
			Fy:          intr.Fy,
			Ppx:         intr.Ppx,
			Ppy:         intr.Ppy,
		}
	}
	tracks := scene.Tracks()
	sort.SliceStable(tracks, func(i, j int) bool {
		a, b := tracks[i].Point, tracks[j].Point
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	for _, trk := range tracks {
		rec := sceneTrackRecord{
			Point:        [3]float64{trk.Point.X, trk.Point.Y, trk.Point.Z},
			Measurements: make([][3]float64, 0, len(trk.Measurements)),
		}
		for _, m := range trk.Measurements {
			rec.Measurements = append(rec.Measurements, [3]float64{float64(m.CamIdx), m.Px.X, m.Px.Y})
		}
		doc.Tracks = append(doc.Tracks, rec)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode scene data")
	}
	return os.WriteFile(path, b, 0o640)
}

// savePointCloudPLY writes points as an ASCII PLY file.
func savePointCloudPLY(path string, points []r3.Vector) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrap(err, "failed to create point cloud directory")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return errors.Wrap(err, "failed to create point cloud file")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ply\nformat ascii 1.0\nelement vertex %d\n", len(points))
	fmt.Fprintf(w, "property float x\nproperty float y\nproperty float z\nend_header\n")
	for _, pt := range points {
		fmt.Fprintf(w, "%f %f %f\n", pt.X, pt.Y, pt.Z)
	}
	return w.Flush()
}

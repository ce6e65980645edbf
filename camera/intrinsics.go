// Package camera models calibrated pinhole cameras: intrinsics plus a global pose.
package camera

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// PinholeIntrinsics holds the parameters necessary to do a perspective
// projection of a 3D scene onto the 2D image plane.
type PinholeIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeIntrinsics have valid inputs.
func (params *PinholeIntrinsics) CheckValid() error {
	if params == nil {
		return errors.New("intrinsics do not exist")
	}
	if params.Width == 0 || params.Height == 0 {
		return errors.Errorf("invalid image size (%#v, %#v)", params.Width, params.Height)
	}
	if params.Fx <= 0 {
		return errors.Errorf("invalid focal length Fx = %#v", params.Fx)
	}
	if params.Fy <= 0 {
		return errors.Errorf("invalid focal length Fy = %#v", params.Fy)
	}
	if params.Ppx < 0 {
		return errors.Errorf("invalid principal point x = %#v", params.Ppx)
	}
	if params.Ppy < 0 {
		return errors.Errorf("invalid principal point y = %#v", params.Ppy)
	}
	return nil
}

// NewPinholeIntrinsicsFromJSONFile reads a JSON file and parses it into a PinholeIntrinsics.
func NewPinholeIntrinsicsFromJSONFile(jsonPath string) (*PinholeIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &PinholeIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	if err := intrinsics.CheckValid(); err != nil {
		return nil, err
	}
	return intrinsics, nil
}

// CameraMatrix returns the 3x3 intrinsic matrix K.
func (params *PinholeIntrinsics) CameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// PointToPixel projects a 3D point in the camera frame to a pixel in the image plane.
func (params *PinholeIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z != 0 {
		xPx := (x/z)*params.Fx + params.Ppx
		yPx := (y/z)*params.Fy + params.Ppy
		return xPx, yPx
	}
	return -1, -1
}

// PixelToRay converts a pixel to the normalized image plane coordinates of the
// ray through it (z = 1).
func (params *PinholeIntrinsics) PixelToRay(xPx, yPx float64) (float64, float64) {
	return (xPx - params.Ppx) / params.Fx, (yPx - params.Ppy) / params.Fy
}

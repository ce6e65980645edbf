package sfm

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// NewOptionsFromJSONFile reads optimizer options from a JSON file.
func NewOptionsFromJSONFile(jsonPath string) (*Options, error) {
	f, err := os.Open(jsonPath) //nolint:gosec
	if err != nil {
		return nil, errors.Wrap(err, "failed to open options file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	opts := &Options{}
	if err := json.NewDecoder(f).Decode(opts); err != nil {
		return nil, errors.Wrap(err, "failed to decode options file")
	}
	if opts.PoseAngularErrorThreshDeg < 0 {
		return nil, errors.New("pose angular error threshold must not be negative")
	}
	return opts, nil
}

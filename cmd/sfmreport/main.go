// Package main renders saved metric-group JSON files into a single aggregate
// HTML report.
package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/sfm/metric"
)

var logger = golog.NewDevelopmentLogger("sfmreport")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	flags := flag.NewFlagSet(args[0], flag.ContinueOnError)
	metricsDir := flags.String("metrics_dir", "", "directory holding metric group JSON files")
	outPath := flags.String("out", "metrics_report.html", "path of the rendered HTML report")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}
	if *metricsDir == "" {
		return errors.New("-metrics_dir is required")
	}

	entries, err := os.ReadDir(*metricsDir)
	if err != nil {
		return errors.Wrap(err, "failed to read metrics directory")
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return errors.Errorf("no metric group files found in %q", *metricsDir)
	}

	groups := make([]*metric.Group, 0, len(names))
	for _, name := range names {
		group, err := metric.ParseGroupFile(filepath.Join(*metricsDir, name))
		if err != nil {
			return errors.Wrapf(err, "failed to parse metrics group file %q", name)
		}
		groups = append(groups, group)
	}

	if err := metric.WriteReportHTML(*outPath, groups); err != nil {
		return err
	}
	logger.Infow("rendered metrics report", "groups", len(groups), "path", *outPath)
	return nil
}

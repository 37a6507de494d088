package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/sfmimport/config"
	"go.viam.com/sfmimport/importer"
	"go.viam.com/sfmimport/logging"
	"go.viam.com/sfmimport/normalize"
	"go.viam.com/sfmimport/sfm"
)

// newLogger is replaced in tests.
var newLogger = func(debug bool) logging.Logger {
	if debug {
		return logging.NewDebugLogger("sfmimport")
	}
	return logging.NewLogger("sfmimport")
}

// ImportAction reads the reconstruction given as argument.
func ImportAction(c *cli.Context) (err error) {
	if c.Args().Len() != 1 {
		return errors.New("expected exactly one reconstruction path")
	}
	input := c.Args().First()

	cfg, err := importConfig(c)
	if err != nil {
		return err
	}

	var format sfm.Format
	if name := c.String(importFlagFormat); name != "" {
		var ok bool
		if format, ok = sfm.ParseFormat(name); !ok {
			return errors.Errorf("unknown format %q, expected one of %v", name, sfm.Formats)
		}
	} else if format, err = importer.FormatFromPath(input); err != nil {
		return errors.Wrap(err, "pass --format to choose the format")
	}

	logger := newLogger(c.Bool(debugFlag))
	defer func() {
		err = multierr.Combine(err, logger.Sync())
	}()

	im := importer.New(logger)
	if c.Bool(importFlagZUp) {
		im = im.WithTarget(normalize.ZUpTarget)
	}
	model, err := im.Import(format, input, cfg)
	if err != nil {
		return err
	}

	if c.Bool(importFlagJSON) {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(model)
	}
	printSummary(c.App.Writer, format, input, model)
	return nil
}

// importConfig reads the config file, if any, and applies the flags on top of it.
func importConfig(c *cli.Context) (config.Config, error) {
	var cfg config.Config
	if path := c.Path(importFlagConfig); path != "" {
		read, err := config.Read(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = *read
	}

	override := config.Config{
		ImageDir:          c.Path(importFlagImages),
		DefaultWidth:      c.Int(importFlagDefaultWidth),
		DefaultHeight:     c.Int(importFlagDefaultHeight),
		TransformationDir: c.Path(importFlagTransformations),
	}
	if c.IsSet(importFlagDefaultPPX) {
		override.DefaultPrincipalPointX = lo.ToPtr(c.Float64(importFlagDefaultPPX))
	}
	if c.IsSet(importFlagDefaultPPY) {
		override.DefaultPrincipalPointY = lo.ToPtr(c.Float64(importFlagDefaultPPY))
	}
	cfg = cfg.Merge(override)
	return cfg, cfg.Validate()
}

func printSummary(w io.Writer, format sfm.Format, input string, model *sfm.Model) {
	measurements := lo.SumBy(model.Points, func(p sfm.Point) int { return len(p.Measurements) })
	resolved := lo.CountBy(model.Cameras, func(c sfm.Camera) bool { return c.ImagePath != "" })

	trackLengths := lo.Map(model.Points, func(p sfm.Point, _ int) float64 { return float64(len(p.Measurements)) })
	reprojection := lo.FilterMap(model.Points, func(p sfm.Point, _ int) (float64, bool) {
		v, ok := p.Attributes[sfm.ReprojectionErrorAttribute]
		return v, ok
	})

	t := table.NewWriter()
	t.AppendHeader(table.Row{
		"Reconstruction", "Format", "Cameras", "Images found", "Points", "Measurements", "Mean track", "Median error", "Warnings",
	})
	t.AppendRow(table.Row{
		input, format, len(model.Cameras), resolved, len(model.Points), measurements,
		statistic(stats.Mean, trackLengths), statistic(stats.Median, reprojection), len(model.Warnings),
	})
	printf(w, "%s", t.Render())

	if len(model.Warnings) == 0 {
		return
	}
	counts := lo.CountValuesBy(model.Warnings, func(w sfm.Warning) sfm.WarningKind { return w.Kind })
	kinds := lo.Keys(counts)
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	wt := table.NewWriter()
	wt.AppendHeader(table.Row{"Warning", "Count", "First"})
	for _, kind := range kinds {
		first, _ := lo.Find(model.Warnings, func(w sfm.Warning) bool { return w.Kind == kind })
		wt.AppendRow(table.Row{kind, counts[kind], first.Message})
	}
	printf(w, "%s", wt.Render())
}

// statistic formats f(data), or "-" when data is empty.
func statistic(f func(stats.Float64Data) (float64, error), data []float64) string {
	v, err := f(data)
	if err != nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}

// ConfigSchemaAction prints the JSON schema of the config file.
func ConfigSchemaAction(c *cli.Context) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(config.Schema())
}

// FormatsAction lists the supported formats.
func FormatsAction(c *cli.Context) error {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Format", "Input"})
	for _, f := range sfm.Formats {
		t.AppendRow(table.Row{f, formatInputs[f]})
	}
	printf(c.App.Writer, "%s", t.Render())
	return nil
}

var formatInputs = map[sfm.Format]string{
	sfm.FormatColmap:   "model folder with cameras, images and points3D as .txt or .bin",
	sfm.FormatNVM:      ".nvm file (NVM_V3, NVM_V3_R9T)",
	sfm.FormatOpenMVG:  "sfm_data .json file",
	sfm.FormatMeshroom: ".sfm or .json file",
	sfm.FormatPLY:      ".ply file, ascii or binary",
}

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, strings.TrimSuffix(format, "\n")+"\n", a...)
}

// Package importer runs a reconstruction through parsing, image association and normalization.
package importer

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/sfmimport/config"
	"go.viam.com/sfmimport/formats/colmap"
	"go.viam.com/sfmimport/formats/meshroom"
	"go.viam.com/sfmimport/formats/nvm"
	"go.viam.com/sfmimport/formats/openmvg"
	"go.viam.com/sfmimport/formats/ply"
	"go.viam.com/sfmimport/formats/transformation"
	"go.viam.com/sfmimport/images"
	"go.viam.com/sfmimport/logging"
	"go.viam.com/sfmimport/normalize"
	"go.viam.com/sfmimport/sfm"
	"go.viam.com/sfmimport/spatialmath"
)

// imageResolver is implemented by parsers whose format does not carry image sizes.
type imageResolver interface {
	ResolveImages(model *sfm.Model, input string, opts sfm.Options) bool
}

// Importer holds one parser per supported format.
type Importer struct {
	logger  logging.Logger
	parsers map[sfm.Format]sfm.Parser
	target  normalize.Target
}

// New returns an importer normalizing into normalize.DefaultTarget.
func New(logger logging.Logger) *Importer {
	parsers := []sfm.Parser{
		colmap.NewParser(logger.Sublogger("colmap")),
		nvm.NewParser(logger.Sublogger("nvm")),
		openmvg.NewParser(logger.Sublogger("openmvg")),
		meshroom.NewParser(logger.Sublogger("meshroom")),
		ply.NewParser(logger.Sublogger("ply")),
	}
	return &Importer{
		logger: logger,
		parsers: lo.SliceToMap(parsers, func(p sfm.Parser) (sfm.Format, sfm.Parser) {
			return p.Format(), p
		}),
		target: normalize.DefaultTarget,
	}
}

// WithTarget returns a copy of the importer normalizing into target.
func (im *Importer) WithTarget(target normalize.Target) *Importer {
	out := *im
	out.target = target
	return &out
}

// Import reads input in the given format and returns the normalized model.
func Import(format sfm.Format, input string, cfg config.Config, logger logging.Logger) (*sfm.Model, error) {
	return New(logger).Import(format, input, cfg)
}

// Import reads input in the given format and returns the normalized model. Warnings collected on
// the way are returned on the model.
func (im *Importer) Import(format sfm.Format, input string, cfg config.Config) (*sfm.Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	parser, ok := im.parsers[format]
	if !ok {
		return nil, errors.Errorf("unsupported format %q, expected one of %v", format, sfm.Formats)
	}
	opts := cfg.Options()
	im.logger.Infow("importing reconstruction",
		"format", format, "path", input, "image dir", images.DefaultImageDir(input, opts.ImageDir))

	model, err := parser.Parse(input, opts)
	if err != nil {
		return nil, err
	}
	if resolver, ok := parser.(imageResolver); ok {
		if !resolver.ResolveImages(model, input, opts) {
			im.logger.Warnf("some images of %s could not be resolved", input)
		}
	}
	if n := model.AddReprojectionErrors(format.CenteredMeasurements()); n > 0 {
		im.logger.Debugw("computed reprojection errors", "points", n)
	}

	var chain []spatialmath.RigidTransform
	if cfg.TransformationDir != "" {
		chain, err = transformation.ParseDirectory(cfg.TransformationDir, im.logger.Sublogger("transformation"))
		if err != nil {
			return nil, err
		}
	}

	out := normalize.Normalize(model, chain, im.target)
	if err := out.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid model read from %q", input)
	}

	im.logger.Infof("Number cameras: %d", len(out.Cameras))
	im.logger.Infof("Number points: %d", len(out.Points))
	for kind, n := range lo.CountValuesBy(out.Warnings, func(w sfm.Warning) sfm.WarningKind { return w.Kind }) {
		im.logger.Infow("warnings", "kind", kind, "count", n)
	}
	return out, nil
}

// FormatFromPath guesses the format of a reconstruction from its path. Folders are COLMAP models,
// files are recognized by extension. JSON files are told apart by their top level keys.
func FormatFromPath(path string) (sfm.Format, error) {
	if images.IsDir(path) {
		if _, err := colmap.DetectVariant(path); err != nil {
			return "", err
		}
		return sfm.FormatColmap, nil
	}

	base := strings.ToLower(filepath.Base(path))
	ext := filepath.Ext(base)
	switch ext {
	case ".nvm":
		return sfm.FormatNVM, nil
	case ".ply":
		return sfm.FormatPLY, nil
	case ".sfm":
		return sfm.FormatMeshroom, nil
	case ".bin", ".txt":
		if lo.Contains([]string{"cameras", "images", "points3d"}, strings.TrimSuffix(base, ext)) {
			return sfm.FormatColmap, nil
		}
	case ".json":
		return sniffJSON(path)
	}
	return "", errors.Errorf("cannot tell the format of %q from its name", path)
}

// sniffHeadSize is how much of a JSON file is searched for format markers.
const sniffHeadSize = 64 << 10

func sniffJSON(path string) (sfm.Format, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	head, err := io.ReadAll(io.LimitReader(f, sniffHeadSize))
	if err != nil {
		return "", err
	}
	switch {
	case bytes.Contains(head, []byte(`"sfm_data_version"`)):
		return sfm.FormatOpenMVG, nil
	case bytes.Contains(head, []byte(`"featuresFolders"`)),
		bytes.Contains(head, []byte(`"matchesFolders"`)),
		bytes.Contains(head, []byte(`"poses"`)),
		bytes.Contains(head, []byte(`"viewId"`)):
		return sfm.FormatMeshroom, nil
	default:
		return "", errors.Errorf("%q is neither an OpenMVG nor a Meshroom file", path)
	}
}

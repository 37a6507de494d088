// Package colmap reads COLMAP sparse models, in both the text and the binary variant.
package colmap

import (
	"cmp"
	"fmt"
	"image/color"
	"path/filepath"
	"slices"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/sfmimport/images"
	"go.viam.com/sfmimport/logging"
	"go.viam.com/sfmimport/sfm"
)

// Variant is the on-disk encoding of a COLMAP model.
type Variant string

const (
	// Text models consist of cameras.txt, images.txt and points3D.txt.
	Text = Variant("txt")
	// Binary models consist of cameras.bin, images.bin and points3D.bin.
	Binary = Variant("bin")
)

var modelFiles = []string{"cameras", "images", "points3D"}

type rawCamera struct {
	id     int64
	model  cameraModel
	width  int
	height int
	params []float64
}

type point2D struct {
	x, y      float64
	point3DID int64
}

type rawImage struct {
	id       int64
	rotation quat.Number
	trans    r3.Vector
	cameraID int64
	name     string
	points2D []point2D
}

type trackElement struct {
	imageID    int64
	point2DIdx int64
}

type rawPoint struct {
	id       int64
	position r3.Vector
	rgb      [3]uint8
	err      float64
	track    []trackElement
}

type rawModel struct {
	cameras []rawCamera
	images  []rawImage
	points  []rawPoint
}

// DetectVariant returns which variant is stored in dir. The binary variant wins when both are complete.
func DetectVariant(dir string) (Variant, error) {
	for _, v := range []Variant{Binary, Text} {
		complete := lo.EveryBy(modelFiles, func(name string) bool {
			return images.IsFile(filepath.Join(dir, name+"."+string(v)))
		})
		if complete {
			return v, nil
		}
	}
	for _, name := range modelFiles {
		path := filepath.Join(dir, name+".txt")
		if !images.IsFile(path) && !images.IsFile(filepath.Join(dir, name+".bin")) {
			return "", sfm.MalformedFileErrorf(path, "", "model file %s.txt or %s.bin is missing", name, name)
		}
	}
	return "", sfm.MalformedFileErrorf(dir, "", "model mixes text and binary files")
}

// Parser reads COLMAP model folders.
type Parser struct {
	logger logging.Logger
}

// NewParser returns a COLMAP parser.
func NewParser(logger logging.Logger) *Parser {
	return &Parser{logger: logger}
}

// Format returns sfm.FormatColmap.
func (p *Parser) Format() sfm.Format {
	return sfm.FormatColmap
}

// Parse reads the model stored in the folder input. A path to one of the model files is accepted too.
func (p *Parser) Parse(input string, opts sfm.Options) (*sfm.Model, error) {
	dir := input
	if !images.IsDir(dir) {
		dir = filepath.Dir(input)
	}
	variant, err := DetectVariant(dir)
	if err != nil {
		return nil, err
	}
	p.logger.Infow("reading colmap model", "dir", dir, "variant", variant)

	var raw *rawModel
	switch variant {
	case Binary:
		raw, err = readBinaryModel(dir)
	case Text:
		raw, err = readTextModel(dir)
	}
	if err != nil {
		return nil, err
	}
	model, err := p.convert(dir, variant, raw, opts)
	if err != nil {
		return nil, err
	}
	p.logger.Infof("Number cameras: %d", len(model.Cameras))
	p.logger.Infof("Number points: %d", len(model.Points))
	return model, nil
}

func (p *Parser) convert(dir string, variant Variant, raw *rawModel, opts sfm.Options) (*sfm.Model, error) {
	camerasFile := filepath.Join(dir, "cameras."+string(variant))
	imagesFile := filepath.Join(dir, "images."+string(variant))
	pointsFile := filepath.Join(dir, "points3D."+string(variant))

	cams := make(map[int64]rawCamera, len(raw.cameras))
	for _, c := range raw.cameras {
		if _, ok := cams[c.id]; ok {
			return nil, sfm.MalformedFileErrorf(camerasFile, fmt.Sprintf("camera %d", c.id), "duplicate camera id")
		}
		cams[c.id] = c
	}
	imageDirs := []string{images.DefaultImageDir(dir, opts.ImageDir)}
	imageDirs = append(imageDirs, images.SearchDirs(dir, opts.ImageDir)...)

	sorted := slices.Clone(raw.images)
	slices.SortFunc(sorted, func(a, b rawImage) int { return cmp.Compare(a.id, b.id) })

	model := &sfm.Model{Cameras: make([]sfm.Camera, 0, len(sorted))}
	byImage := make(map[int64]*rawImage, len(sorted))
	for i := range sorted {
		img := &sorted[i]
		if _, ok := byImage[img.id]; ok {
			return nil, sfm.MalformedFileErrorf(imagesFile, fmt.Sprintf("image %d", img.id), "duplicate image id")
		}
		byImage[img.id] = img
		c, ok := cams[img.cameraID]
		if !ok {
			return nil, sfm.NewMissingReferenceError(imagesFile, fmt.Sprintf("image %d", img.id), "camera", img.cameraID)
		}
		path, found := images.Locate(img.name, imageDirs...)
		if !found {
			p.logger.Debugw("image not found", "image", img.name)
		}
		model.Cameras = append(model.Cameras, sfm.Camera{
			ID:          img.id,
			ImageName:   img.name,
			ImagePath:   path,
			Width:       c.width,
			Height:      c.height,
			Intrinsics:  c.model.toIntrinsics(c.params),
			Rotation:    img.rotation,
			Translation: img.trans,
			Convention:  sfm.WorldToCamera,
		})
	}

	points := slices.Clone(raw.points)
	slices.SortFunc(points, func(a, b rawPoint) int { return cmp.Compare(a.id, b.id) })
	model.Points = make([]sfm.Point, 0, len(points))
	for _, rp := range points {
		pt := sfm.Point{
			ID:         rp.id,
			Position:   rp.position,
			Color:      color.NRGBA{R: rp.rgb[0], G: rp.rgb[1], B: rp.rgb[2], A: 255},
			Attributes: map[string]float64{sfm.ReprojectionErrorAttribute: rp.err},
		}
		for _, el := range rp.track {
			img, ok := byImage[el.imageID]
			if !ok {
				w := sfm.NewDroppedMeasurementWarning(pointsFile, rp.id, el.imageID)
				p.logger.Warnw(w.Message, "file", w.File)
				model.Warn(w)
				continue
			}
			if el.point2DIdx < 0 || el.point2DIdx >= int64(len(img.points2D)) {
				w := sfm.Warning{
					Kind: sfm.DroppedMeasurement,
					File: pointsFile,
					Message: fmt.Sprintf("point %d references feature %d of image %d which has %d features",
						rp.id, el.point2DIdx, el.imageID, len(img.points2D)),
				}
				p.logger.Warnw(w.Message, "file", w.File)
				model.Warn(w)
				continue
			}
			feature := img.points2D[el.point2DIdx]
			pt.Measurements = append(pt.Measurements, sfm.Measurement{
				CameraID:     img.id,
				FeatureIndex: el.point2DIdx,
				X:            feature.x,
				Y:            feature.y,
			})
		}
		model.Points = append(model.Points, pt)
	}
	return model, nil
}

// Package meshroom reads Meshroom / AliceVision .sfm scenes.
package meshroom

import (
	"encoding/json"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/sfmimport/camera"
	"go.viam.com/sfmimport/logging"
	"go.viam.com/sfmimport/sfm"
	"go.viam.com/sfmimport/spatialmath"
)

// AliceVision writes every number as a string and ids as either strings or numbers.

type view struct {
	ViewID      interface{} `mapstructure:"viewId"`
	PoseID      interface{} `mapstructure:"poseId"`
	IntrinsicID interface{} `mapstructure:"intrinsicId"`
	Path        string      `mapstructure:"path"`
	Width       int         `mapstructure:"width"`
	Height      int         `mapstructure:"height"`
}

var requiredViewFields = []string{"viewId", "poseId", "intrinsicId", "path"}

type intrinsic struct {
	IntrinsicID      interface{} `mapstructure:"intrinsicId"`
	Type             string      `mapstructure:"type"`
	Width            int         `mapstructure:"width"`
	Height           int         `mapstructure:"height"`
	PxFocalLength    *float64    `mapstructure:"pxFocalLength"`
	FocalLength      *float64    `mapstructure:"focalLength"`
	SensorWidth      *float64    `mapstructure:"sensorWidth"`
	PrincipalPoint   []float64   `mapstructure:"principalPoint"`
	DistortionParams []float64   `mapstructure:"distortionParams"`
}

var requiredIntrinsicFields = []string{"intrinsicId", "type", "width", "height", "principalPoint"}

type transform struct {
	Rotation []float64 `mapstructure:"rotation"`
	Center   []float64 `mapstructure:"center"`
}

type pose struct {
	PoseID interface{} `mapstructure:"poseId"`
	Pose   struct {
		Transform transform `mapstructure:"transform"`
	} `mapstructure:"pose"`
}

var requiredPoseFields = []string{"poseId", "pose"}

type observation struct {
	ObservationID interface{} `mapstructure:"observationId"`
	FeatureID     interface{} `mapstructure:"featureId"`
	X             []float64   `mapstructure:"x"`
}

type landmark struct {
	LandmarkID   interface{}   `mapstructure:"landmarkId"`
	Color        []uint8       `mapstructure:"color"`
	X            []float64     `mapstructure:"X"`
	Observations []observation `mapstructure:"observations"`
}

var requiredLandmarkFields = []string{"landmarkId", "X"}

// Parser reads Meshroom scenes.
type Parser struct {
	logger logging.Logger
}

// NewParser returns a Meshroom parser.
func NewParser(logger logging.Logger) *Parser {
	return &Parser{logger: logger}
}

// Format returns sfm.FormatMeshroom.
func (p *Parser) Format() sfm.Format {
	return sfm.FormatMeshroom
}

// sections are the optional top level arrays; an absent one is read as empty, a present one that is
// not an array is malformed.
func section(file string, doc map[string]interface{}, name string) ([]interface{}, error) {
	raw, ok := doc[name]
	if !ok || raw == nil {
		return nil, nil
	}
	entries, ok := raw.([]interface{})
	if !ok {
		return nil, sfm.MalformedFileErrorf(file, name, "expected an array, got %T", raw)
	}
	return entries, nil
}

func decode(file, record string, input interface{}, out interface{}, required []string) error {
	if len(required) > 0 {
		fields, ok := input.(map[string]interface{})
		if !ok {
			return sfm.MalformedFileErrorf(file, record, "expected an object, got %T", input)
		}
		for _, key := range required {
			if _, ok := fields[key]; !ok {
				return sfm.MalformedFileErrorf(file, record, "missing required field %q", key)
			}
		}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil {
		return sfm.NewMalformedFileError(file, record, err)
	}
	return nil
}

func id(file, record string, v interface{}) (int64, error) {
	s, err := cast.ToStringE(v)
	if err != nil {
		return 0, sfm.NewMalformedFileError(file, record, err)
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, sfm.MalformedFileErrorf(file, record, "invalid id %q", s)
	}
	return parsed, nil
}

// principalPointOffsetSince is the first version storing the principal point relative to the
// image center.
var principalPointOffsetSince = semver.MustParse("1.2.0")

// version reads the "version" array, e.g. ["1", "2", "0"]. Files without one are treated as 1.0.0.
func version(file string, doc map[string]interface{}) (*semver.Version, error) {
	raw, ok := doc["version"]
	if !ok {
		return semver.MustParse("1.0.0"), nil
	}
	var parts []string
	if err := decode(file, "version", raw, &parts, nil); err != nil {
		return nil, err
	}
	v, err := semver.NewVersion(strings.Join(parts, "."))
	if err != nil {
		return nil, sfm.NewMalformedFileError(file, "version", err)
	}
	return v, nil
}

// Parse reads a scene. Missing sections yield empty collections; present but malformed entries fail
// the parse. Views without a pose are left out with an UnposedView warning.
func (p *Parser) Parse(input string, opts sfm.Options) (*sfm.Model, error) {
	//nolint:gosec
	f, err := os.Open(input)
	if err != nil {
		return nil, sfm.NewMalformedFileError(input, "", err)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var doc map[string]interface{}
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, sfm.NewMalformedFileError(input, "", errors.Wrap(err, "error parsing JSON"))
	}
	ver, err := version(input, doc)
	if err != nil {
		return nil, err
	}

	intrinsics, err := p.readIntrinsics(input, doc, ver)
	if err != nil {
		return nil, err
	}
	poses, err := p.readPoses(input, doc)
	if err != nil {
		return nil, err
	}

	model := &sfm.Model{}
	views, err := section(input, doc, "views")
	if err != nil {
		return nil, err
	}
	for i, raw := range views {
		record := fmt.Sprintf("views[%d]", i)
		var v view
		if err := decode(input, record, raw, &v, requiredViewFields); err != nil {
			return nil, err
		}
		viewID, err := id(input, record, v.ViewID)
		if err != nil {
			return nil, err
		}
		intrinsicID, err := id(input, record, v.IntrinsicID)
		if err != nil {
			return nil, err
		}
		poseID, err := id(input, record, v.PoseID)
		if err != nil {
			return nil, err
		}
		in, ok := intrinsics[intrinsicID]
		if !ok {
			return nil, sfm.NewMissingReferenceError(input, fmt.Sprintf("view %d", viewID), "intrinsic", intrinsicID)
		}
		ps, ok := poses[poseID]
		if !ok {
			w := sfm.NewUnposedViewWarning(input, viewID)
			p.logger.Warnw(w.Message, "file", input)
			model.Warn(w)
			continue
		}
		width, height := v.Width, v.Height
		if width <= 0 || height <= 0 {
			width, height = in.width, in.height
		}
		model.Cameras = append(model.Cameras, sfm.Camera{
			ID:          viewID,
			ImageName:   v.Path,
			ImagePath:   imagePath(input, v.Path, opts.ImageDir),
			Width:       width,
			Height:      height,
			Intrinsics:  in.intrinsics,
			Rotation:    ps.rotation,
			Translation: ps.center,
			Convention:  sfm.CameraToWorld,
		})
	}

	if err := p.readStructure(input, doc, model); err != nil {
		return nil, err
	}
	warned := len(model.Warnings)
	model.DropDanglingMeasurements(input)
	for _, w := range model.Warnings[warned:] {
		p.logger.Warnw(w.Message, "file", w.File)
	}
	p.logger.Infof("Number cameras: %d", len(model.Cameras))
	p.logger.Infof("Number points: %d", len(model.Points))
	return model, nil
}

// imagePath moves an image into imageDir when one is configured, since scenes store absolute paths
// from the machine that computed them.
func imagePath(file, path, imageDir string) string {
	if imageDir != "" {
		return filepath.Join(imageDir, filepath.Base(filepath.FromSlash(path)))
	}
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(file), filepath.FromSlash(path))
}

type resolvedIntrinsic struct {
	intrinsics    camera.Intrinsics
	width, height int
}

var distortionTypes = map[string]struct {
	model      camera.Model
	distortion camera.DistortionType
	params     int
}{
	"pinhole":        {camera.Pinhole, camera.NoDistortion, 0},
	"radial1":        {camera.SimpleRadial, camera.RadialDistortionType, 1},
	"radial3":        {camera.Radial, camera.RadialDistortionType, 3},
	"brown":          {camera.OpenCV, camera.BrownConradyDistortionType, 5},
	"fisheye4":       {camera.OpenCVFisheye, camera.KannalaBrandtDistortionType, 4},
	"equidistant_r3": {camera.RadialFisheye, camera.KannalaBrandtDistortionType, 3},
}

func (p *Parser) readIntrinsics(file string, doc map[string]interface{}, ver *semver.Version) (map[int64]resolvedIntrinsic, error) {
	entries, err := section(file, doc, "intrinsics")
	if err != nil {
		return nil, err
	}
	out := make(map[int64]resolvedIntrinsic, len(entries))
	for i, raw := range entries {
		record := fmt.Sprintf("intrinsics[%d]", i)
		var in intrinsic
		if err := decode(file, record, raw, &in, requiredIntrinsicFields); err != nil {
			return nil, err
		}
		intrinsicID, err := id(file, record, in.IntrinsicID)
		if err != nil {
			return nil, err
		}
		kind, ok := distortionTypes[in.Type]
		if !ok {
			return nil, sfm.MalformedFileErrorf(file, record, "unsupported intrinsic type %q", in.Type)
		}
		if in.Width <= 0 || in.Height <= 0 {
			return nil, sfm.MalformedFileErrorf(file, record, "invalid size %dx%d", in.Width, in.Height)
		}
		if len(in.PrincipalPoint) != 2 {
			return nil, sfm.MalformedFileErrorf(file, record, "principal point has %d values", len(in.PrincipalPoint))
		}
		var focal float64
		switch {
		case in.PxFocalLength != nil:
			focal = *in.PxFocalLength
		case in.FocalLength != nil && in.SensorWidth != nil && *in.SensorWidth > 0:
			focal = *in.FocalLength * math.Max(float64(in.Width), float64(in.Height)) / *in.SensorWidth
		default:
			return nil, sfm.MalformedFileErrorf(file, record, "no focal length")
		}
		ppx, ppy := in.PrincipalPoint[0], in.PrincipalPoint[1]
		if !ver.LessThan(principalPointOffsetSince) {
			// offset from the image center
			ppx += float64(in.Width) / 2
			ppy += float64(in.Height) / 2
		}
		converted := camera.Intrinsics{Model: kind.model, Fx: focal, Fy: focal, Ppx: ppx, Ppy: ppy}
		if kind.params > 0 {
			if len(in.DistortionParams) != kind.params {
				return nil, sfm.MalformedFileErrorf(file, record, "%s needs %d distortion parameters, got %d",
					in.Type, kind.params, len(in.DistortionParams))
			}
			// brown is stored k1 k2 k3 t1 t2, the order BrownConrady uses
			converted.Distortion = camera.Distortion{Type: kind.distortion, Parameters: in.DistortionParams}
		}
		if err := converted.CheckValid(); err != nil {
			return nil, sfm.NewMalformedFileError(file, record, err)
		}
		out[intrinsicID] = resolvedIntrinsic{intrinsics: converted, width: in.Width, height: in.Height}
	}
	return out, nil
}

type resolvedPose struct {
	rotation quat.Number
	center   r3.Vector
}

func (p *Parser) readPoses(file string, doc map[string]interface{}) (map[int64]resolvedPose, error) {
	entries, err := section(file, doc, "poses")
	if err != nil {
		return nil, err
	}
	out := make(map[int64]resolvedPose, len(entries))
	for i, raw := range entries {
		record := fmt.Sprintf("poses[%d]", i)
		var ps pose
		if err := decode(file, record, raw, &ps, requiredPoseFields); err != nil {
			return nil, err
		}
		poseID, err := id(file, record, ps.PoseID)
		if err != nil {
			return nil, err
		}
		tf := ps.Pose.Transform
		if len(tf.Center) != 3 {
			return nil, sfm.MalformedFileErrorf(file, record, "center has %d values", len(tf.Center))
		}
		// stored column-major world to camera, which read row-major is camera to world
		rot, err := spatialmath.NewRotationMatrix(tf.Rotation)
		if err != nil {
			return nil, sfm.NewMalformedFileError(file, record, err)
		}
		if err := rot.CheckValid(); err != nil {
			return nil, sfm.NewMalformedFileError(file, record, err)
		}
		out[poseID] = resolvedPose{
			rotation: rot.Quaternion(),
			center:   r3.Vector{X: tf.Center[0], Y: tf.Center[1], Z: tf.Center[2]},
		}
	}
	return out, nil
}

func (p *Parser) readStructure(file string, doc map[string]interface{}, model *sfm.Model) error {
	entries, err := section(file, doc, "structure")
	if err != nil {
		return err
	}
	model.Points = make([]sfm.Point, 0, len(entries))
	for i, raw := range entries {
		record := fmt.Sprintf("structure[%d]", i)
		var lm landmark
		if err := decode(file, record, raw, &lm, requiredLandmarkFields); err != nil {
			return err
		}
		landmarkID, err := id(file, record, lm.LandmarkID)
		if err != nil {
			return err
		}
		if len(lm.X) != 3 {
			return sfm.MalformedFileErrorf(file, record, "expected 3 coordinates, got %d", len(lm.X))
		}
		pt := sfm.Point{
			ID:       landmarkID,
			Position: r3.Vector{X: lm.X[0], Y: lm.X[1], Z: lm.X[2]},
			Color:    sfm.DefaultPointColor,
		}
		switch len(lm.Color) {
		case 0:
		case 3:
			pt.Color = color.NRGBA{R: lm.Color[0], G: lm.Color[1], B: lm.Color[2], A: 255}
		default:
			return sfm.MalformedFileErrorf(file, record, "color has %d values", len(lm.Color))
		}
		for j, obs := range lm.Observations {
			obsRecord := fmt.Sprintf("%s.observations[%d]", record, j)
			viewID, err := id(file, obsRecord, obs.ObservationID)
			if err != nil {
				return err
			}
			featureID := int64(-1)
			if obs.FeatureID != nil {
				if featureID, err = id(file, obsRecord, obs.FeatureID); err != nil {
					return err
				}
			}
			if len(obs.X) != 2 {
				return sfm.MalformedFileErrorf(file, obsRecord, "expected 2 coordinates, got %d", len(obs.X))
			}
			pt.Measurements = append(pt.Measurements, sfm.Measurement{
				CameraID:     viewID,
				FeatureIndex: featureID,
				X:            obs.X[0],
				Y:            obs.X[1],
			})
		}
		model.Points = append(model.Points, pt)
	}
	return nil
}

// Package openmvg reads OpenMVG sfm_data.json scenes.
package openmvg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/sfmimport/camera"
	"go.viam.com/sfmimport/images"
	"go.viam.com/sfmimport/logging"
	"go.viam.com/sfmimport/sfm"
	"go.viam.com/sfmimport/spatialmath"
)

const (
	// cereal marks the first occurrence of a polymorphic type or shared pointer with this bit.
	cerealFirstOccurrence = 0x80000000
	// undefinedIndex is OpenMVG's UndefinedIndexT.
	undefinedIndex = 4294967295
)

type keyed[T any] struct {
	Key   int64 `json:"key"`
	Value T     `json:"value"`
}

type ptrWrapper struct {
	ID   uint64          `json:"id"`
	Data json.RawMessage `json:"data"`
}

type polymorphic struct {
	PolymorphicID   uint64     `json:"polymorphic_id"`
	PolymorphicName string     `json:"polymorphic_name"`
	PtrWrapper      ptrWrapper `json:"ptr_wrapper"`
}

type view struct {
	LocalPath   string `json:"local_path"`
	Filename    string `json:"filename"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	IDView      int64  `json:"id_view"`
	IDIntrinsic int64  `json:"id_intrinsic"`
	IDPose      int64  `json:"id_pose"`
}

type intrinsic struct {
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	FocalLength    float64   `json:"focal_length"`
	PrincipalPoint []float64 `json:"principal_point"`
	DistoK1        []float64 `json:"disto_k1"`
	DistoK3        []float64 `json:"disto_k3"`
	DistoT2        []float64 `json:"disto_t2"`
	Fisheye        []float64 `json:"fisheye"`
}

type extrinsic struct {
	Rotation [][]float64 `json:"rotation"`
	Center   []float64   `json:"center"`
}

type observation struct {
	IDFeat int64     `json:"id_feat"`
	X      []float64 `json:"x"`
}

type landmark struct {
	X            []float64            `json:"X"`
	Observations []keyed[observation] `json:"observations"`
}

type sfmData struct {
	Version    string               `json:"sfm_data_version"`
	RootPath   string               `json:"root_path"`
	Views      []keyed[polymorphic] `json:"views"`
	Intrinsics []keyed[polymorphic] `json:"intrinsics"`
	Extrinsics []keyed[extrinsic]   `json:"extrinsics"`
	Structure  []keyed[landmark]    `json:"structure"`
}

// Parser reads OpenMVG sfm_data.json files.
type Parser struct {
	logger logging.Logger
}

// NewParser returns an OpenMVG parser.
func NewParser(logger logging.Logger) *Parser {
	return &Parser{logger: logger}
}

// Format returns sfm.FormatOpenMVG.
func (p *Parser) Format() sfm.Format {
	return sfm.FormatOpenMVG
}

// cerealReader resolves cereal's polymorphic names and shared pointers, which are only spelled
// out on their first occurrence.
type cerealReader struct {
	file     string
	names    map[uint64]string
	pointers map[uint64]json.RawMessage
}

func (cr *cerealReader) resolve(record string, p polymorphic) (string, json.RawMessage, error) {
	nameID := p.PolymorphicID &^ cerealFirstOccurrence
	if p.PolymorphicName != "" {
		cr.names[nameID] = p.PolymorphicName
	}
	name := cr.names[nameID]

	ptrID := p.PtrWrapper.ID &^ cerealFirstOccurrence
	data := p.PtrWrapper.Data
	if len(data) > 0 {
		cr.pointers[ptrID] = data
	} else {
		var ok bool
		if data, ok = cr.pointers[ptrID]; !ok {
			return "", nil, sfm.MalformedFileErrorf(cr.file, record, "shared pointer %d used before it was defined", ptrID)
		}
	}
	return name, data, nil
}

func (cr *cerealReader) unmarshal(record string, data json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return sfm.NewMalformedFileError(cr.file, record, err)
	}
	return nil
}

// Parse reads a scene. Views without a pose are left out with an UnposedView warning.
func (p *Parser) Parse(input string, opts sfm.Options) (*sfm.Model, error) {
	//nolint:gosec
	f, err := os.Open(input)
	if err != nil {
		return nil, sfm.NewMalformedFileError(input, "", err)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var data sfmData
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return nil, sfm.NewMalformedFileError(input, "", errors.Wrap(err, "error parsing JSON"))
	}
	cr := &cerealReader{file: input, names: map[uint64]string{}, pointers: map[uint64]json.RawMessage{}}

	intrinsics := make(map[int64]camera.Intrinsics, len(data.Intrinsics))
	for i, entry := range data.Intrinsics {
		record := fmt.Sprintf("intrinsics[%d]", i)
		name, raw, err := cr.resolve(record, entry.Value)
		if err != nil {
			return nil, err
		}
		var in intrinsic
		if err := cr.unmarshal(record, raw, &in); err != nil {
			return nil, err
		}
		converted, err := convertIntrinsic(name, in)
		if err != nil {
			return nil, sfm.NewMalformedFileError(input, record, err)
		}
		intrinsics[entry.Key] = converted
	}

	poses := make(map[int64]extrinsic, len(data.Extrinsics))
	for _, entry := range data.Extrinsics {
		poses[entry.Key] = entry.Value
	}

	imageDir := opts.ImageDir
	if imageDir == "" {
		imageDir = data.RootPath
	}
	if imageDir == "" {
		imageDir = filepath.Dir(input)
	}

	model := &sfm.Model{}
	for i, entry := range data.Views {
		record := fmt.Sprintf("views[%d]", i)
		_, raw, err := cr.resolve(record, entry.Value)
		if err != nil {
			return nil, err
		}
		var v view
		if err := cr.unmarshal(record, raw, &v); err != nil {
			return nil, err
		}
		in, calibrated := intrinsics[v.IDIntrinsic]
		if !calibrated && v.IDIntrinsic != undefinedIndex {
			return nil, sfm.NewMissingReferenceError(input, fmt.Sprintf("view %d", v.IDView), "intrinsic", v.IDIntrinsic)
		}
		pose, posed := poses[v.IDPose]
		if v.IDPose == undefinedIndex || !posed {
			w := sfm.NewUnposedViewWarning(input, v.IDView)
			p.logger.Warnw(w.Message, "file", input)
			model.Warn(w)
			continue
		}
		if !calibrated {
			return nil, sfm.NewMissingReferenceError(input, fmt.Sprintf("view %d", v.IDView), "intrinsic", v.IDIntrinsic)
		}
		cam, err := newCamera(input, record, v, in, pose)
		if err != nil {
			return nil, err
		}
		name := filepath.Join(filepath.FromSlash(v.LocalPath), v.Filename)
		cam.ImageName = name
		if filepath.IsAbs(name) {
			cam.ImagePath = name
		} else {
			cam.ImagePath = filepath.Join(imageDir, name)
		}
		if !images.IsFile(cam.ImagePath) {
			p.logger.Debugw("image not found", "image", cam.ImagePath)
		}
		model.Cameras = append(model.Cameras, cam)
	}

	for i, entry := range data.Structure {
		record := fmt.Sprintf("structure[%d]", i)
		if len(entry.Value.X) != 3 {
			return nil, sfm.MalformedFileErrorf(input, record, "expected 3 coordinates, got %d", len(entry.Value.X))
		}
		pt := sfm.Point{
			ID:       entry.Key,
			Position: r3.Vector{X: entry.Value.X[0], Y: entry.Value.X[1], Z: entry.Value.X[2]},
			Color:    sfm.DefaultPointColor,
		}
		for _, obs := range entry.Value.Observations {
			if len(obs.Value.X) != 2 {
				return nil, sfm.MalformedFileErrorf(input, record, "observation of view %d has %d coordinates", obs.Key, len(obs.Value.X))
			}
			pt.Measurements = append(pt.Measurements, sfm.Measurement{
				CameraID:     obs.Key,
				FeatureIndex: obs.Value.IDFeat,
				X:            obs.Value.X[0],
				Y:            obs.Value.X[1],
			})
		}
		model.Points = append(model.Points, pt)
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

func convertIntrinsic(name string, in intrinsic) (camera.Intrinsics, error) {
	if len(in.PrincipalPoint) != 2 {
		return camera.Intrinsics{}, errors.Errorf("principal point has %d values", len(in.PrincipalPoint))
	}
	out := camera.Intrinsics{Fx: in.FocalLength, Fy: in.FocalLength, Ppx: in.PrincipalPoint[0], Ppy: in.PrincipalPoint[1]}
	checkLen := func(field string, values []float64, n int) error {
		if len(values) != n {
			return errors.Errorf("%s intrinsic needs %d %s values, got %d", name, n, field, len(values))
		}
		return nil
	}
	switch name {
	case "pinhole":
		out.Model = camera.SimplePinhole
	case "pinhole_radial_k1":
		if err := checkLen("disto_k1", in.DistoK1, 1); err != nil {
			return camera.Intrinsics{}, err
		}
		out.Model = camera.SimpleRadial
		out.Distortion = camera.Distortion{Type: camera.RadialDistortionType, Parameters: in.DistoK1}
	case "pinhole_radial_k3":
		if err := checkLen("disto_k3", in.DistoK3, 3); err != nil {
			return camera.Intrinsics{}, err
		}
		out.Model = camera.Radial
		out.Distortion = camera.Distortion{Type: camera.RadialDistortionType, Parameters: in.DistoK3}
	case "pinhole_brown_t2":
		if err := checkLen("disto_t2", in.DistoT2, 5); err != nil {
			return camera.Intrinsics{}, err
		}
		out.Model = camera.OpenCV
		out.Distortion = camera.Distortion{Type: camera.BrownConradyDistortionType, Parameters: in.DistoT2}
	case "fisheye":
		if err := checkLen("fisheye", in.Fisheye, 4); err != nil {
			return camera.Intrinsics{}, err
		}
		out.Model = camera.OpenCVFisheye
		out.Distortion = camera.Distortion{Type: camera.KannalaBrandtDistortionType, Parameters: in.Fisheye}
	default:
		return camera.Intrinsics{}, errors.Errorf("unsupported intrinsic type %q", name)
	}
	if err := out.CheckValid(); err != nil {
		return camera.Intrinsics{}, err
	}
	return out, nil
}

func newCamera(file, record string, v view, in camera.Intrinsics, pose extrinsic) (sfm.Camera, error) {
	if len(pose.Rotation) != 3 || len(pose.Center) != 3 {
		return sfm.Camera{}, sfm.MalformedFileErrorf(file, record, "pose %d is not a 3x3 rotation and a center", v.IDPose)
	}
	values := make([]float64, 0, 9)
	for _, row := range pose.Rotation {
		if len(row) != 3 {
			return sfm.Camera{}, sfm.MalformedFileErrorf(file, record, "pose %d rotation row has %d values", v.IDPose, len(row))
		}
		values = append(values, row...)
	}
	rot, err := spatialmath.NewRotationMatrix(values)
	if err != nil {
		return sfm.Camera{}, sfm.NewMalformedFileError(file, record, err)
	}
	if err := rot.CheckValid(); err != nil {
		return sfm.Camera{}, sfm.NewMalformedFileError(file, record, err)
	}
	cam := sfm.Camera{
		ID:          v.IDView,
		Width:       v.Width,
		Height:      v.Height,
		Intrinsics:  in,
		Rotation:    rot.Quaternion(),
		Translation: r3.Vector{X: pose.Center[0], Y: pose.Center[1], Z: pose.Center[2]},
		Convention:  sfm.CameraCenter,
	}
	if cam.Width <= 0 || cam.Height <= 0 {
		return sfm.Camera{}, sfm.MalformedFileErrorf(file, record, "view %d has invalid size %dx%d", v.IDView, v.Width, v.Height)
	}
	return cam, nil
}

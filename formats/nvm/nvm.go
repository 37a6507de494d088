// Package nvm reads VisualSFM NVM_V3 files and resolves the images they reference.
package nvm

import (
	"bufio"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/sfmimport/camera"
	"go.viam.com/sfmimport/logging"
	"go.viam.com/sfmimport/sfm"
	"go.viam.com/sfmimport/spatialmath"
)

const (
	headerV3    = "NVM_V3"
	headerV3R9T = "NVM_V3_R9T"
	fixedK      = "FixedK"
)

// Parser reads NVM files. Image sizes are not part of the format, run ResolveImages afterwards.
type Parser struct {
	logger logging.Logger
}

// NewParser returns an NVM parser.
func NewParser(logger logging.Logger) *Parser {
	return &Parser{logger: logger}
}

// Format returns sfm.FormatNVM.
func (p *Parser) Format() sfm.Format {
	return sfm.FormatNVM
}

type tokenReader struct {
	file    string
	scanner *bufio.Scanner
	line    int
}

// nextLine returns the fields of the next non empty line.
func (tr *tokenReader) nextLine() ([]string, bool, error) {
	for tr.scanner.Scan() {
		tr.line++
		fields := strings.Fields(tr.scanner.Text())
		if len(fields) > 0 {
			return fields, true, nil
		}
	}
	if err := tr.scanner.Err(); err != nil {
		return nil, false, sfm.NewMalformedFileError(tr.file, tr.record(), err)
	}
	return nil, false, nil
}

func (tr *tokenReader) mustLine(what string) ([]string, error) {
	fields, ok, err := tr.nextLine()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, sfm.MalformedFileErrorf(tr.file, tr.record(), "unexpected end of file, expected %s", what)
	}
	return fields, nil
}

func (tr *tokenReader) record() string {
	return fmt.Sprintf("line %d", tr.line)
}

func (tr *tokenReader) errorf(format string, args ...interface{}) error {
	return sfm.MalformedFileErrorf(tr.file, tr.record(), format, args...)
}

func (tr *tokenReader) floats(tokens []string) ([]float64, error) {
	out := make([]float64, len(tokens))
	for i, token := range tokens {
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, tr.errorf("invalid number %q", token)
		}
		out[i] = v
	}
	return out, nil
}

func (tr *tokenReader) count(tokens []string, what string) (int, error) {
	if len(tokens) != 1 {
		return 0, tr.errorf("expected the number of %s, got %q", what, strings.Join(tokens, " "))
	}
	n, err := strconv.Atoi(tokens[0])
	if err != nil || n < 0 {
		return 0, tr.errorf("invalid number of %s %q", what, tokens[0])
	}
	return n, nil
}

// Parse reads the first model of an NVM file. Measurements keep the file's coordinates, which are
// relative to the principal point.
func (p *Parser) Parse(input string, opts sfm.Options) (*sfm.Model, error) {
	//nolint:gosec
	f, err := os.Open(input)
	if err != nil {
		return nil, sfm.NewMalformedFileError(input, "", err)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	tr := &tokenReader{file: input, scanner: bufio.NewScanner(f)}
	tr.scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	header, err := tr.mustLine("the NVM header")
	if err != nil {
		return nil, err
	}
	r9t := false
	switch header[0] {
	case headerV3:
	case headerV3R9T:
		r9t = true
	default:
		return nil, tr.errorf("unsupported header %q", header[0])
	}
	var calibration *camera.Intrinsics
	if len(header) > 1 {
		if header[1] != fixedK || len(header) != 6 {
			return nil, tr.errorf("unsupported header options %q", strings.Join(header[1:], " "))
		}
		k, err := tr.floats(header[2:6])
		if err != nil {
			return nil, err
		}
		calibration = &camera.Intrinsics{Model: camera.Pinhole, Fx: k[0], Ppx: k[1], Fy: k[2], Ppy: k[3]}
	}

	countLine, err := tr.mustLine("the number of cameras")
	if err != nil {
		return nil, err
	}
	numCameras, err := tr.count(countLine, "cameras")
	if err != nil {
		return nil, err
	}
	model := &sfm.Model{Cameras: make([]sfm.Camera, 0, numCameras)}
	for i := 0; i < numCameras; i++ {
		fields, err := tr.mustLine(fmt.Sprintf("camera %d of %d", i, numCameras))
		if err != nil {
			return nil, err
		}
		cam, err := parseCamera(tr, fields, i, r9t, calibration)
		if err != nil {
			return nil, err
		}
		model.Cameras = append(model.Cameras, cam)
	}

	// a model without points may end right after the cameras
	countLine, ok, err := tr.nextLine()
	if err != nil {
		return nil, err
	}
	numPoints := 0
	if ok {
		if numPoints, err = tr.count(countLine, "points"); err != nil {
			return nil, err
		}
	}
	model.Points = make([]sfm.Point, 0, numPoints)
	for i := 0; i < numPoints; i++ {
		fields, err := tr.mustLine(fmt.Sprintf("point %d of %d", i, numPoints))
		if err != nil {
			return nil, err
		}
		pt, err := parsePoint(tr, fields, i)
		if err != nil {
			return nil, err
		}
		model.Points = append(model.Points, pt)
	}

	if rest, ok, err := tr.nextLine(); err != nil {
		return nil, err
	} else if ok && !(len(rest) == 1 && rest[0] == "0") {
		p.logger.Infow("file contains further models, only the first one is imported", "file", input, "line", tr.line)
		model.Warn(sfm.Warning{
			Kind:    sfm.IgnoredContent,
			File:    input,
			Message: fmt.Sprintf("additional models starting at line %d were ignored", tr.line),
		})
	}

	model.DropDanglingMeasurements(input)
	for _, w := range model.Warnings {
		p.logger.Warnw(w.Message, "file", w.File)
	}
	p.logger.Infof("Number cameras: %d", len(model.Cameras))
	p.logger.Infof("Number points: %d", len(model.Points))
	return model, nil
}

// parseCamera reads <name> <focal> <rotation> <center or translation> <radial distortion> 0.
func parseCamera(tr *tokenReader, fields []string, index int, r9t bool, calibration *camera.Intrinsics) (sfm.Camera, error) {
	numRotation := 4
	if r9t {
		numRotation = 9
	}
	// name, focal, rotation, 3 position values, distortion, and a trailing 0 which some writers omit
	if len(fields) != numRotation+6 && len(fields) != numRotation+7 {
		return sfm.Camera{}, tr.errorf("camera %d has %d values", index, len(fields))
	}
	values, err := tr.floats(fields[1 : numRotation+6])
	if err != nil {
		return sfm.Camera{}, err
	}
	focal := values[0]
	if focal <= 0 {
		return sfm.Camera{}, tr.errorf("camera %d has invalid focal length %v", index, focal)
	}
	position := values[numRotation+1 : numRotation+4]
	cam := sfm.Camera{
		ID:          int64(index),
		ImageName:   fields[0],
		Translation: r3.Vector{X: position[0], Y: position[1], Z: position[2]},
		Intrinsics:  camera.NewPinholeIntrinsics(focal, 0, 0),
	}
	cam.Intrinsics.Model = camera.SimpleRadial
	cam.Intrinsics.Distortion = camera.Distortion{
		Type:       camera.NVMRadialDistortionType,
		Parameters: []float64{values[numRotation+4]},
	}
	if calibration != nil {
		cam.Intrinsics.Fx, cam.Intrinsics.Fy = calibration.Fx, calibration.Fy
		cam.Intrinsics.Ppx, cam.Intrinsics.Ppy = calibration.Ppx, calibration.Ppy
	}

	if r9t {
		rot, err := spatialmath.NewRotationMatrix(values[1:10])
		if err != nil {
			return sfm.Camera{}, tr.errorf("camera %d: %v", index, err)
		}
		if err := rot.CheckValid(); err != nil {
			return sfm.Camera{}, tr.errorf("camera %d: %v", index, err)
		}
		cam.Rotation = rot.Quaternion()
		cam.Convention = sfm.WorldToCamera
		return cam, nil
	}
	q, err := spatialmath.Normalize(quat.Number{Real: values[1], Imag: values[2], Jmag: values[3], Kmag: values[4]})
	if err != nil {
		return sfm.Camera{}, tr.errorf("camera %d: %v", index, err)
	}
	cam.Rotation = q
	cam.Convention = sfm.CameraCenter
	return cam, nil
}

// parsePoint reads <xyz> <rgb> <n> then n times <camera index> <feature index> <x> <y>.
func parsePoint(tr *tokenReader, fields []string, index int) (sfm.Point, error) {
	if len(fields) < 7 {
		return sfm.Point{}, tr.errorf("point %d has %d values", index, len(fields))
	}
	xyz, err := tr.floats(fields[0:3])
	if err != nil {
		return sfm.Point{}, err
	}
	var rgb [3]uint8
	for i := range rgb {
		v, err := strconv.ParseUint(fields[3+i], 10, 8)
		if err != nil {
			return sfm.Point{}, tr.errorf("invalid color value %q", fields[3+i])
		}
		rgb[i] = uint8(v)
	}
	n, err := strconv.Atoi(fields[6])
	if err != nil || n < 0 {
		return sfm.Point{}, tr.errorf("invalid number of measurements %q", fields[6])
	}
	if len(fields) != 7+4*n {
		return sfm.Point{}, tr.errorf("point %d declares %d measurements but has %d values for them", index, n, len(fields)-7)
	}
	pt := sfm.Point{
		ID:           int64(index),
		Position:     r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]},
		Color:        color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255},
		Measurements: make([]sfm.Measurement, 0, n),
	}
	for i := 0; i < n; i++ {
		m := fields[7+4*i : 11+4*i]
		cameraIndex, err := strconv.ParseInt(m[0], 10, 64)
		if err != nil {
			return sfm.Point{}, tr.errorf("invalid camera index %q", m[0])
		}
		featureIndex, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return sfm.Point{}, tr.errorf("invalid feature index %q", m[1])
		}
		xy, err := tr.floats(m[2:4])
		if err != nil {
			return sfm.Point{}, err
		}
		pt.Measurements = append(pt.Measurements, sfm.Measurement{
			CameraID:     cameraIndex,
			FeatureIndex: featureIndex,
			X:            xy[0],
			Y:            xy[1],
		})
	}
	return pt, nil
}

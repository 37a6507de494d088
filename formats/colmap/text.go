package colmap

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/sfmimport/sfm"
	"go.viam.com/sfmimport/spatialmath"
)

// maxLineLength bounds a single images.txt line, which lists every 2D feature of an image.
const maxLineLength = 64 << 20

type lineReader struct {
	file    string
	scanner *bufio.Scanner
	line    int
}

func openLines(path string) (*lineReader, *os.File, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, sfm.NewMalformedFileError(path, "", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return &lineReader{file: path, scanner: scanner}, f, nil
}

// next returns the next line, trimmed. skipBlank skips comment and empty lines.
func (lr *lineReader) next(skipBlank bool) (string, bool, error) {
	for lr.scanner.Scan() {
		lr.line++
		line := strings.TrimSpace(lr.scanner.Text())
		if skipBlank && (line == "" || strings.HasPrefix(line, "#")) {
			continue
		}
		return line, true, nil
	}
	if err := lr.scanner.Err(); err != nil {
		return "", false, sfm.NewMalformedFileError(lr.file, lr.record(), err)
	}
	return "", false, nil
}

func (lr *lineReader) record() string {
	return fmt.Sprintf("line %d", lr.line)
}

func (lr *lineReader) errorf(format string, args ...interface{}) error {
	return sfm.MalformedFileErrorf(lr.file, lr.record(), format, args...)
}

func (lr *lineReader) floats(tokens []string) ([]float64, error) {
	out := make([]float64, len(tokens))
	for i, token := range tokens {
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, lr.errorf("invalid number %q", token)
		}
		out[i] = v
	}
	return out, nil
}

func (lr *lineReader) int64(token string) (int64, error) {
	v, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, lr.errorf("invalid integer %q", token)
	}
	return v, nil
}

func readTextModel(dir string) (*rawModel, error) {
	cameras, err := readCamerasText(filepath.Join(dir, "cameras.txt"))
	if err != nil {
		return nil, err
	}
	imgs, err := readImagesText(filepath.Join(dir, "images.txt"))
	if err != nil {
		return nil, err
	}
	points, err := readPointsText(filepath.Join(dir, "points3D.txt"))
	if err != nil {
		return nil, err
	}
	return &rawModel{cameras: cameras, images: imgs, points: points}, nil
}

// readCamerasText reads lines of CAMERA_ID MODEL WIDTH HEIGHT PARAMS[].
func readCamerasText(path string) ([]rawCamera, error) {
	lr, f, err := openLines(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var cameras []rawCamera
	for {
		line, ok, err := lr.next(true)
		if err != nil {
			return nil, err
		}
		if !ok {
			return cameras, nil
		}
		tokens := strings.Fields(line)
		if len(tokens) < 4 {
			return nil, lr.errorf("expected at least 4 values, got %d", len(tokens))
		}
		id, err := lr.int64(tokens[0])
		if err != nil {
			return nil, err
		}
		model, err := modelByName(tokens[1])
		if err != nil {
			return nil, sfm.NewMalformedFileError(path, lr.record(), err)
		}
		width, err := lr.int64(tokens[2])
		if err != nil {
			return nil, err
		}
		height, err := lr.int64(tokens[3])
		if err != nil {
			return nil, err
		}
		if len(tokens)-4 != model.numParams {
			return nil, lr.errorf("%s takes %d parameters, got %d", model.name, model.numParams, len(tokens)-4)
		}
		params, err := lr.floats(tokens[4:])
		if err != nil {
			return nil, err
		}
		cam, err := newRawCamera(id, model, width, height, params)
		if err != nil {
			return nil, sfm.NewMalformedFileError(path, lr.record(), err)
		}
		cameras = append(cameras, cam)
	}
}

func newRawCamera(id int64, model cameraModel, width, height int64, params []float64) (rawCamera, error) {
	if width <= 0 || height <= 0 {
		return rawCamera{}, errors.Errorf("camera %d has invalid size %dx%d", id, width, height)
	}
	return rawCamera{id: id, model: model, width: int(width), height: int(height), params: params}, nil
}

func newPose(q [4]float64, t [3]float64) (quat.Number, r3.Vector, error) {
	rot, err := spatialmath.Normalize(quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]})
	if err != nil {
		return quat.Number{}, r3.Vector{}, err
	}
	return rot, r3.Vector{X: t[0], Y: t[1], Z: t[2]}, nil
}

// readImagesText reads pairs of lines: IMAGE_ID QW QX QY QZ TX TY TZ CAMERA_ID NAME followed by
// POINTS2D[] as (X, Y, POINT3D_ID). The second line may be empty.
func readImagesText(path string) ([]rawImage, error) {
	lr, f, err := openLines(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var imgs []rawImage
	for {
		line, ok, err := lr.next(true)
		if err != nil {
			return nil, err
		}
		if !ok {
			return imgs, nil
		}
		tokens := strings.Fields(line)
		if len(tokens) < 10 {
			return nil, lr.errorf("expected 10 values, got %d", len(tokens))
		}
		id, err := lr.int64(tokens[0])
		if err != nil {
			return nil, err
		}
		values, err := lr.floats(tokens[1:8])
		if err != nil {
			return nil, err
		}
		rot, trans, err := newPose([4]float64(values[0:4]), [3]float64(values[4:7]))
		if err != nil {
			return nil, sfm.NewMalformedFileError(path, lr.record(), err)
		}
		cameraID, err := lr.int64(tokens[8])
		if err != nil {
			return nil, err
		}
		img := rawImage{
			id:       id,
			rotation: rot,
			trans:    trans,
			cameraID: cameraID,
			name:     strings.Join(tokens[9:], " "),
		}

		line, ok, err = lr.next(false)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, lr.errorf("file ends before the points2D line of image %d", id)
		}
		tokens = strings.Fields(line)
		if len(tokens)%3 != 0 {
			return nil, lr.errorf("points2D of image %d has %d values, not a multiple of 3", id, len(tokens))
		}
		img.points2D = make([]point2D, 0, len(tokens)/3)
		for i := 0; i < len(tokens); i += 3 {
			xy, err := lr.floats(tokens[i : i+2])
			if err != nil {
				return nil, err
			}
			point3DID, err := lr.int64(tokens[i+2])
			if err != nil {
				return nil, err
			}
			img.points2D = append(img.points2D, point2D{x: xy[0], y: xy[1], point3DID: point3DID})
		}
		imgs = append(imgs, img)
	}
}

// readPointsText reads lines of POINT3D_ID X Y Z R G B ERROR TRACK[] as (IMAGE_ID, POINT2D_IDX).
func readPointsText(path string) ([]rawPoint, error) {
	lr, f, err := openLines(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var points []rawPoint
	for {
		line, ok, err := lr.next(true)
		if err != nil {
			return nil, err
		}
		if !ok {
			return points, nil
		}
		tokens := strings.Fields(line)
		if len(tokens) < 8 || (len(tokens)-8)%2 != 0 {
			return nil, lr.errorf("expected 8 values and track pairs, got %d values", len(tokens))
		}
		id, err := lr.int64(tokens[0])
		if err != nil {
			return nil, err
		}
		xyz, err := lr.floats(tokens[1:4])
		if err != nil {
			return nil, err
		}
		var rgb [3]uint8
		for i := range rgb {
			v, err := strconv.ParseUint(tokens[4+i], 10, 8)
			if err != nil {
				return nil, lr.errorf("invalid color value %q", tokens[4+i])
			}
			rgb[i] = uint8(v)
		}
		reprojErr, err := lr.floats(tokens[7:8])
		if err != nil {
			return nil, err
		}
		pt := rawPoint{
			id:       id,
			position: r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]},
			rgb:      rgb,
			err:      reprojErr[0],
			track:    make([]trackElement, 0, (len(tokens)-8)/2),
		}
		for i := 8; i < len(tokens); i += 2 {
			imageID, err := lr.int64(tokens[i])
			if err != nil {
				return nil, err
			}
			idx, err := lr.int64(tokens[i+1])
			if err != nil {
				return nil, err
			}
			pt.track = append(pt.track, trackElement{imageID: imageID, point2DIdx: idx})
		}
		points = append(points, pt)
	}
}

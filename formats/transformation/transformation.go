// Package transformation reads a directory of rigid transform files that are applied in filename order.
package transformation

import (
	"bufio"
	"bytes"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/sfmimport/logging"
	"go.viam.com/sfmimport/sfm"
	"go.viam.com/sfmimport/spatialmath"
)

// File extensions holding a transform.
const (
	TextExtension = ".txt"
	JSONExtension = ".json"
)

// ParseDirectory reads every transform file of dir in lexicographic filename order. The first
// returned transform is applied first. An absent or empty directory yields an empty chain.
func ParseDirectory(dir string, logger logging.Logger) ([]spatialmath.RigidTransform, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debugw("transformation directory does not exist", "dir", dir)
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading transformation directory %q", dir)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case TextExtension, JSONExtension:
			files = append(files, name)
		default:
			logger.Debugw("skipping file without a transform extension", "file", filepath.Join(dir, name))
		}
	}
	sort.Strings(files)

	chain := make([]spatialmath.RigidTransform, 0, len(files))
	for _, name := range files {
		path := filepath.Join(dir, name)
		t, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		logger.Debugw("read transformation", "file", path, "scale", t.Scale, "translation", t.Translation)
		chain = append(chain, t)
	}
	logger.Infof("Number transformations: %d", len(chain))
	return chain, nil
}

// ParseFile reads one transform file, the format is chosen by extension. Content that is not a
// valid transform is reported as a MalformedFileError naming the file.
func ParseFile(path string) (spatialmath.RigidTransform, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return spatialmath.RigidTransform{}, errors.Wrapf(err, "reading transformation %q", path)
	}
	if strings.ToLower(filepath.Ext(path)) == JSONExtension {
		return parseJSON(path, data)
	}
	return parseText(path, data)
}

// parseText reads a 4x4 or 3x4 row major matrix. The upper 3x3 block is a rotation scaled uniformly.
func parseText(path string, data []byte) (spatialmath.RigidTransform, error) {
	var values []float64
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		for _, token := range strings.FieldsFunc(text, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ',' || r == '\r'
		}) {
			v, err := strconv.ParseFloat(token, 64)
			if err != nil {
				return spatialmath.RigidTransform{}, sfm.MalformedFileErrorf(path, lineRecord(line), "invalid number %q", token)
			}
			values = append(values, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return spatialmath.RigidTransform{}, sfm.NewMalformedFileError(path, lineRecord(line+1), err)
	}

	switch len(values) {
	case 16:
		last := values[12:]
		if math.Abs(last[0])+math.Abs(last[1])+math.Abs(last[2]) > 1e-9 || math.Abs(last[3]-1) > 1e-9 {
			return spatialmath.RigidTransform{}, sfm.MalformedFileErrorf(path, "row 4", "last row must be 0 0 0 1, got %v", last)
		}
	case 12:
	default:
		return spatialmath.RigidTransform{}, sfm.MalformedFileErrorf(path, "", "expected 12 or 16 values, got %d", len(values))
	}

	block := mat.NewDense(3, 3, []float64{
		values[0], values[1], values[2],
		values[4], values[5], values[6],
		values[8], values[9], values[10],
	})
	det := mat.Det(block)
	if det <= 0 {
		return spatialmath.RigidTransform{}, sfm.MalformedFileErrorf(path, rotationRecord,
			"rotation block determinant must be positive, got %v", det)
	}
	scale := math.Cbrt(det)
	block.Scale(1/scale, block)
	rot, err := spatialmath.NewRotationMatrix(block.RawMatrix().Data)
	if err != nil {
		return spatialmath.RigidTransform{}, sfm.NewMalformedFileError(path, rotationRecord, err)
	}
	t, err := spatialmath.NewRigidTransform(rot, r3.Vector{X: values[3], Y: values[7], Z: values[11]}, scale)
	if err != nil {
		return spatialmath.RigidTransform{}, sfm.NewMalformedFileError(path, "", err)
	}
	return t, nil
}

const rotationRecord = "rotation"

func lineRecord(line int) string {
	return "line " + strconv.Itoa(line)
}

type jsonTransform struct {
	Rotation       []float64 `json:"rotation"`
	RotationMatrix []float64 `json:"rotation_matrix"`
	Translation    []float64 `json:"translation"`
	Scale          *float64  `json:"scale"`
}

func parseJSON(path string, data []byte) (spatialmath.RigidTransform, error) {
	var raw jsonTransform
	if err := json5.Unmarshal(data, &raw); err != nil {
		return spatialmath.RigidTransform{}, sfm.NewMalformedFileError(path, "", errors.Wrap(err, "error parsing JSON5"))
	}

	var rot *spatialmath.RotationMatrix
	switch {
	case raw.Rotation != nil && raw.RotationMatrix != nil:
		return spatialmath.RigidTransform{}, sfm.MalformedFileErrorf(path, rotationRecord,
			"only one of rotation and rotation_matrix may be given")
	case raw.Rotation != nil:
		if len(raw.Rotation) != 4 {
			return spatialmath.RigidTransform{}, sfm.MalformedFileErrorf(path, rotationRecord,
				"rotation must be a [w, x, y, z] quaternion, got %d values", len(raw.Rotation))
		}
		q, err := spatialmath.Normalize(quat.Number{
			Real: raw.Rotation[0], Imag: raw.Rotation[1], Jmag: raw.Rotation[2], Kmag: raw.Rotation[3],
		})
		if err != nil {
			return spatialmath.RigidTransform{}, sfm.NewMalformedFileError(path, rotationRecord, err)
		}
		rot = spatialmath.QuatToRotationMatrix(q)
	case raw.RotationMatrix != nil:
		var err error
		if rot, err = spatialmath.NewRotationMatrix(raw.RotationMatrix); err != nil {
			return spatialmath.RigidTransform{}, sfm.NewMalformedFileError(path, "rotation_matrix", err)
		}
	default:
		rot = spatialmath.IdentityRotationMatrix()
	}

	var translation r3.Vector
	switch len(raw.Translation) {
	case 0:
	case 3:
		translation = r3.Vector{X: raw.Translation[0], Y: raw.Translation[1], Z: raw.Translation[2]}
	default:
		return spatialmath.RigidTransform{}, sfm.MalformedFileErrorf(path, "translation",
			"translation must have 3 values, got %d", len(raw.Translation))
	}

	scale := 1.
	if raw.Scale != nil {
		scale = *raw.Scale
	}
	t, err := spatialmath.NewRigidTransform(rot, translation, scale)
	if err != nil {
		return spatialmath.RigidTransform{}, sfm.NewMalformedFileError(path, "scale", err)
	}
	return t, nil
}

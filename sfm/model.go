// Package sfm contains the unified camera and point model every reconstruction format is read into.
package sfm

import (
	"image/color"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/sfmimport/camera"
	"go.viam.com/sfmimport/spatialmath"
)

// PoseConvention names how a camera's Rotation and Translation relate world and camera coordinates.
type PoseConvention int

const (
	// WorldToCamera poses map world points into the camera frame: x_c = R x_w + t.
	WorldToCamera PoseConvention = iota
	// CameraCenter poses hold the world to camera rotation and the camera center: x_c = R (x_w - C).
	CameraCenter
	// CameraToWorld poses hold the camera to world rotation and the camera center.
	CameraToWorld
)

func (c PoseConvention) String() string {
	switch c {
	case WorldToCamera:
		return "world_to_camera"
	case CameraCenter:
		return "camera_center"
	case CameraToWorld:
		return "camera_to_world"
	default:
		return "unknown"
	}
}

// DefaultPointColor is assigned to points read from files that carry no color.
var DefaultPointColor = color.NRGBA{R: 128, G: 128, B: 128, A: 255}

// Camera is one registered image of a reconstruction.
type Camera struct {
	ID int64 `json:"id"`
	// ImageName is the image reference exactly as the file spelled it.
	ImageName string `json:"image_name"`
	// ImagePath is the resolved location of the image, empty if unresolved.
	ImagePath string `json:"image_path,omitempty"`
	// Width and Height are 0 while unknown.
	Width       int               `json:"width,omitempty"`
	Height      int               `json:"height,omitempty"`
	Intrinsics  camera.Intrinsics `json:"intrinsics"`
	Rotation    quat.Number       `json:"rotation"`
	Translation r3.Vector         `json:"translation"`
	Convention  PoseConvention    `json:"convention"`
	Color       *color.NRGBA      `json:"color,omitempty"`
}

// Center returns the camera center in world coordinates.
func (c *Camera) Center() r3.Vector {
	switch c.Convention {
	case WorldToCamera:
		return spatialmath.RotateVector(spatialmath.InverseRotation(c.Rotation), c.Translation).Mul(-1)
	case CameraCenter, CameraToWorld:
		return c.Translation
	default:
		return c.Translation
	}
}

// CameraToWorldRotation returns the rotation taking camera frame directions to world directions.
func (c *Camera) CameraToWorldRotation() quat.Number {
	if c.Convention == CameraToWorld {
		return c.Rotation
	}
	return spatialmath.InverseRotation(c.Rotation)
}

// HasDimensions reports whether the image size is known.
func (c *Camera) HasDimensions() bool {
	return c.Width > 0 && c.Height > 0
}

// Measurement is the observation of a point in one camera's image.
type Measurement struct {
	CameraID int64 `json:"camera_id"`
	// FeatureIndex is the index of the 2D feature in the source file, -1 if the format has none.
	FeatureIndex int64   `json:"feature_index"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
}

// Point is one reconstructed 3D point.
type Point struct {
	ID           int64              `json:"id"`
	Position     r3.Vector          `json:"position"`
	Color        color.NRGBA        `json:"color"`
	Normal       *r3.Vector         `json:"normal,omitempty"`
	Attributes   map[string]float64 `json:"attributes,omitempty"`
	Measurements []Measurement      `json:"measurements,omitempty"`
}

// Model is the unified reconstruction: cameras, points and the non fatal problems met while reading.
type Model struct {
	Cameras  []Camera  `json:"cameras"`
	Points   []Point   `json:"points"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// CameraByID returns the camera with the given id.
func (m *Model) CameraByID(id int64) (*Camera, bool) {
	for i := range m.Cameras {
		if m.Cameras[i].ID == id {
			return &m.Cameras[i], true
		}
	}
	return nil, false
}

// Warn appends a warning.
func (m *Model) Warn(w Warning) {
	m.Warnings = append(m.Warnings, w)
}

// DropDanglingMeasurements removes measurements that reference a camera absent from the model,
// recording one DroppedMeasurement warning for each.
func (m *Model) DropDanglingMeasurements(file string) {
	known := lo.SliceToMap(m.Cameras, func(c Camera) (int64, struct{}) {
		return c.ID, struct{}{}
	})
	for i := range m.Points {
		p := &m.Points[i]
		kept := p.Measurements[:0]
		for _, meas := range p.Measurements {
			if _, ok := known[meas.CameraID]; ok {
				kept = append(kept, meas)
				continue
			}
			m.Warn(NewDroppedMeasurementWarning(file, p.ID, meas.CameraID))
		}
		p.Measurements = kept
	}
}

// Validate checks the invariants every parser output must hold.
func (m *Model) Validate() error {
	seenCameras := map[int64]struct{}{}
	for _, c := range m.Cameras {
		if _, ok := seenCameras[c.ID]; ok {
			return errors.Errorf("duplicate camera id %d", c.ID)
		}
		seenCameras[c.ID] = struct{}{}
		if !spatialmath.IsUnit(c.Rotation) {
			return errors.Errorf("camera %d rotation %v is not a unit quaternion", c.ID, c.Rotation)
		}
		if c.Width < 0 || c.Height < 0 || (c.Width == 0) != (c.Height == 0) {
			return errors.Errorf("camera %d has invalid image size %dx%d", c.ID, c.Width, c.Height)
		}
	}
	seenPoints := map[int64]struct{}{}
	for _, p := range m.Points {
		if _, ok := seenPoints[p.ID]; ok {
			return errors.Errorf("duplicate point id %d", p.ID)
		}
		seenPoints[p.ID] = struct{}{}
		for _, meas := range p.Measurements {
			if _, ok := seenCameras[meas.CameraID]; !ok {
				return errors.Errorf("point %d references unknown camera %d", p.ID, meas.CameraID)
			}
		}
	}
	return nil
}

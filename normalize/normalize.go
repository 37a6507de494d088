// Package normalize converts a parsed model into one pose convention and coordinate frame.
package normalize

import (
	"maps"
	"slices"

	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/sfmimport/sfm"
	"go.viam.com/sfmimport/spatialmath"
)

// SourceCameraAxes is the camera frame every supported format reads poses in.
const SourceCameraAxes = spatialmath.OpenCVCameraAxes

// Target describes the frame a model is normalized into.
type Target struct {
	CameraAxes spatialmath.CameraAxes
	// WorldRotation is applied to the world before any transformation chain, nil means identity.
	WorldRotation *spatialmath.RotationMatrix
}

// DefaultTarget is camera to world poses with OpenGL camera axes in the reconstruction's own world.
var DefaultTarget = Target{CameraAxes: spatialmath.OpenGLCameraAxes}

// ZUpTarget additionally turns a Y up world into a Z up one.
var ZUpTarget = Target{CameraAxes: spatialmath.OpenGLCameraAxes, WorldRotation: spatialmath.YUpToZUp()}

// Normalize returns a new model whose cameras use the CameraToWorld convention with target's camera
// axes, and whose cameras and points have the target world rotation and then chain applied.
// The input model is not modified.
func Normalize(model *sfm.Model, chain []spatialmath.RigidTransform, target Target) *sfm.Model {
	world := spatialmath.NewIdentityTransform()
	if target.WorldRotation != nil {
		world.Rotation = target.WorldRotation.Quaternion()
	}
	effective := world.Then(spatialmath.ComposeChain(chain))

	axes := target.CameraAxes
	if axes == "" {
		axes = SourceCameraAxes
	}
	flip := spatialmath.CameraAxesConversion(SourceCameraAxes, axes).Quaternion()

	out := &sfm.Model{
		Cameras:  make([]sfm.Camera, 0, len(model.Cameras)),
		Points:   make([]sfm.Point, 0, len(model.Points)),
		Warnings: slices.Clone(model.Warnings),
	}
	for _, c := range model.Cameras {
		out.Cameras = append(out.Cameras, normalizeCamera(c, flip, effective))
	}
	for _, p := range model.Points {
		out.Points = append(out.Points, transformPoint(p, effective))
	}
	return out
}

func normalizeCamera(c sfm.Camera, flip quat.Number, t spatialmath.RigidTransform) sfm.Camera {
	center := c.Center()
	rotation := spatialmath.ComposeRotations(flip, c.CameraToWorldRotation())

	out := c
	out.Rotation = t.ApplyRotation(rotation)
	out.Translation = t.Apply(center)
	out.Convention = sfm.CameraToWorld
	out.Intrinsics.Distortion.Parameters = slices.Clone(c.Intrinsics.Distortion.Parameters)
	if c.Color != nil {
		col := *c.Color
		out.Color = &col
	}
	return out
}

func transformPoint(p sfm.Point, t spatialmath.RigidTransform) sfm.Point {
	out := p
	out.Position = t.Apply(p.Position)
	if p.Normal != nil {
		n := spatialmath.RotateVector(t.Rotation, *p.Normal)
		out.Normal = &n
	}
	out.Attributes = maps.Clone(p.Attributes)
	out.Measurements = slices.Clone(p.Measurements)
	return out
}

package normalize

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/sfmimport/camera"
	"go.viam.com/sfmimport/sfm"
	"go.viam.com/sfmimport/spatialmath"
)

var quarterTurnZ = quat.Number{Real: math.Sqrt(0.5), Kmag: math.Sqrt(0.5)}

func vecAlmostEqual(t *testing.T, got, want r3.Vector) {
	t.Helper()
	test.That(t, got.X, test.ShouldAlmostEqual, want.X, 1e-9)
	test.That(t, got.Y, test.ShouldAlmostEqual, want.Y, 1e-9)
	test.That(t, got.Z, test.ShouldAlmostEqual, want.Z, 1e-9)
}

func sampleModel() *sfm.Model {
	normal := r3.Vector{Z: 1}
	return &sfm.Model{
		Cameras: []sfm.Camera{
			{
				ID: 1, ImageName: "a.jpg", Width: 640, Height: 480,
				Intrinsics: camera.Intrinsics{
					Model: camera.SimpleRadial, Fx: 500, Fy: 500, Ppx: 320, Ppy: 240,
					Distortion: camera.Distortion{Type: camera.RadialDistortionType, Parameters: []float64{0.1}},
				},
				Rotation: quarterTurnZ, Translation: r3.Vector{X: 1, Y: 2, Z: 3}, Convention: sfm.WorldToCamera,
			},
			{
				ID: 2, ImageName: "b.jpg",
				Rotation: quarterTurnZ, Translation: r3.Vector{X: 4, Y: 5, Z: 6}, Convention: sfm.CameraCenter,
			},
		},
		Points: []sfm.Point{
			{
				ID: 7, Position: r3.Vector{X: 1}, Color: sfm.DefaultPointColor, Normal: &normal,
				Attributes:   map[string]float64{"error": 0.5},
				Measurements: []sfm.Measurement{{CameraID: 1, FeatureIndex: 3, X: 10, Y: 20}},
			},
		},
		Warnings: []sfm.Warning{{Kind: sfm.UnresolvedImage, Message: "b.jpg"}},
	}
}

func TestNormalizeConventions(t *testing.T) {
	model := sampleModel()
	out := Normalize(model, nil, Target{CameraAxes: spatialmath.OpenCVCameraAxes})

	inverse := spatialmath.InverseRotation(quarterTurnZ)
	for _, c := range out.Cameras {
		test.That(t, c.Convention, test.ShouldEqual, sfm.CameraToWorld)
		test.That(t, spatialmath.QuaternionAlmostEqual(c.Rotation, inverse, 1e-9), test.ShouldBeTrue)
	}
	// x_c = R x_w + t, so the center is -R^T t.
	vecAlmostEqual(t, out.Cameras[0].Translation, spatialmath.RotateVector(inverse, r3.Vector{X: 1, Y: 2, Z: 3}).Mul(-1))
	vecAlmostEqual(t, out.Cameras[1].Translation, r3.Vector{X: 4, Y: 5, Z: 6})

	// The camera center maps to the camera frame origin.
	original := model.Cameras[0]
	vecAlmostEqual(t, spatialmath.RotateVector(original.Rotation, out.Cameras[0].Translation).Add(original.Translation), r3.Vector{})

	vecAlmostEqual(t, out.Points[0].Position, r3.Vector{X: 1})
	test.That(t, out.Warnings, test.ShouldResemble, model.Warnings)
}

func TestNormalizeOpenGLAxes(t *testing.T) {
	model := &sfm.Model{Cameras: []sfm.Camera{{ID: 1, Rotation: spatialmath.IdentityQuaternion()}}}
	out := Normalize(model, nil, DefaultTarget)

	// The camera looks along +Z in OpenCV axes, -Z in OpenGL axes, so the OpenGL view direction in
	// world coordinates must still be +Z.
	rot := out.Cameras[0].Rotation
	vecAlmostEqual(t, spatialmath.RotateVector(rot, r3.Vector{Z: -1}), r3.Vector{Z: 1})
	vecAlmostEqual(t, spatialmath.RotateVector(rot, r3.Vector{Y: 1}), r3.Vector{Y: -1})
	vecAlmostEqual(t, spatialmath.RotateVector(rot, r3.Vector{X: 1}), r3.Vector{X: 1})
}

func TestNormalizeChain(t *testing.T) {
	model := sampleModel()
	rot, err := spatialmath.NewRotationMatrix([]float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
	test.That(t, err, test.ShouldBeNil)
	turn, err := spatialmath.NewRigidTransform(rot, r3.Vector{}, 2)
	test.That(t, err, test.ShouldBeNil)
	shift, err := spatialmath.NewRigidTransform(spatialmath.IdentityRotationMatrix(), r3.Vector{Z: 1}, 1)
	test.That(t, err, test.ShouldBeNil)

	out := Normalize(model, []spatialmath.RigidTransform{turn, shift}, Target{CameraAxes: spatialmath.OpenCVCameraAxes})

	vecAlmostEqual(t, out.Points[0].Position, r3.Vector{Y: 2, Z: 1})
	vecAlmostEqual(t, *out.Points[0].Normal, r3.Vector{Z: 1})
	vecAlmostEqual(t, out.Cameras[1].Translation, r3.Vector{X: -10, Y: 8, Z: 13})

	plain := Normalize(model, nil, Target{CameraAxes: spatialmath.OpenCVCameraAxes})
	want := spatialmath.ComposeRotations(plain.Cameras[1].Rotation, turn.Rotation)
	test.That(t, spatialmath.QuaternionAlmostEqual(out.Cameras[1].Rotation, want, 1e-9), test.ShouldBeTrue)
	test.That(t, spatialmath.IsUnit(out.Cameras[1].Rotation), test.ShouldBeTrue)
}

func TestNormalizeWorldRotation(t *testing.T) {
	model := &sfm.Model{Points: []sfm.Point{{ID: 1, Position: r3.Vector{Y: 1}}}}
	out := Normalize(model, nil, ZUpTarget)
	vecAlmostEqual(t, out.Points[0].Position, r3.Vector{Z: 1})
}

func TestNormalizeIsPure(t *testing.T) {
	model := sampleModel()
	before := sampleModel()

	first := Normalize(model, nil, DefaultTarget)
	second := Normalize(model, nil, DefaultTarget)
	test.That(t, cmp.Diff(first, second), test.ShouldBeEmpty)
	test.That(t, cmp.Diff(model, before), test.ShouldBeEmpty)

	first.Points[0].Measurements[0].X = 99
	first.Points[0].Attributes["error"] = 99
	first.Cameras[0].Intrinsics.Distortion.Parameters[0] = 99
	first.Warnings[0].Message = "changed"
	test.That(t, cmp.Diff(model, before), test.ShouldBeEmpty)
}

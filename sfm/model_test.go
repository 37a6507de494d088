package sfm

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func TestCameraCenter(t *testing.T) {
	quarterZ := quat.Number{Real: math.Cos(math.Pi / 4), Kmag: math.Sin(math.Pi / 4)}
	// world to camera: x_c = R x_w + t with the center at (1, 0, 0) gives t = -R C = (0, -1, 0).
	c := Camera{Rotation: quarterZ, Translation: r3.Vector{Y: -1}, Convention: WorldToCamera}
	center := c.Center()
	test.That(t, center.X, test.ShouldAlmostEqual, 1)
	test.That(t, center.Y, test.ShouldAlmostEqual, 0)
	test.That(t, center.Z, test.ShouldAlmostEqual, 0)

	c.Convention = CameraCenter
	test.That(t, c.Center(), test.ShouldResemble, r3.Vector{Y: -1})
	test.That(t, c.CameraToWorldRotation().Kmag, test.ShouldAlmostEqual, -math.Sin(math.Pi/4))

	c.Convention = CameraToWorld
	test.That(t, c.CameraToWorldRotation(), test.ShouldResemble, quarterZ)
	test.That(t, CameraToWorld.String(), test.ShouldEqual, "camera_to_world")
}

func TestDropDanglingMeasurements(t *testing.T) {
	m := &Model{
		Cameras: []Camera{{ID: 1, Rotation: quat.Number{Real: 1}}},
		Points: []Point{
			{ID: 10, Measurements: []Measurement{{CameraID: 1}, {CameraID: 2}}},
			{ID: 11, Measurements: []Measurement{{CameraID: 3}}},
		},
	}
	test.That(t, m.Validate(), test.ShouldNotBeNil)

	m.DropDanglingMeasurements("points.txt")
	test.That(t, m.Points[0].Measurements, test.ShouldResemble, []Measurement{{CameraID: 1}})
	test.That(t, m.Points[1].Measurements, test.ShouldBeEmpty)
	test.That(t, m.Warnings, test.ShouldHaveLength, 2)
	test.That(t, CountWarnings(m.Warnings, DroppedMeasurement), test.ShouldEqual, 2)
	test.That(t, m.Warnings[0].Message, test.ShouldContainSubstring, "unknown camera 2")
	test.That(t, m.Validate(), test.ShouldBeNil)
}

func TestValidate(t *testing.T) {
	m := &Model{Cameras: []Camera{{ID: 1, Rotation: quat.Number{Real: 2}}}}
	test.That(t, m.Validate().Error(), test.ShouldContainSubstring, "unit quaternion")

	m = &Model{Cameras: []Camera{{ID: 1, Rotation: quat.Number{Real: 1}, Width: 10}}}
	test.That(t, m.Validate().Error(), test.ShouldContainSubstring, "image size")

	m = &Model{Cameras: []Camera{{ID: 1, Rotation: quat.Number{Real: 1}}, {ID: 1, Rotation: quat.Number{Real: 1}}}}
	test.That(t, m.Validate().Error(), test.ShouldContainSubstring, "duplicate camera")

	m = &Model{Points: []Point{{ID: 4}, {ID: 4}}}
	test.That(t, m.Validate().Error(), test.ShouldContainSubstring, "duplicate point")

	_, ok := m.CameraByID(1)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestErrorKinds(t *testing.T) {
	err := errors.Wrap(MalformedFileErrorf("cameras.txt", "line 3", "expected %d values", 4), "reading model")
	test.That(t, errors.Is(err, ErrMalformedFile), test.ShouldBeTrue)
	test.That(t, errors.Is(err, ErrMissingReference), test.ShouldBeFalse)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"cameras.txt" at line 3: expected 4 values`)

	var malformed *MalformedFileError
	test.That(t, errors.As(err, &malformed), test.ShouldBeTrue)
	test.That(t, malformed.Record, test.ShouldEqual, "line 3")

	err = NewMissingReferenceError("sfm_data.json", "view 2", "intrinsic", 7)
	test.That(t, errors.Is(err, ErrMissingReference), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "intrinsic 7")

	f, ok := ParseFormat("COLMAP")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, f, test.ShouldEqual, FormatColmap)
	_, ok = ParseFormat("obj")
	test.That(t, ok, test.ShouldBeFalse)
}

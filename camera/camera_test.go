package camera

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestIntrinsicsCheckValid(t *testing.T) {
	var nilIntrinsics *Intrinsics
	test.That(t, errors.Is(nilIntrinsics.CheckValid(), ErrNoIntrinsics), test.ShouldBeTrue)

	in := NewPinholeIntrinsics(1000, 320, 240)
	test.That(t, in.CheckValid(), test.ShouldBeNil)
	test.That(t, in.PrincipalPointUnset(), test.ShouldBeFalse)

	in.Fy = 0
	err := in.CheckValid()
	test.That(t, errors.Is(err, ErrNoIntrinsics), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "Fy")

	in = NewPinholeIntrinsics(1000, 320, 240)
	in.Distortion = Distortion{Type: KannalaBrandtDistortionType, Parameters: []float64{1, 2, 3, 4, 5}}
	test.That(t, in.CheckValid(), test.ShouldNotBeNil)
	in.Distortion = Distortion{Type: "unknown"}
	test.That(t, in.CheckValid(), test.ShouldNotBeNil)
}

func TestPointToPixel(t *testing.T) {
	in := NewPinholeIntrinsics(100, 50, 40)
	u, v, ok := in.PointToPixel(1, 2, 10)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, u, test.ShouldAlmostEqual, 60)
	test.That(t, v, test.ShouldAlmostEqual, 60)

	_, _, ok = in.PointToPixel(1, 2, -1)
	test.That(t, ok, test.ShouldBeFalse)

	k := in.CameraMatrix()
	test.That(t, k.At(0, 2), test.ShouldEqual, 50.)
	test.That(t, k.At(2, 2), test.ShouldEqual, 1.)
}

func TestDistorters(t *testing.T) {
	bc, err := NewBrownConrady(nil)
	test.That(t, err, test.ShouldBeNil)
	x, y := bc.Transform(0.3, -0.2)
	test.That(t, x, test.ShouldAlmostEqual, 0.3)
	test.That(t, y, test.ShouldAlmostEqual, -0.2)

	// undoing the distortion must give back the undistorted point
	d, err := Distortion{Type: NVMRadialDistortionType, Parameters: []float64{0.1}}.Distorter()
	test.That(t, err, test.ShouldBeNil)
	x, y = d.Transform(0.6, 0.8)
	r2 := x*x + y*y
	test.That(t, x*(1+0.1*r2), test.ShouldAlmostEqual, 0.6, 1e-9)
	test.That(t, y*(1+0.1*r2), test.ShouldAlmostEqual, 0.8, 1e-9)

	rational, err := NewDistorter(FullOpenCVDistortionType, []float64{0.1, 0, 0, 0, 0, 0.1})
	test.That(t, err, test.ShouldBeNil)
	x, _ = rational.Transform(1, 0)
	test.That(t, x, test.ShouldAlmostEqual, 1)
	test.That(t, rational.Parameters(), test.ShouldHaveLength, 8)

	_, err = NewBrownConrady([]float64{1, 2, 3, 4, 5, 6})
	test.That(t, err, test.ShouldNotBeNil)

	kb, err := NewDistorter(KannalaBrandtDistortionType, []float64{})
	test.That(t, err, test.ShouldBeNil)
	x, y = kb.Transform(0, 0)
	test.That(t, x, test.ShouldEqual, 0.)
	test.That(t, y, test.ShouldEqual, 0.)

	fov, err := NewDistorter(FOVDistortionType, []float64{0.5})
	test.That(t, err, test.ShouldBeNil)
	x, _ = fov.Transform(1, 0)
	test.That(t, x, test.ShouldAlmostEqual, math.Atan(2*math.Tan(0.25))/0.5)

	_, err = NewDistorter(ThinPrismDistortionType, []float64{0.5})
	test.That(t, err, test.ShouldNotBeNil)

	none, err := Distortion{}.Distorter()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, none, test.ShouldBeNil)
}

func TestIntrinsicsDistorter(t *testing.T) {
	// NVM stores a pixel coefficient: undistorted = distorted * (1 + k r^2) in pixels
	in := NewPinholeIntrinsics(100, 0, 0)
	in.Distortion = Distortion{Type: NVMRadialDistortionType, Parameters: []float64{1e-5}}
	u, v, ok := in.PointToPixel(0.6, 0.8, 1)
	test.That(t, ok, test.ShouldBeTrue)
	r2 := u*u + v*v
	test.That(t, u*(1+1e-5*r2), test.ShouldAlmostEqual, 60, 1e-6)
	test.That(t, v*(1+1e-5*r2), test.ShouldAlmostEqual, 80, 1e-6)

	in.Distortion = Distortion{Type: ThinPrismDistortionType}
	_, _, ok = in.PointToPixel(0.6, 0.8, 1)
	test.That(t, ok, test.ShouldBeFalse)
}

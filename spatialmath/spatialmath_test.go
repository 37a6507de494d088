package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"
)

func vecAlmostEqual(t *testing.T, got, want r3.Vector) {
	t.Helper()
	test.That(t, got.X, test.ShouldAlmostEqual, want.X, 1e-9)
	test.That(t, got.Y, test.ShouldAlmostEqual, want.Y, 1e-9)
	test.That(t, got.Z, test.ShouldAlmostEqual, want.Z, 1e-9)
}

func TestNormalize(t *testing.T) {
	q, err := Normalize(quat.Number{Real: -2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, q.Real, test.ShouldEqual, 1.)
	test.That(t, quat.Abs(q), test.ShouldEqual, 1.)

	q, err = Normalize(quat.Number{Real: 1, Imag: 1, Jmag: 1, Kmag: 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, IsUnit(q), test.ShouldBeTrue)
	test.That(t, q.Imag, test.ShouldAlmostEqual, 0.5)

	_, err = Normalize(quat.Number{})
	test.That(t, err, test.ShouldEqual, ErrZeroQuaternion)
}

func TestQuaternionMatrixRoundTrip(t *testing.T) {
	inputs := []quat.Number{
		{Real: 1},
		{Real: math.Cos(math.Pi / 8), Kmag: math.Sin(math.Pi / 8)},
		{Real: 0.1, Imag: 0.7, Jmag: -0.2, Kmag: 0.3},
		{Real: 0, Imag: 1},
		{Real: 0.01, Imag: -0.3, Jmag: 0.9, Kmag: 0.2},
	}
	for _, in := range inputs {
		q, err := Normalize(in)
		test.That(t, err, test.ShouldBeNil)
		rm := QuatToRotationMatrix(q)
		test.That(t, rm.CheckValid(), test.ShouldBeNil)
		back := rm.Quaternion()
		test.That(t, QuaternionAlmostEqual(q, back, 1e-9), test.ShouldBeTrue)

		v := r3.Vector{X: 0.3, Y: -1.2, Z: 2}
		vecAlmostEqual(t, rm.MulVec(v), RotateVector(q, v))
		vecAlmostEqual(t, rm.Transpose().MulVec(rm.MulVec(v)), v)
	}
}

func TestRotationMatrixCheckValid(t *testing.T) {
	_, err := NewRotationMatrix([]float64{1, 2, 3})
	test.That(t, err, test.ShouldNotBeNil)

	scaled, err := NewRotationMatrix([]float64{2, 0, 0, 0, 2, 0, 0, 0, 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, scaled.CheckValid(), test.ShouldNotBeNil)

	reflection, err := NewRotationMatrix([]float64{-1, 0, 0, 0, 1, 0, 0, 0, 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reflection.CheckValid().Error(), test.ShouldContainSubstring, "determinant")

	test.That(t, YUpToZUp().CheckValid(), test.ShouldBeNil)
	test.That(t, CameraAxesConversion(OpenCVCameraAxes, OpenGLCameraAxes).CheckValid(), test.ShouldBeNil)
	test.That(t, CameraAxesConversion(OpenGLCameraAxes, OpenGLCameraAxes), test.ShouldResemble, IdentityRotationMatrix())
}

func TestRigidTransformApply(t *testing.T) {
	quarterZ := QuatToRotationMatrix(quat.Number{Real: math.Cos(math.Pi / 4), Kmag: math.Sin(math.Pi / 4)})
	tf, err := NewRigidTransform(quarterZ, r3.Vector{X: 1, Y: 2, Z: 3}, 2)
	test.That(t, err, test.ShouldBeNil)
	vecAlmostEqual(t, tf.Apply(r3.Vector{X: 1}), r3.Vector{X: 1, Y: 4, Z: 3})
	vecAlmostEqual(t, tf.Inverse().Apply(tf.Apply(r3.Vector{X: 5, Y: -1, Z: 0.5})), r3.Vector{X: 5, Y: -1, Z: 0.5})

	_, err = NewRigidTransform(quarterZ, r3.Vector{}, 0)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, NewIdentityTransform().IsIdentity(1e-12), test.ShouldBeTrue)
	test.That(t, tf.IsIdentity(1e-6), test.ShouldBeFalse)
}

func TestComposeChainOrder(t *testing.T) {
	rotate := RigidTransform{
		Rotation: quat.Number{Real: math.Cos(math.Pi / 4), Kmag: math.Sin(math.Pi / 4)},
		Scale:    1,
	}
	shift := RigidTransform{Rotation: IdentityQuaternion(), Translation: r3.Vector{X: 1}, Scale: 1}
	p := r3.Vector{X: 1}

	// rotate then shift: (0,1,0) + (1,0,0)
	vecAlmostEqual(t, ComposeChain([]RigidTransform{rotate, shift}).Apply(p), r3.Vector{X: 1, Y: 1})
	// shift then rotate: (2,0,0) rotated
	vecAlmostEqual(t, ComposeChain([]RigidTransform{shift, rotate}).Apply(p), r3.Vector{Y: 2})

	chain := []RigidTransform{rotate, shift, {Rotation: IdentityQuaternion(), Scale: 3}}
	composed := ComposeChain(chain)
	stepwise := p
	for _, tf := range chain {
		stepwise = tf.Apply(stepwise)
	}
	vecAlmostEqual(t, composed.Apply(p), stepwise)
	test.That(t, ComposeChain(nil).IsIdentity(0), test.ShouldBeTrue)
}

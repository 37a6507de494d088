package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// unitEpsilon is how far from 1 the norm of a quaternion may be for it to count as a unit quaternion.
const unitEpsilon = 1e-6

// ErrZeroQuaternion is returned when a quaternion with no length is normalized.
var ErrZeroQuaternion = errors.New("quaternion has zero length")

// IdentityQuaternion returns the quaternion of no rotation.
func IdentityQuaternion() quat.Number {
	return quat.Number{Real: 1}
}

// Normalize scales q to unit length and flips it to the hemisphere with a non negative real part.
// q and -q describe the same rotation, the flip keeps outputs deterministic.
func Normalize(q quat.Number) (quat.Number, error) {
	norm := quat.Abs(q)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return quat.Number{}, ErrZeroQuaternion
	}
	q = quat.Scale(1/norm, q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return q, nil
}

// IsUnit reports whether q has unit length.
func IsUnit(q quat.Number) bool {
	return math.Abs(quat.Abs(q)-1) <= unitEpsilon
}

// QuatToRotationMatrix converts a unit quaternion (w, x, y, z) to the rotation matrix it applies.
func QuatToRotationMatrix(q quat.Number) *RotationMatrix {
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return &RotationMatrix{[9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	}}
}

// RotateVector rotates v by the unit quaternion q.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	out := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: out.Imag, Y: out.Jmag, Z: out.Kmag}
}

// ComposeRotations returns the rotation equal to applying first and then second.
func ComposeRotations(first, second quat.Number) quat.Number {
	out, err := Normalize(quat.Mul(second, first))
	if err != nil {
		return IdentityQuaternion()
	}
	return out
}

// InverseRotation returns the inverse of the unit quaternion q.
func InverseRotation(q quat.Number) quat.Number {
	out, err := Normalize(quat.Conj(q))
	if err != nil {
		return IdentityQuaternion()
	}
	return out
}

// QuaternionAlmostEqual reports whether a and b describe the same rotation within tol.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	return quat.Abs(quat.Sub(a, b)) <= tol || quat.Abs(quat.Add(a, b)) <= tol
}

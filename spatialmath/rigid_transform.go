package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// RigidTransform is a similarity transform: a rotation, a uniform scale and a translation.
// Applied to a point it computes Scale * R * p + Translation.
type RigidTransform struct {
	Rotation    quat.Number
	Translation r3.Vector
	Scale       float64
}

// NewIdentityTransform returns the transform that leaves every point unchanged.
func NewIdentityTransform() RigidTransform {
	return RigidTransform{Rotation: IdentityQuaternion(), Scale: 1}
}

// NewRigidTransform builds a transform from a rotation matrix, translation and scale.
func NewRigidTransform(rot *RotationMatrix, translation r3.Vector, scale float64) (RigidTransform, error) {
	if err := rot.CheckValid(); err != nil {
		return RigidTransform{}, err
	}
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return RigidTransform{}, errors.Errorf("scale must be a positive number, got %v", scale)
	}
	return RigidTransform{Rotation: rot.Quaternion(), Translation: translation, Scale: scale}, nil
}

// Apply transforms a point.
func (t RigidTransform) Apply(p r3.Vector) r3.Vector {
	return RotateVector(t.Rotation, p).Mul(t.Scale).Add(t.Translation)
}

// ApplyRotation rotates an orientation, scale does not apply to rotations.
func (t RigidTransform) ApplyRotation(q quat.Number) quat.Number {
	return ComposeRotations(q, t.Rotation)
}

// Then returns the transform equal to applying t first and next second.
func (t RigidTransform) Then(next RigidTransform) RigidTransform {
	return RigidTransform{
		Rotation:    ComposeRotations(t.Rotation, next.Rotation),
		Translation: next.Apply(t.Translation),
		Scale:       next.Scale * t.Scale,
	}
}

// Inverse returns the transform that undoes t.
func (t RigidTransform) Inverse() RigidTransform {
	inv := InverseRotation(t.Rotation)
	return RigidTransform{
		Rotation:    inv,
		Translation: RotateVector(inv, t.Translation).Mul(-1 / t.Scale),
		Scale:       1 / t.Scale,
	}
}

// IsIdentity reports whether t leaves points unchanged within tol.
func (t RigidTransform) IsIdentity(tol float64) bool {
	return QuaternionAlmostEqual(t.Rotation, IdentityQuaternion(), tol) &&
		t.Translation.Norm() <= tol && math.Abs(t.Scale-1) <= tol
}

// ComposeChain composes transforms in order: the result applies chain[0] first and chain[len-1]
// last, T_n ∘ … ∘ T_1. An empty chain yields the identity.
func ComposeChain(chain []RigidTransform) RigidTransform {
	out := NewIdentityTransform()
	for _, t := range chain {
		out = out.Then(t)
	}
	return out
}

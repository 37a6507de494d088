package camera

import (
	"math"

	"github.com/pkg/errors"
)

// DistortionType is the name of the distortion model.
type DistortionType string

const (
	// NoDistortion is for ideal pinhole cameras.
	NoDistortion = DistortionType("")
	// RadialDistortionType holds up to three radial coefficients k1, k2, k3.
	RadialDistortionType = DistortionType("radial")
	// BrownConradyDistortionType is for simple lenses of narrow field easily modeled as a pinhole camera,
	// parameters k1, k2, k3, p1, p2.
	BrownConradyDistortionType = DistortionType("brown_conrady")
	// KannalaBrandtDistortionType is for wide-angle and fisheye lense distortion, parameters k1..k4.
	KannalaBrandtDistortionType = DistortionType("kannala_brandt")
	// FOVDistortionType is the field of view model with a single omega parameter.
	FOVDistortionType = DistortionType("fov")
	// FullOpenCVDistortionType is the rational model k1, k2, p1, p2, k3, k4, k5, k6.
	FullOpenCVDistortionType = DistortionType("full_opencv")
	// ThinPrismDistortionType is the thin prism fisheye model k1, k2, p1, p2, k3, k4, sx1, sy1.
	ThinPrismDistortionType = DistortionType("thin_prism")
	// NVMRadialDistortionType is the single coefficient radial model of VisualSFM.
	NVMRadialDistortionType = DistortionType("nvm_radial")
)

var maxParameters = map[DistortionType]int{
	NoDistortion:                0,
	RadialDistortionType:        3,
	BrownConradyDistortionType:  5,
	KannalaBrandtDistortionType: 4,
	FOVDistortionType:           1,
	FullOpenCVDistortionType:    8,
	ThinPrismDistortionType:     8,
	NVMRadialDistortionType:     1,
}

// Distortion is a distortion model name and its coefficients as read from a file.
type Distortion struct {
	Type       DistortionType `json:"type,omitempty"`
	Parameters []float64      `json:"parameters,omitempty"`
}

// CheckValid checks the parameter count against the model.
func (d Distortion) CheckValid() error {
	limit, ok := maxParameters[d.Type]
	if !ok {
		return errors.Errorf("do not know %q distortion model", d.Type)
	}
	if len(d.Parameters) > limit {
		return InvalidDistortionError(
			errors.Errorf("%s takes at most %d parameters, got %d", d.Type, limit, len(d.Parameters)).Error())
	}
	return nil
}

// Distorter returns a Distorter for the models that can be evaluated, or nil for no distortion.
// Models whose coefficients depend on the focal length are built by Intrinsics.Distorter.
func (d Distortion) Distorter() (Distorter, error) {
	if d.Type == NoDistortion {
		return nil, nil
	}
	return NewDistorter(d.Type, d.Parameters)
}

// Distorter defines a Transform that takes an undistorted normalized point and distorts it according to the model.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Transform(x, y float64) (float64, float64)
}

// InvalidDistortionError is used when the distortion parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrap(errors.New("invalid distortion parameters"), msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters. The
// coefficient of NVMRadialDistortionType must already be scaled to normalized coordinates,
// Intrinsics.Distorter does that.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType { //nolint:exhaustive
	case BrownConradyDistortionType, RadialDistortionType:
		return NewBrownConrady(parameters)
	case KannalaBrandtDistortionType:
		return NewKannalaBrandt(parameters)
	case FullOpenCVDistortionType:
		return NewRationalPolynomial(parameters)
	case FOVDistortionType:
		return NewFieldOfView(parameters)
	case NVMRadialDistortionType:
		return NewVisualSFMRadial(parameters)
	default:
		return nil, errors.Errorf("do not know how to evaluate %q distortion model", distortionType)
	}
}

// BrownConrady is the radial + tangential lens model.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	RadialK3     float64 `json:"rk3"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
}

// NewBrownConrady takes in a slice of floats that will be passed into the struct in order.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > 5 {
		return nil, errors.Errorf("list of parameters too long, expected max 5, got %d", len(inp))
	}
	params := make([]float64, 5)
	copy(params, inp)
	return &BrownConrady{params[0], params[1], params[2], params[3], params[4]}, nil
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{bc.RadialK1, bc.RadialK2, bc.RadialK3, bc.TangentialP1, bc.TangentialP2}
}

// Transform distorts the normalized point (x, y).
func (bc *BrownConrady) Transform(x, y float64) (float64, float64) {
	if bc == nil {
		return x, y
	}
	r2 := x*x + y*y
	radial := 1 + bc.RadialK1*r2 + bc.RadialK2*r2*r2 + bc.RadialK3*r2*r2*r2
	xd := x*radial + 2*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2*x*x)
	yd := y*radial + 2*bc.TangentialP2*x*y + bc.TangentialP1*(r2+2*y*y)
	return xd, yd
}

// KannalaBrandt is the equidistant fisheye model.
type KannalaBrandt struct {
	K1, K2, K3, K4 float64
}

// NewKannalaBrandt takes up to four coefficients.
func NewKannalaBrandt(inp []float64) (*KannalaBrandt, error) {
	if len(inp) > 4 {
		return nil, errors.Errorf("list of parameters too long, expected max 4, got %d", len(inp))
	}
	params := make([]float64, 4)
	copy(params, inp)
	return &KannalaBrandt{params[0], params[1], params[2], params[3]}, nil
}

// CheckValid checks if the fields for KannalaBrandt have valid inputs.
func (kb *KannalaBrandt) CheckValid() error {
	if kb == nil {
		return InvalidDistortionError("KannalaBrandt shaped distortion parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (kb *KannalaBrandt) ModelType() DistortionType {
	return KannalaBrandtDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (kb *KannalaBrandt) Parameters() []float64 {
	return []float64{kb.K1, kb.K2, kb.K3, kb.K4}
}

// Transform distorts the normalized point (x, y).
func (kb *KannalaBrandt) Transform(x, y float64) (float64, float64) {
	r := math.Hypot(x, y)
	if r < 1e-12 {
		return x, y
	}
	theta := math.Atan(r)
	t2 := theta * theta
	thetaD := theta * (1 + kb.K1*t2 + kb.K2*t2*t2 + kb.K3*t2*t2*t2 + kb.K4*t2*t2*t2*t2)
	scale := thetaD / r
	return x * scale, y * scale
}

// RationalPolynomial is OpenCV's full model: radial ratio k1, k2, k3 over k4, k5, k6 and tangential p1, p2.
// Parameters are in file order k1, k2, p1, p2, k3, k4, k5, k6.
type RationalPolynomial struct {
	K1, K2, P1, P2, K3, K4, K5, K6 float64
}

// NewRationalPolynomial takes up to eight coefficients.
func NewRationalPolynomial(inp []float64) (*RationalPolynomial, error) {
	if len(inp) > 8 {
		return nil, errors.Errorf("list of parameters too long, expected max 8, got %d", len(inp))
	}
	p := make([]float64, 8)
	copy(p, inp)
	return &RationalPolynomial{p[0], p[1], p[2], p[3], p[4], p[5], p[6], p[7]}, nil
}

// CheckValid checks if the fields for RationalPolynomial have valid inputs.
func (rp *RationalPolynomial) CheckValid() error {
	if rp == nil {
		return InvalidDistortionError("RationalPolynomial shaped distortion parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (rp *RationalPolynomial) ModelType() DistortionType {
	return FullOpenCVDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (rp *RationalPolynomial) Parameters() []float64 {
	return []float64{rp.K1, rp.K2, rp.P1, rp.P2, rp.K3, rp.K4, rp.K5, rp.K6}
}

// Transform distorts the normalized point (x, y).
func (rp *RationalPolynomial) Transform(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	r4 := r2 * r2
	r6 := r4 * r2
	radial := (1 + rp.K1*r2 + rp.K2*r4 + rp.K3*r6) / (1 + rp.K4*r2 + rp.K5*r4 + rp.K6*r6)
	xd := x*radial + 2*rp.P1*x*y + rp.P2*(r2+2*x*x)
	yd := y*radial + rp.P1*(r2+2*y*y) + 2*rp.P2*x*y
	return xd, yd
}

// FieldOfView is the single parameter model of Devernay and Faugeras.
type FieldOfView struct {
	Omega float64
}

// NewFieldOfView takes the omega parameter.
func NewFieldOfView(inp []float64) (*FieldOfView, error) {
	if len(inp) > 1 {
		return nil, errors.Errorf("list of parameters too long, expected max 1, got %d", len(inp))
	}
	fov := &FieldOfView{}
	if len(inp) == 1 {
		fov.Omega = inp[0]
	}
	return fov, nil
}

// CheckValid checks if the fields for FieldOfView have valid inputs.
func (fov *FieldOfView) CheckValid() error {
	if fov == nil {
		return InvalidDistortionError("FieldOfView shaped distortion parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (fov *FieldOfView) ModelType() DistortionType {
	return FOVDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (fov *FieldOfView) Parameters() []float64 {
	return []float64{fov.Omega}
}

// Transform distorts the normalized point (x, y).
func (fov *FieldOfView) Transform(x, y float64) (float64, float64) {
	if math.Abs(fov.Omega) < 1e-9 {
		return x, y
	}
	tan2 := 2 * math.Tan(fov.Omega/2)
	r := math.Hypot(x, y)
	if r < 1e-12 {
		factor := tan2 / fov.Omega
		return x * factor, y * factor
	}
	factor := math.Atan(r*tan2) / (r * fov.Omega)
	return x * factor, y * factor
}

// VisualSFMRadial is the model of NVM files, which store the coefficient undoing the distortion:
// undistorted = distorted * (1 + K * r_distorted^2).
type VisualSFMRadial struct {
	K float64
}

// NewVisualSFMRadial takes the coefficient in normalized coordinates.
func NewVisualSFMRadial(inp []float64) (*VisualSFMRadial, error) {
	if len(inp) > 1 {
		return nil, errors.Errorf("list of parameters too long, expected max 1, got %d", len(inp))
	}
	vr := &VisualSFMRadial{}
	if len(inp) == 1 {
		vr.K = inp[0]
	}
	return vr, nil
}

// CheckValid checks if the fields for VisualSFMRadial have valid inputs.
func (vr *VisualSFMRadial) CheckValid() error {
	if vr == nil {
		return InvalidDistortionError("VisualSFMRadial shaped distortion parameters not provided")
	}
	return nil
}

// ModelType returns the type of distortion model.
func (vr *VisualSFMRadial) ModelType() DistortionType {
	return NVMRadialDistortionType
}

// Parameters returns the parameters of the distortion model as a list of floats.
func (vr *VisualSFMRadial) Parameters() []float64 {
	return []float64{vr.K}
}

// Transform distorts the normalized point (x, y) by solving r_u = r_d * (1 + K r_d^2) for r_d.
func (vr *VisualSFMRadial) Transform(x, y float64) (float64, float64) {
	ru := math.Hypot(x, y)
	if vr.K == 0 || ru < 1e-12 {
		return x, y
	}
	rd := ru
	for i := 0; i < 20; i++ {
		slope := 1 + 3*vr.K*rd*rd
		if math.Abs(slope) < 1e-12 {
			break
		}
		step := (rd + vr.K*rd*rd*rd - ru) / slope
		rd -= step
		if math.Abs(step) < 1e-14 {
			break
		}
	}
	return x * rd / ru, y * rd / ru
}

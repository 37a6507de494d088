// Package camera defines the pinhole intrinsics and lens distortion models read from reconstructions.
package camera

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have usable intrinsics parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrap(ErrNoIntrinsics, msg)
}

// Model is the name of the projection model the intrinsics were estimated with.
type Model string

// Projection models found across the supported reconstruction formats.
const (
	SimplePinhole       = Model("simple_pinhole")
	Pinhole             = Model("pinhole")
	SimpleRadial        = Model("simple_radial")
	Radial              = Model("radial")
	OpenCV              = Model("opencv")
	OpenCVFisheye       = Model("opencv_fisheye")
	FullOpenCV          = Model("full_opencv")
	FOV                 = Model("fov")
	SimpleRadialFisheye = Model("simple_radial_fisheye")
	RadialFisheye       = Model("radial_fisheye")
	ThinPrismFisheye    = Model("thin_prism_fisheye")
)

// Intrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the
// 2D plane. Image size lives on the camera since it may be unknown until the image is read.
type Intrinsics struct {
	Model      Model      `json:"model"`
	Fx         float64    `json:"fx"`
	Fy         float64    `json:"fy"`
	Ppx        float64    `json:"ppx"`
	Ppy        float64    `json:"ppy"`
	Distortion Distortion `json:"distortion"`
}

// NewPinholeIntrinsics returns undistorted intrinsics with a square pixel focal length.
func NewPinholeIntrinsics(focal, ppx, ppy float64) Intrinsics {
	return Intrinsics{Model: SimplePinhole, Fx: focal, Fy: focal, Ppx: ppx, Ppy: ppy}
}

// CheckValid checks if the fields for Intrinsics have valid inputs.
func (params *Intrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	for _, v := range []float64{params.Fx, params.Fy, params.Ppx, params.Ppy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewNoIntrinsicsError("Intrinsics contain a non finite value")
		}
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	return params.Distortion.CheckValid()
}

// PrincipalPointUnset reports whether no principal point was read for these intrinsics.
func (params *Intrinsics) PrincipalPointUnset() bool {
	return params.Ppx == 0 && params.Ppy == 0
}

// CameraMatrix returns the 3x3 calibration matrix K.
func (params *Intrinsics) CameraMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// Distorter returns the Distorter of these intrinsics, or nil for no distortion. The NVM
// coefficient is given in pixels and is scaled by the focal length here.
func (params *Intrinsics) Distorter() (Distorter, error) {
	if params.Distortion.Type != NVMRadialDistortionType {
		return params.Distortion.Distorter()
	}
	scaled := make([]float64, len(params.Distortion.Parameters))
	for i, k := range params.Distortion.Parameters {
		scaled[i] = k * params.Fx * params.Fy
	}
	return NewDistorter(NVMRadialDistortionType, scaled)
}

// PointToPixel projects a point in camera coordinates, OpenCV axes, to the image plane, applying
// distortion. Points behind or on the camera plane, and lens models that cannot be evaluated,
// return ok == false.
func (params *Intrinsics) PointToPixel(x, y, z float64) (float64, float64, bool) {
	if z <= 0 {
		return -1, -1, false
	}
	u, v := x/z, y/z
	d, err := params.Distorter()
	if err != nil {
		return -1, -1, false
	}
	if d != nil {
		u, v = d.Transform(u, v)
	}
	var pixel mat.VecDense
	pixel.MulVec(params.CameraMatrix(), mat.NewVecDense(3, []float64{u, v, 1}))
	return pixel.AtVec(0), pixel.AtVec(1), true
}

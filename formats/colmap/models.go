package colmap

import (
	"github.com/pkg/errors"

	"go.viam.com/sfmimport/camera"
)

// cameraModel describes one of the COLMAP camera models and how its parameters map onto intrinsics.
type cameraModel struct {
	id           int32
	name         string
	numParams    int
	toIntrinsics func(p []float64) camera.Intrinsics
}

func focalCenter(model camera.Model, f, cx, cy float64) camera.Intrinsics {
	in := camera.NewPinholeIntrinsics(f, cx, cy)
	in.Model = model
	return in
}

func focalsCenter(model camera.Model, p []float64) camera.Intrinsics {
	return camera.Intrinsics{Model: model, Fx: p[0], Fy: p[1], Ppx: p[2], Ppy: p[3]}
}

func withDistortion(in camera.Intrinsics, t camera.DistortionType, params ...float64) camera.Intrinsics {
	in.Distortion = camera.Distortion{Type: t, Parameters: params}
	return in
}

// cameraModels is indexed by COLMAP model id, see colmap/src/colmap/sensor/models.h.
var cameraModels = []cameraModel{
	{0, "SIMPLE_PINHOLE", 3, func(p []float64) camera.Intrinsics {
		return focalCenter(camera.SimplePinhole, p[0], p[1], p[2])
	}},
	{1, "PINHOLE", 4, func(p []float64) camera.Intrinsics {
		return focalsCenter(camera.Pinhole, p)
	}},
	{2, "SIMPLE_RADIAL", 4, func(p []float64) camera.Intrinsics {
		return withDistortion(focalCenter(camera.SimpleRadial, p[0], p[1], p[2]), camera.RadialDistortionType, p[3])
	}},
	{3, "RADIAL", 5, func(p []float64) camera.Intrinsics {
		return withDistortion(focalCenter(camera.Radial, p[0], p[1], p[2]), camera.RadialDistortionType, p[3], p[4])
	}},
	{4, "OPENCV", 8, func(p []float64) camera.Intrinsics {
		// brown conrady order is k1, k2, k3, p1, p2
		return withDistortion(focalsCenter(camera.OpenCV, p), camera.BrownConradyDistortionType, p[4], p[5], 0, p[6], p[7])
	}},
	{5, "OPENCV_FISHEYE", 8, func(p []float64) camera.Intrinsics {
		return withDistortion(focalsCenter(camera.OpenCVFisheye, p), camera.KannalaBrandtDistortionType, p[4:8]...)
	}},
	{6, "FULL_OPENCV", 12, func(p []float64) camera.Intrinsics {
		return withDistortion(focalsCenter(camera.FullOpenCV, p), camera.FullOpenCVDistortionType, p[4:12]...)
	}},
	{7, "FOV", 5, func(p []float64) camera.Intrinsics {
		return withDistortion(focalsCenter(camera.FOV, p), camera.FOVDistortionType, p[4])
	}},
	{8, "SIMPLE_RADIAL_FISHEYE", 4, func(p []float64) camera.Intrinsics {
		return withDistortion(focalCenter(camera.SimpleRadialFisheye, p[0], p[1], p[2]), camera.KannalaBrandtDistortionType, p[3])
	}},
	{9, "RADIAL_FISHEYE", 5, func(p []float64) camera.Intrinsics {
		return withDistortion(focalCenter(camera.RadialFisheye, p[0], p[1], p[2]), camera.KannalaBrandtDistortionType, p[3], p[4])
	}},
	{10, "THIN_PRISM_FISHEYE", 12, func(p []float64) camera.Intrinsics {
		return withDistortion(focalsCenter(camera.ThinPrismFisheye, p), camera.ThinPrismDistortionType, p[4:12]...)
	}},
}

func modelByID(id int32) (cameraModel, error) {
	if id < 0 || int(id) >= len(cameraModels) {
		return cameraModel{}, errors.Errorf("unknown camera model id %d", id)
	}
	return cameraModels[id], nil
}

func modelByName(name string) (cameraModel, error) {
	for _, m := range cameraModels {
		if m.name == name {
			return m, nil
		}
	}
	return cameraModel{}, errors.Errorf("unknown camera model %q", name)
}

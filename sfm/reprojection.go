package sfm

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/samber/lo"

	"go.viam.com/sfmimport/spatialmath"
)

// ReprojectionErrorAttribute is the point attribute holding the mean reprojection error in pixels.
// COLMAP stores it in its points file, the other formats get it from AddReprojectionErrors.
const ReprojectionErrorAttribute = "error"

// Project returns the pixel a world point is seen at. The camera frame uses the OpenCV axes
// parsers read poses in, so normalized cameras cannot be projected this way.
func (c *Camera) Project(world r3.Vector) (float64, float64, bool) {
	var local r3.Vector
	switch c.Convention {
	case WorldToCamera:
		local = spatialmath.RotateVector(c.Rotation, world).Add(c.Translation)
	case CameraCenter:
		local = spatialmath.RotateVector(c.Rotation, world.Sub(c.Translation))
	case CameraToWorld:
		local = spatialmath.RotateVector(spatialmath.InverseRotation(c.Rotation), world.Sub(c.Translation))
	default:
		return -1, -1, false
	}
	return c.Intrinsics.PointToPixel(local.X, local.Y, local.Z)
}

// AddReprojectionErrors sets ReprojectionErrorAttribute on every point with measurements that does
// not carry one yet. The error is the mean pixel distance between the point's projections and its
// measurements; centered means measurements are relative to the principal point. Measurements that
// cannot be projected are left out. It returns how many points were given an error.
func (m *Model) AddReprojectionErrors(centered bool) int {
	cameras := lo.SliceToMap(m.Cameras, func(c Camera) (int64, *Camera) {
		return c.ID, &c
	})
	added := 0
	for i := range m.Points {
		p := &m.Points[i]
		if _, ok := p.Attributes[ReprojectionErrorAttribute]; ok {
			continue
		}
		var sum float64
		var n int
		for _, meas := range p.Measurements {
			cam, ok := cameras[meas.CameraID]
			if !ok {
				continue
			}
			u, v, ok := cam.Project(p.Position)
			if !ok {
				continue
			}
			if centered {
				u -= cam.Intrinsics.Ppx
				v -= cam.Intrinsics.Ppy
			}
			sum += math.Hypot(u-meas.X, v-meas.Y)
			n++
		}
		if n == 0 {
			continue
		}
		if p.Attributes == nil {
			p.Attributes = map[string]float64{}
		}
		p.Attributes[ReprojectionErrorAttribute] = sum / float64(n)
		added++
	}
	return added
}

package spatialmath

// CameraAxes names the orientation of a camera's local frame.
type CameraAxes string

const (
	// OpenCVCameraAxes looks along +Z with +Y pointing down in the image.
	OpenCVCameraAxes = CameraAxes("opencv")
	// OpenGLCameraAxes looks along -Z with +Y pointing up in the image.
	OpenGLCameraAxes = CameraAxes("opengl")
)

// CameraAxesConversion returns the rotation that, right-multiplied onto a camera-to-world rotation
// expressed in from axes, expresses it in to axes. Both conventions differ by a half turn about X.
func CameraAxesConversion(from, to CameraAxes) *RotationMatrix {
	if from == to {
		return IdentityRotationMatrix()
	}
	return &RotationMatrix{[9]float64{1, 0, 0, 0, -1, 0, 0, 0, -1}}
}

// YUpToZUp rotates a world whose up axis is +Y into one whose up axis is +Z.
func YUpToZUp() *RotationMatrix {
	return &RotationMatrix{[9]float64{1, 0, 0, 0, 0, -1, 0, 1, 0}}
}

package sfm

import "fmt"

// WarningKind classifies a non fatal problem.
type WarningKind string

const (
	// UnresolvedImage is a camera whose image file could not be found or read.
	UnresolvedImage = WarningKind("unresolved_image")
	// DroppedMeasurement is a point observation referencing a camera that does not exist.
	DroppedMeasurement = WarningKind("dropped_measurement")
	// UnposedView is a view without a pose, it is left out of the camera list.
	UnposedView = WarningKind("unposed_view")
	// IgnoredContent is data the file carries that has no place in the model.
	IgnoredContent = WarningKind("ignored_content")
)

// Warning is a non fatal problem met while reading. Warnings are returned with the model.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	File    string      `json:"file,omitempty"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	if w.File == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", w.Kind, w.Message, w.File)
}

// NewUnresolvedImageWarning reports an image that could not be located or read.
func NewUnresolvedImageWarning(file string, cameraID int64, image string) Warning {
	return Warning{
		Kind:    UnresolvedImage,
		File:    file,
		Message: fmt.Sprintf("image %q of camera %d not found, using default size", image, cameraID),
	}
}

// NewDroppedMeasurementWarning reports a measurement of pointID referencing the absent cameraID.
func NewDroppedMeasurementWarning(file string, pointID, cameraID int64) Warning {
	return Warning{
		Kind:    DroppedMeasurement,
		File:    file,
		Message: fmt.Sprintf("point %d measurement references unknown camera %d", pointID, cameraID),
	}
}

// NewUnposedViewWarning reports a view left out because it has no pose.
func NewUnposedViewWarning(file string, viewID int64) Warning {
	return Warning{
		Kind:    UnposedView,
		File:    file,
		Message: fmt.Sprintf("view %d has no pose and was skipped", viewID),
	}
}

// CountWarnings returns how many warnings of the given kind are present.
func CountWarnings(warnings []Warning, kind WarningKind) int {
	n := 0
	for _, w := range warnings {
		if w.Kind == kind {
			n++
		}
	}
	return n
}

package sfm

import "strings"

// Format names a supported reconstruction file format.
type Format string

// Supported formats.
const (
	FormatColmap   = Format("colmap")
	FormatNVM      = Format("nvm")
	FormatOpenMVG  = Format("openmvg")
	FormatMeshroom = Format("meshroom")
	FormatPLY      = Format("ply")
)

// Formats lists every supported format.
var Formats = []Format{FormatColmap, FormatNVM, FormatOpenMVG, FormatMeshroom, FormatPLY}

// ParseFormat returns the format with the given case insensitive name.
func ParseFormat(name string) (Format, bool) {
	for _, f := range Formats {
		if strings.EqualFold(string(f), name) {
			return f, true
		}
	}
	return "", false
}

// CenteredMeasurements reports whether the format stores measurements relative to the principal
// point rather than to the image corner.
func (f Format) CenteredMeasurements() bool {
	return f == FormatNVM
}

// Options are the plain configuration values a parser may consult.
type Options struct {
	// ImageDir overrides where images are searched for. Empty means next to the reconstruction.
	ImageDir string
	// DefaultWidth and DefaultHeight are used for cameras whose images cannot be read.
	DefaultWidth  int
	DefaultHeight int
	// DefaultPrincipalPoint replaces the image center as principal point when set.
	DefaultPrincipalPoint *[2]float64
}

// A Parser reads one format into the unified model. Parsers hold no state between calls;
// a returned error means no model was produced.
type Parser interface {
	Format() Format
	Parse(input string, opts Options) (*Model, error)
}

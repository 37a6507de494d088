package nvm

import (
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/sfmimport/images"
	"go.viam.com/sfmimport/logging"
	"go.viam.com/sfmimport/sfm"
)

var errImageNotFound = errors.New("image not found")

// headerReadLimit bounds how many image headers are read at once.
var headerReadLimit = runtime.NumCPU()

type imageSize struct {
	skipped       bool
	path          string
	width, height int
	err           error
}

// ResolveImages looks up the image of every camera whose size is unset and fills in its path, size
// and, when the file did not set one, its principal point. Cameras that already carry a size keep
// their size and path. Images are searched in opts.ImageDir, then the folder of the
// reconstruction, then its images subfolder. Cameras whose image cannot be read get the default
// size, an empty path and one UnresolvedImage warning each, in camera order. The returned cameras
// are a copy; ok is false if any image was unresolved.
func ResolveImages(
	cameras []sfm.Camera,
	reconstructionPath string,
	opts sfm.Options,
	logger logging.Logger,
) ([]sfm.Camera, []sfm.Warning, bool) {
	dirs := images.SearchDirs(reconstructionPath, opts.ImageDir)

	sizes := make([]imageSize, len(cameras))
	var readers errgroup.Group
	readers.SetLimit(headerReadLimit)
	for i := range cameras {
		if cameras[i].HasDimensions() {
			sizes[i].skipped = true
			continue
		}
		i := i
		readers.Go(func() error {
			path, found := images.Locate(cameras[i].ImageName, dirs...)
			if !found {
				sizes[i].err = errImageNotFound
				return nil
			}
			sizes[i].path = path
			sizes[i].width, sizes[i].height, sizes[i].err = images.Dimensions(path)
			return nil
		})
	}
	// read failures are reported per camera below
	//nolint:errcheck
	readers.Wait()

	out := make([]sfm.Camera, len(cameras))
	copy(out, cameras)
	var warnings []sfm.Warning
	for i := range out {
		cam := &out[i]
		if res := sizes[i]; res.skipped {
			logger.Debugw("image size already known", "camera", cam.ID, "width", cam.Width, "height", cam.Height)
		} else if res.err == nil {
			cam.ImagePath = res.path
			cam.Width, cam.Height = res.width, res.height
		} else {
			if res.path != "" {
				logger.Debugw("cannot read image size", "image", res.path, "error", res.err)
			}
			cam.ImagePath = ""
			if opts.DefaultWidth > 0 && opts.DefaultHeight > 0 {
				cam.Width, cam.Height = opts.DefaultWidth, opts.DefaultHeight
			}
			warning := sfm.NewUnresolvedImageWarning(reconstructionPath, cam.ID, cam.ImageName)
			logger.Warnw(warning.Message, "searched", dirs)
			warnings = append(warnings, warning)
		}
		if cam.Intrinsics.PrincipalPointUnset() {
			switch {
			case opts.DefaultPrincipalPoint != nil:
				cam.Intrinsics.Ppx, cam.Intrinsics.Ppy = opts.DefaultPrincipalPoint[0], opts.DefaultPrincipalPoint[1]
			case cam.HasDimensions():
				cam.Intrinsics.Ppx, cam.Intrinsics.Ppy = float64(cam.Width)/2, float64(cam.Height)/2
			}
		}
	}
	return out, warnings, len(warnings) == 0
}

// ResolveImages resolves the images of a model read by this parser in place, appending warnings
// to the model.
func (p *Parser) ResolveImages(model *sfm.Model, input string, opts sfm.Options) bool {
	cameras, warnings, ok := ResolveImages(model.Cameras, input, opts, p.logger)
	model.Cameras = cameras
	model.Warnings = append(model.Warnings, warnings...)
	return ok
}

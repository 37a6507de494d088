// Package images locates the photographs a reconstruction was computed from and reads their sizes.
package images

import (
	"image"
	// register decoders used by image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultSubdir is the conventional image folder next to a reconstruction file.
const DefaultSubdir = "images"

// DefaultImageDir returns imageDir if set. Otherwise it returns the "images" folder next to the
// reconstruction if there is one, else the folder holding the reconstruction. A reconstruction
// that is itself a folder (COLMAP) is treated as its own parent.
func DefaultImageDir(reconstructionPath, imageDir string) string {
	if imageDir != "" {
		return imageDir
	}
	dir := reconstructionPath
	if !IsDir(dir) {
		dir = filepath.Dir(reconstructionPath)
	}
	if sub := filepath.Join(dir, DefaultSubdir); IsDir(sub) {
		return sub
	}
	return dir
}

// SearchDirs returns, without duplicates, the folders an image referenced by a reconstruction is
// looked up in: the override, the reconstruction's folder and its images subfolder.
func SearchDirs(reconstructionPath, imageDir string) []string {
	base := filepath.Dir(reconstructionPath)
	candidates := []string{imageDir, base, filepath.Join(base, DefaultSubdir)}
	var dirs []string
	seen := map[string]bool{}
	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		clean := filepath.Clean(dir)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		dirs = append(dirs, clean)
	}
	return dirs
}

// Locate returns the first existing file among name joined with each dir. An absolute name is
// only checked as is.
func Locate(name string, dirs ...string) (string, bool) {
	if name == "" {
		return "", false
	}
	if filepath.IsAbs(name) {
		return name, IsFile(name)
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, filepath.FromSlash(name))
		if IsFile(candidate) {
			if abs, err := filepath.Abs(candidate); err == nil {
				return abs, true
			}
			return candidate, true
		}
	}
	return "", false
}

// Dimensions reads the width and height of an image without decoding its pixels.
func Dimensions(path string) (int, int, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.Wrap(err, "error opening image")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "error reading image header of %q", path)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, errors.Errorf("image %q has invalid size %dx%d", path, cfg.Width, cfg.Height)
	}
	return cfg.Width, cfg.Height, nil
}

// IsDir reports whether path is an existing directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsFile reports whether path is an existing regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

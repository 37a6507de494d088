// Package testutils holds fixture helpers shared by the format tests.
package testutils

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
	"go.viam.com/utils"
)

// WriteFile writes contents to dir/name, creating parent folders, and returns the path.
func WriteFile(tb testing.TB, dir, name, contents string) string {
	tb.Helper()
	return WriteBytes(tb, dir, name, []byte(contents))
}

// WriteBytes writes data to dir/name, creating parent folders, and returns the path.
func WriteBytes(tb testing.TB, dir, name string, data []byte) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	test.That(tb, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)
	test.That(tb, os.WriteFile(path, data, 0o600), test.ShouldBeNil)
	return path
}

// WritePNG writes a blank w by h png image to path.
func WritePNG(tb testing.TB, path string, w, h int) {
	tb.Helper()
	test.That(tb, os.MkdirAll(filepath.Dir(path), 0o755), test.ShouldBeNil)
	//nolint:gosec
	f, err := os.Create(path)
	test.That(tb, err, test.ShouldBeNil)
	defer utils.UncheckedErrorFunc(f.Close)
	test.That(tb, png.Encode(f, image.NewGray(image.Rect(0, 0, w, h))), test.ShouldBeNil)
}

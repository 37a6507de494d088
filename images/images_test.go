package images

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"

	"go.viam.com/sfmimport/testutils"
)

func TestDefaultImageDir(t *testing.T) {
	dir := t.TempDir()
	recon := filepath.Join(dir, "model.nvm")

	test.That(t, DefaultImageDir(recon, "/elsewhere"), test.ShouldEqual, "/elsewhere")
	test.That(t, DefaultImageDir(recon, ""), test.ShouldEqual, dir)

	test.That(t, os.Mkdir(filepath.Join(dir, "images"), 0o755), test.ShouldBeNil)
	test.That(t, DefaultImageDir(recon, ""), test.ShouldEqual, filepath.Join(dir, "images"))

	// a folder reconstruction looks inside itself
	sparse := filepath.Join(dir, "sparse")
	test.That(t, os.MkdirAll(filepath.Join(sparse, "images"), 0o755), test.ShouldBeNil)
	test.That(t, DefaultImageDir(sparse, ""), test.ShouldEqual, filepath.Join(sparse, "images"))
}

func TestLocateAndDimensions(t *testing.T) {
	dir := t.TempDir()
	imgDir := filepath.Join(dir, "images")
	test.That(t, os.Mkdir(imgDir, 0o755), test.ShouldBeNil)
	testutils.WritePNG(t, filepath.Join(imgDir, "a.png"), 12, 7)

	dirs := SearchDirs(filepath.Join(dir, "model.nvm"), "")
	test.That(t, dirs, test.ShouldResemble, []string{dir, imgDir})

	path, ok := Locate("a.png", dirs...)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, filepath.IsAbs(path), test.ShouldBeTrue)
	w, h, err := Dimensions(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, w, test.ShouldEqual, 12)
	test.That(t, h, test.ShouldEqual, 7)

	_, ok = Locate("b.png", dirs...)
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = Locate(filepath.Join(imgDir, "a.png"))
	test.That(t, ok, test.ShouldBeTrue)

	notImage := filepath.Join(dir, "notes.png")
	test.That(t, os.WriteFile(notImage, []byte("hello"), 0o600), test.ShouldBeNil)
	_, _, err = Dimensions(notImage)
	test.That(t, err, test.ShouldNotBeNil)
	_, _, err = Dimensions(filepath.Join(dir, "missing.png"))
	test.That(t, err, test.ShouldNotBeNil)
}

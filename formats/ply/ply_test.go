package ply

import (
	"bytes"
	"encoding/binary"
	"image/color"
	"math"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/sfmimport/logging"
	"go.viam.com/sfmimport/sfm"
	"go.viam.com/sfmimport/testutils"
)

const asciiCloud = `ply
format ascii 1.0
comment exported by a scanner
element vertex 3
property float x
property float y
property float z
property float nx
property float ny
property float nz
property uchar red
property uchar green
property uchar blue
property float confidence
element face 1
property list uchar int vertex_indices
end_header
0 0 0 0 0 1 255 0 0 0.5
1 2 3 0 1 0 0 255 0 0.25
-1.5 2.5 1e2 1 0 0 0 0 255 1
3 0 1 2
`

func TestParseASCII(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := testutils.WriteFile(t, t.TempDir(), "cloud.ply", asciiCloud)

	model, err := NewParser(logger).Parse(path, sfm.Options{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Cameras, test.ShouldBeEmpty)
	test.That(t, len(model.Points), test.ShouldEqual, 3)

	pt := model.Points[2]
	test.That(t, pt.ID, test.ShouldEqual, int64(2))
	test.That(t, pt.Position, test.ShouldResemble, r3.Vector{X: -1.5, Y: 2.5, Z: 100})
	test.That(t, pt.Color, test.ShouldResemble, color.NRGBA{B: 255, A: 255})
	test.That(t, *pt.Normal, test.ShouldResemble, r3.Vector{X: 1})
	test.That(t, pt.Attributes, test.ShouldResemble, map[string]float64{"confidence": 1})
	test.That(t, pt.Measurements, test.ShouldBeEmpty)

	test.That(t, model.Points[0].Color, test.ShouldResemble, color.NRGBA{R: 255, A: 255})
	test.That(t, sfm.CountWarnings(model.Warnings, sfm.IgnoredContent), test.ShouldEqual, 1)
}

func TestParseDefaultColor(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := testutils.WriteFile(t, t.TempDir(), "cloud.ply", `ply
format ascii 1.0
element vertex 1
property double x
property double y
property double z
end_header
1 2 3
`)
	model, err := NewParser(logger).Parse(path, sfm.Options{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(model.Points), test.ShouldEqual, 1)
	test.That(t, model.Points[0].Color, test.ShouldResemble, sfm.DefaultPointColor)
	test.That(t, model.Points[0].Normal, test.ShouldBeNil)
	test.That(t, model.Points[0].Attributes, test.ShouldBeNil)
}

func binaryCloud(t *testing.T, order binary.ByteOrder, name string) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("ply\nformat " + name + " 1.0\n")
	buf.WriteString("element vertex 2\nproperty float x\nproperty float y\nproperty float z\n")
	buf.WriteString("property float red\nproperty float green\nproperty float blue\n")
	buf.WriteString("property list uchar int extra\n")
	buf.WriteString("element camera 1\nproperty ushort id\n")
	buf.WriteString("end_header\n")
	for i, v := range [][6]float32{{1, 2, 3, 1, 0.5, 0}, {4, 5, 6, 0, 0, 2}} {
		for _, f := range v {
			test.That(t, binary.Write(&buf, order, f), test.ShouldBeNil)
		}
		buf.WriteByte(byte(i))
		for j := 0; j < i; j++ {
			test.That(t, binary.Write(&buf, order, int32(j)), test.ShouldBeNil)
		}
	}
	test.That(t, binary.Write(&buf, order, uint16(7)), test.ShouldBeNil)
	return buf.Bytes()
}

func TestParsePartialColorAndNormal(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := testutils.WriteFile(t, t.TempDir(), "cloud.ply", `ply
format ascii 1.0
element vertex 1
property float x
property float y
property float z
property uchar red
property float nx
property float ny
end_header
1 2 3 200 0.5 -0.5
`)
	model, err := NewParser(logger).Parse(path, sfm.Options{})
	test.That(t, err, test.ShouldBeNil)
	pt := model.Points[0]
	test.That(t, pt.Color, test.ShouldResemble, sfm.DefaultPointColor)
	test.That(t, pt.Normal, test.ShouldBeNil)
	test.That(t, pt.Attributes, test.ShouldResemble, map[string]float64{"red": 200, "nx": 0.5, "ny": -0.5})
}

func TestParseBinary(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name  string
		order binary.ByteOrder
	}{
		{"binary_little_endian", binary.LittleEndian},
		{"binary_big_endian", binary.BigEndian},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := testutils.WriteBytes(t, t.TempDir(), "cloud.ply", binaryCloud(t, tc.order, tc.name))
			model, err := NewParser(logger).Parse(path, sfm.Options{})
			test.That(t, err, test.ShouldBeNil)
			test.That(t, len(model.Points), test.ShouldEqual, 2)
			test.That(t, model.Points[0].Position, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
			test.That(t, model.Points[0].Color, test.ShouldResemble, color.NRGBA{R: 255, G: 128, A: 255})
			test.That(t, model.Points[1].Position, test.ShouldResemble, r3.Vector{X: 4, Y: 5, Z: 6})
			test.That(t, model.Points[1].Color, test.ShouldResemble, color.NRGBA{B: 255, A: 255})
		})
	}
}

func TestParseBinaryTrailingData(t *testing.T) {
	logger := logging.NewTestLogger(t)
	data := append(binaryCloud(t, binary.LittleEndian, "binary_little_endian"), 0)
	path := testutils.WriteBytes(t, t.TempDir(), "cloud.ply", data)
	_, err := NewParser(logger).Parse(path, sfm.Options{})
	test.That(t, errors.Is(err, sfm.ErrMalformedFile), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "after the last declared element")
}

func TestParseBinaryTruncated(t *testing.T) {
	logger := logging.NewTestLogger(t)
	data := binaryCloud(t, binary.LittleEndian, "binary_little_endian")
	path := testutils.WriteBytes(t, t.TempDir(), "cloud.ply", data[:len(data)-5])
	_, err := NewParser(logger).Parse(path, sfm.Options{})
	test.That(t, errors.Is(err, sfm.ErrMalformedFile), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unexpected end of data")
}

func TestParseErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	for _, tc := range []struct {
		name     string
		contents string
		expected string
	}{
		{
			"not ply",
			"PLY\nformat ascii 1.0\nend_header\n",
			"ply magic",
		},
		{
			"no position",
			"ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nend_header\n1 2\n",
			"no z property",
		},
		{
			"no vertex element",
			"ply\nformat ascii 1.0\nelement face 0\nproperty list uchar int vertex_indices\nend_header\n",
			"no vertex element",
		},
		{
			"unknown type",
			"ply\nformat ascii 1.0\nelement vertex 1\nproperty float128 x\nend_header\n",
			"unknown property type",
		},
		{
			"fewer vertices than declared",
			"ply\nformat ascii 1.0\nelement vertex 2\nproperty float x\nproperty float y\nproperty float z\nend_header\n1 2 3\n",
			"unexpected end of file",
		},
		{
			"more vertices than declared",
			"ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nproperty float z\nend_header\n1 2 3\n4 5 6\n",
			"after the last declared element",
		},
		{
			"short line",
			"ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nproperty float z\nend_header\n1 2\n",
			"missing z",
		},
		{
			"bad value",
			"ply\nformat ascii 1.0\nelement vertex 1\nproperty float x\nproperty float y\nproperty float z\nend_header\n1 2 q\n",
			"field z",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			path := testutils.WriteFile(t, t.TempDir(), "cloud.ply", tc.contents)
			_, err := NewParser(logger).Parse(path, sfm.Options{})
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, errors.Is(err, sfm.ErrMalformedFile), test.ShouldBeTrue)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.expected)
			test.That(t, err.Error(), test.ShouldContainSubstring, filepath.Base(path))
		})
	}
}

func TestColorChannel(t *testing.T) {
	uchar, err := lookupType("uchar")
	test.That(t, err, test.ShouldBeNil)
	ushort, err := lookupType("ushort")
	test.That(t, err, test.ShouldBeNil)
	float, err := lookupType("float")
	test.That(t, err, test.ShouldBeNil)

	test.That(t, colorChannel(200, uchar), test.ShouldEqual, uint8(200))
	test.That(t, colorChannel(math.MaxUint16, ushort), test.ShouldEqual, uint8(255))
	test.That(t, colorChannel(0.5, float), test.ShouldEqual, uint8(128))
	test.That(t, colorChannel(3, float), test.ShouldEqual, uint8(255))
	test.That(t, colorChannel(-1, float), test.ShouldEqual, uint8(0))
}

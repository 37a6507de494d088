package meshroom

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/sfmimport/camera"
	"go.viam.com/sfmimport/logging"
	"go.viam.com/sfmimport/sfm"
	"go.viam.com/sfmimport/testutils"
)

const scene = `{
    "version": ["1", "0", "0"],
    "views": [
        {"viewId": "1001", "poseId": "1001", "intrinsicId": "77", "path": "/scan/a.jpg", "width": "4000", "height": "3000"},
        {"viewId": 1002, "poseId": "1002", "intrinsicId": "77", "path": "/scan/b.jpg"}
    ],
    "intrinsics": [
        {"intrinsicId": "77", "type": "radial3", "width": "4000", "height": "3000",
         "pxFocalLength": "3200.5", "principalPoint": ["2001", "1499"], "distortionParams": ["0.1", "0", "-0.01"]}
    ],
    "poses": [
        {"poseId": "1001", "pose": {"transform": {"rotation": ["1", "0", "0", "0", "1", "0", "0", "0", "1"], "center": ["1", "2", "3"]}}}
    ],
    "structure": [
        {"landmarkId": "0", "descType": "sift", "color": ["255", "10", "0"], "X": ["0.5", "1.5", "2.5"],
         "observations": [
            {"observationId": "1001", "featureId": "42", "x": ["10", "20"]},
            {"observationId": "1002", "featureId": "43", "x": ["30", "40"]}
         ]}
    ]
}`

func TestParse(t *testing.T) {
	path := testutils.WriteFile(t, t.TempDir(), "cameras.sfm", scene)
	model, err := NewParser(logging.NewTestLogger(t)).Parse(path, sfm.Options{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Validate(), test.ShouldBeNil)

	// view 1002 has no pose
	test.That(t, model.Cameras, test.ShouldHaveLength, 1)
	test.That(t, sfm.CountWarnings(model.Warnings, sfm.UnposedView), test.ShouldEqual, 1)
	cam := model.Cameras[0]
	test.That(t, cam.ID, test.ShouldEqual, int64(1001))
	test.That(t, cam.ImagePath, test.ShouldEqual, "/scan/a.jpg")
	test.That(t, cam.Width, test.ShouldEqual, 4000)
	test.That(t, cam.Convention, test.ShouldEqual, sfm.CameraToWorld)
	test.That(t, cam.Center().Y, test.ShouldEqual, 2.)
	test.That(t, cam.Intrinsics.Model, test.ShouldEqual, camera.Radial)
	test.That(t, cam.Intrinsics.Fx, test.ShouldEqual, 3200.5)
	test.That(t, cam.Intrinsics.Ppx, test.ShouldEqual, 2001.)
	test.That(t, cam.Intrinsics.Distortion.Parameters, test.ShouldResemble, []float64{0.1, 0, -0.01})

	test.That(t, model.Points, test.ShouldHaveLength, 1)
	pt := model.Points[0]
	test.That(t, pt.Position.Z, test.ShouldEqual, 2.5)
	test.That(t, pt.Color.G, test.ShouldEqual, uint8(10))
	test.That(t, pt.Measurements, test.ShouldResemble, []sfm.Measurement{{CameraID: 1001, FeatureIndex: 42, X: 10, Y: 20}})
	test.That(t, sfm.CountWarnings(model.Warnings, sfm.DroppedMeasurement), test.ShouldEqual, 1)
}

func TestOptionalSections(t *testing.T) {
	contents := `{"views": [], "intrinsics": []}`
	path := testutils.WriteFile(t, t.TempDir(), "cameras.sfm", contents)
	model, err := NewParser(logging.NewTestLogger(t)).Parse(path, sfm.Options{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Cameras, test.ShouldBeEmpty)
	test.That(t, model.Points, test.ShouldBeEmpty)
	test.That(t, model.Warnings, test.ShouldBeEmpty)

	// no structure section at all
	noStructure := scene[:strings.Index(scene, `,
    "structure"`)] + "\n}"
	path = testutils.WriteFile(t, t.TempDir(), "cameras.sfm", noStructure)
	model, err = NewParser(logging.NewTestLogger(t)).Parse(path, sfm.Options{ImageDir: "/local"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Cameras, test.ShouldHaveLength, 1)
	test.That(t, model.Points, test.ShouldBeEmpty)
	test.That(t, model.Cameras[0].ImagePath, test.ShouldEqual, filepath.Join("/local", "a.jpg"))
}

func TestPrincipalPointOffset(t *testing.T) {
	contents := strings.Replace(scene, `["1", "0", "0"]`, `["1", "2", "1"]`, 1)
	contents = strings.Replace(contents, `["2001", "1499"]`, `["1", "-1"]`, 1)
	path := testutils.WriteFile(t, t.TempDir(), "cameras.sfm", contents)
	model, err := NewParser(logging.NewTestLogger(t)).Parse(path, sfm.Options{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Cameras[0].Intrinsics.Ppx, test.ShouldEqual, 2001.)
	test.That(t, model.Cameras[0].Intrinsics.Ppy, test.ShouldEqual, 1499.)
}

func TestParseErrors(t *testing.T) {
	parser := NewParser(logging.NewTestLogger(t))
	for _, tc := range []struct {
		name     string
		old, new string
		missing  bool
		expected string
	}{
		{"missing intrinsic", `"intrinsicId": "77", "path": "/scan/a.jpg"`, `"intrinsicId": "78", "path": "/scan/a.jpg"`, true, "intrinsic 78"},
		{"section not an array", `"poses": [`, `"poses": {"x": [`, false, "expected an array"},
		{"bad number", `"X": ["0.5"`, `"X": ["half"`, false, "structure[0]"},
		{"missing field", `"landmarkId": "0", `, ``, false, `missing required field "landmarkId"`},
		{"unknown type", `"radial3"`, `"spherical"`, false, "unsupported intrinsic type"},
		{"bad rotation", `["1", "0", "0", "0", "1", "0", "0", "0", "1"]`, `["1", "0", "0", "0", "1", "0", "0", "0", "-1"]`, false, "poses[0]"},
		{"bad id", `"viewId": "1001"`, `"viewId": "abc"`, false, `invalid id "abc"`},
		{"bad version", `["1", "0", "0"]`, `["one", "0", "0"]`, false, "version"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			contents := strings.Replace(scene, tc.old, tc.new, 1)
			if tc.name == "section not an array" {
				contents = strings.Replace(contents, `}}}
    ],
    "structure"`, `}}}
    ]},
    "structure"`, 1)
			}
			test.That(t, contents, test.ShouldNotEqual, scene)
			path := testutils.WriteFile(t, t.TempDir(), "cameras.sfm", contents)
			_, err := parser.Parse(path, sfm.Options{})
			test.That(t, err, test.ShouldNotBeNil)
			if tc.missing {
				test.That(t, errors.Is(err, sfm.ErrMissingReference), test.ShouldBeTrue)
			} else {
				test.That(t, errors.Is(err, sfm.ErrMalformedFile), test.ShouldBeTrue)
			}
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.expected)
		})
	}
}

package colmap

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/geo/r3"
	"go.viam.com/utils"

	"go.viam.com/sfmimport/sfm"
)

// maxPrealloc caps slice preallocation from counts read out of a file, which may be corrupt.
const maxPrealloc = 1 << 16

type binaryReader struct {
	file   string
	in     *bufio.Reader
	offset int64
}

func openBinary(path string) (*binaryReader, *os.File, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, sfm.NewMalformedFileError(path, "", err)
	}
	return &binaryReader{file: path, in: bufio.NewReader(f)}, f, nil
}

func (br *binaryReader) read(record string, data interface{}) error {
	if err := binary.Read(br.in, binary.LittleEndian, data); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return sfm.MalformedFileErrorf(br.file, record, "unexpected end of data at byte %d", br.offset)
		}
		return sfm.NewMalformedFileError(br.file, record, err)
	}
	br.offset += int64(binary.Size(data))
	return nil
}

func (br *binaryReader) readString(record string) (string, error) {
	data, err := br.in.ReadBytes(0)
	if err != nil {
		return "", sfm.MalformedFileErrorf(br.file, record, "unterminated string at byte %d", br.offset)
	}
	br.offset += int64(len(data))
	return string(data[:len(data)-1]), nil
}

func (br *binaryReader) expectEOF() error {
	if _, err := br.in.ReadByte(); err != io.EOF {
		return sfm.MalformedFileErrorf(br.file, fmt.Sprintf("byte %d", br.offset), "unexpected data after the last record")
	}
	return nil
}

func prealloc(count uint64) int {
	if count > maxPrealloc {
		return maxPrealloc
	}
	return int(count)
}

func readBinaryModel(dir string) (*rawModel, error) {
	cameras, err := readCamerasBinary(filepath.Join(dir, "cameras.bin"))
	if err != nil {
		return nil, err
	}
	imgs, err := readImagesBinary(filepath.Join(dir, "images.bin"))
	if err != nil {
		return nil, err
	}
	points, err := readPointsBinary(filepath.Join(dir, "points3D.bin"))
	if err != nil {
		return nil, err
	}
	return &rawModel{cameras: cameras, images: imgs, points: points}, nil
}

type cameraHeader struct {
	ID     int32
	Model  int32
	Width  uint64
	Height uint64
}

func readCamerasBinary(path string) ([]rawCamera, error) {
	br, f, err := openBinary(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var count uint64
	if err := br.read("header", &count); err != nil {
		return nil, err
	}
	cameras := make([]rawCamera, 0, prealloc(count))
	for i := uint64(0); i < count; i++ {
		record := fmt.Sprintf("camera record %d", i)
		var header cameraHeader
		if err := br.read(record, &header); err != nil {
			return nil, err
		}
		model, err := modelByID(header.Model)
		if err != nil {
			return nil, sfm.NewMalformedFileError(path, record, err)
		}
		params := make([]float64, model.numParams)
		if err := br.read(record, params); err != nil {
			return nil, err
		}
		cam, err := newRawCamera(int64(header.ID), model, int64(header.Width), int64(header.Height), params)
		if err != nil {
			return nil, sfm.NewMalformedFileError(path, record, err)
		}
		cameras = append(cameras, cam)
	}
	return cameras, br.expectEOF()
}

type imageHeader struct {
	ID       int32
	Qvec     [4]float64
	Tvec     [3]float64
	CameraID int32
}

type binaryPoint2D struct {
	X, Y      float64
	Point3DID int64
}

func readImagesBinary(path string) ([]rawImage, error) {
	br, f, err := openBinary(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var count uint64
	if err := br.read("header", &count); err != nil {
		return nil, err
	}
	imgs := make([]rawImage, 0, prealloc(count))
	for i := uint64(0); i < count; i++ {
		record := fmt.Sprintf("image record %d", i)
		var header imageHeader
		if err := br.read(record, &header); err != nil {
			return nil, err
		}
		rot, trans, err := newPose(header.Qvec, header.Tvec)
		if err != nil {
			return nil, sfm.NewMalformedFileError(path, record, err)
		}
		name, err := br.readString(record)
		if err != nil {
			return nil, err
		}
		var numPoints uint64
		if err := br.read(record, &numPoints); err != nil {
			return nil, err
		}
		img := rawImage{
			id:       int64(header.ID),
			rotation: rot,
			trans:    trans,
			cameraID: int64(header.CameraID),
			name:     name,
			points2D: make([]point2D, 0, prealloc(numPoints)),
		}
		for j := uint64(0); j < numPoints; j++ {
			var p binaryPoint2D
			if err := br.read(record, &p); err != nil {
				return nil, err
			}
			img.points2D = append(img.points2D, point2D{x: p.X, y: p.Y, point3DID: p.Point3DID})
		}
		imgs = append(imgs, img)
	}
	return imgs, br.expectEOF()
}

type pointHeader struct {
	ID    uint64
	XYZ   [3]float64
	RGB   [3]uint8
	Error float64
}

type binaryTrackElement struct {
	ImageID    int32
	Point2DIdx int32
}

func readPointsBinary(path string) ([]rawPoint, error) {
	br, f, err := openBinary(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var count uint64
	if err := br.read("header", &count); err != nil {
		return nil, err
	}
	points := make([]rawPoint, 0, prealloc(count))
	for i := uint64(0); i < count; i++ {
		record := fmt.Sprintf("point record %d", i)
		var header pointHeader
		if err := br.read(record, &header); err != nil {
			return nil, err
		}
		var trackLength uint64
		if err := br.read(record, &trackLength); err != nil {
			return nil, err
		}
		pt := rawPoint{
			id:       int64(header.ID),
			position: r3.Vector{X: header.XYZ[0], Y: header.XYZ[1], Z: header.XYZ[2]},
			rgb:      header.RGB,
			err:      header.Error,
			track:    make([]trackElement, 0, prealloc(trackLength)),
		}
		for j := uint64(0); j < trackLength; j++ {
			var el binaryTrackElement
			if err := br.read(record, &el); err != nil {
				return nil, err
			}
			pt.track = append(pt.track, trackElement{imageID: int64(el.ImageID), point2DIdx: int64(el.Point2DIdx)})
		}
		points = append(points, pt)
	}
	return points, br.expectEOF()
}

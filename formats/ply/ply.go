// Package ply reads point clouds from PLY files with a header driven reader.
package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/sfmimport/logging"
	"go.viam.com/sfmimport/sfm"
)

const vertexElement = "vertex"

// Parser reads PLY files. Only the vertex element is imported, as points without measurements.
type Parser struct {
	logger logging.Logger
}

// NewParser returns a PLY parser.
func NewParser(logger logging.Logger) *Parser {
	return &Parser{logger: logger}
}

// Format returns sfm.FormatPLY.
func (p *Parser) Format() sfm.Format {
	return sfm.FormatPLY
}

// vertexLayout maps vertex properties onto point fields.
type vertexLayout struct {
	position [3]int
	color    [3]int
	normal   [3]int
	// attributes lists the indices of the remaining scalar properties.
	attributes []int
}

func newVertexLayout(e *element) (*vertexLayout, error) {
	l := &vertexLayout{}
	used := map[int]bool{}
	for i, name := range []string{"x", "y", "z"} {
		l.position[i] = e.propertyIndex(name)
		if l.position[i] < 0 {
			return nil, errors.Errorf("vertex element has no %s property", name)
		}
		used[l.position[i]] = true
	}
	colorNames := [3][]string{
		{"red", "r", "diffuse_red"},
		{"green", "g", "diffuse_green"},
		{"blue", "b", "diffuse_blue"},
	}
	for i, names := range colorNames {
		l.color[i] = e.propertyIndex(names...)
	}
	l.color = claimTriple(l.color, used)
	for i, name := range []string{"nx", "ny", "nz"} {
		l.normal[i] = e.propertyIndex(name)
	}
	l.normal = claimTriple(l.normal, used)
	for i, prop := range e.properties {
		if !used[i] && prop.countType == nil {
			l.attributes = append(l.attributes, i)
		}
	}
	return l, nil
}

// claimTriple marks the three indices as used when all are present. A partial triple is
// discarded so its properties stay attributes.
func claimTriple(indices [3]int, used map[int]bool) [3]int {
	if indices[0] < 0 || indices[1] < 0 || indices[2] < 0 {
		return [3]int{-1, -1, -1}
	}
	for _, i := range indices {
		used[i] = true
	}
	return indices
}

// colorChannel maps a color value of the given type onto 0-255.
func colorChannel(v float64, t scalarType) uint8 {
	switch {
	case t.float:
		v *= 255
	case t.size == 2:
		v /= 257
	case t.size > 2:
		v /= 16843009 // 2^32-1 / 255
	}
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

func (l *vertexLayout) point(e *element, id int, values []float64) sfm.Point {
	pt := sfm.Point{
		ID:       int64(id),
		Position: r3.Vector{X: values[l.position[0]], Y: values[l.position[1]], Z: values[l.position[2]]},
		Color:    sfm.DefaultPointColor,
	}
	if l.color[0] >= 0 {
		r, g, b := e.properties[l.color[0]].valueType, e.properties[l.color[1]].valueType, e.properties[l.color[2]].valueType
		if r.float && g.float && b.float {
			cr, cg, cb := colorful.Color{
				R: values[l.color[0]], G: values[l.color[1]], B: values[l.color[2]],
			}.Clamped().RGB255()
			pt.Color = color.NRGBA{R: cr, G: cg, B: cb, A: 255}
		} else {
			pt.Color = color.NRGBA{
				R: colorChannel(values[l.color[0]], r),
				G: colorChannel(values[l.color[1]], g),
				B: colorChannel(values[l.color[2]], b),
				A: 255,
			}
		}
	}
	if l.normal[0] >= 0 {
		pt.Normal = &r3.Vector{X: values[l.normal[0]], Y: values[l.normal[1]], Z: values[l.normal[2]]}
	}
	if len(l.attributes) > 0 {
		pt.Attributes = make(map[string]float64, len(l.attributes))
		for _, i := range l.attributes {
			pt.Attributes[e.properties[i].name] = values[i]
		}
	}
	return pt
}

// Parse reads the vertices of a PLY file. Other elements are read to validate the file and skipped.
func (p *Parser) Parse(input string, opts sfm.Options) (*sfm.Model, error) {
	//nolint:gosec
	f, err := os.Open(input)
	if err != nil {
		return nil, sfm.NewMalformedFileError(input, "", err)
	}
	defer utils.UncheckedErrorFunc(f.Close)

	model, err := p.Read(bufio.NewReader(f), input)
	if err != nil {
		return nil, err
	}
	p.logger.Infof("Number points: %d", len(model.Points))
	return model, nil
}

// Read reads a PLY stream, name is used in errors and warnings.
func (p *Parser) Read(in *bufio.Reader, name string) (*sfm.Model, error) {
	h, line, err := readHeader(in)
	if err != nil {
		return nil, sfm.NewMalformedFileError(name, fmt.Sprintf("header line %d", line), err)
	}
	var vertices *element
	for i := range h.elements {
		if h.elements[i].name == vertexElement {
			vertices = &h.elements[i]
			break
		}
	}
	if vertices == nil {
		return nil, sfm.MalformedFileErrorf(name, "header", "no vertex element")
	}
	layout, err := newVertexLayout(vertices)
	if err != nil {
		return nil, sfm.NewMalformedFileError(name, "header", err)
	}

	model := &sfm.Model{Points: make([]sfm.Point, 0, min(vertices.count, 1<<20))}
	var body bodyReader
	switch h.format {
	case ASCII:
		body = &asciiBody{in: in, line: line}
	case BinaryLittleEndian:
		body = &binaryBody{in: in, order: binary.LittleEndian}
	case BinaryBigEndian:
		body = &binaryBody{in: in, order: binary.BigEndian}
	}

	for ei := range h.elements {
		e := &h.elements[ei]
		if e != vertices && e.count > 0 {
			p.logger.Debugw("skipping element", "element", e.name, "count", e.count)
			model.Warn(sfm.Warning{
				Kind:    sfm.IgnoredContent,
				File:    name,
				Message: fmt.Sprintf("element %s with %d entries is not imported", e.name, e.count),
			})
		}
		for i := 0; i < e.count; i++ {
			values, err := body.readInstance(e)
			if err != nil {
				return nil, sfm.MalformedFileErrorf(name, body.position(),
					"invalid %s %d of %d: %v", e.name, i, e.count, err)
			}
			if e == vertices {
				model.Points = append(model.Points, layout.point(e, i, values))
			}
		}
	}
	if err := body.expectEnd(); err != nil {
		return nil, sfm.NewMalformedFileError(name, body.position(), err)
	}
	return model, nil
}

type bodyReader interface {
	// readInstance returns the scalar property values of one element instance. List properties are
	// consumed and reported as 0.
	readInstance(e *element) ([]float64, error)
	expectEnd() error
	position() string
}

type asciiBody struct {
	in   *bufio.Reader
	line int
}

func (b *asciiBody) nextLine() ([]string, error) {
	for {
		raw, err := b.in.ReadString('\n')
		if raw == "" && err != nil {
			if err == io.EOF {
				return nil, errors.Errorf("unexpected end of file")
			}
			return nil, err
		}
		b.line++
		if tokens := strings.Fields(raw); len(tokens) > 0 {
			return tokens, nil
		}
		if err != nil {
			return nil, errors.Errorf("unexpected end of file")
		}
	}
}

func (b *asciiBody) readInstance(e *element) ([]float64, error) {
	tokens, err := b.nextLine()
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(e.properties))
	next := 0
	for i, prop := range e.properties {
		if next >= len(tokens) {
			return nil, errors.Errorf("unexpected number of fields, missing %s", prop.name)
		}
		if prop.countType != nil {
			n, err := prop.countType.parse(tokens[next])
			if err != nil || n < 0 {
				return nil, errors.Errorf("invalid list count %s for %s", tokens[next], prop.name)
			}
			next += 1 + int(n)
			if next > len(tokens) {
				return nil, errors.Errorf("list %s declares %d values but the line is shorter", prop.name, int(n))
			}
			continue
		}
		v, err := prop.valueType.parse(tokens[next])
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", prop.name)
		}
		values[i] = v
		next++
	}
	if next != len(tokens) {
		return nil, errors.Errorf("unexpected number of fields, %d values left over", len(tokens)-next)
	}
	return values, nil
}

func (b *asciiBody) expectEnd() error {
	for {
		raw, err := b.in.ReadString('\n')
		if strings.TrimSpace(raw) != "" {
			b.line++
			return errors.Errorf("unexpected data after the last declared element")
		}
		if err != nil {
			return nil
		}
		b.line++
	}
}

func (b *asciiBody) position() string {
	return fmt.Sprintf("line %d", b.line)
}

type binaryBody struct {
	in     *bufio.Reader
	order  binary.ByteOrder
	offset int64
	buf    [8]byte
}

func (b *binaryBody) readValue(t scalarType) (float64, error) {
	n, err := io.ReadFull(b.in, b.buf[:t.size])
	b.offset += int64(n)
	if err != nil {
		return 0, errors.Errorf("unexpected end of data")
	}
	return t.decode(b.buf[:t.size], b.order), nil
}

func (b *binaryBody) readInstance(e *element) ([]float64, error) {
	values := make([]float64, len(e.properties))
	for i, prop := range e.properties {
		if prop.countType != nil {
			n, err := b.readValue(*prop.countType)
			if err != nil {
				return nil, err
			}
			if n < 0 {
				return nil, errors.Errorf("negative list count for %s", prop.name)
			}
			skip := int(n) * prop.valueType.size
			discarded, err := b.in.Discard(skip)
			b.offset += int64(discarded)
			if err != nil {
				return nil, errors.Errorf("unexpected end of data in list %s", prop.name)
			}
			continue
		}
		v, err := b.readValue(prop.valueType)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (b *binaryBody) expectEnd() error {
	if _, err := b.in.ReadByte(); err != io.EOF {
		return errors.Errorf("unexpected data after the last declared element")
	}
	return nil
}

func (b *binaryBody) position() string {
	return fmt.Sprintf("body byte %d", b.offset)
}

package ply

import (
	"bufio"
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Format is the encoding of the PLY body.
type Format string

// Body encodings.
const (
	ASCII              = Format("ascii")
	BinaryLittleEndian = Format("binary_little_endian")
	BinaryBigEndian    = Format("binary_big_endian")
)

type scalarType struct {
	name   string
	size   int
	float  bool
	bits   int
	signed bool
}

var scalarTypes = map[string]scalarType{}

func init() {
	for _, st := range []struct {
		names []string
		t     scalarType
	}{
		{[]string{"char", "int8"}, scalarType{size: 1, bits: 8, signed: true}},
		{[]string{"uchar", "uint8"}, scalarType{size: 1, bits: 8}},
		{[]string{"short", "int16"}, scalarType{size: 2, bits: 16, signed: true}},
		{[]string{"ushort", "uint16"}, scalarType{size: 2, bits: 16}},
		{[]string{"int", "int32"}, scalarType{size: 4, bits: 32, signed: true}},
		{[]string{"uint", "uint32"}, scalarType{size: 4, bits: 32}},
		{[]string{"float", "float32"}, scalarType{size: 4, bits: 32, float: true, signed: true}},
		{[]string{"double", "float64"}, scalarType{size: 8, bits: 64, float: true, signed: true}},
	} {
		for _, name := range st.names {
			t := st.t
			t.name = name
			scalarTypes[name] = t
		}
	}
}

func lookupType(name string) (scalarType, error) {
	t, ok := scalarTypes[name]
	if !ok {
		return scalarType{}, errors.Errorf("unknown property type %q", name)
	}
	return t, nil
}

// parse reads an ascii value of this type.
func (t scalarType) parse(token string) (float64, error) {
	switch {
	case t.float:
		return strconv.ParseFloat(token, t.bits)
	case t.signed:
		v, err := strconv.ParseInt(token, 10, t.bits)
		return float64(v), err
	default:
		v, err := strconv.ParseUint(token, 10, t.bits)
		return float64(v), err
	}
}

// decode reads a binary value of this type from the first t.size bytes of b.
func (t scalarType) decode(b []byte, order binary.ByteOrder) float64 {
	switch t.size {
	case 1:
		if t.signed {
			return float64(int8(b[0]))
		}
		return float64(b[0])
	case 2:
		v := order.Uint16(b)
		if t.signed {
			return float64(int16(v))
		}
		return float64(v)
	case 4:
		v := order.Uint32(b)
		switch {
		case t.float:
			return float64(math.Float32frombits(v))
		case t.signed:
			return float64(int32(v))
		default:
			return float64(v)
		}
	default:
		return math.Float64frombits(order.Uint64(b))
	}
}

type property struct {
	name      string
	valueType scalarType
	// countType is set for list properties.
	countType *scalarType
}

type element struct {
	name       string
	count      int
	properties []property
}

func (e *element) propertyIndex(names ...string) int {
	for _, name := range names {
		for i, p := range e.properties {
			if p.name == name && p.countType == nil {
				return i
			}
		}
	}
	return -1
}

type header struct {
	format   Format
	elements []element
	comments []string
}

// readHeader reads up to and including end_header, leaving in positioned at the body.
func readHeader(in *bufio.Reader) (*header, int, error) {
	h := &header{}
	line := 0
	for {
		raw, err := in.ReadString('\n')
		line++
		if err != nil {
			return nil, line, errors.Wrapf(err, "error reading header line %d", line)
		}
		text := strings.TrimSpace(raw)
		if line == 1 {
			if text != "ply" {
				return nil, line, errors.Errorf("file does not start with ply magic, got %q", text)
			}
			continue
		}
		tokens := strings.Fields(text)
		if len(tokens) == 0 {
			continue
		}
		switch tokens[0] {
		case "format":
			if len(tokens) != 3 {
				return nil, line, errors.Errorf("unexpected number of fields in format line")
			}
			switch Format(tokens[1]) {
			case ASCII, BinaryLittleEndian, BinaryBigEndian:
				h.format = Format(tokens[1])
			default:
				return nil, line, errors.Errorf("unsupported ply format %s", tokens[1])
			}
			if tokens[2] != "1.0" {
				return nil, line, errors.Errorf("unsupported ply version %s", tokens[2])
			}
		case "comment", "obj_info":
			h.comments = append(h.comments, strings.TrimSpace(strings.TrimPrefix(text, tokens[0])))
		case "element":
			if len(tokens) != 3 {
				return nil, line, errors.Errorf("unexpected number of fields in element line")
			}
			count, err := strconv.Atoi(tokens[2])
			if err != nil || count < 0 {
				return nil, line, errors.Errorf("invalid element count %s", tokens[2])
			}
			h.elements = append(h.elements, element{name: tokens[1], count: count})
		case "property":
			if len(h.elements) == 0 {
				return nil, line, errors.Errorf("property declared before any element")
			}
			prop, err := parseProperty(tokens)
			if err != nil {
				return nil, line, err
			}
			e := &h.elements[len(h.elements)-1]
			e.properties = append(e.properties, prop)
		case "end_header":
			if h.format == "" {
				return nil, line, errors.Errorf("header has no format line")
			}
			return h, line, nil
		default:
			return nil, line, errors.Errorf("unknown header keyword %q", tokens[0])
		}
	}
}

func parseProperty(tokens []string) (property, error) {
	if len(tokens) == 5 && tokens[1] == "list" {
		countType, err := lookupType(tokens[2])
		if err != nil {
			return property{}, err
		}
		if countType.float {
			return property{}, errors.Errorf("list count type %s is not an integer type", tokens[2])
		}
		valueType, err := lookupType(tokens[3])
		if err != nil {
			return property{}, err
		}
		return property{name: tokens[4], valueType: valueType, countType: &countType}, nil
	}
	if len(tokens) != 3 {
		return property{}, errors.Errorf("unexpected number of fields in property line")
	}
	valueType, err := lookupType(tokens[1])
	if err != nil {
		return property{}, err
	}
	return property{name: tokens[2], valueType: valueType}, nil
}

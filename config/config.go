// Package config holds the options an import is run with and reads them from a file.
package config

import (
	"bytes"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"go.viam.com/sfmimport/sfm"
)

// Config describes how a reconstruction is imported. Every field is optional.
type Config struct {
	// ImageDir overrides where images referenced by the reconstruction are searched first.
	ImageDir string `json:"image_dir,omitempty"`
	// DefaultWidth and DefaultHeight are used for cameras whose image size cannot be determined.
	DefaultWidth  int `json:"default_width,omitempty"`
	DefaultHeight int `json:"default_height,omitempty"`
	// DefaultPrincipalPointX and DefaultPrincipalPointY replace the image center for formats that
	// do not store a principal point. Both or neither must be set.
	DefaultPrincipalPointX *float64 `json:"default_pp_x,omitempty"`
	DefaultPrincipalPointY *float64 `json:"default_pp_y,omitempty"`
	// TransformationDir holds rigid transforms applied to the whole reconstruction.
	TransformationDir string `json:"transformation_dir,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate() error {
	if c.DefaultWidth < 0 {
		return errors.Errorf("default_width must be positive, got %d", c.DefaultWidth)
	}
	if c.DefaultHeight < 0 {
		return errors.Errorf("default_height must be positive, got %d", c.DefaultHeight)
	}
	if (c.DefaultWidth == 0) != (c.DefaultHeight == 0) {
		return errors.New("default_width and default_height must be set together")
	}
	if (c.DefaultPrincipalPointX == nil) != (c.DefaultPrincipalPointY == nil) {
		return errors.New("default_pp_x and default_pp_y must be set together")
	}
	return nil
}

// Options returns the parser options the config describes.
func (c *Config) Options() sfm.Options {
	opts := sfm.Options{
		ImageDir:      c.ImageDir,
		DefaultWidth:  c.DefaultWidth,
		DefaultHeight: c.DefaultHeight,
	}
	if c.DefaultPrincipalPointX != nil && c.DefaultPrincipalPointY != nil {
		opts.DefaultPrincipalPoint = &[2]float64{*c.DefaultPrincipalPointX, *c.DefaultPrincipalPointY}
	}
	return opts
}

// Read reads a config from a JSON5 file. Environment variables in the file are expanded.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %q", filePath)
	}
	cfg, err := FromBytes(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config %q", filePath)
	}
	return cfg, nil
}

// FromBytes decodes a JSON5 config. Unknown options are rejected.
func FromBytes(buf []byte) (*Config, error) {
	raw := map[string]interface{}{}
	if len(bytes.TrimSpace(buf)) > 0 {
		if err := json5.Unmarshal(buf, &raw); err != nil {
			return nil, err
		}
	}

	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Merge returns c with every set field of override applied on top.
func (c Config) Merge(override Config) Config {
	if override.ImageDir != "" {
		c.ImageDir = override.ImageDir
	}
	if override.DefaultWidth != 0 {
		c.DefaultWidth = override.DefaultWidth
	}
	if override.DefaultHeight != 0 {
		c.DefaultHeight = override.DefaultHeight
	}
	if override.DefaultPrincipalPointX != nil {
		c.DefaultPrincipalPointX = override.DefaultPrincipalPointX
	}
	if override.DefaultPrincipalPointY != nil {
		c.DefaultPrincipalPointY = override.DefaultPrincipalPointY
	}
	if override.TransformationDir != "" {
		c.TransformationDir = override.TransformationDir
	}
	return c
}

// Schema returns the JSON schema of a config file.
func Schema() *jsonschema.Schema {
	return jsonschema.Reflect(&Config{})
}

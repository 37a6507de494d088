// Package cli contains the sfmimport command line.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	debugFlag = "debug"

	importFlagFormat          = "format"
	importFlagConfig          = "config"
	importFlagImages          = "images"
	importFlagTransformations = "transformations"
	importFlagDefaultWidth    = "default-width"
	importFlagDefaultHeight   = "default-height"
	importFlagDefaultPPX      = "default-pp-x"
	importFlagDefaultPPY      = "default-pp-y"
	importFlagZUp             = "z-up"
	importFlagJSON            = "json"
)

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:            "sfmimport",
		Usage:           "read structure from motion reconstructions into one camera and point model",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       errOut,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    debugFlag,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "read a reconstruction and print a summary or the normalized model",
				ArgsUsage: "<reconstruction>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    importFlagFormat,
						Aliases: []string{"f"},
						Usage:   "format of the reconstruction, guessed from the path when omitted",
					},
					&cli.PathFlag{
						Name:    importFlagConfig,
						Aliases: []string{"c"},
						Usage:   "load import options from JSON5 `FILE`",
					},
					&cli.PathFlag{
						Name:  importFlagImages,
						Usage: "`DIR` searched first for images referenced by the reconstruction",
					},
					&cli.PathFlag{
						Name:  importFlagTransformations,
						Usage: "`DIR` of transformation files applied to the reconstruction in filename order",
					},
					&cli.IntFlag{
						Name:  importFlagDefaultWidth,
						Usage: "image width of cameras whose image cannot be read",
					},
					&cli.IntFlag{
						Name:  importFlagDefaultHeight,
						Usage: "image height of cameras whose image cannot be read",
					},
					&cli.Float64Flag{
						Name:  importFlagDefaultPPX,
						Usage: "principal point x for formats that do not store one",
					},
					&cli.Float64Flag{
						Name:  importFlagDefaultPPY,
						Usage: "principal point y for formats that do not store one",
					},
					&cli.BoolFlag{
						Name:  importFlagZUp,
						Usage: "rotate a Y up reconstruction to Z up",
					},
					&cli.BoolFlag{
						Name:  importFlagJSON,
						Usage: "print the normalized model as JSON instead of a summary",
					},
				},
				Action: ImportAction,
			},
			{
				Name:   "config-schema",
				Usage:  "print the JSON schema of the import config file",
				Action: ConfigSchemaAction,
			},
			{
				Name:   "formats",
				Usage:  "list the supported reconstruction formats",
				Action: FormatsAction,
			},
		},
	}
}

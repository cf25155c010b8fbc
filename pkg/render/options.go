package render

import (
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/asyfig/asyfig/pkg/errors"
)

// Output format names accepted by the pipeline. These are passed verbatim to
// the compiler's -f flag; raster formats beyond png may require ImageMagick
// on the compiler side.
const (
	FormatPNG  = "png"
	FormatJPG  = "jpg"
	FormatGIF  = "gif"
	FormatTIFF = "tiff"
	FormatSVG  = "svg"
	FormatPDF  = "pdf"
	FormatEPS  = "eps"
)

// DefaultFormat is the output format used when none is requested.
// PNG requires the least compiler-side setup.
const DefaultFormat = FormatPNG

// ValidFormats is the set of supported output formats.
var ValidFormats = map[string]bool{
	FormatPNG:  true,
	FormatJPG:  true,
	FormatGIF:  true,
	FormatTIFF: true,
	FormatSVG:  true,
	FormatPDF:  true,
	FormatEPS:  true,
}

// ValidateFormat checks that a format is valid.
func ValidateFormat(format string) error {
	if !ValidFormats[format] {
		return errors.New(errors.ErrCodeInvalidFormat,
			"invalid format: %q (must be one of: png, jpg, gif, tiff, svg, pdf, eps)", format)
	}
	return nil
}

// Options contains the per-request configuration for one render.
type Options struct {
	// Format is the requested output format (default png).
	Format string

	// ExtraArgs are opaque flags forwarded verbatim to the compiler,
	// inserted between the fixed flags and the source file path.
	ExtraArgs []string

	// KeepFiles retains the workspace (source and outputs) after the
	// render instead of removing it.
	KeepFiles bool

	// Timeout bounds the compiler run. Zero means unbounded.
	Timeout time.Duration

	// Prelude is source text prepended to the request body, separated by a
	// newline. Used to run an existing figure file ahead of inline code.
	Prelude string
}

// SetDefaults fills unset fields with their default values.
func (o *Options) SetDefaults() {
	if o.Format == "" {
		o.Format = DefaultFormat
	}
}

// ParseArgs parses a whitespace-delimited option string into Options. This is
// the flag surface front-ends pass through unchanged from their command line:
//
//	-f png --keep --timeout 30s -- -render=4
//
// Recognized flags are -f/--format, -k/--keep, and --timeout (a Go duration).
// Everything after a bare "--" is forwarded verbatim to the compiler. Any
// other token is rejected so that typos surface instead of silently reaching
// the compiler.
func ParseArgs(flagStr string) (Options, error) {
	var opts Options
	tokens := strings.Fields(flagStr)

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok == "--":
			opts.ExtraArgs = append(opts.ExtraArgs, tokens[i+1:]...)
			return opts, nil

		case tok == "-f", tok == "--format":
			val, next, err := flagValue(tokens, i, tok)
			if err != nil {
				return Options{}, err
			}
			opts.Format = val
			i = next

		case strings.HasPrefix(tok, "--format="):
			opts.Format = strings.TrimPrefix(tok, "--format=")

		case tok == "-k", tok == "--keep":
			opts.KeepFiles = true

		case tok == "--timeout" || strings.HasPrefix(tok, "--timeout="):
			val := strings.TrimPrefix(tok, "--timeout=")
			if tok == "--timeout" {
				var next int
				var err error
				val, next, err = flagValue(tokens, i, tok)
				if err != nil {
					return Options{}, err
				}
				i = next
			}
			d, err := time.ParseDuration(val)
			if err != nil {
				return Options{}, errors.New(errors.ErrCodeInvalidInput,
					"invalid --timeout value %q: %v", val, err)
			}
			opts.Timeout = d

		default:
			return Options{}, errors.New(errors.ErrCodeInvalidInput,
				"unknown flag %q (use -- to pass flags to the compiler)", tok)
		}
	}
	return opts, nil
}

// flagValue returns the value token following tokens[i], or an error when the
// flag is the last token.
func flagValue(tokens []string, i int, flag string) (string, int, error) {
	if i+1 >= len(tokens) {
		return "", i, errors.New(errors.ErrCodeInvalidInput, "flag %s requires a value", flag)
	}
	return tokens[i+1], i + 1, nil
}

// discardLogger returns a logger that writes nowhere, for library callers
// that do not supply one.
func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

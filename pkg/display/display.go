// Package display wraps render artifacts in a notebook-style display object.
//
// An Object carries the artifact bytes, their MIME type, and (for raster
// images) pixel dimensions. It can serialize itself as a Jupyter-style
// mimebundle (JSON) or as an HTML fragment, so front-ends can hand it to a
// display channel without inspecting the bytes themselves. Failures are
// represented as text/plain objects; the package never writes to a display
// channel itself.
package display

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"image"
	"strings"

	// Decoders registered for dimension sniffing. These cover every raster
	// format the compiler can emit that Go can decode, tiff included.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"
)

// MIME types for the supported output formats.
const (
	MIMEPNG        = "image/png"
	MIMEJPEG       = "image/jpeg"
	MIMEGIF        = "image/gif"
	MIMETIFF       = "image/tiff"
	MIMESVG        = "image/svg+xml"
	MIMEPDF        = "application/pdf"
	MIMEPostScript = "application/postscript"
	MIMEText       = "text/plain"
)

// mimeByFormat maps an output format name to its MIME type.
var mimeByFormat = map[string]string{
	"png":  MIMEPNG,
	"jpg":  MIMEJPEG,
	"jpeg": MIMEJPEG,
	"gif":  MIMEGIF,
	"tiff": MIMETIFF,
	"svg":  MIMESVG,
	"pdf":  MIMEPDF,
	"eps":  MIMEPostScript,
}

// MIMEForFormat returns the MIME type for an output format name.
// The second return value reports whether the format is known.
func MIMEForFormat(format string) (string, bool) {
	mt, ok := mimeByFormat[strings.ToLower(format)]
	return mt, ok
}

// IsImageMIME reports whether mimeType describes an image renderable inline.
func IsImageMIME(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// isTextualMIME reports whether the bytes are safe to embed as UTF-8 text
// rather than base64. SVG is XML text despite its image/ prefix.
func isTextualMIME(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/") || mimeType == MIMESVG
}

// Object is a displayable render result: an inline image, a generic binary
// blob, or a textual error.
type Object struct {
	// Data holds the artifact bytes. Empty for error objects.
	Data []byte

	// MIMEType identifies Data (text/plain for error objects).
	MIMEType string

	// Width and Height are the raster dimensions in pixels, or zero when
	// unknown (vector formats, undecodable data).
	Width  int
	Height int

	// Stdout is the compiler's standard output, surfaced alongside the
	// artifact the way the notebook magic printed it.
	Stdout string

	// Message is the human-facing text for error objects.
	Message string
}

// NewImage creates a display object for an image artifact, sniffing raster
// dimensions when a decoder for the format is registered.
func NewImage(data []byte, mimeType string) *Object {
	o := &Object{Data: data, MIMEType: mimeType}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		o.Width = cfg.Width
		o.Height = cfg.Height
	}
	return o
}

// NewBinary creates a display object for a non-image artifact (PDF, EPS).
// Front-ends present these as downloadable blobs rather than inline images.
func NewBinary(data []byte, mimeType string) *Object {
	return &Object{Data: data, MIMEType: mimeType}
}

// NewError creates a textual error object with the given message.
func NewError(message string) *Object {
	return &Object{MIMEType: MIMEText, Message: message}
}

// IsImage reports whether the object renders as an inline image.
func (o *Object) IsImage() bool {
	return IsImageMIME(o.MIMEType)
}

// IsError reports whether the object is a textual error.
func (o *Object) IsError() bool {
	return o.Message != ""
}

// MimeBundle returns the object as a Jupyter-style data bundle: a map from
// MIME type to either UTF-8 text or a base64 string for binary payloads.
func (o *Object) MimeBundle() map[string]string {
	if o.IsError() {
		return map[string]string{MIMEText: o.Message}
	}
	bundle := map[string]string{}
	if isTextualMIME(o.MIMEType) {
		bundle[o.MIMEType] = string(o.Data)
	} else {
		bundle[o.MIMEType] = base64.StdEncoding.EncodeToString(o.Data)
	}
	if o.Stdout != "" {
		bundle[MIMEText] = o.Stdout
	}
	return bundle
}

// jsonObject is the serialized shape of a display object, matching the
// display_data message layout notebook front-ends consume.
type jsonObject struct {
	Data     map[string]string         `json:"data"`
	Metadata map[string]map[string]int `json:"metadata,omitempty"`
}

// MarshalJSON serializes the object as {"data": {...}, "metadata": {...}}.
func (o *Object) MarshalJSON() ([]byte, error) {
	out := jsonObject{Data: o.MimeBundle()}
	if o.Width > 0 && o.Height > 0 {
		out.Metadata = map[string]map[string]int{
			o.MIMEType: {"width": o.Width, "height": o.Height},
		}
	}
	return json.Marshal(out)
}

// HTML returns an HTML fragment for the object: an <img> with a data URI for
// images, a download link for other binaries, and <pre> for errors.
func (o *Object) HTML() string {
	if o.IsError() {
		return "<pre>" + html.EscapeString(o.Message) + "</pre>"
	}

	uri := o.dataURI()
	if o.IsImage() {
		var size string
		if o.Width > 0 && o.Height > 0 {
			size = fmt.Sprintf(` width="%d" height="%d"`, o.Width, o.Height)
		}
		return fmt.Sprintf(`<img src=%q%s/>`, uri, size)
	}
	return fmt.Sprintf(`<a href=%q download="figure%s">download figure (%s)</a>`,
		uri, extensionFor(o.MIMEType), o.MIMEType)
}

// dataURI encodes the artifact as a data: URI.
func (o *Object) dataURI() string {
	return "data:" + o.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(o.Data)
}

// extensionFor returns a file extension (with dot) for a known MIME type.
func extensionFor(mimeType string) string {
	for format, mt := range mimeByFormat {
		if mt == mimeType && format != "jpeg" {
			return "." + format
		}
	}
	return ""
}

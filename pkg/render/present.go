package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/asyfig/asyfig/pkg/display"
	"github.com/asyfig/asyfig/pkg/errors"
)

// DefaultStderrLimit is the byte bound applied to stderr excerpts in
// human-facing failure messages. The full stream stays on the Failure
// payload for programmatic inspection.
const DefaultStderrLimit = 2048

// truncationMarker is appended to a stderr excerpt that was cut short.
const truncationMarker = "… [stderr truncated]"

// Stage names used in failure messages.
const (
	StageCompile = "compile"
	StageLocate  = "locate output"
)

// Failure describes a render that completed without a system fault but did
// not produce a usable artifact: either the compiler reported an error, or it
// exited cleanly without writing the expected file.
type Failure struct {
	// Code is COMPILER_FAILURE or ARTIFACT_MISSING.
	Code errors.Code

	// Stage names the pipeline stage that failed.
	Stage string

	// ExitCode is the compiler's exit status (zero for ARTIFACT_MISSING).
	ExitCode int

	// Stdout and Stderr hold the full captured streams, untruncated.
	Stdout []byte
	Stderr []byte
}

// Excerpt returns a bounded prefix of stderr for human display. When the
// stream exceeds limit bytes it is cut and the truncation marker appended.
// The cut backs off to a rune boundary so the excerpt stays valid UTF-8.
// A non-positive limit falls back to DefaultStderrLimit.
func (f *Failure) Excerpt(limit int) string {
	if limit <= 0 {
		limit = DefaultStderrLimit
	}
	s := strings.TrimRight(string(f.Stderr), "\n")
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n" + truncationMarker
}

// Message formats the failure for display: the failed stage, the exit code
// when one exists, and the bounded stderr excerpt.
func (f *Failure) Message(limit int) string {
	var b strings.Builder
	switch f.Code {
	case errors.ErrCodeArtifactMissing:
		fmt.Fprintf(&b, "%s failed: compiler exited cleanly but produced no output file", f.Stage)
	default:
		fmt.Fprintf(&b, "%s failed: compiler exited with status %d", f.Stage, f.ExitCode)
	}
	if excerpt := f.Excerpt(limit); excerpt != "" {
		b.WriteString("\n")
		b.WriteString(excerpt)
	}
	return b.String()
}

// presentArtifact wraps a located artifact in a display object: an inline
// image for image MIME types, a generic binary otherwise. The compiler's
// stdout rides along for the front-end to surface.
func presentArtifact(a *Artifact, proc ProcessResult) *display.Object {
	var obj *display.Object
	if display.IsImageMIME(a.MIMEType) {
		obj = display.NewImage(a.Bytes, a.MIMEType)
	} else {
		obj = display.NewBinary(a.Bytes, a.MIMEType)
	}
	obj.Stdout = string(proc.Stdout)
	return obj
}

// presentFailure wraps a failure in a textual display object.
func presentFailure(f *Failure, limit int) *display.Object {
	return display.NewError(f.Message(limit))
}

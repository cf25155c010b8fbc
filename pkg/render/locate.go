package render

import (
	"os"

	"github.com/asyfig/asyfig/pkg/display"
	"github.com/asyfig/asyfig/pkg/errors"
)

// Artifact is the in-memory copy of a produced output file. Its bytes are
// read fully before the owning workspace is torn down, so it stays valid
// after Release.
type Artifact struct {
	Bytes    []byte
	MIMEType string

	// SourcePath is the workspace path the bytes were read from. The file
	// is gone once the workspace is released; the path is diagnostic only.
	SourcePath string
}

// OutputName returns the filename the compiler derives for its output: the
// source file's base name plus the format's conventional extension. For
// every supported format the extension equals the format name.
func OutputName(format string) string {
	return sourceStem + "." + format
}

// Locate finds the produced output file in the workspace.
//
// A non-zero exit code is authoritative evidence of failure: Locate
// short-circuits without scanning, so a stale file can never masquerade as
// this run's output. A zero exit with no expected file is the distinct
// tool-succeeded-but-produced-nothing case; both report found=false and are
// told apart by the exit code the caller already holds.
func Locate(ws *Workspace, format string, proc ProcessResult) (*Artifact, bool, error) {
	if proc.ExitCode != 0 {
		return nil, false, nil
	}

	path := ws.Join(OutputName(format))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeWorkspace, err, "read artifact %s", path)
	}

	mimeType, ok := display.MIMEForFormat(format)
	if !ok {
		return nil, false, errors.New(errors.ErrCodeInternal, "no MIME type for format %q", format)
	}

	return &Artifact{Bytes: data, MIMEType: mimeType, SourcePath: path}, true, nil
}

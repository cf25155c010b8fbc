package render

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"os/exec"
	"time"

	"github.com/charmbracelet/log"

	"github.com/asyfig/asyfig/pkg/config"
	"github.com/asyfig/asyfig/pkg/errors"
)

const (
	// sourceStem is the base name shared by the source file and the
	// compiler's output; the compiler derives the output filename from it.
	sourceStem = "figure"

	// SourceFileName is the fixed name of the source file written into
	// each workspace.
	SourceFileName = sourceStem + ".asy"
)

// ProcessResult captures one compiler run: the exit code and both output
// streams in full. A non-zero exit code is a normal, reportable outcome, not
// an error.
type ProcessResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte

	// Duration is the wall-clock time of the child process.
	Duration time.Duration
}

// Invoker runs the external compiler against a workspace. The compiler path
// is fixed at construction; the invoker never consults ambient state.
type Invoker struct {
	// Compiler is the executable name or path, resolved via exec.LookPath.
	Compiler string

	Logger *log.Logger
}

// Invoke writes sourceText into the workspace and runs the compiler there.
//
// The argument list has a fixed shape: the format flag, the output base name,
// any verbatim extra flags, then the source file path. The child's working
// directory is the workspace, so nothing outside it is touched. Exactly one
// child process is spawned per call and awaited to termination.
//
// Failure modes: a compiler that cannot be located or started returns a
// TOOL_NOT_FOUND error; an expired opts.Timeout returns TOOL_TIMEOUT after
// the child is killed. A compiler that runs and exits non-zero is reported
// through ProcessResult, with a nil error.
func (inv *Invoker) Invoke(ctx context.Context, ws *Workspace, sourceText string, opts Options) (ProcessResult, error) {
	logger := inv.Logger
	if logger == nil {
		logger = discardLogger()
	}

	srcPath := ws.Join(SourceFileName)
	if err := os.WriteFile(srcPath, []byte(sourceText), 0o644); err != nil {
		return ProcessResult{}, errors.Wrap(errors.ErrCodeWorkspace, err, "write source file %s", srcPath)
	}

	path, err := exec.LookPath(inv.Compiler)
	if err != nil {
		return ProcessResult{}, errors.Wrap(errors.ErrCodeToolNotFound, err,
			"compiler %q not found (install Asymptote, or point %s at the executable)",
			inv.Compiler, config.EnvCompiler)
	}

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{"-noView", "-f", opts.Format, "-o", sourceStem}
	args = append(args, opts.ExtraArgs...)
	args = append(args, SourceFileName)

	cmd := exec.CommandContext(runCtx, path, args...)
	cmd.Dir = ws.Path

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("invoking compiler", "path", path, "args", args, "dir", ws.Path)

	start := time.Now()
	runErr := cmd.Run()
	res := ProcessResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if runErr == nil {
		return res, nil
	}

	// The caller's context takes precedence: a cancelled render propagates
	// as cancellation, not as a compiler fault.
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return res, errors.New(errors.ErrCodeToolTimeout,
			"compiler exceeded %s timeout and was terminated", opts.Timeout)
	}

	var exitErr *exec.ExitError
	if stderrors.As(runErr, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}

	// The binary was found but could not be started (permissions, broken
	// interpreter, ...). Same remediation as a missing binary.
	return res, errors.Wrap(errors.ErrCodeToolNotFound, runErr, "cannot execute compiler %q", path)
}

// Package render implements the asyfig invocation and output-capture
// pipeline.
//
// The pipeline takes raw Asymptote source text and per-request options and
// deterministically produces either a displayable image artifact or a
// reported failure. All diagram understanding and graphics work is delegated
// to the external compiler; this package only orchestrates it:
//
//  1. Workspace: allocate an isolated scratch directory for the request
//  2. Invoke: write the source file and run the compiler as a child process
//  3. Locate: find the produced output file, or determine none was produced
//  4. Present: wrap the artifact or failure in a display object
//
// # Usage
//
// Create a Runner and render:
//
//	runner := render.NewRunner(cfg.ResolveCompiler(), logger)
//	result, err := runner.Render(ctx, source, render.Options{Format: "png"})
//	if err != nil {
//	    log.Fatal(err) // infrastructure fault
//	}
//	if !result.OK() {
//	    fmt.Println(result.Display.Message) // compiler-reported failure
//	}
//
// Infrastructure faults (workspace, missing compiler, timeout) come back as
// errors; a compiler that ran and failed is a normal result, distinguishable
// via Result.Failure.
//
// The pipeline holds no shared mutable state: a single Runner is safe for
// concurrent use, and isolation between simultaneous renders rests entirely
// on unique workspace naming.
package render

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/asyfig/asyfig/pkg/config"
	"github.com/asyfig/asyfig/pkg/display"
	"github.com/asyfig/asyfig/pkg/errors"
)

// Stats contains timing information for one render.
type Stats struct {
	CompileTime time.Duration
	TotalTime   time.Duration
}

// Result contains the outcome of one render request. Exactly one of Artifact
// and Failure is set; Display is always set and ready for the front-end.
type Result struct {
	// Display is the presentation of the outcome: inline image, binary
	// blob, or textual error.
	Display *display.Object

	// Artifact is the located output, nil when the render failed.
	Artifact *Artifact

	// Failure describes a compiler-reported error or a missing output,
	// nil when the render succeeded.
	Failure *Failure

	// Process is the compiler run's exit code and captured streams.
	Process ProcessResult

	// Stats contains timing information.
	Stats Stats

	// WorkspacePath is the retained workspace directory when the request
	// asked to keep intermediate files, empty otherwise.
	WorkspacePath string
}

// OK reports whether the render produced an artifact.
func (r *Result) OK() bool {
	return r.Failure == nil
}

// Runner executes render requests against a fixed compiler.
//
// The Runner is stateless except for its configuration; multiple goroutines
// can safely share one Runner.
type Runner struct {
	// Compiler is the executable name or path passed to each Invoker.
	Compiler string

	// StderrLimit bounds stderr excerpts in failure messages.
	StderrLimit int

	Logger *log.Logger
}

// NewRunner creates a runner for the given compiler executable.
// An empty compiler falls back to the environment override and then the
// well-known default name. A nil logger disables logging.
func NewRunner(compiler string, logger *log.Logger) *Runner {
	if compiler == "" {
		compiler = config.Default().ResolveCompiler()
	}
	if logger == nil {
		logger = discardLogger()
	}
	return &Runner{
		Compiler:    compiler,
		StderrLimit: DefaultStderrLimit,
		Logger:      logger,
	}
}

// Render runs the full pipeline for one request.
//
// The workspace is released on every exit path; when opts.KeepFiles is set
// it survives instead and its path is reported on the result. Artifact bytes
// are fully read into memory before the workspace is torn down.
func (r *Runner) Render(ctx context.Context, sourceText string, opts Options) (result *Result, err error) {
	opts.SetDefaults()
	if err := ValidateFormat(opts.Format); err != nil {
		return nil, err
	}
	if strings.TrimSpace(sourceText) == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "empty source text")
	}
	if opts.Prelude != "" {
		sourceText = opts.Prelude + "\n" + sourceText
	}

	start := time.Now()

	ws, err := AcquireWorkspace()
	if err != nil {
		return nil, err
	}
	if opts.KeepFiles {
		ws.Retain()
	}
	defer func() {
		if rerr := ws.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	r.Logger.Debug("acquired workspace", "id", ws.ID, "path", ws.Path)

	inv := &Invoker{Compiler: r.Compiler, Logger: r.Logger}
	proc, err := inv.Invoke(ctx, ws, sourceText, opts)
	if err != nil {
		return nil, annotateKept(ws, err)
	}

	r.Logger.Info("compiler finished",
		"exit_code", proc.ExitCode,
		"duration", proc.Duration.Round(time.Millisecond))

	artifact, found, err := Locate(ws, opts.Format, proc)
	if err != nil {
		return nil, annotateKept(ws, err)
	}

	result = &Result{Process: proc}
	result.Stats.CompileTime = proc.Duration
	if ws.Retained() {
		result.WorkspacePath = ws.Path
	}

	switch {
	case found:
		result.Artifact = artifact
		result.Display = presentArtifact(artifact, proc)
		r.Logger.Debug("located artifact",
			"path", artifact.SourcePath,
			"bytes", len(artifact.Bytes),
			"mime", artifact.MIMEType)

	case proc.ExitCode != 0:
		result.Failure = &Failure{
			Code:     errors.ErrCodeCompilerFailure,
			Stage:    StageCompile,
			ExitCode: proc.ExitCode,
			Stdout:   proc.Stdout,
			Stderr:   proc.Stderr,
		}
		result.Display = presentFailure(result.Failure, r.StderrLimit)

	default:
		result.Failure = &Failure{
			Code:   errors.ErrCodeArtifactMissing,
			Stage:  StageLocate,
			Stdout: proc.Stdout,
			Stderr: proc.Stderr,
		}
		result.Display = presentFailure(result.Failure, r.StderrLimit)
	}

	result.Stats.TotalTime = time.Since(start)
	return result, nil
}

// annotateKept records a retained workspace's path on fault errors. A request
// that asked to keep its files gets no Result on a fault, so the error itself
// names the surviving directory instead of orphaning it silently.
func annotateKept(ws *Workspace, err error) error {
	if err == nil || !ws.Retained() || !errors.IsFault(err) {
		return err
	}
	return errors.Wrap(errors.GetCode(err), err, "workspace kept at %s", ws.Path)
}

// Render is the single-call entry point for front-ends: it parses the
// whitespace-delimited option string, runs the pipeline with the default
// compiler resolution, and returns the display object.
func Render(ctx context.Context, sourceText, optionFlags string) (*display.Object, error) {
	opts, err := ParseArgs(optionFlags)
	if err != nil {
		return nil, err
	}
	result, err := NewRunner("", nil).Render(ctx, sourceText, opts)
	if err != nil {
		return nil, err
	}
	return result.Display, nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/asyfig/asyfig/pkg/config"
	"github.com/asyfig/asyfig/pkg/errors"
	"github.com/asyfig/asyfig/pkg/render"
)

// stdinName is the input argument that selects standard input.
const stdinName = "-"

// renderOpts holds the command-line flags for the render command.
// These options control output format, compiler selection, and workspace
// retention; flags after "--" are forwarded verbatim to the compiler.
type renderOpts struct {
	output   string        // output file path ("-" for stdout)
	format   string        // output format: png, jpg, gif, tiff, svg, pdf, eps
	keep     bool          // retain the scratch workspace after the render
	timeout  time.Duration // compiler run timeout (0 = unbounded)
	prelude  string        // path of a source file prepended to the input
	compiler string        // compiler executable override
	jsonOut  bool          // emit a display-data mimebundle instead of a file
}

// newRenderCmd creates the render command for compiling Asymptote source.
//
// The single argument is a source file path, or "-" to read from stdin.
// Everything after "--" is passed through to the compiler unchanged:
//
//	asyfig render figure.asy -f svg -- -render=4
func newRenderCmd() *cobra.Command {
	var opts renderOpts

	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Compile an Asymptote source file to an image",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extraArgs []string
			if at := cmd.ArgsLenAtDash(); at >= 0 {
				extraArgs = args[at:]
				args = args[:at]
			}
			if len(args) != 1 {
				return errors.New(errors.ErrCodeInvalidInput,
					"expected exactly one source file, got %d", len(args))
			}
			return runRender(cmd.Context(), args[0], extraArgs, &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: input name with format extension, \"-\" for stdout)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: png (default), jpg, gif, tiff, svg, pdf, eps")
	cmd.Flags().BoolVarP(&opts.keep, "keep", "k", false, "keep the scratch workspace for inspection")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "abort the compiler after this duration (0 = no limit)")
	cmd.Flags().StringVar(&opts.prelude, "prelude", "", "source file prepended before the input")
	cmd.Flags().StringVar(&opts.compiler, "compiler", "", "compiler executable (overrides config and "+config.EnvCompiler+")")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "write a display-data mimebundle to stdout instead of a file")

	return cmd
}

// runRender reads the source, runs the compiler pipeline, and writes the
// artifact or reports the failure.
func runRender(ctx context.Context, input string, extraArgs []string, opts *renderOpts) error {
	logger := loggerFromContext(ctx)

	cfg, err := config.LoadDefault()
	if err != nil {
		if opts.jsonOut {
			// Keep stdout pure JSON; the warning goes to the stderr logger.
			logger.Warn("ignoring unreadable config file", "err", err)
		} else {
			printWarning("ignoring unreadable config file: %v", err)
		}
		cfg = config.Default()
	}

	source, err := readSource(input)
	if err != nil {
		return err
	}

	reqOpts := render.Options{
		Format:    opts.format,
		ExtraArgs: extraArgs,
		KeepFiles: opts.keep,
		Timeout:   opts.timeout,
	}
	if reqOpts.Format == "" {
		reqOpts.Format = cfg.Format
	}
	if reqOpts.Timeout == 0 && cfg.TimeoutSeconds > 0 {
		reqOpts.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if opts.prelude != "" {
		prelude, err := os.ReadFile(opts.prelude)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "read prelude file %s", opts.prelude)
		}
		reqOpts.Prelude = string(prelude)
	}

	compiler := opts.compiler
	if compiler == "" {
		compiler = cfg.ResolveCompiler()
	}

	runner := render.NewRunner(compiler, logger)
	runner.StderrLimit = cfg.StderrLimit

	var sp *Spinner
	if !opts.jsonOut {
		sp = newSpinnerWithContext(ctx, fmt.Sprintf("Compiling %s", displayName(input)))
		sp.Start()
	}

	prog := newProgress(logger)
	result, err := runner.Render(ctx, string(source), reqOpts)
	if err != nil {
		if sp != nil {
			sp.Stop()
		}
		return err
	}

	if opts.jsonOut {
		return writeJSON(result)
	}

	if !result.OK() {
		sp.StopWithError("Compilation failed")
		if result.WorkspacePath != "" {
			printDetail("workspace kept: %s", result.WorkspacePath)
		}
		return errors.New(result.Failure.Code, "%s", result.Failure.Message(cfg.StderrLimit))
	}

	if opts.output == stdinName {
		// Stop the stderr animation before streaming artifact bytes.
		sp.Stop()
	}
	artifactPath, err := writeArtifact(result, input, reqOpts.Format, opts.output)
	if err != nil {
		sp.Stop()
		return err
	}

	prog.done(fmt.Sprintf("Rendered %s", displayName(input)))

	if artifactPath != "" {
		sp.StopWithSuccess(fmt.Sprintf("Rendered %s", displayName(input)))
		printFile(artifactPath)
		printDetail("%s · %d bytes · compile %s",
			result.Artifact.MIMEType,
			len(result.Artifact.Bytes),
			result.Stats.CompileTime.Round(time.Millisecond))
	}
	if stdout := strings.TrimSpace(result.Display.Stdout); stdout != "" {
		printDetail("compiler output: %s", stdout)
	}
	if result.WorkspacePath != "" {
		printDetail("workspace kept: %s", result.WorkspacePath)
	}
	return nil
}

// readSource reads the Asymptote source from a file, or stdin for "-".
func readSource(input string) ([]byte, error) {
	if input == stdinName {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read source from stdin")
		}
		return data, nil
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read source file %s", input)
	}
	return data, nil
}

// displayName returns a human-facing name for the input argument.
func displayName(input string) string {
	if input == stdinName {
		return "stdin"
	}
	return filepath.Base(input)
}

// outputPath derives the artifact destination from the --output flag and the
// input path. Without an explicit output, the input's extension is replaced
// with the format's; stdin input lands in the working directory.
func outputPath(output, input, format string) string {
	if output != "" {
		return output
	}
	if input == stdinName {
		return "figure." + format
	}
	return strings.TrimSuffix(input, filepath.Ext(input)) + "." + format
}

// writeArtifact writes the rendered bytes to their destination. It returns
// the written path, or "" when the bytes went to stdout.
func writeArtifact(result *render.Result, input, format, output string) (string, error) {
	if output == stdinName {
		if _, err := os.Stdout.Write(result.Artifact.Bytes); err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "write artifact to stdout")
		}
		return "", nil
	}

	path := outputPath(output, input, format)
	if err := os.WriteFile(path, result.Artifact.Bytes, 0o644); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "write artifact %s", path)
	}
	return path, nil
}

// writeJSON emits the display-data mimebundle on stdout. Failures are part of
// the bundle (as text/plain), so notebook-style consumers always receive a
// displayable payload and the exit code stays zero.
func writeJSON(result *render.Result) error {
	data, err := json.Marshal(result.Display)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "encode display object")
	}
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}

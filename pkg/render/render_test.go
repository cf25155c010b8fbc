package render

import (
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asyfig/asyfig/pkg/config"
	"github.com/asyfig/asyfig/pkg/errors"
)

// stubCompiler writes a shell script that stands in for the real compiler.
// Scripts run with the workspace as working directory and receive the fixed
// argument shape, so they can read figure.asy and write figure.<format>.
func stubCompiler(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub compiler scripts require sh")
	}
	path := filepath.Join(t.TempDir(), "asy")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// copyStub echoes the source file into the expected png output and prints the
// workspace path on stdout, so tests can check byte fidelity and cleanup.
const copyStub = `pwd
cp figure.asy figure.png
echo "rendered ok"
`

func TestRenderSuccess(t *testing.T) {
	r := NewRunner(stubCompiler(t, copyStub), nil)
	source := "draw((0,0)--(1,1)--(0,1)--cycle);"

	result, err := r.Render(context.Background(), source, Options{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !result.OK() {
		t.Fatalf("Render() failed: %+v", result.Failure)
	}
	if result.Process.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", result.Process.ExitCode)
	}
	if got := string(result.Artifact.Bytes); got != source {
		t.Errorf("artifact bytes = %q, want source text %q", got, source)
	}
	if result.Artifact.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", result.Artifact.MIMEType)
	}
	if result.Display == nil || result.Display.IsError() {
		t.Fatalf("Display = %+v, want non-error object", result.Display)
	}
	if !strings.Contains(result.Display.Stdout, "rendered ok") {
		t.Errorf("Display.Stdout = %q, missing compiler stdout", result.Display.Stdout)
	}
	if result.WorkspacePath != "" {
		t.Errorf("WorkspacePath = %q, want empty without KeepFiles", result.WorkspacePath)
	}
	if result.Stats.TotalTime <= 0 {
		t.Errorf("TotalTime = %v, want > 0", result.Stats.TotalTime)
	}
}

func TestRenderCleansWorkspace(t *testing.T) {
	r := NewRunner(stubCompiler(t, copyStub), nil)

	result, err := r.Render(context.Background(), "draw(unitcircle);", Options{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	wsPath := strings.SplitN(string(result.Process.Stdout), "\n", 2)[0]
	if wsPath == "" {
		t.Fatal("stub did not report its working directory")
	}
	if _, err := os.Stat(wsPath); !os.IsNotExist(err) {
		t.Errorf("workspace %s still exists after render", wsPath)
	}
}

func TestRenderKeepFiles(t *testing.T) {
	r := NewRunner(stubCompiler(t, copyStub), nil)

	result, err := r.Render(context.Background(), "draw(unitcircle);", Options{KeepFiles: true})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if result.WorkspacePath == "" {
		t.Fatal("WorkspacePath empty with KeepFiles set")
	}
	t.Cleanup(func() { os.RemoveAll(result.WorkspacePath) })

	for _, name := range []string{SourceFileName, "figure.png"} {
		if _, err := os.Stat(filepath.Join(result.WorkspacePath, name)); err != nil {
			t.Errorf("retained workspace missing %s: %v", name, err)
		}
	}
}

func TestRenderKeepFilesFaultReportsPath(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "no-such-compiler"), nil)

	_, err := r.Render(context.Background(), "draw(unitcircle);", Options{KeepFiles: true})
	if err == nil {
		t.Fatal("Render() error = nil for missing compiler")
	}
	if !errors.Is(err, errors.ErrCodeToolNotFound) {
		t.Errorf("error code = %v, want TOOL_NOT_FOUND", errors.GetCode(err))
	}

	const marker = "workspace kept at "
	msg := err.Error()
	idx := strings.Index(msg, marker)
	if idx < 0 {
		t.Fatalf("error %q does not report the retained workspace path", msg)
	}
	wsPath := strings.SplitN(msg[idx+len(marker):], ": ", 2)[0]
	t.Cleanup(func() { os.RemoveAll(wsPath) })

	if _, statErr := os.Stat(filepath.Join(wsPath, SourceFileName)); statErr != nil {
		t.Errorf("retained workspace missing source file: %v", statErr)
	}
}

func TestRenderCompilerFailure(t *testing.T) {
	stub := stubCompiler(t, `echo "figure.asy: 1.5: syntax error" >&2
exit 3
`)
	r := NewRunner(stub, nil)

	result, err := r.Render(context.Background(), "draw(;", Options{})
	if err != nil {
		t.Fatalf("Render() error = %v, compiler failure must not be an error", err)
	}
	if result.OK() {
		t.Fatal("result.OK() = true for failed compile")
	}
	if result.Failure.Code != errors.ErrCodeCompilerFailure {
		t.Errorf("Failure.Code = %v, want COMPILER_FAILURE", result.Failure.Code)
	}
	if result.Failure.ExitCode != 3 {
		t.Errorf("Failure.ExitCode = %d, want 3", result.Failure.ExitCode)
	}
	if !result.Display.IsError() {
		t.Error("Display is not an error object")
	}
	for _, want := range []string{"status 3", "syntax error"} {
		if !strings.Contains(result.Display.Message, want) {
			t.Errorf("Display.Message = %q, missing %q", result.Display.Message, want)
		}
	}
}

func TestRenderArtifactMissing(t *testing.T) {
	r := NewRunner(stubCompiler(t, "exit 0\n"), nil)

	result, err := r.Render(context.Background(), "draw(unitcircle);", Options{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if result.OK() {
		t.Fatal("result.OK() = true with no output file")
	}
	if result.Failure.Code != errors.ErrCodeArtifactMissing {
		t.Errorf("Failure.Code = %v, want ARTIFACT_MISSING", result.Failure.Code)
	}
	if result.Failure.ExitCode != 0 {
		t.Errorf("Failure.ExitCode = %d, want 0", result.Failure.ExitCode)
	}
	if !strings.Contains(result.Display.Message, "produced no output file") {
		t.Errorf("Display.Message = %q, missing wording for clean exit without output", result.Display.Message)
	}
}

func TestRenderStderrExcerptBounded(t *testing.T) {
	stub := stubCompiler(t, `i=0
while [ $i -lt 400 ]; do
  echo "error line $i: something went wrong in a fairly verbose way" >&2
  i=$((i+1))
done
exit 1
`)
	r := NewRunner(stub, nil)

	result, err := r.Render(context.Background(), "draw(unitcircle);", Options{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if len(result.Failure.Stderr) <= DefaultStderrLimit {
		t.Fatalf("stub produced only %d bytes of stderr, test needs more than %d",
			len(result.Failure.Stderr), DefaultStderrLimit)
	}

	excerpt := result.Failure.Excerpt(0)
	if !strings.HasSuffix(excerpt, truncationMarker) {
		t.Error("long excerpt missing truncation marker")
	}
	prefix := strings.TrimSuffix(excerpt, "\n"+truncationMarker)
	if !bytes.HasPrefix(result.Failure.Stderr, []byte(prefix)) {
		t.Error("excerpt is not a prefix of the captured stderr")
	}
	if len(prefix) != DefaultStderrLimit {
		t.Errorf("excerpt prefix length = %d, want %d", len(prefix), DefaultStderrLimit)
	}
	if !strings.HasPrefix(excerpt, "error line 0:") {
		t.Errorf("excerpt starts with %q, want the beginning of the stream", excerpt[:40])
	}
}

func TestRenderToolNotFound(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "no-such-compiler"), nil)

	result, err := r.Render(context.Background(), "draw(unitcircle);", Options{})
	if err == nil {
		t.Fatal("Render() error = nil for missing compiler")
	}
	if !errors.Is(err, errors.ErrCodeToolNotFound) {
		t.Errorf("error code = %v, want TOOL_NOT_FOUND", errors.GetCode(err))
	}
	if !strings.Contains(err.Error(), config.EnvCompiler) {
		t.Errorf("error %q does not mention the %s override", err, config.EnvCompiler)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil on fault", result)
	}
}

func TestRenderTimeout(t *testing.T) {
	stub := stubCompiler(t, "sleep 10\n")
	r := NewRunner(stub, nil)

	start := time.Now()
	_, err := r.Render(context.Background(), "draw(unitcircle);", Options{Timeout: 100 * time.Millisecond})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Render() error = nil for timed-out compiler")
	}
	if !errors.Is(err, errors.ErrCodeToolTimeout) {
		t.Errorf("error code = %v, want TOOL_TIMEOUT", errors.GetCode(err))
	}
	if elapsed > 5*time.Second {
		t.Errorf("render took %v, child was not killed at the deadline", elapsed)
	}
}

func TestRenderContextCanceled(t *testing.T) {
	stub := stubCompiler(t, "sleep 10\n")
	r := NewRunner(stub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := r.Render(ctx, "draw(unitcircle);", Options{})
	if err == nil {
		t.Fatal("Render() error = nil for canceled context")
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRenderInvalidInput(t *testing.T) {
	r := NewRunner(stubCompiler(t, copyStub), nil)

	t.Run("empty source", func(t *testing.T) {
		_, err := r.Render(context.Background(), "  \n\t", Options{})
		if !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("error code = %v, want INVALID_INPUT", errors.GetCode(err))
		}
	})

	t.Run("bad format", func(t *testing.T) {
		_, err := r.Render(context.Background(), "draw(unitcircle);", Options{Format: "bmp"})
		if !errors.Is(err, errors.ErrCodeInvalidFormat) {
			t.Errorf("error code = %v, want INVALID_FORMAT", errors.GetCode(err))
		}
	})
}

func TestRenderPrelude(t *testing.T) {
	r := NewRunner(stubCompiler(t, copyStub), nil)

	result, err := r.Render(context.Background(), "draw(unitcircle);",
		Options{Prelude: "size(100);"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !result.OK() {
		t.Fatalf("Render() failed: %+v", result.Failure)
	}
	want := "size(100);\ndraw(unitcircle);"
	if got := string(result.Artifact.Bytes); got != want {
		t.Errorf("compiled source = %q, want prelude prepended %q", got, want)
	}
}

func TestRenderExtraArgsForwarded(t *testing.T) {
	// The stub dumps its argv into the output file so the test can inspect
	// the exact argument shape the compiler sees.
	stub := stubCompiler(t, `printf '%s\n' "$@" > figure.png
`)
	r := NewRunner(stub, nil)

	result, err := r.Render(context.Background(), "draw(unitcircle);",
		Options{ExtraArgs: []string{"-render=4", "-noprc"}})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !result.OK() {
		t.Fatalf("Render() failed: %+v", result.Failure)
	}

	got := strings.Split(strings.TrimRight(string(result.Artifact.Bytes), "\n"), "\n")
	want := []string{"-noView", "-f", "png", "-o", "figure", "-render=4", "-noprc", SourceFileName}
	if len(got) != len(want) {
		t.Fatalf("argv = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("argv[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRenderConcurrentIsolation(t *testing.T) {
	r := NewRunner(stubCompiler(t, copyStub), nil)

	const n = 4
	sources := make([]string, n)
	results := make([]*Result, n)
	errs := make([]error, n)
	for i := range sources {
		sources[i] = "label(\"request " + strings.Repeat("x", i+1) + "\");"
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Render(context.Background(), sources[i], Options{})
		}(i)
	}
	wg.Wait()

	seen := map[string]int{}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("render %d: %v", i, errs[i])
		}
		if !results[i].OK() {
			t.Fatalf("render %d failed: %+v", i, results[i].Failure)
		}
		if got := string(results[i].Artifact.Bytes); got != sources[i] {
			t.Errorf("render %d got bytes of a different request: %q", i, got)
		}
		wsPath := strings.SplitN(string(results[i].Process.Stdout), "\n", 2)[0]
		if prev, dup := seen[wsPath]; dup {
			t.Errorf("renders %d and %d shared workspace %s", prev, i, wsPath)
		}
		seen[wsPath] = i
	}
}

func TestRenderIdempotent(t *testing.T) {
	r := NewRunner(stubCompiler(t, copyStub), nil)
	source := "draw((0,0)--(2,0)--(1,2)--cycle);"

	first, err := r.Render(context.Background(), source, Options{})
	if err != nil {
		t.Fatalf("first Render() error = %v", err)
	}
	second, err := r.Render(context.Background(), source, Options{})
	if err != nil {
		t.Fatalf("second Render() error = %v", err)
	}
	if !bytes.Equal(first.Artifact.Bytes, second.Artifact.Bytes) {
		t.Error("repeated renders of the same source produced different artifacts")
	}
}

func TestLocateIgnoresStaleFileOnFailure(t *testing.T) {
	ws, err := AcquireWorkspace()
	if err != nil {
		t.Fatalf("AcquireWorkspace() error = %v", err)
	}
	defer ws.Release()

	if err := os.WriteFile(ws.Join(OutputName("png")), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	artifact, found, err := Locate(ws, "png", ProcessResult{ExitCode: 2})
	if err != nil {
		t.Fatalf("Locate() error = %v", err)
	}
	if found || artifact != nil {
		t.Error("Locate treated a leftover file as output of a failed run")
	}
}

func TestOutputName(t *testing.T) {
	if got := OutputName("svg"); got != "figure.svg" {
		t.Errorf("OutputName(svg) = %q, want figure.svg", got)
	}
}

func TestRenderEntryPoint(t *testing.T) {
	t.Setenv(config.EnvCompiler, stubCompiler(t, copyStub))

	obj, err := Render(context.Background(), "draw(unitcircle);", "-f png")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if obj.IsError() {
		t.Fatalf("display object is an error: %s", obj.Message)
	}
	if obj.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want image/png", obj.MIMEType)
	}
}

func TestRenderEntryPointBadFlags(t *testing.T) {
	_, err := Render(context.Background(), "draw(unitcircle);", "--frmat png")
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("error code = %v, want INVALID_INPUT", errors.GetCode(err))
	}
}

// nuls.go
// Core compiler bridge: turns (text, operation, settings, uri) into a bounded
// subprocess call against the external Nushell compiler and captures its output.
package nuls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

// CompilerBackend answers IDE queries about a document. The production
// implementation shells out to the compiler binary; tests and alternative
// backends (in-process engine, RPC service) substitute their own.
type CompilerBackend interface {
	Run(ctx context.Context, query CompilerQuery) (*CompilerResponse, error)
}

// NuCompiler runs IDE queries by invoking the configured compiler executable.
// Each call writes the in-memory text to a fresh temp file (the compiler
// accepts only file input for IDE queries, not stdin), runs one bounded
// subprocess, and captures stdout. Nothing is pooled or cached across calls.
type NuCompiler struct {
	logger *slog.Logger
}

// NewNuCompiler creates the subprocess-backed compiler bridge.
func NewNuCompiler(logger *slog.Logger) *NuCompiler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &NuCompiler{logger: logger}
}

var _ CompilerBackend = (*NuCompiler)(nil)

// Run implements CompilerBackend.
//
// The exit status is deliberately ignored: the compiler exits non-zero when
// the script has errors, and its diagnostic output is exactly the product of
// interest. Stdout that is not valid UTF-8 is a hard decode error.
func (c *NuCompiler) Run(ctx context.Context, query CompilerQuery) (*CompilerResponse, error) {
	args, err := buildIdeArgs(query)
	if err != nil {
		return nil, err
	}

	tmpFile, err := os.CreateTemp("", "nuls-*.nu")
	if err != nil {
		return nil, fmt.Errorf("%w: cannot create temp file: %w", ErrTempFile, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if rmErr := os.Remove(tmpPath); rmErr != nil {
			c.logger.Warn("Failed to remove compiler temp file", "path", tmpPath, "error", rmErr)
		}
	}()

	if _, err := tmpFile.WriteString(query.Text); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("%w: cannot write temp file %s: %w", ErrTempFile, tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("%w: cannot close temp file %s: %w", ErrTempFile, tmpPath, err)
	}

	// The temp file path is always the final argument.
	args = append(args, tmpPath)

	timeout := query.Settings.MaxInvocationTime.Duration()
	if timeout <= 0 {
		timeout = defaultInvocationTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	executable := query.Settings.ExecutablePath
	if executable == "" {
		executable = defaultExecutablePath
	}
	cmdline := executable + " " + strings.Join(args, " ")
	runLogger := c.logger.With("operation", query.Op.String(), "uri", query.URI)
	runLogger.Debug("Invoking compiler", "cmdline", cmdline, "timeout", timeout)

	cmd := exec.CommandContext(runCtx, executable, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		runLogger.Warn("Compiler invocation timed out", "timeout", timeout)
		return nil, fmt.Errorf("%w after %s: %s", ErrCompilerTimeout, timeout, cmdline)
	}
	// A cancelled caller is neither a spawn failure nor a timeout.
	if ctx.Err() != nil {
		return nil, fmt.Errorf("compiler invocation aborted: %w", ctx.Err())
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("%w: %s: %w", ErrCompilerSpawn, cmdline, runErr)
		}
		// Non-zero exit: expected for scripts with errors, keep the output.
		runLogger.Debug("Compiler exited non-zero", "exit_code", exitErr.ExitCode())
	}
	if stderr.Len() > 0 {
		runLogger.Debug("Compiler stderr", "stderr", stderr.String())
	}

	if !utf8.Valid(stdout.Bytes()) {
		return nil, fmt.Errorf("%w: %s", ErrOutputDecode, cmdline)
	}

	return &CompilerResponse{Cmdline: cmdline, Stdout: stdout.String()}, nil
}

// buildIdeArgs assembles the compiler argument list for a query, minus the
// trailing temp file path.
func buildIdeArgs(query CompilerQuery) ([]string, error) {
	var args []string
	switch query.Op {
	case OpCheck:
		args = append(args, query.Op.flag(), strconv.FormatUint(uint64(query.Settings.MaxNumberOfProblems), 10))
	case OpComplete, OpHover, OpGotoDef:
		args = append(args, query.Op.flag(), strconv.Itoa(query.Offset))
	default:
		return nil, fmt.Errorf("unknown IDE operation %d", query.Op)
	}

	includeDirs, err := includePathDirs(query.URI, query.Settings)
	if err != nil {
		return nil, err
	}
	if len(includeDirs) > 0 {
		args = append(args, "--include-path", strings.Join(includeDirs, includePathSeparator))
	}
	return args, nil
}

// includePathDirs computes the include-path list: the parent directory of the
// source file when it is local, followed by the configured include dirs.
func includePathDirs(uri DocumentURI, settings Settings) ([]string, error) {
	var dirs []string
	if strings.HasPrefix(string(uri), "file://") {
		path, err := ValidateAndGetFilePath(string(uri))
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, filepath.Dir(path))
	}
	dirs = append(dirs, settings.IncludeDirs...)
	return dirs, nil
}

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DirEntry is one entry of a directory listing.
type DirEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// CommandResult is the outcome of a shell command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Workspace is the filesystem and shell the tools operate on.
type Workspace interface {
	ListDirectory(path string, showHidden bool) ([]DirEntry, error)
	ReadTextFile(path string) (string, error)
	WriteTextFile(path, text string) error
	// RunCommand reports a non-zero exit through CommandResult.ExitCode.
	// It returns an error, together with whatever output was captured, when
	// the command could not be started or exceeded timeout.
	RunCommand(ctx context.Context, command, cwd string, timeout time.Duration) (CommandResult, error)
}

// ErrCommandTimeout is returned by RunCommand when the timeout elapsed.
var ErrCommandTimeout = errors.New("command timed out")

// OSWorkspace is the Workspace backed by the local machine.
type OSWorkspace struct {
	// Shell runs commands with `-c`. Defaults to $SHELL, then sh.
	Shell string
}

func (w OSWorkspace) ListDirectory(path string, showHidden bool) ([]DirEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, NewToolErrorf(ErrNotADirectory, "%s is not a directory", path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		if !showHidden && strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		e := DirEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			e.Size = info.Size()
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (w OSWorkspace) ReadTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (w OSWorkspace) WriteTextFile(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent directories: %w", err)
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

func (w OSWorkspace) RunCommand(ctx context.Context, command, cwd string, timeout time.Duration) (CommandResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, w.shell(), "-c", command)
	cmd.Dir = cwd
	// Background children may keep the pipes open after the shell exits.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		return result, ErrCommandTimeout
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		result.ExitCode = -1
		return result, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, err
	}
	return result, nil
}

func (w OSWorkspace) shell() string {
	if w.Shell != "" {
		return w.Shell
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}
	return "sh"
}

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Status classifies how an external tool invocation ended.
type Status int

const (
	StatusSuccess Status = iota
	StatusToolFailed
	StatusToolNotFound
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusToolFailed:
		return "tool failed"
	case StatusToolNotFound:
		return "tool not found"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Command describes a single external tool invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string   // Working directory. Never inherited from a chdir.
	Env   []string // Appended to the current environment.
	Stdin io.Reader

	// Stream, when set, receives the tool's stdout and stderr as they are
	// produced in addition to the captured copies.
	Stream io.Writer
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the outcome of running a Command.
type Result struct {
	Command  Command
	Status   Status
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error // Underlying error for StatusToolNotFound or a failed start.
}

// OK reports whether the tool exited with status zero.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// ToolError wraps a non-successful Result so it can travel as an error.
type ToolError struct {
	Result Result
}

func (e *ToolError) Error() string {
	r := e.Result
	switch r.Status {
	case StatusToolNotFound:
		return fmt.Sprintf("%s: not found: %v", r.Command.Name, r.Err)
	default:
		msg := strings.TrimSpace(r.Stderr)
		if msg == "" {
			msg = strings.TrimSpace(r.Stdout)
		}
		if msg == "" && r.Err != nil {
			msg = r.Err.Error()
		}
		return fmt.Sprintf("`%s` exited with status %d: %s", r.Command, r.ExitCode, msg)
	}
}

// IsNotFound reports whether err carries a StatusToolNotFound result.
func IsNotFound(err error) bool {
	var te *ToolError
	return errors.As(err, &te) && te.Result.Status == StatusToolNotFound
}

// Runner executes external tools. The zero value is ready to use.
type Runner struct {
	// Timeout bounds each invocation. Zero means no limit.
	Timeout time.Duration
}

// New returns a Runner with the given per-invocation timeout.
func New(timeout time.Duration) *Runner {
	return &Runner{Timeout: timeout}
}

// Run executes cmd and classifies the outcome. It never returns a Go error
// for a tool that ran and exited non-zero; callers inspect Result.Status.
func (r *Runner) Run(ctx context.Context, cmd Command) Result {
	res := Result{Command: cmd}

	path, err := lookPath(cmd.Name, cmd.Dir)
	if err != nil {
		res.Status = StatusToolNotFound
		res.ExitCode = -1
		res.Err = err
		return res
	}

	if r != nil && r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, path, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Stdin = cmd.Stdin

	var stdout, stderr bytes.Buffer
	if cmd.Stream != nil {
		c.Stdout = io.MultiWriter(&stdout, cmd.Stream)
		c.Stderr = io.MultiWriter(&stderr, cmd.Stream)
	} else {
		c.Stdout = &stdout
		c.Stderr = &stderr
	}

	err = c.Run()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.Status = StatusSuccess
	case errors.As(err, &exitErr):
		res.Status = StatusToolFailed
		res.ExitCode = exitErr.ExitCode()
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.Err = ctxErr
		}
	case errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist):
		res.Status = StatusToolNotFound
		res.ExitCode = -1
		res.Err = err
	default:
		res.Status = StatusToolFailed
		res.ExitCode = -1
		res.Err = err
	}
	return res
}

// MustSucceed runs cmd and converts any non-successful Result into a *ToolError.
func (r *Runner) MustSucceed(ctx context.Context, cmd Command) (Result, error) {
	res := r.Run(ctx, cmd)
	if !res.OK() {
		return res, &ToolError{Result: res}
	}
	return res, nil
}

// lookPath resolves name the way exec does, except that relative paths
// containing a separator are resolved against dir rather than the process
// working directory.
func lookPath(name, dir string) (string, error) {
	if strings.ContainsRune(name, os.PathSeparator) {
		p := name
		if dir != "" && !filepath.IsAbs(name) {
			p = filepath.Join(dir, name)
		}
		p, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		info, err := os.Stat(p)
		if err != nil {
			return "", err
		}
		if info.IsDir() || info.Mode()&0o111 == 0 {
			return "", fmt.Errorf("%s is not executable", p)
		}
		return p, nil
	}
	return exec.LookPath(name)
}

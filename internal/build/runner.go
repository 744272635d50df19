// Copyright 2024 The cellar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package build runs the install steps of a formula in a source tree.
package build

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

	"github.com/goplus/cellar/formula"
	"github.com/goplus/cellar/internal/ctxlog"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// tailLines is how much step output a StepError keeps.
const tailLines = 20

// StepError reports the first install step that failed.
type StepError struct {
	Index    int // 1-based position among the steps that ran
	Total    int
	Command  string
	ExitCode int    // -1 when the step did not start or was killed
	Output   string // last lines of combined output
	Err      error
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "step %d/%d failed: %s", e.Index, e.Total, e.Command)
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Output != "" {
		b.WriteString("\n")
		b.WriteString(e.Output)
	}
	return b.String()
}

func (e *StepError) Unwrap() error { return e.Err }

// Runner runs install steps in order and stops at the first failure.
type Runner struct {
	Dir  string // source tree the steps run in
	Env  *Env
	Vars formula.Vars

	// Output receives step output as it is produced. Output is always
	// kept for error reports whether or not this is set.
	Output io.Writer
}

// Run runs the steps that apply to the build kind in Vars.Head.
func (r *Runner) Run(ctx context.Context, steps []formula.Step) error {
	logger := ctxlog.FromContext(ctx)
	var active []formula.Step
	for _, s := range steps {
		if s.Applies(r.Vars.Head) {
			active = append(active, s)
		}
	}
	for i, s := range active {
		if err := ctx.Err(); err != nil {
			return err
		}
		command, err := describe(s, r.Vars)
		if err != nil {
			return &StepError{Index: i + 1, Total: len(active), Command: "<invalid>", ExitCode: -1, Err: err}
		}
		logger.Info("running", "step", fmt.Sprintf("%d/%d", i+1, len(active)), "cmd", command)

		tail := newTail(tailLines)
		var out io.Writer = tail
		if r.Output != nil {
			out = io.MultiWriter(tail, r.Output)
		}
		code, err := r.runStep(ctx, s, out)
		if err != nil {
			return &StepError{
				Index:    i + 1,
				Total:    len(active),
				Command:  command,
				ExitCode: code,
				Output:   tail.String(),
				Err:      err,
			}
		}
	}
	return nil
}

func describe(s formula.Step, vars formula.Vars) (string, error) {
	if s.IsShell() {
		script, err := s.Script(vars)
		return strings.TrimSpace(script), err
	}
	argv, err := s.Argv(vars)
	return strings.Join(argv, " "), err
}

func (r *Runner) environ() []string {
	if r.Env == nil {
		return os.Environ()
	}
	return r.Env.Environ()
}

func (r *Runner) runStep(ctx context.Context, s formula.Step, out io.Writer) (int, error) {
	if s.IsShell() {
		script, err := s.Script(r.Vars)
		if err != nil {
			return -1, err
		}
		return r.runShell(ctx, script, out)
	}
	argv, err := s.Argv(r.Vars)
	if err != nil {
		return -1, err
	}
	return r.runArgv(ctx, argv, out)
}

func (r *Runner) runArgv(ctx context.Context, argv []string, out io.Writer) (int, error) {
	env := r.environ()
	name, err := lookPath(argv[0], env)
	if err != nil {
		return -1, err
	}
	cmd := exec.CommandContext(ctx, name, argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = env
	cmd.Stdout = out
	cmd.Stderr = out
	err = cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), err
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

func (r *Runner) runShell(ctx context.Context, script string, out io.Writer) (int, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "step")
	if err != nil {
		return -1, fmt.Errorf("failed to parse script: %w", err)
	}
	runner, err := interp.New(
		interp.Dir(r.Dir),
		interp.Env(expand.ListEnviron(r.environ()...)),
		interp.StdIO(nil, out, out),
	)
	if err != nil {
		return -1, fmt.Errorf("failed to create interpreter: %w", err)
	}
	err = runner.Run(ctx, prog)
	var status interp.ExitStatus
	if errors.As(err, &status) {
		return int(status), err
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

// lookPath resolves file against the PATH of env rather than the PATH of
// the current process, so tools from dependency kegs are found.
// Names containing a separator are left to exec, which resolves relative
// names against the step directory.
func lookPath(file string, env []string) (string, error) {
	if strings.ContainsRune(file, '/') || strings.ContainsRune(file, filepath.Separator) {
		return file, nil
	}
	var path string
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == "PATH" {
			path = v
		}
	}
	for _, d := range filepath.SplitList(path) {
		if d == "" {
			continue
		}
		p := filepath.Join(d, file)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() && fi.Mode()&0111 != 0 {
			return p, nil
		}
	}
	return exec.LookPath(file)
}

// tail keeps the last lines written to it.
type tail struct {
	max   int
	lines []string
	part  []byte
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) Write(p []byte) (int, error) {
	data := append(t.part, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		t.lines = append(t.lines, string(data[:i]))
		if len(t.lines) > t.max {
			t.lines = t.lines[1:]
		}
		data = data[i+1:]
	}
	t.part = append([]byte(nil), data...)
	return len(p), nil
}

func (t *tail) String() string {
	lines := t.lines
	if len(t.part) > 0 {
		lines = append(append([]string(nil), lines...), string(t.part))
		if len(lines) > t.max {
			lines = lines[1:]
		}
	}
	return strings.Join(lines, "\n")
}

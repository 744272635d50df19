package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/goplus/cellar/formula"
	"github.com/goplus/cellar/internal/cellar"
	"github.com/goplus/cellar/internal/ctxlog"
)

// TestFailure reports a post-install check that did not pass.
type TestFailure struct {
	Formula  string
	Command  string
	ExitCode int
	Want     string // expected substring, empty when only the exit status counts
	Output   string
	Err      error
}

func (e *TestFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("test of %s failed: %s: %v\n%s", e.Formula, e.Command, e.Err, strings.TrimSpace(e.Output))
	}
	if e.Want == "" {
		return fmt.Sprintf("test of %s failed: %s printed nothing", e.Formula, e.Command)
	}
	return fmt.Sprintf("test of %s failed: output of %s does not contain %q\n%s", e.Formula, e.Command, e.Want, strings.TrimSpace(e.Output))
}

func (e *TestFailure) Unwrap() error { return e.Err }

// Test runs the test of f against its linked keg, or its newest keg when
// none is linked.
func (in *Installer) Test(ctx context.Context, f *formula.Formula) error {
	kegs, err := in.Cellar.Installed(f.Name())
	if err != nil {
		return err
	}
	if len(kegs) == 0 {
		return fmt.Errorf("%s: %w", f.Name(), cellar.ErrNotInstalled)
	}
	keg := kegs[len(kegs)-1]
	for _, k := range kegs {
		if in.Cellar.Linked(k) {
			keg = k
			break
		}
	}
	return in.testKeg(ctx, f, keg)
}

// testKeg runs the test of f against keg. Release kegs must print the
// formula version, or the test's match. Head kegs must print the match
// when the test declares one, else the version their checkout declared;
// with neither they must print something.
func (in *Installer) testKeg(ctx context.Context, f *formula.Formula, keg cellar.Keg) error {
	t := f.Test()
	if t == nil {
		return fmt.Errorf("%s has no test", f.Name())
	}
	r, err := keg.Receipt()
	if err != nil {
		return err
	}
	vars := formula.Vars{
		Name:    f.Name(),
		Version: r.Version,
		Prefix:  keg.Path,
		Head:    r.Head,
		Jobs:    in.Jobs,
	}
	argv, err := t.Command(vars)
	if err != nil {
		return err
	}
	var want string
	switch {
	case !r.Head || t.HasMatch():
		if want, err = t.Expect(vars); err != nil {
			return err
		}
	default:
		want = r.SourceVersion
	}

	env, _, err := in.dependencyEnv(f)
	if err != nil {
		return err
	}
	env.Use(keg.Path)

	command := strings.Join(argv, " ")
	ctxlog.FromContext(ctx).Info("testing", "keg", keg, "cmd", command)
	var out bytes.Buffer
	var w io.Writer = &out
	if in.Output != nil {
		w = io.MultiWriter(&out, in.Output)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = keg.Path
	cmd.Env = env.Environ()
	cmd.Stdout = w
	cmd.Stderr = w
	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return &TestFailure{Formula: f.Name(), Command: command, ExitCode: code, Output: out.String(), Err: err}
	}
	if want == "" && strings.TrimSpace(out.String()) == "" {
		return &TestFailure{Formula: f.Name(), Command: command, Output: out.String()}
	}
	if !strings.Contains(out.String(), want) {
		return &TestFailure{Formula: f.Name(), Command: command, Want: want, Output: out.String()}
	}
	return nil
}

package formula

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// When restricts a step to one kind of build.
type When string

const (
	Always     When = ""
	HeadOnly   When = "head"
	StableOnly When = "stable"
)

// Vars are the values step and test expressions are evaluated against.
type Vars struct {
	Name    string
	Version string
	Prefix  string // keg directory the formula installs into
	Head    bool
	Jobs    int
}

// EvalContext exposes vars to HCL expressions as name, version, prefix,
// bin, lib, include, share, head and jobs.
func (v Vars) EvalContext() *hcl.EvalContext {
	jobs := v.Jobs
	if jobs <= 0 {
		jobs = 1
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"name":    cty.StringVal(v.Name),
			"version": cty.StringVal(v.Version),
			"prefix":  cty.StringVal(v.Prefix),
			"bin":     cty.StringVal(filepath.Join(v.Prefix, "bin")),
			"lib":     cty.StringVal(filepath.Join(v.Prefix, "lib")),
			"include": cty.StringVal(filepath.Join(v.Prefix, "include")),
			"share":   cty.StringVal(filepath.Join(v.Prefix, "share")),
			"head":    cty.BoolVal(v.Head),
			"jobs":    cty.NumberIntVal(int64(jobs)),
		},
	}
}

// Step is one install command. It is either an argv run directly or a
// shell script run by the embedded shell interpreter.
type Step struct {
	When  When
	args  hcl.Expression
	shell hcl.Expression
}

// NewStep builds a step from parsed expressions. Exactly one of args and
// shell must be non-nil.
func NewStep(when When, args, shell hcl.Expression) Step {
	return Step{When: when, args: args, shell: shell}
}

// System returns an argv step. Each argument is an HCL template, so
// "--prefix=${prefix}" is expanded when the step runs.
// It panics if an argument is not a valid template.
func System(args ...string) Step {
	exprs := make([]hclsyntax.Expression, len(args))
	for i, a := range args {
		exprs[i] = mustTemplate(a)
	}
	return Step{args: &hclsyntax.TupleConsExpr{Exprs: exprs}}
}

// Shell returns a shell-script step. The script is an HCL template.
// It panics if script is not a valid template.
func Shell(script string) Step {
	return Step{shell: mustTemplate(script)}
}

// On returns a copy of s restricted to builds of kind w.
func (s Step) On(w When) Step {
	s.When = w
	return s
}

func mustTemplate(src string) hclsyntax.Expression {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), "<step>", hcl.InitialPos)
	if diags.HasErrors() {
		panic(fmt.Sprintf("formula: bad template %q: %s", src, diags.Error()))
	}
	return expr
}

func (s Step) validate() error {
	switch {
	case s.args == nil && s.shell == nil:
		return errors.New("step has neither args nor shell")
	case s.args != nil && s.shell != nil:
		return errors.New("step has both args and shell")
	}
	switch s.When {
	case Always, HeadOnly, StableOnly:
	default:
		return fmt.Errorf("unknown when %q", s.When)
	}
	return nil
}

// Applies reports whether s runs for a head (head=true) or stable build.
func (s Step) Applies(head bool) bool {
	switch s.When {
	case HeadOnly:
		return head
	case StableOnly:
		return !head
	}
	return true
}

// IsShell reports whether s is a shell-script step.
func (s Step) IsShell() bool {
	return s.shell != nil
}

// Argv evaluates an argv step.
func (s Step) Argv(vars Vars) ([]string, error) {
	if s.args == nil {
		return nil, errors.New("not an argv step")
	}
	var argv []string
	if diags := gohcl.DecodeExpression(s.args, vars.EvalContext(), &argv); diags.HasErrors() {
		return nil, diags
	}
	if len(argv) == 0 {
		return nil, errors.New("empty argv")
	}
	return argv, nil
}

// Script evaluates a shell-script step.
func (s Step) Script(vars Vars) (string, error) {
	if s.shell == nil {
		return "", errors.New("not a shell step")
	}
	var script string
	if diags := gohcl.DecodeExpression(s.shell, vars.EvalContext(), &script); diags.HasErrors() {
		return "", diags
	}
	return script, nil
}

// Test is the post-install check: Run is executed and its combined output
// must contain Match, which defaults to the installed version.
type Test struct {
	run   hcl.Expression
	match hcl.Expression
}

// NewTest builds a test from parsed expressions. match may be nil.
func NewTest(run, match hcl.Expression) *Test {
	return &Test{run: run, match: match}
}

// SmokeTest returns a test running args (HCL templates) and expecting the
// version in the output.
func SmokeTest(args ...string) *Test {
	return &Test{run: System(args...).args}
}

// Command evaluates the test command.
func (t *Test) Command(vars Vars) ([]string, error) {
	if t.run == nil {
		return nil, errors.New("test has no command")
	}
	var argv []string
	if diags := gohcl.DecodeExpression(t.run, vars.EvalContext(), &argv); diags.HasErrors() {
		return nil, diags
	}
	if len(argv) == 0 {
		return nil, errors.New("empty test command")
	}
	return argv, nil
}

// WithMatch returns a copy of t expecting its output to contain tmpl, an
// HCL template.
func (t *Test) WithMatch(tmpl string) *Test {
	c := *t
	c.match = mustTemplate(tmpl)
	return &c
}

// HasMatch reports whether the test declares the output it expects.
func (t *Test) HasMatch() bool { return t.match != nil }

// Expect evaluates the substring the test output must contain.
func (t *Test) Expect(vars Vars) (string, error) {
	if t.match == nil {
		return vars.Version, nil
	}
	var want string
	if diags := gohcl.DecodeExpression(t.match, vars.EvalContext(), &want); diags.HasErrors() {
		return "", diags
	}
	return want, nil
}

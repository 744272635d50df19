package deps

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/goplus/cellar/formula"
)

// ErrRequirement is returned when a system requirement is not satisfied.
var ErrRequirement = errors.New("unsatisfied requirement")

// wellKnown maps requirement names to the pkg-config module that provides
// them when the formula does not name a probe.
var wellKnown = map[string]formula.Requirement{
	"x11":     {PkgConfig: "x11"},
	"xorg":    {PkgConfig: "xorg-server"},
	"opengl":  {PkgConfig: "gl"},
	"wayland": {PkgConfig: "wayland-client"},
}

// Checker probes the host for system requirements.
type Checker struct {
	LookPath  func(file string) (string, error)
	PkgConfig func(ctx context.Context, module string) error
}

// NewChecker returns a checker that searches PATH and runs pkg-config.
func NewChecker() *Checker {
	return &Checker{LookPath: exec.LookPath, PkgConfig: pkgConfigExists}
}

func pkgConfigExists(ctx context.Context, module string) error {
	path, err := exec.LookPath("pkg-config")
	if err != nil {
		return errors.New("pkg-config not found")
	}
	if err := exec.CommandContext(ctx, path, "--exists", module).Run(); err != nil {
		return fmt.Errorf("pkg-config module %s not found", module)
	}
	return nil
}

// Probe returns the effective probe for r: its own command or module,
// a well-known module, or a command named after the requirement.
func Probe(r formula.Requirement) formula.Requirement {
	if r.Command != "" || r.PkgConfig != "" {
		return r
	}
	if known, ok := wellKnown[r.Name]; ok {
		known.Name = r.Name
		return known
	}
	r.Command = r.Name
	return r
}

// Check verifies that r is satisfied on the host.
func (c *Checker) Check(ctx context.Context, r formula.Requirement) error {
	p := Probe(r)
	if p.PkgConfig != "" {
		if err := c.PkgConfig(ctx, p.PkgConfig); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrRequirement, r.Name, err)
		}
	}
	if p.Command != "" {
		if _, err := c.LookPath(p.Command); err != nil {
			return fmt.Errorf("%w: %s: command %s not found", ErrRequirement, r.Name, p.Command)
		}
	}
	return nil
}

// CheckAll verifies every requirement of f and, for a system formula, its
// host probe. All failures are reported together.
func (c *Checker) CheckAll(ctx context.Context, f *formula.Formula) error {
	var errs []error
	if sys := f.System(); sys != nil {
		if err := c.Check(ctx, *sys); err != nil {
			errs = append(errs, err)
		}
	}
	for _, r := range f.Requirements() {
		if err := c.Check(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

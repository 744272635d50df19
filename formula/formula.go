// Package formula defines the build formula of a package: where its source
// comes from, how to verify it, what it depends on, how to build and
// install it, and how to check the installed result.
//
// A Formula is immutable once constructed with New. Accessors hand out
// copies so callers cannot mutate a loaded formula.
package formula

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goplus/cellar/pkgs/version"
	packageurl "github.com/package-url/packageurl-go"
)

// ErrInvalidFormula is returned by New when a formula record is malformed.
var ErrInvalidFormula = errors.New("invalid formula")

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9+._@-]*$`)

// Spec holds the declarative fields of a formula before validation.
type Spec struct {
	Name     string
	Desc     string
	Homepage string
	License  string // SPDX expression, optional

	URL      string
	Checksum Checksum
	Version  string // detected from URL when empty
	Revision int

	Head string // VCS URL for head builds, optional

	Dependencies []Dependency
	Requirements []Requirement

	Install []Step
	Test    *Test

	// System marks a formula whose package is expected from the host
	// system rather than built. It needs no source or install steps and is
	// satisfied when the probe succeeds.
	System *Requirement
}

// Formula is a validated, immutable build formula.
type Formula struct {
	spec Spec
}

// New validates spec and returns the formula it describes.
func New(spec Spec) (*Formula, error) {
	spec.Dependencies = slices.Clone(spec.Dependencies)
	for i := range spec.Dependencies {
		spec.Dependencies[i].Tags = slices.Clone(spec.Dependencies[i].Tags)
	}
	spec.Requirements = slices.Clone(spec.Requirements)
	spec.Install = slices.Clone(spec.Install)
	if spec.Test != nil {
		t := *spec.Test
		spec.Test = &t
	}
	if spec.System != nil {
		r := *spec.System
		spec.System = &r
	}
	spec.Checksum.Digest = strings.ToLower(spec.Checksum.Digest)
	if spec.Version == "" && spec.URL != "" {
		spec.Version = version.Detect(spec.URL)
	}
	if err := validate(&spec); err != nil {
		name := spec.Name
		if name == "" {
			name = "<unnamed>"
		}
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidFormula, name, err)
	}
	return &Formula{spec: spec}, nil
}

func validate(s *Spec) error {
	var errs []error
	if !validName.MatchString(s.Name) {
		errs = append(errs, fmt.Errorf("name %q is not valid", s.Name))
	}
	if s.Desc == "" {
		errs = append(errs, errors.New("desc is required"))
	}
	if err := checkHTTPURL("homepage", s.Homepage); err != nil {
		errs = append(errs, err)
	}
	switch {
	case s.System != nil:
		if s.System.Command == "" && s.System.PkgConfig == "" {
			errs = append(errs, errors.New("system formula needs a command or pkg_config probe"))
		}
	case s.URL == "" && s.Head == "":
		errs = append(errs, errors.New("one of url or head is required"))
	case s.URL != "":
		if err := checkHTTPURL("url", s.URL); err != nil {
			errs = append(errs, err)
		}
		if err := s.Checksum.Validate(); err != nil {
			errs = append(errs, err)
		}
		if s.Version == "" {
			errs = append(errs, fmt.Errorf("cannot detect version from url %s", s.URL))
		}
	}
	if s.Revision < 0 {
		errs = append(errs, fmt.Errorf("revision %d is negative", s.Revision))
	}
	seen := make(map[string]bool, len(s.Dependencies))
	for _, d := range s.Dependencies {
		if err := d.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("dependency %q declared twice", d.Name))
		}
		seen[d.Name] = true
	}
	for _, r := range s.Requirements {
		if r.Name == "" {
			errs = append(errs, errors.New("requirement without name"))
		}
	}
	if len(s.Install) == 0 && s.System == nil {
		errs = append(errs, errors.New("install has no steps"))
	}
	for i, st := range s.Install {
		if err := st.validate(); err != nil {
			errs = append(errs, fmt.Errorf("install step %d: %w", i+1, err))
		}
	}
	return errors.Join(errs...)
}

func checkHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s %q is not an http(s) URL", field, raw)
	}
	return nil
}

// Name returns the formula name.
func (f *Formula) Name() string { return f.spec.Name }

// Desc returns the one-line description.
func (f *Formula) Desc() string { return f.spec.Desc }

// Homepage returns the project homepage.
func (f *Formula) Homepage() string { return f.spec.Homepage }

// License returns the SPDX license expression, or "".
func (f *Formula) License() string { return f.spec.License }

// URL returns the source archive URL, or "" for head-only formulas.
func (f *Formula) URL() string { return f.spec.URL }

// Checksum returns the expected digest of the source archive.
func (f *Formula) Checksum() Checksum { return f.spec.Checksum }

// Version returns the stable version.
func (f *Formula) Version() string { return f.spec.Version }

// Revision returns the packaging revision.
func (f *Formula) Revision() int { return f.spec.Revision }

// PkgVersion returns the version with the revision appended when non-zero,
// e.g. "1.4" or "1.4_1".
func (f *Formula) PkgVersion() string {
	if f.spec.Revision == 0 {
		return f.spec.Version
	}
	return f.spec.Version + "_" + strconv.Itoa(f.spec.Revision)
}

// Head returns the VCS URL used for head builds, or "".
func (f *Formula) Head() string { return f.spec.Head }

// HasStable reports whether the formula has a released source archive.
func (f *Formula) HasStable() bool { return f.spec.URL != "" }

// System returns the host probe of a system formula, or nil.
func (f *Formula) System() *Requirement {
	if f.spec.System == nil {
		return nil
	}
	r := *f.spec.System
	return &r
}

// Dependencies returns the declared dependencies in declaration order.
func (f *Formula) Dependencies() []Dependency {
	deps := slices.Clone(f.spec.Dependencies)
	for i := range deps {
		deps[i].Tags = slices.Clone(deps[i].Tags)
	}
	return deps
}

// Requirements returns the declared system requirements.
func (f *Formula) Requirements() []Requirement {
	return slices.Clone(f.spec.Requirements)
}

// Install returns the install steps in execution order.
func (f *Formula) Install() []Step {
	return slices.Clone(f.spec.Install)
}

// Test returns the post-install check, or nil if the formula has none.
func (f *Formula) Test() *Test {
	if f.spec.Test == nil {
		return nil
	}
	t := *f.spec.Test
	return &t
}

// PURL returns the package URL of the formula at version ver,
// e.g. "pkg:brew/xcowsay@1.4". An empty ver omits the version.
func (f *Formula) PURL(ver string) string {
	return packageurl.NewPackageURL("brew", "", f.spec.Name, ver, nil, "").ToString()
}

func (f *Formula) String() string {
	if f.spec.Version == "" {
		return f.spec.Name
	}
	return f.spec.Name + "@" + f.PkgVersion()
}

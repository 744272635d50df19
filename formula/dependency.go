package formula

import (
	"fmt"
	"slices"
)

// Tag qualifies when a dependency is needed.
type Tag string

const (
	// Build dependencies are needed only to build from source.
	Build Tag = "build"
	// TestOnly dependencies are needed only to run the formula's test.
	TestOnly Tag = "test"
	// Optional dependencies are skipped unless explicitly requested.
	Optional Tag = "optional"
	// Recommended dependencies are installed unless explicitly declined.
	Recommended Tag = "recommended"
)

func (t Tag) valid() bool {
	switch t {
	case Build, TestOnly, Optional, Recommended:
		return true
	}
	return false
}

// Dependency names another formula this one needs.
// A dependency without tags is needed at runtime.
type Dependency struct {
	Name string
	Tags []Tag
}

// Has reports whether d carries tag t.
func (d Dependency) Has(t Tag) bool {
	return slices.Contains(d.Tags, t)
}

// Runtime reports whether the installed formula needs d to run.
func (d Dependency) Runtime() bool {
	return !d.Has(Build) && !d.Has(TestOnly)
}

func (d Dependency) validate() error {
	if !validName.MatchString(d.Name) {
		return fmt.Errorf("dependency name %q is not valid", d.Name)
	}
	for _, t := range d.Tags {
		if !t.valid() {
			return fmt.Errorf("dependency %q: unknown tag %q", d.Name, t)
		}
	}
	return nil
}

func (d Dependency) String() string {
	if len(d.Tags) == 0 {
		return d.Name
	}
	return fmt.Sprintf("%s %v", d.Name, d.Tags)
}

// Requirement is a system facility the formula needs but that is not
// provided by another formula, such as an X11 server library.
// It is satisfied when PkgConfig names a module pkg-config can find, or when
// Command is found on PATH. With neither set, well-known names are looked
// up by the dependency resolver.
type Requirement struct {
	Name      string
	Command   string
	PkgConfig string
}

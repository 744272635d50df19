package formula

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const xcowsayDigest = "c7e261ba0262c3821c106ccb6d6f984e3c2da999ad10151364e55d1c699f8e51"

func xcowsaySpec() Spec {
	return Spec{
		Name:     "xcowsay",
		Desc:     "Graphical talking cow",
		Homepage: "https://www.doof.me.uk/xcowsay",
		URL:      "https://github.com/nickg/xcowsay/releases/download/v1.4/xcowsay-1.4.tar.gz",
		Checksum: SHA256(xcowsayDigest),
		Head:     "https://github.com/nickg/xcowsay.git",
		Dependencies: []Dependency{
			{Name: "autoconf", Tags: []Tag{Build}},
			{Name: "automake", Tags: []Tag{Build}},
			{Name: "gtk+"},
		},
		Requirements: []Requirement{{Name: "x11"}},
		Install: []Step{
			System("./autogen.sh").On(HeadOnly),
			System("./configure", "--prefix=${prefix}"),
			System("make"),
			System("make", "install"),
		},
		Test: SmokeTest("${bin}/xcowsay", "-v"),
	}
}

func TestNew(t *testing.T) {
	f, err := New(xcowsaySpec())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if f.Version() != "1.4" {
		t.Errorf("Version() = %q, want %q", f.Version(), "1.4")
	}
	if f.PkgVersion() != "1.4" {
		t.Errorf("PkgVersion() = %q, want %q", f.PkgVersion(), "1.4")
	}
	if f.String() != "xcowsay@1.4" {
		t.Errorf("String() = %q, want %q", f.String(), "xcowsay@1.4")
	}
	if !f.HasStable() {
		t.Error("HasStable() = false, want true")
	}
	if got := f.Checksum().String(); got != "sha256:"+xcowsayDigest {
		t.Errorf("Checksum() = %q", got)
	}
	if n := len(f.Install()); n != 4 {
		t.Errorf("len(Install()) = %d, want 4", n)
	}
	if got := f.PURL("1.4"); got != "pkg:brew/xcowsay@1.4" {
		t.Errorf("PURL() = %q, want %q", got, "pkg:brew/xcowsay@1.4")
	}
}

func TestNewRevision(t *testing.T) {
	spec := xcowsaySpec()
	spec.Revision = 2
	f, err := New(spec)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if f.PkgVersion() != "1.4_2" {
		t.Errorf("PkgVersion() = %q, want %q", f.PkgVersion(), "1.4_2")
	}
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
		want   string
	}{
		{"digest too long", func(s *Spec) { s.Checksum = SHA256(xcowsayDigest + "0") }, "65 hex characters"},
		{"digest not hex", func(s *Spec) { s.Checksum = SHA256(strings.Repeat("zz", 32)) }, "not hex"},
		{"missing checksum", func(s *Spec) { s.Checksum = Checksum{} }, "checksum is required"},
		{"md5", func(s *Spec) { s.Checksum = Checksum{Algo: "md5", Digest: xcowsayDigest} }, "unsupported checksum"},
		{"bad name", func(s *Spec) { s.Name = "X Cow" }, "name"},
		{"no desc", func(s *Spec) { s.Desc = "" }, "desc is required"},
		{"ftp homepage", func(s *Spec) { s.Homepage = "ftp://example.com" }, "homepage"},
		{"no source", func(s *Spec) { s.URL, s.Head = "", "" }, "one of url or head"},
		{"no version", func(s *Spec) { s.URL = "https://example.com/xcowsay.tar.gz" }, "cannot detect version"},
		{"no steps", func(s *Spec) { s.Install = nil }, "install has no steps"},
		{"duplicate dep", func(s *Spec) {
			s.Dependencies = append(s.Dependencies, Dependency{Name: "gtk+"})
		}, "declared twice"},
		{"unknown tag", func(s *Spec) {
			s.Dependencies = []Dependency{{Name: "gtk+", Tags: []Tag{"sometimes"}}}
		}, "unknown tag"},
		{"empty step", func(s *Spec) { s.Install = []Step{{}} }, "neither args nor shell"},
		{"bad when", func(s *Spec) { s.Install = []Step{System("make").On("nightly")} }, "unknown when"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := xcowsaySpec()
			tt.mutate(&spec)
			_, err := New(spec)
			if !errors.Is(err, ErrInvalidFormula) {
				t.Fatalf("New() error = %v, want ErrInvalidFormula", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("New() error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestHeadOnly(t *testing.T) {
	spec := xcowsaySpec()
	spec.URL = ""
	spec.Checksum = Checksum{}
	f, err := New(spec)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if f.HasStable() {
		t.Error("HasStable() = true for head-only formula")
	}
	if f.String() != "xcowsay" {
		t.Errorf("String() = %q, want %q", f.String(), "xcowsay")
	}
}

func TestImmutable(t *testing.T) {
	spec := xcowsaySpec()
	f, err := New(spec)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	spec.Dependencies[0].Name = "changed"
	spec.Dependencies[0].Tags[0] = Optional

	deps := f.Dependencies()
	deps[1].Name = "changed"
	deps[2].Tags = append(deps[2].Tags, Build)

	want := []Dependency{
		{Name: "autoconf", Tags: []Tag{Build}},
		{Name: "automake", Tags: []Tag{Build}},
		{Name: "gtk+"},
	}
	if got := f.Dependencies(); !reflect.DeepEqual(got, want) {
		t.Errorf("Dependencies() = %v, want %v", got, want)
	}
}

func TestDependency(t *testing.T) {
	build := Dependency{Name: "autoconf", Tags: []Tag{Build}}
	if build.Runtime() {
		t.Error("build dependency reported as runtime")
	}
	if !build.Has(Build) {
		t.Error("Has(Build) = false")
	}
	test := Dependency{Name: "expect", Tags: []Tag{TestOnly}}
	if test.Runtime() {
		t.Error("test dependency reported as runtime")
	}
	rt := Dependency{Name: "gtk+"}
	if !rt.Runtime() {
		t.Error("untagged dependency should be runtime")
	}
	if rt.String() != "gtk+" || build.String() != "autoconf [build]" {
		t.Errorf("String() = %q / %q", rt.String(), build.String())
	}
}

func TestChecksumMatches(t *testing.T) {
	c := SHA256(strings.ToUpper(xcowsayDigest))
	if c.Digest != xcowsayDigest {
		t.Errorf("SHA256 did not lowercase the digest: %q", c.Digest)
	}
	sum := make([]byte, 32)
	if c.Matches(sum) {
		t.Error("zero sum should not match")
	}
	zero := SHA256(strings.Repeat("0", 64))
	if !zero.Matches(sum) {
		t.Error("zero digest should match zero sum")
	}
}

func TestSystemFormula(t *testing.T) {
	f, err := New(Spec{
		Name:     "pkg-config",
		Desc:     "Manage compile and link flags for libraries",
		Homepage: "https://freedesktop.org/wiki/Software/pkg-config/",
		System:   &Requirement{Name: "pkg-config", Command: "pkg-config"},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sys := f.System()
	if sys == nil || sys.Command != "pkg-config" {
		t.Fatalf("System() = %+v", sys)
	}
	sys.Command = "changed"
	if f.System().Command != "pkg-config" {
		t.Error("System() exposed internal state")
	}

	_, err = New(Spec{
		Name:     "pkg-config",
		Desc:     "Manage compile and link flags for libraries",
		Homepage: "https://freedesktop.org/wiki/Software/pkg-config/",
		System:   &Requirement{Name: "pkg-config"},
	})
	if !errors.Is(err, ErrInvalidFormula) {
		t.Errorf("system formula without probe: error = %v, want ErrInvalidFormula", err)
	}
}

// Copyright 2024 The cellar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package formula

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/goplus/cellar/formula"
	"github.com/goplus/cellar/formulas"
)

func TestLoadEmbeddedXcowsay(t *testing.T) {
	f, err := LoadFS(formulas.FS, "xcowsay.hcl")
	if err != nil {
		t.Fatalf("LoadFS failed: %v", err)
	}
	if f.Version() != "1.4" {
		t.Errorf("Version() = %q, want %q", f.Version(), "1.4")
	}
	steps := f.Install()
	if len(steps) != 4 {
		t.Fatalf("len(Install()) = %d, want 4", len(steps))
	}
	if steps[0].When != formula.HeadOnly {
		t.Errorf("first step When = %q, want head", steps[0].When)
	}
	for i, s := range steps[1:] {
		if s.When != formula.Always {
			t.Errorf("step %d When = %q, want always", i+2, s.When)
		}
	}

	vars := formula.Vars{Name: "xcowsay", Version: "1.4", Prefix: "/keg"}
	argv, err := steps[1].Argv(vars)
	if err != nil {
		t.Fatalf("Argv failed: %v", err)
	}
	if got := strings.Join(argv, " "); got != "./configure --prefix=/keg" {
		t.Errorf("configure step = %q", got)
	}

	var build, runtime []string
	for _, d := range f.Dependencies() {
		if d.Has(formula.Build) {
			build = append(build, d.Name)
		} else if d.Runtime() {
			runtime = append(runtime, d.Name)
		}
	}
	if len(build) != 5 {
		t.Errorf("build deps = %v, want 5", build)
	}
	if len(runtime) != 1 || runtime[0] != "gtk+" {
		t.Errorf("runtime deps = %v, want [gtk+]", runtime)
	}
	reqs := f.Requirements()
	if len(reqs) != 1 || reqs[0].Name != "x11" {
		t.Errorf("Requirements() = %v, want [x11]", reqs)
	}

	test := f.Test()
	if test == nil {
		t.Fatal("Test() = nil")
	}
	want, err := test.Expect(vars)
	if err != nil || want != "1.4" {
		t.Errorf("Expect() = %q, %v; want 1.4", want, err)
	}
}

func TestLoadEmbeddedAll(t *testing.T) {
	entries, err := formulas.FS.ReadDir(".")
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != Ext {
			continue
		}
		if _, err := LoadFS(formulas.FS, e.Name()); err != nil {
			t.Errorf("LoadFS(%s): %v", e.Name(), err)
		}
	}
	gtk, err := LoadFS(formulas.FS, "gtk+.hcl")
	if err != nil {
		t.Fatal(err)
	}
	if sys := gtk.System(); sys == nil || sys.PkgConfig != "gtk+-2.0" {
		t.Errorf("gtk+ System() = %+v", sys)
	}
}

const cow = `formula "cow" {
  desc     = "Talking cow"
  homepage = "https://example.com/cow"
  url      = "https://example.com/cow-2.0.tar.gz"
  sha256   = "%s"
  install {
    step { shell = "make PREFIX=${prefix} install" }
  }
}
`

func TestParseDigestLength(t *testing.T) {
	digest := "c7e261ba0262c3821c106ccb6d6f984e3c2da999ad10151364e55d1c699f8e51"
	if _, err := Parse("cow.hcl", []byte(strings.Replace(cow, "%s", digest, 1))); err != nil {
		t.Fatalf("Parse with 64-character digest: %v", err)
	}
	_, err := Parse("cow.hcl", []byte(strings.Replace(cow, "%s", digest+"5", 1)))
	if !errors.Is(err, formula.ErrInvalidFormula) {
		t.Fatalf("Parse with 65-character digest: error = %v, want ErrInvalidFormula", err)
	}
	if !strings.Contains(err.Error(), "65 hex characters") {
		t.Errorf("error = %q, want digest length", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `formula "cow" {`},
		{"no block", `desc = "x"`},
		{"two blocks", `formula "a" {
  desc = "a"
  homepage = "https://a.example"
  system { command = "a" }
}
formula "b" {
  desc = "b"
  homepage = "https://b.example"
  system { command = "b" }
}`},
		{"missing desc", `formula "cow" {
  homepage = "https://example.com"
  system { command = "cow" }
}`},
		{"unknown attribute", `formula "cow" {
  desc = "Talking cow"
  homepage = "https://example.com"
  color = "brown"
  system { command = "cow" }
}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse("cow.hcl", []byte(tt.src)); err == nil {
				t.Error("Parse succeeded, want error")
			}
		})
	}
}

func TestLoadFSNameMismatch(t *testing.T) {
	digest := strings.Repeat("ab", 32)
	fsys := fstest.MapFS{
		"bull.hcl": {Data: []byte(strings.Replace(cow, "%s", digest, 1))},
	}
	_, err := LoadFS(fsys, "bull.hcl")
	if err == nil || !strings.Contains(err.Error(), `declares "cow"`) {
		t.Errorf("LoadFS error = %v, want name mismatch", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cow.hcl")
	digest := strings.Repeat("ab", 32)
	if err := os.WriteFile(path, []byte(strings.Replace(cow, "%s", digest, 1)), 0644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Version() != "2.0" {
		t.Errorf("Version() = %q, want 2.0", f.Version())
	}
	steps := f.Install()
	if len(steps) != 1 || !steps[0].IsShell() {
		t.Fatalf("Install() = %v, want one shell step", steps)
	}
	script, err := steps[0].Script(formula.Vars{Prefix: "/keg"})
	if err != nil {
		t.Fatal(err)
	}
	if script != "make PREFIX=/keg install" {
		t.Errorf("Script() = %q", script)
	}
}

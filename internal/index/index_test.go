package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"testing/fstest"

	"github.com/goplus/cellar/formulas"
)

const localXcowsay = `formula "xcowsay" {
  desc     = "Graphical talking cow"
  homepage = "https://www.doof.me.uk/xcowsay"
  url      = "https://github.com/nickg/xcowsay/releases/download/v1.5/xcowsay-1.5.tar.gz"
  sha256   = "0000000000000000000000000000000000000000000000000000000000000000"
  install {
    step { args = ["make", "install"] }
  }
}
`

func TestLookupBuiltin(t *testing.T) {
	x := New(formulas.FS)
	f, err := x.Lookup("xcowsay")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if f.Version() != "1.4" {
		t.Errorf("Version() = %q, want 1.4", f.Version())
	}
	again, _ := x.Lookup("xcowsay")
	if again != f {
		t.Error("second Lookup did not hit the cache")
	}
	for _, dep := range f.Dependencies() {
		if !x.Has(dep.Name) {
			t.Errorf("dependency %s missing from builtin index", dep.Name)
		}
	}
}

func TestLookupShadowing(t *testing.T) {
	local := fstest.MapFS{"xcowsay.hcl": {Data: []byte(localXcowsay)}}
	x := New(local, formulas.FS)
	f, err := x.Lookup("xcowsay")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if f.Version() != "1.5" {
		t.Errorf("Version() = %q, want the local 1.5", f.Version())
	}
	if _, err := x.Lookup("gtk+"); err != nil {
		t.Errorf("Lookup(gtk+) should fall through to builtin: %v", err)
	}
}

func TestLookupMissing(t *testing.T) {
	x := New(formulas.FS)
	for _, name := range []string{"cowthink", "../xcowsay", ""} {
		if _, err := x.Lookup(name); !errors.Is(err, ErrNoFormula) {
			t.Errorf("Lookup(%q) error = %v, want ErrNoFormula", name, err)
		}
		if x.Has(name) {
			t.Errorf("Has(%q) = true", name)
		}
	}
}

func TestNames(t *testing.T) {
	local := fstest.MapFS{
		"xcowsay.hcl": {Data: []byte(localXcowsay)},
		"README.md":   {Data: []byte("formulas")},
	}
	names, err := New(local, formulas.FS).Names()
	if err != nil {
		t.Fatalf("Names failed: %v", err)
	}
	want := []string{"autoconf", "automake", "fontconfig", "gettext", "gtk+", "pkg-config", "xcowsay"}
	if !slices.Equal(names, want) {
		t.Errorf("Names() = %v, want %v", names, want)
	}
}

func TestDirs(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "xcowsay.hcl"), []byte(localXcowsay), 0644); err != nil {
		t.Fatal(err)
	}
	layers := Dirs("", filepath.Join(dir, "missing"), dir)
	if len(layers) != 1 {
		t.Fatalf("Dirs() returned %d layers, want 1", len(layers))
	}
	if !New(layers...).Has("xcowsay") {
		t.Error("directory layer does not hold xcowsay")
	}
}

type mockRepo struct {
	remote, ref, dir string
	err              error
}

func (m *mockRepo) Clone(ctx context.Context, remote, dir string) (string, error) {
	return "", nil
}

func (m *mockRepo) Sync(ctx context.Context, remote, ref, dir string) error {
	m.remote, m.ref, m.dir = remote, ref, dir
	return m.err
}

func (m *mockRepo) Tags(ctx context.Context, remote string) ([]string, error) {
	return nil, nil
}

func (m *mockRepo) Head(ctx context.Context, remote string) (string, error) {
	return "", nil
}

func TestTapUpdate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tap")
	repo := &mockRepo{}
	tap := NewTap(dir, "https://example.com/formulas.git", repo)
	if err := tap.Update(context.Background(), ""); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if repo.ref != "HEAD" || repo.dir != dir || repo.remote != "https://example.com/formulas.git" {
		t.Errorf("Sync called with %+v", repo)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("tap dir not created: %v", err)
	}

	repo.err = errors.New("boom")
	if err := tap.Update(context.Background(), "main"); !errors.Is(err, repo.err) {
		t.Errorf("Update error = %v, want wrapped boom", err)
	}
	if err := NewTap(dir, "", repo).Update(context.Background(), ""); err == nil {
		t.Error("Update without remote should fail")
	}
}

package cellar

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
	"time"
)

func install(t *testing.T, c *Cellar, name, ver string, bins ...string) Keg {
	t.Helper()
	k := c.Keg(name, ver)
	if err := os.MkdirAll(filepath.Join(k.Path, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	for _, b := range bins {
		if err := os.WriteFile(filepath.Join(k.Path, "bin", b), []byte("#!/bin/sh\n"), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := WriteReceipt(k.Path, &Receipt{Name: name, Version: ver, Time: time.Now()}); err != nil {
		t.Fatal(err)
	}
	return k
}

func versions(kegs []Keg) []string {
	var out []string
	for _, k := range kegs {
		out = append(out, k.Version)
	}
	return out
}

func TestKegs(t *testing.T) {
	c := New(t.TempDir())
	install(t, c, "xcowsay", "1.10")
	install(t, c, "xcowsay", "1.4")
	install(t, c, "xcowsay", "1.4_1")
	if err := os.MkdirAll(c.Keg("xcowsay", "1.5").Path, 0755); err != nil {
		t.Fatal(err)
	}

	kegs, err := c.Kegs("xcowsay")
	if err != nil {
		t.Fatalf("Kegs failed: %v", err)
	}
	if got := versions(kegs); !slices.Equal(got, []string{"1.4", "1.4_1", "1.5", "1.10"}) {
		t.Errorf("Kegs() = %v", got)
	}
	installed, err := c.Installed("xcowsay")
	if err != nil {
		t.Fatal(err)
	}
	if got := versions(installed); !slices.Equal(got, []string{"1.4", "1.4_1", "1.10"}) {
		t.Errorf("Installed() = %v, partial keg should be skipped", got)
	}
	latest, err := c.Latest("xcowsay")
	if err != nil || latest.Version != "1.10" {
		t.Errorf("Latest() = %v, %v", latest, err)
	}
	if _, err := c.Latest("cowsay"); !errors.Is(err, ErrNotInstalled) {
		t.Errorf("Latest(cowsay) error = %v, want ErrNotInstalled", err)
	}
	names, err := c.Names()
	if err != nil || !slices.Equal(names, []string{"xcowsay"}) {
		t.Errorf("Names() = %v, %v", names, err)
	}
}

func TestKegEmpty(t *testing.T) {
	c := New(t.TempDir())
	k := install(t, c, "xcowsay", "1.4")
	if empty, err := k.Empty(); err != nil || !empty {
		t.Errorf("Empty() = %v, %v; want true for a keg with only a receipt", empty, err)
	}
	k = install(t, c, "xcowsay", "1.5", "xcowsay")
	if empty, err := k.Empty(); err != nil || empty {
		t.Errorf("Empty() = %v, %v; want false", empty, err)
	}
}

func TestReceipt(t *testing.T) {
	dir := t.TempDir()
	want := &Receipt{
		Name:    "xcowsay",
		Version: "1.4",
		PURL:    "pkg:brew/xcowsay@1.4",
		Source: Source{
			URL:      "https://github.com/nickg/xcowsay/releases/download/v1.4/xcowsay-1.4.tar.gz",
			Checksum: "sha256:c7e261ba0262c3821c106ccb6d6f984e3c2da999ad10151364e55d1c699f8e51",
		},
		RuntimeDependencies: []RuntimeDep{{Name: "gtk+", Version: "system"}},
		InstalledOnRequest:  true,
		Time:                time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := WriteReceipt(dir, want); err != nil {
		t.Fatalf("WriteReceipt failed: %v", err)
	}
	got, err := ReadReceipt(dir)
	if err != nil {
		t.Fatalf("ReadReceipt failed: %v", err)
	}
	if got.Source != want.Source || !got.Time.Equal(want.Time) || !got.InstalledOnRequest {
		t.Errorf("ReadReceipt() = %+v", got)
	}
	if !got.DependsOn("gtk+") || got.DependsOn("autoconf") {
		t.Error("DependsOn() reports the wrong dependencies")
	}
}

func TestLinkUnlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	c := New(t.TempDir())
	old := install(t, c, "xcowsay", "1.3", "xcowsay")
	cur := install(t, c, "xcowsay", "1.4", "xcowsay", "xcowdream")

	if _, err := c.Link(old); err != nil {
		t.Fatalf("Link(old) failed: %v", err)
	}
	linked, err := c.Link(cur)
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if !slices.Equal(linked, []string{"xcowdream", "xcowsay"}) {
		t.Errorf("Link() = %v", linked)
	}
	target, err := os.Readlink(filepath.Join(c.BinDir(), "xcowsay"))
	if err != nil || target != filepath.Join(cur.Path, "bin", "xcowsay") {
		t.Errorf("xcowsay links to %q, %v", target, err)
	}
	if c.Linked(old) || !c.Linked(cur) {
		t.Error("Linked() reports the wrong keg")
	}

	n, err := c.Unlink(cur)
	if err != nil || n != 2 {
		t.Errorf("Unlink() = %d, %v; want 2", n, err)
	}
	if c.Linked(cur) {
		t.Error("keg still linked after Unlink")
	}
}

func TestLinkConflict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	c := New(t.TempDir())
	k := install(t, c, "xcowsay", "1.4", "xcowsay")
	if err := os.MkdirAll(c.BinDir(), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(c.BinDir(), "xcowsay"), []byte("mine"), 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Link(k); err == nil {
		t.Error("Link overwrote an unmanaged file")
	}
}

func TestRemove(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	c := New(t.TempDir())
	k := install(t, c, "xcowsay", "1.4", "xcowsay")
	if _, err := c.Link(k); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove(k); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(k.Path)); !os.IsNotExist(err) {
		t.Error("empty formula directory left behind")
	}
	if _, err := os.Lstat(filepath.Join(c.BinDir(), "xcowsay")); !os.IsNotExist(err) {
		t.Error("link left behind")
	}
}

func TestStash(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	c := New(t.TempDir())
	k := install(t, c, "xcowsay", "1.4", "xcowsay")
	if _, err := c.Link(k); err != nil {
		t.Fatal(err)
	}

	s, err := c.Stash(k)
	if err != nil {
		t.Fatalf("Stash failed: %v", err)
	}
	if _, err := os.Stat(k.Path); !os.IsNotExist(err) {
		t.Fatalf("keg still in place after Stash: %v", err)
	}
	// a failed rebuild leaves a partial keg behind
	if err := os.MkdirAll(filepath.Join(k.Path, "share"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := s.Restore(); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !k.Complete() || !c.Linked(k) {
		t.Error("restored keg is incomplete or unlinked")
	}
	if _, err := os.Stat(filepath.Join(c.BinDir(), "xcowsay")); err != nil {
		t.Errorf("link dangles after Restore: %v", err)
	}
	if _, err := os.Stat(filepath.Join(k.Path, "share")); !os.IsNotExist(err) {
		t.Error("partial keg not replaced by Restore")
	}

	s, err = c.Stash(k)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Discard(); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if entries, _ := os.ReadDir(filepath.Join(c.Root(), ".stash")); len(entries) != 0 {
		t.Errorf("stash left behind: %v", entries)
	}
	if kegs, _ := c.Kegs("xcowsay"); len(kegs) != 0 {
		t.Errorf("Kegs() after Discard = %v", kegs)
	}
}

// Copyright 2024 The cellar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cellar manages installed kegs.
//
// Layout of a cellar root:
//
//	<root>/
//	  .lock                      # held by mutating commands
//	  bin/                       # symlinks into linked kegs
//	  Cellar/<name>/<version>/   # one keg per installed version
//	    INSTALL_RECEIPT.json
//	    bin/ lib/ share/ ...
package cellar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goplus/cellar/pkgs/version"
)

// ErrNotInstalled is returned when a formula has no complete keg.
var ErrNotInstalled = errors.New("not installed")

// Cellar is the set of kegs under a root directory.
type Cellar struct {
	root string
}

// New returns the cellar rooted at root.
func New(root string) *Cellar {
	return &Cellar{root: root}
}

// Root returns the cellar root.
func (c *Cellar) Root() string { return c.root }

// BinDir returns the directory linked executables are placed in.
func (c *Cellar) BinDir() string { return filepath.Join(c.root, "bin") }

// LockPath returns the path of the file mutating commands lock.
func (c *Cellar) LockPath() string { return filepath.Join(c.root, ".lock") }

func (c *Cellar) kegsDir() string { return filepath.Join(c.root, "Cellar") }

// Keg is one installed version of a formula.
type Keg struct {
	Name    string
	Version string // package version, including any revision suffix
	Path    string
}

func (k Keg) String() string { return k.Name + "@" + k.Version }

// Complete reports whether the keg finished installing.
func (k Keg) Complete() bool {
	_, err := os.Stat(filepath.Join(k.Path, ReceiptFile))
	return err == nil
}

// Receipt loads the install receipt of the keg.
func (k Keg) Receipt() (*Receipt, error) {
	return ReadReceipt(k.Path)
}

// Empty reports whether the keg holds no installed files besides its
// receipt.
func (k Keg) Empty() (bool, error) {
	empty := true
	err := filepath.WalkDir(k.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == ReceiptFile {
			return nil
		}
		empty = false
		return fs.SkipAll
	})
	return empty, err
}

// Keg returns the keg of name at version, whether or not it exists.
func (c *Cellar) Keg(name, ver string) Keg {
	return Keg{Name: name, Version: ver, Path: filepath.Join(c.kegsDir(), name, ver)}
}

// Kegs returns every keg directory of name, complete or not, oldest
// version first.
func (c *Cellar) Kegs(name string) ([]Keg, error) {
	entries, err := os.ReadDir(filepath.Join(c.kegsDir(), name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var kegs []Keg
	for _, e := range entries {
		if e.IsDir() {
			kegs = append(kegs, c.Keg(name, e.Name()))
		}
	}
	slices.SortFunc(kegs, func(a, b Keg) int { return version.Compare(a.Version, b.Version) })
	return kegs, nil
}

// Installed returns the complete kegs of name, oldest version first.
func (c *Cellar) Installed(name string) ([]Keg, error) {
	kegs, err := c.Kegs(name)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(kegs, func(k Keg) bool { return !k.Complete() }), nil
}

// Latest returns the newest complete keg of name.
func (c *Cellar) Latest(name string) (Keg, error) {
	kegs, err := c.Installed(name)
	if err != nil {
		return Keg{}, err
	}
	if len(kegs) == 0 {
		return Keg{}, fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}
	return kegs[len(kegs)-1], nil
}

// Names returns the names of all formulas with a complete keg, sorted.
func (c *Cellar) Names() ([]string, error) {
	entries, err := os.ReadDir(c.kegsDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		kegs, err := c.Installed(e.Name())
		if err != nil {
			return nil, err
		}
		if len(kegs) > 0 {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Remove unlinks and deletes the keg, and the formula directory when it
// becomes empty.
func (c *Cellar) Remove(k Keg) error {
	if _, err := c.Unlink(k); err != nil {
		return err
	}
	if err := os.RemoveAll(k.Path); err != nil {
		return err
	}
	dir := filepath.Dir(k.Path)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
	return nil
}

// Stash holds a keg moved aside while its replacement is built.
type Stash struct {
	keg Keg
	dir string
}

// Stash moves k under <root>/.stash. Links into k are left alone, so they
// work again once the stash is restored.
func (c *Cellar) Stash(k Keg) (*Stash, error) {
	base := filepath.Join(c.root, ".stash")
	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(base, k.Name+"-")
	if err != nil {
		return nil, err
	}
	if err := os.Rename(k.Path, filepath.Join(dir, "keg")); err != nil {
		os.Remove(dir)
		return nil, fmt.Errorf("stash %s: %w", k, err)
	}
	return &Stash{keg: k, dir: dir}, nil
}

// Restore puts the stashed keg back, replacing whatever is at its path.
func (s *Stash) Restore() error {
	if err := os.RemoveAll(s.keg.Path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.keg.Path), 0755); err != nil {
		return err
	}
	if err := os.Rename(filepath.Join(s.dir, "keg"), s.keg.Path); err != nil {
		return fmt.Errorf("restore %s: %w", s.keg, err)
	}
	return os.RemoveAll(s.dir)
}

// Discard deletes the stashed keg.
func (s *Stash) Discard() error {
	return os.RemoveAll(s.dir)
}

// Link symlinks the executables of k into BinDir. Links of other kegs of
// the same formula are replaced; anything else in the way is an error.
// It returns the names linked.
func (c *Cellar) Link(k Keg) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(k.Path, "bin"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.BinDir(), 0755); err != nil {
		return nil, err
	}
	formulaDir := filepath.Join(c.kegsDir(), k.Name) + string(filepath.Separator)
	var linked []string
	for _, e := range entries {
		target := filepath.Join(k.Path, "bin", e.Name())
		link := filepath.Join(c.BinDir(), e.Name())
		if cur, err := os.Readlink(link); err == nil {
			if cur == target {
				linked = append(linked, e.Name())
				continue
			}
			if !strings.HasPrefix(cur, formulaDir) {
				return linked, fmt.Errorf("link %s: already links to %s", link, cur)
			}
			if err := os.Remove(link); err != nil {
				return linked, err
			}
		} else if _, err := os.Lstat(link); err == nil {
			return linked, fmt.Errorf("link %s: file exists", link)
		}
		if err := os.Symlink(target, link); err != nil {
			return linked, err
		}
		linked = append(linked, e.Name())
	}
	return linked, nil
}

// Unlink removes the links in BinDir pointing into k and returns how many
// were removed.
func (c *Cellar) Unlink(k Keg) (int, error) {
	entries, err := os.ReadDir(c.BinDir())
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	prefix := k.Path + string(filepath.Separator)
	n := 0
	for _, e := range entries {
		link := filepath.Join(c.BinDir(), e.Name())
		cur, err := os.Readlink(link)
		if err != nil || !strings.HasPrefix(cur, prefix) {
			continue
		}
		if err := os.Remove(link); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Linked reports whether any link in BinDir points into k.
func (c *Cellar) Linked(k Keg) bool {
	entries, err := os.ReadDir(c.BinDir())
	if err != nil {
		return false
	}
	prefix := k.Path + string(filepath.Separator)
	for _, e := range entries {
		if cur, err := os.Readlink(filepath.Join(c.BinDir(), e.Name())); err == nil && strings.HasPrefix(cur, prefix) {
			return true
		}
	}
	return false
}

// Copyright 2024 The cellar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package index finds formulas by name across layered formula directories.
package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/goplus/cellar/formula"
	loader "github.com/goplus/cellar/internal/formula"
	"github.com/goplus/cellar/internal/vcs"
)

// ErrNoFormula is returned when no layer of the index holds a formula.
var ErrNoFormula = errors.New("no available formula")

// Index resolves formula names. Layers are searched in order and the first
// layer holding <name>.hcl wins, so local directories shadow the builtin set.
type Index struct {
	layers []fs.FS

	mu    sync.Mutex
	cache map[string]*formula.Formula
}

// New returns an index over the given layers.
func New(layers ...fs.FS) *Index {
	return &Index{
		layers: slices.DeleteFunc(slices.Clone(layers), func(l fs.FS) bool { return l == nil }),
		cache:  make(map[string]*formula.Formula),
	}
}

// Dirs returns one layer per existing directory, skipping missing ones.
func Dirs(dirs ...string) []fs.FS {
	var layers []fs.FS
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if fi, err := os.Stat(d); err == nil && fi.IsDir() {
			layers = append(layers, os.DirFS(d))
		}
	}
	return layers
}

// Lookup loads the formula called name.
func (x *Index) Lookup(name string) (*formula.Formula, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if f, ok := x.cache[name]; ok {
		return f, nil
	}
	file := name + loader.Ext
	if !fs.ValidPath(file) || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: %s", ErrNoFormula, name)
	}
	for _, layer := range x.layers {
		f, err := loader.LoadFS(layer, file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		x.cache[name] = f
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoFormula, name)
}

// Has reports whether some layer holds a formula called name.
func (x *Index) Has(name string) bool {
	file := name + loader.Ext
	if !fs.ValidPath(file) {
		return false
	}
	for _, layer := range x.layers {
		if _, err := fs.Stat(layer, file); err == nil {
			return true
		}
	}
	return false
}

// Names lists every formula in the index, sorted.
func (x *Index) Names() ([]string, error) {
	var names []string
	for _, layer := range x.layers {
		entries, err := fs.ReadDir(layer, ".")
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), loader.Ext) {
				continue
			}
			names = append(names, strings.TrimSuffix(e.Name(), loader.Ext))
		}
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// Tap is a formula directory synchronized from a git remote.
type Tap struct {
	dir    string
	remote string
	repo   vcs.Repo
}

// NewTap returns a tap checked out into dir.
func NewTap(dir, remote string, repo vcs.Repo) *Tap {
	return &Tap{dir: dir, remote: remote, repo: repo}
}

// Dir returns the local checkout directory.
func (t *Tap) Dir() string { return t.dir }

// Update fetches the tip of ref (the default branch when empty) into the
// local checkout.
func (t *Tap) Update(ctx context.Context, ref string) error {
	if t.remote == "" {
		return errors.New("no tap remote configured")
	}
	if ref == "" {
		ref = "HEAD"
	}
	if err := os.MkdirAll(t.dir, 0700); err != nil {
		return err
	}
	if err := t.repo.Sync(ctx, t.remote, ref, t.dir); err != nil {
		return fmt.Errorf("update tap %s: %w", t.remote, err)
	}
	return nil
}

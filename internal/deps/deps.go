// Copyright 2024 The cellar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package deps orders the dependency graph of a formula and checks the
// system requirements it declares.
package deps

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/goplus/cellar/formula"
)

var (
	// ErrMissingDependency is returned when a dependency is not in the index.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrDependencyCycle is returned when formulas depend on each other.
	ErrDependencyCycle = errors.New("dependency cycle")
)

// Source looks formulas up by name.
type Source interface {
	Lookup(name string) (*formula.Formula, error)
}

// Options selects which tagged dependencies take part in resolution.
type Options struct {
	// FromSource includes build dependencies. Every formula is built from
	// source, so this is true for installs and false for runtime queries.
	FromSource bool
	// Test includes the test dependencies of the root formula.
	Test bool
	// With names optional dependencies to include.
	With []string
	// WithoutRecommended excludes recommended dependencies.
	WithoutRecommended bool
}

// Wanted reports whether dependency d of a formula is part of the graph.
// root is true for direct dependencies of the formula being resolved.
func (o Options) Wanted(d formula.Dependency, root bool) bool {
	switch {
	case d.Has(formula.TestOnly):
		return root && o.Test
	case d.Has(formula.Optional):
		return slices.Contains(o.With, d.Name)
	case d.Has(formula.Recommended) && o.WithoutRecommended:
		return false
	case d.Has(formula.Build):
		return o.FromSource
	}
	return true
}

// Resolve returns the formulas f needs in installation order: every
// formula comes after all of its dependencies, and f itself is last.
// Dependencies are visited depth-first in declaration order.
func Resolve(src Source, f *formula.Formula, opts Options) ([]*formula.Formula, error) {
	r := &resolver{src: src, opts: opts, state: make(map[string]int)}
	if err := r.visit(f, nil); err != nil {
		return nil, err
	}
	return r.order, nil
}

const (
	unvisited = iota
	visiting
	done
)

type resolver struct {
	src   Source
	opts  Options
	state map[string]int
	order []*formula.Formula
}

func (r *resolver) visit(f *formula.Formula, path []string) error {
	name := f.Name()
	switch r.state[name] {
	case done:
		return nil
	case visiting:
		i := slices.Index(path, name)
		cycle := append(slices.Clone(path[i:]), name)
		return fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(cycle, " -> "))
	}
	r.state[name] = visiting
	path = append(path, name)
	for _, d := range f.Dependencies() {
		if !r.opts.Wanted(d, len(path) == 1) {
			continue
		}
		dep, err := r.src.Lookup(d.Name)
		if err != nil {
			return fmt.Errorf("%w: %s (required by %s): %w", ErrMissingDependency, d.Name, name, err)
		}
		if err := r.visit(dep, path); err != nil {
			return err
		}
	}
	r.state[name] = done
	r.order = append(r.order, f)
	return nil
}

// Node is one entry of a dependency tree.
type Node struct {
	Dep      formula.Dependency
	Formula  *formula.Formula
	Children []*Node
}

// Tree returns the dependency tree of f. A formula reached twice on the
// same branch is reported as a cycle.
func Tree(src Source, f *formula.Formula, opts Options) (*Node, error) {
	return tree(src, formula.Dependency{Name: f.Name()}, f, opts, nil)
}

func tree(src Source, d formula.Dependency, f *formula.Formula, opts Options, path []string) (*Node, error) {
	if i := slices.Index(path, f.Name()); i >= 0 {
		cycle := append(slices.Clone(path[i:]), f.Name())
		return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, strings.Join(cycle, " -> "))
	}
	path = append(path, f.Name())
	n := &Node{Dep: d, Formula: f}
	for _, dep := range f.Dependencies() {
		if !opts.Wanted(dep, len(path) == 1) {
			continue
		}
		child, err := src.Lookup(dep.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s (required by %s): %w", ErrMissingDependency, dep.Name, f.Name(), err)
		}
		cn, err := tree(src, dep, child, opts, path)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, cn)
	}
	return n, nil
}

// Walk calls fn for n and its descendants in depth-first order.
func (n *Node) Walk(fn func(n *Node, depth int)) {
	n.walk(fn, 0)
}

func (n *Node) walk(fn func(*Node, int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

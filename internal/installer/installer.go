// Copyright 2024 The cellar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package installer drives formulas through dependency resolution, source
// fetching, the build and the post-install test.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goplus/cellar/formula"
	"github.com/goplus/cellar/internal/archive"
	"github.com/goplus/cellar/internal/build"
	"github.com/goplus/cellar/internal/cellar"
	"github.com/goplus/cellar/internal/ctxlog"
	"github.com/goplus/cellar/internal/deps"
	"github.com/goplus/cellar/internal/lockedfile"
	"github.com/goplus/cellar/internal/vcs"
	"github.com/goplus/cellar/pkgs/version"
)

var (
	ErrAlreadyInstalled = errors.New("already installed")
	ErrInUse            = errors.New("required by installed formulas")
	ErrEmptyInstall     = errors.New("installation produced no files")
	ErrNoSource         = errors.New("no source to build from")
)

// Downloader fetches and verifies source archives.
type Downloader interface {
	Download(ctx context.Context, rawURL string, sum formula.Checksum) (string, error)
}

// Checker verifies system requirements.
type Checker interface {
	CheckAll(ctx context.Context, f *formula.Formula) error
}

// Installer installs formulas into a cellar.
type Installer struct {
	Index   deps.Source
	Cellar  *cellar.Cellar
	Fetcher Downloader
	Git     vcs.Repo
	Checker Checker

	// WorkDir holds staging directories while building.
	WorkDir string
	Jobs    int
	// Environ is the environment build steps inherit; os.Environ() if nil.
	Environ []string
	// Output receives build and test output as it happens.
	Output io.Writer
}

// Options tune an install.
type Options struct {
	// Head builds from the VCS head instead of the stable archive.
	Head bool
	// Force reinstalls a formula that is already installed.
	Force bool
	// Test runs the formula test after installing.
	Test bool
	// With names optional dependencies to install.
	With []string
	// AsDependency records the keg as not installed on request.
	AsDependency bool
}

// Lock takes the cellar lock for a mutating command.
func (in *Installer) Lock() (unlock func(), err error) {
	if err := os.MkdirAll(in.Cellar.Root(), 0755); err != nil {
		return nil, err
	}
	return lockedfile.MutexAt(in.Cellar.LockPath()).Lock()
}

// Plan returns the formulas an install of f would build, dependencies
// first, with system formulas and installed dependencies left out.
// Nothing is downloaded or built.
func (in *Installer) Plan(ctx context.Context, f *formula.Formula, opts Options) ([]*formula.Formula, error) {
	order, err := deps.Resolve(in.Index, f, deps.Options{FromSource: true, Test: opts.Test, With: opts.With})
	if err != nil {
		return nil, err
	}
	var errs []error
	var plan []*formula.Formula
	for _, dep := range order[:len(order)-1] {
		if dep.System() != nil {
			if err := in.Checker.CheckAll(ctx, dep); err != nil {
				errs = append(errs, fmt.Errorf("dependency %s: %w", dep.Name(), err))
			}
			continue
		}
		if _, err := in.Cellar.Latest(dep.Name()); err == nil {
			continue
		}
		plan = append(plan, dep)
	}
	if err := in.Checker.CheckAll(ctx, f); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return append(plan, f), nil
}

// Install installs f and any missing dependencies, then links f.
func (in *Installer) Install(ctx context.Context, f *formula.Formula, opts Options) (cellar.Keg, error) {
	logger := ctxlog.FromContext(ctx)
	if f.System() != nil {
		if err := in.Checker.CheckAll(ctx, f); err != nil {
			return cellar.Keg{}, err
		}
		return cellar.Keg{}, fmt.Errorf("%s is provided by the system: %w", f.Name(), ErrAlreadyInstalled)
	}
	if err := checkSource(f, opts.Head); err != nil {
		return cellar.Keg{}, err
	}
	if !opts.Force {
		if k, ok := in.installedVersion(f, opts.Head); ok {
			return k, fmt.Errorf("%s: %w", k, ErrAlreadyInstalled)
		}
	}

	plan, err := in.Plan(ctx, f, opts)
	if err != nil {
		return cellar.Keg{}, err
	}
	for _, dep := range plan[:len(plan)-1] {
		logger.Info("installing dependency", "formula", dep.Name(), "for", f.Name())
		if _, err := in.build(ctx, dep, false, false); err != nil {
			return cellar.Keg{}, fmt.Errorf("dependency %s: %w", dep.Name(), err)
		}
	}
	keg, err := in.build(ctx, f, opts.Head, !opts.AsDependency)
	if err != nil {
		return cellar.Keg{}, err
	}
	if opts.Test {
		if err := in.testKeg(ctx, f, keg); err != nil {
			return keg, err
		}
	}
	return keg, nil
}

func checkSource(f *formula.Formula, head bool) error {
	if head && f.Head() == "" {
		return fmt.Errorf("%s has no head source: %w", f.Name(), ErrNoSource)
	}
	if !head && !f.HasStable() {
		return fmt.Errorf("%s is head-only, use --head: %w", f.Name(), ErrNoSource)
	}
	return nil
}

// installedVersion returns the complete keg satisfying f, if any.
func (in *Installer) installedVersion(f *formula.Formula, head bool) (cellar.Keg, bool) {
	kegs, err := in.Cellar.Installed(f.Name())
	if err != nil {
		return cellar.Keg{}, false
	}
	for _, k := range kegs {
		if head && isHead(k) {
			return k, true
		}
		if !head && k.Version == f.PkgVersion() {
			return k, true
		}
	}
	return cellar.Keg{}, false
}

// isHead reports whether k was built from the VCS head. Head kegs order
// after every release.
func isHead(k cellar.Keg) bool {
	return strings.HasPrefix(k.Version, "HEAD")
}

// build fetches, builds and links one formula whose dependencies are
// already in place.
func (in *Installer) build(ctx context.Context, f *formula.Formula, head, onRequest bool) (_ cellar.Keg, err error) {
	logger := ctxlog.FromContext(ctx).With("formula", f.Name())
	if err := os.MkdirAll(in.WorkDir, 0755); err != nil {
		return cellar.Keg{}, err
	}
	stage, err := os.MkdirTemp(in.WorkDir, f.Name()+"-")
	if err != nil {
		return cellar.Keg{}, err
	}
	defer os.RemoveAll(stage)

	receipt := &cellar.Receipt{
		Name:               f.Name(),
		Revision:           f.Revision(),
		Head:               head,
		InstalledOnRequest: onRequest,
	}
	var src, kegVersion string
	if head {
		commit, err := in.Git.Clone(ctx, f.Head(), filepath.Join(stage, "src"))
		if err != nil {
			return cellar.Keg{}, fmt.Errorf("clone %s: %w", f.Head(), err)
		}
		src = filepath.Join(stage, "src")
		kegVersion = "HEAD-" + vcs.ShortRev(commit)
		receipt.Version = kegVersion
		receipt.Source = cellar.Source{URL: f.Head(), Commit: commit}
		receipt.SourceVersion = declaredVersion(src)
	} else {
		path, err := in.Fetcher.Download(ctx, f.URL(), f.Checksum())
		if err != nil {
			return cellar.Keg{}, err
		}
		if src, err = archive.Extract(path, filepath.Join(stage, "src")); err != nil {
			return cellar.Keg{}, err
		}
		kegVersion = f.PkgVersion()
		receipt.Version = f.Version()
		receipt.Source = cellar.Source{URL: f.URL(), Checksum: f.Checksum().String()}
	}
	receipt.PURL = f.PURL(receipt.Version)

	// A keg being rebuilt is set aside, and put back if the rebuild fails.
	keg := in.Cellar.Keg(f.Name(), kegVersion)
	var stash *cellar.Stash
	if _, err := os.Stat(keg.Path); err == nil {
		logger.Debug("setting previous keg aside", "path", keg.Path)
		if stash, err = in.Cellar.Stash(keg); err != nil {
			return cellar.Keg{}, err
		}
	}
	defer func() {
		switch {
		case err == nil && stash != nil:
			if derr := stash.Discard(); derr != nil {
				logger.Warn("could not remove previous keg", "keg", keg, "err", derr)
			}
		case stash != nil:
			logger.Info("restoring previous keg", "keg", keg)
			if rerr := stash.Restore(); rerr != nil {
				err = errors.Join(err, rerr)
			}
		case err != nil:
			in.Cellar.Remove(keg)
		}
	}()
	if err := os.MkdirAll(keg.Path, 0755); err != nil {
		return cellar.Keg{}, err
	}

	env, runtimeDeps, err := in.dependencyEnv(f)
	if err != nil {
		return cellar.Keg{}, err
	}
	receipt.RuntimeDependencies = runtimeDeps

	runner := &build.Runner{
		Dir: src,
		Env: env,
		Vars: formula.Vars{
			Name:    f.Name(),
			Version: receipt.Version,
			Prefix:  keg.Path,
			Head:    head,
			Jobs:    in.Jobs,
		},
		Output: in.Output,
	}
	logger.Info("building", "version", kegVersion, "prefix", keg.Path)
	if err := runner.Run(ctx, f.Install()); err != nil {
		return cellar.Keg{}, fmt.Errorf("install %s: %w", f.Name(), err)
	}
	if empty, err := keg.Empty(); err != nil {
		return cellar.Keg{}, err
	} else if empty {
		return cellar.Keg{}, fmt.Errorf("%s: %w", keg, ErrEmptyInstall)
	}

	receipt.Time = time.Now().UTC()
	if err := cellar.WriteReceipt(keg.Path, receipt); err != nil {
		return cellar.Keg{}, err
	}
	in.link(ctx, keg)
	logger.Info("installed", "keg", keg.Path)
	return keg, nil
}

// dependencyEnv returns the build environment exposing the kegs f depends
// on, and the runtime dependencies to record in its receipt.
func (in *Installer) dependencyEnv(f *formula.Formula) (*build.Env, []cellar.RuntimeDep, error) {
	environ := in.Environ
	if environ == nil {
		environ = os.Environ()
	}
	env := build.NewEnv(environ)
	var runtimeDeps []cellar.RuntimeDep
	for _, d := range f.Dependencies() {
		if d.Has(formula.TestOnly) {
			continue
		}
		dep, err := in.Index.Lookup(d.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %w", deps.ErrMissingDependency, d.Name, err)
		}
		ver := "system"
		if dep.System() == nil {
			keg, err := in.Cellar.Latest(d.Name)
			if err != nil {
				if d.Has(formula.Optional) || d.Has(formula.Recommended) {
					continue
				}
				return nil, nil, fmt.Errorf("%w: %s", deps.ErrMissingDependency, err)
			}
			env.Use(keg.Path)
			ver = keg.Version
		}
		if d.Runtime() {
			runtimeDeps = append(runtimeDeps, cellar.RuntimeDep{Name: d.Name, Version: ver})
		}
	}
	return env, runtimeDeps, nil
}

func (in *Installer) link(ctx context.Context, keg cellar.Keg) {
	logger := ctxlog.FromContext(ctx)
	kegs, _ := in.Cellar.Installed(keg.Name)
	for _, k := range kegs {
		if k.Path != keg.Path {
			in.Cellar.Unlink(k)
		}
	}
	if _, err := in.Cellar.Link(keg); err != nil {
		logger.Warn("could not link keg", "keg", keg, "err", err)
	}
}

// Uninstall removes every keg of name. It refuses while other installed
// formulas need name at run time, unless ignoreDependents is set.
func (in *Installer) Uninstall(ctx context.Context, name string, ignoreDependents bool) error {
	kegs, err := in.Cellar.Kegs(name)
	if err != nil {
		return err
	}
	if len(kegs) == 0 {
		return fmt.Errorf("%s: %w", name, cellar.ErrNotInstalled)
	}
	if !ignoreDependents {
		dependents, err := in.Dependents(name)
		if err != nil {
			return err
		}
		if len(dependents) > 0 {
			return fmt.Errorf("%s is %w: %s", name, ErrInUse, strings.Join(dependents, ", "))
		}
	}
	for _, k := range kegs {
		ctxlog.FromContext(ctx).Info("uninstalling", "keg", k.Path)
		if err := in.Cellar.Remove(k); err != nil {
			return err
		}
	}
	return nil
}

// Dependents lists installed formulas whose newest keg needs name at run
// time.
func (in *Installer) Dependents(name string) ([]string, error) {
	names, err := in.Cellar.Names()
	if err != nil {
		return nil, err
	}
	var dependents []string
	for _, n := range names {
		if n == name {
			continue
		}
		keg, err := in.Cellar.Latest(n)
		if err != nil {
			continue
		}
		r, err := keg.Receipt()
		if err != nil {
			return nil, err
		}
		if r.DependsOn(name) {
			dependents = append(dependents, n)
		}
	}
	return dependents, nil
}

// Current returns the newest head keg of name when head is set, and the
// newest release keg otherwise.
func (in *Installer) Current(name string, head bool) (cellar.Keg, error) {
	kegs, err := in.Cellar.Installed(name)
	if err != nil {
		return cellar.Keg{}, err
	}
	for i := len(kegs) - 1; i >= 0; i-- {
		if isHead(kegs[i]) == head {
			return kegs[i], nil
		}
	}
	return cellar.Keg{}, fmt.Errorf("%s: %w", name, cellar.ErrNotInstalled)
}

// Upgrade installs f when its version orders after the newest installed
// release keg, then removes the older release kegs. With opts.Head it
// rebuilds the head keg from the latest commit instead and removes the
// older head kegs. Head and release kegs of f are upgraded independently.
// It reports whether anything changed.
func (in *Installer) Upgrade(ctx context.Context, f *formula.Formula, opts Options) (cellar.Keg, bool, error) {
	latest, err := in.Cellar.Latest(f.Name())
	if err != nil {
		return cellar.Keg{}, false, err
	}
	current, err := in.Current(f.Name(), opts.Head)
	switch {
	case err == nil:
		if r, err := current.Receipt(); err == nil {
			opts.AsDependency = !r.InstalledOnRequest
		}
		if !opts.Head && version.Compare(f.PkgVersion(), current.Version) <= 0 {
			return current, false, nil
		}
	case !opts.Head:
		ctxlog.FromContext(ctx).Info("head keg installed, upgrade it with --head", "keg", latest)
		return latest, false, nil
	default:
		if r, err := latest.Receipt(); err == nil {
			opts.AsDependency = !r.InstalledOnRequest
		}
	}

	opts.Force = opts.Head
	keg, err := in.Install(ctx, f, opts)
	if err != nil {
		return cellar.Keg{}, false, err
	}
	kegs, err := in.Cellar.Kegs(f.Name())
	if err != nil {
		return keg, true, err
	}
	for _, k := range kegs {
		if k.Path == keg.Path || isHead(k) != opts.Head {
			continue
		}
		if err := in.Cellar.Remove(k); err != nil {
			return keg, true, err
		}
	}
	return keg, true, nil
}

// Fetch downloads and verifies the stable source of f, or checks out its
// head into the work directory, and returns the local path.
func (in *Installer) Fetch(ctx context.Context, f *formula.Formula, head bool) (string, error) {
	if err := checkSource(f, head); err != nil {
		return "", err
	}
	if head {
		dir := filepath.Join(in.WorkDir, "heads", f.Name())
		if err := in.Git.Sync(ctx, f.Head(), "HEAD", dir); err != nil {
			return "", err
		}
		return dir, nil
	}
	return in.Fetcher.Download(ctx, f.URL(), f.Checksum())
}

// Link links the newest keg of name, unlinking its other kegs. A head keg
// is newer than any release.
func (in *Installer) Link(ctx context.Context, name string) (cellar.Keg, error) {
	keg, err := in.Cellar.Latest(name)
	if err != nil {
		return cellar.Keg{}, err
	}
	kegs, _ := in.Cellar.Installed(name)
	for _, k := range kegs {
		if _, err := in.Cellar.Unlink(k); err != nil {
			return cellar.Keg{}, err
		}
	}
	_, err = in.Cellar.Link(keg)
	return keg, err
}

// Unlink removes the links of every keg of name.
func (in *Installer) Unlink(ctx context.Context, name string) (int, error) {
	kegs, err := in.Cellar.Installed(name)
	if err != nil {
		return 0, err
	}
	if len(kegs) == 0 {
		return 0, fmt.Errorf("%s: %w", name, cellar.ErrNotInstalled)
	}
	total := 0
	for _, k := range kegs {
		n, err := in.Cellar.Unlink(k)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

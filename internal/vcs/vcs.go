// Package vcs drives git for head builds, formula taps and livecheck.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoGit is returned when the git executable cannot be found.
var ErrNoGit = errors.New("git not found")

// Repo is the subset of git the package manager needs.
type Repo interface {
	// Clone makes dir a shallow checkout of the remote's default branch
	// and returns the checked out commit.
	Clone(ctx context.Context, remote, dir string) (string, error)

	// Sync brings dir to ref of remote, cloning on first use.
	// ref can be a branch, tag or commit hash.
	Sync(ctx context.Context, remote, ref, dir string) error

	// Tags lists the tag names of the remote repository.
	Tags(ctx context.Context, remote string) ([]string, error)

	// Head returns the commit the remote HEAD points at.
	Head(ctx context.Context, remote string) (string, error)
}

type git struct {
	path string
}

// Option configures the git client.
type Option func(*git)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) Option {
	return func(g *git) {
		g.path = path
	}
}

// NewGit returns a Repo backed by the git command line.
func NewGit(opts ...Option) Repo {
	g := &git{path: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *git) Clone(ctx context.Context, remote, dir string) (string, error) {
	if err := g.Sync(ctx, remote, "HEAD", dir); err != nil {
		return "", err
	}
	rev, err := g.output(ctx, dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("rev-parse: %w", err)
	}
	return strings.TrimSpace(rev), nil
}

func (g *git) Sync(ctx context.Context, remote, ref, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); os.IsNotExist(err) {
		if err := g.run(ctx, dir, "init", "--quiet"); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}
	if err := g.run(ctx, dir, "fetch", "--quiet", "--depth", "1", remote, ref); err != nil {
		return fmt.Errorf("fetch %s %s: %w", remote, ref, err)
	}
	if err := g.run(ctx, dir, "checkout", "--quiet", "--force", "FETCH_HEAD"); err != nil {
		return fmt.Errorf("checkout %s: %w", ref, err)
	}
	return nil
}

func (g *git) Tags(ctx context.Context, remote string) ([]string, error) {
	out, err := g.output(ctx, "", "ls-remote", "--tags", "--refs", remote)
	if err != nil {
		return nil, fmt.Errorf("list remote tags: %w", err)
	}
	var tags []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		// <hash>\trefs/tags/<tag>
		_, ref, ok := strings.Cut(line, "\t")
		if ok {
			tags = append(tags, strings.TrimPrefix(ref, "refs/tags/"))
		}
	}
	return tags, nil
}

func (g *git) Head(ctx context.Context, remote string) (string, error) {
	out, err := g.output(ctx, "", "ls-remote", remote, "HEAD")
	if err != nil {
		return "", fmt.Errorf("get remote HEAD: %w", err)
	}
	hash, _, _ := strings.Cut(strings.TrimSpace(out), "\t")
	if hash == "" {
		return "", fmt.Errorf("no HEAD found in remote %s", remote)
	}
	return hash, nil
}

// ShortRev abbreviates a commit hash the way head versions display it.
func ShortRev(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

func (g *git) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *git) output(ctx context.Context, dir string, args ...string) (string, error) {
	if _, err := exec.LookPath(g.path); err != nil {
		return "", ErrNoGit
	}
	cmd := exec.CommandContext(ctx, g.path, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

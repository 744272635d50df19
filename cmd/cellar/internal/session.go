package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/cellar/formula"
	"github.com/goplus/cellar/formulas"
	"github.com/goplus/cellar/internal/cellar"
	"github.com/goplus/cellar/internal/deps"
	"github.com/goplus/cellar/internal/fetch"
	loader "github.com/goplus/cellar/internal/formula"
	"github.com/goplus/cellar/internal/index"
	"github.com/goplus/cellar/internal/installer"
	"github.com/goplus/cellar/internal/vcs"
	"github.com/spf13/cobra"
)

// session wires the packages a command needs from the loaded config.
type session struct {
	index   *index.Index
	tap     *index.Tap
	git     vcs.Repo
	fetcher *fetch.Fetcher
	inst    *installer.Installer
}

func newSession(cmd *cobra.Command) *session {
	git := vcs.NewGit()
	// Local formula directories shadow the tap, which shadows the
	// formulas shipped with cellar.
	layers := index.Dirs(cfg.FormulaDirs...)
	layers = append(layers, index.Dirs(cfg.TapDir())...)
	layers = append(layers, formulas.FS)
	idx := index.New(layers...)

	fetcher := fetch.New(cfg.Cache,
		fetch.WithUserAgent(cfg.Download.UserAgent),
		fetch.WithMaxRetries(cfg.Download.Retries),
		fetch.WithTripThreshold(cfg.Download.TripThreshold),
	)
	inst := &installer.Installer{
		Index:   idx,
		Cellar:  cellar.New(cfg.Root),
		Fetcher: fetcher,
		Git:     git,
		Checker: deps.NewChecker(),
		WorkDir: filepath.Join(cfg.Cache, "build"),
		Jobs:    cfg.Jobs,
	}
	if verbose {
		inst.Output = cmd.ErrOrStderr()
	}
	return &session{
		index:   idx,
		tap:     index.NewTap(cfg.TapDir(), cfg.Tap.Remote, git),
		git:     git,
		fetcher: fetcher,
		inst:    inst,
	}
}

// close releases what newSession started.
func (s *session) close() {
	s.fetcher.Close()
}

// formula resolves a command argument: a path to a formula file, or a
// formula name optionally pinned to a version.
func (s *session) formula(arg string) (*formula.Formula, error) {
	if strings.HasSuffix(arg, loader.Ext) {
		if _, err := os.Stat(arg); err == nil {
			return loader.Load(arg)
		}
	}
	// Names may contain '@', as in "python@3.12".
	if s.index.Has(arg) {
		return s.index.Lookup(arg)
	}
	name, ver := parseFormulaArg(arg)
	f, err := s.index.Lookup(name)
	if err != nil {
		return nil, err
	}
	if ver != "" && ver != f.Version() && ver != f.PkgVersion() {
		return nil, fmt.Errorf("%w: %s@%s, the formula provides %s", index.ErrNoFormula, name, ver, f.PkgVersion())
	}
	return f, nil
}

// lock takes the cellar lock for a mutating command.
func (s *session) lock() (unlock func(), err error) {
	unlock, err = s.inst.Lock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock cellar: %w", err)
	}
	return unlock, nil
}

// parseFormulaArg parses a formula argument in the form "name@version" or "name".
func parseFormulaArg(arg string) (name, version string) {
	for i := len(arg) - 1; i >= 0; i-- {
		if arg[i] == '@' {
			return arg[:i], arg[i+1:]
		}
	}
	return arg, ""
}

package internal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goplus/cellar/internal/cellar"
	"github.com/goplus/cellar/internal/index"
)

// sandbox points every cellar directory into a temporary directory.
func sandbox(t *testing.T) (root string) {
	t.Helper()
	dir := t.TempDir()
	root = filepath.Join(dir, "root")
	t.Setenv("CELLAR_CONFIG_DIR", filepath.Join(dir, "config"))
	t.Setenv("CELLAR_ROOT", root)
	t.Setenv("CELLAR_CACHE", filepath.Join(dir, "cache"))
	return root
}

func runCellar(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(resetFlags)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags() {
	cfgFile, logLevel, verbose = "", "", false
	installForce, installHead, installTest, installDryRun, installWith = false, false, false, false, nil
	ignoreDependencies = false
	upgradeHead, upgradeTest = false, false
	fetchHead = false
	listVersions = false
	depsTree, depsIncludeBuild, depsIncludeTest = false, false, false
	configForce = false
}

func TestCLIInfo(t *testing.T) {
	sandbox(t)
	out, err := runCellar(t, "info", "xcowsay")
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	if !strings.Contains(out, "Graphical talking cow") || !strings.Contains(out, "Not installed") {
		t.Errorf("info output:\n%s", out)
	}

	if _, err := runCellar(t, "info", "xcowsay@1.3"); !errors.Is(err, index.ErrNoFormula) {
		t.Errorf("info xcowsay@1.3 error = %v, want ErrNoFormula", err)
	}
	if _, err := runCellar(t, "info", "bull"); !errors.Is(err, index.ErrNoFormula) {
		t.Errorf("info bull error = %v, want ErrNoFormula", err)
	}
}

func TestCLIDeps(t *testing.T) {
	sandbox(t)
	out, err := runCellar(t, "deps", "xcowsay")
	if err != nil {
		t.Fatalf("deps failed: %v", err)
	}
	if got := strings.Fields(out); len(got) != 1 || got[0] != "gtk+" {
		t.Errorf("deps xcowsay = %q, want [gtk+]", got)
	}

	out, err = runCellar(t, "deps", "--include-build", "xcowsay")
	if err != nil {
		t.Fatalf("deps --include-build failed: %v", err)
	}
	if got := strings.Fields(out); len(got) != 6 {
		t.Errorf("deps --include-build xcowsay = %q, want 6 formulas", got)
	}

	out, err = runCellar(t, "deps", "--tree", "--include-build", "xcowsay")
	if err != nil {
		t.Fatalf("deps --tree failed: %v", err)
	}
	if !strings.HasPrefix(out, "xcowsay@1.4\n") || !strings.Contains(out, "└── autoconf [build]") {
		t.Errorf("deps --tree output:\n%s", out)
	}
}

func TestCLIConfig(t *testing.T) {
	root := sandbox(t)
	out, err := runCellar(t, "config", "init")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, "config.toml") {
		t.Errorf("config init output = %q", out)
	}
	if _, err := runCellar(t, "config", "init"); err == nil {
		t.Error("config init should refuse to overwrite an existing file")
	}

	out, err = runCellar(t, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, root) || !strings.Contains(out, "config.toml") {
		t.Errorf("config show output:\n%s", out)
	}
}

func TestCLILocalFormula(t *testing.T) {
	sandbox(t)
	dir := t.TempDir()
	local := `formula "moo" {
  desc     = "Print a cow"
  homepage = "https://example.com/moo"
  license  = "MIT"
  url      = "https://example.com/moo-0.3.tar.gz"
  sha256   = "` + strings.Repeat("ab", 32) + `"

  install {
    step { shell = "make install PREFIX=${prefix}" }
  }

  test {
    run = ["${bin}/moo", "--version"]
  }
}
`
	if err := os.WriteFile(filepath.Join(dir, "moo.hcl"), []byte(local), 0644); err != nil {
		t.Fatal(err)
	}
	configFile := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(configFile, []byte("formula_dirs = ['"+filepath.ToSlash(dir)+"']\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := runCellar(t, "--config", configFile, "info", "moo")
	if err != nil {
		t.Fatalf("info moo failed: %v", err)
	}
	if !strings.Contains(out, "moo: stable 0.3") {
		t.Errorf("info moo output:\n%s", out)
	}

	if _, err := runCellar(t, "audit", filepath.Join(dir, "moo.hcl")); err != nil {
		t.Errorf("audit of a formula file failed: %v", err)
	}
}

func TestCLIAudit(t *testing.T) {
	sandbox(t)
	if _, err := runCellar(t, "audit"); err != nil {
		t.Errorf("audit of the built-in formulas failed: %v", err)
	}
}

func TestCLINotInstalled(t *testing.T) {
	sandbox(t)
	out, err := runCellar(t, "list")
	if err != nil || out != "" {
		t.Errorf("list = %q, %v", out, err)
	}
	if _, err := runCellar(t, "uninstall", "xcowsay"); !errors.Is(err, cellar.ErrNotInstalled) {
		t.Errorf("uninstall error = %v, want ErrNotInstalled", err)
	}
	if _, err := runCellar(t, "unlink", "xcowsay"); !errors.Is(err, cellar.ErrNotInstalled) {
		t.Errorf("unlink error = %v, want ErrNotInstalled", err)
	}
	if _, err := runCellar(t, "test", "xcowsay"); !errors.Is(err, cellar.ErrNotInstalled) {
		t.Errorf("test error = %v, want ErrNotInstalled", err)
	}
	if _, err := runCellar(t, "upgrade", "xcowsay"); !errors.Is(err, cellar.ErrNotInstalled) {
		t.Errorf("upgrade error = %v, want ErrNotInstalled", err)
	}
}

func TestCLIUpdateWithoutTap(t *testing.T) {
	sandbox(t)
	if _, err := runCellar(t, "update"); err == nil {
		t.Error("update should fail without a tap remote")
	}
}

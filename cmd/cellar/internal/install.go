package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/goplus/cellar/formula"
	"github.com/goplus/cellar/internal/ctxlog"
	"github.com/goplus/cellar/internal/installer"
	"github.com/spf13/cobra"
)

var (
	installForce  bool
	installHead   bool
	installTest   bool
	installDryRun bool
	installWith   []string
)

var installCmd = &cobra.Command{
	Use:   "install formula[@version]...",
	Short: "Build and install formulas",
	Long: `Install resolves the dependencies of each formula, checks the system
requirements, then downloads, verifies and builds everything missing.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInstall,
}

var reinstallCmd = &cobra.Command{
	Use:   "reinstall formula...",
	Short: "Remove and rebuild installed formulas",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		installForce = true
		return runInstall(cmd, args)
	},
}

func init() {
	for _, c := range []*cobra.Command{installCmd, reinstallCmd} {
		c.Flags().BoolVar(&installHead, "head", false, "build from the head of the formula's repository")
		c.Flags().BoolVar(&installTest, "test", false, "run the formula test after installing")
		c.Flags().StringSliceVar(&installWith, "with", nil, "also install the named optional dependencies")
	}
	installCmd.Flags().BoolVarP(&installForce, "force", "f", false, "reinstall formulas that are already installed")
	installCmd.Flags().BoolVarP(&installDryRun, "dry-run", "n", false, "print what would be built without building")
	rootCmd.AddCommand(installCmd, reinstallCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	s := newSession(cmd)
	defer s.close()
	ctx := cmd.Context()
	opts := installer.Options{
		Head:  installHead,
		Force: installForce,
		Test:  installTest,
		With:  installWith,
	}

	forms := make([]*formula.Formula, len(args))
	for i, arg := range args {
		f, err := s.formula(arg)
		if err != nil {
			return err
		}
		forms[i] = f
	}

	if installDryRun {
		for _, f := range forms {
			plan, err := s.inst.Plan(ctx, f, opts)
			if err != nil {
				return err
			}
			names := make([]string, len(plan))
			for i, p := range plan {
				names[i] = p.String()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s would install %s\n", arrow, strings.Join(names, " "))
		}
		return nil
	}

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	logger := ctxlog.FromContext(ctx)
	for _, f := range forms {
		keg, err := s.inst.Install(ctx, f, opts)
		if errors.Is(err, installer.ErrAlreadyInstalled) {
			logger.Warn("already installed, use reinstall to rebuild it", "formula", f.Name(), "err", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to install %s: %w", f, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", arrow, keg, keg.Path)
		reportPkgConfig(ctx, cmd.OutOrStdout(), keg.Path)
	}
	return nil
}

// reportPkgConfig prints the pkg-config flags of a fresh keg. Failing to
// read them never fails the install; it is logged at debug level.
func reportPkgConfig(ctx context.Context, w io.Writer, kegPath string) {
	if err := printPkgConfigInfo(w, kegPath); err != nil {
		ctxlog.FromContext(ctx).Debug("no pkg-config info", "keg", kegPath, "err", err)
	}
}

// printPkgConfigInfo uses pkg-config to print the flags of the libraries a keg provides.
func printPkgConfigInfo(w io.Writer, kegPath string) error {
	pkgconfigDir := filepath.Join(kegPath, "lib", "pkgconfig")

	entries, err := os.ReadDir(pkgconfigDir)
	if err != nil {
		return err
	}

	var pkgNames []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".pc") {
			pkgNames = append(pkgNames, strings.TrimSuffix(entry.Name(), ".pc"))
		}
	}

	if len(pkgNames) == 0 {
		return nil
	}

	pkgConfigPath := os.Getenv("PKG_CONFIG_PATH")
	if pkgConfigPath != "" {
		pkgConfigPath = pkgconfigDir + string(os.PathListSeparator) + pkgConfigPath
	} else {
		pkgConfigPath = pkgconfigDir
	}

	for _, pkgName := range pkgNames {
		cmd := exec.Command("pkg-config", "--libs", "--cflags", pkgName)
		cmd.Env = append(os.Environ(), "PKG_CONFIG_PATH="+pkgConfigPath)
		if out, err := cmd.Output(); err == nil {
			if result := strings.TrimSpace(string(out)); result != "" {
				fmt.Fprintf(w, "%s: %s\n", pkgName, result)
			}
		}
	}

	return nil
}

package internal

import (
	"fmt"

	"github.com/goplus/cellar/internal/ctxlog"
	"github.com/goplus/cellar/internal/installer"
	"github.com/spf13/cobra"
)

var (
	upgradeHead bool
	upgradeTest bool
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade [formula...]",
	Short: "Upgrade outdated formulas",
	Long: `Upgrade installs the formula version when it is newer than the newest
installed release keg, then removes the older release kegs. With --head
the head keg is rebuilt from the latest commit instead. Head and release
kegs are upgraded independently. Without arguments every installed
formula is considered.`,
	RunE: runUpgrade,
}

func init() {
	upgradeCmd.Flags().BoolVar(&upgradeHead, "head", false, "rebuild head kegs from the latest commit")
	upgradeCmd.Flags().BoolVar(&upgradeTest, "test", false, "run the formula test after upgrading")
	rootCmd.AddCommand(upgradeCmd)
}

func runUpgrade(cmd *cobra.Command, args []string) error {
	s := newSession(cmd)
	defer s.close()
	ctx := cmd.Context()
	logger := ctxlog.FromContext(ctx)

	names := args
	if len(names) == 0 {
		var err error
		if names, err = s.inst.Cellar.Names(); err != nil {
			return err
		}
	}

	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	for _, name := range names {
		f, err := s.formula(name)
		if err != nil {
			if len(args) > 0 {
				return err
			}
			logger.Warn("skipping formula missing from the index", "formula", name)
			continue
		}
		old, oldErr := s.inst.Current(f.Name(), upgradeHead)
		keg, changed, err := s.inst.Upgrade(ctx, f, installer.Options{Head: upgradeHead, Test: upgradeTest})
		if err != nil {
			return fmt.Errorf("failed to upgrade %s: %w", f.Name(), err)
		}
		switch {
		case !changed:
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is up to date\n", arrow, keg)
		case oldErr != nil:
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s installed\n", arrow, keg)
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s -> %s\n", arrow, f.Name(), old.Version, keg.Version)
		}
	}
	return nil
}

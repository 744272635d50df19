package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ignoreDependencies bool

var uninstallCmd = &cobra.Command{
	Use:     "uninstall formula...",
	Aliases: []string{"remove", "rm"},
	Short:   "Remove every installed version of formulas",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runUninstall,
}

func init() {
	uninstallCmd.Flags().BoolVar(&ignoreDependencies, "ignore-dependencies", false, "uninstall even if other formulas depend on it")
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	s := newSession(cmd)
	defer s.close()
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	for _, arg := range args {
		name, _ := parseFormulaArg(arg)
		if s.index.Has(arg) {
			name = arg
		}
		if err := s.inst.Uninstall(cmd.Context(), name, ignoreDependencies); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s uninstalled %s\n", arrow, name)
	}
	return nil
}

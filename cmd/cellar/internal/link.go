package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var linkCmd = &cobra.Command{
	Use:   "link formula...",
	Short: "Link the newest keg of formulas into the cellar bin directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(cmd)
		defer s.close()
		unlock, err := s.lock()
		if err != nil {
			return err
		}
		defer unlock()
		for _, name := range args {
			keg, err := s.inst.Link(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("failed to link %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s linked %s\n", arrow, keg)
		}
		return nil
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink formula...",
	Short: "Remove the links of formulas from the cellar bin directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(cmd)
		defer s.close()
		unlock, err := s.lock()
		if err != nil {
			return err
		}
		defer unlock()
		for _, name := range args {
			n, err := s.inst.Unlink(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("failed to unlink %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s unlinked %s (%d links)\n", arrow, name, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(linkCmd, unlinkCmd)
}

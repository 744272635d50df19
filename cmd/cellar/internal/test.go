package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test formula...",
	Short: "Run the test of installed formulas",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(cmd)
		defer s.close()
		for _, arg := range args {
			f, err := s.formula(arg)
			if err != nil {
				return err
			}
			if err := s.inst.Test(cmd.Context(), f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s passed\n", arrow, f.Name())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}

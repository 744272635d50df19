package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [ref]",
	Short: "Fetch the newest formulas from the tap",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(cmd)
		defer s.close()
		ref := ""
		if len(args) == 1 {
			ref = args[0]
		}
		if err := s.tap.Update(cmd.Context(), ref); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s updated %s\n", arrow, s.tap.Dir())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

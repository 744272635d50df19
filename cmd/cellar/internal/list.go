package internal

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var listVersions bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed formulas",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(cmd)
		defer s.close()
		names, err := s.inst.Cellar.Names()
		if err != nil {
			return err
		}
		for _, name := range names {
			if !listVersions {
				fmt.Fprintln(cmd.OutOrStdout(), name)
				continue
			}
			kegs, err := s.inst.Cellar.Installed(name)
			if err != nil {
				return err
			}
			versions := make([]string, len(kegs))
			for i, k := range kegs {
				versions[i] = k.Version
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, strings.Join(versions, " "))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listVersions, "versions", false, "show the installed versions of each formula")
	rootCmd.AddCommand(listCmd)
}

package internal

import (
	"fmt"

	"github.com/spf13/cobra"
)

var fetchHead bool

var fetchCmd = &cobra.Command{
	Use:   "fetch formula...",
	Short: "Download and verify formula sources",
	Long: `Fetch downloads the source archive of each formula into the cache and
verifies its checksum, printing the cached path. With --head it checks out
the head repository instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(cmd)
		defer s.close()
		for _, arg := range args {
			f, err := s.formula(arg)
			if err != nil {
				return err
			}
			path, err := s.inst.Fetch(cmd.Context(), f, fetchHead)
			if err != nil {
				return fmt.Errorf("failed to fetch %s: %w", f, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	},
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchHead, "head", false, "check out the head repository")
	rootCmd.AddCommand(fetchCmd)
}

package internal

import (
	"fmt"
	"io"
	"strings"

	"github.com/goplus/cellar/internal/deps"
	"github.com/spf13/cobra"
)

var (
	depsTree         bool
	depsIncludeBuild bool
	depsIncludeTest  bool
)

var depsCmd = &cobra.Command{
	Use:   "deps formula",
	Short: "Show the dependencies of a formula",
	Long: `Deps prints the dependencies of a formula in install order, or as a
tree with --tree. Build and test dependencies are left out unless asked for.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(cmd)
		defer s.close()
		f, err := s.formula(args[0])
		if err != nil {
			return err
		}
		opts := deps.Options{FromSource: depsIncludeBuild, Test: depsIncludeTest}
		if depsTree {
			root, err := deps.Tree(s.index, f, opts)
			if err != nil {
				return err
			}
			printTree(cmd.OutOrStdout(), root)
			return nil
		}
		order, err := deps.Resolve(s.index, f, opts)
		if err != nil {
			return err
		}
		for _, d := range order[:len(order)-1] {
			fmt.Fprintln(cmd.OutOrStdout(), d.Name())
		}
		return nil
	},
}

func init() {
	depsCmd.Flags().BoolVar(&depsTree, "tree", false, "print the dependencies as a tree")
	depsCmd.Flags().BoolVar(&depsIncludeBuild, "include-build", false, "include build dependencies")
	depsCmd.Flags().BoolVar(&depsIncludeTest, "include-test", false, "include test dependencies")
	rootCmd.AddCommand(depsCmd)
}

func printTree(w io.Writer, root *deps.Node) {
	root.Walk(func(n *deps.Node, depth int) {
		if depth == 0 {
			fmt.Fprintln(w, n.Formula.String())
			return
		}
		label := n.Dep.String()
		if n.Formula.System() != nil {
			label += mutedStyle.Render(" (system)")
		}
		fmt.Fprintf(w, "%s└── %s\n", strings.Repeat("    ", depth-1), label)
	})
}

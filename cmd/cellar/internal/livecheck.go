package internal

import (
	"context"
	"fmt"

	"github.com/goplus/cellar/formula"
	"github.com/goplus/cellar/internal/ctxlog"
	"github.com/goplus/cellar/internal/vcs"
	"github.com/goplus/cellar/pkgs/version"
	"github.com/spf13/cobra"
)

var livecheckCmd = &cobra.Command{
	Use:   "livecheck formula...",
	Short: "Compare formula versions with the newest upstream release",
	Long: `Livecheck lists the tags of each formula's head repository and reports
the newest release tag next to the version the formula provides.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(cmd)
		defer s.close()
		for _, arg := range args {
			f, err := s.formula(arg)
			if err != nil {
				return err
			}
			r, err := livecheck(cmd.Context(), s.git, f)
			if err != nil {
				return fmt.Errorf("livecheck %s: %w", f.Name(), err)
			}
			line := fmt.Sprintf("%s: %s ==> %s", f.Name(), f.Version(), r.Latest)
			if r.Outdated {
				line = warningStyle.Render(line)
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(livecheckCmd)
}

type livecheckResult struct {
	Tag      string
	Latest   string
	Outdated bool
}

// livecheck finds the newest release tag in the head repository of f.
func livecheck(ctx context.Context, repo vcs.Repo, f *formula.Formula) (livecheckResult, error) {
	if f.Head() == "" {
		return livecheckResult{}, fmt.Errorf("%s has no head repository to check", f.Name())
	}
	tags, err := repo.Tags(ctx, f.Head())
	if err != nil {
		return livecheckResult{}, err
	}
	ctxlog.FromContext(ctx).Debug("listed tags", "formula", f.Name(), "count", len(tags))
	tag, latest, ok := version.LatestTag(tags)
	if !ok {
		return livecheckResult{}, fmt.Errorf("no release tags in %s", f.Head())
	}
	return livecheckResult{
		Tag:      tag,
		Latest:   latest,
		Outdated: version.Compare(latest, f.Version()) > 0,
	}, nil
}

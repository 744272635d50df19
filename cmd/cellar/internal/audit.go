package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/github/go-spdx/v2/spdxexp"
	"github.com/goplus/cellar/formula"
	"github.com/goplus/cellar/internal/deps"
	"github.com/goplus/cellar/pkgs/version"
	"github.com/spf13/cobra"
)

var errAudit = errors.New("audit failed")

var auditCmd = &cobra.Command{
	Use:   "audit [formula...]",
	Short: "Check formulas for common problems",
	Long: `Audit checks checksums, versions, URLs, licenses, descriptions and
dependencies of formulas. Without arguments every formula in the index is
audited.`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	s := newSession(cmd)
	defer s.close()
	names := args
	if len(names) == 0 {
		var err error
		if names, err = s.index.Names(); err != nil {
			return err
		}
	}
	bad := 0
	total := 0
	for _, name := range names {
		var problems []string
		f, err := s.formula(name)
		if err != nil {
			problems = []string{err.Error()}
		} else {
			problems = auditFormula(f, s.index)
		}
		if len(problems) == 0 {
			continue
		}
		bad++
		total += len(problems)
		fmt.Fprintln(cmd.OutOrStdout(), errorStyle.Render(name)+":")
		for _, p := range problems {
			fmt.Fprintf(cmd.OutOrStdout(), "  * %s\n", p)
		}
	}
	if bad > 0 {
		return fmt.Errorf("%w: %d problems in %d formulas", errAudit, total, bad)
	}
	return nil
}

// auditFormula returns the problems found in f.
func auditFormula(f *formula.Formula, src deps.Source) []string {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	problems = append(problems, auditDesc(f)...)

	if lic := f.License(); lic == "" {
		report("license is not set")
	} else if ok, invalid := spdxexp.ValidateLicenses([]string{lic}); !ok {
		report("license %q is not a valid SPDX expression (%s)", lic, strings.Join(invalid, ", "))
	}

	if strings.HasPrefix(f.Homepage(), "http://") {
		report("homepage should use https: %s", f.Homepage())
	}

	if f.System() != nil {
		return problems
	}

	if f.HasStable() {
		if err := f.Checksum().Validate(); err != nil {
			report("checksum: %v", err)
		}
		if !strings.HasPrefix(f.URL(), "https://") {
			report("url should use https: %s", f.URL())
		}
		if detected := version.Detect(f.URL()); detected == "" {
			report("version %s cannot be detected from the url", f.Version())
		} else if detected != f.Version() {
			report("version %s differs from %s detected in the url", f.Version(), detected)
		}
	}
	if head := f.Head(); head != "" {
		if u, err := url.Parse(head); err != nil || (u.Scheme != "https" && u.Scheme != "git") {
			report("head should be an https or git url: %s", head)
		}
	}

	if f.Test() == nil {
		report("no test block")
	}

	if _, err := deps.Resolve(src, f, deps.Options{FromSource: true, Test: true}); err != nil {
		report("dependencies: %v", err)
	}
	return problems
}

func auditDesc(f *formula.Formula) []string {
	desc := f.Desc()
	var problems []string
	lower := strings.ToLower(desc)
	for _, article := range []string{"a ", "an ", "the "} {
		if strings.HasPrefix(lower, article) {
			problems = append(problems, fmt.Sprintf("desc should not start with %q", strings.TrimSpace(desc[:len(article)])))
			break
		}
	}
	if strings.HasPrefix(lower, strings.ToLower(f.Name())+" ") {
		problems = append(problems, "desc should not start with the formula name")
	}
	if strings.HasSuffix(desc, ".") {
		problems = append(problems, "desc should not end with a full stop")
	}
	if r := []rune(desc); len(r) > 0 && unicode.IsLower(r[0]) {
		problems = append(problems, "desc should start with a capital letter")
	}
	if n := len([]rune(desc)); n > 80 {
		problems = append(problems, fmt.Sprintf("desc is %d characters long, keep it under 80", n))
	}
	return problems
}

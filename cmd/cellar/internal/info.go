package internal

import (
	"fmt"
	"io"
	"strings"

	"github.com/goplus/cellar/formula"
	"github.com/goplus/cellar/internal/cellar"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info formula",
	Short: "Describe a formula and its installed kegs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s := newSession(cmd)
		defer s.close()
		f, err := s.formula(args[0])
		if err != nil {
			return err
		}
		kegs, err := s.inst.Cellar.Installed(f.Name())
		if err != nil {
			return err
		}
		renderInfo(cmd.OutOrStdout(), f, kegs, s.inst.Cellar.Linked)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func renderInfo(w io.Writer, f *formula.Formula, kegs []cellar.Keg, linked func(cellar.Keg) bool) {
	title := f.Name()
	switch {
	case f.System() != nil:
		title += " (system)"
	case f.HasStable():
		title += ": stable " + f.PkgVersion()
		if f.Head() != "" {
			title += ", HEAD"
		}
	default:
		title += ": HEAD"
	}
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w, f.Desc())
	fmt.Fprintln(w, mutedStyle.Render(f.Homepage()))
	if f.License() != "" {
		fmt.Fprintln(w, "License: "+f.License())
	}

	fmt.Fprintln(w)
	if len(kegs) == 0 {
		fmt.Fprintln(w, warningStyle.Render("Not installed"))
	}
	for _, k := range kegs {
		line := k.Path
		if linked(k) {
			line += " " + successStyle.Render("*")
		}
		if r, err := k.Receipt(); err == nil {
			line += mutedStyle.Render(" (built " + r.Time.Format("2006-01-02") + ")")
		}
		fmt.Fprintln(w, line)
	}

	if sys := f.System(); sys != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Provided by"))
		if sys.PkgConfig != "" {
			fmt.Fprintln(w, "pkg-config module "+sys.PkgConfig)
		}
		if sys.Command != "" {
			fmt.Fprintln(w, "command "+sys.Command)
		}
	}

	var build, runtime, other []string
	for _, d := range f.Dependencies() {
		switch {
		case d.Has(formula.Build):
			build = append(build, d.Name)
		case d.Runtime() && len(d.Tags) == 0:
			runtime = append(runtime, d.Name)
		default:
			other = append(other, d.String())
		}
	}
	if len(build)+len(runtime)+len(other) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Dependencies"))
		printList(w, "Build", build)
		printList(w, "Required", runtime)
		printList(w, "Other", other)
	}
	if reqs := f.Requirements(); len(reqs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Requirements"))
		names := make([]string, len(reqs))
		for i, r := range reqs {
			names[i] = r.Name
		}
		printList(w, "Required", names)
	}
}

func printList(w io.Writer, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s: %s\n", label, strings.Join(items, ", "))
}

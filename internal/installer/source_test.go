package installer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDeclaredVersion(t *testing.T) {
	tests := []struct {
		file string
		src  string
		want string
	}{
		{"configure.ac", "AC_PREREQ([2.69])\nAC_INIT([xcowsay],[1.6],[nick@cakesoft.co.uk])\n", "1.6"},
		{"configure.ac", "AC_INIT([xcowsay], [1.5-dev])", "1.5-dev"},
		{"configure.ac", "AC_INIT(xcowsay, 1.4)", "1.4"},
		{"configure.in", "AC_INIT([cow],[0.9])", "0.9"},
		{"configure.ac", "AC_INIT([cow], m4_esyscmd([./git-version-gen]))", ""},
		{"configure.ac", "dnl no init here\n", ""},
		{"Makefile", "VERSION = 1.4\n", ""},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, tt.file), []byte(tt.src), 0644); err != nil {
			t.Fatal(err)
		}
		if got := declaredVersion(dir); got != tt.want {
			t.Errorf("declaredVersion(%s: %q) = %q, want %q", tt.file, tt.src, got, tt.want)
		}
	}
}

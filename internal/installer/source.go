package installer

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// acInit captures the version argument of AC_INIT, bracket-quoted or not.
var acInit = regexp.MustCompile(`AC_INIT\(\s*\[?[^,\]]*\]?\s*,\s*\[?([^\],)\s]+)`)

// declaredVersion returns the version the autoconf script of a source
// tree declares, or "" when it declares none that can be read statically.
func declaredVersion(src string) string {
	for _, name := range []string{"configure.ac", "configure.in"} {
		data, err := os.ReadFile(filepath.Join(src, name))
		if err != nil {
			continue
		}
		m := acInit.FindSubmatch(data)
		if m == nil {
			return ""
		}
		v := string(m[1])
		if strings.HasPrefix(v, "m4_") {
			// computed when autoconf runs
			return ""
		}
		return v
	}
	return ""
}

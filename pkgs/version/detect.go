// Package version detects package versions from source URLs and orders
// version strings and release tags.
package version

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

var archiveExts = []string{
	".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst",
	".tgz", ".tbz2", ".tbz", ".txz",
	".tar", ".zip",
}

var (
	// xcowsay-1.4, gtk+-3.24.41, foo_2.0b1
	stemVersion = regexp.MustCompile(`[-_]v?(\d+(?:\.\d+)*[a-z]?\d*)$`)
	// v1.4, 1.4.2
	tagVersion = regexp.MustCompile(`^v?(\d+(?:\.\d+)+[a-z]?\d*)$`)
)

// Detect returns the version implied by a source archive URL, or "" when
// none can be found. The archive base name is tried first, then the
// directory segments from the innermost outwards, so both
// ".../download/v1.4/xcowsay-1.4.tar.gz" and ".../archive/v1.4.tar.gz"
// yield "1.4".
func Detect(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	stem := TrimArchiveExt(path.Base(p))
	if m := stemVersion.FindStringSubmatch(stem); m != nil {
		return m[1]
	}
	if m := tagVersion.FindStringSubmatch(stem); m != nil {
		return m[1]
	}
	segs := strings.Split(path.Dir(p), "/")
	for i := len(segs) - 1; i >= 0; i-- {
		if m := tagVersion.FindStringSubmatch(segs[i]); m != nil {
			return m[1]
		}
	}
	return ""
}

// TrimArchiveExt strips a known archive extension from name.
func TrimArchiveExt(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range archiveExts {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// LatestTag returns the highest stable release among tags, ordered as
// semantic versions. Tags without a leading "v" are accepted. Pre-releases
// and tags that are not versions are ignored. The returned version has the
// "v" prefix removed; ok is false when no tag qualifies.
func LatestTag(tags []string) (tag, ver string, ok bool) {
	var best string
	for _, t := range tags {
		v := t
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		if !semver.IsValid(v) || semver.Prerelease(v) != "" {
			continue
		}
		if best == "" || semver.Compare(v, best) > 0 {
			best, tag = v, t
		}
	}
	if best == "" {
		return "", "", false
	}
	return tag, strings.TrimPrefix(tag, "v"), true
}

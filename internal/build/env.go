package build

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Env is the environment build steps run in: the inherited process
// environment plus the search paths of the kegs the formula depends on.
type Env struct {
	base      []string
	overrides map[string]string
}

// NewEnv returns an environment inheriting base, usually os.Environ().
func NewEnv(base []string) *Env {
	return &Env{base: base, overrides: make(map[string]string)}
}

// Set sets key to value for every step.
func (e *Env) Set(key, value string) {
	e.overrides[key] = value
}

// Get returns the effective value of key.
func (e *Env) Get(key string) string {
	if v, ok := e.overrides[key]; ok {
		return v
	}
	for i := len(e.base) - 1; i >= 0; i-- {
		if k, v, ok := strings.Cut(e.base[i], "="); ok && k == key {
			return v
		}
	}
	return ""
}

// Use adds the bin, include, lib and pkgconfig directories of an installed
// dependency keg to the search paths. Missing directories are skipped.
func (e *Env) Use(prefix string) {
	exists := func(p string) bool {
		_, err := os.Stat(p)
		return err == nil
	}
	bin := filepath.Join(prefix, "bin")
	include := filepath.Join(prefix, "include")
	lib := filepath.Join(prefix, "lib")

	if exists(bin) {
		e.prependPath("PATH", bin)
	}
	for _, pc := range []string{filepath.Join(lib, "pkgconfig"), filepath.Join(prefix, "share", "pkgconfig")} {
		if exists(pc) {
			e.prependPath("PKG_CONFIG_PATH", pc)
		}
	}
	if aclocal := filepath.Join(prefix, "share", "aclocal"); exists(aclocal) {
		e.prependPath("ACLOCAL_PATH", aclocal)
	}
	if runtime.GOOS == "windows" {
		if exists(include) {
			e.prependPath("INCLUDE", include)
		}
		if exists(lib) {
			e.prependPath("LIB", lib)
		}
		return
	}
	if exists(include) {
		e.appendFlag("CPPFLAGS", "-I"+include)
	}
	if exists(lib) {
		e.appendFlag("LDFLAGS", "-L"+lib)
	}
}

// Environ returns the environment as key=value pairs.
func (e *Env) Environ() []string {
	return mergeEnv(append([]string(nil), e.base...), e.overrides)
}

// mergeEnv returns base with every key in overrides replaced or appended.
func mergeEnv(base []string, overrides map[string]string) []string {
	idx := make(map[string]int, len(base))
	for i, kv := range base {
		if k, _, ok := strings.Cut(kv, "="); ok {
			idx[k] = i
		}
	}
	for k, v := range overrides {
		if i, ok := idx[k]; ok {
			base[i] = k + "=" + v
		} else {
			idx[k] = len(base)
			base = append(base, k+"="+v)
		}
	}
	return base
}

func (e *Env) prependPath(key, value string) {
	if cur := e.Get(key); cur != "" {
		value += string(os.PathListSeparator) + cur
	}
	e.Set(key, value)
}

func (e *Env) appendFlag(key, flag string) {
	if cur := e.Get(key); cur != "" {
		flag = cur + " " + flag
	}
	e.Set(key, flag)
}

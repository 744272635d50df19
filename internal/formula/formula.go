// Copyright 2024 The cellar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package formula loads formula files written in HCL.
package formula

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/cellar/formula"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// Ext is the file extension of formula files.
const Ext = ".hcl"

// hclFile is the top-level structure of a formula file.
type hclFile struct {
	Formulas []*hclFormula `hcl:"formula,block"`
}

type hclFormula struct {
	Name     string `hcl:"name,label"`
	Desc     string `hcl:"desc"`
	Homepage string `hcl:"homepage"`
	License  string `hcl:"license,optional"`
	URL      string `hcl:"url,optional"`
	SHA256   string `hcl:"sha256,optional"`
	Version  string `hcl:"version,optional"`
	Revision int    `hcl:"revision,optional"`
	Head     string `hcl:"head,optional"`

	Dependencies []*hclDependency  `hcl:"depends_on,block"`
	Requirements []*hclRequirement `hcl:"requires,block"`
	Install      *hclInstall       `hcl:"install,block"`
	Test         *hclTest          `hcl:"test,block"`
	System       *hclProbe         `hcl:"system,block"`
}

type hclProbe struct {
	Command   string `hcl:"command,optional"`
	PkgConfig string `hcl:"pkg_config,optional"`
}

type hclDependency struct {
	Name string   `hcl:"name,label"`
	Tags []string `hcl:"tags,optional"`
}

type hclRequirement struct {
	Name      string `hcl:"name,label"`
	Command   string `hcl:"command,optional"`
	PkgConfig string `hcl:"pkg_config,optional"`
}

type hclInstall struct {
	Steps []*hclStep `hcl:"step,block"`
}

// Step and test expressions stay unevaluated until the keg prefix is known.
type hclStep struct {
	When  string         `hcl:"when,optional"`
	Args  *hcl.Attribute `hcl:"args,optional"`
	Shell *hcl.Attribute `hcl:"shell,optional"`
}

type hclTest struct {
	Run   *hcl.Attribute `hcl:"run"`
	Match *hcl.Attribute `hcl:"match,optional"`
}

// Parse decodes the formula in src. filename is used in diagnostics only.
// The file must declare exactly one formula block.
func Parse(filename string, src []byte) (*formula.Formula, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse formula %s: %w", filename, diags)
	}
	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode formula %s: %w", filename, diags)
	}
	if len(parsed.Formulas) != 1 {
		return nil, fmt.Errorf("failed to load formula %s: want exactly one formula block, got %d", filename, len(parsed.Formulas))
	}
	return parsed.Formulas[0].toFormula()
}

func (h *hclFormula) toFormula() (*formula.Formula, error) {
	spec := formula.Spec{
		Name:     h.Name,
		Desc:     h.Desc,
		Homepage: h.Homepage,
		License:  h.License,
		URL:      h.URL,
		Version:  h.Version,
		Revision: h.Revision,
		Head:     h.Head,
	}
	if h.SHA256 != "" {
		spec.Checksum = formula.SHA256(h.SHA256)
	}
	for _, d := range h.Dependencies {
		dep := formula.Dependency{Name: d.Name}
		for _, t := range d.Tags {
			dep.Tags = append(dep.Tags, formula.Tag(t))
		}
		spec.Dependencies = append(spec.Dependencies, dep)
	}
	for _, r := range h.Requirements {
		spec.Requirements = append(spec.Requirements, formula.Requirement{
			Name:      r.Name,
			Command:   r.Command,
			PkgConfig: r.PkgConfig,
		})
	}
	if h.Install != nil {
		for _, s := range h.Install.Steps {
			spec.Install = append(spec.Install, formula.NewStep(formula.When(s.When), exprOf(s.Args), exprOf(s.Shell)))
		}
	}
	if h.Test != nil {
		spec.Test = formula.NewTest(exprOf(h.Test.Run), exprOf(h.Test.Match))
	}
	if h.System != nil {
		spec.System = &formula.Requirement{
			Name:      h.Name,
			Command:   h.System.Command,
			PkgConfig: h.System.PkgConfig,
		}
	}
	return formula.New(spec)
}

func exprOf(attr *hcl.Attribute) hcl.Expression {
	if attr == nil {
		return nil
	}
	return attr.Expr
}

// LoadFS loads the formula at path from fsys.
// This allows loading formulas from embedded or synced indexes.
func LoadFS(fsys fs.FS, path string) (*formula.Formula, error) {
	src, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(path, src)
	if err != nil {
		return nil, err
	}
	if want := strings.TrimSuffix(filepath.Base(path), Ext); f.Name() != want {
		return nil, fmt.Errorf("failed to load formula %s: declares %q, want %q", path, f.Name(), want)
	}
	return f, nil
}

// Load loads a formula file from the local filesystem.
func Load(path string) (*formula.Formula, error) {
	return LoadFS(os.DirFS(filepath.Dir(path)), filepath.Base(path))
}

// Package formulas embeds the formulas that ship with cellar.
package formulas

import "embed"

// FS holds one <name>.hcl file per builtin formula.
//
//go:embed *.hcl
var FS embed.FS

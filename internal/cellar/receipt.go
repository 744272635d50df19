package cellar

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// ReceiptFile is written into a keg once its installation completed.
const ReceiptFile = "INSTALL_RECEIPT.json"

// Receipt records how a keg was installed. SourceVersion is the version a
// head checkout declares for itself, when it declares one.
type Receipt struct {
	Name                string       `json:"name"`
	Version             string       `json:"version"`
	Revision            int          `json:"revision,omitempty"`
	Head                bool         `json:"head,omitempty"`
	SourceVersion       string       `json:"source_version,omitempty"`
	PURL                string       `json:"purl,omitempty"`
	Source              Source       `json:"source"`
	RuntimeDependencies []RuntimeDep `json:"runtime_dependencies,omitempty"`
	InstalledOnRequest  bool         `json:"installed_on_request"`
	Time                time.Time    `json:"time"`
}

// Source describes where the installed code came from.
type Source struct {
	URL      string `json:"url"`
	Checksum string `json:"checksum,omitempty"`
	Commit   string `json:"commit,omitempty"`
}

// RuntimeDep is a dependency the keg needs at run time.
type RuntimeDep struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DependsOn reports whether r lists name as a runtime dependency.
func (r *Receipt) DependsOn(name string) bool {
	for _, d := range r.RuntimeDependencies {
		if d.Name == name {
			return true
		}
	}
	return false
}

// WriteReceipt stores r in the keg at dir.
func WriteReceipt(dir string, r *Receipt) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, ReceiptFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, ReceiptFile))
}

// ReadReceipt loads the receipt of the keg at dir.
func ReadReceipt(dir string) (*Receipt, error) {
	data, err := os.ReadFile(filepath.Join(dir, ReceiptFile))
	if err != nil {
		return nil, err
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

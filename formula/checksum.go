package formula

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// SHA256Algo is the only digest algorithm formulas may declare.
const SHA256Algo = "sha256"

// Checksum is the expected digest of a source archive.
type Checksum struct {
	Algo   string
	Digest string // lowercase hex
}

// SHA256 returns a sha256 checksum for the given hex digest.
func SHA256(digest string) Checksum {
	return Checksum{Algo: SHA256Algo, Digest: strings.ToLower(digest)}
}

// IsZero reports whether no checksum was declared.
func (c Checksum) IsZero() bool {
	return c.Algo == "" && c.Digest == ""
}

// Validate checks that the digest is well formed for its algorithm.
// A sha256 digest must be exactly 64 hex characters.
func (c Checksum) Validate() error {
	if c.IsZero() {
		return fmt.Errorf("checksum is required")
	}
	if c.Algo != SHA256Algo {
		return fmt.Errorf("unsupported checksum algorithm %q", c.Algo)
	}
	if len(c.Digest) != hex.EncodedLen(32) {
		return fmt.Errorf("sha256 digest has %d hex characters, want 64", len(c.Digest))
	}
	if _, err := hex.DecodeString(c.Digest); err != nil {
		return fmt.Errorf("sha256 digest is not hex: %w", err)
	}
	return nil
}

// Matches reports whether sum, the raw digest of some content, equals c.
func (c Checksum) Matches(sum []byte) bool {
	return hex.EncodeToString(sum) == strings.ToLower(c.Digest)
}

func (c Checksum) String() string {
	return c.Algo + ":" + c.Digest
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Classification is derived from an error and its context; it is never stored on its own.
type Classification struct {
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Fingerprint []string `json:"fingerprint"`
}

// Key returns a stable grouping key for the fingerprint.
func (c Classification) Key() string {
	return FingerprintKey(c.Fingerprint)
}

// FingerprintKey hashes an ordered fingerprint into a short hex key.
func FingerprintKey(fingerprint []string) string {
	sum := sha256.Sum256([]byte(strings.Join(fingerprint, "\x1f")))
	return hex.EncodeToString(sum[:8])
}

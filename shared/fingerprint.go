package shared

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the cache/search key for a piece of submitted content.
// Content is normalized (trimmed, lower-cased) before hashing so submissions
// differing only in case or surrounding whitespace collide intentionally.
func Fingerprint(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

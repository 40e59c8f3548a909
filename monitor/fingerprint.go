package monitor

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint maps extracted text to a fixed-width hex digest for cheap
// equality comparison. Whitespace runs are collapsed first so that layout
// churn (reflowed markup, indentation changes) does not register as a
// content change.
func Fingerprint(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// shortFingerprint truncates a fingerprint for log output.
func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

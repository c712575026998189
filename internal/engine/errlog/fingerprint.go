package errlog

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/vietddude/resilience/internal/core/domain"
)

var (
	uuidRun  = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	hexRun   = regexp.MustCompile(`\b[0-9a-fA-F]{8,}\b`)
	digitRun = regexp.MustCompile(`\d+`)
)

// normalizeMessage collapses variable parts (IDs, counters, hashes) so
// occurrences of the same failure share a message shape.
func normalizeMessage(msg string) string {
	out := strings.ToLower(msg)
	out = uuidRun.ReplaceAllString(out, "#")
	out = hexRun.ReplaceAllString(out, "#")
	out = digitRun.ReplaceAllString(out, "#")
	return out
}

// Fingerprint is a stable hash of (type, code, normalized message)
// identifying "the same" error for deduplication.
func Fingerprint(e domain.SanitizedError) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(e.Type))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(e.Code))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(normalizeMessage(e.Message)))
	return fmt.Sprintf("%016x", h.Sum64())
}

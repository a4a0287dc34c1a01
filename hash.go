package harvest

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// NormalizeContent prepares content for hashing: Unicode NFKC, runs of
// whitespace collapsed to a single space, surrounding whitespace trimmed.
func NormalizeContent(content string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(content)), " ")
}

// ContentHash returns the xxhash64 hex digest of the normalized content.
// Reprints of the same article under different URLs hash equal.
func ContentHash(content string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(NormalizeContent(content)))
}

package remote

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// EncodeText replaces every non-ASCII rune in a text field with its HTML
// decimal numeric character reference: the remote rejects non-ASCII
// bodies under the form-urlencoded content-type this client uses. Input is
// first normalized to NFC so a combining-mark sequence collapses to the
// single precomposed code point a human-typed title would produce, before
// being split into individual references.
//
// Exported so callers that persist what was actually transmitted (rather
// than the raw input) can reproduce the same encoding.
func EncodeText(input string) string {
	normalized := norm.NFC.String(input)

	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if r <= 0x7F {
			b.WriteRune(r)
			continue
		}
		b.WriteString("&#")
		b.WriteString(strconv.Itoa(int(r)))
		b.WriteString(";")
	}
	return b.String()
}

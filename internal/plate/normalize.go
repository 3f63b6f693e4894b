// Package plate turns raw OCR readings into trusted license-plate strings.
//
// It holds the two pure decision steps of the recognition pipeline:
//   - NormalizeAndFix validates a single reading and applies the fixed
//     confusable-character correction when the reading is a near miss.
//   - PickBest ranks the candidate readings produced by a recognizer and
//     selects the most plate-like one.
//
// Nothing in this package touches image data or persisted state, so every
// function is deterministic and safe for concurrent use.
package plate

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MinLength and MaxLength bound the length of an accepted plate.
const (
	MinLength = 5
	MaxLength = 9
)

// pattern is the acceptance pattern for a normalized plate.
var pattern = regexp.MustCompile(`^[A-Z0-9]{5,9}$`)

// confusables maps characters OCR commonly reads in place of digits.
// The substitution is one-way and applied to the whole string at once.
var confusables = strings.NewReplacer(
	"O", "0",
	"I", "1",
	"Z", "2",
	"S", "5",
	"B", "8",
)

// Normalize uppercases raw using full Unicode case mapping and drops every
// character outside [A-Z0-9]. The result may be empty.
func Normalize(raw string) string {
	// cases.Caser is stateful; build one per call.
	up := cases.Upper(language.Und).String(raw)

	var b strings.Builder
	b.Grow(len(up))
	for i := 0; i < len(up); i++ {
		ch := up[i]
		if (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// Valid reports whether s already satisfies the plate acceptance pattern.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

// NormalizeAndFix returns the trusted plate for raw, or ok=false when no plate
// can be recovered.
//
// The normalized text is returned as-is when it matches the acceptance
// pattern. Otherwise the confusable substitution is applied once and the
// result re-tested. No other correction is attempted.
func NormalizeAndFix(raw string) (p string, ok bool) {
	t := Normalize(raw)
	if Valid(t) {
		return t, true
	}
	fixed := confusables.Replace(t)
	if Valid(fixed) {
		return fixed, true
	}
	return "", false
}

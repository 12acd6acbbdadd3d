// Package phone normalizes raw recipient input into canonical digits-only,
// country-code-prefixed numbers. Country heuristics are pluggable: the
// processor never assumes a region, it is handed one.
package phone

import "strings"

// Region validates and canonicalizes a digits-only candidate for one
// numbering plan. ok=false discards the candidate.
type Region interface {
	Normalize(digits string) (canonical string, ok bool)
}

// Digits strips every non-digit rune from s.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize canonicalizes one raw candidate under the given region.
func Normalize(raw string, region Region) (string, bool) {
	digits := Digits(raw)
	if len(digits) < 10 || len(digits) > 15 {
		return "", false
	}
	return region.Normalize(digits)
}

// NormalizeList validates every candidate and deduplicates the result while
// preserving first-seen order. One attempt per unique number regardless of
// input repetition.
func NormalizeList(raw []string, region Region) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, candidate := range raw {
		canonical, ok := Normalize(candidate, region)
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

// Brazil implements Region for the Brazilian numbering plan (country code 55,
// two-digit area code, 8-digit landline or 9-digit mobile).
type Brazil struct{}

// Normalize prefixes the country code when missing and accepts 10-13 digit
// canonical forms. It deliberately does not guess at the mobile ninth digit:
// rewriting numbers was a real source of silent misdelivery in the system
// this replaces.
func (Brazil) Normalize(digits string) (string, bool) {
	// Already has the country code.
	if strings.HasPrefix(digits, "55") && len(digits) >= 12 && len(digits) <= 13 {
		return digits, true
	}
	// National format: DDD + 8 or 9 digit subscriber number.
	if len(digits) == 10 || len(digits) == 11 {
		return "55" + digits, true
	}
	return "", false
}

// International accepts any plausible E.164-length number unchanged, for
// campaigns whose lists are already canonical.
type International struct{}

func (International) Normalize(digits string) (string, bool) {
	if len(digits) < 10 || len(digits) > 15 {
		return "", false
	}
	return digits, true
}

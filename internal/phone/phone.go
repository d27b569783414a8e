// Package phone normalizes user-entered and transport-supplied phone strings
// into a canonical (country code, subscriber number) pair. The split is
// heuristic: it handles the numbering plans in the prefix table plus a
// best-effort fallback, and is deterministic for equivalent inputs. It is not
// an authoritative parser for every real-world plan.
package phone

import (
	"sort"
	"strings"
)

// Number is a canonical phone address.
type Number struct {
	CountryCode string
	Subscriber  string
}

// Address returns the canonical address string used as the join key across
// messages and registrations.
func (n Number) Address() string {
	return n.CountryCode + n.Subscriber
}

// Normalizer splits raw phone strings using a configured prefix table.
type Normalizer struct {
	defaultCountryCode string
	// prefix -> expected total digit count including the prefix
	prefixLengths    map[string]int
	prefixesByLength []string
}

// DefaultPrefixLengths covers the countries the service is deployed for.
var DefaultPrefixLengths = map[string]int{
	"91": 12,
	"1":  11,
	"44": 12,
	"86": 13,
}

// NewNormalizer creates a Normalizer. An empty defaultCountryCode falls back
// to "91"; a nil table falls back to DefaultPrefixLengths.
func NewNormalizer(defaultCountryCode string, prefixLengths map[string]int) *Normalizer {
	if defaultCountryCode == "" {
		defaultCountryCode = "91"
	}
	if prefixLengths == nil {
		prefixLengths = DefaultPrefixLengths
	}

	prefixes := make([]string, 0, len(prefixLengths))
	for p := range prefixLengths {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	return &Normalizer{
		defaultCountryCode: defaultCountryCode,
		prefixLengths:      prefixLengths,
		prefixesByLength:   prefixes,
	}
}

// Normalize converts an arbitrary phone string into a canonical Number.
//
// The digits are extracted first; then, in order: a bare 10-digit number gets
// the default country code; a number starting with a recognized prefix and
// matching that prefix's expected total length is split explicitly; anything
// longer than 10 digits treats the leading excess as the prefix; anything
// else is kept whole as the subscriber number with no prefix.
func (n *Normalizer) Normalize(raw string) Number {
	digits := stripNonDigits(raw)

	if len(digits) == 10 {
		return Number{CountryCode: n.defaultCountryCode, Subscriber: digits}
	}

	// Longest prefix wins so the table stays unambiguous if overlapping
	// entries (e.g. "1" and "1876") are ever configured.
	for _, prefix := range n.prefixesByLength {
		if strings.HasPrefix(digits, prefix) && len(digits) == n.prefixLengths[prefix] {
			return Number{CountryCode: prefix, Subscriber: digits[len(prefix):]}
		}
	}

	if len(digits) > 10 {
		split := len(digits) - 10
		return Number{CountryCode: digits[:split], Subscriber: digits[split:]}
	}

	return Number{Subscriber: digits}
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

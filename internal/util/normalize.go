// SPDX-FileCopyrightText: 2025 The wellhead authors
// SPDX-License-Identifier: Apache-2.0

package util

import (
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
)

// canonicalAbbreviations maps uppercased source tokens to their canonical
// display form. This table is shared by all source mappers; cross-state
// operator dedup relies on every source producing the same expansions.
var canonicalAbbreviations = map[string]string{
	"AMER":   "American",
	"BROS":   "Brothers",
	"CO":     "Co",
	"CORP":   "Corp",
	"DEV":    "Development",
	"ENGY":   "Energy",
	"EXPL":   "Exploration",
	"GAS":    "Gas",
	"INC":    "Inc",
	"INTL":   "International",
	"LLC":    "LLC",
	"LLP":    "LLP",
	"LP":     "LP",
	"LTD":    "Ltd",
	"MGMT":   "Management",
	"MIN":    "Minerals",
	"MTN":    "Mountain",
	"NAT":    "Natural",
	"NATL":   "National",
	"OIL":    "Oil",
	"OPER":   "Operating",
	"OPERTG": "Operating",
	"OPR":    "Operating",
	"PET":    "Petroleum",
	"PETR":   "Petroleum",
	"PROD":   "Production",
	"PRODS":  "Products",
	"PRTNRS": "Partners",
	"PTNRS":  "Partners",
	"RES":    "Resources",
	"SVC":    "Services",
	"SVCS":   "Services",
	"US":     "US",
	"USA":    "USA",
	"VLY":    "Valley",
}

// CanonicalName converts a raw operator or well name from a source feed into
// its canonical display form: known abbreviations are expanded, tokens of up
// to two characters stay uppercase, everything else is title-cased.
func CanonicalName(raw string) string {
	fields := strings.Fields(raw)
	for idx, field := range fields {
		upper := strings.ToUpper(field)
		if expanded, exists := canonicalAbbreviations[upper]; exists {
			fields[idx] = expanded
			continue
		}
		runes := []rune(upper)
		if len(runes) <= 2 {
			fields[idx] = upper
			continue
		}
		fields[idx] = string(runes[0]) + strings.ToLower(string(runes[1:]))
	}
	return strings.Join(fields, " ")
}

// legalSuffixes are dropped by NormalizeForMatching. They carry no identity:
// "Pioneer Natural Resources" and "PIONEER NATURAL RESOURCES INC" are the
// same company.
var legalSuffixes = map[string]bool{
	"co":          true,
	"company":     true,
	"corp":        true,
	"corporation": true,
	"inc":         true,
	"llc":         true,
	"llp":         true,
	"lp":          true,
	"ltd":         true,
}

// NormalizeForMatching reduces a name to the lossy form used for equality and
// fuzzy comparisons during dedup and linking. The result is lowercase with
// legal suffixes and all non-alphanumerics removed. It is never shown to
// users, and it is idempotent.
func NormalizeForMatching(raw string) string {
	lower := strings.ToLower(raw)
	tokens := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var kept []string
	for _, token := range tokens {
		if !legalSuffixes[token] {
			kept = append(kept, token)
		}
	}
	if len(kept) == 0 {
		// a name made up entirely of suffix words ("Co Inc") keeps all tokens
		// rather than collapsing to the empty string
		kept = tokens
	}
	return strings.Join(kept, "")
}

// BoundedLevenshtein reports whether the edit distance between two strings is
// at most maxDist. Strings whose lengths differ by more than maxDist cannot
// be within the bound, so the matrix is never computed for them.
func BoundedLevenshtein(a, b string, maxDist int) (distance int, ok bool) {
	diff := len(a) - len(b)
	if diff < 0 {
		diff = -diff
	}
	if diff > maxDist {
		return 0, false
	}
	distance = levenshtein.Distance(a, b, nil)
	return distance, distance <= maxDist
}

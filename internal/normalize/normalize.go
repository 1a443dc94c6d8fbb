// Package normalize holds the deterministic text canonicalization shared
// by the identifier index, the candidate retriever and the arbiter. All
// comparisons in the engine go through these functions so that the same
// vendor spelled differently lands on the same normalized form.
package normalize

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Legal entity suffixes stripped from the tail of a name. Lowercased,
// already punctuation-free.
var legalSuffixes = map[string]struct{}{
	"inc": {}, "incorporated": {}, "llc": {}, "ltd": {}, "limited": {},
	"corp": {}, "corporation": {}, "co": {}, "company": {}, "plc": {},
	"gmbh": {}, "ag": {}, "sa": {}, "srl": {}, "sarl": {}, "bv": {},
	"pty": {}, "oy": {}, "ab": {}, "as": {}, "kk": {},
}

// Placeholder values OCR extraction emits when an identifier field is
// present on the invoice but unreadable.
var taxIDSentinels = map[string]struct{}{
	"UNKNOWN": {}, "N/A": {}, "NA": {}, "NONE": {}, "NULL": {},
}

// Consumer mail providers. A domain in this set must never count as
// matching evidence on its own.
var genericDomains = map[string]struct{}{
	"gmail.com": {}, "googlemail.com": {}, "yahoo.com": {}, "yahoo.co.uk": {},
	"hotmail.com": {}, "outlook.com": {}, "live.com": {}, "msn.com": {},
	"aol.com": {}, "icloud.com": {}, "me.com": {}, "protonmail.com": {},
	"proton.me": {}, "gmx.com": {}, "gmx.de": {}, "mail.com": {},
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and strips combining diacritical marks, so that
// "Société" and "societe" compare equal.
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Name canonicalizes a vendor name for comparison: diacritic folding,
// punctuation removal, trailing legal-suffix stripping and whitespace
// collapse. "Acme Software, LLC" and "Acme Software LLC" both become
// "acme software".
func Name(s string) string {
	var b strings.Builder
	for _, r := range Fold(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '&':
			b.WriteString(" and ")
		default:
			b.WriteRune(' ')
		}
	}
	fields := strings.Fields(b.String())
	for len(fields) > 1 {
		if _, ok := legalSuffixes[fields[len(fields)-1]]; !ok {
			break
		}
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// TaxID normalizes a tax/registration identifier: whitespace, dashes and
// dots removed, uppercased. Empty and sentinel values normalize to "".
func TaxID(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ' ', '\t', '-', '.':
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	id := b.String()
	if _, ok := taxIDSentinels[id]; ok {
		return ""
	}
	return id
}

// Domain lowercases a domain and strips a leading "@" (as extracted from
// an email field) and a "www." prefix.
func Domain(s string) string {
	d := strings.ToLower(strings.TrimSpace(s))
	d = strings.TrimPrefix(d, "@")
	d = strings.TrimPrefix(d, "www.")
	return d
}

// GenericDomain reports whether d is a consumer mail provider domain.
func GenericDomain(d string) bool {
	_, ok := genericDomains[Domain(d)]
	return ok
}

// Similarity is a levenshtein ratio in [0,1] over canonicalized names.
// 1 means the canonical forms are identical.
func Similarity(a, b string) float64 {
	na, nb := Name(a), Name(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	dist := levenshtein.ComputeDistance(na, nb)
	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	return 1 - float64(dist)/float64(maxLen)
}

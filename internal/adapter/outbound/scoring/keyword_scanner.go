// Package scoring provides the built-in content scanning and candidate
// scoring backends. Both are deterministic heuristics: they exercise the
// whole batch pipeline without external model calls, and real backends can
// replace them behind the same ports.
package scoring

import (
	"context"
	"strings"
	"unicode"

	"github.com/opennotes-ai/opennotes-sub006/internal/domain/valueobject"
)

const (
	// shoutingMinLength is the body length below which the uppercase
	// ratio heuristic stays silent; short bodies shout legitimately.
	shoutingMinLength = 50

	// shoutingRatio flags bodies whose letters are mostly uppercase.
	shoutingRatio = 0.7
)

// defaultFlagTerms are patterns common to promotional and scam content.
// Matching is case-insensitive on the whole body.
var defaultFlagTerms = []string{
	"buy now",
	"limited time offer",
	"click here",
	"free money",
	"crypto giveaway",
	"guaranteed returns",
	"dm me",
	"promo code",
}

// KeywordScanner flags candidate bodies by keyword and shape heuristics.
type KeywordScanner struct {
	terms []string
}

// NewKeywordScanner creates a scanner with the default term list.
func NewKeywordScanner() *KeywordScanner {
	return NewKeywordScannerWithTerms(defaultFlagTerms)
}

// NewKeywordScannerWithTerms creates a scanner with a custom term list.
// Terms are matched case-insensitively.
func NewKeywordScannerWithTerms(terms []string) *KeywordScanner {
	lowered := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			lowered = append(lowered, term)
		}
	}
	return &KeywordScanner{terms: lowered}
}

// Scan judges a candidate body. A verdict of flagged means the body matched
// a term or reads as shouting; it never returns an error, keeping the
// built-in backend infallible.
func (s *KeywordScanner) Scan(_ context.Context, body string) (valueobject.ScanVerdict, error) {
	lowered := strings.ToLower(body)
	for _, term := range s.terms {
		if strings.Contains(lowered, term) {
			return valueobject.ScanVerdictFlagged, nil
		}
	}

	if isShouting(body) {
		return valueobject.ScanVerdictFlagged, nil
	}

	return valueobject.ScanVerdictClear, nil
}

// isShouting reports whether the body is long enough to judge and is
// mostly uppercase letters.
func isShouting(body string) bool {
	letters := 0
	upper := 0
	for _, r := range body {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters < shoutingMinLength {
		return false
	}
	return float64(upper)/float64(letters) > shoutingRatio
}

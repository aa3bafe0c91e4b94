package domain

import (
	"strings"
	"unicode"
)

// minTokenLength drops stray punctuation and two-letter words before classification.
const minTokenLength = 3

// ExtractIndicators pulls every classifiable indicator out of bulk-pasted text.
// For example, "Check 1.2.3.4, evil[.]com" produces:
// - 1.2.3.4 (ipv4)
// - evil.com (domain, was_defanged)
//
// Tokens are defanged before classification and deduplicated on the fanged value,
// keeping the first occurrence and the input order.
func ExtractIndicators(text string) []IndicatorToken {
	lines := strings.Split(strings.TrimSpace(text), "\n")

	tokens := []IndicatorToken{}
	seen := make(map[string]struct{})

	for _, line := range lines {
		for _, part := range splitCandidates(strings.TrimSpace(line)) {
			part = strings.TrimSpace(part)
			if len(part) < minTokenLength {
				continue
			}

			canonical := Defang(part)
			iocType := Classify(canonical)
			if iocType == Unknown {
				continue
			}
			if _, dup := seen[canonical]; dup {
				continue
			}

			seen[canonical] = struct{}{}
			tokens = append(tokens, IndicatorToken{
				Value:       canonical,
				Type:        iocType,
				WasDefanged: canonical != part,
			})
		}
	}

	return tokens
}

// splitCandidates splits on runs of commas, semicolons and whitespace.
func splitCandidates(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
}

package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	currencyPattern   = regexp.MustCompile(`(?i)(?:[$€£]\s*(\d{1,3}(?:[\s,]\d{3})+(?:\.\d+)?|\d+(?:[.,]\d+)?)|(\d{1,3}(?:[\s,]\d{3})+(?:\.\d+)?|\d+(?:[.,]\d+)?)\s*(?:usd|dollars?|bucks|eur|euros?))`)
	budgetWordPattern = regexp.MustCompile(`(?i)budget(?:\s+of|\s+is|:)?\s*(\d{1,3}(?:[\s,]\d{3})+(?:\.\d+)?|\d+(?:[.,]\d+)?)`)
	numberPattern     = regexp.MustCompile(`(?:^|[^0-9.,])(\d{1,3}(?:[\s,]\d{3})+(?:\.\d+)?|\d+(?:[.,]\d+)?)`)

	thousandsDot   = regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`)
	thousandsComma = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)
)

// ParseAmount reads a single numeric token such as "1,200", "1 200", "1.200" or "19,99".
func ParseAmount(token string) (float64, bool) {
	norm := normalizeNumericToken(strings.TrimSpace(token))
	if norm == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CurrencyAmount returns the first amount in text that is marked as money:
// a currency symbol, a currency word, or a "budget" label. Bare numbers are
// only used when nothing else matches and skip is false for their span.
func CurrencyAmount(text string, skip func(start, end int) bool) (float64, bool) {
	text = strings.ReplaceAll(text, " ", " ")

	if m := currencyPattern.FindStringSubmatch(text); m != nil {
		token := m[1]
		if token == "" {
			token = m[2]
		}
		if v, ok := ParseAmount(token); ok {
			return v, true
		}
	}
	if m := budgetWordPattern.FindStringSubmatch(text); m != nil {
		if v, ok := ParseAmount(m[1]); ok {
			return v, true
		}
	}
	for _, idx := range numberPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := idx[2], idx[3]
		if skip != nil && skip(start, end) {
			continue
		}
		if v, ok := ParseAmount(text[start:end]); ok {
			return v, true
		}
	}
	return 0, false
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if thousandsDot.MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if thousandsComma.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}

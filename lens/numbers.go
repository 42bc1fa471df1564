package lens

import (
	"strconv"
	"strings"
)

// ParseNumber converts a user-typed number to float64, accepting both
// "1.000,50" and "1000.5" styles. Empty or unparseable input yields 0.
func ParseNumber(s string) float64 {
	v, ok := parseLocaleNumber(s)
	if !ok {
		return 0
	}
	return v
}

// ParseOptionalNumber is ParseNumber with "no value" for blank input
func ParseOptionalNumber(s string) *float64 {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	v := ParseNumber(s)
	return &v
}

// parseLocaleNumber normalizes thousands and decimal separators before parsing.
//   - both '.' and ',' present: dots are thousands separators, comma is the decimal
//   - only ',' present: commas become decimal points
//   - only '.' present and every group after the first has exactly three digits
//     (with a 1–3 digit lead): dots are thousands separators
func parseLocaleNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return 0, false
	}

	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case hasComma:
		s = strings.ReplaceAll(s, ",", ".")
	case hasDot:
		parts := strings.Split(s, ".")
		if len(parts) > 1 && len(parts[0]) >= 1 && len(parts[0]) <= 3 && allThreeDigitGroups(parts[1:]) {
			s = strings.Join(parts, "")
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		v = -v
	}
	return v, true
}

func allThreeDigitGroups(groups []string) bool {
	for _, g := range groups {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// parseCell parses a table cell. Machine-written values ("0.25", "1e3") are tried
// first so that a lone "1.500" in a numeric column is not read as fifteen hundred.
func parseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	return parseLocaleNumber(strings.TrimSuffix(s, "%"))
}

// hasDigit reports whether s contains at least one decimal digit
func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

// formatFloat renders v in the shortest form that round-trips
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

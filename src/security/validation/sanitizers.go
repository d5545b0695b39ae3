package validation

import (
	"strings"
	"unicode"
)

// SanitizeForFormulaInjection prefixes values starting with a formula
// character so spreadsheet software opening an exported CSV treats them
// as text. Fund names and activities are free text from statements, so
// they go through this on export.
func SanitizeForFormulaInjection(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) > 0 {
		switch rune(trimmed[0]) {
		case '=', '+', '-', '@', '\t', '\r':
			return "'" + s
		}
	}
	return s
}

// StripUnprintable removes non-printable characters, keeping common
// whitespace. Statement exports occasionally carry stray control bytes.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

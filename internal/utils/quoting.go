package utils

import (
	"strings"
)

// QuoteIdentifier quotes an identifier for the given SQL dialect, doubling
// any embedded quote character.
func QuoteIdentifier(name, dialect string) string {
	switch strings.ToLower(dialect) {
	case "mysql":
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		// postgres, sqlite dan fallback ANSI memakai double quotes
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// QuoteString renders a SQL string literal. MySQL's default sql_mode treats
// backslash as an escape character, so it is doubled there as well.
func QuoteString(s, dialect string) string {
	if strings.EqualFold(dialect, "mysql") {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

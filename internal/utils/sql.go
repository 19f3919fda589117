package utils // nolint:revive // utils is an acceptable name for internal utility package

import "strings"

// QuoteIdent returns a T-SQL bracket-quoted identifier with embedded closing
// brackets escaped. Example: My]Db -> [My]]Db]
func QuoteIdent(s string) string {
	replaced := strings.ReplaceAll(s, "]", "]]")
	return "[" + replaced + "]"
}

// QuoteLiteral returns a single-quoted SQL string literal with embedded quotes escaped.
func QuoteLiteral(s string) string {
	replaced := strings.ReplaceAll(s, "'", "''")
	return "'" + replaced + "'"
}

package storage

import "strings"

// sanitizeSearchTerm escapes SQLite LIKE wildcards so user input matches
// literally. Queries must declare ESCAPE '\'.
func sanitizeSearchTerm(term string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\", // Escape backslash first
		"%", "\\%",
		"_", "\\_",
	)
	return replacer.Replace(term)
}

package media

import (
	"regexp"
	"strings"
)

var reUnsafe = regexp.MustCompile(`[^a-zA-Z0-9._ -]+`)

// SanitizeName reduces a title or file name to a filesystem-safe basename.
// Path separators and shell-hostile characters are replaced, leading dots
// stripped, and the result bounded to a reasonable length.
func SanitizeName(name string) string {
	s := strings.TrimSpace(name)
	s = reUnsafe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "._ ")
	if s == "" {
		s = "untitled"
	}
	const maxLen = 120
	if len(s) > maxLen {
		s = strings.Trim(s[:maxLen], "._ ")
	}
	return s
}

package downloader

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// urlPattern accepts http(s) URLs with a domain name, localhost or an IPv4
// host, an optional port and an optional path.
var urlPattern = regexp.MustCompile(`(?i)^https?://` +
	`(?:(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+(?:[a-z]{2,63}\.?|[a-z0-9-]{2,}\.?)|` +
	`localhost|` +
	`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
	`(?::\d+)?` +
	`(?:/?|[/?]\S+)$`)

// ValidURL reports whether s, trimmed, looks like a fetchable web URL.
func ValidURL(s string) bool {
	return urlPattern.MatchString(strings.TrimSpace(s))
}

const maxFilenameBytes = 200

// SanitizeFilename makes title usable as a file name. Path separators and
// characters rejected by common filesystems become '_'; the rest of the
// title is kept as is.
func SanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r), unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	name := strings.Trim(b.String(), " .")
	for len(name) > maxFilenameBytes {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	name = strings.TrimRight(name, " .")
	if name == "" {
		return "untitled"
	}
	return name
}

package storage

import (
	"regexp"
	"strings"
)

var (
	unsafeFolderChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)
	unsafeFileChars   = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)
)

// sanitizeFolder keeps only alphanumerics, hyphens and underscores
func sanitizeFolder(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	return unsafeFolderChars.ReplaceAllString(name, "")
}

// sanitizeFileName drops directory components and unsafe characters,
// keeping the extension
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "..", "")
	name = unsafeFileChars.ReplaceAllString(name, "")
	return strings.TrimLeft(name, ".")
}

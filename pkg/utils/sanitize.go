package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

// --- Path Segment Sanitization ---
// Anything that is not a letter, digit, underscore, hyphen or space is dropped.
var disallowedSegmentChars = regexp.MustCompile(`[^\p{L}\p{N}_\- ]`)

// SanitizeSegment turns a scraped title into a filesystem-safe directory name.
// Titles made only of punctuation collapse to "untitled".
func SanitizeSegment(segment string) string {
	sanitized := disallowedSegmentChars.ReplaceAllString(segment, "")
	sanitized = strings.TrimSpace(sanitized)
	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}

// DestinationPath joins root with the sanitized blog, category and post titles.
// It does not touch the filesystem.
func DestinationPath(root, blogTitle, category, postTitle string) string {
	return filepath.Join(root, SanitizeSegment(blogTitle), SanitizeSegment(category), SanitizeSegment(postTitle))
}

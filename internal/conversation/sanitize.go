package conversation

import "regexp"

// maxNameLen is the longest speaker name the completion API accepts.
const maxNameLen = 64

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	nonWord       = regexp.MustCompile(`[^\w]`)
)

// SanitizeName turns a display name into a speaker identifier: whitespace
// runs become "_", everything outside [A-Za-z0-9_] is stripped, case is kept.
// SanitizeName(SanitizeName(s)) == SanitizeName(s).
func SanitizeName(name string) string {
	name = whitespaceRun.ReplaceAllString(name, "_")
	name = nonWord.ReplaceAllString(name, "")
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

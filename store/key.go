package store

import "regexp"

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeKey maps an externally supplied id to a key safe for file names,
// redis keys and primary keys. Every character outside [a-zA-Z0-9_-] becomes
// '_'. An empty id maps to "_".
func SanitizeKey(id string) string {
	if id == "" {
		return "_"
	}
	return unsafeKeyChars.ReplaceAllString(id, "_")
}

// Package keys builds and parses the colon-delimited composite keys used
// for every record, index and session in the backing store.
package keys

import "strings"

// Delimiter separates key segments.
const Delimiter = ":"

// Build joins segments with the delimiter, e.g. Build("chats", id) is
// "chats:<id>". Empty segments are the caller's problem.
func Build(segments ...string) string {
	return strings.Join(segments, Delimiter)
}

// Split is the inverse of Build.
func Split(key string) []string {
	return strings.Split(key, Delimiter)
}

// Prefix returns the scan prefix for every key below segments,
// e.g. Prefix("chats") is "chats:".
func Prefix(segments ...string) string {
	return Build(segments...) + Delimiter
}

// Record returns the primary key of a record in a collection.
func Record(collection, id string) string {
	return Build(collection, id)
}

// ValidID reports whether id can be the last segment of a primary key: it
// is non-empty and has no delimiter, so Record(c, id) cannot name a key of
// another shape.
func ValidID(id string) bool {
	return id != "" && !strings.Contains(id, Delimiter)
}

// ParseRecord splits a primary key into collection and id. Keys with more
// or fewer than two segments are not primary keys.
func ParseRecord(key string) (collection, id string, ok bool) {
	parts := Split(key)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

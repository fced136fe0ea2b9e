// Package contentid derives the content-addressed identifiers used as
// deduplication keys and remote object names.
//
// An id is the hex MD5 digest of the file bytes followed by the lowercased
// extension of the original name, e.g. "9e107d9d372bb6826bd81d3542a419d6.png".
// MD5 is used purely as a naming key, not as a security boundary.
package contentid

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
)

// Of returns the content id for data originally named name.
func Of(data []byte, name string) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]) + "." + Extension(name)
}

// Extension returns the lowercased text after the last dot of name.
// A name without a dot yields the whole lowercased name.
func Extension(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return strings.ToLower(name[i+1:])
	}
	return strings.ToLower(name)
}

var nonWord = regexp.MustCompile(`[\W_]+`)

// DisplayName collapses every run of non-word characters (and underscores)
// in name into a single space.
func DisplayName(name string) string {
	return nonWord.ReplaceAllString(name, " ")
}

// Valid reports whether id has the shape produced by Of.
func Valid(id string) bool {
	i := strings.IndexByte(id, '.')
	if i != hex.EncodedLen(md5.Size) {
		return false
	}
	if _, err := hex.DecodeString(id[:i]); err != nil {
		return false
	}
	ext := id[i+1:]
	return !strings.ContainsAny(ext, "/\\\x00") && ext != ".."
}

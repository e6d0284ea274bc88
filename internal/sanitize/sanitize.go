// Package sanitize cleans untrusted names before they reach storage keys,
// log fields or message subjects.
package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
	"unicode"
)

const (
	// MaxFilenameLength bounds stored upload filenames, in bytes.
	MaxFilenameLength = 255

	// HashSuffixLength is the length of the hash suffix added to truncated names.
	// Format: _<8-char-hash> = 9 characters total
	HashSuffixLength = 9

	// DefaultFilename is used when sanitization produces an empty result.
	DefaultFilename = "upload"
)

// Filename reduces a client-supplied filename to a safe base name.
//
// Rules applied:
//   - Drops any directory part, for both / and \ separators
//   - Removes control characters
//   - Trims surrounding spaces and dots
//   - Truncates to MaxFilenameLength with a hash suffix, keeping the extension
//   - Returns DefaultFilename if the result would be empty
//
// Examples:
//
//	"invoice.pdf"             -> "invoice.pdf"
//	"C:\\scans\\acme 01.pdf"  -> "acme 01.pdf"
//	"../../etc/passwd"        -> "passwd"
//	"" or ".."                -> "upload"
func Filename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, " .")

	if name == "" || name == "/" {
		return DefaultFilename
	}
	if len(name) > MaxFilenameLength {
		name = truncateWithHash(name, MaxFilenameLength)
	}
	return name
}

// truncateWithHash shortens s to max bytes, appending a hash of the original
// to keep distinct inputs distinct. A short extension is preserved.
//
// Format: <truncated>_<8-char-hash><ext>
func truncateWithHash(s string, max int) string {
	hash := sha256.Sum256([]byte(s))
	hashSuffix := "_" + hex.EncodeToString(hash[:])[:8]

	ext := path.Ext(s)
	if len(ext) > 16 {
		ext = ""
	}
	base := strings.TrimSuffix(s, ext)

	maxBase := max - HashSuffixLength - len(ext)
	base = truncateUTF8(base, maxBase)
	base = strings.TrimRight(base, "_ ")

	return base + hashSuffix + ext
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// SubjectToken makes s safe for use as a single NATS subject token.
// Separators, wildcards and whitespace become underscores.
//
// Examples:
//
//	"a.b"  -> "a_b"
//	"x > y" -> "x___y"
//	""     -> "_"
func SubjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>':
			return '_'
		}
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, s)
}

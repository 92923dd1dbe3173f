// Package sanitize produces filesystem-safe names from publication metadata.
package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// reservedChars are replaced with underscores: shell metacharacters plus
// everything Windows refuses in a path component.
const reservedChars = "~#%&*{}\\:<>?/`'\"|+"

// asciiFold strips combining marks after NFKD decomposition, so accented
// titles fold to their base letters instead of underscores.
var asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Dirname turns a publication title into a safe directory name.
//
// Subtitles introduced by a colon far into the title are cut off to keep
// directory names short; an early colon is part of the title proper and
// becomes a comma.
func Dirname(title string) string {
	if i := strings.IndexByte(title, ':'); i >= 0 {
		if i > 15 {
			title = title[:i]
		} else {
			title = strings.ReplaceAll(title, ":", ",")
		}
	}

	if folded, _, err := transform.String(asciiFold, title); err == nil {
		title = folded
	}

	title = strings.Map(func(r rune) rune {
		if strings.ContainsRune(reservedChars, r) {
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, title)

	title = strings.TrimSpace(title)
	if title == "" {
		return "untitled"
	}
	return title
}

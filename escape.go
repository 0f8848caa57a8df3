package ygggo_dbconn

import "strings"

var escapeReplacements = map[byte]string{
	'\\':   `\\`,
	0:      `\0`,
	'\n':   `\n`,
	'\r':   `\r`,
	'\'':   `\'`,
	'"':    `\"`,
	'\x1a': `\Z`,
}

// EscapeString escapes s for embedding inside a quoted SQL literal.
// Scanning stops at the first NUL byte, which ends the string as far as
// the server protocol is concerned.
func EscapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 0 {
			break
		}
		if r, ok := escapeReplacements[c]; ok {
			b.WriteString(r)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

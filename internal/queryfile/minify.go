package queryfile

import "strings"

// Minify removes comments and collapses whitespace outside of quoted text.
// Single-quoted strings, double-quoted identifiers and dollar-quoted bodies
// are copied unchanged.
func Minify(sql string) string {
	var sb strings.Builder
	space := false
	emit := func(s string) {
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteString(s)
	}

	for i := 0; i < len(sql); {
		c := sql[i]
		switch {
		case c == '-' && strings.HasPrefix(sql[i:], "--"):
			end := strings.IndexByte(sql[i:], '\n')
			if end < 0 {
				i = len(sql)
			} else {
				i += end
			}
			space = true
		case c == '/' && strings.HasPrefix(sql[i:], "/*"):
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				i = len(sql)
			} else {
				i += end + 4
			}
			space = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			space = true
			i++
		case c == '\'' || c == '"':
			end := quotedEnd(sql, i, c)
			emit(sql[i:end])
			i = end
		case c == '$':
			if tag, ok := dollarTag(sql[i:]); ok {
				end := strings.Index(sql[i+len(tag):], tag)
				if end < 0 {
					emit(sql[i:])
					i = len(sql)
				} else {
					stop := i + len(tag) + end + len(tag)
					emit(sql[i:stop])
					i = stop
				}
				continue
			}
			emit("$")
			i++
		default:
			emit(sql[i : i+1])
			i++
		}
	}
	return sb.String()
}

// quotedEnd returns the index just past the quote that closes the literal
// opened at start. A doubled quote is an escaped quote.
func quotedEnd(s string, start int, q byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

// dollarTag reports the $tag$ opener at the start of s.
func dollarTag(s string) (string, bool) {
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '$' {
			return s[:i+1], true
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return "", false
		}
	}
	return "", false
}

package schema

import "strings"

// SplitStatements cuts a SQL script into individual statements on
// semicolons, ignoring semicolons that appear inside single-quoted
// strings, line comments and dollar-quoted bodies ($$ ... $$ or
// $tag$ ... $tag$). plpgsql function bodies make the naive split wrong,
// which is the whole reason this exists.
func SplitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
		dollarTag  string // non-empty while inside a dollar-quoted body
		dollarMin  int    // smallest current length at which the closer may match
		inString   bool
		inComment  bool
	)

	for i := 0; i < len(script); i++ {
		c := script[i]

		if inComment {
			current.WriteByte(c)
			if c == '\n' {
				inComment = false
			}
			continue
		}

		if dollarTag != "" {
			current.WriteByte(c)
			// The length guard keeps a body that opens with '$' (e.g. $$$x$$)
			// from matching the opener's own trailing dollars.
			if c == '$' && current.Len() >= dollarMin && strings.HasSuffix(current.String(), dollarTag) {
				dollarTag = ""
			}
			continue
		}

		if inString {
			current.WriteByte(c)
			if c == '\'' {
				// '' is an escaped quote, not a terminator.
				if i+1 < len(script) && script[i+1] == '\'' {
					current.WriteByte(script[i+1])
					i++
					continue
				}
				inString = false
			}
			continue
		}

		switch {
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			inComment = true
			current.WriteByte(c)

		case c == '\'':
			inString = true
			current.WriteByte(c)

		case c == '$':
			if tag, ok := dollarQuoteAt(script, i); ok {
				dollarTag = tag
				current.WriteString(tag)
				dollarMin = current.Len() + len(tag)
				i += len(tag) - 1
				continue
			}
			current.WriteByte(c)

		case c == ';':
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()

		default:
			current.WriteByte(c)
		}
	}

	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

// dollarQuoteAt reports whether script[i:] starts a dollar-quote opener
// like $$ or $body$, returning the full tag including both dollar signs.
func dollarQuoteAt(script string, i int) (string, bool) {
	if script[i] != '$' {
		return "", false
	}
	for j := i + 1; j < len(script); j++ {
		c := script[j]
		if c == '$' {
			return script[i : j+1], true
		}
		if !isTagChar(c) {
			return "", false
		}
	}
	return "", false
}

func isTagChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

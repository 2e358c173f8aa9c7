package manifest

import (
	"fmt"
	"strings"
)

// Clause is one comma-separated element of a header value.
type Clause struct {
	Paths      []string
	Attributes map[string]string
	Types      map[string]string
	Directives map[string]string
}

// ParseClauses parses a header value with the common clause grammar.
// Repeating an attribute or directive within one clause is an error.
func ParseClauses(value string) ([]Clause, error) {
	var clauses []Clause
	for _, raw := range splitQuoted(value, ',') {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		c := Clause{
			Attributes: map[string]string{},
			Types:      map[string]string{},
			Directives: map[string]string{},
		}
		for _, piece := range splitQuoted(raw, ';') {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			eq := indexUnquoted(piece, '=')
			if eq < 0 {
				if len(c.Attributes) > 0 || len(c.Directives) > 0 {
					return nil, fmt.Errorf("path %q follows parameters", piece)
				}
				c.Paths = append(c.Paths, unquote(piece))
				continue
			}
			if err := c.addParameter(piece, eq); err != nil {
				return nil, err
			}
		}
		if len(c.Paths) == 0 {
			return nil, fmt.Errorf("clause %q has no path", raw)
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

func (c *Clause) addParameter(piece string, eq int) error {
	name := strings.TrimSpace(piece[:eq])
	value := unquote(strings.TrimSpace(piece[eq+1:]))

	if strings.HasSuffix(name, ":") {
		name = strings.TrimSpace(strings.TrimSuffix(name, ":"))
		if name == "" {
			return fmt.Errorf("directive without name in %q", piece)
		}
		if old, ok := c.Directives[name]; ok && old != value {
			return fmt.Errorf("conflicting %s directive: %q and %q", name, old, value)
		}
		c.Directives[name] = value
		return nil
	}

	typ := ""
	if n, t, ok := strings.Cut(name, ":"); ok {
		name, typ = strings.TrimSpace(n), strings.TrimSpace(t)
	}
	if name == "" {
		return fmt.Errorf("attribute without name in %q", piece)
	}
	if old, ok := c.Attributes[name]; ok && old != value {
		return fmt.Errorf("conflicting %s attribute: %q and %q", name, old, value)
	}
	c.Attributes[name] = value
	if typ != "" {
		c.Types[name] = typ
	}
	return nil
}

// splitQuoted splits s on sep outside double quotes.
func splitQuoted(s string, sep byte) []string {
	var parts []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if inQuote {
				i++
			}
		case '"':
			inQuote = !inQuote
		case sep:
			if !inQuote {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

func indexUnquoted(s string, b byte) int {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuote = !inQuote
		case b:
			if !inQuote {
				return i
			}
		}
	}
	return -1
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
		if strings.Contains(s, `\`) {
			var b strings.Builder
			for i := 0; i < len(s); i++ {
				if s[i] == '\\' && i+1 < len(s) {
					i++
				}
				b.WriteByte(s[i])
			}
			s = b.String()
		}
	}
	return s
}

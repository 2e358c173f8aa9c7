package filter

import (
	"fmt"
	"strings"
)

type parser struct {
	src string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Filter: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) parseFilter() (*Filter, error) {
	if p.peek() != '(' {
		return nil, p.errorf("expected '('")
	}
	p.pos++
	p.skipSpace()

	var f *Filter
	var err error
	switch p.peek() {
	case '&':
		p.pos++
		f, err = p.parseList(OpAnd)
	case '|':
		p.pos++
		f, err = p.parseList(OpOr)
	case '!':
		p.pos++
		p.skipSpace()
		var child *Filter
		child, err = p.parseFilter()
		if err == nil {
			f = &Filter{op: OpNot, children: []*Filter{child}}
		}
	default:
		f, err = p.parseItem()
	}
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if p.peek() != ')' {
		return nil, p.errorf("expected ')'")
	}
	p.pos++
	return f, nil
}

func (p *parser) parseList(op Op) (*Filter, error) {
	f := &Filter{op: op}
	for {
		p.skipSpace()
		if p.peek() != '(' {
			break
		}
		c, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		f.children = append(f.children, c)
	}
	if len(f.children) == 0 {
		return nil, p.errorf("empty filter list")
	}
	return f, nil
}

func (p *parser) parseItem() (*Filter, error) {
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("=<>~()", rune(p.src[p.pos])) {
		p.pos++
	}
	attr := strings.TrimSpace(p.src[start:p.pos])
	if attr == "" {
		return nil, p.errorf("missing attribute name")
	}

	var op Op
	switch {
	case strings.HasPrefix(p.src[p.pos:], "~="):
		op, p.pos = OpApprox, p.pos+2
	case strings.HasPrefix(p.src[p.pos:], ">="):
		op, p.pos = OpGreaterEq, p.pos+2
	case strings.HasPrefix(p.src[p.pos:], "<="):
		op, p.pos = OpLessEq, p.pos+2
	case p.peek() == '=':
		op, p.pos = OpEqual, p.pos+1
	default:
		return nil, p.errorf("unknown operator")
	}

	parts, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	if op != OpEqual {
		if len(parts) != 1 || parts[0] == "" {
			if len(parts) == 0 {
				return &Filter{op: op, attr: attr}, nil
			}
			return nil, p.errorf("wildcard not allowed with this operator")
		}
		return &Filter{op: op, attr: attr, value: parts[0]}, nil
	}

	switch {
	case len(parts) == 0:
		return &Filter{op: OpEqual, attr: attr}, nil
	case len(parts) == 1 && parts[0] == "":
		return &Filter{op: OpPresent, attr: attr}, nil
	case len(parts) == 1:
		return &Filter{op: OpEqual, attr: attr, value: parts[0]}, nil
	}
	return &Filter{op: OpSubstring, attr: attr, parts: parts}, nil
}

// parseValue reads up to the closing paren. Literal runs become entries and
// each unescaped '*' becomes an empty entry.
func (p *parser) parseValue() ([]string, error) {
	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case ')':
			flush()
			return parts, nil
		case '(':
			return nil, p.errorf("unescaped '(' in value")
		case '*':
			flush()
			if len(parts) == 0 || parts[len(parts)-1] != "" {
				parts = append(parts, "")
			}
			p.pos++
		case '\\':
			p.pos++
			if p.pos >= len(p.src) {
				return nil, p.errorf("dangling escape")
			}
			cur.WriteByte(p.src[p.pos])
			p.pos++
		default:
			cur.WriteByte(c)
			p.pos++
		}
	}
	return nil, p.errorf("unterminated value")
}

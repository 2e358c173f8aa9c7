package version

import (
	"strings"
)

// Range is a version interval. A range written as a bare version ("1.2")
// means "at least 1.2" and has no upper bound.
type Range struct {
	Left      Version
	LeftOpen  bool
	Right     *Version
	RightOpen bool
}

// Any matches every version.
var Any = Range{}

// ParseRange parses "[1.0,2.0)", "(1.0,2.0]", "1.0" or "".
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Any, nil
	}

	first := s[0]
	if first != '[' && first != '(' {
		v, err := Parse(s)
		if err != nil {
			return Range{}, err
		}
		return Range{Left: v}, nil
	}

	last := s[len(s)-1]
	if last != ']' && last != ')' {
		return Range{}, &ParseError{Version: s, Message: "range must end with ']' or ')'"}
	}
	body := s[1 : len(s)-1]
	left, right, ok := strings.Cut(body, ",")
	if !ok {
		return Range{}, &ParseError{Version: s, Message: "range needs two endpoints"}
	}
	lv, err := Parse(left)
	if err != nil {
		return Range{}, err
	}
	rv, err := Parse(right)
	if err != nil {
		return Range{}, err
	}

	r := Range{
		Left:      lv,
		LeftOpen:  first == '(',
		Right:     &rv,
		RightOpen: last == ')',
	}
	if r.IsEmpty() {
		return Range{}, &ParseError{Version: s, Message: "range is empty"}
	}
	return r, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Exact returns the range [v,v].
func Exact(v Version) Range {
	return Range{Left: v, Right: &v}
}

// Includes reports whether v lies within r.
func (r Range) Includes(v Version) bool {
	c := r.Left.Compare(v)
	if c > 0 || (c == 0 && r.LeftOpen) {
		return false
	}
	if r.Right == nil {
		return true
	}
	c = v.Compare(*r.Right)
	return c < 0 || (c == 0 && !r.RightOpen)
}

// IsEmpty reports whether no version can satisfy r.
func (r Range) IsEmpty() bool {
	if r.Right == nil {
		return false
	}
	c := r.Left.Compare(*r.Right)
	return c > 0 || (c == 0 && (r.LeftOpen || r.RightOpen))
}

// String returns the canonical range syntax.
func (r Range) String() string {
	if r.Right == nil {
		return r.Left.String()
	}
	var b strings.Builder
	if r.LeftOpen {
		b.WriteByte('(')
	} else {
		b.WriteByte('[')
	}
	b.WriteString(r.Left.String())
	b.WriteByte(',')
	b.WriteString(r.Right.String())
	if r.RightOpen {
		b.WriteByte(')')
	} else {
		b.WriteByte(']')
	}
	return b.String()
}

// FilterString renders r as a filter expression over attr, e.g.
// (&(version>=1.0.0)(!(version>=2.0.0))).
func (r Range) FilterString(attr string) string {
	var lower string
	if r.LeftOpen {
		lower = "(!(" + attr + "<=" + r.Left.String() + "))"
	} else {
		lower = "(" + attr + ">=" + r.Left.String() + ")"
	}
	if r.Right == nil {
		return lower
	}
	var upper string
	if r.RightOpen {
		upper = "(!(" + attr + ">=" + r.Right.String() + "))"
	} else {
		upper = "(" + attr + "<=" + r.Right.String() + ")"
	}
	return "(&" + lower + upper + ")"
}

package filter

import (
	"strconv"
	"strings"

	"github.com/albertocavalcante/go-modrt/version"
)

// Op is a filter operator.
type Op int

const (
	OpAnd Op = iota
	OpOr
	OpNot
	OpEqual
	OpApprox
	OpGreaterEq
	OpLessEq
	OpPresent
	OpSubstring
)

// Filter is a parsed filter expression. Filters are immutable and safe for
// concurrent use.
type Filter struct {
	op       Op
	attr     string
	value    string
	parts    []string // substring pieces; "" marks a wildcard boundary
	children []*Filter
}

// SyntaxError reports a malformed filter string.
type SyntaxError struct {
	Filter string
	Pos    int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return "invalid filter " + strconv.Quote(e.Filter) + " at offset " + strconv.Itoa(e.Pos) + ": " + e.Msg
}

// Parse parses a filter string. An empty or all-space string is an error.
func Parse(s string) (*Filter, error) {
	p := &parser{src: s}
	p.skipSpace()
	f, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("trailing characters")
	}
	return f, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Filter {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Op returns the top-level operator.
func (f *Filter) Op() Op { return f.op }

// Attribute returns the attribute name of a leaf filter.
func (f *Filter) Attribute() string { return f.attr }

// Value returns the raw value of a leaf filter.
func (f *Filter) Value() string { return f.value }

// Children returns the operands of an and/or/not filter.
func (f *Filter) Children() []*Filter { return f.children }

// Matches evaluates the filter against attrs. A missing attribute never
// matches, except under negation.
func (f *Filter) Matches(attrs map[string]any) bool {
	switch f.op {
	case OpAnd:
		for _, c := range f.children {
			if !c.Matches(attrs) {
				return false
			}
		}
		return true
	case OpOr:
		for _, c := range f.children {
			if c.Matches(attrs) {
				return true
			}
		}
		return false
	case OpNot:
		return !f.children[0].Matches(attrs)
	}

	v, ok := lookup(attrs, f.attr)
	if !ok {
		return false
	}
	if f.op == OpPresent {
		return true
	}
	return f.compare(v)
}

// MatchProperties evaluates the filter against string properties, such as
// framework launch properties.
func (f *Filter) MatchProperties(props map[string]string) bool {
	attrs := make(map[string]any, len(props))
	for k, v := range props {
		attrs[k] = v
	}
	return f.Matches(attrs)
}

// lookup finds attr exactly, then case-insensitively.
func lookup(attrs map[string]any, attr string) (any, bool) {
	if v, ok := attrs[attr]; ok {
		return v, true
	}
	for k, v := range attrs {
		if strings.EqualFold(k, attr) {
			return v, true
		}
	}
	return nil, false
}

func (f *Filter) compare(v any) bool {
	switch val := v.(type) {
	case string:
		return f.compareString(val)
	case []string:
		for _, s := range val {
			if f.compareString(s) {
				return true
			}
		}
		return false
	case version.Version:
		return f.compareVersion(val)
	case []version.Version:
		for _, ver := range val {
			if f.compareVersion(ver) {
				return true
			}
		}
		return false
	case int:
		return f.compareInt(int64(val))
	case int64:
		return f.compareInt(val)
	case uint64:
		if val > 1<<63-1 {
			return false
		}
		return f.compareInt(int64(val))
	case float64:
		return f.compareFloat(val)
	case bool:
		if f.op != OpEqual && f.op != OpApprox {
			return false
		}
		b, err := strconv.ParseBool(strings.TrimSpace(f.value))
		return err == nil && b == val
	case []any:
		for _, e := range val {
			if f.compare(e) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (f *Filter) compareString(s string) bool {
	switch f.op {
	case OpEqual:
		return s == f.value
	case OpSubstring:
		return matchSubstring(f.parts, s)
	case OpApprox:
		return normalizeApprox(s) == normalizeApprox(f.value)
	case OpGreaterEq:
		return s >= f.value
	case OpLessEq:
		return s <= f.value
	}
	return false
}

func (f *Filter) compareVersion(v version.Version) bool {
	if f.op == OpSubstring {
		return matchSubstring(f.parts, v.String())
	}
	want, err := version.Parse(f.value)
	if err != nil {
		return false
	}
	c := v.Compare(want)
	switch f.op {
	case OpEqual, OpApprox:
		return c == 0
	case OpGreaterEq:
		return c >= 0
	case OpLessEq:
		return c <= 0
	}
	return false
}

func (f *Filter) compareInt(n int64) bool {
	want, err := strconv.ParseInt(strings.TrimSpace(f.value), 10, 64)
	if err != nil {
		return false
	}
	switch f.op {
	case OpEqual, OpApprox:
		return n == want
	case OpGreaterEq:
		return n >= want
	case OpLessEq:
		return n <= want
	}
	return false
}

func (f *Filter) compareFloat(n float64) bool {
	want, err := strconv.ParseFloat(strings.TrimSpace(f.value), 64)
	if err != nil {
		return false
	}
	switch f.op {
	case OpEqual, OpApprox:
		return n == want
	case OpGreaterEq:
		return n >= want
	case OpLessEq:
		return n <= want
	}
	return false
}

func normalizeApprox(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r != ' ' && r != '\t' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// matchSubstring matches s against pieces where "" denotes '*'.
func matchSubstring(parts []string, s string) bool {
	pos := 0
	wild := false
	for i, p := range parts {
		if p == "" {
			wild = true
			continue
		}
		if i == len(parts)-1 && wild {
			return len(s)-pos >= len(p) && strings.HasSuffix(s, p)
		}
		if !wild {
			if !strings.HasPrefix(s[pos:], p) {
				return false
			}
			pos += len(p)
			continue
		}
		idx := strings.Index(s[pos:], p)
		if idx < 0 {
			return false
		}
		pos += idx + len(p)
		wild = false
	}
	return wild || pos == len(s)
}

// String returns the normalized filter text.
func (f *Filter) String() string {
	var b strings.Builder
	f.write(&b)
	return b.String()
}

func (f *Filter) write(b *strings.Builder) {
	b.WriteByte('(')
	switch f.op {
	case OpAnd, OpOr, OpNot:
		b.WriteByte("&|!"[f.op])
		for _, c := range f.children {
			c.write(b)
		}
	case OpPresent:
		b.WriteString(f.attr)
		b.WriteString("=*")
	case OpSubstring:
		b.WriteString(f.attr)
		b.WriteByte('=')
		for _, p := range f.parts {
			if p == "" {
				b.WriteByte('*')
			} else {
				b.WriteString(escape(p))
			}
		}
	default:
		b.WriteString(f.attr)
		switch f.op {
		case OpApprox:
			b.WriteString("~=")
		case OpGreaterEq:
			b.WriteString(">=")
		case OpLessEq:
			b.WriteString("<=")
		default:
			b.WriteByte('=')
		}
		b.WriteString(escape(f.value))
	}
	b.WriteByte(')')
}

func escape(s string) string {
	if !strings.ContainsAny(s, `()*\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '(', ')', '*', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

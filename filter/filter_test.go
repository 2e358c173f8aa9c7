package filter

import (
	"errors"
	"testing"

	"github.com/albertocavalcante/go-modrt/version"
)

func TestParseAndString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"(a=b)", "(a=b)"},
		{"( a = b)", "(a= b)"},
		{"(&(a=b)(c>=1))", "(&(a=b)(c>=1))"},
		{"(|(a=b) (c<=2))", "(|(a=b)(c<=2))"},
		{"(!(a=*))", "(!(a=*))"},
		{"(a=x*y*)", "(a=x*y*)"},
		{`(a=\(paren\))`, `(a=\(paren\))`},
		{"(a~=Hello World)", "(a~=Hello World)"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			if got := f.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	inputs := []string{
		"",
		"a=b",
		"(a=b",
		"(=b)",
		"(&)",
		"(a=b))",
		"(a>=x*)",
		"(a=b(c)",
		`(a=b\`,
		"(a!b)",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", in)
			}
			var se *SyntaxError
			if !errors.As(err, &se) {
				t.Errorf("error type = %T, want *SyntaxError", err)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	attrs := map[string]any{
		"osgi.wiring.package": "com.acme.api",
		"version":             version.MustParse("1.5.0"),
		"count":               int64(3),
		"enabled":             true,
		"os.name":             []string{"Linux", "linux"},
		"Greeting":            "Hello World",
	}

	tests := []struct {
		filter string
		want   bool
	}{
		{"(osgi.wiring.package=com.acme.api)", true},
		{"(osgi.wiring.package=com.acme.*)", true},
		{"(osgi.wiring.package=*api)", true},
		{"(osgi.wiring.package=com*impl)", false},
		{"(&(version>=1.0)(!(version>=2.0)))", true},
		{"(&(version>=1.6)(!(version>=2.0)))", false},
		{"(version=1.5)", true},
		{"(version<=1.4.9)", false},
		{"(count>=2)", true},
		{"(count=4)", false},
		{"(enabled=true)", true},
		{"(os.name=linux)", true},
		{"(os.name=Win*)", false},
		{"(missing=*)", false},
		{"(!(missing=x))", true},
		{"(greeting~=helloworld)", true},
		{"(|(count=1)(count=3))", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			f := MustParse(tt.filter)
			if got := f.Matches(attrs); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchProperties(t *testing.T) {
	f := MustParse("(library.match=2)")
	if !f.MatchProperties(map[string]string{"library.match": "2"}) {
		t.Error("expected match for library.match=2")
	}
	if f.MatchProperties(map[string]string{"library.match": "9"}) {
		t.Error("unexpected match for library.match=9")
	}
}

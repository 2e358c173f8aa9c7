package buildutil

import (
	"maps"
	"slices"
	"testing"

	"github.com/bazelbuild/buildtools/build"
)

func parseCall(t *testing.T, content string) *build.CallExpr {
	t.Helper()
	f, err := build.ParseBuild("BUNDLE.bazel", []byte(content))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(f.Stmt) == 0 {
		t.Fatal("no statements parsed")
	}
	call, ok := f.Stmt[0].(*build.CallExpr)
	if !ok {
		t.Fatalf("expected CallExpr, got %T", f.Stmt[0])
	}
	return call
}

func TestString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		attrName string
		want     string
	}{
		{"named", `bundle(symbolic_name = "a.b")`, "symbolic_name", "a.b"},
		{"missing", `bundle(other = "x")`, "symbolic_name", ""},
		{"non-string", `bundle(symbolic_name = 1)`, "symbolic_name", ""},
		{"positional", `export_package("com.acme")`, "", "com.acme"},
		{"no args", `bundle()`, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := parseCall(t, tt.input)
			if got := String(call, tt.attrName); got != tt.want {
				t.Errorf("String(%q) = %q, want %q", tt.attrName, got, tt.want)
			}
		})
	}
}

func TestIntAndBool(t *testing.T) {
	call := parseCall(t, `bundle(start_level = 3, singleton = True, lazy = False)`)
	if got := Int(call, "start_level"); got != 3 {
		t.Errorf("Int() = %d, want 3", got)
	}
	if !Bool(call, "singleton") {
		t.Error("Bool(singleton) = false")
	}
	if Bool(call, "lazy") {
		t.Error("Bool(lazy) = true")
	}
	if !Has(call, "lazy") || Has(call, "missing") {
		t.Error("Has() mismatch")
	}
}

func TestStringList(t *testing.T) {
	call := parseCall(t, `native_code(paths = ["a.so", 1, "b.so"], osname = "Linux")`)
	if got := StringList(call, "paths"); !slices.Equal(got, []string{"a.so", "b.so"}) {
		t.Errorf("StringList(paths) = %v", got)
	}
	if got := StringList(call, "osname"); !slices.Equal(got, []string{"Linux"}) {
		t.Errorf("StringList(osname) = %v", got)
	}
	if got := StringList(call, "missing"); got != nil {
		t.Errorf("StringList(missing) = %v, want nil", got)
	}
}

func TestStringDict(t *testing.T) {
	call := parseCall(t, `provide_capability(namespace = "x", attributes = {"a": "b", "n": 2, "t": True})`)
	want := map[string]string{"a": "b", "n": "2", "t": "true"}
	if got := StringDict(call, "attributes"); !maps.Equal(got, want) {
		t.Errorf("StringDict() = %v, want %v", got, want)
	}
}

func TestFuncName(t *testing.T) {
	if got := FuncName(parseCall(t, `bundle()`)); got != "bundle" {
		t.Errorf("FuncName() = %q", got)
	}
	if got := FuncName(parseCall(t, `native.bundle()`)); got != "" {
		t.Errorf("FuncName(method) = %q, want empty", got)
	}
}

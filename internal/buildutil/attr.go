// Package buildutil extracts call arguments from buildtools AST nodes.
//
// Bundle descriptors are Starlark files made of top-level calls such as
// bundle(...) and export_package(...). These helpers read keyword arguments
// from those calls without evaluating the file.
package buildutil

import (
	"strconv"

	"github.com/bazelbuild/buildtools/build"
)

// Arg returns the expression bound to keyword name, or nil.
func Arg(call *build.CallExpr, name string) build.Expr {
	for _, arg := range call.List {
		assign, ok := arg.(*build.AssignExpr)
		if !ok {
			continue
		}
		if lhs, ok := assign.LHS.(*build.Ident); ok && lhs.Name == name {
			return assign.RHS
		}
	}
	return nil
}

// Has reports whether keyword name is present.
func Has(call *build.CallExpr, name string) bool {
	return Arg(call, name) != nil
}

// String returns keyword name as a string. When name is empty, the first
// positional argument is used. Missing or non-string values give "".
func String(call *build.CallExpr, name string) string {
	var expr build.Expr
	if name == "" {
		if len(call.List) == 0 {
			return ""
		}
		expr = call.List[0]
	} else {
		expr = Arg(call, name)
	}
	if str, ok := expr.(*build.StringExpr); ok {
		return str.Value
	}
	return ""
}

// Int returns keyword name as an int, or 0.
func Int(call *build.CallExpr, name string) int {
	if lit, ok := Arg(call, name).(*build.LiteralExpr); ok {
		if val, err := strconv.Atoi(lit.Token); err == nil {
			return val
		}
	}
	return 0
}

// Bool returns true only for a literal True.
func Bool(call *build.CallExpr, name string) bool {
	ident, ok := Arg(call, name).(*build.Ident)
	return ok && ident.Name == "True"
}

// StringList returns keyword name as a list of strings. A single string is
// treated as a one-element list. Non-string elements are skipped.
func StringList(call *build.CallExpr, name string) []string {
	switch e := Arg(call, name).(type) {
	case *build.StringExpr:
		return []string{e.Value}
	case *build.ListExpr:
		out := make([]string, 0, len(e.List))
		for _, elem := range e.List {
			if str, ok := elem.(*build.StringExpr); ok {
				out = append(out, str.Value)
			}
		}
		return out
	}
	return nil
}

// StringDict returns keyword name as a string-keyed dict with values
// rendered as strings. Booleans become "true"/"false".
func StringDict(call *build.CallExpr, name string) map[string]string {
	dict, ok := Arg(call, name).(*build.DictExpr)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(dict.List))
	for _, kv := range dict.List {
		key, ok := kv.Key.(*build.StringExpr)
		if !ok {
			continue
		}
		switch v := kv.Value.(type) {
		case *build.StringExpr:
			out[key.Value] = v.Value
		case *build.LiteralExpr:
			out[key.Value] = v.Token
		case *build.Ident:
			switch v.Name {
			case "True":
				out[key.Value] = "true"
			case "False":
				out[key.Value] = "false"
			}
		}
	}
	return out
}

// FuncName returns the name of a plain function call, or "" for method
// calls such as foo.bar().
func FuncName(call *build.CallExpr) string {
	if ident, ok := call.X.(*build.Ident); ok {
		return ident.Name
	}
	return ""
}

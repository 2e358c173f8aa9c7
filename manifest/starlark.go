package manifest

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bazelbuild/buildtools/build"

	"github.com/albertocavalcante/go-modrt/internal/buildutil"
)

// ParseStarlark converts a BUNDLE.bazel descriptor into manifest headers.
//
//	bundle(
//	    symbolic_name = "com.acme.impl",
//	    version = "1.2.0",
//	    singleton = True,
//	    activator = "com.acme.impl.Activator",
//	    lazy = True,
//	)
//	export_package(name = "com.acme.api", version = "1.2", uses = ["com.acme.spi"])
//	import_package(name = "org.log", version = "[1.0,2.0)", optional = True)
//	require_bundle(name = "com.acme.util", reexport = True)
//	native_code(paths = ["lib/libacme.so"], osname = ["Linux"], selection_filter = "(x=1)")
//	native_code_optional()
func ParseStarlark(filename string, data []byte) (map[string]string, error) {
	f, err := build.ParseBuild(filename, data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	headers := map[string]string{}
	var exports, imports, dynamic, requires, native, reqCaps, provCaps, ees []string
	seenBundle := false

	for _, stmt := range f.Stmt {
		call, ok := stmt.(*build.CallExpr)
		if !ok {
			continue
		}
		switch buildutil.FuncName(call) {
		case "bundle":
			if seenBundle {
				return nil, &ManifestError{Header: HeaderSymbolicName, Detail: filename + ": bundle() declared more than once"}
			}
			seenBundle = true
			bundleHeaders(call, headers)

		case "export_package":
			exports = append(exports, clause(call, "name",
				param{"version", "version", false},
				param{"uses", "uses", true},
				param{"mandatory", "mandatory", true},
			)+extraAttributes(call))

		case "import_package":
			imports = append(imports, clause(call, "name",
				param{"version", "version", false},
				param{"bundle_symbolic_name", "bundle-symbolic-name", false},
				param{"bundle_version", "bundle-version", false},
			)+optional(call)+extraAttributes(call))

		case "dynamic_import":
			dynamic = append(dynamic, clause(call, "pattern",
				param{"version", "version", false},
			))

		case "require_bundle":
			c := clause(call, "name", param{"version", "bundle-version", false}) + optional(call)
			if buildutil.Bool(call, "reexport") {
				c += ";visibility:=reexport"
			}
			requires = append(requires, c)

		case "fragment_host":
			headers[HeaderFragmentHost] = clause(call, "name", param{"version", "bundle-version", false})

		case "native_code":
			native = append(native, nativeClause(call))

		case "native_code_optional":
			native = append(native, "*")

		case "require_capability":
			c := quoteIfNeeded(buildutil.String(call, "namespace"))
			if fl := buildutil.String(call, "filter"); fl != "" {
				c += `;filter:="` + fl + `"`
			}
			c += optional(call)
			if eff := buildutil.String(call, "effective"); eff != "" {
				c += ";effective:=" + eff
			}
			reqCaps = append(reqCaps, c+extraAttributes(call))

		case "provide_capability":
			c := quoteIfNeeded(buildutil.String(call, "namespace"))
			if uses := buildutil.StringList(call, "uses"); len(uses) > 0 {
				c += `;uses:="` + strings.Join(uses, ",") + `"`
			}
			provCaps = append(provCaps, c+extraAttributes(call))

		case "execution_environment":
			ees = append(ees, buildutil.StringList(call, "names")...)
		}
	}

	if !seenBundle {
		return nil, &ManifestError{Header: HeaderSymbolicName, Detail: filename + ": missing bundle() declaration"}
	}

	join := func(h string, items []string) {
		if len(items) > 0 {
			headers[h] = strings.Join(items, ",")
		}
	}
	join(HeaderExportPackage, exports)
	join(HeaderImportPackage, imports)
	join(HeaderDynamicImport, dynamic)
	join(HeaderRequireBundle, requires)
	join(HeaderNativeCode, native)
	join(HeaderRequireCapability, reqCaps)
	join(HeaderProvideCapability, provCaps)
	join(HeaderRequiredEE, ees)
	return headers, nil
}

func bundleHeaders(call *build.CallExpr, headers map[string]string) {
	headers[HeaderManifestVersion] = "2"
	bsn := buildutil.String(call, "symbolic_name")
	if buildutil.Bool(call, "singleton") {
		bsn += ";singleton:=true"
	}
	headers[HeaderSymbolicName] = bsn
	if v := buildutil.String(call, "version"); v != "" {
		headers[HeaderVersion] = v
	}
	if a := buildutil.String(call, "activator"); a != "" {
		headers[HeaderActivator] = a
	}
	if cp := buildutil.StringList(call, "classpath"); len(cp) > 0 {
		headers[HeaderClassPath] = strings.Join(cp, ",")
	}
	if buildutil.Bool(call, "lazy") {
		policy := "lazy"
		if inc := buildutil.StringList(call, "lazy_include"); len(inc) > 0 {
			policy += `;include:="` + strings.Join(inc, ",") + `"`
		}
		if exc := buildutil.StringList(call, "lazy_exclude"); len(exc) > 0 {
			policy += `;exclude:="` + strings.Join(exc, ",") + `"`
		}
		headers[HeaderActivationPolicy] = policy
	}
	if buildutil.Bool(call, "multi_release") {
		headers[HeaderMultiRelease] = "true"
	}
}

// param maps a Starlark keyword to a clause parameter.
type param struct {
	keyword   string
	name      string
	directive bool
}

func clause(call *build.CallExpr, pathKeyword string, params ...param) string {
	paths := buildutil.StringList(call, pathKeyword)
	if len(paths) == 0 {
		paths = []string{buildutil.String(call, "")}
	}
	var b strings.Builder
	b.WriteString(strings.Join(paths, ";"))
	for _, p := range params {
		vals := buildutil.StringList(call, p.keyword)
		if len(vals) == 0 {
			continue
		}
		b.WriteByte(';')
		b.WriteString(p.name)
		if p.directive {
			b.WriteByte(':')
		}
		b.WriteString(`="`)
		b.WriteString(strings.Join(vals, ","))
		b.WriteByte('"')
	}
	return b.String()
}

func optional(call *build.CallExpr) string {
	if buildutil.Bool(call, "optional") {
		return ";resolution:=optional"
	}
	return ""
}

func extraAttributes(call *build.CallExpr) string {
	attrs := buildutil.StringDict(call, "attributes")
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(attrs)) {
		b.WriteString(";" + k + `="` + attrs[k] + `"`)
	}
	return b.String()
}

func nativeClause(call *build.CallExpr) string {
	var b strings.Builder
	b.WriteString(strings.Join(buildutil.StringList(call, "paths"), ";"))
	for _, kw := range []struct{ keyword, name string }{
		{"osname", nativeOSName},
		{"processor", nativeProcessor},
		{"osversion", nativeOSVersion},
		{"language", nativeLanguage},
	} {
		for _, v := range buildutil.StringList(call, kw.keyword) {
			b.WriteString(";" + kw.name + `="` + v + `"`)
		}
	}
	if sf := buildutil.String(call, "selection_filter"); sf != "" {
		b.WriteString(`;` + nativeSelectionFilter + `="` + sf + `"`)
	}
	return b.String()
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, `,;="`) {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}

package manifest

import (
	"bytes"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/albertocavalcante/go-modrt/resource"
	"github.com/albertocavalcante/go-modrt/version"
)

func TestParseClauses(t *testing.T) {
	cs, err := ParseClauses(`a;b;version="[1.0,2.0)";uses:="x,y";count:Long=3, c`)
	if err != nil {
		t.Fatalf("ParseClauses() error = %v", err)
	}
	if len(cs) != 2 {
		t.Fatalf("got %d clauses, want 2", len(cs))
	}
	if !slices.Equal(cs[0].Paths, []string{"a", "b"}) {
		t.Errorf("paths = %v", cs[0].Paths)
	}
	if cs[0].Attributes["version"] != "[1.0,2.0)" {
		t.Errorf("version = %q", cs[0].Attributes["version"])
	}
	if cs[0].Directives["uses"] != "x,y" {
		t.Errorf("uses = %q", cs[0].Directives["uses"])
	}
	if cs[0].Types["count"] != "Long" {
		t.Errorf("count type = %q", cs[0].Types["count"])
	}
	if !slices.Equal(cs[1].Paths, []string{"c"}) {
		t.Errorf("second clause paths = %v", cs[1].Paths)
	}
}

func TestParseClausesErrors(t *testing.T) {
	for _, in := range []string{
		"a;x=1;b",
		"a;singleton:=true;singleton:=false",
		";x=1",
		"a;:=x",
	} {
		if _, err := ParseClauses(in); err == nil {
			t.Errorf("ParseClauses(%q) expected error", in)
		}
	}
}

func TestReadManifest(t *testing.T) {
	mf := "Manifest-Version: 1.0\r\n" +
		"Bundle-SymbolicName: com.acme.very.long.symbolic.name.that.needs.a.cont\r\n" +
		" inuation.line\r\n" +
		"Export-Package: com.acme.api\r\n" +
		"\r\n" +
		"Name: ignored/section\r\n"
	h, err := ReadManifest(strings.NewReader(mf))
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if got := h["Bundle-SymbolicName"]; got != "com.acme.very.long.symbolic.name.that.needs.a.continuation.line" {
		t.Errorf("continuation not joined: %q", got)
	}
	if _, ok := h["Name"]; ok {
		t.Error("per-entry section leaked into main headers")
	}
}

func TestWriteManifestRoundTrip(t *testing.T) {
	in := map[string]string{
		"Manifest-Version":    "1.0",
		"Bundle-SymbolicName": strings.Repeat("x", 150),
	}
	var buf bytes.Buffer
	if err := WriteManifest(&buf, in); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "Manifest-Version: 1.0\r\n") {
		t.Errorf("Manifest-Version not first: %q", buf.String()[:30])
	}
	out, err := ReadManifest(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if out["Bundle-SymbolicName"] != in["Bundle-SymbolicName"] {
		t.Error("long header did not survive wrapping")
	}
}

func TestReadManifestErrors(t *testing.T) {
	for _, mf := range []string{
		" leading continuation\n",
		"NoColonHere\n",
		"A: 1\nA: 2\n",
	} {
		_, err := ReadManifest(strings.NewReader(mf))
		var me *ManifestError
		if !errors.As(err, &me) {
			t.Errorf("ReadManifest(%q) error = %v, want *ManifestError", mf, err)
		}
	}
}

func TestParseHeaders(t *testing.T) {
	d, err := ParseHeaders(map[string]string{
		HeaderSymbolicName:     "com.acme.impl;singleton:=true",
		HeaderVersion:          "1.2.3",
		HeaderExportPackage:    `com.acme.api;version=1.2;uses:="com.acme.spi",com.acme.spi`,
		HeaderImportPackage:    `org.log;version="[1.0,2.0)";resolution:=optional`,
		HeaderDynamicImport:    "*",
		HeaderRequireBundle:    `com.acme.util;bundle-version="[1,2)";visibility:=reexport`,
		HeaderActivationPolicy: `lazy;exclude:="com.acme.impl.internal"`,
		HeaderActivator:        "com.acme.impl.Activator",
		HeaderClassPath:        ".,lib/extra.jar",
		HeaderRequiredEE:       "GoRT-1.0",
	})
	if err != nil {
		t.Fatalf("ParseHeaders() error = %v", err)
	}

	if d.SymbolicName != "com.acme.impl" || !d.Singleton {
		t.Errorf("identity = %q singleton=%v", d.SymbolicName, d.Singleton)
	}
	if d.Version != version.MustParse("1.2.3") {
		t.Errorf("version = %v", d.Version)
	}
	if !d.Activation.Lazy || !slices.Equal(d.Activation.Exclude, []string{"com.acme.impl.internal"}) {
		t.Errorf("activation = %+v", d.Activation)
	}
	if !slices.Equal(d.Classpath, []string{".", "lib/extra.jar"}) {
		t.Errorf("classpath = %v", d.Classpath)
	}

	rev := d.NewRevision(7, 1, "loc", nil)
	exports := rev.Capabilities(resource.PackageNamespace)
	if len(exports) != 2 {
		t.Fatalf("exports = %d, want 2", len(exports))
	}
	if exports[0].Version() != version.MustParse("1.2") {
		t.Errorf("export version = %v", exports[0].Version())
	}
	if !slices.Equal(exports[0].Uses(), []string{"com.acme.spi"}) {
		t.Errorf("uses = %v", exports[0].Uses())
	}
	if exports[1].Version() != version.Empty {
		t.Errorf("default export version = %v", exports[1].Version())
	}

	imports := rev.Requirements(resource.PackageNamespace)
	if len(imports) != 2 {
		t.Fatalf("package requirements = %d, want 2", len(imports))
	}
	imp := imports[0]
	if !imp.Optional() || imp.Name() != "org.log" {
		t.Errorf("import = %v", imp)
	}
	logCap := resource.NewCapability(resource.PackageNamespace, map[string]any{
		resource.PackageNamespace: "org.log",
		resource.AttrVersion:      version.MustParse("1.5"),
	}, nil)
	if !imp.Matches(logCap) {
		t.Error("import should match org.log 1.5")
	}
	logCap.Attributes[resource.AttrVersion] = version.MustParse("2.0")
	if imp.Matches(logCap) {
		t.Error("import should not match org.log 2.0")
	}
	if !imports[1].Dynamic() || imports[1].Name() != "*" {
		t.Errorf("dynamic import = %v", imports[1])
	}

	rb := rev.Requirements(resource.BundleNamespace)
	if len(rb) != 1 || !rb[0].Reexport() {
		t.Errorf("require-bundle = %v", rb)
	}
	if len(rev.Requirements(resource.ExecutionEnvironmentNamespace)) != 1 {
		t.Error("missing execution environment requirement")
	}
	if len(rev.Capabilities(resource.HostNamespace)) != 1 || len(rev.Capabilities(resource.BundleNamespace)) != 1 {
		t.Error("missing bundle or host capability")
	}
}

func TestParseHeadersFragment(t *testing.T) {
	d, err := ParseHeaders(map[string]string{
		HeaderSymbolicName: "frag",
		HeaderFragmentHost: `host;bundle-version="[1.0,2.0)"`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !d.Fragment {
		t.Fatal("expected fragment")
	}
	rev := d.NewRevision(2, 1, "frag", nil)
	if len(rev.Capabilities(resource.HostNamespace)) != 0 {
		t.Error("fragment must not provide a host capability")
	}
	hostReq := rev.Requirements(resource.HostNamespace)
	if len(hostReq) != 1 {
		t.Fatalf("host requirements = %d", len(hostReq))
	}
	hostCap := resource.NewCapability(resource.HostNamespace, map[string]any{
		resource.HostNamespace:     "host",
		resource.AttrBundleVersion: version.MustParse("1.1"),
	}, nil)
	if !hostReq[0].Matches(hostCap) {
		t.Error("host requirement should match host 1.1")
	}
}

func TestParseHeadersErrors(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		header  string
	}{
		{"missing symbolic name", map[string]string{HeaderVersion: "1.0"}, HeaderSymbolicName},
		{"bad version", map[string]string{HeaderSymbolicName: "a", HeaderVersion: "1.x"}, HeaderVersion},
		{"bad range", map[string]string{HeaderSymbolicName: "a", HeaderImportPackage: `p;version="[2,1]"`}, HeaderImportPackage},
		{"bad filter", map[string]string{HeaderSymbolicName: "a", HeaderRequireCapability: `ns;filter:="(a=b"`}, HeaderRequireCapability},
		{"conflicting singleton", map[string]string{HeaderSymbolicName: "a;singleton:=true;singleton:=false"}, HeaderSymbolicName},
		{"invalid singleton", map[string]string{HeaderSymbolicName: "a;singleton:=maybe"}, HeaderSymbolicName},
		{"duplicate import", map[string]string{HeaderSymbolicName: "a", HeaderImportPackage: "p,p"}, HeaderImportPackage},
		{"bad selection filter", map[string]string{HeaderSymbolicName: "a", HeaderNativeCode: "lib.so;selection-filter=(x"}, HeaderNativeCode},
		{"bad manifest version", map[string]string{HeaderSymbolicName: "a", HeaderManifestVersion: "two"}, HeaderManifestVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeaders(tt.headers)
			var me *ManifestError
			if !errors.As(err, &me) {
				t.Fatalf("error = %v, want *ManifestError", err)
			}
			if me.Header != tt.header {
				t.Errorf("Header = %q, want %q", me.Header, tt.header)
			}
		})
	}
}

func TestParseNativeCode(t *testing.T) {
	nc, err := ParseNativeCode(`lib1.txt; selection-filter="(library.match=1)", lib2.txt; selection-filter="(library.match=2)", *`)
	if err != nil {
		t.Fatalf("ParseNativeCode() error = %v", err)
	}
	if !nc.Optional {
		t.Error("trailing * not recorded")
	}
	if len(nc.Clauses) != 2 {
		t.Fatalf("clauses = %d, want 2", len(nc.Clauses))
	}
	if nc.Clauses[1].Paths[0] != "lib2.txt" || nc.Clauses[1].SelectionFilter.String() != "(library.match=2)" {
		t.Errorf("clause 2 = %v", nc.Clauses[1])
	}

	nc, err = ParseNativeCode("lib/a.so;lib/b.so;osname=Linux;osname=FreeBSD;processor=x86_64")
	if err != nil {
		t.Fatal(err)
	}
	c := nc.Clauses[0]
	if !slices.Equal(c.Paths, []string{"lib/a.so", "lib/b.so"}) || !slices.Equal(c.OSNames, []string{"Linux", "FreeBSD"}) {
		t.Errorf("clause = %+v", c)
	}

	if _, err := ParseNativeCode("*, lib.so"); err == nil {
		t.Error("expected error for * before last clause")
	}

	for _, raw := range []string{
		"lib/a.so;osname=Linux;lib/b.so",
		"lib/a.so;processor=x86_64;lib/b.so",
		"lib/a.so;osversion=3.1;lib/b.so",
		"lib/a.so;language=en;lib/b.so",
		`lib/a.so;selection-filter="(x=1)";lib/b.so`,
	} {
		if _, err := ParseNativeCode(raw); !errors.Is(err, ErrManifest) {
			t.Errorf("ParseNativeCode(%q) error = %v, want a path-after-parameters error", raw, err)
		}
	}
}

func TestOverlaySelect(t *testing.T) {
	set, err := NewOverlaySet([]string{
		"p/X.txt",
		"META-INF/versions/9/p/X.txt",
		"META-INF/versions/10/p/Y.txt",
		"META-INF/versions/8/p/X.txt",
	})
	if err != nil {
		t.Fatalf("NewOverlaySet() error = %v", err)
	}

	tests := []struct {
		runtime int
		logical string
		want    string
	}{
		{8, "p/X.txt", "p/X.txt"},
		{9, "p/X.txt", "META-INF/versions/9/p/X.txt"},
		{11, "p/X.txt", "META-INF/versions/9/p/X.txt"},
		{9, "p/Y.txt", "p/Y.txt"},
		{11, "p/Y.txt", "META-INF/versions/10/p/Y.txt"},
	}
	for _, tt := range tests {
		if got := set.Select(tt.runtime, tt.logical); got != tt.want {
			t.Errorf("Select(%d, %q) = %q, want %q", tt.runtime, tt.logical, got, tt.want)
		}
	}
	if !slices.Equal(set.Versions(), []int{9, 10}) {
		t.Errorf("Versions() = %v", set.Versions())
	}
}

func TestOverlayRejectsReserved(t *testing.T) {
	set, err := NewOverlaySet([]string{
		"META-INF/versions/9/META-INF/services/com.acme.Spi",
		"META-INF/versions/9/../../escape.txt",
		"META-INF/versions/9/OSGI-INF/MANIFEST.MF",
		"META-INF/versions/9/p/ok.txt",
	})
	var oe *OverlayError
	if !errors.As(err, &oe) {
		t.Fatalf("error = %v, want *OverlayError", err)
	}
	if len(oe.Rejected) != 2 {
		t.Errorf("rejected = %v, want 2 entries", oe.Rejected)
	}
	if got := set.Select(9, "META-INF/services/com.acme.Spi"); got != "META-INF/services/com.acme.Spi" {
		t.Errorf("reserved path was overridden: %q", got)
	}
	if got := set.Select(9, "p/ok.txt"); got != "META-INF/versions/9/p/ok.txt" {
		t.Errorf("valid overlay dropped: %q", got)
	}
}

func TestSelectOverlayPure(t *testing.T) {
	avail := []int{9, 11, 17}
	for i := 0; i < 3; i++ {
		if v, ok := SelectOverlay(15, avail); !ok || v != 11 {
			t.Fatalf("SelectOverlay(15) = %d, %v", v, ok)
		}
	}
	if _, ok := SelectOverlay(8, avail); ok {
		t.Error("runtime below every overlay must select base")
	}
	if !slices.Equal(avail, []int{9, 11, 17}) {
		t.Error("input mutated")
	}
}

func TestApplyMultiRelease(t *testing.T) {
	content := resource.MapContent{
		"META-INF/versions/9/OSGI-INF/MANIFEST.MF": []byte("Import-Package: p.nine\r\n\r\n"),
	}
	base := map[string]string{
		HeaderSymbolicName:  "mr",
		HeaderMultiRelease:  "true",
		HeaderImportPackage: "p.base",
	}

	got, err := ApplyMultiRelease(base, content, 8)
	if err != nil {
		t.Fatal(err)
	}
	if got[HeaderImportPackage] != "p.base" {
		t.Errorf("runtime 8 import = %q", got[HeaderImportPackage])
	}

	got, err = ApplyMultiRelease(base, content, 11)
	if err != nil {
		t.Fatal(err)
	}
	if got[HeaderImportPackage] != "p.nine" {
		t.Errorf("runtime 11 import = %q", got[HeaderImportPackage])
	}
	if base[HeaderImportPackage] != "p.base" {
		t.Error("input headers mutated")
	}
}

func TestParseStarlark(t *testing.T) {
	src := `
bundle(
    symbolic_name = "com.acme.impl",
    version = "1.0.0",
    singleton = True,
    activator = "com.acme.impl.Activator",
    lazy = True,
)

export_package(name = "com.acme.api", version = "1.0", uses = ["com.acme.spi"])
import_package(name = "org.log", version = "[1.0,2.0)", optional = True)
require_bundle(name = "com.acme.util", reexport = True)
native_code(paths = ["lib1.txt"], selection_filter = "(library.match=1)")
native_code_optional()
provide_capability(namespace = "acme.feature", attributes = {"name": "fast"})
`
	h, err := ParseStarlark("BUNDLE.bazel", []byte(src))
	if err != nil {
		t.Fatalf("ParseStarlark() error = %v", err)
	}
	d, err := ParseHeaders(h)
	if err != nil {
		t.Fatalf("ParseHeaders() error = %v (headers %v)", err, h)
	}
	if d.SymbolicName != "com.acme.impl" || !d.Singleton || !d.Activation.Lazy {
		t.Errorf("descriptor = %+v", d)
	}
	if !d.NativeCode.Optional || len(d.NativeCode.Clauses) != 1 {
		t.Errorf("native code = %+v", d.NativeCode)
	}
	rev := d.NewRevision(1, 1, "x", nil)
	if len(rev.Capabilities("acme.feature")) != 1 {
		t.Error("missing provided capability")
	}
	if imp := rev.Requirements(resource.PackageNamespace); len(imp) != 1 || !imp[0].Optional() {
		t.Errorf("imports = %v", imp)
	}
}

func TestParseStarlarkMissingBundle(t *testing.T) {
	_, err := ParseStarlark("BUNDLE.bazel", []byte(`export_package(name = "x")`))
	var me *ManifestError
	if !errors.As(err, &me) {
		t.Fatalf("error = %v, want *ManifestError", err)
	}
}

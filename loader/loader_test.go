package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/albertocavalcante/go-modrt/manifest"
	"github.com/albertocavalcante/go-modrt/resolver"
	"github.com/albertocavalcante/go-modrt/resource"
)

// testEnv resolves eagerly and builds loaders on demand.
type testEnv struct {
	mu        sync.Mutex
	wiring    *resource.Wiring
	installed []*resource.Revision
	loaders   map[*resource.Revision]*Loader
	opts      []Option
	dynCalls  atomic.Int32
}

func newEnv(t *testing.T, revs []*resource.Revision, opts ...Option) *testEnv {
	t.Helper()
	res, err := resolver.New().Resolve(context.Background(), resolver.Request{Mandatory: revs})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return &testEnv{
		wiring:    res.Wiring,
		installed: revs,
		loaders:   map[*resource.Revision]*Loader{},
		opts:      opts,
	}
}

func (e *testEnv) Wiring() *resource.Wiring {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wiring
}

func (e *testEnv) LoaderFor(rev *resource.Revision) (*Loader, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l := e.loaders[rev]; l != nil {
		return l, nil
	}
	l, err := New(rev, e.wiring, e, e.opts...)
	if err != nil {
		return nil, err
	}
	e.loaders[rev] = l
	return l, nil
}

func (e *testEnv) ResolveDynamic(ctx context.Context, rev *resource.Revision, pkg string, patterns []string) (*resource.Wire, error) {
	e.dynCalls.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()
	wiring, wire, err := resolver.New().ResolveDynamic(ctx, resolver.DynamicRequest{
		Requirer:  rev,
		Package:   pkg,
		Existing:  e.wiring,
		Installed: e.installed,
		Patterns:  patterns,
	})
	if err != nil {
		return nil, err
	}
	e.wiring = wiring
	return wire, nil
}

func (e *testEnv) loader(t *testing.T, rev *resource.Revision) *Loader {
	t.Helper()
	l, err := e.LoaderFor(rev)
	if err != nil {
		t.Fatalf("LoaderFor(%s) error = %v", rev, err)
	}
	return l
}

// bundle builds a revision from content and alternating header names and
// values.
func bundle(t *testing.T, id int64, content resource.MapContent, kv ...string) *resource.Revision {
	t.Helper()
	headers := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		headers[kv[i]] = kv[i+1]
	}
	d, err := manifest.ParseHeaders(headers)
	if err != nil {
		t.Fatalf("ParseHeaders(%v) error = %v", headers, err)
	}
	return d.NewRevision(id, 0, fmt.Sprintf("test:%d", id), content)
}

func loadBytes(t *testing.T, l *Loader, name string) string {
	t.Helper()
	cls, err := l.LoadClass(context.Background(), name)
	if err != nil {
		t.Fatalf("LoadClass(%s) error = %v", name, err)
	}
	return string(cls.Bytes())
}

func TestLoadClassImportIsAuthoritative(t *testing.T) {
	a := bundle(t, 1, resource.MapContent{"p/A.class": []byte("from a")},
		"Bundle-SymbolicName", "a", "Export-Package", "p")
	b := bundle(t, 2, resource.MapContent{
		"p/A.class":       []byte("from b"),
		"p/Missing.class": []byte("shadowed"),
		"own/B.class":     []byte("own"),
	}, "Bundle-SymbolicName", "b", "Import-Package", "p")
	c := bundle(t, 3, nil, "Bundle-SymbolicName", "c", "Import-Package", "p")
	env := newEnv(t, []*resource.Revision{a, b, c})
	ctx := context.Background()

	lb := env.loader(t, b)
	clsB, err := lb.LoadClass(ctx, "p.A")
	if err != nil {
		t.Fatalf("LoadClass(p.A) error = %v", err)
	}
	if got := string(clsB.Bytes()); got != "from a" {
		t.Errorf("p.A bytes = %q, want %q", got, "from a")
	}
	if clsB.Revision() != a {
		t.Errorf("p.A defined by %s, want a", clsB.Revision())
	}

	clsC, err := env.loader(t, c).LoadClass(ctx, "p.A")
	if err != nil {
		t.Fatalf("LoadClass(p.A) from c error = %v", err)
	}
	if clsC != clsB {
		t.Error("importers of the same wire must observe the same class")
	}

	if _, err := lb.LoadClass(ctx, "p.Missing"); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("LoadClass(p.Missing) error = %v, want ErrClassNotFound", err)
	}
	if got := loadBytes(t, lb, "own.B"); got != "own" {
		t.Errorf("own.B bytes = %q, want %q", got, "own")
	}
}

func TestLoadClassRequireBundle(t *testing.T) {
	x := bundle(t, 1, resource.MapContent{"r/X.class": []byte("x")},
		"Bundle-SymbolicName", "x", "Export-Package", "r")
	y := bundle(t, 2, nil, "Bundle-SymbolicName", "y", "Require-Bundle", "x;visibility:=reexport")
	hidden := bundle(t, 3, nil, "Bundle-SymbolicName", "hidden", "Require-Bundle", "x")
	z := bundle(t, 4, resource.MapContent{"s/Z.class": []byte("z")},
		"Bundle-SymbolicName", "z", "Require-Bundle", "y")
	w := bundle(t, 5, nil, "Bundle-SymbolicName", "w", "Require-Bundle", "hidden")
	env := newEnv(t, []*resource.Revision{x, y, hidden, z, w})
	ctx := context.Background()

	tests := []struct {
		name    string
		rev     *resource.Revision
		class   string
		want    string
		wantErr bool
	}{
		{"reexported package", z, "r.X", "x", false},
		{"direct require", hidden, "r.X", "x", false},
		{"local after required bundles", z, "s.Z", "z", false},
		{"not reexported", w, "r.X", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls, err := env.loader(t, tt.rev).LoadClass(ctx, tt.class)
			if tt.wantErr {
				if !errors.Is(err, ErrClassNotFound) {
					t.Fatalf("LoadClass(%s) error = %v, want ErrClassNotFound", tt.class, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadClass(%s) error = %v", tt.class, err)
			}
			if got := string(cls.Bytes()); got != tt.want {
				t.Errorf("bytes = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFindResourcesMergesFragments(t *testing.T) {
	h := bundle(t, 1, resource.MapContent{"res/a.txt": []byte("host")},
		"Bundle-SymbolicName", "h")
	f := bundle(t, 2, resource.MapContent{
		"res/a.txt": []byte("fragment"),
		"res/b.txt": []byte("only fragment"),
	}, "Bundle-SymbolicName", "f", "Fragment-Host", "h")
	env := newEnv(t, []*resource.Revision{h, f})
	l := env.loader(t, h)
	ctx := context.Background()

	collect := func() []string {
		var got []string
		for r := range l.FindResources(ctx, "res/a.txt") {
			data, err := r.Read()
			if err != nil {
				t.Fatalf("Read(%s) error = %v", r, err)
			}
			got = append(got, string(data))
		}
		return got
	}
	want := []string{"host", "fragment"}
	first := collect()
	if !slices.Equal(first, want) {
		t.Errorf("FindResources() = %v, want %v", first, want)
	}
	if second := collect(); !slices.Equal(second, first) {
		t.Errorf("second FindResources() = %v, want %v", second, first)
	}

	r, err := l.FindResource(ctx, "/res/b.txt")
	if err != nil {
		t.Fatalf("FindResource(res/b.txt) error = %v", err)
	}
	if r.Revision != f {
		t.Errorf("res/b.txt owned by %s, want the fragment", r.Revision)
	}
	if _, err := l.FindResource(ctx, "res/none.txt"); !errors.Is(err, ErrResourceNotFound) {
		t.Errorf("FindResource(res/none.txt) error = %v, want ErrResourceNotFound", err)
	}
	if _, err := New(f, env.Wiring(), env); !errors.Is(err, ErrNotResolved) {
		t.Errorf("New(fragment) error = %v, want ErrNotResolved", err)
	}
}

func TestLoadClassNestedArchive(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	fw, err := zw.Create("n/N.class")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("nested"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	b := bundle(t, 1, resource.MapContent{"lib/inner.jar": buf.Bytes()},
		"Bundle-SymbolicName", "b", "Bundle-ClassPath", ".,lib/inner.jar,missing")
	env := newEnv(t, []*resource.Revision{b})
	cls, err := env.loader(t, b).LoadClass(context.Background(), "n.N")
	if err != nil {
		t.Fatalf("LoadClass(n.N) error = %v", err)
	}
	if cls.Source().Classpath != "lib/inner.jar" || string(cls.Bytes()) != "nested" {
		t.Errorf("n.N = %q from %q, want nested from lib/inner.jar", cls.Bytes(), cls.Source().Classpath)
	}
}

func TestLoadClassMultiRelease(t *testing.T) {
	content := resource.MapContent{
		"m/C.class":                      []byte("base"),
		"META-INF/versions/9/m/C.class":  []byte("nine"),
		"META-INF/versions/11/m/C.class": []byte("eleven"),
		"META-INF/versions/8/m/D.class":  []byte("ignored"),
		"m/D.class":                      []byte("d"),
	}
	tests := []struct {
		runtime int
		class   string
		want    string
	}{
		{8, "m.C", "base"},
		{9, "m.C", "nine"},
		{10, "m.C", "nine"},
		{11, "m.C", "eleven"},
		{17, "m.C", "eleven"},
		{11, "m.D", "d"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s@%d", tt.class, tt.runtime), func(t *testing.T) {
			b := bundle(t, 1, content, "Bundle-SymbolicName", "mr", "Multi-Release", "true")
			env := newEnv(t, []*resource.Revision{b}, WithRuntimeVersion(tt.runtime))
			if got := loadBytes(t, env.loader(t, b), tt.class); got != tt.want {
				t.Errorf("bytes = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadClassDynamicImport(t *testing.T) {
	exporter := bundle(t, 1, resource.MapContent{"q/Q.class": []byte("q")},
		"Bundle-SymbolicName", "exp", "Export-Package", "q")
	c := bundle(t, 2, nil, "Bundle-SymbolicName", "c", "DynamicImport-Package", "*")
	res, err := resolver.New().Resolve(context.Background(), resolver.Request{Mandatory: []*resource.Revision{c}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	env := &testEnv{
		wiring:    res.Wiring,
		installed: []*resource.Revision{exporter, c},
		loaders:   map[*resource.Revision]*Loader{},
	}
	l := env.loader(t, c)
	ctx := context.Background()

	const workers = 8
	classes := make([]*Class, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cls, err := l.LoadClass(ctx, "q.Q")
			if err != nil {
				t.Errorf("LoadClass(q.Q) error = %v", err)
				return
			}
			classes[i] = cls
		}()
	}
	wg.Wait()

	if n := env.dynCalls.Load(); n != 1 {
		t.Errorf("dynamic resolutions = %d, want 1", n)
	}
	for _, cls := range classes {
		if cls == nil || cls != classes[0] || cls.Revision() != exporter {
			t.Fatalf("classes = %v, want one class from the exporter", classes)
		}
	}
	if !env.Wiring().IsResolved(exporter) {
		t.Error("exporter should be resolved by the dynamic import")
	}
	if _, err := l.LoadClass(ctx, "absent.X"); !errors.Is(err, ErrClassNotFound) {
		t.Errorf("LoadClass(absent.X) error = %v, want ErrClassNotFound", err)
	}
}

func TestLoadClassStaleWiring(t *testing.T) {
	b := bundle(t, 1, resource.MapContent{
		"p/A.class": []byte("a"),
		"p/B.class": []byte("b"),
	}, "Bundle-SymbolicName", "b")
	env := newEnv(t, []*resource.Revision{b})
	l := env.loader(t, b)
	ctx := context.Background()

	before, err := l.LoadClass(ctx, "p.A")
	if err != nil {
		t.Fatalf("LoadClass(p.A) error = %v", err)
	}

	env.mu.Lock()
	env.wiring = env.wiring.Without(b)
	env.mu.Unlock()

	if !l.IsStale() {
		t.Fatal("IsStale() = false after the revision left the wiring")
	}
	after, err := l.LoadClass(ctx, "p.A")
	if err != nil || after != before {
		t.Errorf("LoadClass(p.A) = %v, %v; want the class defined before the refresh", after, err)
	}
	_, err = l.LoadClass(ctx, "p.B")
	var stale *StaleWiringError
	if !errors.As(err, &stale) {
		t.Fatalf("LoadClass(p.B) error = %v, want *StaleWiringError", err)
	}
	if stale.Revision != b || stale.Generation != l.Generation() {
		t.Errorf("stale = %+v", stale)
	}
	if got := slices.Collect(l.FindResources(ctx, "p/A.class")); len(got) != 0 {
		t.Errorf("FindResources() on a stale loader = %v, want none", got)
	}
}

func TestLoadClassRetiredLoader(t *testing.T) {
	b := bundle(t, 1, resource.MapContent{
		"p/A.class": []byte("a"),
		"p/B.class": []byte("b"),
	}, "Bundle-SymbolicName", "b")
	env := newEnv(t, []*resource.Revision{b})
	l := env.loader(t, b)
	ctx := context.Background()

	before, err := l.LoadClass(ctx, "p.A")
	if err != nil {
		t.Fatalf("LoadClass(p.A) error = %v", err)
	}
	l.Retire()

	if !env.Wiring().IsResolved(b) {
		t.Fatal("revision left the wiring")
	}
	if !l.IsStale() {
		t.Fatal("IsStale() = false for a retired loader of a resolved revision")
	}
	if after, err := l.LoadClass(ctx, "p.A"); err != nil || after != before {
		t.Errorf("LoadClass(p.A) = %v, %v; want the class defined before", after, err)
	}
	var stale *StaleWiringError
	if _, err := l.LoadClass(ctx, "p.B"); !errors.As(err, &stale) {
		t.Fatalf("LoadClass(p.B) error = %v, want *StaleWiringError", err)
	}
	if _, err := l.FindResource(ctx, "p/B.class"); !errors.As(err, &stale) {
		t.Errorf("FindResource(p/B.class) error = %v, want *StaleWiringError", err)
	}
}

func TestLoadClassWeaving(t *testing.T) {
	exporter := bundle(t, 1, resource.MapContent{"q/Q.class": []byte("q")},
		"Bundle-SymbolicName", "exp", "Export-Package", "q")
	c := bundle(t, 2, resource.MapContent{
		"c/Main.class": []byte("main"),
		"c/Self.class": []byte("self"),
		"c/Bad.class":  []byte("bad"),
	}, "Bundle-SymbolicName", "c")

	var env *testEnv
	var calls atomic.Int32
	hook := WeavingFunc(func(ctx context.Context, wc *WovenClass) error {
		calls.Add(1)
		switch wc.Name {
		case "c.Main":
			wc.Bytes = append(wc.Bytes, "+woven"...)
			wc.DynamicImports = append(wc.DynamicImports, "q")
		case "c.Self":
			l, err := env.LoaderFor(wc.Revision)
			if err != nil {
				return err
			}
			if _, err := l.LoadClass(ctx, wc.Name); err != nil {
				return err
			}
			wc.Bytes = append(wc.Bytes, "+woven"...)
		case "c.Bad":
			panic("boom")
		}
		return nil
	})
	res, err := resolver.New().Resolve(context.Background(), resolver.Request{Mandatory: []*resource.Revision{c}})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	env = &testEnv{
		wiring:    res.Wiring,
		installed: []*resource.Revision{exporter, c},
		loaders:   map[*resource.Revision]*Loader{},
		opts:      []Option{WithWeavingHooks(hook)},
	}
	l := env.loader(t, c)
	ctx := context.Background()

	if _, err := l.LoadClass(ctx, "q.Q"); !errors.Is(err, ErrClassNotFound) {
		t.Fatalf("LoadClass(q.Q) before weaving error = %v, want ErrClassNotFound", err)
	}
	if got := loadBytes(t, l, "c.Main"); got != "main+woven" {
		t.Errorf("c.Main bytes = %q, want %q", got, "main+woven")
	}
	if cls, err := l.LoadClass(ctx, "q.Q"); err != nil || cls.Revision() != exporter {
		t.Errorf("LoadClass(q.Q) after weaving = %v, %v; want the exporter's class", cls, err)
	}

	calls.Store(0)
	if got := loadBytes(t, l, "c.Self"); got != "self" {
		t.Errorf("c.Self bytes = %q, want the definition made while weaving", got)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("hook calls for c.Self = %d, want 1", n)
	}

	_, err = l.LoadClass(ctx, "c.Bad")
	var werr *WeavingError
	if !errors.As(err, &werr) || werr.Class != "c.Bad" {
		t.Errorf("LoadClass(c.Bad) error = %v, want *WeavingError", err)
	}
}

func TestLoadClassLazyActivation(t *testing.T) {
	b := bundle(t, 1, resource.MapContent{
		"p/A.class":          []byte("a"),
		"p/B.class":          []byte("b"),
		"p/internal/I.class": []byte("i"),
	}, "Bundle-SymbolicName", "b", "Bundle-ActivationPolicy", `lazy;exclude:="p.internal"`)

	var fired atomic.Int32
	env := newEnv(t, []*resource.Revision{b}, WithLazyActivation(func(context.Context, *resource.Revision) error {
		fired.Add(1)
		return nil
	}))
	l := env.loader(t, b)

	loadBytes(t, l, "p.internal.I")
	if n := fired.Load(); n != 0 {
		t.Fatalf("activations after excluded package = %d, want 0", n)
	}
	loadBytes(t, l, "p.A")
	loadBytes(t, l, "p.B")
	if n := fired.Load(); n != 1 {
		t.Errorf("activations = %d, want 1", n)
	}
}

func TestLoadClassBootDelegation(t *testing.T) {
	sys := bundle(t, 0, resource.MapContent{"java/lang/String.class": []byte("string")},
		"Bundle-SymbolicName", "system.bundle")
	app := bundle(t, 1, resource.MapContent{"java/lang/String.class": []byte("shadow")},
		"Bundle-SymbolicName", "app")
	env := newEnv(t, []*resource.Revision{sys, app})
	parent := env.loader(t, sys)

	tests := []struct {
		name string
		boot []string
		want string
	}{
		{"wildcard prefix", []string{"java.*"}, "string"},
		{"everything", []string{"*"}, "string"},
		{"exact package", []string{"java.lang"}, "string"},
		{"not delegated", []string{"javax.*"}, "shadow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(app, env.Wiring(), env, WithParent(parent), WithBootDelegation(tt.boot...))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := loadBytes(t, l, "java.lang.String"); got != tt.want {
				t.Errorf("bytes = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassNames(t *testing.T) {
	tests := []struct {
		name, path, pkg string
	}{
		{"com.acme.Foo", "com/acme/Foo.class", "com.acme"},
		{"Foo", "Foo.class", ""},
	}
	for _, tt := range tests {
		if got := ClassPath(tt.name); got != tt.path {
			t.Errorf("ClassPath(%s) = %s, want %s", tt.name, got, tt.path)
		}
		if got := PackageOf(tt.name); got != tt.pkg {
			t.Errorf("PackageOf(%s) = %s, want %s", tt.name, got, tt.pkg)
		}
		if got := ResourcePackage(tt.path); got != tt.pkg {
			t.Errorf("ResourcePackage(%s) = %s, want %s", tt.path, got, tt.pkg)
		}
	}
}

package graph

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"testing"

	"github.com/albertocavalcante/go-modrt/manifest"
	"github.com/albertocavalcante/go-modrt/resolver"
	"github.com/albertocavalcante/go-modrt/resource"
)

func revision(t *testing.T, id int64, kv ...string) *resource.Revision {
	t.Helper()
	headers := map[string]string{}
	for i := 0; i+1 < len(kv); i += 2 {
		headers[kv[i]] = kv[i+1]
	}
	d, err := manifest.ParseHeaders(headers)
	if err != nil {
		t.Fatalf("ParseHeaders(%v) error = %v", headers, err)
	}
	return d.NewRevision(id, 0, "test", resource.MapContent{})
}

func resolve(t *testing.T, revs ...*resource.Revision) *resource.Wiring {
	t.Helper()
	res, err := resolver.New().Resolve(context.Background(), resolver.Request{Mandatory: revs})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return res.Wiring
}

// createTestGraph wires:
//
//	a_1.0.0 [1] exports p
//	b_1.0.0 [2] imports p, exports q
//	c_1.0.0 [3] imports q, requires bundle a
func createTestGraph(t *testing.T) (*Graph, Key, Key, Key) {
	t.Helper()
	a := revision(t, 1, "Bundle-SymbolicName", "a", "Bundle-Version", "1.0.0", "Export-Package", "p")
	b := revision(t, 2, "Bundle-SymbolicName", "b", "Bundle-Version", "1.0.0", "Import-Package", "p", "Export-Package", "q;uses:=p")
	c := revision(t, 3, "Bundle-SymbolicName", "c", "Bundle-Version", "1.0.0", "Import-Package", "q", "Require-Bundle", "a")
	g := Build(resolve(t, a, b, c))
	return g, KeyOf(a), KeyOf(b), KeyOf(c)
}

func TestKeyString(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{Key{ID: 1, SymbolicName: "a", Version: "1.0.0"}, "a_1.0.0 [1]"},
		{Key{ID: 4, Generation: 2, SymbolicName: "b", Version: "2.1.0.rc"}, "b_2.1.0.rc [4.2]"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("Key.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuild(t *testing.T) {
	g, a, b, c := createTestGraph(t)

	if len(g.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(g.Nodes))
	}
	if got := g.DirectDeps(c); !slices.Equal(got, []Key{a, b}) {
		t.Errorf("DirectDeps(c) = %v, want [a b]", got)
	}
	if got := g.DirectDependents(a); !slices.Equal(got, []Key{b, c}) {
		t.Errorf("DirectDependents(a) = %v, want [b c]", got)
	}
	if n := len(g.Get(c).Wires); n != 2 {
		t.Errorf("c has %d wires, want 2", n)
	}
	if nodes := g.GetByName("b"); len(nodes) != 1 || nodes[0].Key != b {
		t.Errorf("GetByName(b) = %v", nodes)
	}
	if g.Contains(Key{ID: 99}) {
		t.Error("Contains() reported a missing key")
	}
}

func TestTransitive(t *testing.T) {
	g, a, b, c := createTestGraph(t)

	tests := []struct {
		name string
		got  []Key
		want []Key
	}{
		{"deps of c", g.TransitiveDeps(c), []Key{a, b}},
		{"deps of a", g.TransitiveDeps(a), []Key{}},
		{"dependents of a", g.TransitiveDependents(a), []Key{b, c}},
		{"dependents of b", g.TransitiveDependents(b), []Key{c}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !slices.Equal(tt.got, tt.want) {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestPath(t *testing.T) {
	g, a, b, c := createTestGraph(t)

	if got := g.Path(c, a); !slices.Equal(got, []Key{c, a}) {
		t.Errorf("Path(c, a) = %v, want direct", got)
	}
	if got := g.Path(a, c); got != nil {
		t.Errorf("Path(a, c) = %v, want nil", got)
	}
	if got := g.Path(b, b); !slices.Equal(got, []Key{b}) {
		t.Errorf("Path(b, b) = %v", got)
	}
	if got := g.AllPaths(c, a); len(got) != 2 {
		t.Errorf("AllPaths(c, a) = %v, want 2 paths", got)
	}
}

func TestExplain(t *testing.T) {
	a := revision(t, 1, "Bundle-SymbolicName", "a", "Export-Package", "p;version=1.0")
	d := revision(t, 2, "Bundle-SymbolicName", "d", "Export-Package", "p;version=2.0")
	b := revision(t, 3, "Bundle-SymbolicName", "b", "Import-Package", `p;version="[1,2)"`)
	g := Build(resolve(t, a, d, b))

	got, err := g.Explain("p")
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Explain() = %v, want one explanation", got)
	}
	e := got[0]
	if e.Requirer != KeyOf(b) || e.Provider != KeyOf(a) || e.Version != "1.0.0" {
		t.Errorf("explanation = %+v", e)
	}
	if !slices.Equal(e.Alternatives, []Key{KeyOf(d)}) {
		t.Errorf("Alternatives = %v, want [d]", e.Alternatives)
	}

	text, err := g.ToExplainText("p")
	if err != nil {
		t.Fatalf("ToExplainText() error = %v", err)
	}
	if !strings.Contains(text, "Other exporters: d_0.0.0 [2]") {
		t.Errorf("ToExplainText() missing alternatives:\n%s", text)
	}

	if _, err := g.Explain("nope"); err == nil {
		t.Error("Explain() of an unwired package succeeded")
	}
}

func TestFindCycles(t *testing.T) {
	a := revision(t, 1, "Bundle-SymbolicName", "a", "Export-Package", "p", "Import-Package", "q")
	b := revision(t, 2, "Bundle-SymbolicName", "b", "Export-Package", "q", "Import-Package", "p")
	g := Build(resolve(t, a, b))

	if !g.HasCycles() {
		t.Fatal("HasCycles() = false for a package cycle")
	}
	if cycles := g.FindCycles(); len(cycles) != 1 || len(cycles[0]) != 2 {
		t.Errorf("FindCycles() = %v", cycles)
	}
	if len(g.Roots()) != 0 {
		t.Errorf("Roots() = %v, want none", g.Roots())
	}

	acyclic, _, _, _ := createTestGraph(t)
	if acyclic.HasCycles() {
		t.Error("HasCycles() = true for an acyclic wiring")
	}
}

func TestStats(t *testing.T) {
	g, _, _, _ := createTestGraph(t)
	got := g.Stats()
	want := Stats{Revisions: 3, Wires: 3, MaxDepth: 2}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestFragments(t *testing.T) {
	host := revision(t, 1, "Bundle-SymbolicName", "h", "Export-Package", "p")
	frag := revision(t, 2, "Bundle-SymbolicName", "f", "Fragment-Host", "h", "Export-Package", "p.extra")
	g := Build(resolve(t, host, frag))

	node := g.Get(KeyOf(frag))
	if node == nil || !node.Fragment {
		t.Fatalf("fragment node = %+v", node)
	}
	if !slices.Equal(node.Hosts, []Key{KeyOf(host)}) {
		t.Errorf("Hosts = %v", node.Hosts)
	}
	if got := g.TransitiveDependents(KeyOf(host)); !slices.Equal(got, []Key{KeyOf(frag)}) {
		t.Errorf("TransitiveDependents(host) = %v, want the fragment", got)
	}
	if !strings.Contains(g.ToDOT(), "style=dashed") {
		t.Error("ToDOT() does not mark the fragment")
	}
}

func TestToJSON(t *testing.T) {
	g, _, _, _ := createTestGraph(t)
	data, err := g.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	var out WiringJSON
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Revisions) != 3 || out.Revisions[2].SymbolicName != "c" {
		t.Fatalf("revisions = %+v", out.Revisions)
	}
	var names []string
	for _, w := range out.Revisions[2].Wires {
		names = append(names, w.Namespace+":"+w.Name)
	}
	slices.Sort(names)
	want := []string{resource.BundleNamespace + ":a", resource.PackageNamespace + ":q"}
	if !slices.Equal(names, want) {
		t.Errorf("wires of c = %v, want %v", names, want)
	}
}

func TestToDOTAndText(t *testing.T) {
	g, _, _, _ := createTestGraph(t)

	dot := g.ToDOT()
	for _, want := range []string{
		"digraph wiring {",
		`"b_1.0.0 [2]" -> "a_1.0.0 [1]" [label="p"];`,
		`"c_1.0.0 [3]" -> "b_1.0.0 [2]" [label="q"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("ToDOT() missing %q:\n%s", want, dot)
		}
	}

	text := g.ToText()
	for _, want := range []string{"Revisions: 3", "Wires: 3", "package q -> b_1.0.0 [2]"} {
		if !strings.Contains(text, want) {
			t.Errorf("ToText() missing %q:\n%s", want, text)
		}
	}
}

func TestDiff(t *testing.T) {
	a := revision(t, 1, "Bundle-SymbolicName", "a", "Export-Package", "p")
	b := revision(t, 2, "Bundle-SymbolicName", "b", "Import-Package", "p;resolution:=optional")
	old := resolve(t, a, b)

	if d := Diff(old, old); !d.IsEmpty() {
		t.Errorf("Diff(w, w) = %+v, want empty", d)
	}

	next := old.Without(a)
	d := Diff(old, next)
	if !slices.Equal(d.Removed, []Key{KeyOf(a)}) || len(d.Added) != 0 {
		t.Errorf("Diff() added %v removed %v", d.Added, d.Removed)
	}
	if len(d.Rewired) != 1 || d.Rewired[0].Name != "p" || d.Rewired[0].OldProvider != KeyOf(a) || d.Rewired[0].NewProvider != (Key{}) {
		t.Errorf("Rewired = %+v", d.Rewired)
	}
	if d.TotalChanges() != 2 {
		t.Errorf("TotalChanges() = %d, want 2", d.TotalChanges())
	}

	back := Diff(nil, old)
	if len(back.Added) != 2 {
		t.Errorf("Diff(nil, w).Added = %v", back.Added)
	}
}
